// Package problem loads static problem definitions from disk.
package problem

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// ManifestName is the file a problem directory must contain.
const ManifestName = "problem.toml"

var validate = validator.New()

// Definition is the static description of a problem relevant to scoring and
// feedback.
type Definition struct {
	Name        string    `toml:"name" json:"name" validate:"required"`
	Title       string    `toml:"title" json:"title"`
	TimeLimit   *float64  `toml:"time_limit,omitempty" json:"time_limit,omitempty" validate:"omitempty,gt=0"`
	MemoryLimit *int      `toml:"memory_limit,omitempty" json:"memory_limit,omitempty" validate:"omitempty,gt=0"`
	Subtasks    []Subtask `toml:"subtasks" json:"subtasks" validate:"dive"`
}

// Subtask groups testcases under one award.
type Subtask struct {
	ID           int     `toml:"id" json:"id" validate:"gte=0"`
	MaxScore     float64 `toml:"max_score" json:"max_score" validate:"gte=0"`
	Precision    *int    `toml:"precision,omitempty" json:"precision,omitempty" validate:"omitempty,gte=0"`
	AllowPartial *bool   `toml:"allow_partial,omitempty" json:"allow_partial,omitempty"`
	Testcases    []int   `toml:"testcases" json:"testcases" validate:"dive,gte=0"`
}

// Load reads and validates <dir>/problem.toml.
func Load(dir string) (Definition, error) {
	path := filepath.Join(dir, ManifestName)
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Definition{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return Definition{}, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(b)
}

// Parse decodes and validates a TOML manifest.
func Parse(b []byte) (Definition, error) {
	var def Definition
	if err := toml.Unmarshal(b, &def); err != nil {
		return Definition{}, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// Validate checks field constraints and id uniqueness.
func (d Definition) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}
	subtasks := make(map[int]struct{}, len(d.Subtasks))
	testcases := make(map[int]int)
	for _, st := range d.Subtasks {
		if _, dup := subtasks[st.ID]; dup {
			return fmt.Errorf("%w: duplicate subtask %d", ErrInvalidDefinition, st.ID)
		}
		subtasks[st.ID] = struct{}{}
		for _, tc := range st.Testcases {
			if owner, dup := testcases[tc]; dup {
				return fmt.Errorf("%w: testcase %d in subtasks %d and %d", ErrInvalidDefinition, tc, owner, st.ID)
			}
			testcases[tc] = st.ID
		}
	}
	return nil
}

// Encode writes the definition as a TOML manifest.
func Encode(d Definition) ([]byte, error) {
	return toml.Marshal(d)
}
