package material

import (
	"fmt"
	"strconv"
	"strings"
)

// KeyField names a runtime value reported for one testcase.
type KeyField string

const (
	FieldTimeUsage          KeyField = "time_usage"
	FieldTimeUsageValence   KeyField = "time_usage_valence"
	FieldMemoryUsage        KeyField = "memory_usage"
	FieldMemoryUsageValence KeyField = "memory_usage_valence"
	FieldMessage            KeyField = "message"
	FieldValence            KeyField = "valence"
	FieldScore              KeyField = "score"
)

func (f KeyField) valid() bool {
	switch f {
	case FieldTimeUsage, FieldTimeUsageValence, FieldMemoryUsage, FieldMemoryUsageValence,
		FieldMessage, FieldValence, FieldScore:
		return true
	}
	return false
}

const keyPrefix = "testcase"

// Key identifies where a runtime value lands in the feedback table.
// Its wire form is testcase.<id>.<field>.
type Key struct {
	Testcase int
	Field    KeyField
}

// KeyOf builds a key for the given testcase.
func KeyOf(testcase int, field KeyField) Key {
	return Key{Testcase: testcase, Field: field}
}

func (k Key) String() string {
	return keyPrefix + "." + strconv.Itoa(k.Testcase) + "." + string(k.Field)
}

// ParseKey reads the wire form of a key.
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 || parts[0] != keyPrefix {
		return Key{}, fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	id, err := strconv.Atoi(parts[1])
	if err != nil || id < 0 || strconv.Itoa(id) != parts[1] {
		return Key{}, fmt.Errorf("%w: testcase in %q", ErrInvalidKey, s)
	}
	field := KeyField(parts[2])
	if !field.valid() {
		return Key{}, fmt.Errorf("%w: field in %q", ErrInvalidKey, s)
	}
	return Key{Testcase: id, Field: field}, nil
}

func (k Key) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Key) UnmarshalText(b []byte) error {
	parsed, err := ParseKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
