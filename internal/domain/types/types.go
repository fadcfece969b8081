// Package types contains read views shared by the service and its adapters.
package types

import (
	"time"

	"github.com/okian/arenagrade/internal/domain/award"
	"github.com/okian/arenagrade/internal/domain/model"
)

// SubmissionView is a submission without file contents.
type SubmissionView struct {
	ID          string       `json:"id"`
	UserID      string       `json:"user_id"`
	ProblemName string       `json:"problem_name"`
	CreatedAt   time.Time    `json:"created_at"`
	Status      model.Status `json:"status"`
	Error       string       `json:"error,omitempty"`
	Files       []FileView   `json:"files"`
}

// FileView names a submitted file and its size.
type FileView struct {
	Field string `json:"field"`
	Name  string `json:"name"`
	Size  int    `json:"size"`
}

// ViewOf strips contents from a submission.
func ViewOf(s model.Submission) SubmissionView {
	files := make([]FileView, 0, len(s.Files))
	for _, f := range s.Files {
		files = append(files, FileView{Field: f.Field, Name: f.File.Name, Size: len(f.File.Content)})
	}
	return SubmissionView{
		ID:          s.ID,
		UserID:      s.UserID,
		ProblemName: s.ProblemName,
		CreatedAt:   s.CreatedAt,
		Status:      s.Status,
		Error:       s.Error,
		Files:       files,
	}
}

// ScoreSummary is the total score of a user on a problem.
type ScoreSummary struct {
	UserID      string       `json:"user_id"`
	ProblemName string       `json:"problem_name"`
	Score       award.Score  `json:"score"`
	MaxScore    award.Score  `json:"max_score"`
	Awards      []award.Best `json:"awards"`
}
