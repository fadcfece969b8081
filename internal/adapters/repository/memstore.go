package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/arenagrade/internal/domain/award"
	"github.com/okian/arenagrade/internal/domain/model"
	"github.com/okian/arenagrade/internal/domain/scoring"
)

type memEntry struct {
	sub    model.Submission
	events []model.Event
	awards []award.Record
}

// MemoryStore is a Store kept in process memory. Reads return copies.
type MemoryStore struct {
	mu   sync.RWMutex
	subs map[string]*memEntry
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: make(map[string]*memEntry)}
}

func (s *MemoryStore) CreateSubmission(ctx context.Context, sub model.Submission) (err error) {
	defer observe("create_submission", time.Now(), &err)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subs[sub.ID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, sub.ID)
	}
	if sub.Status == "" {
		sub.Status = model.StatusQueued
	}
	s.subs[sub.ID] = &memEntry{sub: copySubmission(sub)}
	return nil
}

func (s *MemoryStore) Submission(ctx context.Context, id string) (sub model.Submission, err error) {
	defer observe("submission", time.Now(), &err)
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.subs[id]
	if !ok {
		return model.Submission{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return copySubmission(e.sub), nil
}

func (s *MemoryStore) SetStatus(ctx context.Context, id string, status model.Status, cause string) (err error) {
	defer observe("set_status", time.Now(), &err)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.subs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !e.sub.Status.CanTransition(status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.sub.Status, status)
	}
	e.sub.Status = status
	if status == model.StatusFailed {
		e.sub.Error = cause
	}
	return nil
}

func (s *MemoryStore) AppendEvent(ctx context.Context, ev model.Event) (err error) {
	defer observe("append_event", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.subs[ev.SubmissionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, ev.SubmissionID)
	}
	if e.sub.Status != model.StatusEvaluating {
		return fmt.Errorf("%w: %s is %s", ErrNotEvaluating, ev.SubmissionID, e.sub.Status)
	}
	if ev.Serial != len(e.events) {
		return fmt.Errorf("%w: got %d, want %d", ErrSerialGap, ev.Serial, len(e.events))
	}
	e.events = append(e.events, ev)
	if rec, ok := model.AwardOf(ev); ok {
		e.awards = append(e.awards, rec)
	}
	return nil
}

func (s *MemoryStore) Events(ctx context.Context, submissionID string) (evs []model.Event, err error) {
	defer observe("events", time.Now(), &err)
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.subs[submissionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, submissionID)
	}
	out := make([]model.Event, len(e.events))
	copy(out, e.events)
	return out, nil
}

func (s *MemoryStore) AwardsOfSubmission(ctx context.Context, kind award.Kind, submissionID string) (recs []award.Record, err error) {
	defer observe("awards_of_submission", time.Now(), &err)
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []award.Record{}
	e, ok := s.subs[submissionID]
	if !ok {
		return out, nil
	}
	for _, r := range e.awards {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemoryStore) BestAwards(ctx context.Context, kind award.Kind, userID, problemName string) (bests []award.Best, err error) {
	defer observe("best_awards", time.Now(), &err)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cands []scoring.Candidate
	for _, e := range s.subs {
		if e.sub.UserID != userID || e.sub.ProblemName != problemName {
			continue
		}
		for _, r := range e.awards {
			if r.Kind != kind {
				continue
			}
			cands = append(cands, scoring.Candidate{
				AwardName:    r.AwardName,
				Value:        r.Value,
				SubmissionID: r.SubmissionID,
				CreatedAt:    e.sub.CreatedAt,
			})
		}
	}
	return scoring.Best(cands), nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs), nil
}

func (s *MemoryStore) Close() error { return nil }

func copySubmission(sub model.Submission) model.Submission {
	files := make([]model.FieldValue, len(sub.Files))
	for i, f := range sub.Files {
		if f.File.Content != nil {
			content := make([]byte, len(f.File.Content))
			copy(content, f.File.Content)
			f.File.Content = content
		}
		files[i] = f
	}
	sub.Files = files
	return sub
}
