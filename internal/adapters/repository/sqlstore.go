package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite

	"github.com/okian/arenagrade/internal/domain/award"
	"github.com/okian/arenagrade/internal/domain/model"
)

// Driver selects the SQL backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

const defaultSQLiteDSN = "file:arenagrade.db?mode=rwc&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

// SQLStore is a Store on database/sql.
type SQLStore struct {
	db     *sql.DB
	driver Driver

	maxOpenConns    int
	connMaxLifetime time.Duration
}

// Open connects to the database and ensures the schema exists.
func Open(ctx context.Context, driver Driver, dsn string, opts ...Option) (*SQLStore, error) {
	s := &SQLStore{driver: driver}
	for _, opt := range opts {
		opt(s)
	}

	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = defaultSQLiteDSN
		}
		// a single connection serializes writers and keeps in-memory
		// databases alive
		if s.maxOpenConns == 0 {
			s.maxOpenConns = 1
		}
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/arenagrade?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDriver, driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if s.maxOpenConns > 0 {
		db.SetMaxOpenConns(s.maxOpenConns)
	}
	if s.connMaxLifetime > 0 {
		db.SetConnMaxLifetime(s.connMaxLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	s.db = db
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) ensureSchema(ctx context.Context) error {
	schema := schemaSQLite
	if s.driver == DriverPostgres {
		schema = schemaPostgres
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// withTx runs fn in a transaction and commits when it returns nil.
func (s *SQLStore) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLStore) CreateSubmission(ctx context.Context, sub model.Submission) (err error) {
	defer observe("create_submission", time.Now(), &err)
	if sub.Status == "" {
		sub.Status = model.StatusQueued
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM submissions WHERE id=$1`, sub.ID).Scan(&exists)
		switch {
		case err == nil:
			return fmt.Errorf("%w: %s", ErrAlreadyExists, sub.ID)
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("check submission: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO submissions (id, user_id, problem_name, created_at, status, error)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			sub.ID, sub.UserID, sub.ProblemName, sub.CreatedAt.UnixNano(), string(sub.Status), sub.Error,
		); err != nil {
			return fmt.Errorf("insert submission: %w", err)
		}
		for i, f := range sub.Files {
			content := f.File.Content
			if content == nil {
				content = []byte{}
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO submission_files (submission_id, position, field, name, content)
				VALUES ($1,$2,$3,$4,$5)`,
				sub.ID, i, f.Field, f.File.Name, content,
			); err != nil {
				return fmt.Errorf("insert file %s: %w", f.File.Name, err)
			}
		}
		return nil
	})
}

func (s *SQLStore) Submission(ctx context.Context, id string) (sub model.Submission, err error) {
	defer observe("submission", time.Now(), &err)

	var (
		createdAt int64
		status    string
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT id, user_id, problem_name, created_at, status, error
		FROM submissions WHERE id=$1`, id,
	).Scan(&sub.ID, &sub.UserID, &sub.ProblemName, &createdAt, &status, &sub.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Submission{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return model.Submission{}, fmt.Errorf("select submission: %w", err)
	}
	sub.CreatedAt = time.Unix(0, createdAt).UTC()
	if sub.Status, err = model.ParseStatus(status); err != nil {
		return model.Submission{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT field, name, content FROM submission_files
		WHERE submission_id=$1 ORDER BY position`, id)
	if err != nil {
		return model.Submission{}, fmt.Errorf("select files: %w", err)
	}
	defer rows.Close()

	sub.Files = []model.FieldValue{}
	for rows.Next() {
		var fv model.FieldValue
		if err := rows.Scan(&fv.Field, &fv.File.Name, &fv.File.Content); err != nil {
			return model.Submission{}, fmt.Errorf("scan file: %w", err)
		}
		if fv.File.Content == nil {
			fv.File.Content = []byte{}
		}
		sub.Files = append(sub.Files, fv)
	}
	if err := rows.Err(); err != nil {
		return model.Submission{}, fmt.Errorf("iterate files: %w", err)
	}
	return sub, nil
}

func (s *SQLStore) SetStatus(ctx context.Context, id string, status model.Status, cause string) (err error) {
	defer observe("set_status", time.Now(), &err)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := statusOf(ctx, tx, id)
		if err != nil {
			return err
		}
		if !current.CanTransition(status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
		}
		if status != model.StatusFailed {
			cause = ""
		}
		if _, err := tx.ExecContext(ctx, `UPDATE submissions SET status=$1, error=$2 WHERE id=$3`,
			string(status), cause, id); err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		return nil
	})
}

func statusOf(ctx context.Context, tx *sql.Tx, id string) (model.Status, error) {
	var status string
	err := tx.QueryRowContext(ctx, `SELECT status FROM submissions WHERE id=$1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("select status: %w", err)
	}
	return model.ParseStatus(status)
}

func (s *SQLStore) AppendEvent(ctx context.Context, ev model.Event) (err error) {
	defer observe("append_event", time.Now(), &err)
	payload, err := model.EncodePayload(ev.Payload)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		status, err := statusOf(ctx, tx, ev.SubmissionID)
		if err != nil {
			return err
		}
		if status != model.StatusEvaluating {
			return fmt.Errorf("%w: %s is %s", ErrNotEvaluating, ev.SubmissionID, status)
		}

		var next int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM evaluation_events WHERE submission_id=$1`, ev.SubmissionID,
		).Scan(&next); err != nil {
			return fmt.Errorf("count events: %w", err)
		}
		if ev.Serial != next {
			return fmt.Errorf("%w: got %d, want %d", ErrSerialGap, ev.Serial, next)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO evaluation_events (submission_id, serial, event_json)
			VALUES ($1,$2,$3)`, ev.SubmissionID, ev.Serial, string(payload)); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		if rec, ok := model.AwardOf(ev); ok {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO awards (submission_id, serial, kind, award_name, value)
				VALUES ($1,$2,$3,$4,$5)`,
				rec.SubmissionID, ev.Serial, rec.Kind.String(), string(rec.AwardName), rec.Value,
			); err != nil {
				return fmt.Errorf("insert award: %w", err)
			}
		}
		return nil
	})
}

func (s *SQLStore) Events(ctx context.Context, submissionID string) (evs []model.Event, err error) {
	defer observe("events", time.Now(), &err)

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM submissions WHERE id=$1`, submissionID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, submissionID)
	}
	if err != nil {
		return nil, fmt.Errorf("check submission: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT serial, event_json FROM evaluation_events
		WHERE submission_id=$1 ORDER BY serial`, submissionID)
	if err != nil {
		return nil, fmt.Errorf("select events: %w", err)
	}
	defer rows.Close()

	out := []model.Event{}
	for rows.Next() {
		var (
			serial int
			raw    string
		)
		if err := rows.Scan(&serial, &raw); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		p, err := model.DecodePayload([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("decode event %d: %w", serial, err)
		}
		out = append(out, model.Event{SubmissionID: submissionID, Serial: serial, Payload: p})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

func (s *SQLStore) AwardsOfSubmission(ctx context.Context, kind award.Kind, submissionID string) (recs []award.Record, err error) {
	defer observe("awards_of_submission", time.Now(), &err)

	rows, err := s.db.QueryContext(ctx, `
		SELECT award_name, value FROM awards
		WHERE kind=$1 AND submission_id=$2 ORDER BY serial`, kind.String(), submissionID)
	if err != nil {
		return nil, fmt.Errorf("select awards: %w", err)
	}
	defer rows.Close()

	out := []award.Record{}
	for rows.Next() {
		r := award.Record{Kind: kind, SubmissionID: submissionID}
		var name string
		if err := rows.Scan(&name, &r.Value); err != nil {
			return nil, fmt.Errorf("scan award: %w", err)
		}
		r.AwardName = award.Name(name)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate awards: %w", err)
	}
	return out, nil
}

// bestAwardsQuery ranks records per award name by value, then submission
// recency, then submission id; %s is the id collation clause.
const bestAwardsQuery = `
SELECT award_name, value, submission_id FROM (
  SELECT a.award_name, a.value, a.submission_id,
         ROW_NUMBER() OVER (
           PARTITION BY a.award_name
           ORDER BY a.value DESC, s.created_at DESC, a.submission_id %s DESC
         ) AS rn
  FROM awards a
  JOIN submissions s ON s.id = a.submission_id
  WHERE a.kind = $1 AND s.user_id = $2 AND s.problem_name = $3
) ranked
WHERE rn = 1
ORDER BY award_name %s`

func (s *SQLStore) BestAwards(ctx context.Context, kind award.Kind, userID, problemName string) (bests []award.Best, err error) {
	defer observe("best_awards", time.Now(), &err)

	collate := ""
	if s.driver == DriverPostgres {
		collate = `COLLATE "C"`
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(bestAwardsQuery, collate, collate), kind.String(), userID, problemName)
	if err != nil {
		return nil, fmt.Errorf("select best awards: %w", err)
	}
	defer rows.Close()

	out := []award.Best{}
	for rows.Next() {
		var (
			b    award.Best
			name string
		)
		if err := rows.Scan(&name, &b.Value, &b.SubmissionID); err != nil {
			return nil, fmt.Errorf("scan best award: %w", err)
		}
		b.AwardName = award.Name(name)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate best awards: %w", err)
	}
	return out, nil
}

func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM submissions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count submissions: %w", err)
	}
	return n, nil
}

func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
