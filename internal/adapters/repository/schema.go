package repository

const schemaSQLite = `
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS submissions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  problem_name TEXT NOT NULL,
  created_at INTEGER NOT NULL,      -- unix nanoseconds
  status TEXT NOT NULL,
  error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS submissions_user_problem ON submissions(user_id, problem_name);

CREATE TABLE IF NOT EXISTS submission_files (
  submission_id TEXT NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
  position INTEGER NOT NULL,
  field TEXT NOT NULL,
  name TEXT NOT NULL,
  content BLOB NOT NULL,
  PRIMARY KEY (submission_id, position)
);

CREATE TABLE IF NOT EXISTS evaluation_events (
  submission_id TEXT NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
  serial INTEGER NOT NULL,
  event_json TEXT NOT NULL,
  PRIMARY KEY (submission_id, serial)
);

CREATE TABLE IF NOT EXISTS awards (
  submission_id TEXT NOT NULL,
  serial INTEGER NOT NULL,
  kind TEXT NOT NULL,               -- SCORE | BADGE
  award_name TEXT NOT NULL,
  value REAL NOT NULL,
  PRIMARY KEY (submission_id, serial),
  FOREIGN KEY (submission_id, serial) REFERENCES evaluation_events(submission_id, serial) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS awards_kind_name ON awards(kind, award_name);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS submissions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  problem_name TEXT NOT NULL,
  created_at BIGINT NOT NULL,
  status TEXT NOT NULL,
  error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS submissions_user_problem ON submissions(user_id, problem_name);

CREATE TABLE IF NOT EXISTS submission_files (
  submission_id TEXT NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
  position INTEGER NOT NULL,
  field TEXT NOT NULL,
  name TEXT NOT NULL,
  content BYTEA NOT NULL,
  PRIMARY KEY (submission_id, position)
);

CREATE TABLE IF NOT EXISTS evaluation_events (
  submission_id TEXT NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
  serial INTEGER NOT NULL,
  event_json TEXT NOT NULL,
  PRIMARY KEY (submission_id, serial)
);

CREATE TABLE IF NOT EXISTS awards (
  submission_id TEXT NOT NULL,
  serial INTEGER NOT NULL,
  kind TEXT NOT NULL,
  award_name TEXT NOT NULL,
  value DOUBLE PRECISION NOT NULL,
  PRIMARY KEY (submission_id, serial),
  FOREIGN KEY (submission_id, serial) REFERENCES evaluation_events(submission_id, serial) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS awards_kind_name ON awards(kind, award_name);
`
