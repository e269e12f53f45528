package store

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id            TEXT PRIMARY KEY,
    topic         TEXT NOT NULL DEFAULT '',
    source        TEXT NOT NULL,
    started_at    DATETIME NOT NULL,
    finished_at   DATETIME NOT NULL,
    record_count  INTEGER NOT NULL DEFAULT 0,
    warning_count INTEGER NOT NULL DEFAULT 0,
    warnings      TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_runs_topic ON runs(topic);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

CREATE TABLE IF NOT EXISTS records (
    run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    source     TEXT NOT NULL,
    record_id  TEXT NOT NULL,
    bucket     TEXT NOT NULL,
    label      TEXT NOT NULL,
    score      REAL NOT NULL DEFAULT 0,
    scored     BOOLEAN NOT NULL DEFAULT 1,
    author     TEXT NOT NULL DEFAULT '',
    title      TEXT NOT NULL DEFAULT '',
    text       TEXT NOT NULL DEFAULT '',
    url        TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL DEFAULT 0,
    metrics    TEXT NOT NULL DEFAULT '{}',
    PRIMARY KEY (run_id, source, record_id)
);

CREATE INDEX IF NOT EXISTS idx_records_bucket ON records(run_id, bucket);

CREATE TABLE IF NOT EXISTS summaries (
    run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    position     INTEGER NOT NULL,
    bucket       TEXT NOT NULL,
    count        INTEGER NOT NULL,
    positive     INTEGER NOT NULL,
    neutral      INTEGER NOT NULL,
    negative     INTEGER NOT NULL,
    positive_pct REAL NOT NULL,
    avg_score    REAL NOT NULL,
    means        TEXT NOT NULL DEFAULT '{}',
    medians      TEXT NOT NULL DEFAULT '{}',
    PRIMARY KEY (run_id, bucket)
);
`
