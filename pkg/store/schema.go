package store

// schema defines the SQLite schema for the media-collection core
// (spec.md §3, §6): devices, sources, schedules, subscriptions, runs,
// images, deviceImages, plus the secondary indexes spec.md §6 names.
// Integer booleans and Unix-epoch timestamps, text JSON columns for
// params/input/output, exactly as spec.md §6 specifies.
const schema = `
CREATE TABLE IF NOT EXISTS devices (
    id                TEXT PRIMARY KEY,
    enabled           INTEGER NOT NULL DEFAULT 1,
    display_name      TEXT NOT NULL,
    slug              TEXT NOT NULL UNIQUE,
    native_width      INTEGER NOT NULL,
    native_height     INTEGER NOT NULL,
    aspect_tolerance  REAL NOT NULL DEFAULT 0,
    min_width         INTEGER,
    max_width         INTEGER,
    min_height        INTEGER,
    max_height        INTEGER,
    min_filesize      INTEGER,
    max_filesize      INTEGER,
    nsfw_policy       INTEGER NOT NULL DEFAULT 1,
    created_at        INTEGER NOT NULL,
    updated_at        INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sources (
    id            TEXT PRIMARY KEY,
    enabled       INTEGER NOT NULL DEFAULT 1,
    name          TEXT NOT NULL UNIQUE,
    kind          TEXT NOT NULL,
    params        TEXT NOT NULL DEFAULT '{}',
    lookup_limit  INTEGER NOT NULL DEFAULT 50,
    created_at    INTEGER NOT NULL,
    updated_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS schedules (
    id          TEXT PRIMARY KEY,
    source_id   TEXT NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
    cron_expr   TEXT NOT NULL,
    created_at  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_schedules_source_id ON schedules(source_id);

CREATE TABLE IF NOT EXISTS subscriptions (
    device_id  TEXT NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
    source_id  TEXT NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
    enabled    INTEGER NOT NULL DEFAULT 1,
    PRIMARY KEY (device_id, source_id)
);
CREATE INDEX IF NOT EXISTS idx_subscriptions_source_id ON subscriptions(source_id);

CREATE TABLE IF NOT EXISTS runs (
    id                TEXT PRIMARY KEY,
    source_id         TEXT REFERENCES sources(id) ON DELETE SET NULL,
    schedule_id       TEXT REFERENCES schedules(id) ON DELETE SET NULL,
    name              TEXT NOT NULL,
    state             TEXT NOT NULL CHECK(state IN ('pending','running','completed','failed','cancelled')),
    input             TEXT NOT NULL DEFAULT '{}',
    output            TEXT NOT NULL DEFAULT '{}',
    error             TEXT NOT NULL DEFAULT '',
    progress_current  INTEGER NOT NULL DEFAULT 0,
    progress_total    INTEGER NOT NULL DEFAULT 0,
    progress_message  TEXT NOT NULL DEFAULT '',
    retry_count       INTEGER NOT NULL DEFAULT 0,
    max_retries       INTEGER NOT NULL DEFAULT 3,
    scheduled_at      INTEGER NOT NULL,
    started_at        INTEGER,
    completed_at      INTEGER,
    created_at        INTEGER NOT NULL,
    updated_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_state_scheduled_at ON runs(state, scheduled_at);

CREATE TABLE IF NOT EXISTS images (
    id                  TEXT PRIMARY KEY,
    source_id           TEXT REFERENCES sources(id) ON DELETE CASCADE,
    website_url         TEXT NOT NULL DEFAULT '',
    download_url        TEXT NOT NULL UNIQUE,
    checksum            TEXT NOT NULL,
    width               INTEGER NOT NULL,
    height              INTEGER NOT NULL,
    aspect_ratio        REAL NOT NULL,
    filesize            INTEGER NOT NULL,
    format              TEXT NOT NULL,
    nsfw                INTEGER NOT NULL DEFAULT 0,
    title               TEXT,
    author              TEXT,
    author_url          TEXT,
    source_created_at   INTEGER,
    created_at          INTEGER NOT NULL,
    updated_at          INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_images_source_id ON images(source_id);
CREATE INDEX IF NOT EXISTS idx_images_checksum ON images(checksum);
CREATE INDEX IF NOT EXISTS idx_images_aspect_ratio ON images(aspect_ratio);
CREATE INDEX IF NOT EXISTS idx_images_nsfw ON images(nsfw);
CREATE INDEX IF NOT EXISTS idx_images_created_at_id ON images(created_at DESC, id DESC);

CREATE TABLE IF NOT EXISTS device_images (
    id          TEXT PRIMARY KEY,
    device_id   TEXT REFERENCES devices(id) ON DELETE SET NULL,
    image_id    TEXT REFERENCES images(id) ON DELETE SET NULL,
    local_path  TEXT NOT NULL,
    created_at  INTEGER NOT NULL,
    UNIQUE (device_id, image_id)
);
`
