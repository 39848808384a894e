// Package database opens the relational store (PostgreSQL or SQLite) and
// bootstraps the schema.
package database

// postgresSchema creates the identity tables and the three Multiplier
// record tables on PostgreSQL.
var postgresSchema = []string{
	// users: accounts that can log in and own records.
	`CREATE TABLE IF NOT EXISTS users (
    id            BIGSERIAL PRIMARY KEY,
    login         VARCHAR(60) UNIQUE NOT NULL,
    email         VARCHAR(100) NOT NULL DEFAULT '',
    password_hash VARCHAR(255) NOT NULL,
    is_admin      BOOLEAN NOT NULL DEFAULT FALSE,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,

	// user_meta: per-user attributes. Holds the membership signal
	// (pledge amount, Patreon id, e-mail, access token).
	`CREATE TABLE IF NOT EXISTS user_meta (
    user_id    BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    meta_key   VARCHAR(255) NOT NULL,
    meta_value TEXT NOT NULL,
    PRIMARY KEY (user_id, meta_key)
)`,

	// multiplier_freq_array: at most one row per (user_id, preset_number).
	`CREATE TABLE IF NOT EXISTS multiplier_freq_array (
    array_id      BIGSERIAL PRIMARY KEY,
    preset_number INTEGER NOT NULL CHECK (preset_number >= 0),
    name          VARCHAR(50) NOT NULL,
    base_freq     DOUBLE PRECISION NOT NULL,
    multiplier    DOUBLE PRECISION NOT NULL,
    params_json   TEXT NOT NULL,
    user_id       BIGINT NOT NULL
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_freq_array_slot ON multiplier_freq_array(user_id, preset_number)`,

	// multiplier_index_array: insert-only, rows accumulate.
	`CREATE TABLE IF NOT EXISTS multiplier_index_array (
    array_id      BIGSERIAL PRIMARY KEY,
    preset_number INTEGER NOT NULL CHECK (preset_number >= 0),
    name          VARCHAR(50) NOT NULL,
    index_array   VARCHAR(25) NOT NULL,
    user_id       BIGINT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_index_array_user ON multiplier_index_array(user_id)`,

	// multiplier_preset: at most one row per (user_id, preset_number).
	`CREATE TABLE IF NOT EXISTS multiplier_preset (
    preset_id     BIGSERIAL PRIMARY KEY,
    preset_number INTEGER NOT NULL CHECK (preset_number >= 0),
    name          VARCHAR(25) NOT NULL,
    params_json   TEXT NOT NULL,
    user_id       BIGINT NOT NULL
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_preset_slot ON multiplier_preset(user_id, preset_number)`,
}

// sqliteSchema mirrors postgresSchema for SQLite.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    login         TEXT UNIQUE NOT NULL,
    email         TEXT NOT NULL DEFAULT '',
    password_hash TEXT NOT NULL,
    is_admin      INTEGER NOT NULL DEFAULT 0,
    created_at    TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	`CREATE TABLE IF NOT EXISTS user_meta (
    user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    meta_key   TEXT NOT NULL,
    meta_value TEXT NOT NULL,
    PRIMARY KEY (user_id, meta_key)
)`,
	`CREATE TABLE IF NOT EXISTS multiplier_freq_array (
    array_id      INTEGER PRIMARY KEY AUTOINCREMENT,
    preset_number INTEGER NOT NULL CHECK (preset_number >= 0),
    name          TEXT NOT NULL,
    base_freq     REAL NOT NULL,
    multiplier    REAL NOT NULL,
    params_json   TEXT NOT NULL,
    user_id       INTEGER NOT NULL
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_freq_array_slot ON multiplier_freq_array(user_id, preset_number)`,
	`CREATE TABLE IF NOT EXISTS multiplier_index_array (
    array_id      INTEGER PRIMARY KEY AUTOINCREMENT,
    preset_number INTEGER NOT NULL CHECK (preset_number >= 0),
    name          TEXT NOT NULL,
    index_array   TEXT NOT NULL,
    user_id       INTEGER NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_index_array_user ON multiplier_index_array(user_id)`,
	`CREATE TABLE IF NOT EXISTS multiplier_preset (
    preset_id     INTEGER PRIMARY KEY AUTOINCREMENT,
    preset_number INTEGER NOT NULL CHECK (preset_number >= 0),
    name          TEXT NOT NULL,
    params_json   TEXT NOT NULL,
    user_id       INTEGER NOT NULL
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_preset_slot ON multiplier_preset(user_id, preset_number)`,
}
