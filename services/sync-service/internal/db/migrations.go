package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// schema is written once; column types that differ between Postgres and
// SQLite are expressed as placeholders and replaced per driver.
const schema = `
CREATE TABLE IF NOT EXISTS origins (
    id {{uuid}} PRIMARY KEY,
    owner_id {{uuid}} NOT NULL,
    organization_id {{uuid}},
    mailbox_name VARCHAR(255) NOT NULL,
    account_id VARCHAR(255) NOT NULL,
    provider VARCHAR(32) NOT NULL,
    token_type VARCHAR(32) NOT NULL DEFAULT '',
    access_token TEXT NOT NULL DEFAULT '',
    mailbox_id {{uuid}},
    is_default BOOLEAN NOT NULL DEFAULT FALSE,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    sync_code INTEGER NOT NULL DEFAULT 0,
    sync_code_updated_at {{timestamp}},
    created_at {{timestamp}} NOT NULL,
    UNIQUE (owner_id, mailbox_name)
);

CREATE INDEX IF NOT EXISTS idx_origins_sync ON origins(is_active, sync_code_updated_at);

CREATE TABLE IF NOT EXISTS folders (
    id {{uuid}} PRIMARY KEY,
    origin_id {{uuid}} NOT NULL REFERENCES origins(id) ON DELETE CASCADE,
    folder_uid VARCHAR(255) NOT NULL,
    name VARCHAR(255) NOT NULL,
    full_name VARCHAR(1024) NOT NULL,
    type VARCHAR(16) NOT NULL,
    parent_id {{uuid}} REFERENCES folders(id) ON DELETE SET NULL,
    sync_enabled BOOLEAN NOT NULL DEFAULT FALSE,
    outdated_at {{timestamp}},
    synchronized_at {{timestamp}},
    sync_start_date {{timestamp}},
    created_at {{timestamp}} NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_folders_origin ON folders(origin_id);
CREATE UNIQUE INDEX IF NOT EXISTS uniq_folders_origin_uid ON folders(origin_id, folder_uid) WHERE outdated_at IS NULL;

CREATE TABLE IF NOT EXISTS messages (
    id {{uuid}} PRIMARY KEY,
    origin_id {{uuid}} NOT NULL REFERENCES origins(id) ON DELETE CASCADE,
    uid VARCHAR(255) NOT NULL,
    message_id TEXT NOT NULL,
    thread_id VARCHAR(255) NOT NULL DEFAULT '',
    subject TEXT NOT NULL DEFAULT '',
    from_address TEXT NOT NULL DEFAULT '',
    to_addresses TEXT NOT NULL DEFAULT '[]',
    cc_addresses TEXT NOT NULL DEFAULT '[]',
    bcc_addresses TEXT NOT NULL DEFAULT '[]',
    sent_at {{timestamp}} NOT NULL,
    received_at {{timestamp}} NOT NULL,
    internal_date {{timestamp}} NOT NULL,
    importance SMALLINT NOT NULL DEFAULT 0,
    has_attachments BOOLEAN NOT NULL DEFAULT FALSE,
    body_content TEXT NOT NULL DEFAULT '',
    body_is_text BOOLEAN NOT NULL DEFAULT FALSE,
    body_text TEXT NOT NULL DEFAULT '',
    created_at {{timestamp}} NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_origin_uid ON messages(origin_id, uid);
CREATE INDEX IF NOT EXISTS idx_messages_origin_message_id ON messages(origin_id, message_id);
CREATE INDEX IF NOT EXISTS idx_messages_origin_thread ON messages(origin_id, thread_id);

CREATE TABLE IF NOT EXISTS message_users (
    id {{uuid}} PRIMARY KEY,
    message_id {{uuid}} NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
    folder_id {{uuid}} NOT NULL REFERENCES folders(id) ON DELETE CASCADE,
    origin_id {{uuid}} NOT NULL REFERENCES origins(id) ON DELETE CASCADE,
    owner_id {{uuid}} NOT NULL,
    seen BOOLEAN NOT NULL DEFAULT FALSE,
    created_at {{timestamp}} NOT NULL,
    UNIQUE (message_id, folder_id)
);

CREATE INDEX IF NOT EXISTS idx_message_users_folder ON message_users(folder_id);
CREATE INDEX IF NOT EXISTS idx_message_users_origin ON message_users(origin_id);

CREATE TABLE IF NOT EXISTS attachments (
    id {{uuid}} PRIMARY KEY,
    message_id {{uuid}} NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
    filename VARCHAR(255) NOT NULL,
    size BIGINT NOT NULL DEFAULT 0,
    content_type VARCHAR(255) NOT NULL DEFAULT '',
    transfer_encoding VARCHAR(32) NOT NULL DEFAULT '',
    content_id VARCHAR(255) NOT NULL DEFAULT '',
    content {{bytes}}
);

CREATE INDEX IF NOT EXISTS idx_attachments_message ON attachments(message_id);

CREATE TABLE IF NOT EXISTS message_contexts (
    message_id {{uuid}} NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
    context_type VARCHAR(64) NOT NULL,
    context_id VARCHAR(255) NOT NULL,
    PRIMARY KEY (message_id, context_type, context_id)
);
`

var dialects = map[string]*strings.Replacer{
	DriverPostgres: strings.NewReplacer(
		"{{uuid}}", "UUID",
		"{{timestamp}}", "TIMESTAMP WITH TIME ZONE",
		"{{bytes}}", "BYTEA",
	),
	DriverSQLite: strings.NewReplacer(
		"{{uuid}}", "TEXT",
		"{{timestamp}}", "TIMESTAMP",
		"{{bytes}}", "BLOB",
	),
}

// Migrate creates the schema for the connection's driver
func Migrate(ctx context.Context, conn *sqlx.DB) error {
	r, ok := dialects[conn.DriverName()]
	if !ok {
		return fmt.Errorf("no schema for driver %q", conn.DriverName())
	}

	for _, stmt := range strings.Split(r.Replace(schema), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}
	return nil
}
