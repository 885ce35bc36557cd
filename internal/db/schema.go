package db

// Messages keep their projected fields and decoded bodies; attachments are metadata
// only and are re-read from the source file when needed.
const schema = `
CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source_path TEXT NOT NULL,
    source_index INTEGER NOT NULL DEFAULT 0, -- position inside an mbox archive, 0 for .eml
    message_id TEXT NOT NULL DEFAULT '',
    in_reply_to TEXT NOT NULL DEFAULT '',
    subject TEXT NOT NULL DEFAULT '',
    thread_name TEXT NOT NULL DEFAULT '',
    return_address TEXT NOT NULL DEFAULT '',
    date TEXT,                               -- RFC 3339, UTC
    text_body_count INTEGER NOT NULL DEFAULT 0,
    html_body_count INTEGER NOT NULL DEFAULT 0,
    attachment_count INTEGER NOT NULL DEFAULT 0,
    fields_json TEXT NOT NULL DEFAULT '{}',
    projection_error TEXT NOT NULL DEFAULT '',
    body_text TEXT NOT NULL DEFAULT '',
    body_html TEXT NOT NULL DEFAULT '',
    size INTEGER NOT NULL DEFAULT 0,
    indexed_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(source_path, source_index)
);

-- Full-text search virtual table
CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
    subject,
    return_address,
    thread_name,
    body_text,
    content='messages',
    content_rowid='id'
);

-- Triggers to keep FTS in sync
CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
    INSERT INTO messages_fts(rowid, subject, return_address, thread_name, body_text)
    VALUES (new.id, new.subject, new.return_address, new.thread_name, new.body_text);
END;

CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, subject, return_address, thread_name, body_text)
    VALUES ('delete', old.id, old.subject, old.return_address, old.thread_name, old.body_text);
END;

CREATE TRIGGER IF NOT EXISTS messages_au AFTER UPDATE ON messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, subject, return_address, thread_name, body_text)
    VALUES ('delete', old.id, old.subject, old.return_address, old.thread_name, old.body_text);
    INSERT INTO messages_fts(rowid, subject, return_address, thread_name, body_text)
    VALUES (new.id, new.subject, new.return_address, new.thread_name, new.body_text);
END;

-- Attachments table (metadata only, no BLOB data)
CREATE TABLE IF NOT EXISTS attachments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    message_id INTEGER NOT NULL,
    position INTEGER NOT NULL,
    filename TEXT NOT NULL DEFAULT '',
    content_type TEXT NOT NULL DEFAULT '',
    disposition TEXT NOT NULL DEFAULT '',
    size INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY(message_id) REFERENCES messages(id) ON DELETE CASCADE
);

-- Settings table (last index run, source directory)
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Indexes for performance
CREATE INDEX IF NOT EXISTS idx_messages_date ON messages(date DESC);
CREATE INDEX IF NOT EXISTS idx_messages_message_id ON messages(message_id);
CREATE INDEX IF NOT EXISTS idx_messages_in_reply_to ON messages(in_reply_to);
CREATE INDEX IF NOT EXISTS idx_messages_thread_name ON messages(thread_name);
CREATE INDEX IF NOT EXISTS idx_attachments_message_id ON attachments(message_id);
`
