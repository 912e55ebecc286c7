package sqlite

const schema = `
-- Projects table
CREATE TABLE IF NOT EXISTS projects (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    slug TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    repo_url TEXT NOT NULL DEFAULT '',
    default_branch TEXT NOT NULL DEFAULT 'main',
    visibility TEXT NOT NULL DEFAULT 'private',
    license TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- File types table (classification tags, data not code)
CREATE TABLE IF NOT EXISTS file_types (
    tag TEXT PRIMARY KEY,
    category TEXT NOT NULL DEFAULT ''
);

-- Content blobs: global deduplicated store keyed by SHA-256.
-- kind discriminates text vs binary payloads; exactly one of
-- content_text / content_bytes is populated per kind.
CREATE TABLE IF NOT EXISTS content_blobs (
    hash_sha256 TEXT PRIMARY KEY,
    kind TEXT NOT NULL CHECK(kind IN ('text', 'binary')),
    content_text TEXT,
    content_bytes BLOB,
    encoding TEXT NOT NULL DEFAULT '',
    line_count INTEGER NOT NULL DEFAULT 0,
    size_bytes INTEGER NOT NULL,
    reference_count INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Project files: path unique per project, never globally
CREATE TABLE IF NOT EXISTS project_files (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id INTEGER NOT NULL,
    file_path TEXT NOT NULL,
    file_name TEXT NOT NULL,
    file_type TEXT NOT NULL,
    line_count INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'active' CHECK(status IN ('active', 'deleted')),
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(project_id, file_path),
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE,
    FOREIGN KEY (file_type) REFERENCES file_types(tag)
);

CREATE INDEX IF NOT EXISTS idx_project_files_project ON project_files(project_id);
CREATE INDEX IF NOT EXISTS idx_project_files_status ON project_files(project_id, status);

-- File contents: per-file version chain; one current row per file
CREATE TABLE IF NOT EXISTS file_contents (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    file_id INTEGER NOT NULL,
    version INTEGER NOT NULL CHECK(version >= 1),
    content_hash TEXT NOT NULL,
    size_bytes INTEGER NOT NULL DEFAULT 0,
    line_count INTEGER NOT NULL DEFAULT 0,
    is_current INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(file_id, version),
    FOREIGN KEY (file_id) REFERENCES project_files(id) ON DELETE CASCADE,
    FOREIGN KEY (content_hash) REFERENCES content_blobs(hash_sha256)
);

CREATE INDEX IF NOT EXISTS idx_file_contents_file ON file_contents(file_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_file_contents_current
    ON file_contents(file_id) WHERE is_current = 1;
CREATE INDEX IF NOT EXISTS idx_file_contents_hash ON file_contents(content_hash);

-- Branches: one default per project
CREATE TABLE IF NOT EXISTS branches (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id INTEGER NOT NULL,
    name TEXT NOT NULL,
    is_default INTEGER NOT NULL DEFAULT 0,
    parent_branch_id INTEGER,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(project_id, name),
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE,
    FOREIGN KEY (parent_branch_id) REFERENCES branches(id) ON DELETE SET NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_branches_default
    ON branches(project_id) WHERE is_default = 1;

-- Commits: immutable after creation
CREATE TABLE IF NOT EXISTS commits (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id INTEGER NOT NULL,
    branch_id INTEGER NOT NULL,
    parent_commit_id INTEGER,
    commit_hash TEXT NOT NULL,
    author TEXT NOT NULL DEFAULT '',
    message TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(project_id, commit_hash),
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE,
    FOREIGN KEY (branch_id) REFERENCES branches(id) ON DELETE CASCADE,
    FOREIGN KEY (parent_commit_id) REFERENCES commits(id) ON DELETE SET NULL
);

CREATE INDEX IF NOT EXISTS idx_commits_project_branch ON commits(project_id, branch_id, created_at DESC);

-- Commit files: one row per changed file per commit
CREATE TABLE IF NOT EXISTS commit_files (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    commit_id INTEGER NOT NULL,
    file_id INTEGER,
    file_path TEXT NOT NULL,
    change_type TEXT NOT NULL CHECK(change_type IN ('added', 'modified', 'deleted', 'renamed')),
    old_content_hash TEXT,
    new_content_hash TEXT,
    old_path TEXT,
    new_path TEXT,
    FOREIGN KEY (commit_id) REFERENCES commits(id) ON DELETE CASCADE,
    FOREIGN KEY (file_id) REFERENCES project_files(id) ON DELETE SET NULL
);

CREATE INDEX IF NOT EXISTS idx_commit_files_commit ON commit_files(commit_id);
CREATE INDEX IF NOT EXISTS idx_commit_files_path ON commit_files(file_path);

-- Working state: ephemeral per-branch diff index, rebuilt on every scan
CREATE TABLE IF NOT EXISTS working_state (
    project_id INTEGER NOT NULL,
    branch_id INTEGER NOT NULL,
    file_id INTEGER,
    file_path TEXT NOT NULL,
    state TEXT NOT NULL CHECK(state IN ('unmodified', 'added', 'modified', 'deleted')),
    staged INTEGER NOT NULL DEFAULT 0,
    content_hash TEXT NOT NULL DEFAULT '',
    detected_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (project_id, branch_id, file_path),
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE,
    FOREIGN KEY (branch_id) REFERENCES branches(id) ON DELETE CASCADE,
    FOREIGN KEY (file_id) REFERENCES project_files(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_working_state_staged ON working_state(project_id, branch_id, staged);

-- Checkouts: where a project is materialized
CREATE TABLE IF NOT EXISTS checkouts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id INTEGER NOT NULL,
    branch_id INTEGER NOT NULL,
    checkout_path TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    last_sync_at DATETIME,
    UNIQUE(project_id, checkout_path),
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE,
    FOREIGN KEY (branch_id) REFERENCES branches(id) ON DELETE CASCADE
);

-- Checkout snapshots: exclusively owned by their checkout
CREATE TABLE IF NOT EXISTS checkout_snapshots (
    checkout_id INTEGER NOT NULL,
    file_id INTEGER NOT NULL,
    content_hash TEXT NOT NULL,
    version INTEGER NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (checkout_id, file_id),
    FOREIGN KEY (checkout_id) REFERENCES checkouts(id) ON DELETE CASCADE,
    FOREIGN KEY (file_id) REFERENCES project_files(id) ON DELETE CASCADE
);

-- Environments: named config bundles exported into cathedral packages
CREATE TABLE IF NOT EXISTS environments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id INTEGER NOT NULL,
    name TEXT NOT NULL,
    config TEXT NOT NULL DEFAULT '{}',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(project_id, name),
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);

-- Agent sessions: opaque identities created by an external subsystem
CREATE TABLE IF NOT EXISTS agent_sessions (
    id TEXT PRIMARY KEY,
    project_id INTEGER,
    agent_name TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'active' CHECK(status IN ('active', 'idle', 'ended')),
    accepting_work INTEGER NOT NULL DEFAULT 1,
    started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    last_seen_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    ended_at DATETIME,
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_agent_sessions_status ON agent_sessions(status);

-- Work items
CREATE TABLE IF NOT EXISTS work_items (
    id TEXT PRIMARY KEY,
    project_id INTEGER NOT NULL,
    title TEXT NOT NULL CHECK(length(title) <= 500),
    description TEXT NOT NULL DEFAULT '',
    item_type TEXT NOT NULL DEFAULT 'task',
    priority TEXT NOT NULL DEFAULT 'medium' CHECK(priority IN ('critical', 'high', 'medium', 'low')),
    status TEXT NOT NULL DEFAULT 'pending'
        CHECK(status IN ('pending', 'assigned', 'in_progress', 'blocked', 'completed', 'cancelled')),
    parent_id TEXT,
    assigned_session_id TEXT,
    created_by_session TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    assigned_at DATETIME,
    started_at DATETIME,
    completed_at DATETIME,
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE,
    FOREIGN KEY (parent_id) REFERENCES work_items(id) ON DELETE SET NULL,
    FOREIGN KEY (assigned_session_id) REFERENCES agent_sessions(id) ON DELETE SET NULL,
    FOREIGN KEY (created_by_session) REFERENCES agent_sessions(id) ON DELETE SET NULL
);

CREATE INDEX IF NOT EXISTS idx_work_items_project_status ON work_items(project_id, status);
CREATE INDEX IF NOT EXISTS idx_work_items_session ON work_items(assigned_session_id);
CREATE INDEX IF NOT EXISTS idx_work_items_parent ON work_items(parent_id);

-- Work item transitions: append-only audit trail
CREATE TABLE IF NOT EXISTS work_item_transitions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    work_item_id TEXT NOT NULL,
    from_status TEXT NOT NULL,
    to_status TEXT NOT NULL,
    session_id TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (work_item_id) REFERENCES work_items(id) ON DELETE CASCADE,
    FOREIGN KEY (session_id) REFERENCES agent_sessions(id) ON DELETE SET NULL
);

CREATE INDEX IF NOT EXISTS idx_transitions_item ON work_item_transitions(work_item_id);

-- Agent interactions
CREATE TABLE IF NOT EXISTS agent_interactions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    work_item_id TEXT,
    kind TEXT NOT NULL,
    detail TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (session_id) REFERENCES agent_sessions(id) ON DELETE CASCADE,
    FOREIGN KEY (work_item_id) REFERENCES work_items(id) ON DELETE SET NULL
);

-- Agent mailboxes: FIFO by delivered_at per session
CREATE TABLE IF NOT EXISTS agent_mailbox (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    work_item_id TEXT,
    message_type TEXT NOT NULL,
    priority TEXT NOT NULL DEFAULT 'medium',
    subject TEXT NOT NULL DEFAULT '',
    body TEXT NOT NULL DEFAULT '',
    delivered_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    read_at DATETIME,
    FOREIGN KEY (session_id) REFERENCES agent_sessions(id) ON DELETE CASCADE,
    FOREIGN KEY (work_item_id) REFERENCES work_items(id) ON DELETE SET NULL
);

CREATE INDEX IF NOT EXISTS idx_mailbox_session ON agent_mailbox(session_id, delivered_at);
CREATE INDEX IF NOT EXISTS idx_mailbox_unread ON agent_mailbox(session_id) WHERE read_at IS NULL;

-- Convoys: named ordered bundles of work items
CREATE TABLE IF NOT EXISTS convoys (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id INTEGER NOT NULL,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'planned' CHECK(status IN ('planned', 'active', 'completed')),
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    started_at DATETIME,
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS convoy_items (
    convoy_id INTEGER NOT NULL,
    work_item_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    PRIMARY KEY (convoy_id, work_item_id),
    FOREIGN KEY (convoy_id) REFERENCES convoys(id) ON DELETE CASCADE,
    FOREIGN KEY (work_item_id) REFERENCES work_items(id) ON DELETE CASCADE
);

-- Config table (settings such as default author)
CREATE TABLE IF NOT EXISTS config (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

-- Metadata table (internal state such as schema version)
CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

-- Seed well-known file type tags
INSERT OR IGNORE INTO file_types (tag, category) VALUES
    ('python', 'source'),
    ('go', 'source'),
    ('javascript', 'source'),
    ('typescript', 'source'),
    ('jsx_component', 'source'),
    ('sql_migration', 'database'),
    ('sql', 'database'),
    ('shell', 'script'),
    ('markdown', 'docs'),
    ('json_config', 'config'),
    ('yaml_config', 'config'),
    ('toml_config', 'config'),
    ('css', 'style'),
    ('html', 'markup'),
    ('text', 'docs');
`
