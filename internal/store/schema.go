package store

// schemaTables creates every table at the current schema version.
var schemaTables = []string{
	`CREATE TABLE IF NOT EXISTS agents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		owner_id TEXT NOT NULL,
		context_id INTEGER,
		status TEXT NOT NULL DEFAULT 'READY',
		schedule TEXT NOT NULL DEFAULT 'DAILY',
		founder_uuid TEXT NOT NULL DEFAULT '',
		values_uuid TEXT NOT NULL DEFAULT '',
		mind_uuid TEXT NOT NULL DEFAULT '',
		directive_uuid TEXT NOT NULL DEFAULT '',
		last_run DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS thoughts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL UNIQUE,
		content TEXT NOT NULL,
		parent_id INTEGER REFERENCES thoughts(id),
		owner_id TEXT NOT NULL,
		agent_id INTEGER REFERENCES agents(id),
		context_id INTEGER,
		created_at DATETIME NOT NULL
	)`,

	// Inbox, mutated by producers outside the run-loop.
	`CREATE TABLE IF NOT EXISTS pending_thoughts (
		agent_id INTEGER NOT NULL REFERENCES agents(id),
		thought_id INTEGER NOT NULL REFERENCES thoughts(id),
		added_at DATETIME NOT NULL,
		PRIMARY KEY (agent_id, thought_id)
	)`,

	// Relevance cache; grows only.
	`CREATE TABLE IF NOT EXISTS related_thoughts (
		agent_id INTEGER NOT NULL REFERENCES agents(id),
		thought_id INTEGER NOT NULL REFERENCES thoughts(id),
		score REAL NOT NULL DEFAULT 0,
		added_at DATETIME NOT NULL,
		PRIMARY KEY (agent_id, thought_id)
	)`,

	`CREATE TABLE IF NOT EXISTS tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		details TEXT NOT NULL DEFAULT '',
		depends_on TEXT NOT NULL DEFAULT '[]',
		thought_id INTEGER NOT NULL REFERENCES thoughts(id),
		parent_task_id INTEGER REFERENCES tasks(id),
		agent_id INTEGER REFERENCES agents(id),
		owner_id TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS task_dependencies (
		task_id INTEGER NOT NULL REFERENCES tasks(id),
		depends_on_id INTEGER NOT NULL REFERENCES tasks(id),
		PRIMARY KEY (task_id, depends_on_id)
	)`,

	`CREATE TABLE IF NOT EXISTS task_dependency_issues (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id INTEGER NOT NULL REFERENCES tasks(id),
		kind TEXT NOT NULL,
		reference TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		UNIQUE (task_id, kind, reference)
	)`,

	`CREATE TABLE IF NOT EXISTS research (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_id INTEGER NOT NULL REFERENCES agents(id),
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		completed INTEGER NOT NULL DEFAULT 0,
		response TEXT NOT NULL DEFAULT '',
		respond_to_id INTEGER REFERENCES thoughts(id),
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		content TEXT NOT NULL,
		for_human INTEGER NOT NULL DEFAULT 0,
		for_internet INTEGER NOT NULL DEFAULT 0,
		research_id INTEGER REFERENCES research(id),
		agent_id INTEGER REFERENCES agents(id),
		owner_id TEXT NOT NULL,
		context_id INTEGER,
		error TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS answers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		question_id INTEGER NOT NULL REFERENCES questions(id),
		content TEXT NOT NULL DEFAULT '',
		request_id TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		agent_id INTEGER REFERENCES agents(id),
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS likes (
		agent_id INTEGER NOT NULL REFERENCES agents(id),
		thought_id INTEGER NOT NULL REFERENCES thoughts(id),
		created_at DATETIME NOT NULL,
		PRIMARY KEY (agent_id, thought_id)
	)`,

	// expires_at is unix milliseconds so lease comparisons are numeric.
	`CREATE TABLE IF NOT EXISTS agent_locks (
		agent_id INTEGER PRIMARY KEY,
		holder TEXT NOT NULL,
		expires_at INTEGER NOT NULL
	)`,

	// Embeddings are little-endian float32 blobs, the sqlite-vec wire format.
	`CREATE TABLE IF NOT EXISTS thought_vectors (
		thought_id INTEGER PRIMARY KEY REFERENCES thoughts(id),
		owner_id TEXT NOT NULL,
		content TEXT NOT NULL,
		embedding BLOB NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	)`,
}

var schemaIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_agents_status_schedule ON agents(status, schedule)`,
	`CREATE INDEX IF NOT EXISTS idx_thoughts_parent ON thoughts(parent_id)`,
	`CREATE INDEX IF NOT EXISTS idx_thoughts_agent ON thoughts(agent_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_thought ON tasks(thought_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_task_id)`,
	`CREATE INDEX IF NOT EXISTS idx_research_completed ON research(completed)`,
	`CREATE INDEX IF NOT EXISTS idx_questions_research ON questions(research_id)`,
	`CREATE INDEX IF NOT EXISTS idx_answers_question ON answers(question_id)`,
	`CREATE INDEX IF NOT EXISTS idx_answers_agent_content ON answers(agent_id, content)`,
	`CREATE INDEX IF NOT EXISTS idx_thought_vectors_owner ON thought_vectors(owner_id)`,
}

var statTables = []string{
	"agents", "thoughts", "pending_thoughts", "related_thoughts", "tasks",
	"task_dependencies", "task_dependency_issues", "research", "questions",
	"answers", "likes", "thought_vectors",
}
