package postgresql

// migrations returns the schema. Foreign keys have no ON DELETE CASCADE, so a
// workflow can only be deleted after its outbox entries, runs, actions and
// trigger.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id TEXT PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				owner_id VARCHAR(255) NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflows_owner_id ON workflows(owner_id);

			CREATE TABLE triggers (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL UNIQUE REFERENCES workflows(id),
				type VARCHAR(50) NOT NULL,
				config JSONB NOT NULL DEFAULT '{}',
				channel_id VARCHAR(255),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_triggers_type ON triggers(type);

			CREATE TABLE actions (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL REFERENCES workflows(id),
				sort_order INTEGER NOT NULL,
				type_name VARCHAR(64) NOT NULL,
				config JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_actions_workflow_order ON actions(workflow_id, sort_order, id);
		`,
		2: `
			CREATE TABLE runs (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL REFERENCES workflows(id),
				meta_data JSONB NOT NULL DEFAULT 'null',
				status VARCHAR(20) NOT NULL CHECK (status IN ('created', 'running', 'completed', 'failed')),
				result JSONB,
				error TEXT,
				started_at TIMESTAMP WITH TIME ZONE,
				finished_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_runs_workflow_id ON runs(workflow_id);
			CREATE INDEX idx_runs_status ON runs(status);

			CREATE TABLE outbox_entries (
				id TEXT PRIMARY KEY,
				run_id TEXT NOT NULL REFERENCES runs(id),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_outbox_entries_created_at ON outbox_entries(created_at, id);
			CREATE INDEX idx_outbox_entries_run_id ON outbox_entries(run_id);
		`,
	}
}
