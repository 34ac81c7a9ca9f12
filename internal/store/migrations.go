package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// One row per detection request
		`CREATE TABLE IF NOT EXISTS requests (
			id TEXT PRIMARY KEY,
			success INTEGER NOT NULL,
			hands INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			width INTEGER NOT NULL DEFAULT 0,
			height INTEGER NOT NULL DEFAULT 0,
			duration_ms REAL NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Hands reported by a request, in response order
		`CREATE TABLE IF NOT EXISTS request_hands (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			request_id TEXT NOT NULL REFERENCES requests(id) ON DELETE CASCADE,
			hand_index INTEGER NOT NULL,
			x1 INTEGER NOT NULL,
			y1 INTEGER NOT NULL,
			x2 INTEGER NOT NULL,
			y2 INTEGER NOT NULL,
			confidence REAL NOT NULL,
			keypoints TEXT NOT NULL DEFAULT '[]'
		)`,

		`CREATE INDEX IF NOT EXISTS idx_request_hands_request_id ON request_hands(request_id)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_created_at ON requests(created_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
