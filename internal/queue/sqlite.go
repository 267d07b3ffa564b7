package queue

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"ripqueue/internal/logger"
	"ripqueue/internal/protocol"
	"ripqueue/internal/xerrors"
)

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS queue_items (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	payload TEXT NOT NULL,
	created_ts TEXT NOT NULL,
	claimed_ts TEXT
);

CREATE INDEX IF NOT EXISTS idx_queue_items_claimed_id ON queue_items(claimed_ts, id);

CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);
`

// SQLite is the persistent backing: a single-file WAL-mode store with
// the literal schema from the durable queue contract, (id PK, payload,
// created_ts, claimed_ts nullable) plus an index on (claimed_ts, id).
// Claiming is a conditional UPDATE guarded by the previously-observed
// claim state; a zero-row update means another claimant won the race
// and the caller retries.
type SQLite struct {
	db           *sql.DB
	pollInterval time.Duration
	claimTTL     time.Duration
}

// OpenSQLite opens (creating if necessary) the queue database at
// dbPath and ensures the schema exists.
func OpenSQLite(dbPath string, pollInterval, claimTTL time.Duration) (*SQLite, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create queue db directory: %v", xerrors.ErrFilesystem, err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("%w: open queue db: %v", xerrors.ErrFilesystem, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: one writer avoids SQLITE_BUSY storms under WAL

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: create queue schema: %v", xerrors.ErrFilesystem, err)
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: init queue schema version: %v", xerrors.ErrFilesystem, err)
		}
	} else if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: read queue schema version: %v", xerrors.ErrFilesystem, err)
	}

	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if claimTTL <= 0 {
		claimTTL = 6 * time.Hour
	}
	return &SQLite{db: db, pollInterval: pollInterval, claimTTL: claimTTL}, nil
}

// Put inserts env as a new unclaimed row. Commits immediately; a write
// failure propagates to the caller (the intake handler logs and drops
// the message, relying on the bus to redeliver).
func (s *SQLite) Put(ctx context.Context, env protocol.Envelope) error {
	payload, err := encode(env)
	if err != nil {
		return fmt.Errorf("%w: marshal envelope: %v", xerrors.ErrProtocol, err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO queue_items (payload, created_ts) VALUES (?, ?)",
		string(payload), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("%w: insert queue item: %v", xerrors.ErrFilesystem, err)
	}
	return nil
}

// Get blocks, polling at pollInterval, until it wins the conditional
// claim on the lowest-id row whose claim is null or older than the
// TTL. A malformed payload is logged and deleted (poison-pill
// containment) without being returned to the caller.
func (s *SQLite) Get(ctx context.Context) (Item, error) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		item, ok, err := s.tryClaim(ctx)
		if err != nil {
			return Item{}, err
		}
		if ok {
			return item, nil
		}
		select {
		case <-ctx.Done():
			return Item{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *SQLite) tryClaim(ctx context.Context) (Item, bool, error) {
	for {
		now := time.Now()
		cutoff := formatTime(now.Add(-s.claimTTL))

		var id int64
		var payload string
		err := s.db.QueryRowContext(ctx,
			`SELECT id, payload FROM queue_items
			 WHERE claimed_ts IS NULL OR claimed_ts < ?
			 ORDER BY id ASC LIMIT 1`, cutoff).Scan(&id, &payload)
		if err == sql.ErrNoRows {
			return Item{}, false, nil
		}
		if err != nil {
			return Item{}, false, fmt.Errorf("%w: select candidate queue item: %v", xerrors.ErrFilesystem, err)
		}

		res, err := s.db.ExecContext(ctx,
			`UPDATE queue_items SET claimed_ts = ? WHERE id = ? AND (claimed_ts IS NULL OR claimed_ts < ?)`,
			formatTime(now), id, cutoff)
		if err != nil {
			return Item{}, false, fmt.Errorf("%w: claim queue item: %v", xerrors.ErrFilesystem, err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			// Lost the race to another claimant; try the next candidate.
			continue
		}

		env, err := decode([]byte(payload))
		if err != nil {
			logger.Warn("dropping malformed queue payload", "id", id, "error", err)
			if _, delErr := s.db.ExecContext(ctx, "DELETE FROM queue_items WHERE id = ?", id); delErr != nil {
				logger.Error("failed to delete poison-pill queue item", "id", id, "error", delErr)
			}
			continue
		}
		return Item{ID: id, Envelope: env}, true, nil
	}
}

func (s *SQLite) TaskDone(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM queue_items WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("%w: delete queue item %d: %v", xerrors.ErrFilesystem, id, err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
