// Package sqlite provides a storage.DocumentStore backed by SQLite.
//
// Metadata, content and chunk records live in three tables. Records use the
// same mus-go encoding as the other backends. Every multi-row write runs in
// one transaction so a document is never left with metadata but no chunks.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/storage"
	"github.com/poiesic/docrag/storage/sqlite/migrations"
)

// DatabaseFile is the file created inside the data directory.
const DatabaseFile = "docrag.db"

// Store implements storage.DocumentStore on SQLite.
type Store struct {
	db     *sql.DB
	path   string
	locks  *storage.DocumentLocks
	logger *slog.Logger
}

var _ storage.DocumentStore = (*Store)(nil)

// NewStore opens or creates the database in dataDir. An empty dataDir opens
// a private in-memory database. A nil logger uses slog.Default().
func NewStore(dataDir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := ":memory:"
	dbPath := ""
	if dataDir != "" {
		// Ensure directory exists
		if err := os.MkdirAll(dataDir, 0700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", storage.MapQuotaError(err))
		}
		dbPath = filepath.Join(dataDir, DatabaseFile)
		// Open database with WAL mode for better concurrency
		dsn = dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection keeps the in-memory database shared and serializes writers.
	db.SetMaxOpenConns(1)

	s := &Store{
		db:     db,
		path:   dbPath,
		locks:  storage.NewDocumentLocks(),
		logger: logger.With("component", "sqlite"),
	}

	// Run migrations
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path, empty for in-memory stores.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// Extract version number (e.g., "001_initial.up.sql" -> 1)
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		s.logger.Debug("applied migration", "name", name)
	}

	return nil
}

// withTx runs fn in a transaction, committing when fn returns nil.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.MapQuotaError(err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return storage.MapQuotaError(err)
	}
	return storage.MapQuotaError(tx.Commit())
}

// PutMetadata creates or replaces a document's metadata.
func (s *Store) PutMetadata(ctx context.Context, meta *core.DocumentMetadata) error {
	if err := core.ValidateMetadata(meta); err != nil {
		return err
	}
	unlock := s.locks.Lock(meta.ID)
	defer unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, metadata) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET metadata = excluded.metadata
	`, meta.ID, storage.MarshalMetadata(meta))
	return storage.MapQuotaError(err)
}

// GetMetadata retrieves a document's metadata.
func (s *Store) GetMetadata(ctx context.Context, id string) (*core.DocumentMetadata, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT metadata FROM documents WHERE id = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return storage.UnmarshalMetadata(data)
}

// ListMetadata returns every document's metadata ordered by id.
func (s *Store) ListMetadata(ctx context.Context) ([]*core.DocumentMetadata, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT metadata FROM documents")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*core.DocumentMetadata
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		meta, err := storage.UnmarshalMetadata(data)
		if err != nil {
			return nil, err
		}
		out = append(out, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// SQLite collation may differ from Go string order.
	storage.SortMetadata(out)
	return out, nil
}

// PutContent stores a content record.
func (s *Store) PutContent(ctx context.Context, id string, contentType core.ContentType, data []byte) error {
	if id == "" {
		return core.ErrEmptyDocumentID
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	if data == nil {
		data = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contents (document_id, content_type, data) VALUES (?, ?, ?)
		ON CONFLICT(document_id, content_type) DO UPDATE SET data = excluded.data
	`, id, string(contentType), data)
	return storage.MapQuotaError(err)
}

// GetContent retrieves a content record.
func (s *Store) GetContent(ctx context.Context, id string, contentType core.ContentType) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM contents WHERE document_id = ? AND content_type = ?",
		id, string(contentType)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return data, err
}

// PutChunks stores chunk records after checking them against the canonical text.
func (s *Store) PutChunks(ctx context.Context, id string, chunks ...*core.Chunk) error {
	return s.writeChunks(ctx, id, chunks, false)
}

// ReplaceChunks removes every chunk of id and stores chunks in one transaction.
func (s *Store) ReplaceChunks(ctx context.Context, id string, chunks []*core.Chunk) error {
	return s.writeChunks(ctx, id, chunks, true)
}

func (s *Store) writeChunks(ctx context.Context, id string, chunks []*core.Chunk, replace bool) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var textLen int
		err := tx.QueryRowContext(ctx,
			"SELECT length(data) FROM contents WHERE document_id = ? AND content_type = ?",
			id, string(core.ContentTypeText)).Scan(&textLen)
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrMissingText
		}
		if err != nil {
			return err
		}
		if err := storage.CheckChunks(id, textLen, chunks); err != nil {
			return err
		}
		if replace {
			if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", id); err != nil {
				return err
			}
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chunks (document_id, chunk_index, record) VALUES (?, ?, ?)
			ON CONFLICT(document_id, chunk_index) DO UPDATE SET record = excluded.record
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, c := range chunks {
			if _, err := stmt.ExecContext(ctx, id, c.ChunkIndex, storage.MarshalChunk(c)); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetChunksForDocument returns the chunks of id with text sliced from the
// canonical text.
func (s *Store) GetChunksForDocument(ctx context.Context, id string) ([]*core.Chunk, error) {
	chunks := []*core.Chunk{}
	var text []byte
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			"SELECT data FROM contents WHERE document_id = ? AND content_type = ?",
			id, string(core.ContentTypeText)).Scan(&text)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}

		rows, err := tx.QueryContext(ctx,
			"SELECT record FROM chunks WHERE document_id = ? ORDER BY chunk_index", id)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var data []byte
			if err := rows.Scan(&data); err != nil {
				return err
			}
			c, err := storage.UnmarshalChunk(id, data)
			if err != nil {
				return err
			}
			chunks = append(chunks, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return storage.AttachChunkText(string(text), chunks), nil
}

// DeleteDocument removes all records of id in a single transaction.
// Orphaned content and chunks without metadata are removed as well, but
// ErrNotFound is still reported.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	var removed int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
		if err != nil {
			return err
		}
		if removed, err = res.RowsAffected(); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM contents WHERE document_id = ?", id); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", id)
		return err
	})
	if err != nil {
		return err
	}
	if removed == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// StorageStats sums the at-rest bytes of every document.
func (s *Store) StorageStats(ctx context.Context) (*core.StorageStats, error) {
	docs := map[string]*core.DocumentStorage{}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, "SELECT id FROM documents")
		if err != nil {
			return err
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			docs[id] = &core.DocumentStorage{DocumentID: id}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		rows, err = tx.QueryContext(ctx, "SELECT document_id, content_type, length(data) FROM contents")
		if err != nil {
			return err
		}
		for rows.Next() {
			var id, contentType string
			var size int64
			if err := rows.Scan(&id, &contentType, &size); err != nil {
				rows.Close()
				return err
			}
			ds, ok := docs[id]
			if !ok {
				continue
			}
			switch core.ContentType(contentType) {
			case core.ContentTypeText:
				ds.TextBytes += size
			case core.ContentTypePages:
				ds.PageBytes += size
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		rows, err = tx.QueryContext(ctx, "SELECT document_id, record FROM chunks")
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			var data []byte
			if err := rows.Scan(&id, &data); err != nil {
				return err
			}
			if ds, ok := docs[id]; ok {
				if err := storage.AccountChunk(ds, data); err != nil {
					return err
				}
			}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	out := make([]core.DocumentStorage, 0, len(docs))
	for _, ds := range docs {
		out = append(out, *ds)
	}
	return storage.SumStats(out), nil
}
