package chunkstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/hupe1980/ragmesh/core"
	"github.com/hupe1980/ragmesh/embedding"
	"github.com/hupe1980/ragmesh/logging"
)

// DBFileName is the file created inside the store directory.
const DBFileName = "chunks.db"

// SQLiteStore is a durable ChunkStore backed by a single SQLite file. Vectors
// are stored next to the chunk text as little-endian float32 BLOBs and ranked
// in process after filtering by collection and subject key.
type SQLiteStore struct {
	db   *sql.DB
	path string
	opts Options
}

// NewSQLiteStore opens (creating if necessary) <dir>/chunks.db.
func NewSQLiteStore(dir string, optFns ...func(o *Options)) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	path := filepath.Join(dir, DBFileName)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open chunk database: %w", err)
	}
	// one writer at a time keeps SQLite free of SQLITE_BUSY
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, path: path, opts: buildOptions(optFns)}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate chunk database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA busy_timeout=5000;
		CREATE TABLE IF NOT EXISTS chunks (
			collection     TEXT NOT NULL,
			id             TEXT NOT NULL,
			text           TEXT NOT NULL,
			subject_key    TEXT NOT NULL,
			source_title   TEXT NOT NULL,
			sequence_index INTEGER NOT NULL,
			embedding      BLOB NOT NULL,
			updated_at     TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (collection, id)
		);
		CREATE INDEX IF NOT EXISTS idx_chunks_subject ON chunks(collection, subject_key);
	`)
	return err
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

// Add upserts chunks by id in a single transaction.
func (s *SQLiteStore) Add(ctx context.Context, chunks []core.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := validateChunks(chunks); err != nil {
		return &core.StoreWriteError{Op: "add", Err: err}
	}
	vecs, err := embedChunks(ctx, s.opts.Embedder, chunks)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &core.StoreWriteError{Op: "begin", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (collection, id, text, subject_key, source_title, sequence_index, embedding, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			text = excluded.text,
			subject_key = excluded.subject_key,
			source_title = excluded.source_title,
			sequence_index = excluded.sequence_index,
			embedding = excluded.embedding,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return &core.StoreWriteError{Op: "prepare", Err: err}
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, c := range chunks {
		if _, err := stmt.ExecContext(ctx, s.opts.Collection, c.ID, c.Text, c.SubjectKey, c.SourceTitle,
			c.SequenceIndex, encodeVector(vecs[i]), now); err != nil {
			return &core.StoreWriteError{Op: "upsert", Err: fmt.Errorf("chunk %s: %w", c.ID, err)}
		}
	}
	if err := tx.Commit(); err != nil {
		return &core.StoreWriteError{Op: "commit", Err: err}
	}
	return nil
}

// Query returns up to limit chunks of subjectKey ranked by similarity to text.
func (s *SQLiteStore) Query(ctx context.Context, text, subjectKey string, limit int) ([]core.ScoredChunk, error) {
	if limit < 1 {
		return nil, ErrInvalidLimit
	}
	start := time.Now()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, text, subject_key, source_title, sequence_index, embedding
		FROM chunks WHERE collection = ? AND subject_key = ?
	`, s.opts.Collection, subjectKey)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	type candidate struct {
		chunk  core.Chunk
		vector []float32
	}
	var candidates []candidate
	for rows.Next() {
		var (
			c    core.Chunk
			blob []byte
		)
		if err := rows.Scan(&c.ID, &c.Text, &c.SubjectKey, &c.SourceTitle, &c.SequenceIndex, &blob); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		candidates = append(candidates, candidate{chunk: c, vector: decodeVector(blob)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	if len(candidates) == 0 {
		logging.LogStoreQuery(s.opts.Logger, subjectKey, limit, 0, time.Since(start))
		return []core.ScoredChunk{}, nil
	}

	qv, err := embedQuery(ctx, s.opts.Embedder, text)
	if err != nil {
		return nil, err
	}
	scored := make([]core.ScoredChunk, len(candidates))
	for i, c := range candidates {
		scored[i] = core.ScoredChunk{Chunk: c.chunk, Score: embedding.Cosine(qv, c.vector)}
	}
	out := rank(scored, limit)
	logging.LogStoreQuery(s.opts.Logger, subjectKey, limit, len(out), time.Since(start))
	return out, nil
}

// Count returns the number of chunks stored for subjectKey.
func (s *SQLiteStore) Count(ctx context.Context, subjectKey string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chunks WHERE collection = ? AND subject_key = ?`,
		s.opts.Collection, subjectKey).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}
