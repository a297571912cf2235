package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"github.com/codexlotus/lotusrag/internal/vector"
)

func init() {
	// Register sqlite-vec so vec_distance_cosine is available on every connection
	sqlite_vec.Auto()
}

const (
	// DefaultDirName is the per-project directory holding the index.
	DefaultDirName = ".codexlotus"
	// DBFileName is the index database file inside DefaultDirName.
	DBFileName = "index.db"
)

// Option configures a SQLiteStore.
type Option func(*options)

type options struct {
	dirName    string
	duplicates DuplicatePathPolicy
}

// WithDirName overrides the per-project index directory name.
func WithDirName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.dirName = name
		}
	}
}

// WithDuplicatePathPolicy sets how ReplaceProjectIndex treats repeated paths.
func WithDuplicatePathPolicy(p DuplicatePathPolicy) Option {
	return func(o *options) {
		o.duplicates = p
	}
}

// SQLiteStore implements the Store interface using SQLite and sqlite-vec.
type SQLiteStore struct {
	db         *sql.DB
	path       string
	duplicates DuplicatePathPolicy
	locks      projectLocks

	// beforeInsert, when set, runs before each chunk insert with the number
	// of chunks already written in the current replace.
	beforeInsert func(inserted int) error
}

// IndexPath returns the database path used for a project root.
func IndexPath(projectRoot, dirName string) string {
	if dirName == "" {
		dirName = DefaultDirName
	}
	return filepath.Join(projectRoot, dirName, DBFileName)
}

// Open opens or creates the index database inside projectRoot.
func Open(projectRoot string, opts ...Option) (*SQLiteStore, error) {
	o := applyOptions(opts)
	return openPath(IndexPath(projectRoot, o.dirName), o)
}

// OpenPath opens or creates an index database at an explicit path.
func OpenPath(dbPath string, opts ...Option) (*SQLiteStore, error) {
	return openPath(dbPath, applyOptions(opts))
}

func applyOptions(opts []Option) options {
	o := options{dirName: DefaultDirName, duplicates: DuplicatePathsAsChunks}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func openPath(dbPath string, o options) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create index directory: %w", ErrStorageUnavailable, err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", ErrStorageUnavailable, err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to initialize schema: %w", ErrStorageUnavailable, err)
	}

	log.Debug("Opened index store", "path", dbPath)

	return &SQLiteStore{
		db:         db,
		path:       dbPath,
		duplicates: o.duplicates,
		locks:      projectLocks{locks: make(map[string]*sync.Mutex)},
	}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// fileBatch is the set of chunks destined for one file row.
type fileBatch struct {
	relativePath string
	chunks       []FileChunkInput
}

// groupByPath applies the duplicate-path policy, keeping files in order of
// first appearance.
func groupByPath(inputs []FileChunkInput, policy DuplicatePathPolicy) ([]fileBatch, error) {
	var files []fileBatch
	index := make(map[string]int)

	for _, in := range inputs {
		i, seen := index[in.RelativePath]
		if !seen {
			index[in.RelativePath] = len(files)
			files = append(files, fileBatch{relativePath: in.RelativePath, chunks: []FileChunkInput{in}})
			continue
		}

		if in.Part > 0 {
			files[i].chunks = append(files[i].chunks, in)
			continue
		}

		switch policy {
		case DuplicatePathsReject:
			return nil, fmt.Errorf("%w: %w: %s", ErrStorageWrite, ErrDuplicatePath, in.RelativePath)
		case DuplicatePathsLastWins:
			files[i].chunks = []FileChunkInput{in}
		default:
			files[i].chunks = append(files[i].chunks, in)
		}
	}

	return files, nil
}

// contentHash prefers the hash supplied with the file's document. Several
// documents merged under one path fall back to hashing the chunk text.
func contentHash(chunks []FileChunkInput) string {
	var supplied []string
	for _, c := range chunks {
		if c.Part == 0 && c.ContentHash != "" {
			supplied = append(supplied, c.ContentHash)
		}
	}
	if len(supplied) == 1 {
		return supplied[0]
	}

	h := xxhash.New()
	for _, c := range chunks {
		h.WriteString(c.Content)
	}
	return fmt.Sprintf("xxh64:%016x", h.Sum64())
}

// ReplaceProjectIndex atomically swaps every file, chunk and embedding of
// projectRoot for the given batch. Readers see either the old or the new
// set. On any failure the transaction is rolled back and ErrStorageWrite is
// returned.
func (s *SQLiteStore) ReplaceProjectIndex(ctx context.Context, projectRoot string, inputs []FileChunkInput) error {
	files, err := groupByPath(inputs, s.duplicates)
	if err != nil {
		return err
	}

	unlock := s.locks.lock(projectRoot)
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %w", ErrStorageWrite, err)
	}
	defer tx.Rollback()

	// Cascades to chunks and embeddings
	if _, err := tx.ExecContext(ctx, "DELETE FROM files WHERE project_root = ?", projectRoot); err != nil {
		return fmt.Errorf("%w: failed to delete previous index: %w", ErrStorageWrite, err)
	}

	fileStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO files (project_root, relative_path, content_hash, indexed_at)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("%w: failed to prepare file insert: %w", ErrStorageWrite, err)
	}
	defer fileStmt.Close()

	chunkStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (file_id, chunk_index, content)
		VALUES (?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("%w: failed to prepare chunk insert: %w", ErrStorageWrite, err)
	}
	defer chunkStmt.Close()

	embeddingStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO embeddings (chunk_id, vector, dimensions)
		VALUES (?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("%w: failed to prepare embedding insert: %w", ErrStorageWrite, err)
	}
	defer embeddingStmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	inserted := 0

	for _, f := range files {
		result, err := fileStmt.ExecContext(ctx, projectRoot, f.relativePath, contentHash(f.chunks), now)
		if err != nil {
			return fmt.Errorf("%w: failed to insert file %s: %w", ErrStorageWrite, f.relativePath, err)
		}
		fileID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("%w: failed to get file ID: %w", ErrStorageWrite, err)
		}

		for i, chunk := range f.chunks {
			if s.beforeInsert != nil {
				if err := s.beforeInsert(inserted); err != nil {
					return fmt.Errorf("%w: %w", ErrStorageWrite, err)
				}
			}

			result, err := chunkStmt.ExecContext(ctx, fileID, i, chunk.Content)
			if err != nil {
				return fmt.Errorf("%w: failed to insert chunk %d of %s: %w", ErrStorageWrite, i, f.relativePath, err)
			}
			chunkID, err := result.LastInsertId()
			if err != nil {
				return fmt.Errorf("%w: failed to get chunk ID: %w", ErrStorageWrite, err)
			}

			if _, err := embeddingStmt.ExecContext(ctx, chunkID, vector.Encode(chunk.Embedding), len(chunk.Embedding)); err != nil {
				return fmt.Errorf("%w: failed to insert embedding for chunk %d of %s: %w", ErrStorageWrite, i, f.relativePath, err)
			}
			inserted++
		}
	}

	runID := uuid.NewString()
	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO index_runs (project_root, run_id, indexed_at, file_count, chunk_count)
		VALUES (?, ?, ?, ?, ?)
	`, projectRoot, runID, now, len(files), inserted)
	if err != nil {
		return fmt.Errorf("%w: failed to record index run: %w", ErrStorageWrite, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit: %w", ErrStorageWrite, err)
	}

	log.Debug("Replaced project index", "project", projectRoot, "files", len(files), "chunks", inserted, "run", runID)
	return nil
}

// ScanEmbeddings calls fn for every stored chunk of projectRoot in storage
// order. The scan runs as a single statement, so it sees one snapshot.
// Returning an error from fn stops the scan and returns that error.
func (s *SQLiteStore) ScanEmbeddings(ctx context.Context, projectRoot string, fn func(Candidate) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, f.relative_path, c.content, e.vector
		FROM embeddings e
		JOIN chunks c ON c.id = e.chunk_id
		JOIN files f ON f.id = c.file_id
		WHERE f.project_root = ?
		ORDER BY c.id
	`, projectRoot)
	if err != nil {
		return fmt.Errorf("%w: failed to scan embeddings: %w", ErrStorageRead, err)
	}
	defer rows.Close()

	for rows.Next() {
		var c Candidate
		var blob []byte
		if err := rows.Scan(&c.ChunkID, &c.RelativePath, &c.Content, &blob); err != nil {
			return fmt.Errorf("%w: failed to scan embedding row: %w", ErrStorageRead, err)
		}
		c.Embedding, err = vector.Decode(blob)
		if err != nil {
			return fmt.Errorf("%w: chunk %d: %w", ErrStorageRead, c.ChunkID, err)
		}
		if err := fn(c); err != nil {
			return err
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageRead, err)
	}
	return nil
}

// VecScores scores every chunk of projectRoot against query inside SQLite
// using sqlite-vec's vec_distance_cosine. Rows come back in storage order.
// Chunks whose dimensions differ from the query are not scored; their
// number is returned as skipped.
func (s *SQLiteStore) VecScores(ctx context.Context, projectRoot string, query []float32) ([]ScoredChunk, int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: failed to begin transaction: %w", ErrStorageRead, err)
	}
	defer tx.Rollback()

	var skipped int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM embeddings e
		JOIN chunks c ON c.id = e.chunk_id
		JOIN files f ON f.id = c.file_id
		WHERE f.project_root = ? AND e.dimensions != ?
	`, projectRoot, len(query)).Scan(&skipped)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: failed to count mismatched embeddings: %w", ErrStorageRead, err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT f.relative_path, c.content, vec_distance_cosine(e.vector, ?)
		FROM embeddings e
		JOIN chunks c ON c.id = e.chunk_id
		JOIN files f ON f.id = c.file_id
		WHERE f.project_root = ? AND e.dimensions = ?
		ORDER BY c.id
	`, vector.Encode(query), projectRoot, len(query))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: failed to score embeddings: %w", ErrStorageRead, err)
	}
	defer rows.Close()

	var results []ScoredChunk
	for rows.Next() {
		var r ScoredChunk
		// A zero-norm operand yields NaN, which SQLite returns as NULL
		var distance sql.NullFloat64
		if err := rows.Scan(&r.RelativePath, &r.Content, &distance); err != nil {
			return nil, 0, fmt.Errorf("%w: failed to scan scored row: %w", ErrStorageRead, err)
		}
		if distance.Valid && !math.IsNaN(distance.Float64) && !math.IsInf(distance.Float64, 0) {
			r.Score = float32(1 - distance.Float64)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrStorageRead, err)
	}

	return results, skipped, nil
}

// ChunkCount returns the number of chunks stored for projectRoot, 0 if it
// was never indexed.
func (s *SQLiteStore) ChunkCount(ctx context.Context, projectRoot string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM chunks c
		JOIN files f ON f.id = c.file_id
		WHERE f.project_root = ?
	`, projectRoot).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to count chunks: %w", ErrStorageRead, err)
	}
	return count, nil
}

// Stats returns counts and last-run metadata for projectRoot.
func (s *SQLiteStore) Stats(ctx context.Context, projectRoot string) (*ProjectStats, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to begin transaction: %w", ErrStorageRead, err)
	}
	defer tx.Rollback()

	stats := &ProjectStats{ProjectRoot: projectRoot}

	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT f.id), COUNT(c.id), COALESCE(MAX(e.dimensions), 0)
		FROM files f
		LEFT JOIN chunks c ON c.file_id = f.id
		LEFT JOIN embeddings e ON e.chunk_id = c.id
		WHERE f.project_root = ?
	`, projectRoot).Scan(&stats.FileCount, &stats.ChunkCount, &stats.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get counts: %w", ErrStorageRead, err)
	}
	stats.IsIndexed = stats.ChunkCount > 0

	var run IndexRun
	var indexedAt string
	err = tx.QueryRowContext(ctx, `
		SELECT run_id, indexed_at, file_count, chunk_count
		FROM index_runs WHERE project_root = ?
	`, projectRoot).Scan(&run.RunID, &indexedAt, &run.FileCount, &run.ChunkCount)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("%w: failed to get last index run: %w", ErrStorageRead, err)
	default:
		run.IndexedAt = parseIndexedAt(indexedAt)
		stats.LastRun = &run
	}

	return stats, nil
}

// ListFiles returns the indexed files of projectRoot ordered by path.
func (s *SQLiteStore) ListFiles(ctx context.Context, projectRoot string) ([]FileRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.relative_path, f.content_hash, f.indexed_at, COUNT(c.id)
		FROM files f
		LEFT JOIN chunks c ON c.file_id = f.id
		WHERE f.project_root = ?
		GROUP BY f.id
		ORDER BY f.relative_path
	`, projectRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list files: %w", ErrStorageRead, err)
	}
	defer rows.Close()

	var files []FileRecord
	for rows.Next() {
		var record FileRecord
		var indexedAt string
		if err := rows.Scan(&record.ID, &record.RelativePath, &record.ContentHash, &indexedAt, &record.ChunkCount); err != nil {
			return nil, fmt.Errorf("%w: failed to scan file: %w", ErrStorageRead, err)
		}
		record.IndexedAt = parseIndexedAt(indexedAt)
		files = append(files, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageRead, err)
	}
	return files, nil
}

// parseIndexedAt reads a stored RFC 3339 timestamp. Malformed values read as
// the zero time.
func parseIndexedAt(value string) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		log.Debug("Malformed indexed_at timestamp", "value", value, "error", err)
		return time.Time{}
	}
	return t
}

// projectLocks serializes writers per project root; different roots never
// share a mutex.
type projectLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (p *projectLocks) lock(projectRoot string) func() {
	p.mu.Lock()
	m, ok := p.locks[projectRoot]
	if !ok {
		m = &sync.Mutex{}
		p.locks[projectRoot] = m
	}
	p.mu.Unlock()

	m.Lock()
	return m.Unlock
}

var _ Store = (*SQLiteStore)(nil)
