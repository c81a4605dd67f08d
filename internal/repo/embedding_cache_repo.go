package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/pgvector/pgvector-go"
	"github.com/xxxsen/medrag/internal/model"
)

// EmbeddingCacheStore persists embeddings keyed by model, task type and
// content hash.
type EmbeddingCacheStore interface {
	Get(ctx context.Context, modelName, taskType, contentHash string) ([]float32, bool, error)
	Save(ctx context.Context, item *model.EmbeddingCache) error
	DeleteBefore(ctx context.Context, cutoff int64) (int64, error)
}

// EmbeddingCacheRepo is the PostgreSQL (pgvector) store.
type EmbeddingCacheRepo struct {
	db *sql.DB
}

func NewEmbeddingCacheRepo(db *sql.DB) *EmbeddingCacheRepo {
	return &EmbeddingCacheRepo{db: db}
}

func (r *EmbeddingCacheRepo) Get(ctx context.Context, modelName, taskType, contentHash string) ([]float32, bool, error) {
	const query = `
		SELECT embedding
		FROM embedding_cache
		WHERE model_name = $1 AND task_type = $2 AND content_hash = $3
	`
	row := r.db.QueryRowContext(ctx, query, modelName, taskType, contentHash)
	var embedding pgvector.Vector
	if err := row.Scan(&embedding); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return embedding.Slice(), true, nil
}

func (r *EmbeddingCacheRepo) Save(ctx context.Context, item *model.EmbeddingCache) error {
	const query = `
		INSERT INTO embedding_cache (model_name, task_type, content_hash, embedding, ctime)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (model_name, task_type, content_hash) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			ctime = EXCLUDED.ctime
	`
	_, err := r.db.ExecContext(ctx, query,
		item.ModelName,
		item.TaskType,
		item.ContentHash,
		pgvector.NewVector(item.Embedding),
		item.Ctime,
	)
	return err
}

func (r *EmbeddingCacheRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	const query = `DELETE FROM embedding_cache WHERE ctime < $1`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SQLiteEmbeddingCacheRepo keeps vectors as JSON arrays in a local file.
type SQLiteEmbeddingCacheRepo struct {
	db *sql.DB
}

func NewSQLiteEmbeddingCacheRepo(db *sql.DB) *SQLiteEmbeddingCacheRepo {
	return &SQLiteEmbeddingCacheRepo{db: db}
}

func (r *SQLiteEmbeddingCacheRepo) Get(ctx context.Context, modelName, taskType, contentHash string) ([]float32, bool, error) {
	const query = `
		SELECT embedding
		FROM embedding_cache
		WHERE model_name = ? AND task_type = ? AND content_hash = ?
	`
	var raw string
	if err := r.db.QueryRowContext(ctx, query, modelName, taskType, contentHash).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var values []float32
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, false, err
	}
	return values, true, nil
}

func (r *SQLiteEmbeddingCacheRepo) Save(ctx context.Context, item *model.EmbeddingCache) error {
	const query = `
		INSERT INTO embedding_cache (model_name, task_type, content_hash, embedding, ctime)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (model_name, task_type, content_hash) DO UPDATE SET
			embedding = excluded.embedding,
			ctime = excluded.ctime
	`
	raw, err := json.Marshal(item.Embedding)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, query, item.ModelName, item.TaskType, item.ContentHash, string(raw), item.Ctime)
	return err
}

func (r *SQLiteEmbeddingCacheRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM embedding_cache WHERE ctime < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
