package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"
	"github.com/xxxsen/medrag/internal/model"
	"github.com/xxxsen/medrag/internal/pkg/dbutil"
)

const defaultPGVectorTable = "rag_vectors"

type pgvectorConfig struct {
	Table string `json:"table"`
}

// pgvectorBackend stores records in the rag_vectors table created by the
// database migrations. Scores are 1 - cosine distance.
type pgvectorBackend struct {
	db    *sqlx.DB
	table string
}

func init() {
	Register("pgvector", createPGVectorBackend)
}

func createPGVectorBackend(args interface{}, deps Deps) (Backend, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("pgvector backend requires database config")
	}
	cfg := &pgvectorConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.Table == "" {
		cfg.Table = defaultPGVectorTable
	}
	return &pgvectorBackend{db: sqlx.NewDb(deps.DB, "postgres"), table: cfg.Table}, nil
}

// Upsert replaces the batch inside one transaction: existing ids are
// removed and the new rows inserted.
func (p *pgvectorBackend) Upsert(ctx context.Context, records []model.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	ids := make([]interface{}, 0, len(records))
	rows := make([]map[string]interface{}, 0, len(records))
	now := time.Now().Unix()
	for _, r := range records {
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata of %s: %w", r.ID, err)
		}
		ids = append(ids, r.ID)
		rows = append(rows, map[string]interface{}{
			"id":        r.ID,
			"title":     r.Metadata.Title,
			"embedding": pgvector.NewVector(r.Values),
			"metadata":  string(meta),
			"mtime":     now,
		})
	}
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	sqlStr, args, err := builder.BuildDelete(p.table, map[string]interface{}{"id in": ids})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return err
	}
	sqlStr, args, err = builder.BuildInsert(p.table, rows)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return err
	}
	return tx.Commit()
}

type pgvectorRow struct {
	Metadata []byte  `db:"metadata"`
	Score    float64 `db:"score"`
}

func (p *pgvectorBackend) Query(ctx context.Context, vector []float32, topK int) ([]model.VectorMatch, error) {
	query := fmt.Sprintf(`
		SELECT metadata, 1 - (embedding <=> $1) AS score
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2
	`, p.table)
	var rows []pgvectorRow
	if err := p.db.SelectContext(ctx, &rows, query, pgvector.NewVector(vector), topK); err != nil {
		return nil, err
	}
	out := make([]model.VectorMatch, 0, len(rows))
	for _, row := range rows {
		var md model.RecordMetadata
		if err := json.Unmarshal(row.Metadata, &md); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		out = append(out, model.VectorMatch{Score: row.Score, Metadata: md})
	}
	return out, nil
}

func (p *pgvectorBackend) DeleteByTitle(ctx context.Context, title string) error {
	sqlStr, args, err := builder.BuildDelete(p.table, map[string]interface{}{"title": title})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = p.db.ExecContext(ctx, sqlStr, args...)
	return err
}
