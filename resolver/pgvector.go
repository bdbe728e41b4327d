package resolver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/pgvector/pgvector-go"
	"github.com/rushteam/reckit/core"
)

// DefaultPGTable 是 PGCache 的默认表名
const DefaultPGTable = "movie_features"

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PGCache 是基于 Postgres + pgvector 的 Cache。
// 调用方负责用 lib/pq 打开 *sql.DB（import _ "github.com/lib/pq"）。
//
// 向量以 float32 存储。
type PGCache struct {
	db    *sql.DB
	table string
	dim   int
}

// NewPGCache 创建缓存；dim 为向量维度，用于建表。
func NewPGCache(db *sql.DB, table string, dim int) (*PGCache, error) {
	if table == "" {
		table = DefaultPGTable
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("pgcache: invalid table name %q", table)
	}
	if dim <= 0 {
		return nil, errors.New("pgcache: dimension must be positive")
	}
	return &PGCache{db: db, table: table, dim: dim}, nil
}

func (c *PGCache) Name() string { return "pgvector:" + c.table }

// EnsureSchema 创建 vector 扩展和缓存表（幂等）。
func (c *PGCache) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			embedding vector(%d) NOT NULL,
			language TEXT NOT NULL DEFAULT 'Unknown',
			decade INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, c.table, c.dim),
	}
	for _, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return core.WrapDomainError(core.ModuleStore, core.ErrorCodeUnavailable, "pgcache: ensure schema", err)
		}
	}
	return nil
}

func (c *PGCache) Get(ctx context.Context, id string) (*CacheEntry, error) {
	query := fmt.Sprintf(`SELECT embedding, language, decade FROM %s WHERE id = $1`, c.table)

	var (
		vec   pgvector.Vector
		entry = CacheEntry{ID: id}
	)
	err := c.db.QueryRowContext(ctx, query, id).Scan(&vec, &entry.Language, &entry.Decade)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrStoreNotFound
	}
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleStore, core.ErrorCodeUnavailable, "pgcache: get "+id, err)
	}
	entry.Embedding = toFloat64(vec.Slice())
	return &entry, nil
}

func (c *PGCache) Put(ctx context.Context, entry *CacheEntry) error {
	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, embedding, language, decade, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			language = EXCLUDED.language,
			decade = EXCLUDED.decade,
			updated_at = now()
	`, c.table)

	vec := pgvector.NewVector(toFloat32(entry.Embedding))
	if _, err := c.db.ExecContext(ctx, stmt, entry.ID, vec, entry.Language, entry.Decade); err != nil {
		return core.WrapDomainError(core.ModuleStore, core.ErrorCodeUnavailable, "pgcache: put "+entry.ID, err)
	}
	return nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

var _ Cache = (*PGCache)(nil)
