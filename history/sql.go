package history

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/rushteam/reckit/core"
)

// 支持的驱动
const (
	DriverSQLite   = "sqlite"   // modernc.org/sqlite
	DriverPostgres = "postgres" // github.com/lib/pq
)

// DefaultTable 观看记录表名
const DefaultTable = "histories"

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLSource 从关系库读取观看历史。
//
// 表结构：
//
//	histories(group_id TEXT, watched_movie TEXT, created_at TIMESTAMP)
//
// 调用方负责导入驱动并打开 *sql.DB。
type SQLSource struct {
	db     *sql.DB
	driver string
	table  string
}

// NewSQLSource 创建历史读取器
func NewSQLSource(db *sql.DB, driver, table string) (*SQLSource, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, core.NewDomainError(core.ModuleHistory, core.ErrorCodeNotSupported, "history: unsupported driver "+driver)
	}
	if table == "" {
		table = DefaultTable
	}
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("history: invalid table name %q", table)
	}
	return &SQLSource{db: db, driver: driver, table: table}, nil
}

func (s *SQLSource) placeholder(n int) string {
	if s.driver == DriverPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// EnsureSchema 建表和索引（幂等）
func (s *SQLSource) EnsureSchema(ctx context.Context) error {
	ts := "TIMESTAMP"
	if s.driver == DriverPostgres {
		ts = "TIMESTAMPTZ"
	}
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			group_id TEXT NOT NULL,
			watched_movie TEXT NOT NULL,
			created_at %s NOT NULL
		)`, s.table, ts),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_group_created ON %s (group_id, created_at DESC)`, s.table, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return unavailable("history: ensure schema", err)
		}
	}
	return nil
}

// Record 写入一条观看记录
func (s *SQLSource) Record(ctx context.Context, groupID, itemID string, at time.Time) error {
	stmt := fmt.Sprintf(`INSERT INTO %s (group_id, watched_movie, created_at) VALUES (%s, %s, %s)`,
		s.table, s.placeholder(1), s.placeholder(2), s.placeholder(3))
	if _, err := s.db.ExecContext(ctx, stmt, groupID, itemID, at.UTC()); err != nil {
		return unavailable("history: insert", err)
	}
	return nil
}

// Recent 按 created_at 倒序扫描，直到收集到 k 个不同物品。
func (s *SQLSource) Recent(ctx context.Context, groupID string, k int) ([]string, error) {
	query := fmt.Sprintf(`SELECT watched_movie FROM %s WHERE group_id = %s ORDER BY created_at DESC`,
		s.table, s.placeholder(1))

	rows, err := s.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, unavailable("history: query", err)
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	out := make([]string, 0, capFor(k, DefaultWindow))
	for rows.Next() {
		var id sql.NullString
		if err := rows.Scan(&id); err != nil {
			return nil, unavailable("history: scan", err)
		}
		if !id.Valid || id.String == "" {
			continue
		}
		if _, ok := seen[id.String]; ok {
			continue
		}
		seen[id.String] = struct{}{}
		out = append(out, id.String)
		if k > 0 && len(out) >= k {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("history: rows", err)
	}
	return out, nil
}

func unavailable(msg string, err error) error {
	return core.WrapDomainError(core.ModuleHistory, core.ErrorCodeUnavailable, msg, err)
}

var _ Source = (*SQLSource)(nil)
