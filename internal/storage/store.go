package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Dialect 数据库方言
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DefaultDBFile sqlite 默认数据库文件名
const DefaultDBFile = "kinocrawl.db"

// DefaultBatchSize 单条批量语句的最大行数
const DefaultBatchSize = 200

// Config 存储配置
type Config struct {
	Driver         string `mapstructure:"driver"`   // sqlite | postgres
	DSN            string `mapstructure:"dsn"`      // postgres 连接串,或 sqlite 文件路径
	DataDir        string `mapstructure:"data_dir"` // sqlite 未指定 DSN 时的数据目录
	BatchSize      int    `mapstructure:"batch_size"`
	RetryAttempts  int    `mapstructure:"retry_attempts"`
	RetryInitialMs int    `mapstructure:"retry_initial_ms"`
}

// DefaultConfig 默认存储配置
func DefaultConfig() Config {
	return Config{
		Driver:         string(DialectSQLite),
		DataDir:        "data",
		BatchSize:      DefaultBatchSize,
		RetryAttempts:  3,
		RetryInitialMs: 2000,
	}
}

// RetryInitial 首次重试等待时间
func (c Config) RetryInitial() time.Duration {
	return time.Duration(c.RetryInitialMs) * time.Millisecond
}

// Validate 校验存储配置
func (c Config) Validate() error {
	switch Dialect(strings.ToLower(c.Driver)) {
	case DialectSQLite:
		if c.DSN == "" && c.DataDir == "" {
			return fmt.Errorf("sqlite 需要 dsn 或 data_dir")
		}
	case DialectPostgres:
		if c.DSN == "" {
			return fmt.Errorf("postgres 需要 dsn")
		}
	default:
		return fmt.Errorf("不支持的存储驱动: %s", c.Driver)
	}
	if c.BatchSize < 0 || c.RetryAttempts < 0 || c.RetryInitialMs < 0 {
		return fmt.Errorf("存储配置不能为负数")
	}
	return nil
}

// Store 基于 database/sql 的持久化存储
type Store struct {
	db        *sql.DB
	dialect   Dialect
	batchSize int
	now       func() time.Time
}

// Option Store 选项
type Option func(*Store)

// WithClock 替换写入 updated_at 使用的时钟
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open 打开数据库连接
func Open(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Store{
		dialect:   Dialect(strings.ToLower(cfg.Driver)),
		batchSize: cfg.BatchSize,
		now:       time.Now,
	}
	if s.batchSize <= 0 {
		s.batchSize = DefaultBatchSize
	}
	for _, opt := range opts {
		opt(s)
	}

	var err error
	switch s.dialect {
	case DialectSQLite:
		s.db, err = openSQLite(cfg)
	case DialectPostgres:
		s.db, err = sql.Open("pgx", cfg.DSN)
	}
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	if err := s.db.PingContext(ctx); err != nil {
		s.db.Close()
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	log.Debug().Str("driver", string(s.dialect)).Msg("数据库已连接")
	return s, nil
}

func openSQLite(cfg Config) (*sql.DB, error) {
	path := cfg.DSN
	if path == "" {
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("创建数据目录失败: %w", err)
		}
		path = filepath.Join(cfg.DataDir, DefaultDBFile)
	}

	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "busy_timeout(5000)")

	db, err := sql.Open("sqlite", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	// sqlite 只允许一个写连接
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, nil
}

// Dialect 返回当前方言
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx 在一个事务中执行 fn,fn 返回错误时回滚
func (s *Store) WithTx(ctx context.Context, fn func(Writer) error) error {
	var opts *sql.TxOptions
	if s.dialect == DialectPostgres {
		opts = &sql.TxOptions{Isolation: sql.LevelSerializable}
	}

	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return writeError("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	w := &txWriter{
		tx:        tx,
		dialect:   s.dialect,
		batchSize: s.batchSize,
		stamp:     s.now().UnixMilli(),
	}
	if err := fn(w); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return writeError("commit", err)
	}
	return nil
}

// rebind 将 ? 占位符转换为方言格式
func rebind(d Dialect, query string) string {
	if d != DialectPostgres {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// placeholders 生成 n 个以逗号分隔的 ?
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

func chunks[T any](rows []T, size int) [][]T {
	if size <= 0 {
		size = DefaultBatchSize
	}
	out := make([][]T, 0, (len(rows)+size-1)/size)
	for start := 0; start < len(rows); start += size {
		out = append(out, rows[start:min(start+size, len(rows))])
	}
	return out
}
