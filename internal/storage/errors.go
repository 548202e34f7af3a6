package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
)

// ErrWrite 存储写入失败,可整体重试
var ErrWrite = errors.New("storage write failed")

// WriteError 存储操作失败
type WriteError struct {
	Op       string
	SQLState string // postgres SQLSTATE 或 sqlite 错误码
	Err      error
}

func (e *WriteError) Error() string {
	if e.SQLState != "" {
		return fmt.Sprintf("%s 失败 (%s): %v", e.Op, e.SQLState, e.Err)
	}
	return fmt.Sprintf("%s 失败: %v", e.Op, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

func (e *WriteError) Is(target error) bool { return target == ErrWrite }

// writeError 包装数据库错误,上下文取消不视为写入失败
func writeError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return &WriteError{Op: op, SQLState: sqlState(err), Err: err}
}

func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return "sqlite:" + strconv.Itoa(liteErr.Code())
	}
	return ""
}
