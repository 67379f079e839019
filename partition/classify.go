package partition

import (
	"context"
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ceyewan/ticketing/xerrors"
)

// PostgreSQL SQLSTATE
const (
	pgLockNotAvailable     = "55P03"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// MySQL 错误码
const (
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
)

// classify 将驱动错误归入分区错误
//
// 已归类的错误和 context 错误原样返回；锁等待超时、序列化失败与死锁归为 ErrConflict；
// 其余一律视为 ErrStorageUnavailable。
func classify(err error) error {
	if err == nil {
		return nil
	}
	if xerrors.IsAny(err, ErrExhaustedPartition, ErrPartitionNotFound, ErrConflict, ErrStorageUnavailable) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgLockNotAvailable, pgSerializationFailure, pgDeadlockDetected:
			return xerrors.Join(ErrConflict, err)
		}
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlLockWaitTimeout, mysqlDeadlock:
			return xerrors.Join(ErrConflict, err)
		}
	}

	return xerrors.Join(ErrStorageUnavailable, err)
}

// Retryable 错误是否可通过重试另一个分区解决
func Retryable(err error) bool {
	return xerrors.IsAny(err, ErrConflict, ErrExhaustedPartition, ErrPartitionNotFound)
}
