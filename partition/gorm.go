package partition

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ceyewan/ticketing/clog"
	"github.com/ceyewan/ticketing/connector"
	"github.com/ceyewan/ticketing/db"
	"github.com/ceyewan/ticketing/xerrors"
)

var currentColumn = clause.Column{Name: "current"}

// GormStore 基于关系型数据库的分区存储
//
// Claim 在事务中以 SELECT ... FOR UPDATE 锁定分区行，再执行带条件的自增。
// SQLite 不支持行锁，依赖单连接串行化事务。
type GormStore struct {
	db          db.DB
	logger      clog.Logger
	lockTimeout time.Duration
}

// NewGormStore 创建关系型分区存储
func NewGormStore(database db.DB, opts ...Option) (*GormStore, error) {
	if database == nil {
		return nil, xerrors.Wrap(ErrNilClient, "db is nil")
	}
	o := applyOptions(opts)
	return &GormStore{
		db:          database,
		logger:      o.logger.With(clog.String("backend", database.Driver())),
		lockTimeout: o.lockTimeout,
	}, nil
}

// Migrate 创建分区表
func (s *GormStore) Migrate(ctx context.Context) error {
	if err := s.db.DB(ctx).AutoMigrate(&Partition{}); err != nil {
		return xerrors.Wrap(classify(err), "migrate partition table")
	}
	return nil
}

func (s *GormStore) Claim(ctx context.Context, id int64) (int64, error) {
	var value int64
	err := s.db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		restore, err := s.setLockTimeout(tx)
		if err != nil {
			return err
		}
		defer restore()

		var p Partition
		query := tx
		if s.db.Driver() != connector.DriverSQLite {
			query = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := query.Where("id = ?", id).Take(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return xerrors.Wrapf(ErrPartitionNotFound, "id %d", id)
			}
			return err
		}
		if p.Exhausted() {
			s.logger.Debug("partition exhausted", clog.Int64("partition_id", id))
			return xerrors.Wrapf(ErrExhaustedPartition, "id %d", id)
		}

		result := tx.Model(&Partition{}).
			Where("id = ?", id).
			Where(clause.Eq{Column: currentColumn, Value: p.Current}).
			Update("current", gorm.Expr("? + 1", currentColumn))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != 1 {
			return xerrors.Wrapf(ErrConflict, "id %d moved past %d", id, p.Current)
		}
		value = p.Current
		return nil
	})
	if err != nil {
		return 0, classify(err)
	}
	return value, nil
}

// setLockTimeout 限制当前事务的行锁等待时间，restore 需在事务结束前调用
//
// PostgreSQL 用 SET LOCAL，随事务结束失效。MySQL 只有会话级的 innodb_lock_wait_timeout，
// 修改会留在连接池的连接上，因此先读出原值，restore 时写回。
func (s *GormStore) setLockTimeout(tx *gorm.DB) (restore func(), err error) {
	restore = func() {}
	switch s.db.Driver() {
	case connector.DriverPostgres:
		return restore, tx.Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())).Error
	case connector.DriverMySQL:
		var prev int64
		if err := tx.Raw("SELECT @@SESSION.innodb_lock_wait_timeout").Scan(&prev).Error; err != nil {
			return restore, err
		}
		// 以秒为单位，最小 1
		secs := max(int64(math.Ceil(s.lockTimeout.Seconds())), 1)
		if secs == prev {
			return restore, nil
		}
		if err := tx.Exec(fmt.Sprintf("SET SESSION innodb_lock_wait_timeout = %d", secs)).Error; err != nil {
			return restore, err
		}
		return func() {
			if err := tx.Exec(fmt.Sprintf("SET SESSION innodb_lock_wait_timeout = %d", prev)).Error; err != nil {
				s.logger.Warn("restore innodb_lock_wait_timeout failed", clog.Int64("value", prev), clog.Error(err))
			}
		}, nil
	default:
		return restore, nil
	}
}

func (s *GormStore) ListAvailable(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.db.DB(ctx).Model(&Partition{}).
		Where(clause.Lt{Column: currentColumn, Value: clause.Column{Name: "range_end"}}).
		Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, xerrors.Wrap(classify(err), "list available partitions")
	}
	return ids, nil
}

func (s *GormStore) Get(ctx context.Context, id int64) (*Partition, error) {
	var p Partition
	if err := s.db.DB(ctx).Where("id = ?", id).Take(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerrors.Wrapf(ErrPartitionNotFound, "id %d", id)
		}
		return nil, xerrors.Wrapf(classify(err), "get partition %d", id)
	}
	return &p, nil
}

func (s *GormStore) Insert(ctx context.Context, partitions []Partition) error {
	if len(partitions) == 0 {
		return nil
	}
	err := s.db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		return tx.Create(&partitions).Error
	})
	if err != nil {
		return xerrors.Wrap(classify(err), "insert partitions")
	}
	return nil
}

func (s *GormStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.DB(ctx).Model(&Partition{}).Count(&n).Error; err != nil {
		return 0, xerrors.Wrap(classify(err), "count partitions")
	}
	return n, nil
}

func (s *GormStore) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	var batch []Partition
	err := s.db.DB(ctx).Model(&Partition{}).Order("id").
		FindInBatches(&batch, 1000, func(_ *gorm.DB, _ int) error {
			for i := range batch {
				stats.add(&batch[i])
			}
			return nil
		}).Error
	if err != nil {
		return Stats{}, xerrors.Wrap(classify(err), "collect partition stats")
	}
	return stats, nil
}
