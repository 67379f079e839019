package connector

import (
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ceyewan/ticketing/xerrors"
)

// NewSQLite 创建 SQLite 连接器，实际连接在 Connect 时建立
//
// 默认单连接，保证事务串行执行。
func NewSQLite(cfg *SQLiteConfig, opts ...Option) (DatabaseConnector, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(ErrConfig, "sqlite config is nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	path := cfg.Path
	return newDatabaseConnector(cfg.Name, DriverSQLite, cfg.PoolConfig, func() gorm.Dialector {
		return sqlite.Open(path)
	}, applyOptions(opts...)), nil
}
