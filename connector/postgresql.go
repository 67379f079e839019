package connector

import (
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/ceyewan/ticketing/xerrors"
)

// NewPostgreSQL 创建 PostgreSQL 连接器（pgx 驱动），实际连接在 Connect 时建立
func NewPostgreSQL(cfg *PostgreSQLConfig, opts ...Option) (DatabaseConnector, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(ErrConfig, "postgresql config is nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	dsn := cfg.dsn()
	return newDatabaseConnector(cfg.Name, DriverPostgres, cfg.PoolConfig, func() gorm.Dialector {
		return postgres.Open(dsn)
	}, applyOptions(opts...)), nil
}
