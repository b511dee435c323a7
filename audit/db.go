package audit

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Espresso-Aficionados/sprobot/config"
)

// OpenDatabase opens the audit database described by cfg.
func OpenDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dialect, dsn, err := cfg.Target()
	if err != nil {
		return nil, err
	}

	var dialector gorm.Dialector
	switch dialect {
	case config.DialectPostgres:
		dialector = postgres.Open(dsn)
	case config.DialectMySQL:
		dialector = mysql.Open(dsn)
	case config.DialectSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("audit: no driver for %s", dialect)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
		Logger:  logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("audit: open %s database: %w", dialect, err)
	}
	return db, nil
}
