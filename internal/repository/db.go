package repository

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kitchenops/sessionbridge/internal/domain"
)

// OpenDatabase connects the directory database and migrates its two tables.
// An empty DSN with the sqlite driver opens a shared in-memory database,
// which is the local-development default.
func OpenDatabase(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		if dsn == "" {
			dsn = "file::memory:?cache=shared"
		}
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open directory database: %w", err)
	}
	if err := db.AutoMigrate(&domain.OrgMembership{}, &domain.Profile{}); err != nil {
		return nil, fmt.Errorf("migrate directory schema: %w", err)
	}
	return db, nil
}
