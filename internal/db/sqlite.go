package db

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/pysugar/service-interactor/internal/db/models"
	"github.com/pysugar/service-interactor/internal/logging"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options configures the database connection.
type Options struct {
	Driver string
	DSN    string
	// Verbose enables SQL statement logging.
	Verbose bool
}

// AllModels lists every table managed by AutoMigrate, in dependency order.
func AllModels() []any {
	return []any{
		&models.User{},
		&models.SocialApp{},
		&models.SocialAccount{},
		&models.SocialToken{},
		&models.Scope{},
		&models.GrantedScope{},
		&models.LinkedService{},
		&models.Setting{},
	}
}

// Open connects to the configured database without migrating it.
func Open(opts Options) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch opts.Driver {
	case "", DriverSQLite:
		dialector = sqlite.Open(opts.DSN)
	case DriverPostgres:
		dialector = postgres.Open(opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}

	level := logger.Warn
	if opts.Verbose {
		level = logger.Info
	}
	return gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
}

// InitDB opens the database, runs migrations and loads the scope catalogue
// the first time the schema is created.
func InitDB(opts Options) (*gorm.DB, error) {
	db, err := Open(opts)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates all tables and seeds the scope catalogue once.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	seeded, err := ensureScopeCatalogue(db)
	if err != nil {
		return fmt.Errorf("seed scope catalogue: %w", err)
	}
	if seeded > 0 {
		logging.Named("db").Info("loaded scope catalogue", zap.Int("scopes", seeded))
	}
	return nil
}
