package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/hoppin/models"
)

// InitDatabase connects to the SQL database selected by cfg.Store.Driver and
// migrates the documents table.
func InitDatabase(cfg AppConfig) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	// Per-statement SQL only shows up at debug level.
	gLogger := logger.New(
		log.New(os.Stdout, "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             2 * time.Second,
			LogLevel:                  toGormLogLevel(cfg.Log.Level),
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                                   gLogger,
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	// Surface network and auth problems at startup instead of on the first visit.
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("database ping: %w", err)
	}

	if err := db.AutoMigrate(&models.Document{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate documents: %w", err)
	}
	return db, nil
}

// DSN builds the connection string for the configured SQL driver. DATABASE_URI
// wins over the individual DB_* settings.
func DSN(cfg AppConfig) string {
	d := cfg.Database
	if d.URI != "" {
		return d.URI
	}
	if cfg.Store.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
			d.Host, d.Port, d.User, d.Password, d.Name)
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

func dialectorFor(cfg AppConfig) (gorm.Dialector, error) {
	switch cfg.Store.Driver {
	case "mysql":
		return mysql.Open(DSN(cfg)), nil
	case "postgres":
		return postgres.Open(DSN(cfg)), nil
	default:
		return nil, fmt.Errorf("store driver %q is not a SQL driver", cfg.Store.Driver)
	}
}

// toGormLogLevel maps the application log level to GORM's logger level.
func toGormLogLevel(level string) logger.LogLevel {
	switch level {
	case "debug":
		return logger.Info
	case "error":
		return logger.Error
	case "silent":
		return logger.Silent
	default:
		return logger.Warn
	}
}
