// Package store persists users through gorm on sqlite, postgres, mysql or
// sqlserver.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	ErrUsernameTaken = errors.New("username already exists")
	ErrNotFound      = errors.New("user not found")
)

// Supported driver names.
const (
	DriverSQLite    = "sqlite"
	DriverPostgres  = "postgres"
	DriverMySQL     = "mysql"
	DriverSQLServer = "sqlserver"
)

// User is a registered account. Only the password hash is stored.
type User struct {
	gorm.Model
	Username     string `gorm:"uniqueIndex;size:80;not null"`
	PasswordHash string `gorm:"size:255;not null"`
}

// TableName overrides the table name.
func (User) TableName() string { return "users" }

// Store is the user repository.
type Store struct {
	db *gorm.DB
}

// DriverFromDSN infers a driver from a connection URL. Anything that is not
// a recognized URL is treated as a sqlite file path.
func DriverFromDSN(dsn string) string {
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return DriverPostgres
	case strings.HasPrefix(lower, "mysql://"):
		return DriverMySQL
	case strings.HasPrefix(lower, "sqlserver://"), strings.HasPrefix(lower, "mssql://"):
		return DriverSQLServer
	default:
		return DriverSQLite
	}
}

func dialector(driver, dsn string) (gorm.Dialector, error) {
	if driver == "" {
		driver = DriverFromDSN(dsn)
	}
	switch strings.ToLower(driver) {
	case DriverSQLite, "sqlite3":
		return sqlite.Open(strings.TrimPrefix(dsn, "sqlite://")), nil
	case DriverPostgres, "postgresql":
		return postgres.Open(dsn), nil
	case DriverMySQL:
		// go-sql-driver wants user:pass@tcp(host)/db, not a URL
		return mysql.Open(strings.TrimPrefix(dsn, "mysql://")), nil
	case DriverSQLServer, "mssql":
		return sqlserver.Open(strings.Replace(dsn, "mssql://", "sqlserver://", 1)), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
}

// Open connects and migrates the schema.
func Open(driver, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("empty database dsn")
	}
	d, err := dialector(driver, dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(d, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", driver, err)
	}
	return New(db)
}

// New wraps an open gorm handle and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&User{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Create inserts a user. A duplicate username returns ErrUsernameTaken,
// including one held by a soft-deleted row.
func (s *Store) Create(ctx context.Context, username, passwordHash string) (*User, error) {
	var u *User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Unscoped().Model(&User{}).Where("username = ?", username).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrUsernameTaken
		}
		u = &User{Username: username, PasswordHash: passwordHash}
		if err := tx.Create(u).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrUsernameTaken
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// FindByUsername returns the user or ErrNotFound.
func (s *Store) FindByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Count returns the number of users.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&User{}).Count(&n).Error
	return n, err
}

// Ping checks the underlying connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
