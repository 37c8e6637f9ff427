package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"

	"retailledger/internal/store/migrations"
	"retailledger/internal/store/sqlstore"
)

// Dialect is PostgreSQL as seen by sqlstore.
var Dialect = sqlstore.Dialect{
	Name:                  "postgres",
	LockClause:            "FOR UPDATE",
	Positional:            true,
	IsUniqueViolation:     func(err error) bool { return hasCode(err, "23505") },
	IsForeignKeyViolation: func(err error) bool { return hasCode(err, "23503") },
	IsRetryable:           func(err error) bool { return hasCode(err, "40001", "40P01") },
}

type Options struct {
	// SkipMigrations leaves the schema alone, for databases managed elsewhere.
	SkipMigrations bool
}

// New connects, migrates and returns a serializable sqlstore.Store.
func New(ctx context.Context, databaseURL string, opts Options) (*sqlstore.Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if !opts.SkipMigrations {
		if err := Migrate(databaseURL); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return sqlstore.New(db, Dialect, sqlstore.WithIsolation(sql.LevelSerializable)), nil
}

// Migrate applies the embedded schema. golang-migrate's pgx driver registers
// under the pgx5 scheme.
func Migrate(databaseURL string) error {
	return migrations.UpURL(migrations.Postgres, migrateURL(databaseURL))
}

func migrateURL(databaseURL string) string {
	for _, scheme := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(databaseURL, scheme) {
			return "pgx5://" + strings.TrimPrefix(databaseURL, scheme)
		}
	}
	return databaseURL
}

func hasCode(err error, codes ...string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	for _, code := range codes {
		if pgErr.Code == code {
			return true
		}
	}
	return false
}

// Redact hides the credentials of a DSN for logging.
func Redact(databaseURL string) string {
	if i := strings.LastIndex(databaseURL, "@"); i >= 0 {
		return fmt.Sprintf("postgres://***%s", databaseURL[i:])
	}
	return "postgres"
}
