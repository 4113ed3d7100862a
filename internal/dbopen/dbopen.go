// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package dbopen locates and opens the settings database.
package dbopen

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cardinalhq/nodesettings/store/pgstore"
	"github.com/cardinalhq/nodesettings/store/pgstore/migrations"
)

// EnvPrefix is the prefix of the environment variables describing the
// settings database.
const EnvPrefix = "SETTINGSDB"

var ErrDatabaseNotConfigured = errors.New("database connection configuration is unavailable")

// GetDatabaseURLFromEnv builds a PostgreSQL URL from PREFIX_URL, or from
// PREFIX_HOST, PREFIX_DBNAME, PREFIX_PORT, PREFIX_USER, PREFIX_PASSWORD and
// PREFIX_SSLMODE. HOST and DBNAME are required when URL is unset.
func GetDatabaseURLFromEnv(prefix string) (string, error) {
	return databaseURL(prefix, os.Getenv)
}

func databaseURL(prefix string, getenv func(string) string) (string, error) {
	if !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}
	if urlStr := getenv(prefix + "URL"); urlStr != "" {
		return urlStr, nil
	}

	host := getenv(prefix + "HOST")
	dbname := getenv(prefix + "DBNAME")
	var missing []string
	if host == "" {
		missing = append(missing, prefix+"HOST")
	}
	if dbname == "" {
		missing = append(missing, prefix+"DBNAME")
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: missing %s", ErrDatabaseNotConfigured, strings.Join(missing, ", "))
	}

	port := getenv(prefix + "PORT")
	if port == "" {
		port = "5432"
	}
	u := &url.URL{
		Scheme: "postgresql",
		Host:   host + ":" + port,
		Path:   dbname,
	}
	if user := getenv(prefix + "USER"); user != "" {
		if pass := getenv(prefix + "PASSWORD"); pass != "" {
			u.User = url.UserPassword(user, pass)
		} else {
			u.User = url.User(user)
		}
	}

	q := u.Query()
	if sslmode := getenv(prefix + "SSLMODE"); sslmode != "" {
		q.Set("sslmode", sslmode)
	}
	if appName := getenv("OTEL_SERVICE_NAME"); appName != "" {
		q.Set("application_name", applicationName(appName))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// applicationName keeps letters, digits, '-' and '_' and fits Postgres'
// 63 byte identifier limit.
func applicationName(s string) string {
	s = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, s)
	if len(s) > 63 {
		s = s[:63]
	}
	return s
}

// Options configures Open.
type Options struct {
	MigrationCheckOptions []migrations.CheckOption
}

// SkipMigrationCheck opens the database without looking at its schema version.
func SkipMigrationCheck() Options {
	return Options{MigrationCheckOptions: []migrations.CheckOption{migrations.WithCheckMode(migrations.CheckModeSkip)}}
}

// WarnOnMigrationMismatch logs a schema version mismatch and continues.
func WarnOnMigrationMismatch() Options {
	return Options{MigrationCheckOptions: []migrations.CheckOption{migrations.WithCheckMode(migrations.CheckModeWarn)}}
}

// WaitForMigrations waits for the schema to reach the expected version.
func WaitForMigrations() Options {
	return Options{MigrationCheckOptions: []migrations.CheckOption{migrations.WithCheckMode(migrations.CheckModeWait)}}
}

// Open connects to url, or to the database described by the SETTINGSDB_
// environment when url is empty, and checks the schema version.
func Open(ctx context.Context, url string, opts Options) (*pgxpool.Pool, error) {
	if url == "" {
		var err error
		if url, err = GetDatabaseURLFromEnv(EnvPrefix); err != nil {
			return nil, err
		}
	}
	pool, err := pgstore.NewConnectionPool(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open settings database: %w", err)
	}
	if err := migrations.CheckVersion(ctx, pool, opts.MigrationCheckOptions...); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
