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

package migrations

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CheckMode defines how a version mismatch is handled.
type CheckMode int

const (
	// CheckModeWait waits for migrations to be applied, failing after the
	// timeout.
	CheckModeWait CheckMode = iota
	// CheckModeWarn logs the mismatch and continues.
	CheckModeWarn
	// CheckModeSkip does not check at all.
	CheckModeSkip
)

type CheckOptions struct {
	Mode          CheckMode
	Timeout       time.Duration
	RetryInterval time.Duration
	AllowDirty    bool
}

type CheckOption func(*CheckOptions)

func WithCheckMode(mode CheckMode) CheckOption {
	return func(o *CheckOptions) { o.Mode = mode }
}

func WithTimeout(d time.Duration) CheckOption {
	return func(o *CheckOptions) { o.Timeout = d }
}

func WithRetryInterval(d time.Duration) CheckOption {
	return func(o *CheckOptions) { o.RetryInterval = d }
}

func WithAllowDirty(allow bool) CheckOption {
	return func(o *CheckOptions) { o.AllowDirty = allow }
}

func DefaultCheckOptions() CheckOptions {
	return CheckOptions{
		Mode:          CheckModeWait,
		Timeout:       120 * time.Second,
		RetryInterval: 5 * time.Second,
	}
}

// versionReader abstracts the database so the wait loop can be tested.
type versionReader func(ctx context.Context) (uint, bool, error)

// CheckVersion verifies the database behind pool carries the latest
// embedded migration. SETTINGSDB_MIGRATION_CHECK_ENABLED=false disables
// the check; MIGRATION_CHECK_TIMEOUT, MIGRATION_CHECK_RETRY_INTERVAL and
// MIGRATION_CHECK_ALLOW_DIRTY override the options.
func CheckVersion(ctx context.Context, pool *pgxpool.Pool, options ...CheckOption) error {
	if val := os.Getenv("SETTINGSDB_MIGRATION_CHECK_ENABLED"); val != "" && !strings.EqualFold(val, "true") {
		slog.Debug("Migration version checking disabled for settings database")
		return nil
	}
	opts := DefaultCheckOptions()
	for _, o := range options {
		o(&opts)
	}
	if opts.Mode == CheckModeSkip {
		return nil
	}
	applyEnvironmentOverrides(&opts)

	expected, err := LatestVersion()
	if err != nil {
		return err
	}
	return waitForVersion(ctx, expected, opts, func(ctx context.Context) (uint, bool, error) {
		return CurrentVersion(ctx, pool)
	})
}

func applyEnvironmentOverrides(opts *CheckOptions) {
	if val := os.Getenv("MIGRATION_CHECK_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			opts.Timeout = d
		}
	}
	if val := os.Getenv("MIGRATION_CHECK_RETRY_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			opts.RetryInterval = d
		}
	}
	if val := os.Getenv("MIGRATION_CHECK_ALLOW_DIRTY"); val != "" {
		opts.AllowDirty = strings.EqualFold(val, "true")
	}
}

func waitForVersion(ctx context.Context, expected uint, opts CheckOptions, current versionReader) error {
	deadline := time.Now().Add(opts.Timeout)
	ticker := time.NewTicker(opts.RetryInterval)
	defer ticker.Stop()

	for {
		version, dirty, err := current(ctx)
		if err != nil {
			return fmt.Errorf("failed to get current migration version: %w", err)
		}

		switch {
		case dirty && !opts.AllowDirty && opts.Mode != CheckModeWarn:
			return fmt.Errorf("settings database migration %d is in dirty state", version)
		case version == expected:
			slog.Info("Migration version check passed", slog.Uint64("version", uint64(version)))
			return nil
		case version > expected:
			if opts.Mode == CheckModeWarn {
				slog.Warn("Settings database is newer than this binary",
					slog.Uint64("current", uint64(version)),
					slog.Uint64("expected", uint64(expected)))
				return nil
			}
			return fmt.Errorf("settings database version %d is newer than expected version %d", version, expected)
		case opts.Mode == CheckModeWarn:
			slog.Warn("Settings database is behind this binary",
				slog.Uint64("current", uint64(version)),
				slog.Uint64("expected", uint64(expected)))
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("timeout waiting for migrations: current version %d, expected %d", version, expected)
		}
		slog.Info("Waiting for migrations to complete",
			slog.Uint64("current", uint64(version)),
			slog.Uint64("expected", uint64(expected)),
			slog.Duration("remaining", time.Until(deadline)))

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for migrations: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
