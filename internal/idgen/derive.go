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

// Package idgen derives and generates the identifiers used by the settings
// engine: deterministic name-based UUIDs, event ids, and process instance ids.
package idgen

import (
	"github.com/google/uuid"
)

// Derive returns the RFC 4122 version 5 (SHA-1) UUID for name within the
// namespace ns. The result depends only on its inputs, so every process
// derives the same id without coordination.
func Derive(ns uuid.UUID, name string) uuid.UUID {
	return uuid.NewSHA1(ns, []byte(name))
}
