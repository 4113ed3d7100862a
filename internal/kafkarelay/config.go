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

package kafkarelay

import (
	"time"
)

// Config holds the Kafka settings of the relay.
type Config struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`

	// Every process joins its own group, named GroupPrefix.<origin>, so each
	// one sees every event.
	GroupPrefix string `mapstructure:"group_prefix"`

	SASLEnabled   bool   `mapstructure:"sasl_enabled"`
	SASLMechanism string `mapstructure:"sasl_mechanism"` // SCRAM-SHA-256, SCRAM-SHA-512 or PLAIN
	SASLUsername  string `mapstructure:"sasl_username"`
	SASLPassword  string `mapstructure:"sasl_password"`

	TLSEnabled    bool `mapstructure:"tls_enabled"`
	TLSSkipVerify bool `mapstructure:"tls_skip_verify"`

	BatchTimeout      time.Duration `mapstructure:"batch_timeout"`
	MaxWait           time.Duration `mapstructure:"max_wait"`
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout"`
	QueueSize         int           `mapstructure:"queue_size"`
}

func DefaultConfig() Config {
	return Config{
		Brokers:           []string{"localhost:9092"},
		Topic:             "nodesettings.changes",
		GroupPrefix:       "nodesettings",
		SASLMechanism:     "SCRAM-SHA-256",
		BatchTimeout:      50 * time.Millisecond,
		MaxWait:           500 * time.Millisecond,
		ConnectionTimeout: 10 * time.Second,
		QueueSize:         1024,
	}
}

// GroupID returns the consumer group used by the process named origin.
func (c Config) GroupID(origin string) string {
	return c.GroupPrefix + "." + origin
}
