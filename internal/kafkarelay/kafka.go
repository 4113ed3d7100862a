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
	"context"
	"crypto/tls"
	"fmt"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
)

// Writer is the part of *kafka.Writer the relay uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Reader is the part of *kafka.Reader the relay uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var (
	_ Writer = (*kafka.Writer)(nil)
	_ Reader = (*kafka.Reader)(nil)
)

// NewKafkaWriter returns a writer for cfg.Topic.
func NewKafkaWriter(cfg Config) (*kafka.Writer, error) {
	mechanism, tlsConfig, err := security(cfg)
	if err != nil {
		return nil, err
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequireOne,
		Transport: &kafka.Transport{
			SASL: mechanism,
			TLS:  tlsConfig,
		},
	}, nil
}

// NewKafkaReader returns a reader of cfg.Topic in the group of origin,
// starting at the newest offset.
func NewKafkaReader(cfg Config, origin string) (*kafka.Reader, error) {
	mechanism, tlsConfig, err := security(cfg)
	if err != nil {
		return nil, err
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID(origin),
		MaxWait:     cfg.MaxWait,
		StartOffset: kafka.LastOffset,
		Dialer: &kafka.Dialer{
			Timeout:       cfg.ConnectionTimeout,
			SASLMechanism: mechanism,
			TLS:           tlsConfig,
		},
	}), nil
}

func security(cfg Config) (sasl.Mechanism, *tls.Config, error) {
	var (
		mechanism sasl.Mechanism
		tlsConfig *tls.Config
	)
	if cfg.SASLEnabled {
		var err error
		if mechanism, err = saslMechanism(cfg); err != nil {
			return nil, nil, fmt.Errorf("kafka sasl: %w", err)
		}
	}
	if cfg.TLSEnabled {
		tlsConfig = &tls.Config{InsecureSkipVerify: cfg.TLSSkipVerify}
	}
	return mechanism, tlsConfig, nil
}

func saslMechanism(cfg Config) (sasl.Mechanism, error) {
	switch cfg.SASLMechanism {
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, cfg.SASLUsername, cfg.SASLPassword)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, cfg.SASLUsername, cfg.SASLPassword)
	case "PLAIN":
		return plain.Mechanism{Username: cfg.SASLUsername, Password: cfg.SASLPassword}, nil
	default:
		return nil, fmt.Errorf("unsupported mechanism %q", cfg.SASLMechanism)
	}
}
