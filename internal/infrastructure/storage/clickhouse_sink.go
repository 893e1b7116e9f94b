// Package storage implements the durable alert sink: an append-only
// alert_log and an alert_dead_letter_queue for exhausted retries.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"

	"github.com/andreirk/bscwatch/internal/domain/model"
	"github.com/andreirk/bscwatch/internal/domain/repository"
)

// ClickHouseSink implements repository.AlertSink.
type ClickHouseSink struct {
	conn driver.Conn
}

// Config holds the ClickHouse connection parameters.
type Config struct {
	Addr     string
	Username string
	Password string
	Timeout  int
}

// NewClickHouseSink dials ClickHouse and ensures the alert tables exist.
func NewClickHouseSink(cfg Config) (*ClickHouseSink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: time.Duration(cfg.Timeout) * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	if err := createAlertTables(conn); err != nil {
		return nil, fmt.Errorf("failed to create alert tables: %w", err)
	}
	return &ClickHouseSink{conn: conn}, nil
}

var _ repository.AlertSink = (*ClickHouseSink)(nil)

func createAlertTables(conn driver.Conn) error {
	if err := conn.Exec(context.Background(), `
		CREATE TABLE IF NOT EXISTS alert_log (
			batch_id String,
			token String,
			tx_hash String,
			usd_value Float64,
			reasons String,
			status String,
			created_at DateTime DEFAULT now()
		) ENGINE = MergeTree()
		ORDER BY (token, created_at)
	`); err != nil {
		return err
	}
	return conn.Exec(context.Background(), `
		CREATE TABLE IF NOT EXISTS alert_dead_letter_queue (
			token String,
			payload String,
			reason String,
			retries UInt32,
			created_at DateTime DEFAULT now()
		) ENGINE = MergeTree()
		ORDER BY (token, created_at)
	`)
}

// SaveAlert appends one row to alert_log with the given delivery status
// ("success" or "failure").
func (s *ClickHouseSink) SaveAlert(ctx context.Context, a *model.Alert, status string) error {
	query := `
		INSERT INTO alert_log (
			batch_id, token, tx_hash, usd_value, reasons, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	return s.conn.AsyncInsert(ctx, query, false,
		uuid.NewString(),
		a.Token,
		a.TxHash,
		a.USDValue,
		strings.Join(a.Reasons, ","),
		status,
		a.CreatedAt,
	)
}

// SaveDeadLetter records an alert that exhausted its retry budget.
func (s *ClickHouseSink) SaveDeadLetter(ctx context.Context, a *model.Alert, reason string, retries int) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter payload: %w", err)
	}
	query := `
		INSERT INTO alert_dead_letter_queue (
			token, payload, reason, retries, created_at
		) VALUES (?, ?, ?, ?, ?)
	`
	return s.conn.AsyncInsert(ctx, query, false, a.Token, string(payload), reason, retries, time.Now())
}

// Close releases the underlying connection.
func (s *ClickHouseSink) Close() error {
	return s.conn.Close()
}
