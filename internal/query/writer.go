package query

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/model"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ClickHouseWriter persists threats into the threat_alerts table.
type ClickHouseWriter struct {
	conn    driver.Conn
	timeout time.Duration
}

// NewClickHouseWriter connects and ensures the table exists.
func NewClickHouseWriter(cfg config.ClickHouseConfig) (*ClickHouseWriter, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Exec(context.Background(), createTableStatement); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	log.Println("Successfully connected to ClickHouse and ensured threat_alerts exists.")

	return &ClickHouseWriter{conn: conn, timeout: 5 * time.Second}, nil
}

// WriteThreat inserts one threat.
func (w *ClickHouseWriter) WriteThreat(ctx context.Context, t model.Threat) error {
	row, err := threatRow(t)
	if err != nil {
		return err
	}
	batch, err := w.conn.PrepareBatch(ctx, "INSERT INTO threat_alerts")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	if err := batch.Append(row...); err != nil {
		return fmt.Errorf("failed to append threat to batch: %w", err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

// HandleThreat implements model.ThreatSink with a bounded write.
func (w *ClickHouseWriter) HandleThreat(t model.Threat) error {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	return w.WriteThreat(ctx, t)
}

// Close releases the connection.
func (w *ClickHouseWriter) Close() error {
	return w.conn.Close()
}

// threatRow orders the columns of threat_alerts.
func threatRow(t model.Threat) ([]interface{}, error) {
	features, err := json.Marshal(t.RawFeatures)
	if err != nil {
		return nil, fmt.Errorf("failed to encode raw features: %w", err)
	}
	detectedAt := t.DetectedAt
	if detectedAt.IsZero() {
		detectedAt = time.Now()
	}
	return []interface{}{
		t.ID,
		detectedAt,
		string(t.ThreatType),
		t.Severity.String(),
		t.SrcIP,
		t.DstIP,
		t.SrcPort,
		t.DstPort,
		t.Protocol,
		t.PacketCount,
		t.Description,
		string(features),
		t.MitreTechniqueID,
		t.MitreTechniqueName,
		t.MitreTactic,
		t.MitreTacticID,
		t.MitreURL,
	}, nil
}
