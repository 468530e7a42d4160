package query

import (
	"context"
	"fmt"

	"Go2NetGuard/internal/config"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const createTableStatement = `
CREATE TABLE IF NOT EXISTS threat_alerts (
    ID                 String,
    DetectedAt         DateTime64(3),
    ThreatType         LowCardinality(String),
    Severity           LowCardinality(String),
    SrcIP              String,
    DstIP              Nullable(String),
    SrcPort            Nullable(UInt16),
    DstPort            Nullable(UInt16),
    Protocol           LowCardinality(String),
    PacketCount        UInt64,
    Description        String,
    RawFeatures        String,
    MitreTechniqueID   String,
    MitreTechniqueName String,
    MitreTactic        String,
    MitreTacticID      String,
    MitreURL           String
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(DetectedAt)
ORDER BY (DetectedAt, SrcIP);
`

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}
