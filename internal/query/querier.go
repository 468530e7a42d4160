package query

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/model"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// AlertFilter narrows RecentAlerts. Zero fields are ignored.
type AlertFilter struct {
	Limit      int
	Severity   string
	ThreatType string
	SrcIP      string
	Since      time.Time
}

// MaxAlertLimit caps a single RecentAlerts page.
const MaxAlertLimit = 200

// DefaultAlertLimit applies when AlertFilter.Limit is unset.
const DefaultAlertLimit = 50

// Summary aggregates stored alerts.
type Summary struct {
	Total      uint64            `json:"total_alerts"`
	BySeverity map[string]uint64 `json:"by_severity"`
	ByType     map[string]uint64 `json:"by_type"`
}

// Querier reads alerts back for the dashboard.
type Querier interface {
	RecentAlerts(ctx context.Context, filter AlertFilter) ([]model.Threat, error)
	Summary(ctx context.Context) (*Summary, error)
}

type clickhouseQuerier struct {
	conn driver.Conn
}

// NewClickHouseQuerier creates a new querier for ClickHouse.
func NewClickHouseQuerier(cfg config.ClickHouseConfig) (Querier, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	return &clickhouseQuerier{conn: conn}, nil
}

const selectAlerts = `
	SELECT
		ID, DetectedAt, ThreatType, Severity, SrcIP, DstIP, SrcPort, DstPort,
		Protocol, PacketCount, Description, RawFeatures,
		MitreTechniqueID, MitreTechniqueName, MitreTactic, MitreTacticID, MitreURL
	FROM threat_alerts`

// buildAlertsQuery renders the filtered select with positional arguments.
func buildAlertsQuery(f AlertFilter) (string, []interface{}, error) {
	var sb strings.Builder
	sb.WriteString(selectAlerts)

	var where []string
	var args []interface{}
	if f.Severity != "" {
		sev, err := model.ParseSeverity(f.Severity)
		if err != nil {
			return "", nil, err
		}
		where = append(where, "Severity = ?")
		args = append(args, sev.String())
	}
	if f.ThreatType != "" {
		where = append(where, "ThreatType = ?")
		args = append(args, f.ThreatType)
	}
	if f.SrcIP != "" {
		where = append(where, "SrcIP = ?")
		args = append(args, f.SrcIP)
	}
	if !f.Since.IsZero() {
		where = append(where, "DetectedAt >= ?")
		args = append(args, f.Since)
	}
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultAlertLimit
	}
	if limit > MaxAlertLimit {
		limit = MaxAlertLimit
	}
	fmt.Fprintf(&sb, " ORDER BY DetectedAt DESC LIMIT %d", limit)
	return sb.String(), args, nil
}

// RecentAlerts returns matching alerts, newest first.
func (q *clickhouseQuerier) RecentAlerts(ctx context.Context, f AlertFilter) ([]model.Threat, error) {
	stmt, args, err := buildAlertsQuery(f)
	if err != nil {
		return nil, err
	}
	rows, err := q.conn.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var alerts []model.Threat
	for rows.Next() {
		var (
			t                      model.Threat
			threatType, sev, feats string
		)
		if err := rows.Scan(
			&t.ID, &t.DetectedAt, &threatType, &sev, &t.SrcIP, &t.DstIP, &t.SrcPort, &t.DstPort,
			&t.Protocol, &t.PacketCount, &t.Description, &feats,
			&t.MitreTechniqueID, &t.MitreTechniqueName, &t.MitreTactic, &t.MitreTacticID, &t.MitreURL,
		); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		t.ThreatType = model.ThreatType(threatType)
		t.Severity, _ = model.ParseSeverity(sev)
		if feats != "" {
			if err := json.Unmarshal([]byte(feats), &t.RawFeatures); err != nil {
				return nil, fmt.Errorf("failed to decode raw features of %s: %w", t.ID, err)
			}
		}
		alerts = append(alerts, t)
	}
	return alerts, rows.Err()
}

// Summary returns totals by severity and by threat type.
func (q *clickhouseQuerier) Summary(ctx context.Context) (*Summary, error) {
	s := &Summary{BySeverity: map[string]uint64{}, ByType: map[string]uint64{}}
	if err := q.countBy(ctx, "Severity", s.BySeverity); err != nil {
		return nil, err
	}
	if err := q.countBy(ctx, "ThreatType", s.ByType); err != nil {
		return nil, err
	}
	for _, n := range s.BySeverity {
		s.Total += n
	}
	return s, nil
}

// countBy only accepts the fixed column names used by Summary.
func (q *clickhouseQuerier) countBy(ctx context.Context, column string, into map[string]uint64) error {
	switch column {
	case "Severity", "ThreatType":
	default:
		return fmt.Errorf("unsupported group column: %s", column)
	}
	rows, err := q.conn.Query(ctx, fmt.Sprintf("SELECT %s, count() FROM threat_alerts GROUP BY %s", column, column))
	if err != nil {
		return fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key string
			n   uint64
		)
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("failed to scan %s count: %w", column, err)
		}
		into[key] = n
	}
	return rows.Err()
}
