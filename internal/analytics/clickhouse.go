package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/patrickwarner/adshell/internal/models"
	"go.uber.org/zap"
)

// ErrUnavailable is returned when the analytics DB is not configured.
var ErrUnavailable = errors.New("analytics unavailable")

// Recorder persists ad events.
type Recorder interface {
	RecordAdEvent(ctx context.Context, ev AdEvent) error
}

// ClickHouse writes ad events to the ad_events table.
type ClickHouse struct {
	DB *sql.DB
}

// InitClickHouse connects to ClickHouse and ensures the ad_events table exists.
func InitClickHouse(dsn string) (*ClickHouse, error) {
	db, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	db.SetMaxOpenConns(5)
	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	create := `CREATE TABLE IF NOT EXISTS ad_events (
       timestamp     DateTime64(3),
       event_type    String,
       ad_kind       String,
       surface       String,
       unit_id       String,
       environment   String,
       success       UInt8,
       reason        String,
       reward_amount Int32,
       reward_type   String
   ) ENGINE=MergeTree() ORDER BY (event_type, timestamp)`
	if _, err := db.ExecContext(context.Background(), create); err != nil {
		return nil, fmt.Errorf("clickhouse create table: %w", err)
	}

	zap.L().Info("Connected to ClickHouse")
	return &ClickHouse{DB: db}, nil
}

// RecordAdEvent inserts a single event row.
func (c *ClickHouse) RecordAdEvent(ctx context.Context, ev AdEvent) error {
	if c == nil || c.DB == nil {
		return ErrUnavailable
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	var success uint8
	if ev.Success {
		success = 1
	}
	_, err := c.DB.ExecContext(ctx,
		`INSERT INTO ad_events (timestamp, event_type, ad_kind, surface, unit_id, environment, success, reason, reward_amount, reward_type)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.Timestamp, ev.Type, string(ev.Unit.Kind), ev.Unit.Surface, ev.Unit.UnitID,
		string(ev.Unit.Environment), success, ev.Reason, int32(ev.RewardAmount), ev.RewardType,
	)
	if err != nil {
		return fmt.Errorf("insert ad event: %w", err)
	}
	return nil
}

// EventFilter narrows QueryEvents. Zero fields match everything.
type EventFilter struct {
	Type   string
	Kind   string
	UnitID string
	Since  time.Time
	Limit  int
}

func buildEventQuery(f EventFilter) (string, []interface{}) {
	var (
		where []string
		args  []interface{}
	)
	if f.Type != "" {
		where = append(where, "event_type = ?")
		args = append(args, f.Type)
	}
	if f.Kind != "" {
		where = append(where, "ad_kind = ?")
		args = append(args, f.Kind)
	}
	if f.UnitID != "" {
		where = append(where, "unit_id = ?")
		args = append(args, f.UnitID)
	}
	if !f.Since.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, f.Since)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	q := `SELECT timestamp, event_type, ad_kind, surface, unit_id, environment, success, reason, reward_amount, reward_type FROM ad_events`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT %d", limit)
	return q, args
}

// QueryEvents returns the most recent events matching f, newest first.
func (c *ClickHouse) QueryEvents(ctx context.Context, f EventFilter) ([]AdEvent, error) {
	if c == nil || c.DB == nil {
		return nil, ErrUnavailable
	}
	q, args := buildEventQuery(f)
	rows, err := c.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query ad events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []AdEvent
	for rows.Next() {
		var (
			ev           AdEvent
			kind, env    string
			success      uint8
			rewardAmount int32
		)
		if err := rows.Scan(&ev.Timestamp, &ev.Type, &kind, &ev.Unit.Surface, &ev.Unit.UnitID, &env,
			&success, &ev.Reason, &rewardAmount, &ev.RewardType); err != nil {
			return nil, fmt.Errorf("scan ad event: %w", err)
		}
		ev.Unit.Kind = models.AdKind(kind)
		ev.Unit.Environment = models.Environment(env)
		ev.Success = success == 1
		ev.RewardAmount = int(rewardAmount)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ad events: %w", err)
	}
	return out, nil
}

// Close closes the ClickHouse connection.
func (c *ClickHouse) Close() error {
	if c == nil || c.DB == nil {
		return nil
	}
	return c.DB.Close()
}
