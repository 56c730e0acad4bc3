package database

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	log "github.com/sirupsen/logrus"

	"storepulse/api/config"
)

type ClickHouseClient struct {
	Conn clickhouse.Conn
}

func NewClickHouseDB(cfg config.ClickHouse) (*ClickHouseClient, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("CLICKHOUSE_HOST environment variable is not set")
	}

	options := &clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.NativePort)},
		Auth: clickhouse.Auth{
			Database: cfg.DBName,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{{Name: "storepulse-api", Version: "1.0.0"}},
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout: time.Second * 5,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse via Native TCP: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	log.Println("Successfully connected to ClickHouse database via Native TCP!")
	return &ClickHouseClient{Conn: conn}, nil
}

// sessionEventsDDL keys rows on (store_id, id) so re-sent events collapse
// on merge; readers use FINAL.
const sessionEventsDDL = `
	CREATE TABLE IF NOT EXISTS session_events (
		id             String,
		store_id       LowCardinality(String),
		shopper_number Nullable(Int64),
		client_id      Nullable(String),
		session_id     String,
		event_ts       DateTime64(3, 'UTC'),
		server_ts      DateTime64(3, 'UTC'),
		event_name     LowCardinality(String),
		page_path      Nullable(String),
		page_url       Nullable(String),
		checkout_step  Nullable(String),
		product_id     Nullable(String),
		variant_id     Nullable(String),
		utm_source     Nullable(String),
		utm_campaign   Nullable(String),
		device_type    Nullable(String),
		country_code   Nullable(String),
		data_json      String
	)
	ENGINE = ReplacingMergeTree
	PARTITION BY toDate(server_ts)
	ORDER BY (store_id, id)
`

// EnsureSchema creates the event table when it is missing.
func (c *ClickHouseClient) EnsureSchema(ctx context.Context) error {
	if err := c.Conn.Exec(ctx, sessionEventsDDL); err != nil {
		return fmt.Errorf("failed to create session_events: %w", err)
	}
	return nil
}

func (c *ClickHouseClient) Close() {
	if c.Conn != nil {
		c.Conn.Close()
		log.Println("ClickHouse connection closed.")
	}
}
