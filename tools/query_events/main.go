// Command query_events prints recent ad lifecycle events from ClickHouse.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/patrickwarner/adshell/internal/analytics"
	"github.com/patrickwarner/adshell/internal/config"
	"github.com/patrickwarner/adshell/internal/observability"
)

func main() {
	logger, err := observability.InitLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	var (
		f     analytics.EventFilter
		dsn   string
		since time.Duration
	)
	flag.StringVar(&f.Type, "type", "", "event type (ad_load, ad_show, app_open_ads_load, reward_earned)")
	flag.StringVar(&f.Kind, "kind", "", "ad kind (interstitial, rewarded, app_open)")
	flag.StringVar(&f.UnitID, "unit", "", "ad unit id")
	flag.DurationVar(&since, "since", 0, "only events newer than this, e.g. 1h")
	flag.IntVar(&f.Limit, "limit", 100, "maximum number of events")
	flag.StringVar(&dsn, "dsn", "", "ClickHouse DSN")
	flag.Parse()

	if dsn == "" {
		dsn = config.Load().ClickHouseDSN
	}
	if since > 0 {
		f.Since = time.Now().Add(-since)
	}

	ch, err := analytics.InitClickHouse(dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect clickhouse: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = ch.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	events, err := ch.QueryEvents(ctx, f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "query events: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(events); err != nil {
		fmt.Fprintf(os.Stderr, "encode events: %v\n", err)
		os.Exit(1)
	}
}
