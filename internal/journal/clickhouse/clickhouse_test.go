package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loykin/portkeeper/internal/journal"
)

// setupClickHouseContainer starts a ClickHouse container for testing.
func setupClickHouseContainer(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()

	container, err := clickhouse.Run(ctx,
		"clickhouse/clickhouse-server:24.3.2.23",
		clickhouse.WithUsername("default"),
		clickhouse.WithPassword(""),
		clickhouse.WithDatabase("default"),
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/ping").
				WithPort("8123/tcp").
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start ClickHouse container: %v", err)
		return nil, ""
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Skipf("Failed to get container host: %v", err)
		return nil, ""
	}
	port, err := container.MappedPort(ctx, "9000")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Skipf("Failed to get mapped port: %v", err)
		return nil, ""
	}
	return container, host + ":" + port.Port()
}

// setupSinkWithTable creates a sink and the journal table it writes to.
func setupSinkWithTable(ctx context.Context, t *testing.T, addr, table string) *Sink {
	t.Helper()

	sink, err := New(addr, table)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	err = sink.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+table+` (
			occurred_at DateTime64(6),
			kind String,
			detail String,
			state String,
			pid Int32
		) ENGINE = MergeTree()
		ORDER BY occurred_at
	`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	return sink
}

func TestClickHouseSinkIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	container, addr := setupClickHouseContainer(ctx, t)
	defer func() { _ = container.Terminate(ctx) }()

	sink := setupSinkWithTable(ctx, t, addr, "supervisor_journal")
	t.Cleanup(func() { _ = sink.Close() })

	entries := []journal.Entry{
		{Kind: "transition", Detail: "stopped->starting", State: "starting", PID: 0, OccurredAt: time.Now().UTC()},
		{Kind: "ready", Detail: "", State: "running", PID: 4321, OccurredAt: time.Now().UTC()},
		{Kind: "port_blocked", Detail: "", State: "stopped", PID: 0, OccurredAt: time.Now().UTC()},
	}
	for _, e := range entries {
		if err := sink.Record(ctx, e); err != nil {
			t.Fatalf("record %q: %v", e.Kind, err)
		}
	}

	var count uint64
	row := sink.conn.QueryRow(ctx, `SELECT COUNT(*) FROM supervisor_journal`)
	if err := row.Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Fatalf("stored %d rows, want 3", count)
	}

	var pid int32
	row = sink.conn.QueryRow(ctx, `SELECT pid FROM supervisor_journal WHERE kind = 'ready'`)
	if err := row.Scan(&pid); err != nil {
		t.Fatalf("select ready row: %v", err)
	}
	if pid != 4321 {
		t.Fatalf("ready pid = %d, want 4321", pid)
	}
}
