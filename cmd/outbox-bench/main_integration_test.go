//go:build integration

package main

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/velmie/txoutbox/cmd/internal/testutil"
)

func TestBenchCLIContainer(t *testing.T) {
	ctx := context.Background()
	env := testutil.StartMySQL(t, ctx)

	bin := testutil.BuildBinary(t, ".")
	for _, m := range []mode{modeConsume, modeEnqueue} {
		t.Run(string(m), func(t *testing.T) {
			run := testutil.RunCLI(t, ctx, env.Network.Name, bin,
				"-dsn", env.DSN,
				"-mode", string(m),
				"-records", "300",
				"-workers", "2",
				"-producers", "3",
				"-batch-size", "25",
				"-payload-bytes", "64",
				"-json",
			)
			if run.ExitCode != 0 {
				t.Fatalf("bench exit code %d logs: %s", run.ExitCode, run.Logs)
			}

			res := lastResult(t, run.Logs)
			if res.Processed != 300 || res.Produced != 300 {
				t.Fatalf("processed=%d produced=%d, want 300", res.Processed, res.Produced)
			}
			if res.Mode != m || res.Driver != driverMySQL {
				t.Fatalf("unexpected result header: %+v", res)
			}
		})
	}

	var pending int
	if err := env.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM outbox_bench WHERE processed = FALSE").Scan(&pending); err != nil {
		t.Fatalf("count pending: %v", err)
	}
	if pending != 0 {
		t.Fatalf("pending = %d, want 0", pending)
	}
}

func lastResult(t *testing.T, logs string) result {
	t.Helper()

	lines := strings.Split(strings.TrimSpace(logs), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var res result
		if err := json.Unmarshal([]byte(line), &res); err != nil {
			t.Fatalf("decode result %q: %v", line, err)
		}
		return res
	}
	t.Fatalf("no JSON result in logs: %s", logs)

	return result{}
}
