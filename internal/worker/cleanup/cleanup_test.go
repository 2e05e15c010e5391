package cleanup

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

// mockPurger はSessionPurgerのモック実装。
type mockPurger struct {
	calls        int
	deletedCount int64
	err          error
}

func (m *mockPurger) DeleteExpired(ctx context.Context) (int64, error) {
	m.calls++
	return m.deletedCount, m.err
}

// mockPurgeMetrics は削除件数の記録を検証するためのモック。
type mockPurgeMetrics struct {
	recorded []int64
}

func (m *mockPurgeMetrics) RecordSessionsPurged(count int64) {
	m.recorded = append(m.recorded, count)
}

// jobWithLog はJSONログをバッファへ溜めるCleanupJobを組み立てる。
func jobWithLog(purger *mockPurger, metrics PurgeMetrics) (*CleanupJob, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	return NewCleanupJob(purger, logger, metrics), buf
}

// findLogField はログのいずれかの行からフィールド値を探す。
func findLogField(t *testing.T, buf *bytes.Buffer, key string) (any, bool) {
	t.Helper()
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if v, ok := entry[key]; ok {
			return v, true
		}
	}
	return nil, false
}

// 期限切れセッションの削除が実行され、件数と処理時間がログに残る。
func TestCleanupJob_Run_PurgesAndLogs(t *testing.T) {
	purger := &mockPurger{deletedCount: 42}
	job, buf := jobWithLog(purger, nil)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if purger.calls != 1 {
		t.Fatalf("DeleteExpired calls = %d, want 1", purger.calls)
	}

	if count, ok := findLogField(t, buf, "deleted_count"); !ok || count != float64(42) {
		t.Errorf("log should contain deleted_count=42, got %v (log: %s)", count, buf.String())
	}
	if _, ok := findLogField(t, buf, "duration_ms"); !ok {
		t.Errorf("log should contain duration_ms (log: %s)", buf.String())
	}
}

// 削除件数はメトリクスにも記録される。
func TestCleanupJob_Run_RecordsMetrics(t *testing.T) {
	metrics := &mockPurgeMetrics{}
	job, _ := jobWithLog(&mockPurger{deletedCount: 7}, metrics)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(metrics.recorded) != 1 || metrics.recorded[0] != 7 {
		t.Errorf("recorded = %v, want [7]", metrics.recorded)
	}
}

// DB障害時はエラーを返し、ERRORレベルのログを残す。
func TestCleanupJob_Run_DBFailure(t *testing.T) {
	job, buf := jobWithLog(&mockPurger{err: sql.ErrConnDone}, nil)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected error on DB failure")
	}
	if !strings.Contains(err.Error(), "sql: connection is already closed") {
		t.Errorf("error should wrap the cause, got: %v", err)
	}
	if !strings.Contains(buf.String(), "ERROR") {
		t.Errorf("expected ERROR level log, got: %s", buf.String())
	}
}

// 削除対象がなくても成功し、deleted_count=0が記録される（冪等）。
func TestCleanupJob_Run_IdempotentWithZeroRows(t *testing.T) {
	purger := &mockPurger{deletedCount: 0}
	job, buf := jobWithLog(purger, nil)

	for i := 0; i < 2; i++ {
		if err := job.Run(context.Background()); err != nil {
			t.Fatalf("Run #%d: %v", i+1, err)
		}
	}
	if purger.calls != 2 {
		t.Errorf("DeleteExpired calls = %d, want 2", purger.calls)
	}

	if count, ok := findLogField(t, buf, "deleted_count"); !ok || count != float64(0) {
		t.Errorf("log should contain deleted_count=0, got %v", count)
	}
}
