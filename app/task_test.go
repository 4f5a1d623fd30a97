package app

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/twj0/ip-address-purity-checker/store"
)

func newTestApp() *App {
	return &App{kv: store.NewMemoryStore()}
}

func TestRecordFailurePersistsStage(t *testing.T) {
	app := newTestApp()

	err := app.recordFailure("rank", ErrNoPureIPs)
	if !errors.Is(err, ErrNoPureIPs) {
		t.Fatalf("recordFailure应保留原始错误: %v", err)
	}

	raw, ok, getErr := app.kv.Get(lastErrorKey)
	if getErr != nil || !ok {
		t.Fatal("失败记录应写入KV")
	}

	var rec RunError
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		t.Fatalf("失败记录应是合法JSON: %v", err)
	}
	if rec.Stage != "rank" {
		t.Errorf("阶段应为rank，实际 %s", rec.Stage)
	}
	if rec.Error == "" || rec.Time == "" {
		t.Errorf("失败记录字段不完整: %+v", rec)
	}
}

func TestRecordFailureCarriesStage(t *testing.T) {
	app := newTestApp()

	// 合成、发布等没有哨兵错误的阶段也要能报出阶段名
	err := app.recordFailure("synthesize", errors.New("yaml序列化失败"))

	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("recordFailure应返回带阶段的错误: %v", err)
	}
	if stageErr.Stage != "synthesize" {
		t.Errorf("阶段应为synthesize，实际 %s", stageErr.Stage)
	}
}

func TestRunStatsRoundTrip(t *testing.T) {
	stats := RunStats{
		Time:          "2026-08-30 12:00:00",
		DurationSec:   42,
		Subscriptions: 3,
		ActiveSources: 2,
		TotalNodes:    120,
		UniqueIPs:     80,
		PureIPs:       15,
	}

	data, err := json.Marshal(stats)
	if err != nil {
		t.Fatal(err)
	}
	var restored RunStats
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatal(err)
	}
	if restored != stats {
		t.Errorf("统计序列化往返不一致: %+v vs %+v", restored, stats)
	}
}
