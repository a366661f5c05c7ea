package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunOrderLoad(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/orders" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["companyId"] != "c-1" {
			t.Errorf("bad body: %v %v", body, err)
		}
		// каждый третий запрос отклоняем
		if atomic.AddInt64(&calls, 1)%3 == 0 {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	stats := runOrderLoad(ctx, srv.URL+"/", "c-1", 5000, 4)

	if stats.total == 0 {
		t.Fatal("no requests were recorded")
	}
	if stats.success+stats.failed != stats.total {
		t.Errorf("success %d + failed %d != total %d", stats.success, stats.failed, stats.total)
	}
	if stats.success == 0 || stats.failed == 0 {
		t.Errorf("expected both outcomes, got success=%d failed=%d", stats.success, stats.failed)
	}
	if stats.minLatency > stats.maxLatency || stats.avg() <= 0 {
		t.Errorf("inconsistent latency: min=%d max=%d avg=%v", stats.minLatency, stats.maxLatency, stats.avg())
	}
}

func TestLoadOrdersCmd_RequiresCompany(t *testing.T) {
	cmd := loadOrdersCmd()
	cmd.SetArgs([]string{"--duration", "10ms"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "--company") {
		t.Fatalf("err = %v, want --company error", err)
	}
}

func TestLoadStats_Record(t *testing.T) {
	s := newLoadStats()
	s.record(30*time.Millisecond, true)
	s.record(10*time.Millisecond, false)
	s.record(20*time.Millisecond, true)

	if s.total != 3 || s.success != 2 || s.failed != 1 {
		t.Errorf("counters: %+v", s)
	}
	if time.Duration(s.minLatency) != 10*time.Millisecond || time.Duration(s.maxLatency) != 30*time.Millisecond {
		t.Errorf("min/max = %v/%v", time.Duration(s.minLatency), time.Duration(s.maxLatency))
	}
	if s.avg() != 20*time.Millisecond {
		t.Errorf("avg = %v, want 20ms", s.avg())
	}
}
