package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/ride-dispatch/internal/ingest"
)

// fakeHistory implements HistoryWriter for tests
type fakeHistory struct {
	failH     int // number of times to fail HSet before succeeding
	failS     int // number of times to fail SAdd before succeeding
	hCalls    int
	sCalls    int
	lastHash  map[string]interface{}
	lastIndex string
}

func (f *fakeHistory) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	f.hCalls++
	if f.hCalls <= f.failH {
		return errors.New("hset fail")
	}
	f.lastHash = values
	return nil
}

func (f *fakeHistory) SAdd(ctx context.Context, key string, member string) error {
	f.sCalls++
	if f.sCalls <= f.failS {
		return errors.New("sadd fail")
	}
	f.lastIndex = key
	return nil
}

func sampleEvent() *ingest.LifecycleEvent {
	return &ingest.LifecycleEvent{
		Type:     "order_accepted",
		OrderID:  "o1",
		ClientID: "c1",
		DriverID: "d1",
		Status:   "accepted",
		Price:    3.2,
		At:       time.Now(),
	}
}

func TestRecordHistoryWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &fakeHistory{failH: 1, failS: 1}
	start := time.Now()
	if err := recordHistoryWithRetry(context.Background(), f, sampleEvent(), 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.hCalls < 2 || f.sCalls < 2 {
		t.Fatalf("expected retries, got hset=%d sadd=%d", f.hCalls, f.sCalls)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("expected at least one backoff")
	}
	if f.lastHash["status"] != "accepted" || f.lastHash["driver_id"] != "d1" {
		t.Fatalf("unexpected history fields: %v", f.lastHash)
	}
	if f.lastIndex != "client:orders:c1" {
		t.Fatalf("unexpected client index key: %s", f.lastIndex)
	}
}

func TestRecordHistoryWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &fakeHistory{failH: 5}
	if err := recordHistoryWithRetry(context.Background(), f, sampleEvent(), 3, 5*time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
}
