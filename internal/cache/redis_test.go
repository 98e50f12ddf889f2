package cache

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/phuslu/log"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
	"github.com/ternarybob/arbor/writers"

	"github.com/bobmcallan/vire-gateway/internal/common"
	"github.com/bobmcallan/vire-gateway/internal/config"
)

// eventRecorder keeps the messages of every event written to it.
type eventRecorder struct {
	mu     sync.Mutex
	events []models.LogEvent
}

func (w *eventRecorder) Write(p []byte) (int, error) {
	var evt models.LogEvent
	if err := json.Unmarshal(p, &evt); err == nil {
		w.mu.Lock()
		w.events = append(w.events, evt)
		w.mu.Unlock()
	}
	return len(p), nil
}

func (w *eventRecorder) WithLevel(_ log.Level) writers.IWriter { return w }
func (w *eventRecorder) GetFilePath() string                   { return "" }
func (w *eventRecorder) Close() error                          { return nil }

func (w *eventRecorder) warnings() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var msgs []string
	for _, e := range w.events {
		if e.Level == log.WarnLevel {
			msgs = append(msgs, e.Message)
		}
	}
	return msgs
}

func recordingLogger() (*common.Logger, *eventRecorder) {
	rec := &eventRecorder{}
	return &common.Logger{ILogger: arbor.NewLogger().WithWriters([]writers.IWriter{rec})}, rec
}

// redisStoreForTest connects to VIRE_GATEWAY_TEST_REDIS or skips.
func redisStoreForTest(t *testing.T) *RedisStore {
	t.Helper()
	addr := os.Getenv("VIRE_GATEWAY_TEST_REDIS")
	if addr == "" {
		t.Skip("VIRE_GATEWAY_TEST_REDIS not set")
	}
	s := NewRedisStore(config.RedisConfig{Addr: addr}, time.Minute, common.NewSilentLogger())
	t.Cleanup(func() { s.Close() })
	if err := s.Ping(context.Background()); err != nil {
		t.Skipf("redis not reachable at %s: %v", addr, err)
	}
	return s
}

func TestRedisStore_GetSetInvalidate(t *testing.T) {
	s := redisStoreForTest(t)
	ctx := context.Background()

	s.Set(ctx, "test:quote:VNM", []byte("71.2"))
	s.Set(ctx, "test:board:VNM", []byte("x"))

	got, ok := s.Get(ctx, "test:quote:VNM")
	if !ok || string(got) != "71.2" {
		t.Fatalf("expected hit with 71.2, got %q (hit=%v)", got, ok)
	}

	s.InvalidatePrefix(ctx, "test:quote:")
	if _, ok := s.Get(ctx, "test:quote:VNM"); ok {
		t.Error("expected quote key to be invalidated")
	}
	if _, ok := s.Get(ctx, "test:board:VNM"); !ok {
		t.Error("expected board key to survive")
	}
	s.InvalidatePrefix(ctx, "test:")
}

func TestRedisStore_UnreachableIsMiss(t *testing.T) {
	s := NewRedisStore(config.RedisConfig{Addr: "127.0.0.1:1"}, time.Minute, nil)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	s.Set(ctx, "k", []byte("v"))
	if _, ok := s.Get(ctx, "k"); ok {
		t.Error("expected miss when redis is unreachable")
	}
}

func TestRedisStore_UnreachableWritesAreLogged(t *testing.T) {
	logger, rec := recordingLogger()
	s := NewRedisStore(config.RedisConfig{Addr: "127.0.0.1:1"}, time.Minute, logger)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	s.Set(ctx, "quote:VNM", []byte("71.2"))
	s.InvalidatePrefix(ctx, "quote:")

	got := rec.warnings()
	if len(got) != 2 {
		t.Fatalf("expected two warnings, got %q", got)
	}
	if got[0] != "redis set failed, result not cached" {
		t.Errorf("unexpected set warning %q", got[0])
	}
	if got[1] != "redis scan failed, cached entries kept" {
		t.Errorf("unexpected invalidate warning %q", got[1])
	}
}
