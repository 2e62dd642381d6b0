package util

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestRetry(t *testing.T) {
	attempts := 0
	targetAttempts := 3

	err := Retry(context.Background(), 5, 0, func() error {
		attempts++
		if attempts < targetAttempts {
			return errors.New("transient error")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Retry returned unexpected error: %v", err)
	}
	if attempts != targetAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, targetAttempts)
	}
}

func TestRetryAllFail(t *testing.T) {
	attempts := 0
	maxAttempts := 3

	err := Retry(context.Background(), maxAttempts, 0, func() error {
		attempts++
		return errors.New("persistent error")
	})

	if err == nil {
		t.Fatal("Retry should return error when all attempts fail")
	}
	if attempts != maxAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, maxAttempts)
	}
}

func TestRetryIfStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("bad request")
	attempts := 0

	err := RetryIf(context.Background(), 5, 0,
		func(err error) bool { return !errors.Is(err, permanent) },
		func() error {
			attempts++
			return permanent
		})

	if !errors.Is(err, permanent) {
		t.Fatalf("RetryIf error = %v, want %v", err, permanent)
	}
	if attempts != 1 {
		t.Errorf("RetryIf called fn %d times, want 1", attempts)
	}
}

func TestRetryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, 3, time.Hour, func() error { return errors.New("fail") })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry error = %v, want context.Canceled", err)
	}
}

func TestRateLimiterNew(t *testing.T) {
	rl := NewRateLimiter(60)
	if rl == nil {
		t.Fatal("NewRateLimiter returned nil")
	}
	for i := 0; i < 60; i++ {
		if !rl.Allow() {
			t.Fatalf("Allow() #%d = false, want true within the 60/min burst", i)
		}
	}
	if rl.Allow() {
		t.Error("61st immediate Allow() = true, want false at 60/min")
	}

	unlimited := NewRateLimiter(0)
	for i := 0; i < 10; i++ {
		if !unlimited.Allow() {
			t.Fatalf("unlimited Allow() #%d = false, want true", i)
		}
	}
}

func TestIsWeekend(t *testing.T) {
	sat := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	if !IsWeekend(sat) {
		t.Errorf("IsWeekend(%s) = false, want true", sat.Weekday())
	}
	if !IsWeekend(sat.AddDate(0, 0, 1)) {
		t.Error("IsWeekend(Sunday) = false, want true")
	}
	if IsWeekend(sat.AddDate(0, 0, 2)) {
		t.Error("IsWeekend(Monday) = true, want false")
	}
}

func TestNextWeekday(t *testing.T) {
	wed := time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC)
	if got := NextWeekday(wed, time.Sunday); !got.Equal(time.Date(2024, 6, 16, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("NextWeekday(Wed, Sunday) = %s, want 2024-06-16", got)
	}
	if got := NextWeekday(wed, time.Wednesday); !got.Equal(wed.AddDate(0, 0, 7)) {
		t.Errorf("NextWeekday(Wed, Wednesday) = %s, want one week later", got)
	}
}

func TestStartOfDay(t *testing.T) {
	in := time.Date(2024, 6, 12, 17, 45, 3, 9, time.UTC)
	want := time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC)
	if got := StartOfDay(in); !got.Equal(want) {
		t.Errorf("StartOfDay = %s, want %s", got, want)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger("warn", "json", &buf)
	log.Info("hidden")
	log.Warn("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record written at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) {
		t.Errorf("warn record missing from JSON output: %s", out)
	}

	buf.Reset()
	NewLogger("debug", "text", &buf).Debug("text record")
	if !strings.Contains(buf.String(), "msg=\"text record\"") {
		t.Errorf("text handler output = %q", buf.String())
	}

	if ParseLevel("nope") != slog.LevelInfo {
		t.Errorf("ParseLevel(nope) = %v, want info", ParseLevel("nope"))
	}
}
