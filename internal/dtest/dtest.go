// Package dtest contains helpers shared by tests across the module.
package dtest

import (
	"log/slog"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
)

// NewLogger returns a logger that writes through t.Log,
// so output is attributed to the test that produced it
// and only shown for failing or verbose tests.
func NewLogger(t testing.TB) *slog.Logger {
	return slogt.New(t)
}

// ReceiveOrTimeout returns the next value from ch,
// failing the test if none arrives within timeout.
func ReceiveOrTimeout[T any](t testing.TB, ch <-chan T, timeout time.Duration) T {
	t.Helper()

	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		t.Fatalf("no value received within %s", timeout)
	}

	panic("unreachable")
}

// ReceiveSoon is ReceiveOrTimeout with a short, scaled timeout.
func ReceiveSoon[T any](t testing.TB, ch <-chan T) T {
	t.Helper()
	return ReceiveOrTimeout(t, ch, ScaleMs(100))
}

// SendSoon sends v on ch, failing the test if the send blocks too long.
func SendSoon[T any](t testing.TB, ch chan<- T, v T) {
	t.Helper()

	timeout := ScaleMs(100)
	select {
	case ch <- v:
	case <-time.After(timeout):
		t.Fatalf("send did not complete within %s", timeout)
	}
}

// NotSending fails the test if a value is ready on ch.
func NotSending[T any](t testing.TB, ch <-chan T) {
	t.Helper()

	select {
	case v := <-ch:
		t.Fatalf("unexpected value received: %v", v)
	default:
	}
}

var timeScale = func() float64 {
	s := os.Getenv("DBFT_TEST_TIME_SCALE")
	if s == "" {
		return 1
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		panic("DBFT_TEST_TIME_SCALE must be a positive number, got " + strconv.Quote(s))
	}
	return f
}()

// ScaleMs returns ms milliseconds, multiplied by the
// DBFT_TEST_TIME_SCALE environment variable when set,
// so that slow CI machines can extend every test timeout at once.
func ScaleMs(ms int64) time.Duration {
	return time.Duration(float64(ms) * timeScale * float64(time.Millisecond))
}
