package capture

import (
	"context"
	"image"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/face-gate/internal/station"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseDevice(t *testing.T) {
	tests := []struct {
		input string
		want  any
	}{
		{"0", 0},
		{"2", 2},
		{"/dev/video0", "/dev/video0"},
		{"rtsp://camera.local/stream", "rtsp://camera.local/stream"},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			if got := parseDevice(tc.input); got != tc.want {
				t.Errorf("parseDevice(%q) = %v (%T), want %v (%T)", tc.input, got, got, tc.want, tc.want)
			}
		})
	}
}

func TestWindowKey(t *testing.T) {
	tests := []struct {
		code int
		want int
	}{
		{-1, station.KeyNone},
		{'s', station.KeySave},
		{0x100000 | 'a', station.KeyAuth},
		{27, 27},
	}

	for _, tc := range tests {
		if got := windowKey(tc.code); got != tc.want {
			t.Errorf("windowKey(%#x) = %d, want %d", tc.code, got, tc.want)
		}
	}
}

func TestWindowKeysPassesDelay(t *testing.T) {
	var gotDelay int
	k := windowKeys{wait: func(delay int) int { gotDelay = delay; return 'q' }, ms: 1}

	if key := k.Next(); key != station.KeyQuit {
		t.Errorf("Next() = %d, want %d", key, station.KeyQuit)
	}
	if gotDelay != 1 {
		t.Errorf("WaitKey delay = %d, want 1", gotDelay)
	}
}

func TestLineKeys(t *testing.T) {
	k := NewLineKeys(context.Background(), strings.NewReader("s\n\n  A\nquit\n"))

	want := []int{station.KeySave, station.KeyAuth, station.KeyQuit}
	for i, w := range want {
		if got := waitKey(t, k); got != w {
			t.Errorf("key %d = %q, want %q", i, rune(got), rune(w))
		}
	}

	// Input is exhausted; Next keeps reporting no key.
	time.Sleep(10 * time.Millisecond)
	if got := k.Next(); got != station.KeyNone {
		t.Errorf("Next() after EOF = %d, want KeyNone", got)
	}
}

func TestTrackLogsTransitions(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := &loop{logger: zap.New(core)}

	face := image.Rect(10, 10, 110, 110)
	l.track(face, true)
	l.track(face.Add(image.Pt(5, 5)), true)
	l.track(image.Rect(300, 300, 400, 400), true)
	l.track(image.Rectangle{}, false)
	l.track(image.Rectangle{}, false)

	expected := []string{"face appeared", "face changed", "face lost"}
	entries := logs.All()
	if len(entries) != len(expected) {
		t.Fatalf("got %d log entries, want %d", len(entries), len(expected))
	}
	for i, e := range entries {
		if e.Message != expected[i] {
			t.Errorf("entry %d = %q, want %q", i, e.Message, expected[i])
		}
	}
}

func waitKey(t *testing.T, k KeySource) int {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if key := k.Next(); key != station.KeyNone {
			return key
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for key")
	return station.KeyNone
}
