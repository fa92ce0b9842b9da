package capture

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/kozaktomas/face-gate/internal/station"
)

// KeySource yields at most one key per frame. Next never blocks; it returns
// station.KeyNone when nothing was pressed.
type KeySource interface {
	Next() int
}

// windowKeys polls the preview window.
type windowKeys struct {
	wait func(delay int) int
	ms   int
}

func (k windowKeys) Next() int {
	return windowKey(k.wait(k.ms))
}

// windowKey strips modifier bits from a HighGUI key code.
func windowKey(code int) int {
	if code < 0 {
		return station.KeyNone
	}
	return code & 0xFF
}

// LineKeys reads newline-delimited keys, for running without a window.
// Only the first character of each non-blank line counts.
type LineKeys struct {
	keys chan int
}

// NewLineKeys starts reading r in the background until EOF or ctx is done.
func NewLineKeys(ctx context.Context, r io.Reader) *LineKeys {
	k := &LineKeys{keys: make(chan int, 16)}
	go k.read(ctx, r)
	return k
}

func (k *LineKeys) read(ctx context.Context, r io.Reader) {
	defer close(k.keys)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, ok := lineKey(scanner.Text())
		if !ok {
			continue
		}
		select {
		case k.keys <- key:
		case <-ctx.Done():
			return
		}
	}
}

// Next returns the oldest unread key.
func (k *LineKeys) Next() int {
	select {
	case key, ok := <-k.keys:
		if !ok {
			return station.KeyNone
		}
		return key
	default:
		return station.KeyNone
	}
}

func lineKey(line string) (int, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, false
	}
	return int(strings.ToLower(line)[0]), true
}
