package util

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestNewSessionIDFormat(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	id := newSessionIDAt(now)

	if !strings.HasPrefix(id, "session_1700000000123_") {
		t.Fatalf("unexpected id %q", id)
	}
	if suffix := strings.TrimPrefix(id, "session_1700000000123_"); len(suffix) != sessionIDSuffix {
		t.Fatalf("suffix %q has length %d, want %d", suffix, len(suffix), sessionIDSuffix)
	}
}

func TestNewSessionIDUniqueWithinMillisecond(t *testing.T) {
	now := time.UnixMilli(1700000000123)

	var (
		mu   sync.Mutex
		seen = make(map[string]struct{})
		wg   sync.WaitGroup
	)
	for range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := newSessionIDAt(now)
			mu.Lock()
			seen[id] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != 64 {
		t.Fatalf("expected 64 distinct ids, got %d", len(seen))
	}
}
