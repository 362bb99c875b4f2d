package chat

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/fmulab/graphqa/pkg/common"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestMemoryTracker(params Params) (*MemoryTracker, *clock) {
	c := &clock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	m := NewMemoryTracker(params)
	m.now = c.Now
	return m, c
}

func turn(role common.Role, content string) common.ChatMessage {
	return common.ChatMessage{Role: role, Content: content}
}

func contents(turns []common.ChatMessage) []string {
	out := make([]string, 0, len(turns))
	for _, t := range turns {
		out = append(out, t.Content)
	}
	return out
}

func TestMemoryTrackerAppendAndHistory(t *testing.T) {
	t.Parallel()

	m, c := newTestMemoryTracker(Params{})
	ctx := context.Background()

	if err := m.Append(ctx, "s1", turn(common.RoleUser, "hi"), turn(common.RoleAssistant, "hello")); err != nil {
		t.Fatal(err)
	}
	got, err := m.History(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"hi", "hello"}; !reflect.DeepEqual(contents(got), want) {
		t.Fatalf("History() = %v, want %v", contents(got), want)
	}
	if !got[0].CreatedAt.Equal(c.Now()) {
		t.Fatalf("CreatedAt = %v, want %v", got[0].CreatedAt, c.Now())
	}

	got[0].Content = "mutated"
	again, _ := m.History(ctx, "s1")
	if again[0].Content != "hi" {
		t.Fatal("History() returned internal storage")
	}

	unknown, err := m.History(ctx, "missing")
	if err != nil || unknown == nil || len(unknown) != 0 {
		t.Fatalf("History(missing) = %#v, %v", unknown, err)
	}
}

func TestMemoryTrackerMaxTurns(t *testing.T) {
	t.Parallel()

	m, _ := newTestMemoryTracker(Params{MaxTurns: 3})
	ctx := context.Background()
	for i := range 5 {
		if err := m.Append(ctx, "s", turn(common.RoleUser, fmt.Sprint(i))); err != nil {
			t.Fatal(err)
		}
	}
	got, _ := m.History(ctx, "s")
	if want := []string{"2", "3", "4"}; !reflect.DeepEqual(contents(got), want) {
		t.Fatalf("History() = %v, want %v", contents(got), want)
	}
}

func TestMemoryTrackerTTL(t *testing.T) {
	t.Parallel()

	m, c := newTestMemoryTracker(Params{TTL: time.Hour})
	ctx := context.Background()

	_ = m.Append(ctx, "old", turn(common.RoleUser, "a"))
	c.Advance(30 * time.Minute)
	_ = m.Append(ctx, "fresh", turn(common.RoleUser, "b"))
	c.Advance(45 * time.Minute)

	if got, _ := m.History(ctx, "old"); len(got) != 0 {
		t.Fatalf("expired History() = %v", contents(got))
	}
	if got, _ := m.History(ctx, "fresh"); len(got) != 1 {
		t.Fatalf("fresh History() = %v", contents(got))
	}

	if n := m.Evict(); n != 1 {
		t.Fatalf("Evict() = %d, want 1", n)
	}
	if m.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", m.Len())
	}

	_ = m.Append(ctx, "old", turn(common.RoleUser, "c"))
	if got, _ := m.History(ctx, "old"); !reflect.DeepEqual(contents(got), []string{"c"}) {
		t.Fatalf("restarted History() = %v", contents(got))
	}
}

func TestMemoryTrackerEvictMarksSessionStale(t *testing.T) {
	t.Parallel()

	m, c := newTestMemoryTracker(Params{TTL: time.Hour})
	ctx := context.Background()

	stale := m.session("s")
	c.Advance(2 * time.Hour)
	if n := m.Evict(); n != 1 {
		t.Fatalf("Evict() = %d, want 1", n)
	}
	if !stale.evicted {
		t.Fatal("evicted session not marked")
	}

	if err := m.Append(ctx, "s", turn(common.RoleUser, "a")); err != nil {
		t.Fatal(err)
	}
	if len(stale.turns) != 0 {
		t.Fatalf("turns written to evicted session: %v", contents(stale.turns))
	}
	if got, _ := m.History(ctx, "s"); !reflect.DeepEqual(contents(got), []string{"a"}) {
		t.Fatalf("History() = %v", contents(got))
	}
}

func TestMemoryTrackerAppendRacingEvictKeepsTurns(t *testing.T) {
	t.Parallel()

	m, c := newTestMemoryTracker(Params{TTL: time.Hour})
	ctx := context.Background()

	const n = 200
	for i := range n {
		_ = m.Append(ctx, fmt.Sprintf("s%d", i), turn(common.RoleUser, "old"))
	}
	c.Advance(2 * time.Hour)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := range n {
			_ = m.Append(ctx, fmt.Sprintf("s%d", i), turn(common.RoleUser, "new"))
		}
	}()
	go func() {
		defer wg.Done()
		for range n {
			m.Evict()
		}
	}()
	wg.Wait()

	for i := range n {
		got, _ := m.History(ctx, fmt.Sprintf("s%d", i))
		if !reflect.DeepEqual(contents(got), []string{"new"}) {
			t.Fatalf("s%d History() = %v, want [new]", i, contents(got))
		}
	}
}

func TestMemoryTrackerClearKeepsSession(t *testing.T) {
	t.Parallel()

	m, _ := newTestMemoryTracker(Params{})
	ctx := context.Background()
	_ = m.Append(ctx, "s", turn(common.RoleUser, "a"))

	if err := m.Clear(ctx, "s"); err != nil {
		t.Fatal(err)
	}
	if got, _ := m.History(ctx, "s"); len(got) != 0 {
		t.Fatalf("History() after Clear = %v", contents(got))
	}
	if m.Len() != 1 {
		t.Fatalf("Len() = %d, want session retained", m.Len())
	}
}

func TestMemoryTrackerConcurrentAppendKeepsPairs(t *testing.T) {
	t.Parallel()

	m, _ := newTestMemoryTracker(Params{MaxTurns: 1000})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q := fmt.Sprintf("q%d", i)
			_ = m.Append(ctx, "s", turn(common.RoleUser, q), turn(common.RoleAssistant, "a"+q[1:]))
		}()
	}
	wg.Wait()

	got, _ := m.History(ctx, "s")
	if len(got) != 100 {
		t.Fatalf("len(History()) = %d, want 100", len(got))
	}
	for i := 0; i < len(got); i += 2 {
		if got[i].Role != common.RoleUser || got[i+1].Role != common.RoleAssistant {
			t.Fatalf("turns %d/%d are not a user/assistant pair", i, i+1)
		}
		if got[i].Content[1:] != got[i+1].Content[1:] {
			t.Fatalf("pair %d interleaved: %q / %q", i/2, got[i].Content, got[i+1].Content)
		}
	}
}

func TestMemoryTrackerErrors(t *testing.T) {
	t.Parallel()

	m, _ := newTestMemoryTracker(Params{})
	if err := m.Append(context.Background(), "", turn(common.RoleUser, "a")); !errors.Is(err, ErrEmptySessionID) {
		t.Fatalf("Append(\"\") error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Append(ctx, "s", turn(common.RoleUser, "a")); !errors.Is(err, context.Canceled) {
		t.Fatalf("Append(cancelled) error = %v", err)
	}
	if m.Len() != 0 {
		t.Fatal("cancelled Append created a session")
	}
}
