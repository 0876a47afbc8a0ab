package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestMemory_GetSet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var got payload
	ok, err := m.Get(ctx, "missing", &got)
	if err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	if err := m.Set(ctx, "k", payload{Name: "a", Count: 2}, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	ok, err = m.Get(ctx, "k", &got)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if got.Name != "a" || got.Count != 2 {
		t.Errorf("unexpected value %+v", got)
	}
}

func TestMemory_Expiry(t *testing.T) {
	m := NewMemory()
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	_ = m.Set(ctx, "k", payload{Name: "x"}, time.Second)
	now = now.Add(2 * time.Second)

	var got payload
	if ok, _ := m.Get(ctx, "k", &got); ok {
		t.Error("expected entry to expire")
	}
}

func TestMemory_SetSweepsExpiredEntries(t *testing.T) {
	m := NewMemory()
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		gen, _ := m.Generation(ctx, "schedule-gen:doc")
		_ = m.Set(ctx, fmt.Sprintf("schedule:doc:%d", gen), payload{Count: i}, 30*time.Second)
		_ = m.Bump(ctx, "schedule-gen:doc")
	}
	if len(m.entries) != 1000 {
		t.Fatalf("expected 1000 live entries, got %d", len(m.entries))
	}

	now = now.Add(time.Hour)
	_ = m.Set(ctx, "schedule:doc:fresh", payload{Name: "fresh"}, 30*time.Second)

	if len(m.entries) != 1 {
		t.Fatalf("expected only the fresh entry after the sweep, got %d", len(m.entries))
	}
	var got payload
	if ok, _ := m.Get(ctx, "schedule:doc:fresh", &got); !ok || got.Name != "fresh" {
		t.Errorf("expected fresh entry to survive, got ok=%v %+v", ok, got)
	}
}

func TestMemory_Generation(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if g, _ := m.Generation(ctx, "gen"); g != 0 {
		t.Errorf("expected 0, got %d", g)
	}
	_ = m.Bump(ctx, "gen")
	_ = m.Bump(ctx, "gen")
	if g, _ := m.Generation(ctx, "gen"); g != 2 {
		t.Errorf("expected 2, got %d", g)
	}
}

func TestNoop(t *testing.T) {
	var s Store = Noop{}
	ctx := context.Background()
	_ = s.Set(ctx, "k", payload{}, time.Minute)
	var got payload
	if ok, err := s.Get(ctx, "k", &got); ok || err != nil {
		t.Errorf("expected noop miss, got ok=%v err=%v", ok, err)
	}
}

func TestLocalLocker_Serializes(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	var mu sync.Mutex
	inside, maxInside := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(ctx, "doctor-1", time.Second)
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Errorf("expected at most one holder, saw %d", maxInside)
	}
	if len(l.locks) != 0 {
		t.Errorf("expected lock table to drain, got %d entries", len(l.locks))
	}
}

func TestLocalLocker_IndependentKeys(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	r1, err := l.Acquire(ctx, "a", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer r1()

	r2, err := l.Acquire(ctx, "b", time.Second)
	if err != nil {
		t.Fatalf("expected independent key to lock, got %v", err)
	}
	r2()
}

func TestLocalLocker_ContextTimeout(t *testing.T) {
	l := NewLocalLocker()
	release, err := l.Acquire(context.Background(), "a", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(ctx, "a", time.Second); !errors.Is(err, ErrLockTimeout) {
		t.Errorf("expected ErrLockTimeout, got %v", err)
	}
}
