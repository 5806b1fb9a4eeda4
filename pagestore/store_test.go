package pagestore

import (
	"context"
	"fmt"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/drdom/drdom/capture/event"
	"github.com/drdom/drdom/dbopen"
)

func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	db := dbopen.OpenMemory(t)
	s, err := New(db, opts...)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func makeBatch(domain, session string, seq uint64, n int) event.Batch {
	b := event.Batch{
		ID:        fmt.Sprintf("b-%s-%d", session, seq),
		Domain:    domain,
		SessionID: session,
		Seq:       seq,
	}
	for i := 0; i < n; i++ {
		b.Events = append(b.Events, event.Captured{
			ID:   fmt.Sprintf("%s-%d-%d", session, seq, i),
			Kind: event.KindRequest,
		})
	}
	return b
}

func TestMergeInitialisesMissingRecord(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Merge(ctx, makeBatch("example.com", "s1", 1, 3)); err != nil {
		t.Fatalf("merge: %v", err)
	}

	rec, err := s.Get(ctx, "example.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec == nil {
		t.Fatal("record missing after merge")
	}
	if !rec.IsLive {
		t.Fatal("record not live after first merge")
	}
	if len(rec.Events) != 3 {
		t.Fatalf("events: got %d, want 3", len(rec.Events))
	}
	if rec.SessionID != "s1" {
		t.Fatalf("session: got %q, want %q", rec.SessionID, "s1")
	}
}

func TestMergeAppendsInOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for seq := uint64(1); seq <= 3; seq++ {
		if err := s.Merge(ctx, makeBatch("example.com", "s1", seq, 2)); err != nil {
			t.Fatalf("merge seq %d: %v", seq, err)
		}
	}

	rec, err := s.Get(ctx, "example.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(rec.Events) != 6 {
		t.Fatalf("events: got %d, want 6", len(rec.Events))
	}
	want := []string{"s1-1-0", "s1-1-1", "s1-2-0", "s1-2-1", "s1-3-0", "s1-3-1"}
	for i, ev := range rec.Events {
		if ev.ID != want[i] {
			t.Fatalf("event %d: got %q, want %q", i, ev.ID, want[i])
		}
	}
}

func TestMergeEvictsOldest(t *testing.T) {
	s := openTestStore(t, WithMaxEvents(4))
	ctx := context.Background()

	if err := s.Merge(ctx, makeBatch("example.com", "s1", 1, 3)); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if err := s.Merge(ctx, makeBatch("example.com", "s1", 2, 3)); err != nil {
		t.Fatalf("merge: %v", err)
	}

	rec, err := s.Get(ctx, "example.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(rec.Events) != 4 {
		t.Fatalf("events: got %d, want 4", len(rec.Events))
	}
	if rec.Evicted != 2 {
		t.Fatalf("evicted: got %d, want 2", rec.Evicted)
	}
	if rec.Events[0].ID != "s1-1-2" {
		t.Fatalf("oldest surviving event: got %q, want %q", rec.Events[0].ID, "s1-1-2")
	}
}

func TestMergeNewSessionReplacesRecord(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Merge(ctx, makeBatch("example.com", "s1", 1, 5)); err != nil {
		t.Fatalf("merge s1: %v", err)
	}
	if err := s.Merge(ctx, makeBatch("example.com", "s2", 1, 2)); err != nil {
		t.Fatalf("merge s2: %v", err)
	}

	rec, err := s.Get(ctx, "example.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.SessionID != "s2" {
		t.Fatalf("session: got %q, want %q", rec.SessionID, "s2")
	}
	if len(rec.Events) != 2 {
		t.Fatalf("events: got %d, want 2 (old session replaced)", len(rec.Events))
	}
}

func TestMarkEnded(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Merge(ctx, makeBatch("example.com", "s1", 1, 1)); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if err := s.MarkEnded(ctx, "example.com"); err != nil {
		t.Fatalf("mark ended: %v", err)
	}

	rec, err := s.Get(ctx, "example.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.IsLive {
		t.Fatal("record still live after MarkEnded")
	}
	if len(rec.Events) != 1 {
		t.Fatalf("events lost by MarkEnded: got %d, want 1", len(rec.Events))
	}

	// Ending an absent domain is a no-op.
	if err := s.MarkEnded(ctx, "absent.example"); err != nil {
		t.Fatalf("mark ended absent: %v", err)
	}
}

func TestMergeAfterMarkEndedRevives(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Merge(ctx, makeBatch("example.com", "s1", 1, 1)); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if err := s.MarkEnded(ctx, "example.com"); err != nil {
		t.Fatalf("mark ended: %v", err)
	}

	// In-tab navigation re-injects instrumentation: the same session
	// flushes again after the unload marker. The record must report live.
	if err := s.Merge(ctx, makeBatch("example.com", "s1", 2, 1)); err != nil {
		t.Fatalf("merge after end: %v", err)
	}

	rec, err := s.Get(ctx, "example.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !rec.IsLive {
		t.Fatal("record not live after post-end merge")
	}
	if len(rec.Events) != 2 {
		t.Fatalf("events: got %d, want 2", len(rec.Events))
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	s := openTestStore(t)
	rec, err := s.Get(context.Background(), "nobody.example")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil record, got %+v", rec)
	}
}

func TestListSummaries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Merge(ctx, makeBatch("a.example", "s1", 1, 2)); err != nil {
		t.Fatalf("merge a: %v", err)
	}
	if err := s.Merge(ctx, makeBatch("b.example", "s2", 1, 4)); err != nil {
		t.Fatalf("merge b: %v", err)
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("summaries: got %d, want 2", len(list))
	}
	counts := map[string]int{}
	for _, sum := range list {
		counts[sum.Domain] = sum.EventCount
	}
	if counts["a.example"] != 2 || counts["b.example"] != 4 {
		t.Fatalf("counts: got %v", counts)
	}
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Merge(ctx, makeBatch("example.com", "s1", 1, 1)); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if err := s.Delete(ctx, "example.com"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	rec, err := s.Get(ctx, "example.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec != nil {
		t.Fatal("record survived delete")
	}
}

func TestMergePersistsSmallTrickle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Seven events arriving as a threshold flush of five plus a
	// timer flush of two must all land in the store.
	if err := s.Merge(ctx, makeBatch("example.com", "s1", 1, 5)); err != nil {
		t.Fatalf("merge full: %v", err)
	}
	if err := s.Merge(ctx, makeBatch("example.com", "s1", 2, 2)); err != nil {
		t.Fatalf("merge partial: %v", err)
	}

	rec, err := s.Get(ctx, "example.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(rec.Events) != 7 {
		t.Fatalf("events: got %d, want 7", len(rec.Events))
	}
}
