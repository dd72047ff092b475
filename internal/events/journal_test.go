package events

import (
	"context"
	"testing"
	"time"

	"orderbot/internal/config"
	"orderbot/internal/store"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()

	db, err := store.Open(config.DatabaseConfig{
		InMemory:     true,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	if err != nil {
		t.Fatalf("opening in-memory store failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	journal, err := NewJournal(db, nil)
	if err != nil {
		t.Fatalf("creating journal failed: %v", err)
	}
	return journal
}

func TestJournalRecordAndRecent(t *testing.T) {
	journal := newTestJournal(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	kinds := []Kind{KindValidationPassed, KindDispatchSent, KindDispatchSucceeded}
	for i, kind := range kinds {
		journal.Record(ctx, Event{
			Timestamp:  base.Add(time.Duration(i) * time.Second),
			StrategyID: "twap-abc123",
			ChildIndex: i,
			Kind:       kind,
			Detail:     "detail",
		})
	}

	got, err := journal.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent returned error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	// Newest first.
	if got[0].Kind != KindDispatchSucceeded || got[1].Kind != KindDispatchSent {
		t.Errorf("unexpected order: %s, %s", got[0].Kind, got[1].Kind)
	}
	if got[0].StrategyID != "twap-abc123" || got[0].ChildIndex != 2 {
		t.Errorf("unexpected event payload: %+v", got[0])
	}
	if !got[0].Timestamp.Equal(base.Add(2 * time.Second)) {
		t.Errorf("timestamp not preserved: %v", got[0].Timestamp)
	}
}

func TestJournalRecordFillsMissingTimestamp(t *testing.T) {
	journal := newTestJournal(t)
	ctx := context.Background()

	journal.Record(ctx, Event{
		StrategyID: "market-xyz",
		ChildIndex: ChildNone,
		Kind:       KindStrategyCompleted,
		Detail:     "status=COMPLETED children=1",
	})

	got, err := journal.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("Recent returned error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].Timestamp.IsZero() {
		t.Error("expected timestamp to be filled in")
	}
}

func TestFanoutDeliversToAllSinks(t *testing.T) {
	var a, b recordingSink
	fan := Fanout{&a, nil, &b}

	fan.Record(context.Background(), Event{Kind: KindDispatchSent})

	if a.count != 1 || b.count != 1 {
		t.Errorf("expected both sinks to receive the event, got %d and %d", a.count, b.count)
	}
}

type recordingSink struct{ count int }

func (s *recordingSink) Record(context.Context, Event) { s.count++ }
