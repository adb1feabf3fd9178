package badger

import (
	"os"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/liber/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

func newTestStorage(t *testing.T) *HistoryStorage {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "badger-test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	options := badgerhold.DefaultOptions
	options.Dir = tmpDir
	options.ValueDir = tmpDir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	db := &BadgerDB{store: store}
	return NewHistoryStorage(db, arbor.NewLogger())
}

func sampleExchange(sessionID string, createdAt time.Time) *models.Exchange {
	return &models.Exchange{
		ID:        models.NewExchangeID(),
		SessionID: sessionID,
		Question:  "Who narrates the story?",
		Answer:    "Ishmael narrates.",
		Sources:   []string{"chapters/ch1.md"},
		Provider:  "gemini",
		LatencyMS: 120,
		CreatedAt: createdAt,
	}
}

func TestHistoryStorage_SaveAndGet(t *testing.T) {
	storage := newTestStorage(t)

	exchange := sampleExchange("sess-1", time.Now().UTC())
	if err := storage.Save(exchange); err != nil {
		t.Fatalf("Failed to save exchange: %v", err)
	}

	loaded, err := storage.Get(exchange.ID)
	if err != nil {
		t.Fatalf("Failed to get exchange: %v", err)
	}

	if loaded.Question != exchange.Question {
		t.Errorf("Question mismatch: got %q, want %q", loaded.Question, exchange.Question)
	}
	if loaded.SessionID != "sess-1" {
		t.Errorf("SessionID mismatch: got %q", loaded.SessionID)
	}
	if len(loaded.Sources) != 1 || loaded.Sources[0] != "chapters/ch1.md" {
		t.Errorf("Sources mismatch: got %v", loaded.Sources)
	}
}

func TestHistoryStorage_SaveRejectsEmptyID(t *testing.T) {
	storage := newTestStorage(t)

	exchange := sampleExchange("sess-1", time.Now().UTC())
	exchange.ID = ""
	if err := storage.Save(exchange); err == nil {
		t.Fatal("Expected error for empty exchange ID")
	}
}

func TestHistoryStorage_GetMissing(t *testing.T) {
	storage := newTestStorage(t)

	if _, err := storage.Get("exch_missing"); err == nil {
		t.Fatal("Expected error for missing exchange")
	}
}

func TestHistoryStorage_ListNewestFirst(t *testing.T) {
	storage := newTestStorage(t)

	base := time.Now().UTC()
	oldest := sampleExchange("sess-1", base.Add(-2*time.Hour))
	middle := sampleExchange("sess-1", base.Add(-1*time.Hour))
	newest := sampleExchange("sess-2", base)

	for _, e := range []*models.Exchange{oldest, middle, newest} {
		if err := storage.Save(e); err != nil {
			t.Fatalf("Failed to save exchange: %v", err)
		}
	}

	exchanges, err := storage.List(10)
	if err != nil {
		t.Fatalf("Failed to list exchanges: %v", err)
	}
	if len(exchanges) != 3 {
		t.Fatalf("Expected 3 exchanges, got %d", len(exchanges))
	}
	if exchanges[0].ID != newest.ID {
		t.Errorf("Expected newest exchange first, got %s", exchanges[0].ID)
	}
	if exchanges[2].ID != oldest.ID {
		t.Errorf("Expected oldest exchange last, got %s", exchanges[2].ID)
	}
}

func TestHistoryStorage_ListRespectsLimit(t *testing.T) {
	storage := newTestStorage(t)

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		e := sampleExchange("sess-1", base.Add(time.Duration(i)*time.Minute))
		if err := storage.Save(e); err != nil {
			t.Fatalf("Failed to save exchange: %v", err)
		}
	}

	exchanges, err := storage.List(2)
	if err != nil {
		t.Fatalf("Failed to list exchanges: %v", err)
	}
	if len(exchanges) != 2 {
		t.Errorf("Expected 2 exchanges, got %d", len(exchanges))
	}
}

func TestHistoryStorage_ListBySession(t *testing.T) {
	storage := newTestStorage(t)

	base := time.Now().UTC()
	inSession := sampleExchange("sess-a", base)
	other := sampleExchange("sess-b", base)

	for _, e := range []*models.Exchange{inSession, other} {
		if err := storage.Save(e); err != nil {
			t.Fatalf("Failed to save exchange: %v", err)
		}
	}

	exchanges, err := storage.ListBySession("sess-a", 10)
	if err != nil {
		t.Fatalf("Failed to list by session: %v", err)
	}
	if len(exchanges) != 1 {
		t.Fatalf("Expected 1 exchange, got %d", len(exchanges))
	}
	if exchanges[0].ID != inSession.ID {
		t.Errorf("Wrong exchange returned: %s", exchanges[0].ID)
	}
}

func TestHistoryStorage_DeleteOlderThan(t *testing.T) {
	storage := newTestStorage(t)

	now := time.Now().UTC()
	stale := sampleExchange("sess-1", now.AddDate(0, 0, -40))
	fresh := sampleExchange("sess-1", now)

	for _, e := range []*models.Exchange{stale, fresh} {
		if err := storage.Save(e); err != nil {
			t.Fatalf("Failed to save exchange: %v", err)
		}
	}

	deleted, err := storage.DeleteOlderThan(30)
	if err != nil {
		t.Fatalf("Failed to delete stale exchanges: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 deleted, got %d", deleted)
	}

	count, err := storage.Count()
	if err != nil {
		t.Fatalf("Failed to count exchanges: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 remaining exchange, got %d", count)
	}

	if _, err := storage.Get(fresh.ID); err != nil {
		t.Errorf("Fresh exchange should survive retention: %v", err)
	}
}
