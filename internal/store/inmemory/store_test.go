package inmemory

import (
	"context"
	"testing"
	"time"

	"github.com/dvloznov/budget-tracker/internal/domain"
)

func TestStore_InsertAndListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	_, err := s.Insert(ctx,
		domain.Transaction{Name: "Old", Value: -100, Date: base},
		domain.Transaction{Name: "New", Value: 200, Date: base.Add(48 * time.Hour)},
		domain.Transaction{Name: "Mid", Value: -50, Date: base.Add(24 * time.Hour)},
	)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"New", "Mid", "Old"}
	if len(got) != len(want) {
		t.Fatalf("List len = %d, want %d", len(got), len(want))
	}
	for i, name := range want {
		if got[i].Name != name {
			t.Errorf("List[%d] = %q, want %q", i, got[i].Name, name)
		}
		if got[i].ID == "" {
			t.Errorf("List[%d] has no ID", i)
		}
	}
}

func TestStore_InsertDedupesByID(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	tx := domain.NewTransaction("Rent", 500, false, time.Now())

	first, err := s.Insert(ctx, tx)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	replay := tx
	replay.Name = "Rent (replayed)"
	second, err := s.Insert(ctx, replay)
	if err != nil {
		t.Fatalf("Insert replay: %v", err)
	}
	if second[0].Name != first[0].Name {
		t.Errorf("replay returned %q, want stored %q", second[0].Name, first[0].Name)
	}

	all, _ := s.List(ctx)
	if len(all) != 1 {
		t.Errorf("List len = %d, want 1", len(all))
	}
}

func TestStore_EqualDatesLatestWriteFirst(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	s.Insert(ctx, domain.Transaction{Name: "first", Date: at})
	s.Insert(ctx, domain.Transaction{Name: "second", Date: at})

	got, _ := s.List(ctx)
	if got[0].Name != "second" {
		t.Errorf("List[0] = %q, want second", got[0].Name)
	}
}

func TestStore_Closed(t *testing.T) {
	s := NewStore()
	s.Close()
	if _, err := s.List(context.Background()); err == nil {
		t.Error("List after Close should fail")
	}
	if _, err := s.Insert(context.Background(), domain.Transaction{Name: "x"}); err == nil {
		t.Error("Insert after Close should fail")
	}
}
