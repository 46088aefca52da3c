package journal

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/charmbracelet/log"

	"bond/intent"
)

func testJournal(t *testing.T, j Journal) {
	t.Helper()
	ctx := context.Background()

	entries := []Entry{
		{Kind: KindExecuted, RequestID: "r1", Label: "Move KAN-1?", Command: intent.Move("KAN-1", "3"), Success: true, Message: "Moved KAN-1"},
		{Kind: KindDismissed, RequestID: "r2", Label: `Create "X"?`, Command: intent.Create("X")},
		{Kind: KindFailed, RequestID: "r3", Label: "Move KAN-2?", Command: intent.Move("KAN-2", "9"), Message: "no transition available to status 9"},
	}
	for _, e := range entries {
		if err := j.Record(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	got, err := j.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent(2) returned %d entries", len(got))
	}
	if got[0].RequestID != "r3" || got[1].RequestID != "r2" {
		t.Errorf("order = %s, %s", got[0].RequestID, got[1].RequestID)
	}
	if got[0].Command != intent.Move("KAN-2", "9") || got[0].Kind != KindFailed {
		t.Errorf("entry = %+v", got[0])
	}
	if got[0].At.IsZero() || got[0].ID == 0 {
		t.Errorf("entry missing id or time: %+v", got[0])
	}
}

func TestMemory(t *testing.T) {
	testJournal(t, NewMemory(10))
}

func TestMemoryIsBounded(t *testing.T) {
	m := NewMemory(3)
	for i := 0; i < 5; i++ {
		m.Record(context.Background(), Entry{Kind: KindExecuted})
	}
	got, _ := m.Recent(context.Background(), 10)
	if len(got) != 3 || got[0].ID != 5 || got[2].ID != 3 {
		t.Errorf("entries = %+v", got)
	}
}

func TestPostgres(t *testing.T) {
	url := os.Getenv("BOND_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("BOND_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	p, err := OpenPostgres(ctx, url, log.New(io.Discard))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	if _, err := p.pool.Exec(ctx, "TRUNCATE bond_activity"); err != nil {
		t.Fatal(err)
	}
	testJournal(t, p)
}
