package events

import (
	"strings"
	"testing"

	"github.com/lherron/cattree/internal/testutil"
)

func TestPage(t *testing.T) {
	database, _ := testutil.TempDB(t)
	w := NewWriter(database.DB)
	for _, action := range []string{"created", "renamed", "reordered", "renamed", "retired"} {
		if err := w.LogTypeEvent(nil, "tester", "receitas", action, map[string]interface{}{"step": action}); err != nil {
			t.Fatalf("LogTypeEvent failed: %v", err)
		}
	}
	if err := w.LogTypeEvent(nil, "tester", "contas", "created", nil); err != nil {
		t.Fatal(err)
	}

	var seen []string
	next := ""
	pages := 0
	for {
		evs, cur, err := Page(database.DB, "receitas", 2, next)
		if err != nil {
			t.Fatalf("Page failed: %v", err)
		}
		pages++
		for _, e := range evs {
			seen = append(seen, strings.TrimPrefix(e.EventType, "category_type."))
		}
		if cur == "" {
			break
		}
		next = cur
	}

	if pages != 3 {
		t.Errorf("expected 3 pages, got %d", pages)
	}
	want := "retired renamed reordered renamed created"
	if got := strings.Join(seen, " "); got != want {
		t.Errorf("events = %q, want %q", got, want)
	}

	all, err := List(database.DB, "receitas", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 5 {
		t.Errorf("List returned %d events, want 5", len(all))
	}

	if _, _, err := Page(database.DB, "contas", 2, next); err == nil {
		t.Error("a cursor from another resource should be rejected")
	}
}
