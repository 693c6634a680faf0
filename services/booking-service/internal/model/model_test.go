package model

import (
	"testing"
	"time"
)

func TestWeekdayOf(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	// 2026-03-01 is a Sunday.
	sunday := time.Date(2026, 3, 1, 23, 30, 0, 0, loc)
	if got := WeekdayOf(sunday); got != Domingo {
		t.Fatalf("expected DOMINGO, got %s", got)
	}
	if got := WeekdayOf(sunday.AddDate(0, 0, 6)); got != Sabado {
		t.Fatalf("expected SABADO, got %s", got)
	}
}

func TestParseWeekday(t *testing.T) {
	w, err := ParseWeekday(" terca ")
	if err != nil || w != Terca || w.Index() != 2 {
		t.Fatalf("unexpected parse result %q %v", w, err)
	}
	if _, err := ParseWeekday("MONDAY"); err == nil {
		t.Fatal("expected error for unknown token")
	}
}

func TestBlockScope(t *testing.T) {
	if got := (Provider{ID: "p1", BusinessID: "b1"}).BlockScope(); got != "b1" {
		t.Fatalf("expected business scope, got %s", got)
	}
	if got := (Provider{ID: "p1"}).BlockScope(); got != "p1" {
		t.Fatalf("expected provider scope, got %s", got)
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusPending.Terminal() || !StatusConcluded.Terminal() || !StatusCancelled.Terminal() {
		t.Fatal("unexpected terminal classification")
	}
}
