package cronexpr

import (
	"testing"
	"time"
)

func TestParseWrongFieldCount(t *testing.T) {
	if _, err := Parse("* * * *"); err == nil {
		t.Error("expected error for 4-field expression")
	}
	if _, err := Parse("* * * * * *"); err == nil {
		t.Error("expected error for 6-field expression")
	}
}

func TestParseWildcardField(t *testing.T) {
	e, err := Parse("* * * * *")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	fields := e.Fields()
	if len(fields[0]) != 60 {
		t.Errorf("expected 60 minute values, got %d", len(fields[0]))
	}
	if len(fields[1]) != 24 {
		t.Errorf("expected 24 hour values, got %d", len(fields[1]))
	}
	if len(fields[2]) != 31 {
		t.Errorf("expected 31 day-of-month values, got %d", len(fields[2]))
	}
	if len(fields[3]) != 12 {
		t.Errorf("expected 12 month values, got %d", len(fields[3]))
	}
	if len(fields[4]) != 7 {
		t.Errorf("expected 7 day-of-week values, got %d", len(fields[4]))
	}
}

func TestParseListField(t *testing.T) {
	e, err := Parse("1,3,5 * * * *")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got := e.Fields()[0]
	want := []int{1, 3, 5}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}

func TestParseRangeField(t *testing.T) {
	e, err := Parse("10-12 * * * *")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got := e.Fields()[0]
	want := []int{10, 11, 12}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}

func TestParseStepField(t *testing.T) {
	e, err := Parse("*/15 * * * *")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got := e.Fields()[0]
	want := []int{0, 15, 30, 45}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}

func TestParseRangeStepField(t *testing.T) {
	e, err := Parse("10-20/5 * * * *")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got := e.Fields()[0]
	want := []int{10, 15, 20}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}

func TestParseDayOfWeekSevenNormalizesToZero(t *testing.T) {
	e, err := Parse("* * * * 7")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got := e.Fields()[4]
	if len(got) != 1 || got[0] != 0 {
		t.Errorf("expected day-of-week 7 to normalize to [0], got %v", got)
	}
}

func TestParseOutOfRangeValueRejected(t *testing.T) {
	if _, err := Parse("60 * * * *"); err == nil {
		t.Error("expected error for minute value 60")
	}
	if _, err := Parse("* 24 * * *"); err == nil {
		t.Error("expected error for hour value 24")
	}
	if _, err := Parse("* * 0 * *"); err == nil {
		t.Error("expected error for day-of-month value 0")
	}
}

func TestParseInvalidStepRejected(t *testing.T) {
	if _, err := Parse("*/0 * * * *"); err == nil {
		t.Error("expected error for zero step")
	}
	if _, err := Parse("*/abc * * * *"); err == nil {
		t.Error("expected error for non-numeric step")
	}
}

func TestNextRunAdvancesToNextDailyOccurrence(t *testing.T) {
	e, err := Parse("0 0 * * *")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	after := time.Date(2026, 8, 3, 10, 15, 0, 0, time.UTC)
	want := time.Date(2026, 8, 4, 0, 0, 0, 0, time.UTC)

	got := e.NextRun(after)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestNextRunSameDayLaterMinute(t *testing.T) {
	e, err := Parse("30 9 * * *")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	after := time.Date(2026, 8, 3, 8, 0, 0, 0, time.UTC)
	want := time.Date(2026, 8, 3, 9, 30, 0, 0, time.UTC)

	got := e.NextRun(after)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestMatchesDomOrDowCombiningRule(t *testing.T) {
	// dom=1, dow=Monday, neither wildcarded: either condition alone matches.
	e, err := Parse("0 0 1 * 1")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	domOnly := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC) // Saturday the 1st
	if !e.matches(domOnly) {
		t.Error("expected day-of-month match alone to satisfy the combining rule")
	}

	dowOnly := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC) // Monday the 10th
	if !e.matches(dowOnly) {
		t.Error("expected day-of-week match alone to satisfy the combining rule")
	}

	neither := time.Date(2026, 8, 6, 0, 0, 0, 0, time.UTC) // Thursday the 6th
	if e.matches(neither) {
		t.Error("expected neither dom nor dow matching to fail")
	}
}

func TestMatchesDomWildcardUsesOnlyDow(t *testing.T) {
	e, err := Parse("0 0 * * 1")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	monday := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	tuesday := time.Date(2026, 8, 11, 0, 0, 0, 0, time.UTC)

	if !e.matches(monday) {
		t.Error("expected monday to match when dom is wildcarded")
	}
	if e.matches(tuesday) {
		t.Error("expected tuesday not to match when dow requires monday")
	}
}

func TestMatchesBothWildcardedMatchesEveryDay(t *testing.T) {
	e, err := Parse("0 0 * * *")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !e.matches(time.Date(2026, 8, 6, 0, 0, 0, 0, time.UTC)) {
		t.Error("expected every day to match when both dom and dow are wildcarded")
	}
}
