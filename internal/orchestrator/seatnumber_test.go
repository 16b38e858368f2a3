package orchestrator

import "testing"

func TestParseSeatNumberBasic(t *testing.T) {
	row, col, err := parseSeatNumber("A1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row != 0 || col != 1 {
		t.Errorf("expected row=0 col=1, got row=%d col=%d", row, col)
	}
}

func TestParseSeatNumberIsCaseInsensitive(t *testing.T) {
	rowUpper, colUpper, _ := parseSeatNumber("B2")
	rowLower, colLower, _ := parseSeatNumber("b2")
	if rowUpper != rowLower || colUpper != colLower {
		t.Errorf("expected case-insensitive parsing to agree, got (%d,%d) vs (%d,%d)", rowUpper, colUpper, rowLower, colLower)
	}
}

func TestParseSeatNumberRejectsMalformedInput(t *testing.T) {
	for _, bad := range []string{"", "1A", "A", "A-1", "A1B"} {
		if _, _, err := parseSeatNumber(bad); err == nil {
			t.Errorf("expected %q to be rejected as malformed", bad)
		}
	}
}

func TestSeatLabelRoundTripsWithParseSeatNumber(t *testing.T) {
	row, col, err := parseSeatNumber(seatLabel(2, 5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row != 2 || col != 5 {
		t.Errorf("expected round-trip (2,5), got (%d,%d)", row, col)
	}
}

func TestLexicographicallyFirstFreeSkipsOccupiedSeats(t *testing.T) {
	occupied := map[string]struct{}{"A1": {}, "A2": {}}
	got := lexicographicallyFirstFree(2, 2, occupied)
	if got != "B1" {
		t.Errorf("expected the first free seat to be B1, got %q", got)
	}
}

func TestLexicographicallyFirstFreeReturnsEmptyWhenFull(t *testing.T) {
	occupied := map[string]struct{}{"A1": {}, "A2": {}}
	got := lexicographicallyFirstFree(1, 2, occupied)
	if got != "" {
		t.Errorf("expected no free seat, got %q", got)
	}
}
