package pay_test

import (
	"fmt"
	"testing"

	"shiftpost/internal/domain"
	"shiftpost/internal/pay"
)

func TestHours(t *testing.T) {
	cases := []struct {
		start, end string
		want       int
	}{
		{"08:00", "16:00", 8},
		{"22:00", "02:00", 4},
		{"20:00", "04:00", 8},
		{"00:00", "00:00", 0},
		{"09:30", "17:45", 8}, // minutes ignored
	}
	for _, c := range cases {
		got, err := pay.Hours(c.start, c.end)
		if err != nil {
			t.Fatalf("Hours(%s,%s): %v", c.start, c.end, err)
		}
		if got != c.want {
			t.Errorf("Hours(%s,%s) = %d, want %d", c.start, c.end, got, c.want)
		}
	}
}

func TestHoursInvalid(t *testing.T) {
	for _, v := range []string{"", "25:00", "ab:00"} {
		if _, err := pay.Hours(v, "16:00"); err == nil {
			t.Errorf("Hours(%q, 16:00): expected error", v)
		}
	}
}

func TestSuggested(t *testing.T) {
	table := pay.Default()
	cases := []struct {
		rank, start, end, urgency string
		want                      float64
	}{
		{"SO", "08:00", "16:00", domain.UrgencyNormal, 100},
		{"SO", "22:00", "02:00", domain.UrgencyNormal, 50},
		{"CSO", "20:00", "04:00", domain.UrgencyRush, 172.80},
		{"SSO", "09:00", "17:00", domain.UrgencyNormal, 108},
		{"SS", "10:00", "14:00", domain.UrgencyRush, 72},
	}
	for _, c := range cases {
		got, err := table.Suggested(c.rank, c.start, c.end, c.urgency)
		if err != nil {
			t.Fatalf("Suggested(%s): %v", c.rank, err)
		}
		if got != c.want {
			t.Errorf("Suggested(%s,%s,%s,%s) = %v, want %v", c.rank, c.start, c.end, c.urgency, got, c.want)
		}
	}
}

func TestSuggestedUnknownRank(t *testing.T) {
	table := pay.Default()
	if _, err := table.Suggested("XX", "08:00", "16:00", domain.UrgencyNormal); err == nil {
		t.Fatal("expected error for unknown rank")
	}
}

func TestSuggestedMonotonicInHours(t *testing.T) {
	table := pay.Default()
	for _, rank := range table.Ranks() {
		prev := -1.0
		for h := 9; h <= 20; h++ {
			got, err := table.Suggested(rank, "08:00", pad(h), domain.UrgencyNormal)
			if err != nil {
				t.Fatal(err)
			}
			if got < prev {
				t.Errorf("rank %s: pay decreased at %d hours: %v < %v", rank, h-8, got, prev)
			}
			prev = got
		}
	}
}

func TestRushIsScaledNormal(t *testing.T) {
	table := pay.Default()
	for _, rank := range table.Ranks() {
		normal, err := table.Suggested(rank, "20:00", "04:00", domain.UrgencyNormal)
		if err != nil {
			t.Fatal(err)
		}
		rush, err := table.Suggested(rank, "20:00", "04:00", domain.UrgencyRush)
		if err != nil {
			t.Fatal(err)
		}
		if want := pay.Round2(normal * 1.2); rush != want {
			t.Errorf("rank %s: rush = %v, want %v", rank, rush, want)
		}
	}
}

func TestMinimumOffer(t *testing.T) {
	table := pay.Default()
	min, err := table.MinimumOffer("SO", "08:00", "16:00", domain.UrgencyNormal)
	if err != nil {
		t.Fatal(err)
	}
	if min != 100 {
		t.Errorf("normal floor = %v, want 100", min)
	}
	// Rush floor stays at the non-rush figure.
	min, err = table.MinimumOffer("CSO", "20:00", "04:00", domain.UrgencyRush)
	if err != nil {
		t.Fatal(err)
	}
	if min != 144 {
		t.Errorf("rush floor = %v, want 144", min)
	}
}

func pad(h int) string {
	return fmt.Sprintf("%02d:00", h)
}
