package pay

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"shiftpost/internal/domain"
)

// Table maps officer ranks to base hourly rates and carries the rush premium.
type Table struct {
	Rates          map[string]float64
	RushMultiplier float64
}

// Default returns the standard five-rank rate table.
func Default() Table {
	return Table{
		Rates: map[string]float64{
			"SO":  12.5,
			"SSO": 13.5,
			"SS":  15,
			"SSS": 16.5,
			"CSO": 18,
		},
		RushMultiplier: 1.2,
	}
}

// Ranks returns the known ranks sorted by ascending base rate.
func (t Table) Ranks() []string {
	ranks := make([]string, 0, len(t.Rates))
	for r := range t.Rates {
		ranks = append(ranks, r)
	}
	sort.Slice(ranks, func(i, j int) bool { return t.Rates[ranks[i]] < t.Rates[ranks[j]] })
	return ranks
}

// Rate looks up the base hourly rate for a rank.
func (t Table) Rate(rank string) (float64, bool) {
	rate, ok := t.Rates[rank]
	return rate, ok
}

// Hours returns the shift span in whole hours. Only the hour component of
// each time is considered; an end hour before the start hour means the shift
// crosses midnight.
func Hours(start, end string) (int, error) {
	sh, err := hourOf(start)
	if err != nil {
		return 0, err
	}
	eh, err := hourOf(end)
	if err != nil {
		return 0, err
	}
	h := eh - sh
	if h < 0 {
		h += 24
	}
	return h, nil
}

func hourOf(v string) (int, error) {
	hh, _, _ := strings.Cut(v, ":")
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid time %q", v)
	}
	return h, nil
}

// Suggested computes the advisory pay for a shift, rush bonus included.
func (t Table) Suggested(rank, start, end, urgency string) (float64, error) {
	rate, ok := t.Rates[rank]
	if !ok {
		return 0, fmt.Errorf("unknown rank %q", rank)
	}
	hours, err := Hours(start, end)
	if err != nil {
		return 0, err
	}
	amount := rate * float64(hours)
	if urgency == domain.UrgencyRush {
		amount *= t.RushMultiplier
	}
	return Round2(amount), nil
}

// MinimumOffer is the lowest acceptable offer pay for a shift. The floor is
// the non-rush base figure: the rush bonus is advisory, not a hard minimum.
func (t Table) MinimumOffer(rank, start, end, urgency string) (float64, error) {
	suggested, err := t.Suggested(rank, start, end, urgency)
	if err != nil {
		return 0, err
	}
	if urgency == domain.UrgencyRush {
		return Round2(suggested / t.RushMultiplier), nil
	}
	return suggested, nil
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
