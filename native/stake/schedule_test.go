package stake

import (
	"math/big"
	"testing"
)

func TestLinearEmission(t *testing.T) {
	schedule := RewardSchedule{Kind: ScheduleLinear, RatePerSecond: big.NewInt(10)}

	emitted, cursor := schedule.Emission(100, 250)
	if emitted.Cmp(big.NewInt(1500)) != 0 {
		t.Fatalf("expected 1500, got %s", emitted)
	}
	if cursor != 0 {
		t.Fatalf("linear schedules report cursor 0, got %d", cursor)
	}

	if emitted, _ := schedule.Emission(250, 250); emitted.Sign() != 0 {
		t.Fatalf("empty interval must emit nothing, got %s", emitted)
	}
	if emitted, _ := (RewardSchedule{Kind: ScheduleLinear}).Emission(0, 100); emitted.Sign() != 0 {
		t.Fatalf("nil rate must emit nothing, got %s", emitted)
	}
}

func TestMonthlyTrancheProRates(t *testing.T) {
	schedule := RewardSchedule{
		Kind:     ScheduleMonthly,
		Tranches: []*big.Int{big.NewInt(1000), big.NewInt(2000)},
	}
	day := uint64(24 * 60 * 60)

	// Day 29 sits inside the first period: 1000 * 29/30 = 966 truncated.
	emitted, cursor := schedule.Emission(0, 29*day)
	if emitted.Cmp(big.NewInt(966)) != 0 {
		t.Fatalf("expected 966, got %s", emitted)
	}
	if cursor != 0 {
		t.Fatalf("first period not elapsed, cursor should be 0, got %d", cursor)
	}

	// Day 31: full first tranche plus one day of the second.
	emitted, cursor = schedule.Emission(0, 31*day)
	if emitted.Cmp(big.NewInt(1066)) != 0 {
		t.Fatalf("expected 1066, got %s", emitted)
	}
	if cursor != 1 {
		t.Fatalf("one period elapsed, cursor should be 1, got %d", cursor)
	}

	// Two full months exhaust the schedule.
	emitted, cursor = schedule.Emission(0, 60*day)
	if emitted.Cmp(big.NewInt(3000)) != 0 {
		t.Fatalf("expected 3000, got %s", emitted)
	}
	if cursor != 2 {
		t.Fatalf("cursor should reach the tranche count, got %d", cursor)
	}

	// Time past the last tranche emits nothing.
	if emitted, _ := schedule.Emission(60*day, 100*day); emitted.Sign() != 0 {
		t.Fatalf("exhausted schedule must emit nothing, got %s", emitted)
	}
}

func TestWeeklyTrancheAnchor(t *testing.T) {
	schedule := RewardSchedule{
		Kind:       ScheduleWeekly,
		Tranches:   []*big.Int{big.NewInt(700)},
		AnchorTime: 100,
	}

	// Nothing emits before the anchor.
	if emitted, _ := schedule.Emission(0, 100); emitted.Sign() != 0 {
		t.Fatalf("pre-anchor interval must emit nothing, got %s", emitted)
	}

	// Half a week in: 700 * 3.5/7 = 350.
	emitted, cursor := schedule.Emission(100, 100+SecondsPerWeek/2)
	if emitted.Cmp(big.NewInt(350)) != 0 {
		t.Fatalf("expected 350, got %s", emitted)
	}
	if cursor != 0 {
		t.Fatalf("cursor should be 0 mid-period, got %d", cursor)
	}

	emitted, cursor = schedule.Emission(100, 100+SecondsPerWeek)
	if emitted.Cmp(big.NewInt(700)) != 0 {
		t.Fatalf("expected 700, got %s", emitted)
	}
	if cursor != 1 {
		t.Fatalf("cursor should advance after a full week, got %d", cursor)
	}
}

func TestTrancheEmissionNeverDoubleCounts(t *testing.T) {
	schedule := RewardSchedule{
		Kind:     ScheduleMonthly,
		Tranches: []*big.Int{big.NewInt(1000), big.NewInt(2000), big.NewInt(500)},
	}

	// Chop the full horizon into uneven segments; the segment sum must equal
	// the whole-interval emission exactly.
	checkpoints := []uint64{0, 123_456, SecondsPerMonth - 1, SecondsPerMonth + 86_400, 2*SecondsPerMonth + 7, 3 * SecondsPerMonth}
	total := big.NewInt(0)
	for i := 1; i < len(checkpoints); i++ {
		emitted, _ := schedule.Emission(checkpoints[i-1], checkpoints[i])
		total.Add(total, emitted)
	}

	whole, _ := schedule.Emission(0, 3*SecondsPerMonth)
	if total.Cmp(whole) != 0 {
		t.Fatalf("segmented emission %s != whole-interval emission %s", total, whole)
	}
	if whole.Cmp(big.NewInt(3500)) != 0 {
		t.Fatalf("expected full schedule total 3500, got %s", whole)
	}
}
