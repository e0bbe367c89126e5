package stake

import "math/big"

// strategy computes pool-wide emission for a time interval. Implementations
// never mutate schedule state; the engine persists the advanced cursor it gets
// back from Emission during update.
type strategy interface {
	// emission returns the reward emitted over (from, to].
	emission(from, to uint64) *big.Int
	// cursorAt returns the index of the first tranche not fully elapsed once
	// `to` is reached. Linear schedules always report zero.
	cursorAt(to uint64) int
}

type linearStrategy struct {
	rate *big.Int
}

func (s linearStrategy) emission(from, to uint64) *big.Int {
	if s.rate == nil || s.rate.Sign() <= 0 || to <= from {
		return big.NewInt(0)
	}
	elapsed := new(big.Int).SetUint64(to - from)
	return elapsed.Mul(elapsed, s.rate)
}

func (s linearStrategy) cursorAt(uint64) int { return 0 }

type trancheStrategy struct {
	period   uint64
	anchor   uint64
	tranches []*big.Int
}

// cumulative returns the total emission from the anchor through t. Fully
// elapsed periods contribute their full tranche; the current period
// contributes a pro-rated fraction. Emission past the last tranche is zero.
func (s trancheStrategy) cumulative(t uint64) *big.Int {
	total := big.NewInt(0)
	if s.period == 0 || t <= s.anchor || len(s.tranches) == 0 {
		return total
	}
	elapsed := t - s.anchor
	full := int(elapsed / s.period)
	if full > len(s.tranches) {
		full = len(s.tranches)
	}
	for i := 0; i < full; i++ {
		if s.tranches[i] != nil {
			total.Add(total, s.tranches[i])
		}
	}
	if full < len(s.tranches) {
		inPeriod := elapsed % s.period
		if inPeriod > 0 && s.tranches[full] != nil {
			partial := mulDiv(s.tranches[full], new(big.Int).SetUint64(inPeriod), new(big.Int).SetUint64(s.period))
			total.Add(total, partial)
		}
	}
	return total
}

func (s trancheStrategy) emission(from, to uint64) *big.Int {
	if to <= from {
		return big.NewInt(0)
	}
	emitted := s.cumulative(to)
	emitted.Sub(emitted, s.cumulative(from))
	if emitted.Sign() < 0 {
		return big.NewInt(0)
	}
	return emitted
}

func (s trancheStrategy) cursorAt(to uint64) int {
	if s.period == 0 || to <= s.anchor {
		return 0
	}
	full := int((to - s.anchor) / s.period)
	if full > len(s.tranches) {
		full = len(s.tranches)
	}
	return full
}

// strategyFor materialises the strategy variant persisted on the schedule.
func strategyFor(s RewardSchedule) strategy {
	switch s.Kind {
	case ScheduleMonthly:
		return trancheStrategy{period: SecondsPerMonth, anchor: s.AnchorTime, tranches: s.Tranches}
	case ScheduleWeekly:
		return trancheStrategy{period: SecondsPerWeek, anchor: s.AnchorTime, tranches: s.Tranches}
	default:
		return linearStrategy{rate: s.RatePerSecond}
	}
}

// Emission computes the pool-wide reward emitted over (from, to] together with
// the tranche cursor after `to`. Callers persist the cursor only when they
// commit the interval, so repeated projections never double count.
func (s RewardSchedule) Emission(from, to uint64) (*big.Int, int) {
	strat := strategyFor(s)
	return strat.emission(from, to), strat.cursorAt(to)
}
