package signal

import (
	"math"

	"scalpengine/indicator"
)

// Targets is the output of computeTargets (spec §4.C).
type Targets struct {
	StopLoss        float64
	TakeProfit      float64
	RiskRewardRatio float64
}

// riskReward returns the reward multiple for a signal kind: 2 for the
// STRONG_* tiers, 1.5 for plain BUY/SELL (spec §4.C).
func riskReward(k Kind) float64 {
	switch k {
	case StrongBuy, StrongSell:
		return 2.0
	default:
		return 1.5
	}
}

// ComputeTargets derives stop-loss/take-profit/risk-reward for an entry at
// price, given the signal side, the current swing levels, and the
// configured fallback stop percentage. swingLow/swingHigh may be
// indicator.Undefined, in which case only the percent-based fallback is
// used.
func ComputeTargets(price float64, k Kind, swingLow, swingHigh, stopLossPercent float64) Targets {
	rr := riskReward(k)

	switch k.Side() {
	case SideLong:
		fallback := price * (1 - stopLossPercent/100)
		stop := fallback
		if indicator.Finite(swingLow) {
			stop = math.Min(swingLow*0.995, fallback)
		}
		risk := price - stop
		target := price + risk*rr
		return Targets{StopLoss: stop, TakeProfit: target, RiskRewardRatio: riskRewardRatio(target, price, stop)}

	case SideShort:
		fallback := price * (1 + stopLossPercent/100)
		stop := fallback
		if indicator.Finite(swingHigh) {
			stop = math.Max(swingHigh*1.005, fallback)
		}
		risk := stop - price
		target := price - risk*rr
		return Targets{StopLoss: stop, TakeProfit: target, RiskRewardRatio: riskRewardRatio(target, price, stop)}

	default:
		return Targets{}
	}
}

func riskRewardRatio(target, entry, stop float64) float64 {
	denom := entry - stop
	if denom == 0 {
		return 0
	}
	return math.Abs((target - entry) / denom)
}
