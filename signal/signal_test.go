package signal

import (
	"testing"

	"scalpengine/indicator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseSet() indicator.Set {
	return indicator.Set{
		RSI: 50, EMA9: 100, EMA21: 100, EMA50: 100, EMA200: 100,
		VWAP: 100, Volume: 100, AvgVolume20: 100,
		SwingLow: 95, SwingHigh: 105,
	}
}

func TestSynthesize_Warming(t *testing.T) {
	r := Synthesize(baseSet(), 100, true)
	assert.Equal(t, Hold, r.Signal)
	assert.Equal(t, 50.0, r.Confidence)
}

func TestSynthesize_UndefinedIndicatorsForceHold(t *testing.T) {
	u := indicator.Undefined
	r := Synthesize(indicator.Set{
		RSI: u, EMA9: u, EMA21: u, EMA50: u, EMA200: u,
		VWAP: u, Volume: u, AvgVolume20: u, SwingLow: u, SwingHigh: u,
	}, 100, false)
	assert.Equal(t, Hold, r.Signal)
}

func TestSynthesize_Tier1ScalpingLong(t *testing.T) {
	s := baseSet()
	s.EMA9, s.EMA21 = 101, 100
	s.RSI = 40
	s.Volume, s.AvgVolume20 = 150, 100 // volRatio 1.5
	r := Synthesize(s, 100, false)
	require.Equal(t, StrongBuy, r.Signal)
	assert.Equal(t, ReasonEMACross, r.Reason)
	assert.InDelta(t, 87.5, r.Confidence, 1e-9) // 80 + min(10, 1.5*5)
}

func TestSynthesize_Tier2ScalpingShort(t *testing.T) {
	s := baseSet()
	s.EMA9, s.EMA21 = 99, 100
	s.RSI = 60
	s.Volume, s.AvgVolume20 = 120, 100
	r := Synthesize(s, 100, false)
	assert.Equal(t, StrongSell, r.Signal)
	assert.Equal(t, ReasonEMACross, r.Reason)
}

func TestSynthesize_VolumeBonusCappedAt10(t *testing.T) {
	s := baseSet()
	s.EMA9, s.EMA21 = 101, 100
	s.RSI = 40
	s.Volume, s.AvgVolume20 = 1000, 100 // huge ratio -> bonus capped at 10
	r := Synthesize(s, 100, false)
	assert.Equal(t, 90.0, r.Confidence)
}

func TestSynthesize_PullbackLong(t *testing.T) {
	s := indicator.Set{
		RSI: 50, EMA9: 90, EMA21: 90, EMA50: 100, EMA200: 90,
		VWAP: 95, Volume: 10, AvgVolume20: 100,
		SwingLow: 90, SwingHigh: 110,
	}
	price := 100.3 // within 0.5% of EMA50=100
	r := Synthesize(s, price, false)
	assert.Equal(t, Buy, r.Signal)
	assert.Equal(t, ReasonPullbackLong, r.Reason)
}

func TestSynthesize_HoldOtherwise(t *testing.T) {
	s := indicator.Set{
		RSI: 80, EMA9: 100, EMA21: 100, EMA50: 100, EMA200: 100,
		VWAP: 100, Volume: 1, AvgVolume20: 100,
	}
	r := Synthesize(s, 100, false)
	assert.Equal(t, Hold, r.Signal)
	assert.Equal(t, 50.0, r.Confidence)
}

func TestComputeTargets_Long(t *testing.T) {
	tg := ComputeTargets(100, Buy, 99, 105, 0.5)
	// swing-based stop: min(99*0.995, 100*0.995) = min(98.505, 99.5) = 98.505
	assert.InDelta(t, 98.505, tg.StopLoss, 1e-9)
	risk := 100 - 98.505
	assert.InDelta(t, 100+risk*1.5, tg.TakeProfit, 1e-9)
}

func TestComputeTargets_Short(t *testing.T) {
	tg := ComputeTargets(100, StrongSell, 90, 101, 0.5)
	// swing-based stop: max(101*1.005, 100*1.005) = max(101.505, 100.5) = 101.505
	assert.InDelta(t, 101.505, tg.StopLoss, 1e-9)
	risk := 101.505 - 100
	assert.InDelta(t, 100-risk*2.0, tg.TakeProfit, 1e-9)
}

func TestComputeTargets_FallsBackWithoutSwingData(t *testing.T) {
	tg := ComputeTargets(100, Buy, indicator.Undefined, indicator.Undefined, 1.0)
	assert.InDelta(t, 99.0, tg.StopLoss, 1e-9)
}
