package pool

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eventTs = int64(1_756_700_000_000)

func newDefaultPool(t *testing.T) Pool {
	t.Helper()
	p, err := New(DefaultConfig())
	require.NoError(t, err)
	return p
}

func TestNewRaisesInitialToMinimum(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinLiquidityEth = 1
	cfg.InitialLiquidityEth = 1.4
	p, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, 1.4, p.EthLiquidity)
	assert.True(t, p.Metrics().SupportsDex)

	cfg.InitialLiquidityEth = 0.2
	p, err = New(cfg)
	require.NoError(t, err)
	assert.Equal(t, 1.0, p.EthLiquidity)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.MaxUtilization = 0
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.WidenedSpreadBps = bad.BaseSpreadBps - 1
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.FeeBps = math.NaN()
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.MinLiquidityEth = -1
	assert.Error(t, bad.Validate())
}

func TestStake(t *testing.T) {
	p := newDefaultPool(t)
	before := p.EthLiquidity

	staked, err := p.Stake(0.5, "lp1", eventTs)
	require.NoError(t, err)
	assert.Equal(t, before+0.5, staked.EthLiquidity)
	assert.Equal(t, 0.5, staked.Stakers["lp1"])
	require.NotNil(t, staked.LastEvent)
	assert.Equal(t, EventStake, staked.LastEvent.Type)
	assert.Equal(t, "lp1", staked.LastEvent.StakerID)
	assert.NotEmpty(t, staked.LastEvent.ID)

	// Input pool untouched.
	assert.Equal(t, before, p.EthLiquidity)
	assert.Empty(t, p.Stakers)

	// Repeat stakes accumulate on the same entry.
	again, err := staked.Stake(0.25, "lp1", eventTs)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, again.Stakers["lp1"], 1e-12)

	_, err = p.Stake(0, "lp1", eventTs)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = p.Stake(math.NaN(), "lp1", eventTs)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = p.Stake(math.Inf(1), "lp1", eventTs)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestWithdraw(t *testing.T) {
	p := newDefaultPool(t)
	staked, err := p.Stake(1, "lp1", eventTs)
	require.NoError(t, err)

	// Full exit restores liquidity and removes the entry.
	out, err := staked.Withdraw(1, "lp1", eventTs)
	require.NoError(t, err)
	assert.InDelta(t, p.EthLiquidity, out.EthLiquidity, 1e-12)
	_, remains := out.Stakers["lp1"]
	assert.False(t, remains)
	assert.Equal(t, EventWithdraw, out.LastEvent.Type)

	// Overdrawing a small position fails and leaves the pool unchanged.
	small, err := p.Stake(0.3, "lp1", eventTs)
	require.NoError(t, err)
	same, err := small.Withdraw(0.5, "lp1", eventTs)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, small.EthLiquidity, same.EthLiquidity)
	assert.Equal(t, 0.3, same.Stakers["lp1"])

	// Unknown staker.
	_, err = staked.Withdraw(0.1, "ghost", eventTs)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	_, err = staked.Withdraw(-1, "lp1", eventTs)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestWithdrawMinimumLiquidityFloor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinLiquidityEth = 1.5
	cfg.InitialLiquidityEth = 1.5
	p, err := New(cfg)
	require.NoError(t, err)

	staked, err := p.Stake(1, "lp1", eventTs)
	require.NoError(t, err)

	// Exiting the whole stake lands exactly at the minimum: allowed.
	atFloor, err := staked.Withdraw(1, "lp1", eventTs)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, atFloor.EthLiquidity, 1e-12)

	// A withdrawal that would cross the floor is refused even though the
	// staker holds the balance, and the pool comes back unchanged.
	shallow, err := p.Stake(0.3, "lp1", eventTs)
	require.NoError(t, err)
	drained := shallow
	drained.EthLiquidity = cfg.MinLiquidityEth + 0.1
	same, err := drained.Withdraw(0.3, "lp1", eventTs)
	assert.ErrorIs(t, err, ErrBelowMinimumLiquidity)
	assert.Equal(t, drained.EthLiquidity, same.EthLiquidity)
	assert.Equal(t, 0.3, same.Stakers["lp1"])
}

func TestDistributeFees(t *testing.T) {
	p := newDefaultPool(t)

	fed, err := p.DistributeFees(0.05, eventTs)
	require.NoError(t, err)
	assert.InDelta(t, p.EthLiquidity+0.05, fed.EthLiquidity, 1e-12)
	assert.InDelta(t, 0.05, fed.CumulativeFeesEth, 1e-12)
	assert.Equal(t, EventFee, fed.LastEvent.Type)

	// Zero is a no-op returning the same pool value.
	same, err := p.DistributeFees(0, eventTs)
	require.NoError(t, err)
	assert.Equal(t, p, same)

	_, err = p.DistributeFees(-0.1, eventTs)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestCreditTreasury(t *testing.T) {
	p := newDefaultPool(t)

	credited, err := p.CreditTreasury(0.02, eventTs)
	require.NoError(t, err)
	assert.InDelta(t, 0.02, credited.TreasuryEth, 1e-12)
	// Treasury funds are not tradable liquidity.
	assert.Equal(t, p.EthLiquidity, credited.EthLiquidity)
	assert.Equal(t, EventTreasury, credited.LastEvent.Type)

	same, err := p.CreditTreasury(0, eventTs)
	require.NoError(t, err)
	assert.Equal(t, p, same)

	_, err = p.CreditTreasury(-1, eventTs)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestMetrics(t *testing.T) {
	p := newDefaultPool(t)
	m := p.Metrics()

	assert.True(t, m.SupportsDex)
	assert.InDelta(t, 1.2, m.CoverageRatio, 1e-12)
	assert.InDelta(t, 1.2*4.5, m.EffectiveDepthEth, 1e-12)
	assert.InDelta(t, 0.2, m.SafetyBufferEth, 1e-12)
	assert.GreaterOrEqual(t, m.DepthScalar, 0.25)
	assert.LessOrEqual(t, m.DepthScalar, 4.0)
	assert.Equal(t, 12.0, m.FeeBps)
	assert.Equal(t, 8.0, m.BaseSpreadBps)
	assert.Equal(t, 26.0, m.WidenedSpreadBps)

	cfg := DefaultConfig()
	cfg.MinLiquidityEth = 0
	cfg.InitialLiquidityEth = 1
	free, err := New(cfg)
	require.NoError(t, err)
	assert.True(t, math.IsInf(free.Metrics().CoverageRatio, 1))
}

func TestEstimateZeroSize(t *testing.T) {
	res := Estimate(newDefaultPool(t), 0, SideBuy)
	assert.True(t, res.Permitted)
	assert.Equal(t, 0.0, res.FeeEth)
	assert.Equal(t, 0.0, res.TotalCostEth)
	assert.Equal(t, 0.0, res.Utilization)
	assert.Equal(t, 8.0, res.SpreadBps)
}

func TestEstimateRejections(t *testing.T) {
	p := newDefaultPool(t)

	res := Estimate(p, math.NaN(), SideBuy)
	assert.False(t, res.Permitted)
	assert.NotEmpty(t, res.Reason)

	res = Estimate(p, -1, SideBuy)
	assert.False(t, res.Permitted)

	cfg := DefaultConfig()
	cfg.MinLiquidityEth = 10
	cfg.InitialLiquidityEth = 10
	rich, err := New(cfg)
	require.NoError(t, err)
	drained := rich
	drained.EthLiquidity = 5
	res = Estimate(drained, 1, SideBuy)
	assert.False(t, res.Permitted)
	assert.NotEmpty(t, res.Reason)
}

func TestEstimateCostModel(t *testing.T) {
	p := newDefaultPool(t)
	m := p.Metrics()
	size := 1.0

	res := Estimate(p, size, SideBuy)
	require.True(t, res.Permitted)

	wantUtil := size / (m.EffectiveDepthEth * p.Config.MaxUtilization)
	assert.InDelta(t, wantUtil, res.Utilization, 1e-12)
	assert.InDelta(t, wantUtil*p.Config.MaxImpactBps, res.ImpactBps, 1e-9)
	assert.InDelta(t, res.SpreadBps+res.ImpactBps, res.SlipBps, 1e-12)
	assert.InDelta(t, 1+res.SlipBps/10_000, res.SlipFactor, 1e-12)
	assert.InDelta(t, size*p.Config.FeeBps/10_000, res.FeeEth, 1e-12)
	assert.InDelta(t, size*res.SlipFactor+res.FeeEth, res.TotalCostEth, 1e-12)

	sell := Estimate(p, size, SideSell)
	require.True(t, sell.Permitted)
	assert.InDelta(t, 1-sell.SlipBps/10_000, sell.SlipFactor, 1e-12)
	assert.LessOrEqual(t, sell.SlipFactor, 1.0)
}

func TestEstimateSpreadRegime(t *testing.T) {
	p := newDefaultPool(t)
	m := p.Metrics()
	denom := m.EffectiveDepthEth * p.Config.MaxUtilization

	calm := Estimate(p, denom*0.5, SideBuy)
	require.True(t, calm.Permitted)
	assert.Equal(t, p.Config.BaseSpreadBps, calm.SpreadBps)

	stressed := Estimate(p, denom*0.8, SideBuy)
	require.True(t, stressed.Permitted)
	assert.Equal(t, p.Config.WidenedSpreadBps, stressed.SpreadBps)

	// Utilization saturates at 1 and impact at its maximum.
	huge := Estimate(p, denom*50, SideBuy)
	require.True(t, huge.Permitted)
	assert.Equal(t, 1.0, huge.Utilization)
	assert.Equal(t, p.Config.MaxImpactBps, huge.ImpactBps)
}

func TestEstimateImpactMonotonic(t *testing.T) {
	p := newDefaultPool(t)
	sizes := []float64{0, 0.1, 0.5, 1, 2, 5, 10, 100}
	prev := -1.0
	for _, size := range sizes {
		res := Estimate(p, size, SideBuy)
		require.True(t, res.Permitted, "size %v", size)
		assert.GreaterOrEqual(t, res.ImpactBps, prev, "size %v", size)
		prev = res.ImpactBps
	}
}

func TestSellSlipFactorNeverNegative(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WidenedSpreadBps = 9_000
	cfg.MaxImpactBps = 5_000
	p, err := New(cfg)
	require.NoError(t, err)

	denom := p.Metrics().EffectiveDepthEth * cfg.MaxUtilization
	res := Estimate(p, denom*2, SideSell)
	require.True(t, res.Permitted)
	assert.Equal(t, 0.0, res.SlipFactor)
}
