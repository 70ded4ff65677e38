// Package pool implements the single-sided ETH liquidity pool backing the
// synthetic venue, and the execution-cost estimator priced against it. Pool
// values are immutable: every mutating operation returns a fresh pool and
// leaves its input untouched, so prior snapshots are safe to share across
// readers without locking.
package pool

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// Typed operation errors. Operations fail before any field changes.
var (
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInsufficientBalance   = errors.New("insufficient staked balance")
	ErrBelowMinimumLiquidity = errors.New("withdrawal would drop pool below minimum liquidity")
)

// balanceTolerance absorbs float drift when comparing staker balances.
const balanceTolerance = 1e-9

// Side selects the direction of a trade for execution estimates.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Config is the immutable tuning of a pool, fixed at creation.
type Config struct {
	// MinLiquidityEth is the floor below which withdrawals are refused and
	// trading is disabled
	MinLiquidityEth float64 `json:"minLiquidityEth"`

	// InitialLiquidityEth seeds the pool, raised to MinLiquidityEth if
	// configured lower
	InitialLiquidityEth float64 `json:"initialLiquidityEth"`

	// VirtualInventoryMultiplier leverages staked capital into simulated
	// market depth
	VirtualInventoryMultiplier float64 `json:"virtualInventoryMultiplier"`

	// MaxUtilization caps the share of effective depth one trade may
	// consume before utilization saturates at 1
	MaxUtilization float64 `json:"maxUtilization"`

	FeeBps float64 `json:"feeBps"`

	// BaseSpreadBps applies while utilization stays at or below
	// WidenThreshold; WidenedSpreadBps applies above it
	BaseSpreadBps    float64 `json:"baseSpreadBps"`
	WidenedSpreadBps float64 `json:"widenedSpreadBps"`
	WidenThreshold   float64 `json:"widenThreshold"`

	MaxImpactBps float64 `json:"maxImpactBps"`
}

// DefaultConfig returns the standard HIP-3 tuning.
func DefaultConfig() Config {
	return Config{
		MinLiquidityEth:            1,
		InitialLiquidityEth:        1.2,
		VirtualInventoryMultiplier: 4.5,
		MaxUtilization:             0.65,
		FeeBps:                     12,
		BaseSpreadBps:              8,
		WidenedSpreadBps:           26,
		WidenThreshold:             0.6,
		MaxImpactBps:               240,
	}
}

// Validate rejects configurations that would make the cost model degenerate.
func (c Config) Validate() error {
	check := func(name string, v float64, ok bool) error {
		if math.IsNaN(v) || math.IsInf(v, 0) || !ok {
			return fmt.Errorf("pool config: %s out of range: %v", name, v)
		}
		return nil
	}
	if err := check("minLiquidityEth", c.MinLiquidityEth, c.MinLiquidityEth >= 0); err != nil {
		return err
	}
	if err := check("initialLiquidityEth", c.InitialLiquidityEth, c.InitialLiquidityEth >= 0); err != nil {
		return err
	}
	if err := check("virtualInventoryMultiplier", c.VirtualInventoryMultiplier, c.VirtualInventoryMultiplier > 0); err != nil {
		return err
	}
	if err := check("maxUtilization", c.MaxUtilization, c.MaxUtilization > 0 && c.MaxUtilization <= 1); err != nil {
		return err
	}
	if err := check("feeBps", c.FeeBps, c.FeeBps >= 0); err != nil {
		return err
	}
	if err := check("baseSpreadBps", c.BaseSpreadBps, c.BaseSpreadBps >= 0); err != nil {
		return err
	}
	if err := check("widenedSpreadBps", c.WidenedSpreadBps, c.WidenedSpreadBps >= c.BaseSpreadBps); err != nil {
		return err
	}
	if err := check("widenThreshold", c.WidenThreshold, c.WidenThreshold >= 0 && c.WidenThreshold <= 1); err != nil {
		return err
	}
	return check("maxImpactBps", c.MaxImpactBps, c.MaxImpactBps >= 0)
}

// EventType tags the most recent pool mutation.
type EventType string

const (
	EventStake    EventType = "stake"
	EventWithdraw EventType = "withdraw"
	EventFee      EventType = "fee"
	EventTreasury EventType = "treasury"
)

// Event records one pool mutation.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	StakerID  string    `json:"stakerId,omitempty"`
	AmountEth float64   `json:"amountEth"`
	Timestamp int64     `json:"timestamp"`
}

// Pool is one immutable snapshot of the liquidity pool.
type Pool struct {
	EthLiquidity      float64            `json:"ethLiquidity"`
	CumulativeFeesEth float64            `json:"cumulativeFeesEth"`
	TreasuryEth       float64            `json:"treasuryEth"`
	Stakers           map[string]float64 `json:"stakers"`
	LastEvent         *Event             `json:"lastEvent"`
	Config            Config             `json:"config"`
}

// New creates a pool from a validated config. Initial liquidity is raised to
// the configured minimum when set below it.
func New(cfg Config) (Pool, error) {
	if err := cfg.Validate(); err != nil {
		return Pool{}, err
	}
	return Pool{
		EthLiquidity: math.Max(cfg.InitialLiquidityEth, cfg.MinLiquidityEth),
		Stakers:      map[string]float64{},
		Config:       cfg,
	}, nil
}

func (p Pool) cloneStakers() map[string]float64 {
	out := make(map[string]float64, len(p.Stakers))
	for id, amount := range p.Stakers {
		out[id] = amount
	}
	return out
}

func validAmount(amount float64) bool {
	return !math.IsNaN(amount) && !math.IsInf(amount, 0)
}

func newEvent(t EventType, stakerID string, amount float64, timestampMs int64) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      t,
		StakerID:  stakerID,
		AmountEth: amount,
		Timestamp: timestampMs,
	}
}

// Stake adds liquidity on behalf of a staker and returns the new pool.
func (p Pool) Stake(amount float64, stakerID string, timestampMs int64) (Pool, error) {
	if !validAmount(amount) || amount <= 0 {
		return p, fmt.Errorf("%w: stake %v", ErrInvalidAmount, amount)
	}
	stakers := p.cloneStakers()
	stakers[stakerID] += amount

	next := p
	next.EthLiquidity += amount
	next.Stakers = stakers
	next.LastEvent = newEvent(EventStake, stakerID, amount, timestampMs)
	return next, nil
}

// Withdraw removes part of a staker's balance. It refuses to overdraw the
// staker or to pull total liquidity under the configured minimum; on error
// the input pool is returned unchanged.
func (p Pool) Withdraw(amount float64, stakerID string, timestampMs int64) (Pool, error) {
	if !validAmount(amount) || amount <= 0 {
		return p, fmt.Errorf("%w: withdraw %v", ErrInvalidAmount, amount)
	}
	balance, ok := p.Stakers[stakerID]
	if !ok || balance < amount-balanceTolerance {
		return p, fmt.Errorf("%w: staker %q has %v, requested %v", ErrInsufficientBalance, stakerID, balance, amount)
	}
	nextLiquidity := p.EthLiquidity - amount
	if nextLiquidity < p.Config.MinLiquidityEth-balanceTolerance {
		return p, fmt.Errorf("%w: %v ETH required", ErrBelowMinimumLiquidity, p.Config.MinLiquidityEth)
	}

	stakers := p.cloneStakers()
	remaining := balance - amount
	if remaining > balanceTolerance {
		stakers[stakerID] = remaining
	} else {
		delete(stakers, stakerID)
	}

	next := p
	next.EthLiquidity = nextLiquidity
	next.Stakers = stakers
	next.LastEvent = newEvent(EventWithdraw, stakerID, amount, timestampMs)
	return next, nil
}

// DistributeFees folds collected trading fees back into tradable liquidity.
// A zero amount is a no-op returning the same pool.
func (p Pool) DistributeFees(amount float64, timestampMs int64) (Pool, error) {
	if !validAmount(amount) || amount < 0 {
		return p, fmt.Errorf("%w: fee %v", ErrInvalidAmount, amount)
	}
	if amount == 0 {
		return p, nil
	}
	next := p
	next.EthLiquidity += amount
	next.CumulativeFeesEth += amount
	next.LastEvent = newEvent(EventFee, "", amount, timestampMs)
	return next, nil
}

// CreditTreasury accrues protocol revenue. Treasury funds are not tradable
// liquidity. A zero amount is a no-op returning the same pool.
func (p Pool) CreditTreasury(amount float64, timestampMs int64) (Pool, error) {
	if !validAmount(amount) || amount < 0 {
		return p, fmt.Errorf("%w: treasury credit %v", ErrInvalidAmount, amount)
	}
	if amount == 0 {
		return p, nil
	}
	next := p
	next.TreasuryEth += amount
	next.LastEvent = newEvent(EventTreasury, "", amount, timestampMs)
	return next, nil
}

// Metrics is the derived projection of a pool used for display and for
// execution estimates.
type Metrics struct {
	SupportsDex       bool    `json:"supportsDex"`
	EthLiquidity      float64 `json:"ethLiquidity"`
	TreasuryEth       float64 `json:"treasuryEth"`
	SafetyBufferEth   float64 `json:"safetyBufferEth"`
	CoverageRatio     float64 `json:"coverageRatio"`
	EffectiveDepthEth float64 `json:"effectiveDepthEth"`
	DepthScalar       float64 `json:"depthScalar"`

	FeeBps           float64 `json:"feeBps"`
	BaseSpreadBps    float64 `json:"baseSpreadBps"`
	WidenedSpreadBps float64 `json:"widenedSpreadBps"`
	WidenThreshold   float64 `json:"widenThreshold"`
	MaxImpactBps     float64 `json:"maxImpactBps"`
	MaxUtilization   float64 `json:"maxUtilization"`

	VirtualInventoryMultiplier float64 `json:"virtualInventoryMultiplier"`
}

// Metrics derives the pool's live projection.
func (p Pool) Metrics() Metrics {
	cfg := p.Config
	coverage := math.Inf(1)
	if cfg.MinLiquidityEth != 0 {
		coverage = p.EthLiquidity / cfg.MinLiquidityEth
	}
	depthScalar := math.Max(0.25, math.Min(coverage/cfg.MaxUtilization, 4))

	return Metrics{
		SupportsDex:                p.EthLiquidity >= cfg.MinLiquidityEth,
		EthLiquidity:               p.EthLiquidity,
		TreasuryEth:                p.TreasuryEth,
		SafetyBufferEth:            math.Max(p.EthLiquidity-cfg.MinLiquidityEth, 0),
		CoverageRatio:              coverage,
		EffectiveDepthEth:          p.EthLiquidity * cfg.VirtualInventoryMultiplier,
		DepthScalar:                depthScalar,
		FeeBps:                     cfg.FeeBps,
		BaseSpreadBps:              cfg.BaseSpreadBps,
		WidenedSpreadBps:           cfg.WidenedSpreadBps,
		WidenThreshold:             cfg.WidenThreshold,
		MaxImpactBps:               cfg.MaxImpactBps,
		MaxUtilization:             cfg.MaxUtilization,
		VirtualInventoryMultiplier: cfg.VirtualInventoryMultiplier,
	}
}

// ExecutionResult is the outcome of one execution estimate. When Permitted
// is false, Reason explains the rejection and the numeric fields are zero.
type ExecutionResult struct {
	Permitted    bool    `json:"permitted"`
	Reason       string  `json:"reason,omitempty"`
	Utilization  float64 `json:"utilization"`
	ImpactBps    float64 `json:"impactBps"`
	SpreadBps    float64 `json:"spreadBps"`
	SlipBps      float64 `json:"slipBps"`
	SlipFactor   float64 `json:"slipFactor"`
	FeeEth       float64 `json:"feeEth"`
	TotalCostEth float64 `json:"totalCostEth"`
	Metrics      Metrics `json:"metrics"`
}

// Estimate prices a trade of the given ETH size against the pool. It never
// returns an error: business-rule rejections come back as a not-permitted
// result. Pure in pool state and inputs.
func Estimate(p Pool, sizeEth float64, side Side) ExecutionResult {
	if !validAmount(sizeEth) || sizeEth < 0 {
		return ExecutionResult{
			Permitted: false,
			Reason:    "trade size must be a finite non-negative number",
		}
	}

	metrics := p.Metrics()
	if !metrics.SupportsDex {
		return ExecutionResult{
			Permitted: false,
			Reason:    fmt.Sprintf("pool needs at least %v ETH to enable trading", p.Config.MinLiquidityEth),
		}
	}

	effectiveDepth := math.Max(metrics.EffectiveDepthEth, 1e-6)
	utilization := math.Min(math.Max(sizeEth/(effectiveDepth*p.Config.MaxUtilization), 0), 1)
	impactBps := utilization * p.Config.MaxImpactBps

	spreadBps := p.Config.BaseSpreadBps
	if utilization > p.Config.WidenThreshold {
		spreadBps = p.Config.WidenedSpreadBps
	}
	slipBps := spreadBps + impactBps

	slipFactor := 1 + slipBps/10_000
	if side == SideSell {
		slipFactor = math.Max(0, 1-slipBps/10_000)
	}
	feeEth := sizeEth * p.Config.FeeBps / 10_000

	return ExecutionResult{
		Permitted:    true,
		Utilization:  utilization,
		ImpactBps:    impactBps,
		SpreadBps:    spreadBps,
		SlipBps:      slipBps,
		SlipFactor:   slipFactor,
		FeeEth:       feeEth,
		TotalCostEth: sizeEth*slipFactor + feeEth,
		Metrics:      metrics,
	}
}
