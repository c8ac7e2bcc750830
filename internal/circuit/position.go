package circuit

import (
	"fmt"
	"math"

	"github.com/sentinel/mpc-engine/internal/model"
)

const (
	// NoDebtHealthBps is the health factor of a position without debt.
	NoDebtHealthBps = 10000

	// AtRiskHealthBps is the batch health check threshold: positions below
	// it count as at risk. It matches the lower bound of risk tier 2.
	AtRiskHealthBps = 11000
)

// Position is the plaintext view of an encrypted lending position.
type Position struct {
	CollateralUSD    uint64 `json:"collateral_usd"`
	DebtUSD          uint64 `json:"debt_usd"`
	HealthFactorBps  uint64 `json:"health_factor_bps"`
	LeverageBps      uint64 `json:"leverage_bps"`
	LiquidationPrice uint64 `json:"liquidation_price"`
	ProtocolID       uint8  `json:"protocol_id"`
	LastUpdated      int64  `json:"last_updated"`
}

// Validate checks the health factor invariant.
func (p Position) Validate() error {
	if want := HealthFactorBps(p.CollateralUSD, p.DebtUSD); p.HealthFactorBps != want {
		return fmt.Errorf("%w: stored health factor disagrees with collateral and debt", model.ErrInvalidPositionState)
	}
	return nil
}

// PositionUpdate is the client-encrypted input of update_position_data.
type PositionUpdate struct {
	CollateralUSD    uint64 `json:"collateral_usd"`
	DebtUSD          uint64 `json:"debt_usd"`
	LiquidationPrice uint64 `json:"liquidation_price"`
}

// HealthFactorBps is 10000*collateral/debt, or NoDebtHealthBps when debt is 0.
func HealthFactorBps(collateral, debt uint64) uint64 {
	if debt == 0 {
		return NoDebtHealthBps
	}
	return mulDiv(model.BpsDenominator, collateral, debt)
}

// LeverageBps is 10000*debt/collateral, or 10000 when debt is 0. Debt
// against zero collateral saturates.
func LeverageBps(collateral, debt uint64) uint64 {
	if debt == 0 {
		return model.BpsDenominator
	}
	if collateral == 0 {
		return math.MaxUint64
	}
	return mulDiv(model.BpsDenominator, debt, collateral)
}

// InitPosition creates an empty position for protocol.
func InitPosition(protocol uint8, now int64) Sealed[Position] {
	return Seal(withRatios(Position{ProtocolID: protocol, LastUpdated: now}))
}

// ApplyPositionUpdate overwrites the position's balances and recomputes its
// ratios.
func ApplyPositionUpdate(p Position, u PositionUpdate, now int64) Sealed[Position] {
	p.CollateralUSD = u.CollateralUSD
	p.DebtUSD = u.DebtUSD
	p.LiquidationPrice = u.LiquidationPrice
	p.LastUpdated = now
	return Seal(withRatios(p))
}

// RefreshHealthFactor recomputes the position's ratios from its balances.
func RefreshHealthFactor(p Position, now int64) Sealed[Position] {
	p.LastUpdated = now
	return Seal(withRatios(p))
}

func withRatios(p Position) Position {
	p.HealthFactorBps = HealthFactorBps(p.CollateralUSD, p.DebtUSD)
	p.LeverageBps = LeverageBps(p.CollateralUSD, p.DebtUSD)
	return p
}

// ProveHealthThreshold reveals whether the position's health factor is at
// least threshold.
func ProveHealthThreshold(p Position, threshold uint64) Revealed[bool] {
	return Reveal(p.HealthFactorBps >= threshold)
}

// RiskTierFloorsBps holds the lowest adjusted health factor of each risk
// tier, from tier 0 (safe) down. Anything below the last floor is tier 4
// (liquidatable).
var RiskTierFloorsBps = [...]uint64{15000, 12500, 11000, 10500}

// LiquidationRiskTier maps a health factor, reduced by a price impact, to a
// tier from 0 (safe) to 4 (liquidatable).
func LiquidationRiskTier(healthBps, priceImpactBps uint64) uint8 {
	var adjusted uint64
	if healthBps > priceImpactBps {
		adjusted = healthBps - priceImpactBps
	}
	for tier, floor := range RiskTierFloorsBps {
		if adjusted >= floor {
			return uint8(tier)
		}
	}
	return uint8(len(RiskTierFloorsBps))
}

// CalculateLiquidationRisk reveals the position's risk tier under a price
// impact.
func CalculateLiquidationRisk(p Position, priceImpactBps uint64) Revealed[uint8] {
	return Reveal(LiquidationRiskTier(p.HealthFactorBps, priceImpactBps))
}

// ComputeOptimalRebalance returns the additional collateral needed to reach
// targetBps, encrypted to recipient. Zero when the position is already at or
// above target.
func ComputeOptimalRebalance(p Position, targetBps uint64, recipient model.ID) Owned[uint64] {
	if p.HealthFactorBps >= targetBps {
		return Own(recipient, uint64(0))
	}
	required := mulDiv(targetBps, p.DebtUSD, model.BpsDenominator)
	var needed uint64
	if required > p.CollateralUSD {
		needed = required - p.CollateralUSD
	}
	return Own(recipient, needed)
}
