package circuit

import (
	"fmt"

	"github.com/sentinel/mpc-engine/internal/model"
)

// BatchCapacity is the maximum number of positions in one batch.
const BatchCapacity = 10

// PositionBatch is a bounded sequence of positions. Slots past Len are empty
// positions and are skipped like any position without debt.
type PositionBatch struct {
	positions [BatchCapacity]Position
	n         int
}

// NewPositionBatch copies ps into a batch. It fails when ps exceeds
// BatchCapacity.
func NewPositionBatch(ps []Position) (PositionBatch, error) {
	var b PositionBatch
	if len(ps) > BatchCapacity {
		return b, fmt.Errorf("%w: batch holds at most %d positions, got %d", model.ErrInvalidArguments, BatchCapacity, len(ps))
	}
	b.n = copy(b.positions[:], ps)
	return b, nil
}

func (b PositionBatch) Len() int { return b.n }

func (b PositionBatch) At(i int) Position { return b.positions[i] }

// AggregatedRiskMetrics summarises the active positions of a batch.
type AggregatedRiskMetrics struct {
	TotalCollateral   uint64 `json:"total_collateral"`
	TotalDebt         uint64 `json:"total_debt"`
	WeightedHealthBps uint64 `json:"weighted_health_bps"`
	ActivePositions   uint8  `json:"active_positions"`
}

// BatchHealthCheck reveals how many of the first count positions carry debt
// and have a health factor below AtRiskHealthBps.
func BatchHealthCheck(b PositionBatch, count uint8) Revealed[uint8] {
	n := min(int(count), BatchCapacity)
	var atRisk uint8
	for _, p := range b.positions[:n] {
		if p.DebtUSD == 0 {
			continue
		}
		if HealthFactorBps(p.CollateralUSD, p.DebtUSD) < AtRiskHealthBps {
			atRisk++
		}
	}
	return Reveal(atRisk)
}

// AggregatePortfolioRisk sums the active positions of the batch and returns
// the totals encrypted to recipient.
func AggregatePortfolioRisk(b PositionBatch, recipient model.ID) Owned[AggregatedRiskMetrics] {
	var m AggregatedRiskMetrics
	for _, p := range b.positions {
		if p.DebtUSD == 0 {
			continue
		}
		m.TotalCollateral = addSat(m.TotalCollateral, p.CollateralUSD)
		m.TotalDebt = addSat(m.TotalDebt, p.DebtUSD)
		m.ActivePositions++
	}
	m.WeightedHealthBps = HealthFactorBps(m.TotalCollateral, m.TotalDebt)
	return Own(recipient, m)
}
