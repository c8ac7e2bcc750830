package api

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/sentinel/mpc-engine/internal/circuit"
	"github.com/sentinel/mpc-engine/internal/model"
)

// RiskTier describes one liquidation risk tier as revealed by
// calculate_liquidation_risk.
type RiskTier struct {
	Tier         uint8           `json:"tier"`
	MinHealthBps uint64          `json:"min_health_bps"`
	MinHealth    decimal.Decimal `json:"min_health"`
}

// RiskTable is the response of GET /api/v1/risk/tiers. Ratios are decimal
// (1.1 is a health factor of 11000 bps).
type RiskTable struct {
	Tiers           []RiskTier      `json:"tiers"`
	AtRiskHealth    decimal.Decimal `json:"at_risk_health"`
	NoDebtHealth    decimal.Decimal `json:"no_debt_health"`
	DefaultSlippage decimal.Decimal `json:"default_slippage"`
	BatchCapacity   int             `json:"batch_capacity"`
}

// RiskTiers handles GET /api/v1/risk/tiers
func (s *Service) RiskTiers(w http.ResponseWriter, r *http.Request) {
	tiers := make([]RiskTier, 0, len(circuit.RiskTierFloorsBps)+1)
	for i, floor := range circuit.RiskTierFloorsBps {
		tiers = append(tiers, RiskTier{Tier: uint8(i), MinHealthBps: floor, MinHealth: model.BpsRatio(floor)})
	}
	tiers = append(tiers, RiskTier{Tier: uint8(len(circuit.RiskTierFloorsBps)), MinHealth: decimal.Zero})

	writeJSON(w, http.StatusOK, RiskTable{
		Tiers:           tiers,
		AtRiskHealth:    model.BpsRatio(circuit.AtRiskHealthBps),
		NoDebtHealth:    model.BpsRatio(circuit.NoDebtHealthBps),
		DefaultSlippage: model.BpsRatio(circuit.DefaultMaxSlippageBps),
		BatchCapacity:   circuit.BatchCapacity,
	})
}
