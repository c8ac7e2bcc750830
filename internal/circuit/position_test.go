package circuit_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/sentinel/mpc-engine/internal/circuit"
	"github.com/sentinel/mpc-engine/internal/model"
)

func position(collateral, debt uint64) circuit.Position {
	return circuit.ApplyPositionUpdate(circuit.Position{}, circuit.PositionUpdate{
		CollateralUSD: collateral,
		DebtUSD:       debt,
	}, 1_700_000_000).Plaintext()
}

func TestHealthFactor_Scenario(t *testing.T) {
	p := position(15000, 10000)
	assert.Equal(t, uint64(15000), p.HealthFactorBps)
	assert.Equal(t, uint64(6666), p.LeverageBps)

	risk := circuit.CalculateLiquidationRisk(p, 1000)
	assert.Equal(t, uint8(1), risk.Value())
}

func TestHealthFactor_NoDebt(t *testing.T) {
	p := position(5000, 0)
	assert.Equal(t, uint64(10000), p.HealthFactorBps)
	assert.Equal(t, uint64(10000), p.LeverageBps)
}

func TestLeverage_ZeroCollateralSaturates(t *testing.T) {
	p := position(0, 100)
	assert.Equal(t, uint64(0), p.HealthFactorBps)
	assert.Equal(t, uint64(math.MaxUint64), p.LeverageBps)
}

func TestHealthFactor_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		collateral := rapid.Uint64Range(0, math.MaxUint64/10000).Draw(t, "collateral")
		debt := rapid.Uint64Min(1).Draw(t, "debt")
		if got, want := circuit.HealthFactorBps(collateral, debt), 10000*collateral/debt; got != want {
			t.Fatalf("health(%d, %d) = %d, want %d", collateral, debt, got, want)
		}
	})
}

func TestInitPosition(t *testing.T) {
	p := circuit.InitPosition(3, 42).Plaintext()
	assert.Equal(t, uint8(3), p.ProtocolID)
	assert.Equal(t, int64(42), p.LastUpdated)
	assert.Equal(t, uint64(10000), p.HealthFactorBps)
	require.NoError(t, p.Validate())
}

func TestPositionValidate_RejectsStaleHealth(t *testing.T) {
	p := position(15000, 10000)
	p.DebtUSD = 20000
	err := p.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrInvalidPositionState))
	assert.NotContains(t, err.Error(), "15000")
	assert.NotContains(t, err.Error(), "20000")
}

func TestRefreshHealthFactor(t *testing.T) {
	p := circuit.Position{CollateralUSD: 12000, DebtUSD: 10000}
	got := circuit.RefreshHealthFactor(p, 7).Plaintext()
	assert.Equal(t, uint64(12000), got.HealthFactorBps)
	assert.Equal(t, int64(7), got.LastUpdated)
}

func TestProveHealthThreshold(t *testing.T) {
	p := position(15000, 10000)
	assert.True(t, circuit.ProveHealthThreshold(p, 15000).Value())
	assert.False(t, circuit.ProveHealthThreshold(p, 15001).Value())
}

func TestLiquidationRiskTier(t *testing.T) {
	tests := []struct {
		health, impact uint64
		want           uint8
	}{
		{15000, 0, 0},
		{14999, 0, 1},
		{12500, 0, 1},
		{12499, 0, 2},
		{11000, 0, 2},
		{10999, 0, 3},
		{10500, 0, 3},
		{10499, 0, 4},
		{15000, 1000, 1},
		{500, 1000, 4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, circuit.LiquidationRiskTier(tt.health, tt.impact), "health=%d impact=%d", tt.health, tt.impact)
	}
}

func TestComputeOptimalRebalance(t *testing.T) {
	var recipient model.ID
	recipient[0] = 9

	p := position(10000, 10000)
	got := circuit.ComputeOptimalRebalance(p, 15000, recipient)
	assert.Equal(t, uint64(5000), got.Plaintext())
	assert.Equal(t, recipient, got.Recipient())

	healthy := position(20000, 10000)
	assert.Equal(t, uint64(0), circuit.ComputeOptimalRebalance(healthy, 15000, recipient).Plaintext())
}

func TestComputeOptimalRebalance_AtTargetIsZero(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		collateral := rapid.Uint64Range(0, 1<<40).Draw(t, "collateral")
		debt := rapid.Uint64Range(0, 1<<40).Draw(t, "debt")
		p := position(collateral, debt)
		target := rapid.Uint64Range(0, p.HealthFactorBps).Draw(t, "target")
		if got := circuit.ComputeOptimalRebalance(p, target, model.ID{}).Plaintext(); got != 0 {
			t.Fatalf("health %d >= target %d but rebalance = %d", p.HealthFactorBps, target, got)
		}
	})
}
