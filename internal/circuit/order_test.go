package circuit_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/sentinel/mpc-engine/internal/circuit"
	"github.com/sentinel/mpc-engine/internal/model"
)

var mintA = model.ID{1}

func scenarioOrders() (buy, sell circuit.DarkPoolOrder) {
	buy = circuit.DarkPoolOrder{Side: circuit.SideBuy, TokenMint: mintA, Amount: 50, LimitPrice: 100, MinFillAmount: 10, Owner: model.ID{7}}
	sell = circuit.DarkPoolOrder{Side: circuit.SideSell, TokenMint: mintA, Amount: 60, LimitPrice: 90, MinFillAmount: 20}
	return buy, sell
}

func TestMatchAndExecutionPrice_Scenario(t *testing.T) {
	buy, sell := scenarioOrders()
	assert.True(t, circuit.MatchDarkPoolOrders(buy, sell).Value())

	res, err := circuit.CalculateExecutionPrice(buy, sell)
	require.NoError(t, err)
	assert.Equal(t, uint64(95), res.Plaintext().ExecutionPrice)
	assert.Equal(t, uint64(50), res.Plaintext().FillAmount)
	assert.Equal(t, buy.Owner, res.Recipient())
}

func TestMatch_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(buy, sell *circuit.DarkPoolOrder)
	}{
		{"different mint", func(_, s *circuit.DarkPoolOrder) { s.TokenMint = model.ID{2} }},
		{"limits do not cross", func(b, _ *circuit.DarkPoolOrder) { b.LimitPrice = 89 }},
		{"buy below sell min fill", func(b, _ *circuit.DarkPoolOrder) { b.Amount = 19 }},
		{"sell below buy min fill", func(b, _ *circuit.DarkPoolOrder) { b.MinFillAmount = 61 }},
		{"buy side is sell", func(b, _ *circuit.DarkPoolOrder) { b.Side = circuit.SideSell }},
		{"sell side is buy", func(_, s *circuit.DarkPoolOrder) { s.Side = circuit.SideBuy }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buy, sell := scenarioOrders()
			tt.mutate(&buy, &sell)
			assert.False(t, circuit.MatchDarkPoolOrders(buy, sell).Value())

			_, err := circuit.CalculateExecutionPrice(buy, sell)
			assert.True(t, errors.Is(err, model.ErrInsufficientLiquidity))
		})
	}
}

func TestMatch_SwappedRolesNeverMatch(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		buy := drawOrder(t, "buy", circuit.SideBuy)
		sell := drawOrder(t, "sell", circuit.SideSell)
		if circuit.MatchDarkPoolOrders(sell, buy).Value() {
			t.Fatalf("orders matched with buy and sell swapped")
		}
	})
}

func TestMatch_DifferentMintNeverMatches(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		buy := drawOrder(t, "buy", circuit.SideBuy)
		sell := drawOrder(t, "sell", circuit.SideSell)
		sell.TokenMint[0] = buy.TokenMint[0] + 1
		if circuit.MatchDarkPoolOrders(buy, sell).Value() {
			t.Fatalf("orders with different mints matched")
		}
	})
}

func drawOrder(t *rapid.T, label string, side uint8) circuit.DarkPoolOrder {
	var mint model.ID
	mint[0] = rapid.Byte().Draw(t, label+"_mint")
	return circuit.DarkPoolOrder{
		Side:          side,
		TokenMint:     mint,
		Amount:        rapid.Uint64().Draw(t, label+"_amount"),
		LimitPrice:    rapid.Uint64().Draw(t, label+"_limit"),
		MinFillAmount: rapid.Uint64().Draw(t, label+"_min_fill"),
	}
}

func TestInitDarkPoolOrder(t *testing.T) {
	terms := circuit.OrderTerms{TokenMint: mintA, Amount: 5, LimitPrice: 10, Owner: model.ID{3}}

	o, err := circuit.InitDarkPoolOrder(circuit.SideSell, 100, terms, 100)
	require.NoError(t, err)
	assert.Equal(t, circuit.SideSell, o.Plaintext().Side)
	assert.Equal(t, int64(100), o.Plaintext().ExpiresAt)
	assert.Equal(t, model.ID{3}, o.Plaintext().Owner)

	_, err = circuit.InitDarkPoolOrder(circuit.SideBuy, 100, terms, 101)
	assert.True(t, errors.Is(err, model.ErrOrderExpired))

	_, err = circuit.InitDarkPoolOrder(2, 100, terms, 0)
	assert.True(t, errors.Is(err, model.ErrInvalidArguments))
}

func TestInitDarkPoolOrder_RequiresOwner(t *testing.T) {
	terms := circuit.OrderTerms{TokenMint: mintA, Amount: 5, LimitPrice: 10}

	_, err := circuit.InitDarkPoolOrder(circuit.SideBuy, 100, terms, 0)
	assert.True(t, errors.Is(err, model.ErrInvalidArguments))
}
