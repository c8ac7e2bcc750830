package circuit

import (
	"fmt"

	"github.com/sentinel/mpc-engine/internal/model"
)

const (
	SideBuy  uint8 = 0
	SideSell uint8 = 1
)

// DarkPoolOrder is the plaintext view of an encrypted limit order. Owner is
// the X25519 public key execution results are encrypted to.
type DarkPoolOrder struct {
	Side          uint8    `json:"side"`
	TokenMint     model.ID `json:"token_mint"`
	Amount        uint64   `json:"amount"`
	LimitPrice    uint64   `json:"limit_price"`
	MinFillAmount uint64   `json:"min_fill_amount"`
	ExpiresAt     int64    `json:"expires_at"`
	Owner         model.ID `json:"owner"`
}

// Expired reports whether the order is past its expiry at now.
func (o DarkPoolOrder) Expired(now int64) bool { return now > o.ExpiresAt }

// OrderTerms is the client-encrypted input of init_dark_pool_order.
type OrderTerms struct {
	TokenMint     model.ID `json:"token_mint"`
	Amount        uint64   `json:"amount"`
	LimitPrice    uint64   `json:"limit_price"`
	MinFillAmount uint64   `json:"min_fill_amount"`
	Owner         model.ID `json:"owner"`
}

// ExecutionResult is the fill computed for a matched pair.
type ExecutionResult struct {
	ExecutionPrice uint64 `json:"execution_price"`
	FillAmount     uint64 `json:"fill_amount"`
}

// InitDarkPoolOrder builds an order from its public side and expiry and its
// confidential terms.
func InitDarkPoolOrder(side uint8, expiresAt int64, terms OrderTerms, now int64) (Sealed[DarkPoolOrder], error) {
	if side != SideBuy && side != SideSell {
		return Sealed[DarkPoolOrder]{}, fmt.Errorf("%w: side must be 0 or 1, got %d", model.ErrInvalidArguments, side)
	}
	if now > expiresAt {
		return Sealed[DarkPoolOrder]{}, fmt.Errorf("%w: expired at %d", model.ErrOrderExpired, expiresAt)
	}
	if err := requireID("owner", terms.Owner); err != nil {
		return Sealed[DarkPoolOrder]{}, err
	}
	return Seal(DarkPoolOrder{
		Side:          side,
		TokenMint:     terms.TokenMint,
		Amount:        terms.Amount,
		LimitPrice:    terms.LimitPrice,
		MinFillAmount: terms.MinFillAmount,
		ExpiresAt:     expiresAt,
		Owner:         terms.Owner,
	}), nil
}

func ordersMatch(buy, sell DarkPoolOrder) bool {
	return buy.TokenMint == sell.TokenMint &&
		buy.LimitPrice >= sell.LimitPrice &&
		buy.Amount >= sell.MinFillAmount &&
		sell.Amount >= buy.MinFillAmount &&
		buy.Side == SideBuy &&
		sell.Side == SideSell
}

// MatchDarkPoolOrders reveals only whether the two orders cross.
func MatchDarkPoolOrders(buy, sell DarkPoolOrder) Revealed[bool] {
	return Reveal(ordersMatch(buy, sell))
}

// CalculateExecutionPrice settles a matched pair at the midpoint of the two
// limits, encrypted to the buyer. Orders that do not cross have no execution
// price.
func CalculateExecutionPrice(buy, sell DarkPoolOrder) (Owned[ExecutionResult], error) {
	if !ordersMatch(buy, sell) {
		return Owned[ExecutionResult]{}, model.ErrInsufficientLiquidity
	}
	return Own(buy.Owner, ExecutionResult{
		ExecutionPrice: average(buy.LimitPrice, sell.LimitPrice),
		FillAmount:     min(buy.Amount, sell.Amount),
	}), nil
}
