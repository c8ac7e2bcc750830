package circuit

import (
	"fmt"

	"github.com/sentinel/mpc-engine/internal/model"
)

// DefaultMaxSlippageBps applies when an intent does not set a slippage bound.
const DefaultMaxSlippageBps = 50

// SwapIntent is the plaintext view of an encrypted swap intent.
type SwapIntent struct {
	FromToken      model.ID `json:"from_token"`
	ToToken        model.ID `json:"to_token"`
	AmountIn       uint64   `json:"amount_in"`
	MinAmountOut   uint64   `json:"min_amount_out"`
	MaxSlippageBps uint64   `json:"max_slippage_bps"`
	Deadline       int64    `json:"deadline"`
}

// Expired reports whether the intent is past its deadline at now.
func (i SwapIntent) Expired(now int64) bool { return now > i.Deadline }

// IntentTerms is the client-encrypted input of init_swap_intent.
type IntentTerms struct {
	FromToken      model.ID `json:"from_token"`
	ToToken        model.ID `json:"to_token"`
	AmountIn       uint64   `json:"amount_in"`
	MinAmountOut   uint64   `json:"min_amount_out"`
	MaxSlippageBps uint64   `json:"max_slippage_bps"`
}

// SwapQuote is the client-encrypted execution a swap is checked against.
type SwapQuote struct {
	ActualOutput   uint64 `json:"actual_output"`
	ExecutionPrice uint64 `json:"execution_price"`
}

// ExecutionTiming is the client-encrypted timestamp of a swap execution.
type ExecutionTiming struct {
	ExecutionTimestamp int64 `json:"execution_timestamp"`
}

// InitSwapIntent builds an intent from its public deadline and confidential
// terms.
func InitSwapIntent(deadline int64, terms IntentTerms, now int64) (Sealed[SwapIntent], error) {
	if now > deadline {
		return Sealed[SwapIntent]{}, fmt.Errorf("%w: deadline %d", model.ErrOrderExpired, deadline)
	}
	slippage := terms.MaxSlippageBps
	if slippage == 0 {
		slippage = DefaultMaxSlippageBps
	}
	if slippage > model.BpsDenominator {
		return Sealed[SwapIntent]{}, fmt.Errorf("%w: max slippage is above %d bps", model.ErrSlippageExceeded, model.BpsDenominator)
	}
	return Seal(SwapIntent{
		FromToken:      terms.FromToken,
		ToToken:        terms.ToToken,
		AmountIn:       terms.AmountIn,
		MinAmountOut:   terms.MinAmountOut,
		MaxSlippageBps: slippage,
		Deadline:       deadline,
	}), nil
}

// ExecutePrivateSwap reveals whether a quote satisfies the intent's minimum
// output while the intent's slippage tolerance stays within the caller's cap.
func ExecutePrivateSwap(intent SwapIntent, actualOutput, maxSlippageCapBps uint64) Revealed[bool] {
	return Reveal(actualOutput >= intent.MinAmountOut && intent.MaxSlippageBps <= maxSlippageCapBps)
}

// SwapDeviationBps is 10000*|execution-oracle|/oracle. oraclePrice must be
// positive.
func SwapDeviationBps(executionPrice, oraclePrice uint64) uint64 {
	return mulDiv(model.BpsDenominator, absDiff(executionPrice, oraclePrice), oraclePrice)
}

// VerifySwapFairness reveals whether an execution price lies within
// maxDeviationBps of the oracle price.
func VerifySwapFairness(executionPrice, oraclePrice, maxDeviationBps uint64) (Revealed[bool], error) {
	if oraclePrice == 0 {
		return Revealed[bool]{}, model.ErrInvalidOraclePrice
	}
	return Reveal(SwapDeviationBps(executionPrice, oraclePrice) <= maxDeviationBps), nil
}

// ProveNoFrontRunning reveals whether a swap executed before its deadline and
// within maxDelaySeconds of the block it was submitted in. Executions stamped
// before the block pass the delay check.
func ProveNoFrontRunning(executionTs, blockTs, deadline int64, maxDelaySeconds uint64) Revealed[bool] {
	if executionTs > deadline {
		return Reveal(false)
	}
	if executionTs <= blockTs {
		return Reveal(true)
	}
	return Reveal(uint64(executionTs)-uint64(blockTs) <= maxDelaySeconds)
}
