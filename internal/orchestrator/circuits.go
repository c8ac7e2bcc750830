package orchestrator

import (
	"context"

	"github.com/sentinel/mpc-engine/internal/circuit"
	"github.com/sentinel/mpc-engine/internal/model"
)

// Typed entry points, one per circuit. Each wraps Submit.

func (o *Orchestrator) InitEncryptedPosition(ctx context.Context, corr uint64, args circuit.InitEncryptedPositionArgs) (model.JobHandle, error) {
	return o.Submit(ctx, Request{CorrelationID: corr, Args: args})
}

// UpdatePositionData takes a circuit.PositionUpdate sealed to the cluster key.
func (o *Orchestrator) UpdatePositionData(ctx context.Context, corr uint64, args circuit.UpdatePositionDataArgs, update []byte) (model.JobHandle, error) {
	return o.Submit(ctx, Request{CorrelationID: corr, Args: args, Inputs: [][]byte{update}})
}

func (o *Orchestrator) UpdateHealthFactor(ctx context.Context, corr uint64, args circuit.UpdateHealthFactorArgs) (model.JobHandle, error) {
	return o.Submit(ctx, Request{CorrelationID: corr, Args: args})
}

func (o *Orchestrator) ProveHealthThreshold(ctx context.Context, corr uint64, args circuit.ProveHealthThresholdArgs) (model.JobHandle, error) {
	return o.Submit(ctx, Request{CorrelationID: corr, Args: args})
}

func (o *Orchestrator) CalculateLiquidationRisk(ctx context.Context, corr uint64, args circuit.CalculateLiquidationRiskArgs) (model.JobHandle, error) {
	return o.Submit(ctx, Request{CorrelationID: corr, Args: args})
}

func (o *Orchestrator) ComputeOptimalRebalance(ctx context.Context, corr uint64, args circuit.ComputeOptimalRebalanceArgs) (model.JobHandle, error) {
	return o.Submit(ctx, Request{CorrelationID: corr, Args: args})
}

func (o *Orchestrator) BatchHealthCheck(ctx context.Context, corr uint64, args circuit.BatchHealthCheckArgs) (model.JobHandle, error) {
	return o.Submit(ctx, Request{CorrelationID: corr, Args: args})
}

func (o *Orchestrator) AggregatePortfolioRisk(ctx context.Context, corr uint64, args circuit.AggregatePortfolioRiskArgs) (model.JobHandle, error) {
	return o.Submit(ctx, Request{CorrelationID: corr, Args: args})
}

// InitDarkPoolOrder takes circuit.OrderTerms sealed to the cluster key.
func (o *Orchestrator) InitDarkPoolOrder(ctx context.Context, corr uint64, args circuit.InitDarkPoolOrderArgs, terms []byte) (model.JobHandle, error) {
	return o.Submit(ctx, Request{CorrelationID: corr, Args: args, Inputs: [][]byte{terms}})
}

func (o *Orchestrator) MatchDarkPoolOrders(ctx context.Context, corr uint64, args circuit.MatchDarkPoolOrdersArgs) (model.JobHandle, error) {
	return o.Submit(ctx, Request{CorrelationID: corr, Args: args})
}

func (o *Orchestrator) CalculateExecutionPrice(ctx context.Context, corr uint64, args circuit.CalculateExecutionPriceArgs) (model.JobHandle, error) {
	return o.Submit(ctx, Request{CorrelationID: corr, Args: args})
}

// InitSwapIntent takes circuit.IntentTerms sealed to the cluster key.
func (o *Orchestrator) InitSwapIntent(ctx context.Context, corr uint64, args circuit.InitSwapIntentArgs, terms []byte) (model.JobHandle, error) {
	return o.Submit(ctx, Request{CorrelationID: corr, Args: args, Inputs: [][]byte{terms}})
}

// ExecutePrivateSwap and VerifySwapFairness take a sealed circuit.SwapQuote.
func (o *Orchestrator) ExecutePrivateSwap(ctx context.Context, corr uint64, args circuit.ExecutePrivateSwapArgs, quote []byte) (model.JobHandle, error) {
	return o.Submit(ctx, Request{CorrelationID: corr, Args: args, Inputs: [][]byte{quote}})
}

func (o *Orchestrator) VerifySwapFairness(ctx context.Context, corr uint64, args circuit.VerifySwapFairnessArgs, quote []byte) (model.JobHandle, error) {
	return o.Submit(ctx, Request{CorrelationID: corr, Args: args, Inputs: [][]byte{quote}})
}

// ProveNoFrontRunning takes a sealed circuit.ExecutionTiming.
func (o *Orchestrator) ProveNoFrontRunning(ctx context.Context, corr uint64, args circuit.ProveNoFrontRunningArgs, timing []byte) (model.JobHandle, error) {
	return o.Submit(ctx, Request{CorrelationID: corr, Args: args, Inputs: [][]byte{timing}})
}

func (o *Orchestrator) InitEmissionsCertificate(ctx context.Context, corr uint64, args circuit.InitEmissionsCertificateArgs) (model.JobHandle, error) {
	return o.Submit(ctx, Request{CorrelationID: corr, Args: args})
}

// UpdateEmissions takes circuit.EmissionsData sealed to the cluster key.
func (o *Orchestrator) UpdateEmissions(ctx context.Context, corr uint64, args circuit.UpdateEmissionsArgs, data []byte) (model.JobHandle, error) {
	return o.Submit(ctx, Request{CorrelationID: corr, Args: args, Inputs: [][]byte{data}})
}

func (o *Orchestrator) ProveThreshold(ctx context.Context, corr uint64, args circuit.ProveThresholdArgs) (model.JobHandle, error) {
	return o.Submit(ctx, Request{CorrelationID: corr, Args: args})
}

func (o *Orchestrator) InitSEMAReport(ctx context.Context, corr uint64, args circuit.InitSEMAReportArgs) (model.JobHandle, error) {
	return o.Submit(ctx, Request{CorrelationID: corr, Args: args})
}

// UpdateSEMAReport takes a circuit.SEMAReport sealed to the cluster key.
func (o *Orchestrator) UpdateSEMAReport(ctx context.Context, corr uint64, args circuit.UpdateSEMAReportArgs, report []byte) (model.JobHandle, error) {
	return o.Submit(ctx, Request{CorrelationID: corr, Args: args, Inputs: [][]byte{report}})
}

func (o *Orchestrator) ProveSEMACompliance(ctx context.Context, corr uint64, args circuit.ProveSEMAComplianceArgs) (model.JobHandle, error) {
	return o.Submit(ctx, Request{CorrelationID: corr, Args: args})
}

func (o *Orchestrator) CalculateOffsetPercentage(ctx context.Context, corr uint64, args circuit.CalculateOffsetPercentageArgs) (model.JobHandle, error) {
	return o.Submit(ctx, Request{CorrelationID: corr, Args: args})
}
