package circuit

import (
	"fmt"

	"github.com/sentinel/mpc-engine/internal/model"
)

const (
	CircuitInitEncryptedPosition     model.CircuitID = "init_encrypted_position"
	CircuitUpdatePositionData        model.CircuitID = "update_position_data"
	CircuitUpdateHealthFactor        model.CircuitID = "update_health_factor"
	CircuitProveHealthThreshold      model.CircuitID = "prove_health_threshold"
	CircuitCalculateLiquidationRisk  model.CircuitID = "calculate_liquidation_risk"
	CircuitComputeOptimalRebalance   model.CircuitID = "compute_optimal_rebalance"
	CircuitBatchHealthCheck          model.CircuitID = "batch_health_check"
	CircuitAggregatePortfolioRisk    model.CircuitID = "aggregate_portfolio_risk"
	CircuitInitDarkPoolOrder         model.CircuitID = "init_dark_pool_order"
	CircuitMatchDarkPoolOrders       model.CircuitID = "match_dark_pool_orders"
	CircuitCalculateExecutionPrice   model.CircuitID = "calculate_execution_price"
	CircuitInitSwapIntent            model.CircuitID = "init_swap_intent"
	CircuitExecutePrivateSwap        model.CircuitID = "execute_private_swap"
	CircuitVerifySwapFairness        model.CircuitID = "verify_swap_fairness"
	CircuitProveNoFrontRunning       model.CircuitID = "prove_no_front_running"
	CircuitInitEmissionsCertificate  model.CircuitID = "init_emissions_certificate"
	CircuitUpdateEmissions           model.CircuitID = "update_emissions"
	CircuitProveThreshold            model.CircuitID = "prove_threshold"
	CircuitInitSEMAReport            model.CircuitID = "init_sema_report"
	CircuitUpdateSEMAReport          model.CircuitID = "update_sema_report"
	CircuitProveSEMACompliance       model.CircuitID = "prove_sema_compliance"
	CircuitCalculateOffsetPercentage model.CircuitID = "calculate_offset_percentage"
)

// Writer is implemented by the args of circuits whose output is a sealed
// record. Target names the record the output overwrites.
type Writer interface {
	Target() model.RecordRef
}

func requireID(field string, id model.ID) error {
	if id.IsZero() {
		return fmt.Errorf("%w: %s is required", model.ErrInvalidArguments, field)
	}
	return nil
}

func positionRef(id model.ID) model.RecordRef {
	return model.RecordRef{Kind: model.KindPosition, ID: id}
}

func orderRef(id model.ID) model.RecordRef {
	return model.RecordRef{Kind: model.KindDarkPoolOrder, ID: id}
}

func intentRef(id model.ID) model.RecordRef {
	return model.RecordRef{Kind: model.KindSwapIntent, ID: id}
}

func emissionsRef(id model.ID) model.RecordRef {
	return model.RecordRef{Kind: model.KindEmissions, ID: id}
}

func semaRef(id model.ID) model.RecordRef {
	return model.RecordRef{Kind: model.KindSEMAReport, ID: id}
}

// --- Positions ---

type InitEncryptedPositionArgs struct {
	PositionID model.ID `json:"position_id"`
	Protocol   uint8    `json:"protocol"`
}

func (InitEncryptedPositionArgs) Circuit() model.CircuitID {
	return CircuitInitEncryptedPosition
}

func (a InitEncryptedPositionArgs) Validate() error {
	return requireID("position_id", a.PositionID)
}

func (InitEncryptedPositionArgs) Refs() []model.RecordRef {
	return nil
}

func (a InitEncryptedPositionArgs) Target() model.RecordRef {
	return positionRef(a.PositionID)
}

type UpdatePositionDataArgs struct {
	PositionID model.ID `json:"position_id"`
}

func (UpdatePositionDataArgs) Circuit() model.CircuitID {
	return CircuitUpdatePositionData
}

func (a UpdatePositionDataArgs) Validate() error {
	return requireID("position_id", a.PositionID)
}

func (a UpdatePositionDataArgs) Refs() []model.RecordRef {
	return []model.RecordRef{positionRef(a.PositionID)}
}

func (a UpdatePositionDataArgs) Target() model.RecordRef {
	return positionRef(a.PositionID)
}

type UpdateHealthFactorArgs struct {
	PositionID model.ID `json:"position_id"`
}

func (UpdateHealthFactorArgs) Circuit() model.CircuitID {
	return CircuitUpdateHealthFactor
}

func (a UpdateHealthFactorArgs) Validate() error {
	return requireID("position_id", a.PositionID)
}

func (a UpdateHealthFactorArgs) Refs() []model.RecordRef {
	return []model.RecordRef{positionRef(a.PositionID)}
}

func (a UpdateHealthFactorArgs) Target() model.RecordRef {
	return positionRef(a.PositionID)
}

type ProveHealthThresholdArgs struct {
	PositionID   model.ID `json:"position_id"`
	ThresholdBps uint64   `json:"threshold_bps"`
}

func (ProveHealthThresholdArgs) Circuit() model.CircuitID {
	return CircuitProveHealthThreshold
}

func (a ProveHealthThresholdArgs) Validate() error {
	return requireID("position_id", a.PositionID)
}

func (a ProveHealthThresholdArgs) Refs() []model.RecordRef {
	return []model.RecordRef{positionRef(a.PositionID)}
}

type CalculateLiquidationRiskArgs struct {
	PositionID     model.ID `json:"position_id"`
	PriceImpactBps uint64   `json:"price_impact_bps"`
}

func (CalculateLiquidationRiskArgs) Circuit() model.CircuitID {
	return CircuitCalculateLiquidationRisk
}

func (a CalculateLiquidationRiskArgs) Validate() error {
	return requireID("position_id", a.PositionID)
}

func (a CalculateLiquidationRiskArgs) Refs() []model.RecordRef {
	return []model.RecordRef{positionRef(a.PositionID)}
}

type ComputeOptimalRebalanceArgs struct {
	PositionID      model.ID `json:"position_id"`
	TargetHealthBps uint64   `json:"target_health_bps"`
	Recipient       model.ID `json:"recipient"`
}

func (ComputeOptimalRebalanceArgs) Circuit() model.CircuitID {
	return CircuitComputeOptimalRebalance
}

func (a ComputeOptimalRebalanceArgs) Validate() error {
	if err := requireID("position_id", a.PositionID); err != nil {
		return err
	}
	return requireID("recipient", a.Recipient)
}

func (a ComputeOptimalRebalanceArgs) Refs() []model.RecordRef {
	return []model.RecordRef{positionRef(a.PositionID)}
}

// BatchHealthCheckArgs names the positions of the batch. PositionCount is
// the public size and must equal len(Positions).
type BatchHealthCheckArgs struct {
	PositionCount uint8      `json:"position_count"`
	Positions     []model.ID `json:"positions"`
}

func (BatchHealthCheckArgs) Circuit() model.CircuitID {
	return CircuitBatchHealthCheck
}

func (a BatchHealthCheckArgs) Validate() error {
	if int(a.PositionCount) != len(a.Positions) {
		return fmt.Errorf("%w: position_count %d does not match %d positions", model.ErrInvalidArguments, a.PositionCount, len(a.Positions))
	}
	return validateBatch(a.Positions)
}

func (a BatchHealthCheckArgs) Refs() []model.RecordRef {
	return batchRefs(a.Positions)
}

type AggregatePortfolioRiskArgs struct {
	Positions []model.ID `json:"positions"`
	Recipient model.ID   `json:"recipient"`
}

func (AggregatePortfolioRiskArgs) Circuit() model.CircuitID {
	return CircuitAggregatePortfolioRisk
}

func (a AggregatePortfolioRiskArgs) Validate() error {
	if len(a.Positions) == 0 {
		return fmt.Errorf("%w: positions are required", model.ErrInvalidArguments)
	}
	if err := validateBatch(a.Positions); err != nil {
		return err
	}
	return requireID("recipient", a.Recipient)
}

func (a AggregatePortfolioRiskArgs) Refs() []model.RecordRef {
	return batchRefs(a.Positions)
}

func validateBatch(ids []model.ID) error {
	if len(ids) > BatchCapacity {
		return fmt.Errorf("%w: at most %d positions, got %d", model.ErrInvalidArguments, BatchCapacity, len(ids))
	}
	for i, id := range ids {
		if err := requireID(fmt.Sprintf("positions[%d]", i), id); err != nil {
			return err
		}
	}
	return nil
}

func batchRefs(ids []model.ID) []model.RecordRef {
	refs := make([]model.RecordRef, len(ids))
	for i, id := range ids {
		refs[i] = positionRef(id)
	}
	return refs
}

// --- Dark pool ---

type InitDarkPoolOrderArgs struct {
	OrderID   model.ID `json:"order_id"`
	Side      uint8    `json:"side"`
	ExpiresAt int64    `json:"expires_at"`
}

func (InitDarkPoolOrderArgs) Circuit() model.CircuitID {
	return CircuitInitDarkPoolOrder
}

func (a InitDarkPoolOrderArgs) Validate() error {
	if a.Side != SideBuy && a.Side != SideSell {
		return fmt.Errorf("%w: side must be 0 or 1, got %d", model.ErrInvalidArguments, a.Side)
	}
	return requireID("order_id", a.OrderID)
}

func (InitDarkPoolOrderArgs) Refs() []model.RecordRef {
	return nil
}

func (a InitDarkPoolOrderArgs) Target() model.RecordRef {
	return orderRef(a.OrderID)
}

// OrderPairArgs names a buy and a sell order.
type OrderPairArgs struct {
	BuyOrderID  model.ID `json:"buy_order_id"`
	SellOrderID model.ID `json:"sell_order_id"`
}

func (a OrderPairArgs) Validate() error {
	if err := requireID("buy_order_id", a.BuyOrderID); err != nil {
		return err
	}
	if err := requireID("sell_order_id", a.SellOrderID); err != nil {
		return err
	}
	if a.BuyOrderID == a.SellOrderID {
		return fmt.Errorf("%w: buy and sell order must differ", model.ErrInvalidArguments)
	}
	return nil
}

func (a OrderPairArgs) Refs() []model.RecordRef {
	return []model.RecordRef{orderRef(a.BuyOrderID), orderRef(a.SellOrderID)}
}

type MatchDarkPoolOrdersArgs struct {
	OrderPairArgs
}

func (MatchDarkPoolOrdersArgs) Circuit() model.CircuitID {
	return CircuitMatchDarkPoolOrders
}

type CalculateExecutionPriceArgs struct {
	OrderPairArgs
}

func (CalculateExecutionPriceArgs) Circuit() model.CircuitID {
	return CircuitCalculateExecutionPrice
}

// --- Swaps ---

type InitSwapIntentArgs struct {
	IntentID model.ID `json:"intent_id"`
	Deadline int64    `json:"deadline"`
}

func (InitSwapIntentArgs) Circuit() model.CircuitID {
	return CircuitInitSwapIntent
}

func (a InitSwapIntentArgs) Validate() error {
	return requireID("intent_id", a.IntentID)
}

func (InitSwapIntentArgs) Refs() []model.RecordRef {
	return nil
}

func (a InitSwapIntentArgs) Target() model.RecordRef {
	return intentRef(a.IntentID)
}

type ExecutePrivateSwapArgs struct {
	IntentID       model.ID `json:"intent_id"`
	MaxSlippageBps uint64   `json:"max_slippage_bps"`
}

func (ExecutePrivateSwapArgs) Circuit() model.CircuitID {
	return CircuitExecutePrivateSwap
}

func (a ExecutePrivateSwapArgs) Validate() error {
	if a.MaxSlippageBps > model.BpsDenominator {
		return fmt.Errorf("%w: max_slippage_bps %d exceeds %d", model.ErrSlippageExceeded, a.MaxSlippageBps, model.BpsDenominator)
	}
	return requireID("intent_id", a.IntentID)
}

func (a ExecutePrivateSwapArgs) Refs() []model.RecordRef {
	return []model.RecordRef{intentRef(a.IntentID)}
}

// VerifySwapFairnessArgs reads no stored record: the execution price comes
// from the encrypted quote. IntentID tags the check.
type VerifySwapFairnessArgs struct {
	IntentID        model.ID `json:"intent_id"`
	OraclePrice     uint64   `json:"oracle_price"`
	MaxDeviationBps uint64   `json:"max_deviation_bps"`
}

func (VerifySwapFairnessArgs) Circuit() model.CircuitID {
	return CircuitVerifySwapFairness
}

func (a VerifySwapFairnessArgs) Validate() error {
	if a.OraclePrice == 0 {
		return model.ErrInvalidOraclePrice
	}
	return requireID("intent_id", a.IntentID)
}

func (VerifySwapFairnessArgs) Refs() []model.RecordRef {
	return nil
}

type ProveNoFrontRunningArgs struct {
	IntentID        model.ID `json:"intent_id"`
	BlockTimestamp  int64    `json:"block_timestamp"`
	MaxDelaySeconds uint64   `json:"max_delay_seconds"`
}

func (ProveNoFrontRunningArgs) Circuit() model.CircuitID {
	return CircuitProveNoFrontRunning
}

func (a ProveNoFrontRunningArgs) Validate() error {
	return requireID("intent_id", a.IntentID)
}

func (a ProveNoFrontRunningArgs) Refs() []model.RecordRef {
	return []model.RecordRef{intentRef(a.IntentID)}
}

// --- Emissions and SEMA ---

type InitEmissionsCertificateArgs struct {
	CertificateID model.ID `json:"certificate_id"`
}

func (InitEmissionsCertificateArgs) Circuit() model.CircuitID {
	return CircuitInitEmissionsCertificate
}

func (a InitEmissionsCertificateArgs) Validate() error {
	return requireID("certificate_id", a.CertificateID)
}

func (InitEmissionsCertificateArgs) Refs() []model.RecordRef {
	return nil
}

func (a InitEmissionsCertificateArgs) Target() model.RecordRef {
	return emissionsRef(a.CertificateID)
}

type UpdateEmissionsArgs struct {
	CertificateID model.ID `json:"certificate_id"`
}

func (UpdateEmissionsArgs) Circuit() model.CircuitID {
	return CircuitUpdateEmissions
}

func (a UpdateEmissionsArgs) Validate() error {
	return requireID("certificate_id", a.CertificateID)
}

func (a UpdateEmissionsArgs) Refs() []model.RecordRef {
	return []model.RecordRef{emissionsRef(a.CertificateID)}
}

func (a UpdateEmissionsArgs) Target() model.RecordRef {
	return emissionsRef(a.CertificateID)
}

type ProveThresholdArgs struct {
	CertificateID model.ID `json:"certificate_id"`
	Threshold     uint64   `json:"threshold"`
}

func (ProveThresholdArgs) Circuit() model.CircuitID {
	return CircuitProveThreshold
}

func (a ProveThresholdArgs) Validate() error {
	return requireID("certificate_id", a.CertificateID)
}

func (a ProveThresholdArgs) Refs() []model.RecordRef {
	return []model.RecordRef{emissionsRef(a.CertificateID)}
}

type InitSEMAReportArgs struct {
	ReportID model.ID `json:"report_id"`
}

func (InitSEMAReportArgs) Circuit() model.CircuitID {
	return CircuitInitSEMAReport
}

func (a InitSEMAReportArgs) Validate() error {
	return requireID("report_id", a.ReportID)
}

func (InitSEMAReportArgs) Refs() []model.RecordRef {
	return nil
}

func (a InitSEMAReportArgs) Target() model.RecordRef {
	return semaRef(a.ReportID)
}

type UpdateSEMAReportArgs struct {
	ReportID model.ID `json:"report_id"`
}

func (UpdateSEMAReportArgs) Circuit() model.CircuitID {
	return CircuitUpdateSEMAReport
}

func (a UpdateSEMAReportArgs) Validate() error {
	return requireID("report_id", a.ReportID)
}

func (a UpdateSEMAReportArgs) Refs() []model.RecordRef {
	return []model.RecordRef{semaRef(a.ReportID)}
}

func (a UpdateSEMAReportArgs) Target() model.RecordRef {
	return semaRef(a.ReportID)
}

type ProveSEMAComplianceArgs struct {
	ReportID  model.ID `json:"report_id"`
	Threshold uint64   `json:"threshold"`
}

func (ProveSEMAComplianceArgs) Circuit() model.CircuitID {
	return CircuitProveSEMACompliance
}

func (a ProveSEMAComplianceArgs) Validate() error {
	return requireID("report_id", a.ReportID)
}

func (a ProveSEMAComplianceArgs) Refs() []model.RecordRef {
	return []model.RecordRef{semaRef(a.ReportID)}
}

type CalculateOffsetPercentageArgs struct {
	TotalEmissions uint64 `json:"total_emissions"`
	RetiredCredits uint64 `json:"retired_credits"`
}

func (CalculateOffsetPercentageArgs) Circuit() model.CircuitID {
	return CircuitCalculateOffsetPercentage
}

func (CalculateOffsetPercentageArgs) Validate() error {
	return nil
}

func (CalculateOffsetPercentageArgs) Refs() []model.RecordRef {
	return nil
}
