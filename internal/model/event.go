package model

// EventKind names a domain event emitted after a successful callback.
type EventKind string

const (
	EventPositionInitialized             EventKind = "PositionInitialized"
	EventPositionDataUpdated             EventKind = "PositionDataUpdated"
	EventHealthFactorUpdated             EventKind = "HealthFactorUpdated"
	EventHealthThresholdProved           EventKind = "HealthThresholdProved"
	EventLiquidationRiskCalculated       EventKind = "LiquidationRiskCalculated"
	EventRebalanceComputed               EventKind = "RebalanceComputed"
	EventBatchHealthChecked              EventKind = "BatchHealthChecked"
	EventPortfolioRiskAggregated         EventKind = "PortfolioRiskAggregated"
	EventDarkPoolOrderCreated            EventKind = "DarkPoolOrderCreated"
	EventDarkPoolOrdersMatched           EventKind = "DarkPoolOrdersMatched"
	EventExecutionPriceCalculated        EventKind = "ExecutionPriceCalculated"
	EventSwapIntentCreated               EventKind = "SwapIntentCreated"
	EventPrivateSwapExecuted             EventKind = "PrivateSwapExecuted"
	EventSwapFairnessVerified            EventKind = "SwapFairnessVerified"
	EventFrontRunningChecked             EventKind = "FrontRunningChecked"
	EventEmissionsCertificateInitialized EventKind = "EmissionsCertificateInitialized"
	EventEmissionsUpdated                EventKind = "EmissionsUpdated"
	EventEmissionsThresholdProved        EventKind = "EmissionsThresholdProved"
	EventSEMAReportInitialized           EventKind = "SEMAReportInitialized"
	EventSEMAReportUpdated               EventKind = "SEMAReportUpdated"
	EventSEMAComplianceProved            EventKind = "SEMAComplianceProved"
	EventOffsetPercentageCalculated      EventKind = "OffsetPercentageCalculated"
)

// Event is published once per completed job.
type Event struct {
	ID            string    `json:"id"`
	Kind          EventKind `json:"kind"`
	Circuit       CircuitID `json:"circuit"`
	CorrelationID uint64    `json:"correlation_id"`
	Payload       Payload   `json:"payload"`
	Timestamp     int64     `json:"timestamp"`
}

// Payload is the typed body of an event.
type Payload interface {
	payload()
}

// RecordUpdated is the payload of every event that wrote a record.
type RecordUpdated struct {
	Ref     RecordRef `json:"ref"`
	Version uint64    `json:"version"`
}

type HealthThresholdProved struct {
	IsHealthy bool `json:"is_healthy"`
}

type LiquidationRiskCalculated struct {
	RiskLevel uint8 `json:"risk_level"`
}

type BatchHealthChecked struct {
	AtRiskCount uint8 `json:"at_risk_count"`
}

type DarkPoolOrdersMatched struct {
	IsMatched bool `json:"is_matched"`
}

type PrivateSwapExecuted struct {
	Success bool `json:"success"`
}

type SwapFairnessVerified struct {
	IsFair bool `json:"is_fair"`
}

type FrontRunningChecked struct {
	IsClean bool `json:"is_clean"`
}

type EmissionsThresholdProved struct {
	BelowThreshold bool `json:"below_threshold"`
}

type SEMAComplianceProved struct {
	IsCompliant bool `json:"is_compliant"`
}

type OffsetPercentageCalculated struct {
	Percentage uint64 `json:"percentage"`
}

// OwnedResult carries a result encrypted to its recipient. The engine cannot
// read it.
type OwnedResult struct {
	Ciphertext []byte `json:"ciphertext"`
}

func (RecordUpdated) payload()              {}
func (HealthThresholdProved) payload()      {}
func (LiquidationRiskCalculated) payload()  {}
func (BatchHealthChecked) payload()         {}
func (DarkPoolOrdersMatched) payload()      {}
func (PrivateSwapExecuted) payload()        {}
func (SwapFairnessVerified) payload()       {}
func (FrontRunningChecked) payload()        {}
func (EmissionsThresholdProved) payload()   {}
func (SEMAComplianceProved) payload()       {}
func (OffsetPercentageCalculated) payload() {}
func (OwnedResult) payload()                {}
