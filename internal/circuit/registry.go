package circuit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/sentinel/mpc-engine/internal/model"
)

// Definition describes one circuit: its typed args, the inline ciphertext
// inputs it takes, its reveal-set and the event its completion emits.
type Definition struct {
	ID     model.CircuitID  `json:"id"`
	Output model.OutputKind `json:"output"`
	// Record is the kind of record a sealed output writes.
	Record model.RecordKind `json:"record,omitempty"`
	Event  model.EventKind  `json:"event"`
	// Inputs is the number of client-encrypted inline inputs.
	Inputs int `json:"inputs"`

	decode func([]byte) (model.Args, error)
	reveal func(model.Output) model.Payload
}

func define[A model.Args](id model.CircuitID, out model.OutputKind, rec model.RecordKind, ev model.EventKind, inputs int, reveal func(model.Output) model.Payload) Definition {
	return Definition{
		ID:     id,
		Output: out,
		Record: rec,
		Event:  ev,
		Inputs: inputs,
		decode: func(raw []byte) (model.Args, error) {
			var a A
			dec := json.NewDecoder(bytes.NewReader(raw))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&a); err != nil {
				return nil, fmt.Errorf("%w: decode %s args: %v", model.ErrInvalidArguments, id, err)
			}
			return a, nil
		},
		reveal: reveal,
	}
}

var definitions = []Definition{
	define[InitEncryptedPositionArgs](CircuitInitEncryptedPosition, model.OutputSealedRecord, model.KindPosition, model.EventPositionInitialized, 0, nil),
	define[UpdatePositionDataArgs](CircuitUpdatePositionData, model.OutputSealedRecord, model.KindPosition, model.EventPositionDataUpdated, 1, nil),
	define[UpdateHealthFactorArgs](CircuitUpdateHealthFactor, model.OutputSealedRecord, model.KindPosition, model.EventHealthFactorUpdated, 0, nil),
	define[ProveHealthThresholdArgs](CircuitProveHealthThreshold, model.OutputRevealedBool, "", model.EventHealthThresholdProved, 0,
		func(o model.Output) model.Payload { return model.HealthThresholdProved{IsHealthy: o.Bool()} }),
	define[CalculateLiquidationRiskArgs](CircuitCalculateLiquidationRisk, model.OutputRevealedU8, "", model.EventLiquidationRiskCalculated, 0,
		func(o model.Output) model.Payload { return model.LiquidationRiskCalculated{RiskLevel: o.U8()} }),
	define[ComputeOptimalRebalanceArgs](CircuitComputeOptimalRebalance, model.OutputOwned, "", model.EventRebalanceComputed, 0, nil),
	define[BatchHealthCheckArgs](CircuitBatchHealthCheck, model.OutputRevealedU8, "", model.EventBatchHealthChecked, 0,
		func(o model.Output) model.Payload { return model.BatchHealthChecked{AtRiskCount: o.U8()} }),
	define[AggregatePortfolioRiskArgs](CircuitAggregatePortfolioRisk, model.OutputOwned, "", model.EventPortfolioRiskAggregated, 0, nil),

	define[InitDarkPoolOrderArgs](CircuitInitDarkPoolOrder, model.OutputSealedRecord, model.KindDarkPoolOrder, model.EventDarkPoolOrderCreated, 1, nil),
	define[MatchDarkPoolOrdersArgs](CircuitMatchDarkPoolOrders, model.OutputRevealedBool, "", model.EventDarkPoolOrdersMatched, 0,
		func(o model.Output) model.Payload { return model.DarkPoolOrdersMatched{IsMatched: o.Bool()} }),
	define[CalculateExecutionPriceArgs](CircuitCalculateExecutionPrice, model.OutputOwned, "", model.EventExecutionPriceCalculated, 0, nil),

	define[InitSwapIntentArgs](CircuitInitSwapIntent, model.OutputSealedRecord, model.KindSwapIntent, model.EventSwapIntentCreated, 1, nil),
	define[ExecutePrivateSwapArgs](CircuitExecutePrivateSwap, model.OutputRevealedBool, "", model.EventPrivateSwapExecuted, 1,
		func(o model.Output) model.Payload { return model.PrivateSwapExecuted{Success: o.Bool()} }),
	define[VerifySwapFairnessArgs](CircuitVerifySwapFairness, model.OutputRevealedBool, "", model.EventSwapFairnessVerified, 1,
		func(o model.Output) model.Payload { return model.SwapFairnessVerified{IsFair: o.Bool()} }),
	define[ProveNoFrontRunningArgs](CircuitProveNoFrontRunning, model.OutputRevealedBool, "", model.EventFrontRunningChecked, 1,
		func(o model.Output) model.Payload { return model.FrontRunningChecked{IsClean: o.Bool()} }),

	define[InitEmissionsCertificateArgs](CircuitInitEmissionsCertificate, model.OutputSealedRecord, model.KindEmissions, model.EventEmissionsCertificateInitialized, 0, nil),
	define[UpdateEmissionsArgs](CircuitUpdateEmissions, model.OutputSealedRecord, model.KindEmissions, model.EventEmissionsUpdated, 1, nil),
	define[ProveThresholdArgs](CircuitProveThreshold, model.OutputRevealedBool, "", model.EventEmissionsThresholdProved, 0,
		func(o model.Output) model.Payload { return model.EmissionsThresholdProved{BelowThreshold: o.Bool()} }),
	define[InitSEMAReportArgs](CircuitInitSEMAReport, model.OutputSealedRecord, model.KindSEMAReport, model.EventSEMAReportInitialized, 0, nil),
	define[UpdateSEMAReportArgs](CircuitUpdateSEMAReport, model.OutputSealedRecord, model.KindSEMAReport, model.EventSEMAReportUpdated, 1, nil),
	define[ProveSEMAComplianceArgs](CircuitProveSEMACompliance, model.OutputRevealedBool, "", model.EventSEMAComplianceProved, 0,
		func(o model.Output) model.Payload { return model.SEMAComplianceProved{IsCompliant: o.Bool()} }),
	define[CalculateOffsetPercentageArgs](CircuitCalculateOffsetPercentage, model.OutputRevealedU64, "", model.EventOffsetPercentageCalculated, 0,
		func(o model.Output) model.Payload { return model.OffsetPercentageCalculated{Percentage: o.Value} }),
}

var registry = func() map[model.CircuitID]Definition {
	m := make(map[model.CircuitID]Definition, len(definitions))
	for _, d := range definitions {
		m[d.ID] = d
	}
	return m
}()

// Lookup returns the definition of id.
func Lookup(id model.CircuitID) (Definition, error) {
	d, ok := registry[id]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", model.ErrUnknownCircuit, id)
	}
	return d, nil
}

// Definitions lists every registered circuit in a stable order.
func Definitions() []Definition {
	return append([]Definition(nil), definitions...)
}

// DecodeArgs decodes the JSON args of circuit id into its typed args.
// Unknown fields are rejected.
func DecodeArgs(id model.CircuitID, raw []byte) (model.Args, error) {
	d, err := Lookup(id)
	if err != nil {
		return nil, err
	}
	return d.decode(raw)
}

// CheckOutput verifies that out has the shape the circuit declares for args.
func (d Definition) CheckOutput(args model.Args, out model.Output) error {
	if out.Kind != d.Output {
		return fmt.Errorf("%w: %s returns %s, got %s", model.ErrMalformedOutput, d.ID, d.Output, out.Kind)
	}
	switch out.Kind {
	case model.OutputSealedRecord:
		w, ok := args.(Writer)
		if !ok {
			return fmt.Errorf("%w: %s args name no target record", model.ErrMalformedOutput, d.ID)
		}
		if out.Ref == nil || *out.Ref != w.Target() {
			return fmt.Errorf("%w: sealed output must target %s", model.ErrMalformedOutput, w.Target())
		}
		if len(out.Ciphertext) == 0 {
			return fmt.Errorf("%w: empty ciphertext", model.ErrMalformedOutput)
		}
	case model.OutputOwned:
		if out.Ref != nil || len(out.Ciphertext) == 0 {
			return fmt.Errorf("%w: owned output must carry only a ciphertext", model.ErrMalformedOutput)
		}
	case model.OutputRevealedBool:
		if out.Value > 1 {
			return fmt.Errorf("%w: boolean value %d", model.ErrMalformedOutput, out.Value)
		}
	case model.OutputRevealedU8:
		if out.Value > math.MaxUint8 {
			return fmt.Errorf("%w: u8 value %d", model.ErrMalformedOutput, out.Value)
		}
	}
	if out.Kind != model.OutputSealedRecord && out.Kind != model.OutputOwned && (out.Ref != nil || len(out.Ciphertext) > 0) {
		return fmt.Errorf("%w: revealed output carries ciphertext", model.ErrMalformedOutput)
	}
	return nil
}

// Payload builds the event body for a completed job. rec is the record a
// sealed output wrote.
func (d Definition) Payload(out model.Output, rec *model.Record) model.Payload {
	switch d.Output {
	case model.OutputSealedRecord:
		return model.RecordUpdated{Ref: rec.Ref(), Version: rec.Version}
	case model.OutputOwned:
		return model.OwnedResult{Ciphertext: out.Ciphertext}
	default:
		return d.reveal(out)
	}
}
