package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sentinel/mpc-engine/internal/circuit"
	"github.com/sentinel/mpc-engine/internal/model"
	"github.com/sentinel/mpc-engine/internal/sealing"
)

// evaluation is the state one circuit run sees.
type evaluation struct {
	ctx context.Context
	l   *Local
	job *model.Job
	now int64
}

type evalFunc func(e *evaluation) (model.Output, error)

func (l *Local) evaluate(ctx context.Context, job *model.Job) (model.Output, error) {
	fn, ok := evaluators[job.Key.Circuit]
	if !ok {
		return model.Output{}, fmt.Errorf("%w: %q", model.ErrUnknownCircuit, job.Key.Circuit)
	}
	return fn(&evaluation{ctx: ctx, l: l, job: job, now: l.now().Unix()})
}

func argsAs[A model.Args](e *evaluation) (A, error) {
	a, ok := e.job.Args.(A)
	if !ok {
		return a, fmt.Errorf("%w: %s cannot run with %T", model.ErrInvalidArguments, e.job.Key.Circuit, e.job.Args)
	}
	return a, nil
}

func openRecord[T any](e *evaluation, ref model.RecordRef) (T, error) {
	var v T
	rec, err := e.l.store.GetRecord(e.ctx, ref)
	if err != nil {
		return v, err
	}
	pt, err := e.l.enclave.OpenRecord(ref, rec.Ciphertext)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(pt, &v); err != nil {
		return v, fmt.Errorf("decode record %s: %w", ref, err)
	}
	return v, nil
}

func openInput[T any](e *evaluation, i int) (T, error) {
	var v T
	if i >= len(e.job.Inputs) {
		return v, fmt.Errorf("%w: missing input %d", model.ErrInvalidArguments, i)
	}
	pt, err := e.l.enclave.OpenShared(e.job.Inputs[i])
	if err != nil {
		return v, fmt.Errorf("%w: input %d: %v", model.ErrInvalidArguments, i, err)
	}
	dec := json.NewDecoder(bytes.NewReader(pt))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, fmt.Errorf("%w: decode input %d: %v", model.ErrInvalidArguments, i, err)
	}
	return v, nil
}

func openPosition(e *evaluation, id model.ID) (circuit.Position, error) {
	p, err := openRecord[circuit.Position](e, model.RecordRef{Kind: model.KindPosition, ID: id})
	if err != nil {
		return p, err
	}
	return p, p.Validate()
}

func openBatch(e *evaluation, ids []model.ID) (circuit.PositionBatch, error) {
	ps := make([]circuit.Position, len(ids))
	for i, id := range ids {
		p, err := openPosition(e, id)
		if err != nil {
			return circuit.PositionBatch{}, err
		}
		ps[i] = p
	}
	return circuit.NewPositionBatch(ps)
}

func openOrders(e *evaluation, pair circuit.OrderPairArgs) (buy, sell circuit.DarkPoolOrder, err error) {
	refs := pair.Refs()
	if buy, err = openRecord[circuit.DarkPoolOrder](e, refs[0]); err != nil {
		return
	}
	if sell, err = openRecord[circuit.DarkPoolOrder](e, refs[1]); err != nil {
		return
	}
	if buy.Expired(e.now) || sell.Expired(e.now) {
		err = fmt.Errorf("%w: order pair %s/%s", model.ErrOrderExpired, pair.BuyOrderID, pair.SellOrderID)
	}
	return
}

func sealRecord[T any](e *evaluation, s circuit.Sealed[T]) (model.Output, error) {
	w, ok := e.job.Args.(circuit.Writer)
	if !ok {
		return model.Output{}, fmt.Errorf("%w: %s writes no record", model.ErrMalformedOutput, e.job.Key.Circuit)
	}
	data, err := json.Marshal(s.Plaintext())
	if err != nil {
		return model.Output{}, err
	}
	ref := w.Target()
	ct, err := e.l.enclave.SealRecord(ref, data)
	if err != nil {
		return model.Output{}, err
	}
	return model.SealedRecordOutput(ref, ct), nil
}

func sealOwned[T any](o circuit.Owned[T]) (model.Output, error) {
	data, err := json.Marshal(o.Plaintext())
	if err != nil {
		return model.Output{}, err
	}
	ct, err := sealing.SealFor(o.Recipient(), data)
	if errors.Is(err, sealing.ErrRecipient) {
		return model.Output{}, fmt.Errorf("%w: %w", model.ErrInvalidArguments, err)
	}
	if err != nil {
		return model.Output{}, err
	}
	return model.OwnedOutput(ct), nil
}

var evaluators = map[model.CircuitID]evalFunc{
	circuit.CircuitInitEncryptedPosition: func(e *evaluation) (model.Output, error) {
		a, err := argsAs[circuit.InitEncryptedPositionArgs](e)
		if err != nil {
			return model.Output{}, err
		}
		return sealRecord(e, circuit.InitPosition(a.Protocol, e.now))
	},
	circuit.CircuitUpdatePositionData: func(e *evaluation) (model.Output, error) {
		a, err := argsAs[circuit.UpdatePositionDataArgs](e)
		if err != nil {
			return model.Output{}, err
		}
		p, err := openPosition(e, a.PositionID)
		if err != nil {
			return model.Output{}, err
		}
		u, err := openInput[circuit.PositionUpdate](e, 0)
		if err != nil {
			return model.Output{}, err
		}
		return sealRecord(e, circuit.ApplyPositionUpdate(p, u, e.now))
	},
	circuit.CircuitUpdateHealthFactor: func(e *evaluation) (model.Output, error) {
		a, err := argsAs[circuit.UpdateHealthFactorArgs](e)
		if err != nil {
			return model.Output{}, err
		}
		// Refreshing must not reject a record whose stored ratio is stale.
		p, err := openRecord[circuit.Position](e, model.RecordRef{Kind: model.KindPosition, ID: a.PositionID})
		if err != nil {
			return model.Output{}, err
		}
		return sealRecord(e, circuit.RefreshHealthFactor(p, e.now))
	},
	circuit.CircuitProveHealthThreshold: func(e *evaluation) (model.Output, error) {
		a, err := argsAs[circuit.ProveHealthThresholdArgs](e)
		if err != nil {
			return model.Output{}, err
		}
		p, err := openPosition(e, a.PositionID)
		if err != nil {
			return model.Output{}, err
		}
		return model.RevealedBoolOutput(circuit.ProveHealthThreshold(p, a.ThresholdBps).Value()), nil
	},
	circuit.CircuitCalculateLiquidationRisk: func(e *evaluation) (model.Output, error) {
		a, err := argsAs[circuit.CalculateLiquidationRiskArgs](e)
		if err != nil {
			return model.Output{}, err
		}
		p, err := openPosition(e, a.PositionID)
		if err != nil {
			return model.Output{}, err
		}
		return model.RevealedU8Output(circuit.CalculateLiquidationRisk(p, a.PriceImpactBps).Value()), nil
	},
	circuit.CircuitComputeOptimalRebalance: func(e *evaluation) (model.Output, error) {
		a, err := argsAs[circuit.ComputeOptimalRebalanceArgs](e)
		if err != nil {
			return model.Output{}, err
		}
		p, err := openPosition(e, a.PositionID)
		if err != nil {
			return model.Output{}, err
		}
		return sealOwned(circuit.ComputeOptimalRebalance(p, a.TargetHealthBps, a.Recipient))
	},
	circuit.CircuitBatchHealthCheck: func(e *evaluation) (model.Output, error) {
		a, err := argsAs[circuit.BatchHealthCheckArgs](e)
		if err != nil {
			return model.Output{}, err
		}
		b, err := openBatch(e, a.Positions)
		if err != nil {
			return model.Output{}, err
		}
		return model.RevealedU8Output(circuit.BatchHealthCheck(b, a.PositionCount).Value()), nil
	},
	circuit.CircuitAggregatePortfolioRisk: func(e *evaluation) (model.Output, error) {
		a, err := argsAs[circuit.AggregatePortfolioRiskArgs](e)
		if err != nil {
			return model.Output{}, err
		}
		b, err := openBatch(e, a.Positions)
		if err != nil {
			return model.Output{}, err
		}
		return sealOwned(circuit.AggregatePortfolioRisk(b, a.Recipient))
	},

	circuit.CircuitInitDarkPoolOrder: func(e *evaluation) (model.Output, error) {
		a, err := argsAs[circuit.InitDarkPoolOrderArgs](e)
		if err != nil {
			return model.Output{}, err
		}
		terms, err := openInput[circuit.OrderTerms](e, 0)
		if err != nil {
			return model.Output{}, err
		}
		order, err := circuit.InitDarkPoolOrder(a.Side, a.ExpiresAt, terms, e.now)
		if err != nil {
			return model.Output{}, err
		}
		return sealRecord(e, order)
	},
	circuit.CircuitMatchDarkPoolOrders: func(e *evaluation) (model.Output, error) {
		a, err := argsAs[circuit.MatchDarkPoolOrdersArgs](e)
		if err != nil {
			return model.Output{}, err
		}
		buy, sell, err := openOrders(e, a.OrderPairArgs)
		if err != nil {
			return model.Output{}, err
		}
		return model.RevealedBoolOutput(circuit.MatchDarkPoolOrders(buy, sell).Value()), nil
	},
	circuit.CircuitCalculateExecutionPrice: func(e *evaluation) (model.Output, error) {
		a, err := argsAs[circuit.CalculateExecutionPriceArgs](e)
		if err != nil {
			return model.Output{}, err
		}
		buy, sell, err := openOrders(e, a.OrderPairArgs)
		if err != nil {
			return model.Output{}, err
		}
		res, err := circuit.CalculateExecutionPrice(buy, sell)
		if err != nil {
			return model.Output{}, err
		}
		return sealOwned(res)
	},

	circuit.CircuitInitSwapIntent: func(e *evaluation) (model.Output, error) {
		a, err := argsAs[circuit.InitSwapIntentArgs](e)
		if err != nil {
			return model.Output{}, err
		}
		terms, err := openInput[circuit.IntentTerms](e, 0)
		if err != nil {
			return model.Output{}, err
		}
		intent, err := circuit.InitSwapIntent(a.Deadline, terms, e.now)
		if err != nil {
			return model.Output{}, err
		}
		return sealRecord(e, intent)
	},
	circuit.CircuitExecutePrivateSwap: func(e *evaluation) (model.Output, error) {
		a, err := argsAs[circuit.ExecutePrivateSwapArgs](e)
		if err != nil {
			return model.Output{}, err
		}
		intent, err := openRecord[circuit.SwapIntent](e, a.Refs()[0])
		if err != nil {
			return model.Output{}, err
		}
		if intent.Expired(e.now) {
			return model.Output{}, fmt.Errorf("%w: intent %s", model.ErrOrderExpired, a.IntentID)
		}
		quote, err := openInput[circuit.SwapQuote](e, 0)
		if err != nil {
			return model.Output{}, err
		}
		return model.RevealedBoolOutput(circuit.ExecutePrivateSwap(intent, quote.ActualOutput, a.MaxSlippageBps).Value()), nil
	},
	circuit.CircuitVerifySwapFairness: func(e *evaluation) (model.Output, error) {
		a, err := argsAs[circuit.VerifySwapFairnessArgs](e)
		if err != nil {
			return model.Output{}, err
		}
		quote, err := openInput[circuit.SwapQuote](e, 0)
		if err != nil {
			return model.Output{}, err
		}
		fair, err := circuit.VerifySwapFairness(quote.ExecutionPrice, a.OraclePrice, a.MaxDeviationBps)
		if err != nil {
			return model.Output{}, err
		}
		return model.RevealedBoolOutput(fair.Value()), nil
	},
	circuit.CircuitProveNoFrontRunning: func(e *evaluation) (model.Output, error) {
		a, err := argsAs[circuit.ProveNoFrontRunningArgs](e)
		if err != nil {
			return model.Output{}, err
		}
		intent, err := openRecord[circuit.SwapIntent](e, a.Refs()[0])
		if err != nil {
			return model.Output{}, err
		}
		timing, err := openInput[circuit.ExecutionTiming](e, 0)
		if err != nil {
			return model.Output{}, err
		}
		clean := circuit.ProveNoFrontRunning(timing.ExecutionTimestamp, a.BlockTimestamp, intent.Deadline, a.MaxDelaySeconds)
		return model.RevealedBoolOutput(clean.Value()), nil
	},

	circuit.CircuitInitEmissionsCertificate: func(e *evaluation) (model.Output, error) {
		return sealRecord(e, circuit.InitEmissions())
	},
	circuit.CircuitUpdateEmissions: func(e *evaluation) (model.Output, error) {
		a, err := argsAs[circuit.UpdateEmissionsArgs](e)
		if err != nil {
			return model.Output{}, err
		}
		if _, err := openRecord[circuit.EmissionsData](e, a.Refs()[0]); err != nil {
			return model.Output{}, err
		}
		data, err := openInput[circuit.EmissionsData](e, 0)
		if err != nil {
			return model.Output{}, err
		}
		return sealRecord(e, circuit.UpdateEmissions(data))
	},
	circuit.CircuitProveThreshold: func(e *evaluation) (model.Output, error) {
		a, err := argsAs[circuit.ProveThresholdArgs](e)
		if err != nil {
			return model.Output{}, err
		}
		data, err := openRecord[circuit.EmissionsData](e, a.Refs()[0])
		if err != nil {
			return model.Output{}, err
		}
		return model.RevealedBoolOutput(circuit.ProveThreshold(data, a.Threshold).Value()), nil
	},
	circuit.CircuitInitSEMAReport: func(e *evaluation) (model.Output, error) {
		return sealRecord(e, circuit.InitSEMAReport())
	},
	circuit.CircuitUpdateSEMAReport: func(e *evaluation) (model.Output, error) {
		a, err := argsAs[circuit.UpdateSEMAReportArgs](e)
		if err != nil {
			return model.Output{}, err
		}
		if _, err := openRecord[circuit.SEMAReport](e, a.Refs()[0]); err != nil {
			return model.Output{}, err
		}
		report, err := openInput[circuit.SEMAReport](e, 0)
		if err != nil {
			return model.Output{}, err
		}
		return sealRecord(e, circuit.UpdateSEMAReport(report))
	},
	circuit.CircuitProveSEMACompliance: func(e *evaluation) (model.Output, error) {
		a, err := argsAs[circuit.ProveSEMAComplianceArgs](e)
		if err != nil {
			return model.Output{}, err
		}
		report, err := openRecord[circuit.SEMAReport](e, a.Refs()[0])
		if err != nil {
			return model.Output{}, err
		}
		return model.RevealedBoolOutput(circuit.ProveSEMACompliance(report, a.Threshold).Value()), nil
	},
	circuit.CircuitCalculateOffsetPercentage: func(e *evaluation) (model.Output, error) {
		a, err := argsAs[circuit.CalculateOffsetPercentageArgs](e)
		if err != nil {
			return model.Output{}, err
		}
		pct := circuit.CalculateOffsetPercentage(a.TotalEmissions, a.RetiredCredits)
		return model.RevealedU64Output(pct.Value()), nil
	},
}
