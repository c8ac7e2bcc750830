package model

// OutputKind declares how a circuit's result leaves the cluster.
type OutputKind string

const (
	// OutputSealedRecord is re-encrypted under the cluster key and stored.
	OutputSealedRecord OutputKind = "sealed_record"
	// OutputRevealedBool is a plaintext boolean.
	OutputRevealedBool OutputKind = "revealed_bool"
	// OutputRevealedU8 is a plaintext small scalar (counts, tiers).
	OutputRevealedU8 OutputKind = "revealed_u8"
	// OutputRevealedU64 is a plaintext scalar.
	OutputRevealedU64 OutputKind = "revealed_u64"
	// OutputOwned is re-encrypted to a named recipient key.
	OutputOwned OutputKind = "owned"
)

// Output is a decoded circuit result. Which fields are set depends on Kind:
// Ref+Ciphertext for sealed records, Ciphertext for owned results, Value for
// revealed scalars (booleans are 0 or 1).
type Output struct {
	Kind       OutputKind `json:"kind"`
	Ref        *RecordRef `json:"ref,omitempty"`
	Ciphertext []byte     `json:"ciphertext,omitempty"`
	Value      uint64     `json:"value,omitempty"`
}

func SealedRecordOutput(ref RecordRef, ciphertext []byte) Output {
	return Output{Kind: OutputSealedRecord, Ref: &ref, Ciphertext: ciphertext}
}

func RevealedBoolOutput(v bool) Output {
	o := Output{Kind: OutputRevealedBool}
	if v {
		o.Value = 1
	}
	return o
}

func RevealedU8Output(v uint8) Output {
	return Output{Kind: OutputRevealedU8, Value: uint64(v)}
}

func RevealedU64Output(v uint64) Output { return Output{Kind: OutputRevealedU64, Value: v} }

func OwnedOutput(ciphertext []byte) Output {
	return Output{Kind: OutputOwned, Ciphertext: ciphertext}
}

// Bool returns the revealed boolean.
func (o Output) Bool() bool { return o.Value != 0 }

// U8 returns the revealed small scalar.
func (o Output) U8() uint8 { return uint8(o.Value) }

// Outcome is the result of one cluster execution: exactly one of Success or
// Aborted. Only the dispatcher consumes it.
type Outcome interface {
	outcome()
}

// Success carries the circuit output.
type Success struct {
	Output Output
}

// Aborted carries the cluster-reported failure. Kind is the error kind
// (see ErrorKind) when the failure was a domain rule violation.
type Aborted struct {
	Reason string
	Kind   string
}

func (Success) outcome() {}
func (Aborted) outcome() {}

// Callback is the single inbound completion for a job.
type Callback struct {
	Key     JobKey
	Token   string
	Outcome Outcome
}
