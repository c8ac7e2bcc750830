// Package model defines the core domain types shared across the engine:
// confidential records, computation jobs, circuit outputs and events.
//
// Ciphertext fields are opaque everywhere except inside the cluster. Nothing
// in this package can decrypt them.
package model

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// ID is a 32-byte domain identifier (position, order, intent, certificate,
// report, token mint or X25519 public key). JSON form is lowercase hex.
type ID [32]byte

// ParseID decodes a 64-character hex string.
func ParseID(s string) (ID, error) {
	var id ID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("%w: id %q is not hex", ErrInvalidArguments, s)
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("%w: id must be %d bytes, got %d", ErrInvalidArguments, len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

func (id ID) String() string { return hex.EncodeToString(id[:]) }

// IsZero reports whether every byte is zero.
func (id ID) IsZero() bool { return id == ID{} }

func (id ID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// RecordKind names a family of confidential records.
type RecordKind string

const (
	KindPosition      RecordKind = "position"
	KindDarkPoolOrder RecordKind = "dark_pool_order"
	KindSwapIntent    RecordKind = "swap_intent"
	KindEmissions     RecordKind = "emissions"
	KindSEMAReport    RecordKind = "sema_report"
)

// Valid reports whether k is a known record kind.
func (k RecordKind) Valid() bool {
	switch k {
	case KindPosition, KindDarkPoolOrder, KindSwapIntent, KindEmissions, KindSEMAReport:
		return true
	}
	return false
}

// RecordRef is an opaque handle to a stored ciphertext record.
type RecordRef struct {
	Kind RecordKind `json:"kind"`
	ID   ID         `json:"id"`
}

func (r RecordRef) String() string { return string(r.Kind) + ":" + r.ID.String() }

// Record is a ciphertext container owned by the engine. Version increases by
// one on every overwrite; concurrent overwrites are last-writer-wins.
type Record struct {
	Kind       RecordKind `json:"kind"`
	ID         ID         `json:"id"`
	Ciphertext []byte     `json:"ciphertext"`
	Version    uint64     `json:"version"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Ref returns the record's reference.
func (r *Record) Ref() RecordRef { return RecordRef{Kind: r.Kind, ID: r.ID} }

// CircuitID identifies a confidential circuit, e.g. "update_health_factor".
type CircuitID string

// JobState is the lifecycle state of a computation job.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobExecuting JobState = "executing"
	JobCompleted JobState = "completed"
	JobAborted   JobState = "aborted"
)

// Terminal reports whether no further transition is possible.
func (s JobState) Terminal() bool { return s == JobCompleted || s == JobAborted }

// JobKey binds a job to its single callback. The correlation id is chosen by
// the caller and must be unique per circuit.
type JobKey struct {
	Circuit       CircuitID `json:"circuit"`
	CorrelationID uint64    `json:"correlation_id"`
}

func (k JobKey) String() string {
	return string(k.Circuit) + "/" + strconv.FormatUint(k.CorrelationID, 10)
}

// Args are the typed plaintext arguments of one circuit. Ciphertext inputs a
// circuit reads from the record store are named by the args and exposed via
// Refs.
type Args interface {
	Circuit() CircuitID
	Validate() error
	Refs() []RecordRef
}

// Job is a computation request handed to the cluster.
type Job struct {
	ID          string      `json:"job_id"`
	Key         JobKey      `json:"key"`
	Args        Args        `json:"args"`
	Refs        []RecordRef `json:"refs"`
	Inputs      [][]byte    `json:"inputs,omitempty"`
	State       JobState    `json:"state"`
	Reason      string      `json:"reason,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// Clone returns a deep copy safe to hand across goroutines.
func (j *Job) Clone() *Job {
	c := *j
	c.Refs = append([]RecordRef(nil), j.Refs...)
	if j.Inputs != nil {
		c.Inputs = make([][]byte, len(j.Inputs))
		for i, in := range j.Inputs {
			c.Inputs[i] = append([]byte(nil), in...)
		}
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// JobHandle is returned by submission. It carries no result.
type JobHandle struct {
	JobID string   `json:"job_id"`
	Key   JobKey   `json:"key"`
	State JobState `json:"state"`
}

// QueuedJob is what the cluster receives: the job plus the capability token
// it must present with its callback.
type QueuedJob struct {
	Job   Job    `json:"job"`
	Token string `json:"token"`
}

// RecordWrite is the ciphertext a completed job stores.
type RecordWrite struct {
	Ref        RecordRef
	Ciphertext []byte
}

// Finish describes a job's terminal transition.
type Finish struct {
	JobID  string
	State  JobState
	Reason string
	Write  *RecordWrite
	At     time.Time
}
