package circuit

import "github.com/sentinel/mpc-engine/internal/model"

// Revealed is a circuit result the cluster publishes in plaintext. It is the
// only wrapper whose value the orchestrating side may read.
type Revealed[T any] struct {
	v T
}

// Reveal marks v for plaintext publication.
func Reveal[T any](v T) Revealed[T] { return Revealed[T]{v: v} }

func (r Revealed[T]) Value() T { return r.v }

// Sealed is a circuit result re-encrypted under the cluster key and written to
// the record store.
type Sealed[T any] struct {
	v T
}

// Seal marks v for re-encryption under the cluster key.
func Seal[T any](v T) Sealed[T] { return Sealed[T]{v: v} }

// Plaintext is called by the cluster when encrypting the result. Nothing
// outside the cluster holds a Sealed value.
func (s Sealed[T]) Plaintext() T { return s.v }

// Owned is a circuit result re-encrypted to a recipient's X25519 key.
type Owned[T any] struct {
	recipient model.ID
	v         T
}

// Own marks v for re-encryption to recipient.
func Own[T any](recipient model.ID, v T) Owned[T] {
	return Owned[T]{recipient: recipient, v: v}
}

func (o Owned[T]) Recipient() model.ID { return o.recipient }

// Plaintext is called by the cluster when encrypting the result to the
// recipient.
func (o Owned[T]) Plaintext() T { return o.v }
