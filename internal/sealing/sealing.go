// Package sealing provides the ciphertext envelopes used by the engine.
//
// Records at rest are sealed with XChaCha20-Poly1305 under a key only the
// cluster holds, bound to the record's kind and id. Client inputs travel to
// the cluster, and owned results travel back to their recipient, as NaCl
// anonymous sealed boxes over X25519.
package sealing

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/box"

	"github.com/sentinel/mpc-engine/internal/model"
)

// MinSecretLen is the minimum master secret length.
const MinSecretLen = 32

var (
	ErrShortSecret = errors.New("sealing: master secret must be at least 32 bytes")
	ErrOpen        = errors.New("sealing: message authentication failed")
	ErrRecipient   = errors.New("sealing: recipient is not a usable X25519 public key")
)

// Enclave holds the cluster's key material.
type Enclave struct {
	public  [32]byte
	private [32]byte
	records cipher.AEAD
}

// NewEnclave derives the cluster's X25519 key pair and record key from a
// master secret.
func NewEnclave(secret []byte) (*Enclave, error) {
	if len(secret) < MinSecretLen {
		return nil, ErrShortSecret
	}

	e := &Enclave{}
	if err := derive(secret, "sentinel-cluster-x25519", e.private[:]); err != nil {
		return nil, err
	}
	pub, err := curve25519.X25519(e.private[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("derive cluster public key: %w", err)
	}
	copy(e.public[:], pub)

	recordKey := make([]byte, chacha20poly1305.KeySize)
	if err := derive(secret, "sentinel-record-key", recordKey); err != nil {
		return nil, err
	}
	e.records, err = chacha20poly1305.NewX(recordKey)
	if err != nil {
		return nil, fmt.Errorf("record cipher: %w", err)
	}
	return e, nil
}

func derive(secret []byte, info string, out []byte) error {
	kdf := hkdf.New(sha256.New, secret, nil, []byte(info))
	if _, err := io.ReadFull(kdf, out); err != nil {
		return fmt.Errorf("derive %s: %w", info, err)
	}
	return nil
}

// PublicKey is the key clients seal inputs to.
func (e *Enclave) PublicKey() model.ID { return model.ID(e.public) }

// SealRecord encrypts a record plaintext. The output is nonce || ciphertext.
func (e *Enclave) SealRecord(ref model.RecordRef, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, e.records.NonceSize(), e.records.NonceSize()+len(plaintext)+e.records.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("record nonce: %w", err)
	}
	return e.records.Seal(nonce, nonce, plaintext, recordAAD(ref)), nil
}

// OpenRecord decrypts a record sealed for ref. A ciphertext sealed for a
// different record fails to open.
func (e *Enclave) OpenRecord(ref model.RecordRef, sealed []byte) ([]byte, error) {
	n := e.records.NonceSize()
	if len(sealed) < n+e.records.Overhead() {
		return nil, fmt.Errorf("%w: record %s is truncated", ErrOpen, ref)
	}
	plaintext, err := e.records.Open(nil, sealed[:n], sealed[n:], recordAAD(ref))
	if err != nil {
		return nil, fmt.Errorf("%w: record %s", ErrOpen, ref)
	}
	return plaintext, nil
}

func recordAAD(ref model.RecordRef) []byte {
	aad := make([]byte, 0, len(ref.Kind)+1+len(ref.ID))
	aad = append(aad, ref.Kind...)
	aad = append(aad, 0)
	return append(aad, ref.ID[:]...)
}

// OpenShared decrypts a client input sealed to the cluster key.
func (e *Enclave) OpenShared(sealed []byte) ([]byte, error) {
	plaintext, ok := box.OpenAnonymous(nil, sealed, &e.public, &e.private)
	if !ok {
		return nil, fmt.Errorf("%w: shared input", ErrOpen)
	}
	return plaintext, nil
}

// SealFor encrypts plaintext to a recipient's X25519 public key. Clients use
// it with the cluster key; the cluster uses it for owned results.
func SealFor(recipient model.ID, plaintext []byte) ([]byte, error) {
	if err := checkRecipient(recipient); err != nil {
		return nil, err
	}
	key := [32]byte(recipient)
	sealed, err := box.SealAnonymous(nil, plaintext, &key, rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("seal for %s: %w", recipient, err)
	}
	return sealed, nil
}

// checkRecipient rejects low-order points, the zero key among them. Any
// scalar maps them to the all-zero shared secret, which X25519 refuses.
func checkRecipient(recipient model.ID) error {
	var scalar [32]byte
	if _, err := rand.Read(scalar[:]); err != nil {
		return fmt.Errorf("recipient check: %w", err)
	}
	if _, err := curve25519.X25519(scalar[:], recipient[:]); err != nil {
		return fmt.Errorf("%w: %s", ErrRecipient, recipient)
	}
	return nil
}

// KeyPair is a recipient's X25519 key pair.
type KeyPair struct {
	Public  model.ID
	private [32]byte
}

// GenerateKeyPair creates a recipient key pair.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key pair: %w", err)
	}
	return &KeyPair{Public: model.ID(*pub), private: *priv}, nil
}

// Open decrypts a result sealed to the key pair.
func (k *KeyPair) Open(sealed []byte) ([]byte, error) {
	pub := [32]byte(k.Public)
	plaintext, ok := box.OpenAnonymous(nil, sealed, &pub, &k.private)
	if !ok {
		return nil, fmt.Errorf("%w: owned result", ErrOpen)
	}
	return plaintext, nil
}
