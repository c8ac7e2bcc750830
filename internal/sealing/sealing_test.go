package sealing_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel/mpc-engine/internal/model"
	"github.com/sentinel/mpc-engine/internal/sealing"
)

func newEnclave(t *testing.T) *sealing.Enclave {
	t.Helper()
	e, err := sealing.NewEnclave(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)
	return e
}

func TestNewEnclave_ShortSecret(t *testing.T) {
	_, err := sealing.NewEnclave([]byte("short"))
	assert.True(t, errors.Is(err, sealing.ErrShortSecret))
}

func TestNewEnclave_Deterministic(t *testing.T) {
	a := newEnclave(t)
	b := newEnclave(t)
	assert.Equal(t, a.PublicKey(), b.PublicKey())

	ref := model.RecordRef{Kind: model.KindPosition, ID: model.ID{1}}
	sealed, err := a.SealRecord(ref, []byte("state"))
	require.NoError(t, err)
	got, err := b.OpenRecord(ref, sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("state"), got)
}

func TestRecord_BoundToRef(t *testing.T) {
	e := newEnclave(t)
	ref := model.RecordRef{Kind: model.KindPosition, ID: model.ID{1}}
	sealed, err := e.SealRecord(ref, []byte(`{"collateral_usd":1}`))
	require.NoError(t, err)

	_, err = e.OpenRecord(model.RecordRef{Kind: model.KindPosition, ID: model.ID{2}}, sealed)
	assert.True(t, errors.Is(err, sealing.ErrOpen))

	_, err = e.OpenRecord(model.RecordRef{Kind: model.KindSwapIntent, ID: model.ID{1}}, sealed)
	assert.True(t, errors.Is(err, sealing.ErrOpen))

	_, err = e.OpenRecord(ref, sealed[:10])
	assert.True(t, errors.Is(err, sealing.ErrOpen))
}

func TestRecord_FreshNonce(t *testing.T) {
	e := newEnclave(t)
	ref := model.RecordRef{Kind: model.KindEmissions, ID: model.ID{9}}
	a, err := e.SealRecord(ref, []byte("x"))
	require.NoError(t, err)
	b, err := e.SealRecord(ref, []byte("x"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSharedInput_RoundTrip(t *testing.T) {
	e := newEnclave(t)
	sealed, err := sealing.SealFor(e.PublicKey(), []byte("terms"))
	require.NoError(t, err)

	got, err := e.OpenShared(sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("terms"), got)

	sealed[len(sealed)-1] ^= 0xff
	_, err = e.OpenShared(sealed)
	assert.True(t, errors.Is(err, sealing.ErrOpen))
}

func TestOwnedResult_OnlyRecipientOpens(t *testing.T) {
	owner, err := sealing.GenerateKeyPair()
	require.NoError(t, err)
	other, err := sealing.GenerateKeyPair()
	require.NoError(t, err)

	sealed, err := sealing.SealFor(owner.Public, []byte("95"))
	require.NoError(t, err)

	got, err := owner.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("95"), got)

	_, err = other.Open(sealed)
	assert.True(t, errors.Is(err, sealing.ErrOpen))
}

func TestSealFor_RejectsLowOrderRecipient(t *testing.T) {
	// u = 0 and u = 1 are small-order points on Curve25519.
	for _, recipient := range []model.ID{{}, {1}} {
		_, err := sealing.SealFor(recipient, []byte("95"))
		assert.True(t, errors.Is(err, sealing.ErrRecipient), "recipient %s", recipient)
	}
}
