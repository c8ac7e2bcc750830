// Package capability issues and verifies the tokens that authorize a
// cluster's callback for exactly one job.
package capability

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sentinel/mpc-engine/internal/model"
)

const issuer = "sentinel-orchestrator"

// Claims binds a token to one job: the subject is the job key, the token id
// is the job id.
type Claims struct {
	Circuit model.CircuitID `json:"circuit"`
	jwt.RegisteredClaims
}

// Issuer signs callback tokens with HS256.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an issuer. Tokens expire ttl after the job is queued.
func NewIssuer(secret []byte, ttl time.Duration) *Issuer {
	return &Issuer{secret: secret, ttl: ttl, now: time.Now}
}

// WithClock replaces the issuer's clock. Used in tests.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

// Issue returns the token the cluster must present with job's callback.
func (i *Issuer) Issue(job *model.Job) (string, error) {
	now := i.now()
	claims := Claims{
		Circuit: job.Key.Circuit,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   job.Key.String(),
			ID:        job.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign callback token: %w", err)
	}
	return signed, nil
}

// Verify checks that token was issued for job and has not expired. Every
// failure wraps model.ErrUnauthorizedCallback.
func (i *Issuer) Verify(token string, job *model.Job) error {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return i.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithSubject(job.Key.String()),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrUnauthorizedCallback, err)
	}
	if claims.ID != job.ID || claims.Circuit != job.Key.Circuit {
		return fmt.Errorf("%w: token was issued for another job", model.ErrUnauthorizedCallback)
	}
	return nil
}
