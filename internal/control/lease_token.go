package control

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const leaseTokenIssuer = "steroids-control"

// ensureLeaseKey loads the control plane's lease-token signing key,
// generating and persisting a fresh one on first open. Every runner
// process sharing this database sees the same key, so a token issued by
// one process verifies under another.
func (s *Store) ensureLeaseKey(ctx context.Context) error {
	row := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'lease_signing_key'`)
	var hexKey string
	switch err := row.Scan(&hexKey); err {
	case nil:
		key, decErr := hex.DecodeString(hexKey)
		if decErr != nil {
			return fmt.Errorf("decode lease signing key: %w", decErr)
		}
		s.leaseKey = key
		return nil
	case sql.ErrNoRows:
		key := make([]byte, 32)
		if _, randErr := rand.Read(key); randErr != nil {
			return fmt.Errorf("generate lease signing key: %w", randErr)
		}
		if _, insErr := s.db.ExecContext(ctx,
			`INSERT INTO meta (key, value) VALUES ('lease_signing_key', ?)`, hex.EncodeToString(key)); insErr != nil {
			return fmt.Errorf("persist lease signing key: %w", insErr)
		}
		s.leaseKey = key
		return nil
	default:
		return fmt.Errorf("load lease signing key: %w", err)
	}
}

// LeaseClaims is the signed assertion that a runner holds a workstream's
// lease at a specific fence (status, claim_generation), carried alongside
// the fenced database row itself as defense in depth. Verifying the token
// proves who issued it and for which workstream; it does not compare the
// claim_generation against the current row, so a runner that lost the lease
// is rejected by its next fenced UPDATE, not by token verification.
type LeaseClaims struct {
	jwt.RegisteredClaims
	WorkstreamID    string `json:"workstream_id"`
	RunnerID        string `json:"runner_id"`
	ClaimGeneration int    `json:"claim_generation"`
}

// IssueLeaseToken signs a lease token for runnerID's current claim over f,
// valid for ttl.
func (s *Store) IssueLeaseToken(f LeaseFence, runnerID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := LeaseClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    leaseTokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		WorkstreamID:    f.WorkstreamID,
		RunnerID:        runnerID,
		ClaimGeneration: f.ClaimGeneration,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.leaseKey)
}

// VerifyLeaseToken parses and validates a lease token. It checks signature
// and expiry only; the claim_generation it asserts may since have moved on,
// so callers still need a fenced store mutation (HeartbeatLease, SealWorkstream,
// TransitionWorkstream) for the authoritative check against the current row.
func (s *Store) VerifyLeaseToken(tokenString string) (*LeaseClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &LeaseClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != "HS256" {
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
		return s.leaseKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse lease token: %w", err)
	}
	claims, ok := parsed.Claims.(*LeaseClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid lease token")
	}
	return claims, nil
}
