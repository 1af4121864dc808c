// Package auditsign signs a run's batch.Summary into a compact JWT
// receipt, so a downstream auditor can verify a summary was produced
// by this engine and has not been altered in transit (SPEC_FULL.md
// §6's audit receipt). It reuses the same HS256 sign/verify shape as
// internal/progressfeed's bearer tokens, for a different claims
// payload.
package auditsign

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/blake2b"

	"github.com/rezahh107/matrix2/internal/batch"
)

var (
	ErrInvalidReceipt  = errors.New("invalid audit receipt")
	ErrSummaryMismatch = errors.New("summary hash does not match receipt")
)

// Claims identifies which run a receipt attests to and the hash of
// its summary at signing time.
type Claims struct {
	RunID       string `json:"run_id"`
	SummaryHash string `json:"summary_hash"`
	jwt.RegisteredClaims
}

// Signer issues and verifies audit receipts.
type Signer struct {
	secretKey string
}

func NewSigner(secretKey string) *Signer {
	return &Signer{secretKey: secretKey}
}

// SummaryHash returns a stable BLAKE2b-256 hash, hex-encoded, of a
// summary's canonical JSON encoding.
func SummaryHash(summary batch.Summary) (string, error) {
	encoded, err := json.Marshal(summary)
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}

// Sign produces a compact JWT receipt binding runID to summary's hash.
func (s *Signer) Sign(runID string, summary batch.Summary, issuedAt time.Time) (string, error) {
	hash, err := SummaryHash(summary)
	if err != nil {
		return "", err
	}
	claims := Claims{
		RunID:       runID,
		SummaryHash: hash,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  runID,
			IssuedAt: jwt.NewNumericDate(issuedAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.secretKey))
}

// Verify parses receipt and confirms its embedded hash matches
// summary's current hash, proving the summary has not been altered
// since it was signed.
func (s *Signer) Verify(receipt string, summary batch.Summary) (*Claims, error) {
	token, err := jwt.ParseWithClaims(receipt, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidReceipt
		}
		return []byte(s.secretKey), nil
	})
	if err != nil {
		return nil, ErrInvalidReceipt
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidReceipt
	}
	hash, err := SummaryHash(summary)
	if err != nil {
		return nil, err
	}
	if hash != claims.SummaryHash {
		return nil, ErrSummaryMismatch
	}
	return claims, nil
}
