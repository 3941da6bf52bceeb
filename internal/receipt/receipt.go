// Package receipt signs and verifies completion receipts for finished runs.
package receipt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"capline/internal/domain"
)

var ErrNoSecret = errors.New("receipt secret not configured")

const DefaultIssuer = "capline"

type Claims struct {
	jwt.RegisteredClaims
	Difficulty       string `json:"difficulty"`
	Team             string `json:"team"`
	Cleared          bool   `json:"cleared"`
	ClaimCode        string `json:"claim_code,omitempty"`
	ReviewChecksum   string `json:"review_checksum"`
	XP               int    `json:"xp"`
	LearnerComposite int    `json:"learner_composite"`
	AIComposite      int    `json:"ai_composite"`
	Margin           int    `json:"margin"`
}

// Issuer signs receipts with HS256. A zero TTL issues receipts that never
// expire.
type Issuer struct {
	Secret string
	Issuer string
	TTL    time.Duration
	Now    func() time.Time
}

func (i Issuer) now() time.Time {
	if i.Now != nil {
		return i.Now()
	}
	return time.Now()
}

func (i Issuer) issuer() string {
	if i.Issuer != "" {
		return i.Issuer
	}
	return DefaultIssuer
}

// Enabled reports whether a secret is configured.
func (i Issuer) Enabled() bool {
	return strings.TrimSpace(i.Secret) != ""
}

// Issue signs a receipt for a finalized run.
func (i Issuer) Issue(team string, res domain.FinalResult) (string, error) {
	if !i.Enabled() {
		return "", ErrNoSecret
	}
	if res.RunID == "" || res.ReviewChecksum == "" {
		return "", errors.New("receipt requires a finalized run")
	}
	now := i.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  res.RunID,
			Issuer:   i.issuer(),
			IssuedAt: jwt.NewNumericDate(now),
		},
		Difficulty:       string(res.Difficulty),
		Team:             team,
		Cleared:          res.Cleared,
		ReviewChecksum:   res.ReviewChecksum,
		XP:               res.XPAwarded,
		LearnerComposite: res.LearnerComposite,
		AIComposite:      res.AIComposite,
		Margin:           res.Margin,
	}
	if res.ClaimCode != nil {
		claims.ClaimCode = *res.ClaimCode
	}
	if i.TTL > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(i.TTL))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.Secret))
	if err != nil {
		return "", fmt.Errorf("sign receipt: %w", err)
	}
	return signed, nil
}

// Verify checks the signature, issuer and expiry of a receipt.
func (i Issuer) Verify(token string) (Claims, error) {
	if !i.Enabled() {
		return Claims{}, ErrNoSecret
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer()),
		jwt.WithTimeFunc(i.now),
	)
	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(strings.TrimSpace(token), claims, func(t *jwt.Token) (any, error) {
		return []byte(i.Secret), nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("verify receipt: %w", err)
	}
	if !parsed.Valid {
		return Claims{}, errors.New("invalid receipt")
	}
	if claims.Subject == "" {
		return Claims{}, errors.New("receipt subject required")
	}
	return *claims, nil
}
