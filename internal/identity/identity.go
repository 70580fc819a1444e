// Package identity validates the bearer JWT an authenticated caller presents
// and turns it, or an anonymous caller's identification-token and session
// ids, into the Identity a VoteRecorder acts on (spec §1
// IdentityService/PermissionService collaborators).
//
// Uses Ed25519 (EdDSA) for JWT signing, the same primitive the rest of this
// codebase's ambient stack favors over HMAC.
package identity

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log/slog"
	"os"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mc-bench/scoring-core/internal/vote"
)

// VotePermissionScope is the JWT scope an authenticated user must carry to
// record a vote. Users without it are still valid identities for read
// endpoints but RecordVote rejects them with model.ErrForbidden.
const VotePermissionScope = "vote:create"

// Claims extends jwt.RegisteredClaims with the fields this subsystem reads.
type Claims struct {
	jwt.RegisteredClaims
	UserID int64    `json:"user_id"`
	Scopes []string `json:"scopes"`
}

func (c Claims) hasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// JWTManager validates the bearer tokens issued by the upstream identity
// provider. This subsystem only verifies; token issuance belongs to the
// collaborator service the spec names, not to this repo.
type JWTManager struct {
	publicKey ed25519.PublicKey
}

// NewJWTManager loads the verification key from a PEM file. If path is
// empty, generates an ephemeral key pair (development only — no token
// issued elsewhere will ever validate against it).
func NewJWTManager(publicKeyPath string) (*JWTManager, error) {
	if publicKeyPath == "" {
		slog.Warn("identity: no JWT public key configured, generating ephemeral key (not for production)")
		pub, _, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("identity: generate key pair: %w", err)
		}
		return &JWTManager{publicKey: pub}, nil
	}

	pemBytes, err := os.ReadFile(publicKeyPath) //nolint:gosec // path comes from validated config
	if err != nil {
		return nil, fmt.Errorf("identity: read public key: %w", err)
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("identity: decode public key PEM")
	}
	pubKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("identity: parse public key: %w", err)
	}
	edPub, ok := pubKey.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("identity: public key is not Ed25519")
	}
	return &JWTManager{publicKey: edPub}, nil
}

// ValidateToken parses and validates a JWT, returning its claims.
func (m *JWTManager) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
				return nil, fmt.Errorf("identity: unexpected signing method: %v", token.Header["alg"])
			}
			return m.publicKey, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("identity: validate token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("identity: invalid token claims")
	}
	return claims, nil
}

// ResolveAuthenticated builds a vote.Identity for a caller who presented a
// valid bearer token.
func ResolveAuthenticated(claims *Claims, sessionID string) vote.Identity {
	userID := claims.UserID
	return vote.Identity{
		SessionID:         sessionID,
		UserID:            &userID,
		HasVotePermission: claims.hasScope(VotePermissionScope),
	}
}

// ResolveAnonymous builds a vote.Identity for a caller with no bearer token,
// identified only by the identification-token id and session id the caller
// supplies. Anonymous identities always carry the vote permission.
func ResolveAnonymous(identificationTokenID *int64, sessionID string) vote.Identity {
	return vote.Identity{
		SessionID:             sessionID,
		IdentificationTokenID: identificationTokenID,
		HasVotePermission:     true,
	}
}
