// Package gate provides the two Redis-backed coordination primitives the
// comparison-and-rating subsystem needs outside Postgres: TokenStore (single-
// use pair tokens) and SingleFlightGate (coalesced rating-run triggers).
//
// Both are grounded on the same Redis client the rest of this codebase uses
// for rate limiting, trading that package's sorted-set Lua script for the
// simpler atomic primitives each concern actually needs (spec §5, §6).
package gate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mc-bench/scoring-core/internal/model"
)

// DefaultTokenTTL is how long an issued pair token remains redeemable
// before it silently expires (spec §5: "Live Token").
const DefaultTokenTTL = time.Hour

// TokenStore holds pending pair tokens in Redis: SET on issue, atomic
// GETDEL on redemption so a token can be consumed exactly once even under
// concurrent RecordVote calls racing the same token (spec §5 edge case:
// "two requests redeem the same token concurrently").
type TokenStore struct {
	client *redis.Client
}

// NewTokenStore wraps an existing Redis client.
func NewTokenStore(client *redis.Client) *TokenStore {
	return &TokenStore{client: client}
}

func tokenKey(token uuid.UUID) string {
	return "mcbench:pair-token:" + token.String()
}

// Put issues a new token, storing payload for ttl. Returns a plain error on
// a Redis failure; the caller (selector) treats this as a retryable issue.
func (s *TokenStore) Put(ctx context.Context, token uuid.UUID, payload model.PairTokenPayload, ttl time.Duration) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("gate: marshal pair token payload: %w", err)
	}
	if err := s.client.Set(ctx, tokenKey(token), data, ttl).Err(); err != nil {
		return fmt.Errorf("gate: put pair token: %w", err)
	}
	return nil
}

// ErrTokenNotFound is returned by TakeAndDelete when the token does not
// exist: either it was never issued, already redeemed, or has expired. The
// caller cannot distinguish these cases, matching spec §5's
// TokenUnknownOrExpired error, which intentionally does not disambiguate.
var ErrTokenNotFound = errors.New("gate: token not found")

// TakeAndDelete atomically reads and removes a token's payload. Redis's
// GETDEL is itself atomic (single command, no read-modify-write window), so
// at most one caller ever observes a given token's payload (spec §5:
// "TokenStore.take is the sole arbiter of single-use").
func (s *TokenStore) TakeAndDelete(ctx context.Context, token uuid.UUID) (model.PairTokenPayload, error) {
	data, err := s.client.GetDel(ctx, tokenKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.PairTokenPayload{}, ErrTokenNotFound
		}
		return model.PairTokenPayload{}, fmt.Errorf("gate: take pair token: %w", err)
	}

	var payload model.PairTokenPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return model.PairTokenPayload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return payload, nil
}

// ErrMalformedPayload is returned by TakeAndDelete when a token existed but
// its stored payload could not be parsed (spec §4.3 MalformedToken).
var ErrMalformedPayload = errors.New("gate: token payload malformed")
