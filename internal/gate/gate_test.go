package gate_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mc-bench/scoring-core/internal/gate"
	"github.com/mc-bench/scoring-core/internal/model"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func testPayload() model.PairTokenPayload {
	return model.PairTokenPayload{
		MetricID:    1,
		MetricUUID:  uuid.New(),
		TestSetID:   2,
		SampleID1:   10,
		SampleUUID1: uuid.New(),
		SampleID2:   20,
		SampleUUID2: uuid.New(),
	}
}

func TestTokenStore_PutThenTakeRoundTrips(t *testing.T) {
	ctx := context.Background()
	store := gate.NewTokenStore(newTestRedis(t))
	token := uuid.New()
	payload := testPayload()

	require.NoError(t, store.Put(ctx, token, payload, time.Hour))

	got, err := store.TakeAndDelete(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

// TestTokenStore_SingleUse verifies spec §5's edge case: once redeemed, a
// second TakeAndDelete call on the same token fails (GETDEL already
// consumed it).
func TestTokenStore_SingleUse(t *testing.T) {
	ctx := context.Background()
	store := gate.NewTokenStore(newTestRedis(t))
	token := uuid.New()
	require.NoError(t, store.Put(ctx, token, testPayload(), time.Hour))

	_, err := store.TakeAndDelete(ctx, token)
	require.NoError(t, err)

	_, err = store.TakeAndDelete(ctx, token)
	assert.ErrorIs(t, err, gate.ErrTokenNotFound)
}

// TestTokenStore_ConcurrentRedemptionIsExactlyOnce verifies scenario S2
// (spec §8): when two requests race to redeem the same token, exactly one
// succeeds.
func TestTokenStore_ConcurrentRedemptionIsExactlyOnce(t *testing.T) {
	ctx := context.Background()
	store := gate.NewTokenStore(newTestRedis(t))
	token := uuid.New()
	require.NoError(t, store.Put(ctx, token, testPayload(), time.Hour))

	const racers = 10
	var wg sync.WaitGroup
	var successes int32
	var mu sync.Mutex
	wg.Add(racers)
	for i := 0; i < racers; i++ {
		go func() {
			defer wg.Done()
			if _, err := store.TakeAndDelete(ctx, token); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, successes)
}

func TestTokenStore_UnknownTokenNotFound(t *testing.T) {
	store := gate.NewTokenStore(newTestRedis(t))
	_, err := store.TakeAndDelete(context.Background(), uuid.New())
	assert.ErrorIs(t, err, gate.ErrTokenNotFound)
}

type stubQueue struct {
	mu        sync.Mutex
	enqueued  []string
	failNext  bool
}

func (q *stubQueue) Enqueue(_ context.Context, target string, _ []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = append(q.enqueued, target)
	return nil
}

func (q *stubQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.enqueued)
}

// TestSingleFlightGate_CoalescesConcurrentTriggers verifies scenario S5
// (spec §8): many concurrent Trigger calls for the same rating system
// result in exactly one enqueued job.
func TestSingleFlightGate_CoalescesConcurrentTriggers(t *testing.T) {
	ctx := context.Background()
	q := &stubQueue{}
	g := gate.NewSingleFlightGate(newTestRedis(t), q)

	const callers = 20
	var wg sync.WaitGroup
	outcomes := make([]gate.TriggerOutcome, callers)
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		i := i
		go func() {
			defer wg.Done()
			outcome, err := g.Trigger(ctx, model.RatingSystemElo)
			require.NoError(t, err)
			outcomes[i] = outcome
		}()
	}
	wg.Wait()

	enqueuedCount := 0
	for _, o := range outcomes {
		if o == gate.Enqueued {
			enqueuedCount++
		}
	}
	assert.Equal(t, 1, enqueuedCount)
	assert.Equal(t, 1, q.count())
}

// TestSingleFlightGate_ReleaseAllowsNewTrigger verifies the gate key is
// cleared on normal exit so the very next vote can coalesce a fresh run
// (spec §4.4).
func TestSingleFlightGate_ReleaseAllowsNewTrigger(t *testing.T) {
	ctx := context.Background()
	q := &stubQueue{}
	g := gate.NewSingleFlightGate(newTestRedis(t), q)

	outcome, err := g.Trigger(ctx, model.RatingSystemGlicko)
	require.NoError(t, err)
	assert.Equal(t, gate.Enqueued, outcome)

	outcome, err = g.Trigger(ctx, model.RatingSystemGlicko)
	require.NoError(t, err)
	assert.Equal(t, gate.Skipped, outcome)

	require.NoError(t, g.Release(ctx, model.RatingSystemGlicko))

	outcome, err = g.Trigger(ctx, model.RatingSystemGlicko)
	require.NoError(t, err)
	assert.Equal(t, gate.Enqueued, outcome)
	assert.Equal(t, 2, q.count())
}

// TestSingleFlightGate_IndependentPerRatingSystem verifies Elo and Glicko
// gates don't interfere with each other.
func TestSingleFlightGate_IndependentPerRatingSystem(t *testing.T) {
	ctx := context.Background()
	q := &stubQueue{}
	g := gate.NewSingleFlightGate(newTestRedis(t), q)

	eloOutcome, err := g.Trigger(ctx, model.RatingSystemElo)
	require.NoError(t, err)
	assert.Equal(t, gate.Enqueued, eloOutcome)

	glickoOutcome, err := g.Trigger(ctx, model.RatingSystemGlicko)
	require.NoError(t, err)
	assert.Equal(t, gate.Enqueued, glickoOutcome)

	assert.Equal(t, 2, q.count())
}
