package stores

import (
	"context"
	"crypto/sha256"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type challengeBackend interface {
	Put(ctx context.Context, id string, record *ChallengeRecord, ttl time.Duration) error
	Check(ctx context.Context, id string, providedHash [32]byte, maxAttempts int, now time.Time) (ChallengeStatus, int, error)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func testRecord(code string, issuedAt time.Time, ttl time.Duration) *ChallengeRecord {
	return &ChallengeRecord{
		SecretHash: sha256.Sum256([]byte(code)),
		ExpiresAt:  issuedAt.Add(ttl).UnixMilli(),
		CreatedAt:  issuedAt.UnixMilli(),
	}
}

func backends(t *testing.T, clock func() time.Time) map[string]challengeBackend {
	_, rdb := newTestRedis(t)
	return map[string]challengeBackend{
		"redis":  NewRedisChallengeStore(rdb, "otp"),
		"memory": NewMemoryChallengeStore(clock),
	}
}

func TestChallengeRecordRoundTrip(t *testing.T) {
	in := testRecord("123456", time.UnixMilli(1_700_000_000_000), 10*time.Minute)
	in.Attempts = 3

	data, err := encodeChallengeRecord(in)
	require.NoError(t, err)
	require.Len(t, data, challengeRecordSizeV1)

	out, err := decodeChallengeRecord(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = decodeChallengeRecord(data[:10])
	assert.Error(t, err)

	data[0] = 9
	_, err = decodeChallengeRecord(data)
	assert.Error(t, err)
}

func TestChallengeStoreLifecycle(t *testing.T) {
	issued := time.Now()
	clock := func() time.Time { return issued }

	for name, store := range backends(t, clock) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id := "email:signup:a@b.com"
			require.NoError(t, store.Put(ctx, id, testRecord("123456", issued, 10*time.Minute), 20*time.Minute))

			status, left, err := store.Check(ctx, id, sha256.Sum256([]byte("000000")), 5, issued)
			require.NoError(t, err)
			assert.Equal(t, StatusMismatch, status)
			assert.Equal(t, 4, left)

			status, _, err = store.Check(ctx, id, sha256.Sum256([]byte("123456")), 5, issued)
			require.NoError(t, err)
			assert.Equal(t, StatusMatched, status)

			status, _, err = store.Check(ctx, id, sha256.Sum256([]byte("123456")), 5, issued)
			require.NoError(t, err)
			assert.Equal(t, StatusNotFound, status, "a matched code is single use")
		})
	}
}

func TestChallengeStoreAttemptBudget(t *testing.T) {
	issued := time.Now()
	clock := func() time.Time { return issued }

	for name, store := range backends(t, clock) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id := "email:login:a@b.com"
			require.NoError(t, store.Put(ctx, id, testRecord("123456", issued, 10*time.Minute), 20*time.Minute))

			wrong := sha256.Sum256([]byte("999999"))
			for want := 4; want >= 0; want-- {
				status, left, err := store.Check(ctx, id, wrong, 5, issued)
				require.NoError(t, err)
				require.Equal(t, StatusMismatch, status)
				require.Equal(t, want, left)
			}

			status, _, err := store.Check(ctx, id, sha256.Sum256([]byte("123456")), 5, issued)
			require.NoError(t, err)
			assert.Equal(t, StatusAttemptsExceeded, status)
		})
	}
}

func TestChallengeStoreExpiryBeforeHash(t *testing.T) {
	issued := time.Now()
	clock := func() time.Time { return issued }

	for name, store := range backends(t, clock) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id := "email:signup:late@b.com"
			require.NoError(t, store.Put(ctx, id, testRecord("123456", issued, 10*time.Minute), 20*time.Minute))

			late := issued.Add(10*time.Minute + time.Millisecond)
			status, _, err := store.Check(ctx, id, sha256.Sum256([]byte("123456")), 5, late)
			require.NoError(t, err)
			assert.Equal(t, StatusExpired, status)

			status, _, err = store.Check(ctx, id, sha256.Sum256([]byte("000000")), 5, late)
			require.NoError(t, err)
			assert.Equal(t, StatusExpired, status, "expiry wins over a wrong code")
		})
	}
}

func TestChallengeStorePutReplacesRecord(t *testing.T) {
	issued := time.Now()
	clock := func() time.Time { return issued }

	for name, store := range backends(t, clock) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id := "email:signup:re@b.com"
			require.NoError(t, store.Put(ctx, id, testRecord("111111", issued, 10*time.Minute), 20*time.Minute))

			for i := 0; i < 3; i++ {
				_, _, err := store.Check(ctx, id, sha256.Sum256([]byte("000000")), 5, issued)
				require.NoError(t, err)
			}

			require.NoError(t, store.Put(ctx, id, testRecord("222222", issued, 10*time.Minute), 20*time.Minute))

			status, left, err := store.Check(ctx, id, sha256.Sum256([]byte("111111")), 5, issued)
			require.NoError(t, err)
			assert.Equal(t, StatusMismatch, status, "old code is invalidated")
			assert.Equal(t, 4, left, "attempts reset on reissue")

			status, _, err = store.Check(ctx, id, sha256.Sum256([]byte("222222")), 5, issued)
			require.NoError(t, err)
			assert.Equal(t, StatusMatched, status)
		})
	}
}

func TestRedisChallengeStoreKeepsTTLOnMismatch(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRedisChallengeStore(rdb, "otp")
	ctx := context.Background()
	issued := time.Now()

	require.NoError(t, store.Put(ctx, "k", testRecord("123456", issued, time.Minute), 2*time.Minute))
	mr.FastForward(30 * time.Second)

	_, _, err := store.Check(ctx, "k", sha256.Sum256([]byte("000000")), 5, issued)
	require.NoError(t, err)

	ttl := mr.TTL("otp:k")
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, 90*time.Second)

	mr.FastForward(2 * time.Minute)
	status, _, err := store.Check(ctx, "k", sha256.Sum256([]byte("123456")), 5, issued)
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, status)
}

func TestRedisChallengeStoreCorruptRecord(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRedisChallengeStore(rdb, "otp")

	require.NoError(t, mr.Set("otp:bad", "garbage"))

	status, _, err := store.Check(context.Background(), "bad", sha256.Sum256([]byte("x")), 5, time.Now())
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, status)
	assert.False(t, mr.Exists("otp:bad"))
}

func TestRedisChallengeStoreUnavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRedisChallengeStore(rdb, "otp")
	mr.Close()

	err := store.Put(context.Background(), "k", testRecord("1", time.Now(), time.Minute), time.Minute)
	assert.ErrorIs(t, err, ErrChallengeRedisUnavailable)

	_, _, err = store.Check(context.Background(), "k", [32]byte{}, 5, time.Now())
	assert.ErrorIs(t, err, ErrChallengeRedisUnavailable)
}

func TestChallengeStoreConcurrentMatchIsSingleUse(t *testing.T) {
	issued := time.Now()
	clock := func() time.Time { return issued }

	for name, store := range backends(t, clock) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Put(ctx, "race", testRecord("123456", issued, time.Minute), 2*time.Minute))

			const workers = 50
			statuses := make(chan ChallengeStatus, workers)
			errs := make(chan error, workers)

			var wg sync.WaitGroup
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					status, _, err := store.Check(ctx, "race", sha256.Sum256([]byte("123456")), 5, issued)
					if err != nil {
						errs <- err
						return
					}
					statuses <- status
				}()
			}
			wg.Wait()
			close(statuses)
			close(errs)

			for err := range errs {
				t.Errorf("check failed: %v", err)
			}

			counts := map[ChallengeStatus]int{}
			for status := range statuses {
				counts[status]++
			}
			assert.Equal(t, 1, counts[StatusMatched])
			assert.Equal(t, workers-1, counts[StatusNotFound])
		})
	}
}

func TestChallengeStoreConcurrentMismatchSpendsBudgetExactly(t *testing.T) {
	issued := time.Now()
	clock := func() time.Time { return issued }

	for name, store := range backends(t, clock) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Put(ctx, "guess", testRecord("123456", issued, time.Minute), 2*time.Minute))

			const (
				workers     = 50
				maxAttempts = 5
			)
			type result struct {
				status ChallengeStatus
				left   int
				err    error
			}
			results := make(chan result, workers)

			var wg sync.WaitGroup
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					status, left, err := store.Check(ctx, "guess", sha256.Sum256([]byte("000000")), maxAttempts, issued)
					results <- result{status: status, left: left, err: err}
				}()
			}
			wg.Wait()
			close(results)

			counts := map[ChallengeStatus]int{}
			lefts := map[int]bool{}
			for r := range results {
				require.NoError(t, r.err)
				counts[r.status]++
				if r.status == StatusMismatch {
					lefts[r.left] = true
				}
			}

			assert.Equal(t, maxAttempts, counts[StatusMismatch])
			assert.Equal(t, workers-maxAttempts, counts[StatusAttemptsExceeded])
			assert.Len(t, lefts, maxAttempts, "each mismatch sees a distinct remaining budget")
		})
	}
}

func TestRedisChallengeStoreMismatchRewritesRecord(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRedisChallengeStore(rdb, "otp")
	ctx := context.Background()
	issued := time.UnixMilli(1_700_000_000_123)

	in := testRecord("123456", issued, 10*time.Minute)
	in.Attempts = 255
	require.NoError(t, store.Put(ctx, "k", in, 20*time.Minute))

	status, left, err := store.Check(ctx, "k", sha256.Sum256([]byte("000000")), 1000, issued)
	require.NoError(t, err)
	assert.Equal(t, StatusMismatch, status)
	assert.Equal(t, 1000-1-255, left)

	raw, err := mr.Get("otp:k")
	require.NoError(t, err)
	out, err := decodeChallengeRecord([]byte(raw))
	require.NoError(t, err)

	want := *in
	want.Attempts = 256
	assert.Equal(t, &want, out)
}

func TestChallengeStoreExpiryBoundaryIsInclusive(t *testing.T) {
	issued := time.UnixMilli(1_700_000_000_000)
	clock := func() time.Time { return issued }

	for name, store := range backends(t, clock) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Put(ctx, "edge", testRecord("123456", issued, time.Minute), 2*time.Minute))

			status, _, err := store.Check(ctx, "edge", sha256.Sum256([]byte("123456")), 5, issued.Add(time.Minute))
			require.NoError(t, err)
			assert.Equal(t, StatusMatched, status, "a code is still valid at its expiry instant")
		})
	}
}

func TestMemoryChallengeStoreSweep(t *testing.T) {
	now := time.Now()
	store := NewMemoryChallengeStore(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "a", testRecord("1", now, time.Minute), 2*time.Minute))
	require.NoError(t, store.Put(ctx, "b", testRecord("2", now, time.Minute), 10*time.Minute))

	now = now.Add(5 * time.Minute)
	assert.Equal(t, 1, store.Sweep())
	assert.Equal(t, 1, store.Len())
}
