package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/otpauth"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

type loadtestOptions struct {
	challenges  int
	concurrency int
	ops         int
	redisURL    string
	prefix      string
}

func newLoadtestCmd() *cobra.Command {
	opts := &loadtestOptions{}

	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Measure challenge create and verify latency against Redis",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.challenges <= 0 || opts.concurrency <= 0 || opts.ops <= 0 {
				return errors.New("challenges, concurrency and ops must be > 0")
			}
			return runLoadtest(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().IntVar(&opts.challenges, "challenges", 10000, "number of challenges to seed")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 64, "number of concurrent workers")
	cmd.Flags().IntVar(&opts.ops, "ops", 50000, "operations per phase")
	cmd.Flags().StringVar(&opts.redisURL, "redis-url", "", "redis URL; an in-process redis is used when empty")
	cmd.Flags().StringVar(&opts.prefix, "prefix", "otp-load", "challenge key prefix")

	return cmd
}

func runLoadtest(ctx context.Context, out io.Writer, opts *loadtestOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	client, cleanup, err := loadtestRedis(out, opts.redisURL)
	if err != nil {
		return err
	}
	defer cleanup()

	cfg := otpauth.DefaultConfig().OTP
	cfg.Secret = []byte("loadtest-secret-loadtest-secret!")
	cfg.RedisPrefix = opts.prefix
	// A large budget keeps the verify phase on the mismatch path.
	cfg.MaxAttempts = 1 << 15

	challenges, err := otpauth.NewOTPChallenges(otpauth.NewRedisChallengeBackend(client, opts.prefix), cfg, time.Now)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "seeding %d challenges...\n", opts.challenges)
	startSeed := time.Now()
	for i := 0; i < opts.challenges; i++ {
		if _, _, err := challenges.Create(ctx, otpauth.ChannelEmail, identifier(i), otpauth.PurposeLogin); err != nil {
			return fmt.Errorf("seed challenge: %w", err)
		}
	}
	fmt.Fprintf(out, "seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	createStats := runPhase(opts, func(r *rand.Rand) error {
		_, _, err := challenges.Create(ctx, otpauth.ChannelEmail, identifier(r.Intn(opts.challenges)), otpauth.PurposeLogin)
		return err
	})
	verifyStats := runPhase(opts, func(r *rand.Rand) error {
		// Codes are never all letters, so this candidate always mismatches.
		_, err := challenges.Verify(ctx, otpauth.ChannelEmail, identifier(r.Intn(opts.challenges)), otpauth.PurposeLogin, "abcdef")
		return err
	})

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "create", createStats)
	printStats(out, "verify", verifyStats)
	return nil
}

func loadtestRedis(out io.Writer, url string) (redis.UniversalClient, func(), error) {
	if url != "" {
		redisOpts, err := redis.ParseURL(url)
		if err != nil {
			return nil, nil, fmt.Errorf("redis url: %w", err)
		}
		client := redis.NewClient(redisOpts)
		fmt.Fprintf(out, "using redis at %s\n", redisOpts.Addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	fmt.Fprintf(out, "using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

func identifier(i int) string {
	return "user-" + strconv.Itoa(i) + "@load.test"
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func runPhase(opts *loadtestOptions, op func(r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, opts.ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < opts.concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				if int(atomic.AddInt64(&cursor, 1)) > opts.ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	return computeStats(time.Since(start), latencies, failures)
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(out io.Writer, name string, s phaseStats) {
	fmt.Fprintf(out, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
