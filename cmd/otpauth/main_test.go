package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandWiring(t *testing.T) {
	root := newRootCmd()

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["migrate"])
	assert.True(t, names["loadtest"])

	serve, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	assert.NotNil(t, serve.Flags().Lookup("embedded-redis"))
	assert.NotNil(t, serve.Flags().Lookup("migrate"))
}

func TestServeRequiresSecrets(t *testing.T) {
	t.Setenv("OTP_SECRET", "")
	t.Setenv("JWT_ACCESS_SECRET", "")

	root := newRootCmd()
	root.SetArgs([]string{"serve", "--env-dir", t.TempDir()})
	err := root.Execute()
	assert.ErrorContains(t, err, "OTP_SECRET is required")
}

func TestMigrateRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	root := newRootCmd()
	root.SetArgs([]string{"migrate", "--env-dir", t.TempDir()})
	assert.ErrorContains(t, root.Execute(), "DATABASE_URL is required")
}

func TestLoadtestAgainstMiniredis(t *testing.T) {
	var out bytes.Buffer
	err := runLoadtest(context.Background(), &out, &loadtestOptions{
		challenges:  20,
		concurrency: 4,
		ops:         100,
		prefix:      "otp-test",
	})
	require.NoError(t, err)

	assert.Contains(t, out.String(), "using miniredis")
	assert.Contains(t, out.String(), "create: ops=100 failures=0")
	assert.Contains(t, out.String(), "verify: ops=100 failures=0")
}

func TestPercentile(t *testing.T) {
	assert.Zero(t, percentile(nil, 50))
	samples := computeStats(1, nil, 0)
	assert.Zero(t, samples.ops)
}
