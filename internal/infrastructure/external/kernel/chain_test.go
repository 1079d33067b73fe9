package kernel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codearena/arena-server/internal/domain/adaptive"
	"github.com/codearena/arena-server/internal/domain/shared"
	"github.com/codearena/arena-server/pkg/logger"
)

func TestChain_WarmServiceFirst(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(evaluateResponseBody))
	}))
	defer srv.Close()

	warm := NewHTTPClient(testClientConfig(srv.URL), logger.Default(), nil)
	chain := NewChain(warm, nil, true, logger.Default())

	res, err := chain.Evaluate(context.Background(), testEvaluateRequest())
	require.NoError(t, err)
	assert.Equal(t, adaptive.SourceWarmService, res.Source)
}

func TestChain_EvaluateNeverFails(t *testing.T) {
	// Both remote tiers are absent; the chain must still hand back a usable
	// default result so the attempt pipeline can proceed.
	chain := NewChain(nil, nil, false, logger.Default())

	req := testEvaluateRequest()
	res, err := chain.Evaluate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, adaptive.SourceDefaults, res.Source)
	assert.Equal(t, req.BetaOld, res.Summary.NewBeta, "defaults keep the current difficulty")
	assert.Equal(t, req.Theta, res.IRT.AdjustedTheta)
	assert.Equal(t, 0.5, res.IRT.Probability)
}

func TestChain_DegradesToDefaultsWhenWarmDown(t *testing.T) {
	// A server that is already closed refuses connections immediately.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	url := srv.URL
	srv.Close()

	cfg := testClientConfig(url)
	cfg.MaxRetries = 0
	warm := NewHTTPClient(cfg, logger.Default(), nil)
	chain := NewChain(warm, nil, true, logger.Default())

	res, err := chain.Evaluate(context.Background(), testEvaluateRequest())
	require.NoError(t, err)
	assert.Equal(t, adaptive.SourceDefaults, res.Source)
}

func TestChain_WarmDisabledSkipsService(t *testing.T) {
	var hit bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hit = true
		w.Write([]byte(evaluateResponseBody))
	}))
	defer srv.Close()

	warm := NewHTTPClient(testClientConfig(srv.URL), logger.Default(), nil)
	chain := NewChain(warm, nil, false, logger.Default())

	res, err := chain.Evaluate(context.Background(), testEvaluateRequest())
	require.NoError(t, err)
	assert.False(t, hit, "disabled warm tier must not be called")
	assert.Equal(t, adaptive.SourceDefaults, res.Source)
}

func TestChain_ClusterPlayersErrorsWithoutTiers(t *testing.T) {
	// Clustering has a local fallback in the matchmaking loop, so the chain
	// surfaces the failure instead of inventing a group.
	chain := NewChain(nil, nil, false, logger.Default())

	_, err := chain.ClusterPlayers(context.Background(), adaptive.ClusterRequest{GroupSize: 3})
	assert.ErrorIs(t, err, shared.ErrKernelUnavailable)
}
