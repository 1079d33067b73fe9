package kernel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codearena/arena-server/internal/domain/adaptive"
	"github.com/codearena/arena-server/internal/domain/shared"
	"github.com/codearena/arena-server/pkg/logger"
)

const kernelTestUser = shared.UserID("11111111-2222-3333-4444-555555555555")

func testEvaluateRequest() adaptive.EvaluateRequest {
	return adaptive.EvaluateRequest{
		UserID:            kernelTestUser,
		LevelID:           "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
		Theta:             0.5,
		BetaOld:           0.45,
		RankName:          "silver_coder",
		SuccessCount:      10,
		FailCount:         3,
		TargetPerformance: 0.7,
		AdjustmentRate:    0.1,
	}
}

func testClientConfig(baseURL string) HTTPConfig {
	cfg := DefaultHTTPConfig(baseURL)
	cfg.Timeout = 2 * time.Second
	cfg.RetryBaseDelay = time.Millisecond
	return cfg
}

const evaluateResponseBody = `{
	"summary": {
		"New_Beta": 0.62,
		"Next_Puzzle_Difficulty": "Hard",
		"Student_Skill": 0.8,
		"Actual_Success_Rate": 0.77,
		"Actual_Fail_Rate": 0.23
	},
	"IRT_Result": {
		"adjusted_theta": 0.8,
		"probability": 0.64,
		"confidence_index": 0.9
	},
	"DDA_Result": {
		"beta_new": 0.62,
		"adjustment_applied": true,
		"momentum": 0.1,
		"behavior_weight": 0.5
	}
}`

func TestHTTPClient_Evaluate(t *testing.T) {
	var gotBody evaluateRequestDTO
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/evaluate", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(evaluateResponseBody))
	}))
	defer srv.Close()

	c := NewHTTPClient(testClientConfig(srv.URL), logger.Default(), nil)
	res, err := c.Evaluate(context.Background(), testEvaluateRequest())
	require.NoError(t, err)

	assert.Equal(t, kernelTestUser.String(), gotBody.UserID)
	assert.Equal(t, 0.45, gotBody.BetaOld)
	assert.Equal(t, "silver_coder", gotBody.RankName)

	assert.Equal(t, adaptive.SourceWarmService, res.Source)
	assert.Equal(t, shared.Beta(0.62), res.Summary.NewBeta)
	assert.Equal(t, shared.DifficultyHard, res.Summary.NextPuzzleDifficulty)
	assert.Equal(t, shared.Theta(0.8), res.IRT.AdjustedTheta)
	assert.True(t, res.DDA.AdjustmentApplied)
}

func TestHTTPClient_EvaluateClampsOutOfRangeResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"summary": {"New_Beta": 7.5, "Next_Puzzle_Difficulty": "weird", "Student_Skill": -9}}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(testClientConfig(srv.URL), logger.Default(), nil)
	res, err := c.Evaluate(context.Background(), testEvaluateRequest())
	require.NoError(t, err)

	assert.Equal(t, shared.MaxBeta, res.Summary.NewBeta)
	assert.Equal(t, shared.MinTheta, res.Summary.StudentSkill)
	// An unknown difficulty label falls back to the beta band.
	assert.Equal(t, shared.DifficultyHard, res.Summary.NextPuzzleDifficulty)
}

func TestHTTPClient_ClientErrorIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewHTTPClient(testClientConfig(srv.URL), logger.Default(), nil)
	_, err := c.Evaluate(context.Background(), testEvaluateRequest())
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load(), "4xx must not be retried")
}

func TestHTTPClient_ServerErrorIsRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testClientConfig(srv.URL)
	cfg.MaxRetries = 2
	c := NewHTTPClient(cfg, logger.Default(), nil)

	_, err := c.Evaluate(context.Background(), testEvaluateRequest())
	require.Error(t, err)
	assert.Equal(t, int32(3), hits.Load(), "first attempt plus two retries")
}

func TestHTTPClient_RecoversAfterRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, "boom", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(evaluateResponseBody))
	}))
	defer srv.Close()

	c := NewHTTPClient(testClientConfig(srv.URL), logger.Default(), nil)
	res, err := c.Evaluate(context.Background(), testEvaluateRequest())
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, adaptive.SourceWarmService, res.Source)
}

func TestHTTPClient_CircuitOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := testClientConfig(srv.URL)
	cfg.MaxRetries = 0
	cfg.CircuitThreshold = 3
	c := NewHTTPClient(cfg, logger.Default(), nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.Evaluate(ctx, testEvaluateRequest())
		require.Error(t, err)
	}
	assert.True(t, c.BreakerOpen())

	// With the circuit open the call fails fast without reaching the server.
	before := hits.Load()
	_, err := c.Evaluate(ctx, testEvaluateRequest())
	require.Error(t, err)
	assert.Equal(t, before, hits.Load())
}

func TestHTTPClient_ClusterPlayers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cluster", r.URL.Path)
		var req clusterRequestDTO
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Players, 3)
		assert.Equal(t, 3, req.GroupSize)

		json.NewEncoder(w).Encode(clusterResponseDTO{
			UserIDs:    []string{req.Players[0].UserID, req.Players[1].UserID, req.Players[2].UserID},
			MatchScore: 0.82,
			ClusterID:  "cluster-7",
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(testClientConfig(srv.URL), logger.Default(), nil)
	res, err := c.ClusterPlayers(context.Background(), adaptive.ClusterRequest{
		Players: []adaptive.ClusterPlayer{
			{UserID: "a", Theta: 0.1, Beta: 0.4},
			{UserID: "b", Theta: 0.2, Beta: 0.5},
			{UserID: "c", Theta: 0.0, Beta: 0.45},
		},
		GroupSize:     3,
		MinMatchScore: 0.2,
	})
	require.NoError(t, err)
	assert.Equal(t, []shared.UserID{"a", "b", "c"}, res.UserIDs)
	assert.Equal(t, 0.82, res.MatchScore)
	assert.Equal(t, "cluster-7", res.ClusterID)
	assert.Equal(t, adaptive.SourceWarmService, res.Source)
}
