package kernel

import (
	"context"

	"github.com/codearena/arena-server/internal/domain/adaptive"
	"github.com/codearena/arena-server/internal/domain/shared"
	"github.com/codearena/arena-server/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// FALLBACK CHAIN
// ══════════════════════════════════════════════════════════════════════════════

// Chain tries the warm service, then the subprocess kernel, then in-process
// defaults. Evaluate never fails: the worst case is a default-valued result
// marked with Source "defaults", so the attempt pipeline always proceeds.
//
// ClusterPlayers degrades differently: with both remote tiers down it
// returns the last error and the matchmaking loop falls back to its local
// group selection.
type Chain struct {
	warm        *HTTPClient
	sub         *SubprocessKernel
	warmEnabled bool
	log         *logger.Logger
}

var _ adaptive.Kernel = (*Chain)(nil)

// NewChain assembles the fallback chain. Either tier may be nil.
func NewChain(warm *HTTPClient, sub *SubprocessKernel, warmEnabled bool, log *logger.Logger) *Chain {
	return &Chain{
		warm:        warm,
		sub:         sub,
		warmEnabled: warmEnabled,
		log:         log.With(logger.Component("kernel_chain")),
	}
}

// Evaluate runs one IRT/DDA evaluation through the chain.
func (c *Chain) Evaluate(ctx context.Context, req adaptive.EvaluateRequest) (*adaptive.EvaluateResult, error) {
	if c.warmEnabled && c.warm != nil {
		result, err := c.warm.Evaluate(ctx, req)
		if err == nil {
			return result, nil
		}
		c.log.Warn("warm kernel unavailable, falling back",
			logger.UserID(req.UserID.String()),
			logger.Err(err),
		)
	}

	if c.sub != nil && c.sub.Configured() {
		result, err := c.sub.Evaluate(ctx, req)
		if err == nil {
			return result, nil
		}
		c.log.Warn("subprocess kernel failed, using defaults",
			logger.UserID(req.UserID.String()),
			logger.Err(err),
		)
	}

	c.log.Info("kernel degraded to defaults",
		logger.UserID(req.UserID.String()),
		logger.KernelSource(adaptive.SourceDefaults),
	)
	return adaptive.DefaultEvaluateResult(req, shared.DifficultyFromBeta(req.BetaOld.Clamp())), nil
}

// ClusterPlayers runs the skill matcher through the remote tiers.
func (c *Chain) ClusterPlayers(ctx context.Context, req adaptive.ClusterRequest) (*adaptive.ClusterResult, error) {
	var lastErr error

	if c.warmEnabled && c.warm != nil {
		result, err := c.warm.ClusterPlayers(ctx, req)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}

	if c.sub != nil && c.sub.Configured() {
		result, err := c.sub.ClusterPlayers(ctx, req)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}

	if lastErr == nil {
		lastErr = shared.ErrKernelUnavailable
	}
	return nil, lastErr
}
