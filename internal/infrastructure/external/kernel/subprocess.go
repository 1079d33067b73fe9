package kernel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/codearena/arena-server/internal/domain/adaptive"
	"github.com/codearena/arena-server/pkg/logger"
	"github.com/codearena/arena-server/pkg/metrics"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBPROCESS FALLBACK
// ══════════════════════════════════════════════════════════════════════════════

// SubprocessKernel invokes the computation kernel as a one-shot child
// process: the request goes in as JSON on stdin, the result comes back as
// JSON on stdout. Used when the warm service is unavailable.
type SubprocessKernel struct {
	command []string
	timeout time.Duration
	log     *logger.Logger
	metrics *metrics.Metrics
}

var _ adaptive.Kernel = (*SubprocessKernel)(nil)

// NewSubprocessKernel creates the fallback. The command string is split on
// whitespace; the mode (evaluate or cluster) is appended as the last
// argument.
func NewSubprocessKernel(command string, timeout time.Duration, log *logger.Logger, m *metrics.Metrics) *SubprocessKernel {
	return &SubprocessKernel{
		command: strings.Fields(command),
		timeout: timeout,
		log:     log.With(logger.Component("kernel_subprocess")),
		metrics: m,
	}
}

// Configured reports whether a command is set.
func (k *SubprocessKernel) Configured() bool {
	return len(k.command) > 0
}

// Evaluate runs one IRT/DDA evaluation through the child process.
func (k *SubprocessKernel) Evaluate(ctx context.Context, req adaptive.EvaluateRequest) (*adaptive.EvaluateResult, error) {
	start := time.Now()
	var dto evaluateResponseDTO
	err := k.run(ctx, "evaluate", toEvaluateDTO(req), &dto)
	if k.metrics != nil {
		k.metrics.ObserveKernelCall(adaptive.SourceSubprocess, err, time.Since(start))
	}
	if err != nil {
		return nil, err
	}
	return fromEvaluateDTO(dto, adaptive.SourceSubprocess), nil
}

// ClusterPlayers runs the skill matcher through the child process.
func (k *SubprocessKernel) ClusterPlayers(ctx context.Context, req adaptive.ClusterRequest) (*adaptive.ClusterResult, error) {
	start := time.Now()
	var dto clusterResponseDTO
	err := k.run(ctx, "cluster", toClusterDTO(req), &dto)
	if k.metrics != nil {
		k.metrics.ObserveKernelCall(adaptive.SourceSubprocess, err, time.Since(start))
	}
	if err != nil {
		return nil, err
	}
	return fromClusterDTO(dto, adaptive.SourceSubprocess), nil
}

func (k *SubprocessKernel) run(ctx context.Context, mode string, in, out any) error {
	if !k.Configured() {
		return fmt.Errorf("subprocess kernel not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	input, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal subprocess input: %w", err)
	}

	args := append(append([]string{}, k.command[1:]...), mode)
	cmd := exec.CommandContext(ctx, k.command[0], args...)
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("subprocess kernel %s: %w: %s", mode, err, stderr.String())
	}

	if err := json.Unmarshal(stdout.Bytes(), out); err != nil {
		return fmt.Errorf("parse subprocess output: %w", err)
	}
	return nil
}
