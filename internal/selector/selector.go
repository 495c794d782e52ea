package selector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/yunbug/forward-optimal/internal/metrics"
	"github.com/yunbug/forward-optimal/internal/probe"
	"github.com/yunbug/forward-optimal/internal/state"
	"github.com/yunbug/forward-optimal/internal/target"
)

// Scorer produces a score for one target. *probe.Scorer implements it;
// tests substitute a fake.
type Scorer interface {
	Score(ctx context.Context, spec target.Spec) (*probe.Result, error)
}

// Round summarizes one execution of scoring every configured target.
type Round struct {
	Winner  *probe.Result
	Changed bool
	Scored  int
}

// Failed reports whether the round produced no scoreable target.
func (r Round) Failed() bool {
	return r.Winner == nil
}

// Engine scores all configured targets concurrently on a fixed interval
// and keeps the shared cell pointed at the lowest-scoring one.
type Engine struct {
	targets   []target.Spec
	scorer    Scorer
	cell      *state.Cell
	interval  time.Duration
	clock     clock.Clock
	logger    *slog.Logger
	collector *metrics.Collector
}

// New creates a selection engine. A nil clk means the real clock;
// a nil collector disables metrics emission.
func New(
	targets []target.Spec,
	scorer Scorer,
	cell *state.Cell,
	interval time.Duration,
	clk clock.Clock,
	logger *slog.Logger,
	collector *metrics.Collector,
) *Engine {
	if clk == nil {
		clk = clock.New()
	}

	return &Engine{
		targets:   targets,
		scorer:    scorer,
		cell:      cell,
		interval:  interval,
		clock:     clk,
		logger:    logger,
		collector: collector,
	}
}

// RunOnce executes a single probing round: fan out one scorer per target,
// wait for all of them, pick the smallest score, and replace the cell's
// value. A round with no scoreable target leaves the cell untouched so a
// stale-but-verified winner keeps serving.
func (e *Engine) RunOnce(ctx context.Context) Round {
	e.logger.Debug("Probing candidate targets", slog.Int("targets", len(e.targets)))

	results := make([]*probe.Result, len(e.targets))

	var wg sync.WaitGroup
	for i, spec := range e.targets {
		wg.Add(1)
		go func(i int, spec target.Spec) {
			defer wg.Done()

			result, err := e.scorer.Score(ctx, spec)
			if err != nil {
				e.logger.Warn("Target excluded from round",
					slog.String("target", spec.Name),
					slog.String("error", err.Error()))
				e.collector.Emit(metrics.MetricEvent{
					Type:   metrics.EventTargetUnreachable,
					Target: spec.Name,
				})
				return
			}

			e.logger.Info("Target scored",
				slog.String("target", result.Name),
				slog.String("addr", result.Addr.String()),
				slog.Duration("score", result.Score),
				slog.Duration("min", result.Stats.Min),
				slog.Duration("max", result.Stats.Max),
				slog.Duration("avg", result.Stats.Avg),
				slog.Int("failures", result.Stats.Failures),
				slog.Int("attempts", result.Stats.Attempts))
			e.collector.Emit(metrics.MetricEvent{
				Type:   metrics.EventTargetScored,
				Target: result.Name,
				Score:  result.Score,
			})

			results[i] = result
		}(i, spec)
	}
	wg.Wait()

	// Scan in configuration order with a strict comparison so an exact
	// tie goes to the target listed first.
	var winner *probe.Result
	scored := 0
	for _, result := range results {
		if result == nil {
			continue
		}
		scored++
		if winner == nil || result.Score < winner.Score {
			winner = result
		}
	}

	if winner == nil {
		e.logger.Warn("No target scoreable this round, keeping previous winner")
		e.collector.Emit(metrics.MetricEvent{Type: metrics.EventRoundFailed})
		return Round{}
	}

	changed := e.cell.Replace(target.Best{
		Name:  winner.Name,
		Addr:  winner.Addr,
		Score: winner.Score,
	})

	if changed {
		e.logger.Info("Switched best target",
			slog.String("target", winner.Name),
			slog.String("addr", winner.Addr.String()),
			slog.Duration("score", winner.Score))
	} else {
		e.logger.Info("Kept best target",
			slog.String("target", winner.Name),
			slog.String("addr", winner.Addr.String()),
			slog.Duration("score", winner.Score))
	}

	e.collector.Emit(metrics.MetricEvent{
		Type:    metrics.EventRoundCompleted,
		Target:  winner.Name,
		Score:   winner.Score,
		Changed: changed,
	})

	return Round{Winner: winner, Changed: changed, Scored: scored}
}

// Run executes rounds until the context is cancelled: one immediately,
// then one per interval tick.
func (e *Engine) Run(ctx context.Context) {
	ticker := e.clock.Ticker(e.interval)
	defer ticker.Stop()

	for {
		e.RunOnce(ctx)

		select {
		case <-ctx.Done():
			e.logger.Info("Selection engine stopped")
			return
		case <-ticker.C:
		}
	}
}
