package probe

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/yunbug/forward-optimal/internal/target"
)

// ErrUnreachable is returned when every probe attempt against a target fails.
var ErrUnreachable = errors.New("target unreachable")

// Stats carries descriptive latency statistics for one scored target.
// They are for observability only; selection looks at the score alone.
type Stats struct {
	Min      time.Duration
	Max      time.Duration
	Avg      time.Duration
	Failures int
	Attempts int
}

// Result is one target's outcome for a probing round.
type Result struct {
	Name  string
	Addr  netip.AddrPort
	Score time.Duration
	Stats Stats
}

// Scorer turns a configured number of probe attempts against one target
// into a single comparable score. With Count=1 it degenerates to a plain
// single-shot RTT check; with a larger Count and a nonzero FailurePenalty
// it weights packet loss into the score.
type Scorer struct {
	Count          int
	ConnectTimeout time.Duration
	ProbeDelay     time.Duration
	FailurePenalty time.Duration

	// Dial overrides the TCP dial when non-nil. Used by tests.
	Dial DialFunc
}

func NewScorer(count int, connectTimeout, probeDelay, failurePenalty time.Duration) *Scorer {
	return &Scorer{
		Count:          count,
		ConnectTimeout: connectTimeout,
		ProbeDelay:     probeDelay,
		FailurePenalty: failurePenalty,
	}
}

// Score resolves the target address and runs Count sequential probe
// attempts against it, waiting ProbeDelay between attempts. The score is
//
//	(sum of successful elapsed + failures * FailurePenalty) / Count
//
// Resolution failure and all-attempts-failed both return an error; the
// caller excludes the target from the round in either case.
func (s *Scorer) Score(ctx context.Context, spec target.Spec) (*Result, error) {
	addr, err := target.Resolve(ctx, spec.Addr)
	if err != nil {
		return nil, err
	}

	dial := s.Dial
	if dial == nil {
		dial = defaultDial
	}

	var sum, min, max time.Duration
	successes := 0

	for i := 0; i < s.Count; i++ {
		if i > 0 && s.ProbeDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.ProbeDelay):
			}
		}

		outcome := attempt(ctx, dial, addr, s.ConnectTimeout)
		if !outcome.Succeeded {
			continue
		}

		successes++
		sum += outcome.Elapsed

		if successes == 1 || outcome.Elapsed < min {
			min = outcome.Elapsed
		}
		if outcome.Elapsed > max {
			max = outcome.Elapsed
		}
	}

	if successes == 0 {
		return nil, fmt.Errorf("%s (%s): %w", spec.Name, addr, ErrUnreachable)
	}

	failures := s.Count - successes
	score := (sum + time.Duration(failures)*s.FailurePenalty) / time.Duration(s.Count)

	return &Result{
		Name:  spec.Name,
		Addr:  addr,
		Score: score,
		Stats: Stats{
			Min:      min,
			Max:      max,
			Avg:      sum / time.Duration(successes),
			Failures: failures,
			Attempts: s.Count,
		},
	}, nil
}
