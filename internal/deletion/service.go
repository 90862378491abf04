package deletion

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Outcome is what one strategy did with one path. It never leaves the
// service as an error; callers of Delete only see the final boolean.
type Outcome struct {
	Strategy   string
	Applicable bool
	Deleted    bool
	Err        error
	Duration   time.Duration
}

// Status is the outcome category: deleted, not_applicable, error or
// still_exists.
func (o Outcome) Status() string {
	switch {
	case o.Deleted:
		return "deleted"
	case !o.Applicable:
		return "not_applicable"
	case o.Err != nil:
		return "error"
	default:
		return "still_exists"
	}
}

// Summary is the form stored in history, for example "deleted" or
// "error: permission denied".
func (o Outcome) Summary() string {
	if status := o.Status(); status == "error" {
		return status + ": " + o.Err.Error()
	}
	return o.Status()
}

// Strategy is one self-contained deletion technique
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, path string) Outcome
}

// Result is the full account of one deletion request
type Result struct {
	Path      string
	Deleted   bool
	Strategy  string // the strategy that succeeded, empty when none did
	Outcomes  []Outcome
	StartedAt time.Time
	Duration  time.Duration
}

// Observer is told about every finished request
type Observer interface {
	ObserveDeletion(Result)
}

// ObserverFunc adapts a plain function to Observer
type ObserverFunc func(Result)

func (f ObserverFunc) ObserveDeletion(r Result) { f(r) }

// Service runs the strategy chain. It holds no per-request state, so one
// Service serves concurrent requests.
type Service struct {
	strategies []Strategy
	observers  []Observer
	log        *logrus.Entry
}

// NewService returns a service that tries strategies in the given order
func NewService(log *logrus.Entry, strategies ...Strategy) *Service {
	return &Service{strategies: strategies, log: log}
}

// AddObserver registers o. Not safe to call once requests are being served.
func (s *Service) AddObserver(o Observer) {
	s.observers = append(s.observers, o)
}

// Strategies returns the strategy names in the order they are tried
func (s *Service) Strategies() []string {
	names := make([]string, 0, len(s.strategies))
	for _, st := range s.strategies {
		names = append(names, st.Name())
	}
	return names
}

// Delete removes path and reports whether it is gone. It never fails.
func (s *Service) Delete(ctx context.Context, path string) bool {
	return s.DeleteDetailed(ctx, path).Deleted
}

// DeleteDetailed runs the strategies in order until one succeeds
func (s *Service) DeleteDetailed(ctx context.Context, path string) Result {
	log := s.log.WithField("path", path)
	log.Debug("attempting deletion")

	res := Result{Path: path, StartedAt: time.Now()}

	for _, st := range s.strategies {
		outcome := s.attempt(ctx, st, path)
		res.Outcomes = append(res.Outcomes, outcome)

		entry := log.WithFields(logrus.Fields{
			"strategy": outcome.Strategy,
			"outcome":  outcome.Summary(),
			"duration": outcome.Duration,
		})
		if outcome.Err != nil {
			entry.WithError(outcome.Err).Warn("deletion strategy failed")
		} else {
			entry.Debug("deletion strategy finished")
		}

		if outcome.Deleted {
			res.Deleted = true
			res.Strategy = outcome.Strategy
			break
		}
	}
	res.Duration = time.Since(res.StartedAt)

	if res.Deleted {
		log.WithField("strategy", res.Strategy).Info("file deleted")
	} else {
		log.Info("all deletion strategies failed")
	}

	for _, o := range s.observers {
		s.notify(o, res)
	}
	return res
}

// attempt runs one strategy, turning a panic into a failed outcome
func (s *Service) attempt(ctx context.Context, st Strategy, path string) (out Outcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{
				Strategy:   st.Name(),
				Applicable: true,
				Err:        fmt.Errorf("panic: %v", r),
			}
		}
		out.Duration = time.Since(start)
	}()

	out = st.Attempt(ctx, path)
	out.Strategy = st.Name()
	return out
}

func (s *Service) notify(o Observer, res Result) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("panic", r).Error("deletion observer panicked")
		}
	}()
	o.ObserveDeletion(res)
}
