package control

import (
	"golang.org/x/time/rate"

	"github.com/wayneeseguin/convergent/internal/cerrors"
	"github.com/wayneeseguin/convergent/pkg/tree"
)

// OnStateFragment folds an agent's observed-state fragments into the
// aggregate state and schedules a broadcast. It does not record a
// last-activity time for the source. source is the reporting node's identity, used both to key
// the fold and to enforce a per-source ingestion rate limit so one noisy
// agent cannot starve the batching timer for everyone else.
func (s *Service) OnStateFragment(source string, fragments []tree.Value) error {
	if !s.allowFragment(source) {
		return cerrors.New(cerrors.Transient, "state fragment rate limit exceeded for "+source)
	}

	folded := tree.NewSequence(fragments...)

	s.mu.Lock()
	s.fragments[source] = folded
	aggregate := s.buildAggregateStateLocked()
	s.mu.Unlock()

	if err := s.stateTracker.InsertLatest(aggregate); err != nil {
		return err
	}

	s.scheduleUpdateAll()
	return nil
}

// buildAggregateStateLocked assembles the current aggregate state tree
// from per-source folded fragments. Callers must hold s.mu.
func (s *Service) buildAggregateStateLocked() tree.Value {
	entries := make(map[string]tree.Value, len(s.fragments))
	for source, v := range s.fragments {
		entries[source] = v
	}
	return tree.NewMapping(entries)
}

// allowFragment enforces the per-source token bucket, creating one lazily
// on first use so sources don't need pre-registration.
func (s *Service) allowFragment(source string) bool {
	s.mu.Lock()
	limiter, ok := s.limiters[source]
	if !ok {
		rateLimit := s.cfg.FragmentRate
		burst := s.cfg.FragmentBurst
		if rateLimit <= 0 {
			rateLimit = rate.Limit(50)
		}
		if burst <= 0 {
			burst = 100
		}
		limiter = rate.NewLimiter(rateLimit, burst)
		s.limiters[source] = limiter
	}
	s.mu.Unlock()

	return limiter.Allow()
}

// OnSetNodeEra records node_uuid's new era, dropping any previously
// aggregated fragments for it if its recorded era differs: survivors of a
// node reboot must not carry stale per-node state into the post-reboot
// view.
func (s *Service) OnSetNodeEra(nodeUUID, era string) error {
	s.mu.Lock()
	existing, hadEra := s.nodeEras[nodeUUID]
	if hadEra && existing != era {
		delete(s.fragments, nodeUUID)
	}
	s.nodeEras[nodeUUID] = era
	aggregate := s.buildAggregateStateLocked()
	s.mu.Unlock()

	if err := s.stateTracker.InsertLatest(aggregate); err != nil {
		return err
	}

	s.scheduleUpdateAll()
	return nil
}
