package control

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/nats-io/nuid"
	"golang.org/x/sync/errgroup"

	"github.com/wayneeseguin/convergent/internal/cerrors"
	"github.com/wayneeseguin/convergent/log"
	"github.com/wayneeseguin/convergent/pkg/hash"
	"github.com/wayneeseguin/convergent/pkg/transport"
)

// scheduleUpdate adds ids to the pending set and, if no batching timer is
// armed, arms one for cfg.BatchingDelay. Unknown ids (already
// disconnected) are silently dropped.
func (s *Service) scheduleUpdate(ids ...ConnID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if _, ok := s.conns[id]; !ok {
			continue
		}
		s.pending[id] = true
	}

	if s.timer == nil && len(s.pending) > 0 {
		s.timer = time.AfterFunc(s.cfg.BatchingDelay, s.fireBatch)
	}
}

// scheduleUpdateAll schedules every currently connected connection, used
// by on_configuration_changed and on_state_fragment.
func (s *Service) scheduleUpdateAll() {
	s.mu.Lock()
	ids := make([]ConnID, 0, len(s.conns))
	for id := range s.conns {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	s.scheduleUpdate(ids...)
}

// fireBatch is invoked once the batching timer expires: it snapshots and
// clears the pending set, then applies the per-connection send decision
// to each of them.
func (s *Service) fireBatch() {
	s.mu.Lock()
	ids := make([]ConnID, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	s.pending = make(map[ConnID]bool)
	s.timer = nil
	s.mu.Unlock()

	s.dispatch(ids)
}

// dispatch applies the per-connection send decision (send now / delayed /
// elided) from spec.md's "Per-connection send decision": every connection
// with no in-flight update sends now, concurrently, via errgroup; a
// connection with an in-flight update and no follow-up already scheduled
// gets one scheduled (delayed update); a connection with an in-flight
// update and a follow-up already scheduled is skipped entirely (elided
// update).
func (s *Service) dispatch(ids []ConnID) {
	toSend := make([]ConnID, 0, len(ids))

	s.mu.Lock()
	for _, id := range ids {
		rec, ok := s.inflight[id]
		switch {
		case !ok:
			s.inflight[id] = &inflightRecord{}
			toSend = append(toSend, id)
		case !rec.anotherScheduled:
			rec.anotherScheduled = true
		default:
			// Elided: the already-scheduled follow-up carries the
			// newest state once the in-flight update resolves.
		}
	}
	s.mu.Unlock()

	if len(toSend) == 0 {
		return
	}

	var (
		g       errgroup.Group
		errsMu  sync.Mutex
		errs    cerrors.MultiError
	)
	for _, id := range toSend {
		id := id
		g.Go(func() error {
			if err := s.sendNow(id); err != nil {
				errsMu.Lock()
				errs.Append(err)
				errsMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait() // sendNow itself never returns a non-nil error to errgroup; errors are collected above

	if errs.Count() > 0 {
		log.WARN("broadcast fan-out: %s", errs.AsHashicorp().Error())
	}
}

// sendNow builds and sends an update to id, then processes the result:
// success updates the connection's acked hashes and, if it fell behind
// the controller's new latest during the round trip, reschedules it;
// failure (including a serialization error) drops the in-flight record
// without touching the acked hashes, so the next broadcast sends a full
// snapshot.
func (s *Service) sendNow(id ConnID) error {
	s.mu.Lock()
	rec, ok := s.conns[id]
	s.mu.Unlock()
	if !ok {
		s.clearInflight(id)
		return nil
	}

	trace := nuid.Next()
	cmd, err := s.buildUpdate(rec, trace)
	if err != nil {
		s.mu.Lock()
		rec.hasAcked = false
		s.mu.Unlock()
		s.clearInflight(id)
		return cerrors.Wrap(cerrors.Protocol, "building update for "+string(id), err)
	}

	log.NewAction("update_sent").With("conn", string(id)).With("command", string(cmd.Name)).With("trace", trace).Log()

	resp, err := rec.sender.Send(cmd, s.cfg.SendTimeout)
	if err != nil {
		s.mu.Lock()
		rec.hasAcked = false
		s.mu.Unlock()
		s.clearInflight(id)
		return cerrors.Wrap(cerrors.Transient, "sending update to "+string(id), err)
	}

	s.processAck(id, resp)
	return nil
}

// clearInflight removes id's in-flight record and, if a follow-up had
// already been scheduled while it was in flight, schedules that
// follow-up now.
func (s *Service) clearInflight(id ConnID) {
	s.mu.Lock()
	rec, ok := s.inflight[id]
	delete(s.inflight, id)
	s.mu.Unlock()

	if ok && rec.anotherScheduled {
		s.scheduleUpdate(id)
	}
}

// processAck reads the {current_config_hash, current_state_hash} an
// update response always carries, records them on the connection, and
// reschedules a follow-up if the agent is already behind the controller's
// latest (it fell behind during this batching round).
func (s *Service) processAck(id ConnID, resp transport.Response) {
	args, err := transport.DecodeArgs(resp.Args)
	if err != nil {
		log.WARN("malformed ack from %s: %v", id, err)
		s.clearInflight(id)
		return
	}

	cfgHash, cfgOK := parseHash(args[transport.ArgCurrentConfigurationHash])
	stateHash, stateOK := parseHash(args[transport.ArgCurrentStateHash])

	s.mu.Lock()
	rec, ok := s.conns[id]
	if ok && cfgOK && stateOK {
		rec.ackedConfigHash = cfgHash
		rec.ackedStateHash = stateHash
		rec.hasAcked = true
	}
	latestCfgHash, _ := s.cfgTracker.GetLatestHash()
	latestStateHash, _ := s.stateTracker.GetLatestHash()
	behind := !ok || !cfgOK || !stateOK || cfgHash != latestCfgHash || stateHash != latestStateHash
	s.mu.Unlock()

	s.clearInflight(id)
	if behind {
		s.scheduleUpdate(id)
	}
}

func parseHash(data []byte) (hash.Sum, bool) {
	if len(data) != hash.Size*2 {
		return hash.Sum{}, false
	}
	var s hash.Sum
	n, err := hex.Decode(s[:], data)
	if err != nil || n != hash.Size {
		return hash.Sum{}, false
	}
	return s, true
}
