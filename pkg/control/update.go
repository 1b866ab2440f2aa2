package control

import (
	"github.com/wayneeseguin/convergent/pkg/diff"
	"github.com/wayneeseguin/convergent/pkg/hash"
	"github.com/wayneeseguin/convergent/pkg/transport"
	"github.com/wayneeseguin/convergent/pkg/tree"
	"github.com/wayneeseguin/convergent/pkg/wire"
)

// buildUpdate decides, for rec's currently-acked hashes, whether an
// UPDATE_DIFF or an UPDATE_FULL is sent, per spec.md's "either-or both-
// full" rule: only if *both* the configuration and state diffs are
// available does a diff go out; otherwise both sides are sent as full
// snapshots, since partial diff/partial snapshot would complicate the
// receiver's verification for no meaningful savings. trace is an opaque
// token identifying the broadcast attempt that produced this command, so
// the receiving side's log action can be correlated back to it (mirrors
// the original protocol's eliot_context).
func (s *Service) buildUpdate(rec *connRecord, trace string) (transport.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	latestCfg, _ := s.cfgTracker.GetLatest()
	latestCfgHash, _ := s.cfgTracker.GetLatestHash()
	latestState, _ := s.stateTracker.GetLatest()
	latestStateHash, _ := s.stateTracker.GetLatestHash()

	var cfgPatch, statePatch diff.Patch
	cfgOK, stateOK := false, false
	if rec.hasAcked {
		cfgPatch, cfgOK = s.cfgTracker.GetDiffFromHashToLatest(rec.ackedConfigHash)
		statePatch, stateOK = s.stateTracker.GetDiffFromHashToLatest(rec.ackedStateHash)
	}

	if cfgOK && stateOK {
		return buildUpdateDiffCommand(cfgPatch, rec.ackedConfigHash, latestCfgHash, statePatch, rec.ackedStateHash, latestStateHash, trace)
	}
	return buildUpdateFullCommand(latestCfg, latestCfgHash, latestState, latestStateHash, trace)
}

func buildUpdateDiffCommand(cfgPatch diff.Patch, startCfg, endCfg hash.Sum, statePatch diff.Patch, startState, endState hash.Sum, trace string) (transport.Command, error) {
	cfgPatchBytes, err := diff.EncodePatch(cfgPatch)
	if err != nil {
		return transport.Command{}, err
	}
	statePatchBytes, err := diff.EncodePatch(statePatch)
	if err != nil {
		return transport.Command{}, err
	}

	args := map[string][]byte{
		transport.ArgConfigurationDiff:      cfgPatchBytes,
		transport.ArgStartConfigurationHash: []byte(startCfg.String()),
		transport.ArgEndConfigurationHash:   []byte(endCfg.String()),
		transport.ArgStateDiff:              statePatchBytes,
		transport.ArgStartStateHash:         []byte(startState.String()),
		transport.ArgEndStateHash:           []byte(endState.String()),
		transport.ArgTraceContext:           []byte(trace),
	}
	return transport.NewCommand(transport.CommandUpdateDiff, args), nil
}

func buildUpdateFullCommand(cfg tree.Value, cfgHash hash.Sum, state tree.Value, stateHash hash.Sum, trace string) (transport.Command, error) {
	// Cached, not re-encoded, on every repeat broadcast of an unchanged
	// snapshot to multiple lagging agents in the same batch: the cache is
	// keyed by content hash, so each such send reuses the bytes instead of
	// paying for wire.EncodeTyped again.
	cfgBytes, err := wire.CachedEncodeTyped(cfgHash, cfg)
	if err != nil {
		return transport.Command{}, err
	}
	stateBytes, err := wire.CachedEncodeTyped(stateHash, state)
	if err != nil {
		return transport.Command{}, err
	}

	args := map[string][]byte{
		transport.ArgConfiguration:     cfgBytes,
		transport.ArgConfigurationHash: []byte(cfgHash.String()),
		transport.ArgState:             stateBytes,
		transport.ArgStateHash:         []byte(stateHash.String()),
		transport.ArgTraceContext:      []byte(trace),
	}
	return transport.NewCommand(transport.CommandUpdateFull, args), nil
}
