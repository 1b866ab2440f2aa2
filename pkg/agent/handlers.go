package agent

import (
	"encoding/hex"

	"github.com/wayneeseguin/convergent/internal/cerrors"
	"github.com/wayneeseguin/convergent/pkg/diff"
	"github.com/wayneeseguin/convergent/pkg/hash"
	"github.com/wayneeseguin/convergent/pkg/transport"
	"github.com/wayneeseguin/convergent/pkg/wire"
)

// handleUpdateFull verifies both hashes before adopting anything: a
// mismatch on either side means the payload is corrupt or the sender's
// encoder disagrees with ours, and no partial adoption is allowed.
func (r *Receiver) handleUpdateFull(cmd transport.Command) error {
	args, err := transport.DecodeArgs(cmd.Args)
	if err != nil {
		return cerrors.Wrap(cerrors.Protocol, "decoding UPDATE_FULL args", err)
	}

	cfg, err := wire.DecodeTyped(args[transport.ArgConfiguration])
	if err != nil {
		return cerrors.Wrap(cerrors.Protocol, "decoding configuration payload", err)
	}
	state, err := wire.DecodeTyped(args[transport.ArgState])
	if err != nil {
		return cerrors.Wrap(cerrors.Protocol, "decoding state payload", err)
	}

	cfgHash, ok := parseHash(args[transport.ArgConfigurationHash])
	if !ok {
		return cerrors.New(cerrors.Protocol, "missing or malformed configuration_hash")
	}
	stateHash, ok := parseHash(args[transport.ArgStateHash])
	if !ok {
		return cerrors.New(cerrors.Protocol, "missing or malformed state_hash")
	}

	actualCfgHash, err := sumOf(cfg)
	if err != nil {
		return err
	}
	actualStateHash, err := sumOf(state)
	if err != nil {
		return err
	}

	if actualCfgHash != cfgHash || actualStateHash != stateHash {
		return cerrors.New(cerrors.HashMismatch, "UPDATE_FULL payload hash does not match declared hash")
	}

	r.mu.Lock()
	r.currentCfg, r.currentCfgHash = cfg, cfgHash
	r.currentState, r.currentStateHash = state, stateHash
	onConverge := r.onConverge
	r.mu.Unlock()

	if onConverge != nil {
		onConverge(cfg, state)
	}
	return nil
}

// handleUpdateDiff applies a diff only if both start hashes match the
// receiver's current hashes. A mismatch means the receiver moved on
// (reconnect race, or it already adopted a later update) and it must
// return its current hashes unapplied, letting the controller notice and
// resend a full snapshot.
func (r *Receiver) handleUpdateDiff(cmd transport.Command) error {
	args, err := transport.DecodeArgs(cmd.Args)
	if err != nil {
		return cerrors.Wrap(cerrors.Protocol, "decoding UPDATE_DIFF args", err)
	}

	startCfgHash, ok := parseHash(args[transport.ArgStartConfigurationHash])
	if !ok {
		return cerrors.New(cerrors.Protocol, "missing or malformed start_configuration_hash")
	}
	startStateHash, ok := parseHash(args[transport.ArgStartStateHash])
	if !ok {
		return cerrors.New(cerrors.Protocol, "missing or malformed start_state_hash")
	}
	endCfgHash, ok := parseHash(args[transport.ArgEndConfigurationHash])
	if !ok {
		return cerrors.New(cerrors.Protocol, "missing or malformed end_configuration_hash")
	}
	endStateHash, ok := parseHash(args[transport.ArgEndStateHash])
	if !ok {
		return cerrors.New(cerrors.Protocol, "missing or malformed end_state_hash")
	}

	r.mu.Lock()
	if r.currentCfgHash != startCfgHash || r.currentStateHash != startStateHash {
		// Returning nil here (not an error) matches the spec: the
		// response still carries the current hashes, unapplied; this is
		// not a failure the caller needs to react to beyond that.
		r.mu.Unlock()
		return nil
	}
	cfg := r.currentCfg
	state := r.currentState
	r.mu.Unlock()

	cfgPatch, err := diff.DecodePatch(args[transport.ArgConfigurationDiff])
	if err != nil {
		return cerrors.Wrap(cerrors.Protocol, "decoding configuration diff", err)
	}
	statePatch, err := diff.DecodePatch(args[transport.ArgStateDiff])
	if err != nil {
		return cerrors.Wrap(cerrors.Protocol, "decoding state diff", err)
	}

	newCfg, err := diff.Apply(cfg, cfgPatch)
	if err != nil {
		return cerrors.Wrap(cerrors.Invariant, "applying configuration diff", err)
	}
	newState, err := diff.Apply(state, statePatch)
	if err != nil {
		return cerrors.Wrap(cerrors.Invariant, "applying state diff", err)
	}

	actualCfgHash, err := sumOf(newCfg)
	if err != nil {
		return err
	}
	actualStateHash, err := sumOf(newState)
	if err != nil {
		return err
	}
	if actualCfgHash != endCfgHash || actualStateHash != endStateHash {
		return cerrors.New(cerrors.HashMismatch, "UPDATE_DIFF result hash does not match declared end hash")
	}

	r.mu.Lock()
	r.currentCfg, r.currentCfgHash = newCfg, actualCfgHash
	r.currentState, r.currentStateHash = newState, actualStateHash
	onConverge := r.onConverge
	r.mu.Unlock()

	if onConverge != nil {
		onConverge(newCfg, newState)
	}
	return nil
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
