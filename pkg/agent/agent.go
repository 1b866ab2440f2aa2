// Package agent implements the agent-side receiver (spec C6): it holds
// the locally-applied configuration and aggregate state, applies
// UPDATE_FULL/UPDATE_DIFF commands from the controller, verifies content
// hashes before adopting anything, and notifies a convergence callback
// whenever either tree changes.
package agent

import (
	"sync"

	"github.com/wayneeseguin/convergent/internal/cerrors"
	"github.com/wayneeseguin/convergent/log"
	"github.com/wayneeseguin/convergent/pkg/hash"
	"github.com/wayneeseguin/convergent/pkg/tree"
	"github.com/wayneeseguin/convergent/pkg/transport"
	"github.com/wayneeseguin/convergent/pkg/wire"
)

// ConvergenceFunc is invoked after the agent adopts a new configuration
// and/or state, so local convergence logic (explicitly out of scope for
// this module, per spec.md's non-goals) can react. It receives the
// newly-adopted trees.
type ConvergenceFunc func(cfg, state tree.Value)

// Receiver is one agent's view of its own replicated configuration and
// state, and the single point where UPDATE_FULL/UPDATE_DIFF commands are
// applied.
type Receiver struct {
	mu sync.Mutex

	currentCfg       tree.Value
	currentCfgHash   hash.Sum
	currentState     tree.Value
	currentStateHash hash.Sum

	onConverge ConvergenceFunc
}

// New returns a Receiver seeded with empty configuration and state trees,
// awaiting its first UPDATE_FULL. onConverge may be nil.
func New(onConverge ConvergenceFunc) (*Receiver, error) {
	r := &Receiver{onConverge: onConverge}

	emptyCfg := tree.NewMapping(nil)
	emptyState := tree.NewMapping(nil)

	cfgHash, err := sumOf(emptyCfg)
	if err != nil {
		return nil, err
	}
	stateHash, err := sumOf(emptyState)
	if err != nil {
		return nil, err
	}

	r.currentCfg, r.currentCfgHash = emptyCfg, cfgHash
	r.currentState, r.currentStateHash = emptyState, stateHash
	return r, nil
}

// CurrentHashes returns the receiver's current configuration and state
// hashes, the pair every handler response carries.
func (r *Receiver) CurrentHashes() (hash.Sum, hash.Sum) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentCfgHash, r.currentStateHash
}

// Handle dispatches cmd to the matching handler. For UPDATE_FULL and
// UPDATE_DIFF the Response always carries the receiver's current hashes,
// whether or not the update was actually applied; any other command gets
// a protocol error Response with no hashes.
func (r *Receiver) Handle(cmd transport.Command) transport.Response {
	trace := traceContextOf(cmd)

	var err error
	switch cmd.Name {
	case transport.CommandUpdateFull:
		err = r.handleUpdateFull(cmd)
	case transport.CommandUpdateDiff:
		err = r.handleUpdateDiff(cmd)
	default:
		return transport.NewErrorResponse(cmd, string(cerrors.Protocol), "unsupported command: "+string(cmd.Name))
	}

	log.NewAction("update_applied").With("command", string(cmd.Name)).With("trace", trace).With("ok", err == nil).Log()

	cfgHash, stateHash := r.CurrentHashes()
	args := map[string][]byte{
		transport.ArgCurrentConfigurationHash: []byte(cfgHash.String()),
		transport.ArgCurrentStateHash:         []byte(stateHash.String()),
	}

	if err != nil {
		resp := transport.NewResponse(cmd, args)
		resp.Error = &transport.ErrorPayload{Kind: string(cerrors.KindOf(err)), Message: err.Error()}
		return resp
	}
	return transport.NewResponse(cmd, args)
}

// traceContextOf best-effort extracts the sender's trace context for
// logging; a missing or undecodable one just logs empty, it never fails
// the command.
func traceContextOf(cmd transport.Command) string {
	args, err := transport.DecodeArgs(cmd.Args)
	if err != nil {
		return ""
	}
	return string(args[transport.ArgTraceContext])
}

func sumOf(v tree.Value) (hash.Sum, error) {
	data, err := wire.Encode(v)
	if err != nil {
		return hash.Sum{}, err
	}
	return hash.Sum128(data)
}
