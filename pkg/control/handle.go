package control

import (
	"github.com/wayneeseguin/convergent/internal/cerrors"
	"github.com/wayneeseguin/convergent/log"
	"github.com/wayneeseguin/convergent/pkg/transport"
	"github.com/wayneeseguin/convergent/pkg/tree"
	"github.com/wayneeseguin/convergent/pkg/wire"
)

// HandleAgentCommand is the controller-side counterpart of
// pkg/agent.Receiver.Handle: it decodes an agent-initiated command
// (NODE_STATE, SET_NODE_ERA, SET_BLOCKDEVICE_ID), applies it, and
// answers with the controller's current configuration/state hashes so
// the reporting agent can tell whether its own view is already caught
// up. Any other command gets a protocol error response with no hashes.
// agentID is the sender recovered from the transport subject
// by transport.ServeController.
func (s *Service) HandleAgentCommand(agentID string, cmd transport.Command) transport.Response {
	trace := traceContextOf(cmd)

	var err error
	switch cmd.Name {
	case transport.CommandStateFragment:
		err = s.handleStateFragment(agentID, cmd)
	case transport.CommandSetNodeEra:
		err = s.handleSetNodeEra(cmd)
	case transport.CommandSetBlockDeviceID:
		err = s.handleSetBlockDeviceID(cmd)
	default:
		return transport.NewErrorResponse(cmd, string(cerrors.Protocol), "unsupported command: "+string(cmd.Name))
	}

	log.NewAction("agent_command_handled").With("agent", agentID).With("command", string(cmd.Name)).With("trace", trace).With("ok", err == nil).Log()

	cfgHash, stateHash := s.CurrentHashes()
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

func (s *Service) handleStateFragment(agentID string, cmd transport.Command) error {
	args, err := transport.DecodeArgs(cmd.Args)
	if err != nil {
		return cerrors.Wrap(cerrors.Protocol, "decoding NODE_STATE args", err)
	}

	payload, err := wire.DecodeTyped(args[transport.ArgFragments])
	if err != nil {
		return cerrors.Wrap(cerrors.Protocol, "decoding fragments payload", err)
	}

	seq, ok := payload.(tree.Sequence)
	if !ok {
		return cerrors.New(cerrors.Protocol, "fragments payload is not a sequence")
	}

	return s.OnStateFragment(agentID, seq.Items)
}

func (s *Service) handleSetNodeEra(cmd transport.Command) error {
	args, err := transport.DecodeArgs(cmd.Args)
	if err != nil {
		return cerrors.Wrap(cerrors.Protocol, "decoding SET_NODE_ERA args", err)
	}
	nodeUUID := string(args[transport.ArgNodeUUID])
	era := string(args[transport.ArgEra])
	if nodeUUID == "" || era == "" {
		return cerrors.New(cerrors.Protocol, "missing node_uuid or era")
	}
	return s.OnSetNodeEra(nodeUUID, era)
}

func (s *Service) handleSetBlockDeviceID(cmd transport.Command) error {
	args, err := transport.DecodeArgs(cmd.Args)
	if err != nil {
		return cerrors.Wrap(cerrors.Protocol, "decoding SET_BLOCKDEVICE_ID args", err)
	}
	datasetID := string(args[transport.ArgDatasetID])
	blockDeviceID := string(args[transport.ArgBlockDeviceID])
	if datasetID == "" || blockDeviceID == "" {
		return cerrors.New(cerrors.Protocol, "missing dataset_id or blockdevice_id")
	}
	return s.OnSetBlockDeviceID(datasetID, blockDeviceID)
}
