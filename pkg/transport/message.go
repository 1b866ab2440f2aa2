package transport

import "github.com/nats-io/nuid"

// ProtocolVersion is the wire protocol's major version. A connection whose
// peer reports a different major version is refused at handshake time;
// there is no attempt at cross-version compatibility.
const ProtocolVersion = 1

// CommandName identifies what a Command asks the receiver to do.
type CommandName string

const (
	CommandVersion          CommandName = "VERSION"
	CommandNoop             CommandName = "NOOP"
	CommandUpdateFull       CommandName = "UPDATE_FULL"
	CommandUpdateDiff       CommandName = "UPDATE_DIFF"
	CommandStateFragment    CommandName = "NODE_STATE"
	CommandSetNodeEra       CommandName = "SET_NODE_ERA"
	CommandSetBlockDeviceID CommandName = "SET_BLOCKDEVICE_ID"
)

// Command is a single request carried over the framed transport: a name
// and a dictionary of named argument values, already wire-encoded and
// chunked by EncodeArgs.
type Command struct {
	RequestID string
	Name      CommandName
	Args      map[string][]byte
}

// NewCommand builds a Command with a fresh request id.
func NewCommand(name CommandName, args map[string][]byte) Command {
	return Command{
		RequestID: nuid.Next(),
		Name:      name,
		Args:      EncodeArgs(args),
	}
}

// ErrorPayload carries a structured error back to the command's sender.
type ErrorPayload struct {
	Kind    string
	Message string
}

// Response correlates to a prior Command by RequestID. Every handler in
// pkg/control and pkg/agent returns the current config/state hashes to
// ride along on the response (see Args["current_configuration_hash"] /
// Args["current_state_hash"] set by the caller); an unsupported command
// gets an error Response without them.
type Response struct {
	RequestID string
	Args      map[string][]byte
	Error     *ErrorPayload
}

// NewResponse builds a successful Response correlated to req.
func NewResponse(req Command, args map[string][]byte) Response {
	return Response{RequestID: req.RequestID, Args: EncodeArgs(args)}
}

// NewErrorResponse builds a failed Response correlated to req.
func NewErrorResponse(req Command, kind, message string) Response {
	return Response{RequestID: req.RequestID, Error: &ErrorPayload{Kind: kind, Message: message}}
}
