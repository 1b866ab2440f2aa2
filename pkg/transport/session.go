package transport

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"gopkg.in/yaml.v3"

	"github.com/wayneeseguin/convergent/internal/cerrors"
	"github.com/wayneeseguin/convergent/log"
)

// agentSubject is the NATS subject an agent listens on for controller
// commands; the controller replies on the subject NATS's request-reply
// machinery generates per request.
func agentSubject(agentID string) string {
	return "convergent.agent." + agentID + ".cmd"
}

// controllerSubject is the NATS subject an agent publishes to when it
// initiates a command against the controller (NODE_STATE,
// SET_NODE_ERA, SET_BLOCKDEVICE_ID). It is symmetric with agentSubject:
// the agent id rides in the subject itself, so the controller's single
// wildcard subscription can recover which agent a given message came
// from without an extra argument in the envelope.
func controllerSubject(agentID string) string {
	return "convergent.controller." + agentID + ".cmd"
}

const controllerWildcardSubject = "convergent.controller.*.cmd"

// agentIDFromControllerSubject recovers the agent id component of a
// subject a message arrived on via the controller's wildcard
// subscription. ok is false if subject doesn't match the expected shape.
func agentIDFromControllerSubject(subject string) (agentID string, ok bool) {
	const prefix = "convergent.controller."
	const suffix = ".cmd"
	if !strings.HasPrefix(subject, prefix) || !strings.HasSuffix(subject, suffix) {
		return "", false
	}
	agentID = subject[len(prefix) : len(subject)-len(suffix)]
	if agentID == "" {
		return "", false
	}
	return agentID, true
}

// Session is one side's view of a single agent connection: a NATS
// connection plus the keepalive/inactivity machinery and the handshake
// state every connection goes through before commands are accepted.
type Session struct {
	AgentID string
	conn    *nats.Conn

	pinger     *Pinger
	inactivity *InactivityMonitor

	sub *nats.Subscription
}

// Handler processes an incoming Command and returns the Response to send
// back. It is invoked from the NATS subscription callback, so it must not
// block for long; long-running work belongs on the caller's own
// goroutine, signaled back through a channel.
type Handler func(Command) Response

// ControllerHandler is the controller-side counterpart of Handler: an
// agent-initiated command arrives with the reporting agent's id, recovered
// from the subject it was published on, since NODE_STATE and its
// siblings need to know who they're from.
type ControllerHandler func(agentID string, cmd Command) Response

// Serve starts an agent-side session: it subscribes on this agent's
// subject, answers VERSION directly, drops NOOP pings without a
// response, and otherwise delegates to handle. It arms the inactivity monitor and starts emitting pings
// immediately, matching the "single logical event loop" model: the
// NATS client library owns the I/O thread, and handle must not block it.
func Serve(conn *nats.Conn, agentID string, handle Handler) (*Session, error) {
	s := &Session{AgentID: agentID, conn: conn}

	s.inactivity = StartInactivityMonitor(func() {
		log.WARN("agent %s: inactivity timeout, aborting session", agentID)
		s.Close()
	})

	sub, err := conn.Subscribe(agentSubject(agentID), func(msg *nats.Msg) {
		s.inactivity.Reset()

		cmd, err := UnmarshalCommand(msg.Data)
		if err != nil {
			log.WARN("agent %s: malformed command: %v", agentID, err)
			return
		}

		if cmd.Name == CommandNoop {
			return // pings carry no response
		}
		if cmd.Name == CommandVersion {
			respondVersion(msg, cmd)
			return
		}

		resp := handle(cmd)
		data, err := MarshalResponse(resp)
		if err != nil {
			log.WARN("agent %s: failed to marshal response: %v", agentID, err)
			return
		}
		if msg.Reply != "" {
			_ = conn.Publish(msg.Reply, data)
		}
	})
	if err != nil {
		s.inactivity.Stop()
		return nil, cerrors.Wrap(cerrors.Transient, "subscribing to agent subject", err)
	}
	s.sub = sub

	s.pinger = StartPinger(func() {
		ping := NewCommand(CommandNoop, nil)
		data, err := MarshalCommand(ping)
		if err != nil {
			return
		}
		_ = conn.Publish(agentSubject(agentID), data)
	})

	return s, nil
}

// CheckVersion sends a VERSION command to the agent at agentID and
// refuses the peer if its reported major version doesn't match
// ProtocolVersion, matching the original protocol's handshake: there is
// no attempt at cross-version compatibility, so a mismatch is reported as
// an error rather than negotiated. cmd/controller calls this once per
// newly-discovered agent, before registering it with the broadcast
// service.
func CheckVersion(conn *nats.Conn, agentID string, timeout time.Duration) error {
	resp, err := Send(conn, agentID, NewCommand(CommandVersion, nil), timeout)
	if err != nil {
		return cerrors.Wrap(cerrors.Transient, "requesting version from "+agentID, err)
	}

	args, err := DecodeArgs(resp.Args)
	if err != nil {
		return cerrors.Wrap(cerrors.Protocol, "decoding version response from "+agentID, err)
	}

	peerVersion, err := strconv.Atoi(string(args["version"]))
	if err != nil {
		return cerrors.Wrap(cerrors.Protocol, "parsing version reported by "+agentID, err)
	}
	if peerVersion != ProtocolVersion {
		return cerrors.New(cerrors.Protocol, fmt.Sprintf("protocol version mismatch with %s: local=%d peer=%d", agentID, ProtocolVersion, peerVersion))
	}
	return nil
}

func respondVersion(msg *nats.Msg, cmd Command) {
	args := map[string][]byte{"version": []byte(strconv.Itoa(ProtocolVersion))}
	resp := NewResponse(cmd, args)
	data, err := MarshalResponse(resp)
	if err != nil || msg.Reply == "" {
		return
	}
	_ = msg.Respond(data)
}

// Close tears down the session's subscription and timers.
func (s *Session) Close() {
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
	if s.pinger != nil {
		s.pinger.Stop()
	}
	if s.inactivity != nil {
		s.inactivity.Stop()
	}
}

// Send issues cmd to the agent and blocks for a response or timeout,
// matching the "sending a command yields until the response arrives"
// suspension point.
func Send(conn *nats.Conn, agentID string, cmd Command, timeout time.Duration) (Response, error) {
	data, err := MarshalCommand(cmd)
	if err != nil {
		return Response{}, cerrors.Wrap(cerrors.Protocol, "marshaling command", err)
	}

	msg, err := conn.Request(agentSubject(agentID), data, timeout)
	if err != nil {
		return Response{}, cerrors.Wrap(cerrors.Transient, "awaiting response from agent "+agentID, err)
	}

	return UnmarshalResponse(msg.Data)
}

// SendToController issues an agent-initiated cmd (NODE_STATE,
// SET_NODE_ERA, SET_BLOCKDEVICE_ID) to the controller and blocks for its
// response or timeout. agentID identifies the sender on the wire so the
// controller's ServeController handler can attribute the command.
func SendToController(conn *nats.Conn, agentID string, cmd Command, timeout time.Duration) (Response, error) {
	data, err := MarshalCommand(cmd)
	if err != nil {
		return Response{}, cerrors.Wrap(cerrors.Protocol, "marshaling command", err)
	}

	msg, err := conn.Request(controllerSubject(agentID), data, timeout)
	if err != nil {
		return Response{}, cerrors.Wrap(cerrors.Transient, "awaiting response from controller", err)
	}

	return UnmarshalResponse(msg.Data)
}

// ServeController subscribes the controller to every agent's command
// subject via a single NATS wildcard subscription and delegates each
// inbound command to handle, along with the agent id recovered from the
// subject it arrived on. Malformed subjects or envelopes are logged and
// dropped rather than answered, matching Serve's handling of the
// symmetric controller-to-agent direction.
func ServeController(conn *nats.Conn, handle ControllerHandler) (*nats.Subscription, error) {
	sub, err := conn.Subscribe(controllerWildcardSubject, func(msg *nats.Msg) {
		agentID, ok := agentIDFromControllerSubject(msg.Subject)
		if !ok {
			log.WARN("controller: unrecognized subject %s", msg.Subject)
			return
		}

		cmd, err := UnmarshalCommand(msg.Data)
		if err != nil {
			log.WARN("controller: malformed command from %s: %v", agentID, err)
			return
		}
		if cmd.Name == CommandNoop {
			return
		}

		resp := handle(agentID, cmd)
		data, err := MarshalResponse(resp)
		if err != nil {
			log.WARN("controller: failed to marshal response to %s: %v", agentID, err)
			return
		}
		if msg.Reply != "" {
			_ = conn.Publish(msg.Reply, data)
		}
	})
	if err != nil {
		return nil, cerrors.Wrap(cerrors.Transient, "subscribing to controller wildcard subject", err)
	}
	return sub, nil
}

// MarshalCommand/UnmarshalCommand and MarshalResponse/UnmarshalResponse
// encode the envelope (not the tree.Value payload, already encoded into
// Args by EncodeArgs) as YAML, the same codec used for canonical tree
// serialization elsewhere in this module.

func MarshalCommand(cmd Command) ([]byte, error) {
	return yaml.Marshal(cmd)
}

func UnmarshalCommand(data []byte) (Command, error) {
	var cmd Command
	if err := yaml.Unmarshal(data, &cmd); err != nil {
		return Command{}, cerrors.Wrap(cerrors.Protocol, "unmarshaling command envelope", err)
	}
	return cmd, nil
}

func MarshalResponse(resp Response) ([]byte, error) {
	return yaml.Marshal(resp)
}

func UnmarshalResponse(data []byte) (Response, error) {
	var resp Response
	if err := yaml.Unmarshal(data, &resp); err != nil {
		return Response{}, cerrors.Wrap(cerrors.Protocol, "unmarshaling response envelope", err)
	}
	if resp.Error != nil {
		return resp, cerrors.New(cerrors.Protocol, resp.Error.Message)
	}
	return resp, nil
}
