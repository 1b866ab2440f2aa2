// Package control implements the controller's broadcast service: it holds
// the live agent connection registry, the configuration and aggregate
// state generation trackers, and the batching/elision scheduler that turns
// a storm of configuration and state-fragment changes into one outbound
// update per connection per batching window.
package control

import (
	"time"

	"github.com/nats-io/nats.go"

	"github.com/wayneeseguin/convergent/pkg/hash"
	"github.com/wayneeseguin/convergent/pkg/transport"
)

// ConnID identifies a live agent connection. Per-connection bookkeeping is
// held in maps keyed by ConnID rather than as fields on a connection
// object, so the connection itself never holds a back-pointer into the
// registry (see DESIGN.md's note on avoiding cyclic controller/connection
// references).
type ConnID string

// Sender is how the broadcast service actually puts a command on the
// wire for one connection. Production code wires this to pkg/transport
// over a live NATS connection (see NATSSender); tests substitute a fake
// that records what would have been sent.
type Sender interface {
	Send(cmd transport.Command, timeout time.Duration) (transport.Response, error)
}

// NATSSender adapts a connected agent subject to the Sender interface.
type NATSSender struct {
	Conn    *nats.Conn
	AgentID string
}

func (n NATSSender) Send(cmd transport.Command, timeout time.Duration) (transport.Response, error) {
	return transport.Send(n.Conn, n.AgentID, cmd, timeout)
}

// connRecord is the per-connection bookkeeping the broadcast service
// holds: the agent's last acknowledged hashes, used to decide whether a
// diff or a full snapshot must be sent next.
type connRecord struct {
	id     ConnID
	sender Sender

	ackedConfigHash hash.Sum
	ackedStateHash  hash.Sum
	hasAcked        bool // false until the first ack arrives (forces UPDATE_FULL)

	lastActivity time.Time
}

// inflightRecord tracks a connection's in-flight update and whether a
// follow-up has already been scheduled for when it resolves, implementing
// the send-now / delayed / elided decision from the per-connection send
// policy.
type inflightRecord struct {
	anotherScheduled bool
}
