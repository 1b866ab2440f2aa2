package main

import (
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/wayneeseguin/convergent/pkg/control"
	"github.com/wayneeseguin/convergent/pkg/transport"
	"github.com/wayneeseguin/convergent/pkg/tree"
)

func startTestNATSServer() (*server.Server, string) {
	ns, err := server.NewServer(&server.Options{Port: -1})
	if err != nil {
		panic(err)
	}
	ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		panic("NATS server failed to start")
	}
	return ns, ns.ClientURL()
}

// startFakeAgent answers VERSION on agentID's subject so agentRegistry's
// CheckVersion handshake succeeds, without pulling in a real pkg/agent
// receiver the registration tests don't otherwise need.
func startFakeAgent(url, agentID string) (*nats.Conn, *transport.Session) {
	conn, err := nats.Connect(url)
	if err != nil {
		panic(err)
	}
	sess, err := transport.Serve(conn, agentID, func(cmd transport.Command) transport.Response {
		return transport.NewResponse(cmd, nil)
	})
	if err != nil {
		panic(err)
	}
	return conn, sess
}

func TestAgentRegistryLazilyRegistersEachAgentOnce(t *testing.T) {
	Convey("Given a running controller broadcast service behind a real NATS connection", t, func() {
		ns, url := startTestNATSServer()
		defer ns.Shutdown()

		conn, err := nats.Connect(url)
		So(err, ShouldBeNil)
		defer conn.Close()

		cfg := control.DefaultConfig()
		cfg.BatchingDelay = 15 * time.Millisecond
		svc, err := control.NewService(cfg, tree.NewMapping(nil))
		So(err, ShouldBeNil)
		defer svc.Close()

		reg := newAgentRegistry(svc, conn, 2*time.Second)

		Convey("The first command from a given agent registers it exactly once", func() {
			agentConn, agentSess := startFakeAgent(url, "agent-1")
			defer agentConn.Close()
			defer agentSess.Close()

			resp1 := reg.handle("agent-1", transport.NewCommand(transport.CommandSetNodeEra, map[string][]byte{
				transport.ArgNodeUUID: []byte("agent-1"),
				transport.ArgEra:      []byte("era-a"),
			}))
			So(resp1.Error, ShouldBeNil)

			resp2 := reg.handle("agent-1", transport.NewCommand(transport.CommandSetNodeEra, map[string][]byte{
				transport.ArgNodeUUID: []byte("agent-1"),
				transport.ArgEra:      []byte("era-b"),
			}))
			So(resp2.Error, ShouldBeNil)

			reg.mu.Lock()
			count := len(reg.byAgent)
			reg.mu.Unlock()
			So(count, ShouldEqual, 1)
		})

		Convey("Two distinct agents each get their own registry entry", func() {
			agent1Conn, agent1Sess := startFakeAgent(url, "agent-1")
			defer agent1Conn.Close()
			defer agent1Sess.Close()
			agent2Conn, agent2Sess := startFakeAgent(url, "agent-2")
			defer agent2Conn.Close()
			defer agent2Sess.Close()

			reg.handle("agent-1", transport.NewCommand(transport.CommandSetNodeEra, map[string][]byte{
				transport.ArgNodeUUID: []byte("agent-1"), transport.ArgEra: []byte("era-a"),
			}))
			reg.handle("agent-2", transport.NewCommand(transport.CommandSetNodeEra, map[string][]byte{
				transport.ArgNodeUUID: []byte("agent-2"), transport.ArgEra: []byte("era-a"),
			}))

			reg.mu.Lock()
			count := len(reg.byAgent)
			_, hasOne := reg.byAgent["agent-1"]
			_, hasTwo := reg.byAgent["agent-2"]
			reg.mu.Unlock()
			So(count, ShouldEqual, 2)
			So(hasOne, ShouldBeTrue)
			So(hasTwo, ShouldBeTrue)
		})
	})
}

func TestAgentRegistryReapsInactiveAgent(t *testing.T) {
	Convey("An agent that goes quiet past the inactivity timeout is disconnected", t, func() {
		origTimeout := transport.InactivityTimeout
		transport.InactivityTimeout = 40 * time.Millisecond
		defer func() { transport.InactivityTimeout = origTimeout }()

		ns, url := startTestNATSServer()
		defer ns.Shutdown()

		conn, err := nats.Connect(url)
		So(err, ShouldBeNil)
		defer conn.Close()

		cfg := control.DefaultConfig()
		cfg.BatchingDelay = 15 * time.Millisecond
		svc, err := control.NewService(cfg, tree.NewMapping(nil))
		So(err, ShouldBeNil)
		defer svc.Close()

		agentConn, agentSess := startFakeAgent(url, "agent-1")
		defer agentConn.Close()
		defer agentSess.Close()

		reg := newAgentRegistry(svc, conn, 2*time.Second)
		reg.handle("agent-1", transport.NewCommand(transport.CommandSetNodeEra, map[string][]byte{
			transport.ArgNodeUUID: []byte("agent-1"), transport.ArgEra: []byte("era-a"),
		}))

		time.Sleep(120 * time.Millisecond)

		reg.mu.Lock()
		_, stillKnown := reg.byAgent["agent-1"]
		reg.mu.Unlock()
		So(stillKnown, ShouldBeFalse)
	})
}
