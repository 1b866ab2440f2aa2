package transport

import (
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	. "github.com/smartystreets/goconvey/convey"
)

func startTestNATSServer() (*server.Server, string) {
	opts := &server.Options{Port: -1}

	ns, err := server.NewServer(opts)
	if err != nil {
		panic(err)
	}

	ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		panic("NATS server failed to start")
	}

	return ns, ns.ClientURL()
}

func TestCommandResponseMarshalRoundTrip(t *testing.T) {
	Convey("Command marshal/unmarshal", t, func() {
		cmd := NewCommand(CommandUpdateDiff, map[string][]byte{"patch": []byte("hello")})

		data, err := MarshalCommand(cmd)
		So(err, ShouldBeNil)

		got, err := UnmarshalCommand(data)
		So(err, ShouldBeNil)
		So(got.RequestID, ShouldEqual, cmd.RequestID)
		So(got.Name, ShouldEqual, CommandUpdateDiff)

		decodedArgs, err := DecodeArgs(got.Args)
		So(err, ShouldBeNil)
		So(string(decodedArgs["patch"]), ShouldEqual, "hello")
	})

	Convey("Response marshal/unmarshal", t, func() {
		cmd := NewCommand(CommandNoop, nil)
		resp := NewResponse(cmd, map[string][]byte{"current_state_hash": []byte("abc123")})

		data, err := MarshalResponse(resp)
		So(err, ShouldBeNil)

		got, err := UnmarshalResponse(data)
		So(err, ShouldBeNil)
		So(got.RequestID, ShouldEqual, cmd.RequestID)
	})

	Convey("A Response carrying an ErrorPayload surfaces as an error on unmarshal", t, func() {
		cmd := NewCommand(CommandSetNodeEra, nil)
		resp := NewErrorResponse(cmd, "HASH_MISMATCH", "start hash does not match current state")

		data, err := MarshalResponse(resp)
		So(err, ShouldBeNil)

		_, err = UnmarshalResponse(data)
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "start hash does not match current state")
	})
}

func TestServeAndSendOverRealConnection(t *testing.T) {
	Convey("A Session answers VERSION directly and delegates other commands", t, func() {
		ns, url := startTestNATSServer()
		defer ns.Shutdown()

		agentConn, err := nats.Connect(url)
		So(err, ShouldBeNil)
		defer agentConn.Close()

		controllerConn, err := nats.Connect(url)
		So(err, ShouldBeNil)
		defer controllerConn.Close()

		orig := PingInterval
		setPingInterval(time.Hour) // keep pings from interleaving with this test's own traffic
		defer setPingInterval(orig)

		var handled []CommandName
		sess, err := Serve(agentConn, "agent-1", func(cmd Command) Response {
			handled = append(handled, cmd.Name)
			return NewResponse(cmd, map[string][]byte{"current_state_hash": []byte("deadbeef")})
		})
		So(err, ShouldBeNil)
		defer sess.Close()

		Convey("VERSION is answered without reaching the handler", func() {
			resp, err := Send(controllerConn, "agent-1", NewCommand(CommandVersion, nil), 2*time.Second)
			So(err, ShouldBeNil)

			args, err := DecodeArgs(resp.Args)
			So(err, ShouldBeNil)
			So(string(args["version"]), ShouldEqual, "1")
			So(handled, ShouldBeEmpty)
		})

		Convey("An UPDATE_DIFF command reaches the handler and its response round-trips", func() {
			resp, err := Send(controllerConn, "agent-1", NewCommand(CommandUpdateDiff, map[string][]byte{"patch": []byte("xyz")}), 2*time.Second)
			So(err, ShouldBeNil)
			So(handled, ShouldResemble, []CommandName{CommandUpdateDiff})

			args, err := DecodeArgs(resp.Args)
			So(err, ShouldBeNil)
			So(string(args["current_state_hash"]), ShouldEqual, "deadbeef")
		})
	})
}

func TestServeControllerAndSendToControllerOverRealConnection(t *testing.T) {
	Convey("ServeController recovers the sender's agent id from the subject", t, func() {
		ns, url := startTestNATSServer()
		defer ns.Shutdown()

		agentConn, err := nats.Connect(url)
		So(err, ShouldBeNil)
		defer agentConn.Close()

		controllerConn, err := nats.Connect(url)
		So(err, ShouldBeNil)
		defer controllerConn.Close()

		var gotAgentID string
		var gotCmd CommandName
		sub, err := ServeController(controllerConn, func(agentID string, cmd Command) Response {
			gotAgentID = agentID
			gotCmd = cmd.Name
			return NewResponse(cmd, map[string][]byte{"current_configuration_hash": []byte("cafe")})
		})
		So(err, ShouldBeNil)
		defer func() { _ = sub.Unsubscribe() }()

		Convey("a NODE_STATE from agent-7 is attributed to agent-7", func() {
			resp, err := SendToController(agentConn, "agent-7", NewCommand(CommandStateFragment, map[string][]byte{"fragments": []byte("x")}), 2*time.Second)
			So(err, ShouldBeNil)
			So(gotAgentID, ShouldEqual, "agent-7")
			So(gotCmd, ShouldEqual, CommandStateFragment)

			args, err := DecodeArgs(resp.Args)
			So(err, ShouldBeNil)
			So(string(args["current_configuration_hash"]), ShouldEqual, "cafe")
		})

		Convey("a different agent's command is attributed to that agent, not the first one seen", func() {
			_, err := SendToController(agentConn, "agent-7", NewCommand(CommandSetNodeEra, nil), 2*time.Second)
			So(err, ShouldBeNil)
			So(gotAgentID, ShouldEqual, "agent-7")

			_, err = SendToController(agentConn, "agent-9", NewCommand(CommandSetBlockDeviceID, nil), 2*time.Second)
			So(err, ShouldBeNil)
			So(gotAgentID, ShouldEqual, "agent-9")
		})
	})
}

func TestCheckVersion(t *testing.T) {
	Convey("CheckVersion accepts a peer reporting the same protocol version", t, func() {
		ns, url := startTestNATSServer()
		defer ns.Shutdown()

		agentConn, err := nats.Connect(url)
		So(err, ShouldBeNil)
		defer agentConn.Close()

		controllerConn, err := nats.Connect(url)
		So(err, ShouldBeNil)
		defer controllerConn.Close()

		sess, err := Serve(agentConn, "agent-1", func(cmd Command) Response {
			return NewResponse(cmd, nil)
		})
		So(err, ShouldBeNil)
		defer sess.Close()

		So(CheckVersion(controllerConn, "agent-1", 2*time.Second), ShouldBeNil)
	})

	Convey("CheckVersion reports an error when no peer answers", t, func() {
		ns, url := startTestNATSServer()
		defer ns.Shutdown()

		controllerConn, err := nats.Connect(url)
		So(err, ShouldBeNil)
		defer controllerConn.Close()

		err = CheckVersion(controllerConn, "nobody-home", 100*time.Millisecond)
		So(err, ShouldNotBeNil)
	})
}

func TestAgentIDFromControllerSubject(t *testing.T) {
	cases := []struct {
		subject string
		want    string
		ok      bool
	}{
		{"convergent.controller.agent-1.cmd", "agent-1", true},
		{"convergent.controller..cmd", "", false},
		{"convergent.agent.agent-1.cmd", "", false},
		{"garbage", "", false},
	}
	for _, tc := range cases {
		got, ok := agentIDFromControllerSubject(tc.subject)
		if ok != tc.ok || got != tc.want {
			t.Errorf("agentIDFromControllerSubject(%q) = (%q, %v), want (%q, %v)", tc.subject, got, ok, tc.want, tc.ok)
		}
	}
}
