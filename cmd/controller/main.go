// Command controller runs the cluster's control plane: it loads the
// replicated Deployment configuration, serves the broadcast service to
// every connected agent, and accepts agent-initiated commands
// (NODE_STATE, SET_NODE_ERA, SET_BLOCKDEVICE_ID) over the framed NATS
// transport. This is deliberately the thinnest possible front end --
// wiring the library packages together, not a CLI tool in its own right.
package main

import (
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-secure-stdlib/base62"
	"github.com/mattn/go-isatty"
	"github.com/nats-io/nats.go"
	"github.com/starkandwayne/goutils/ansi"
	"github.com/voxelbrain/goptions"

	"github.com/wayneeseguin/convergent/internal/cerrors"
	"github.com/wayneeseguin/convergent/internal/config"
	"github.com/wayneeseguin/convergent/internal/configstore"
	"github.com/wayneeseguin/convergent/log"
	"github.com/wayneeseguin/convergent/pkg/control"
	"github.com/wayneeseguin/convergent/pkg/transport"
)

var getopts = func(o interface{}) {
	if err := goptions.Parse(o); err != nil {
		usage()
	}
}

var exit = func(code int) {
	os.Exit(code)
}

var usage = func() {
	goptions.PrintHelp()
	exit(1)
}

func envFlag(varname string) bool {
	val := os.Getenv(varname)
	return val != "" && strings.ToLower(val) != "false" && val != "0"
}

func main() {
	var options struct {
		Debug       bool   `goptions:"-D, --debug, description='Enable debugging'"`
		Trace       bool   `goptions:"-T, --trace, description='Enable trace mode debugging (very verbose)'"`
		Version     bool   `goptions:"-v, --version, description='Display version information'"`
		Color       string `goptions:"--color, description='Control color output (on/off/auto, default: auto)'"`
		Config      string `goptions:"-c, --config, description='Path to a TOML configuration file'"`
		ConfigStore string `goptions:"-s, --config-store, description='Path to the persisted Deployment document', obligatory"`
		Help        bool   `goptions:"-h, --help"`
	}
	getopts(&options)

	if options.Help {
		usage()
		return
	}
	if options.Version {
		log.PrintfStdErr("%s - Version %s\n", os.Args[0], Version)
		exit(0)
		return
	}

	if envFlag("CONVERGENT_DEBUG") || options.Debug {
		log.DebugOn = true
	}
	if envFlag("CONVERGENT_TRACE") || options.Trace {
		log.TraceOn = true
		log.DebugOn = true
	}

	switch options.Color {
	case "on":
		log.SetColor(true)
	case "off":
		log.SetColor(false)
	case "auto", "":
		log.SetColor(isatty.IsTerminal(os.Stderr.Fd()))
	default:
		log.PrintfStdErr("invalid --color option: %s. Must be 'on', 'off', or 'auto'.\n", options.Color)
		exit(1)
		return
	}

	mgr := config.NewManager()
	if options.Config != "" {
		if err := mgr.Load(options.Config); err != nil {
			log.PrintfStdErr(ansi.Sprintf("@R{loading configuration}: %s\n", err.Error()))
			exit(2)
			return
		}
	}
	cfg := mgr.Get()

	store, err := configstore.New(options.ConfigStore)
	if err != nil {
		log.PrintfStdErr(ansi.Sprintf("@R{opening configuration store}: %s\n", err.Error()))
		exit(2)
		return
	}

	service, err := control.NewService(cfg.ToControlConfig(), store.Read())
	if err != nil {
		log.PrintfStdErr(ansi.Sprintf("@R{constructing broadcast service}: %s\n", err.Error()))
		exit(2)
		return
	}
	defer service.Close()

	store.Register(service.OnConfigurationChanged)

	conn, err := transport.Connect(cfg.ToTransportConfig())
	if err != nil {
		log.PrintfStdErr(ansi.Sprintf("@R{connecting to transport backbone}: %s\n", err.Error()))
		exit(2)
		return
	}
	defer conn.Close()

	reg := newAgentRegistry(service, conn, cfg.Transport.SendTimeout)
	sub, err := transport.ServeController(conn, reg.handle)
	if err != nil {
		log.PrintfStdErr(ansi.Sprintf("@R{serving controller subject}: %s\n", err.Error()))
		exit(2)
		return
	}
	defer func() { _ = sub.Unsubscribe() }()

	log.NewAction("controller_started").
		With("nats_url", cfg.Transport.NATSURL).
		With("config_store", options.ConfigStore).
		Log()
	log.INFO("controller listening on %s", cfg.Transport.NATSURL)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.INFO("shutting down")
}

// Version holds the current version of the controller daemon.
var Version = "(development)"

// agentRegistry assigns each first-seen agent a connection id (via
// base62.Random, independent of the agent's own identity string) and arms
// a per-agent inactivity monitor so a vanished agent is reaped from the
// broadcast service even though NATS itself never tells us a subscriber
// went away.
type agentRegistry struct {
	service     *control.Service
	conn        *nats.Conn
	sendTimeout time.Duration
	mu          sync.Mutex
	byAgent     map[string]sessionRecord
}

type sessionRecord struct {
	connID  control.ConnID
	monitor *transport.InactivityMonitor
}

func newAgentRegistry(service *control.Service, conn *nats.Conn, sendTimeout time.Duration) *agentRegistry {
	if sendTimeout <= 0 {
		sendTimeout = 10 * time.Second
	}
	return &agentRegistry{service: service, conn: conn, sendTimeout: sendTimeout, byAgent: make(map[string]sessionRecord)}
}

func (r *agentRegistry) handle(agentID string, cmd transport.Command) transport.Response {
	r.mu.Lock()
	_, known := r.byAgent[agentID]
	r.mu.Unlock()

	if !known {
		if err := transport.CheckVersion(r.conn, agentID, r.sendTimeout); err != nil {
			log.WARN("refusing agent %s: %v", agentID, err)
			return transport.NewErrorResponse(cmd, string(cerrors.Protocol), err.Error())
		}
	}

	r.mu.Lock()
	rec, known := r.byAgent[agentID]
	if !known {
		connID := control.ConnID(agentID)
		if id, err := base62.Random(22); err == nil {
			connID = control.ConnID(id)
		}
		sender := control.NATSSender{Conn: r.conn, AgentID: agentID}
		monitor := transport.StartInactivityMonitor(func() {
			r.mu.Lock()
			delete(r.byAgent, agentID)
			r.mu.Unlock()
			r.service.OnAgentDisconnected(connID)
		})
		rec = sessionRecord{connID: connID, monitor: monitor}
		r.byAgent[agentID] = rec
		r.mu.Unlock()

		r.service.OnAgentConnected(connID, sender)
	} else {
		r.mu.Unlock()
		rec.monitor.Reset()
	}

	return r.service.HandleAgentCommand(agentID, cmd)
}
