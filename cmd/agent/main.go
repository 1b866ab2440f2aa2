// Command agent runs one cluster node's replication endpoint: it applies
// UPDATE_FULL/UPDATE_DIFF commands pushed by the controller, verifying
// content hashes before adopting anything, and reports this node's boot
// era to the controller once it is already listening for pushes. Local convergence
// logic that would react to the adopted trees is explicitly out of scope
// here; this daemon only keeps the local replica honest.
package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/go-uuid"
	"github.com/mattn/go-isatty"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nuid"
	"github.com/starkandwayne/goutils/ansi"
	"github.com/voxelbrain/goptions"

	"github.com/wayneeseguin/convergent/internal/config"
	"github.com/wayneeseguin/convergent/log"
	"github.com/wayneeseguin/convergent/pkg/agent"
	"github.com/wayneeseguin/convergent/pkg/transport"
	"github.com/wayneeseguin/convergent/pkg/tree"
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

// Version holds the current version of the agent daemon.
var Version = "(development)"

func main() {
	var options struct {
		Debug   bool   `goptions:"-D, --debug, description='Enable debugging'"`
		Trace   bool   `goptions:"-T, --trace, description='Enable trace mode debugging (very verbose)'"`
		Version bool   `goptions:"-v, --version, description='Display version information'"`
		Color   string `goptions:"--color, description='Control color output (on/off/auto, default: auto)'"`
		Config  string `goptions:"-c, --config, description='Path to a TOML configuration file'"`
		AgentID string `goptions:"-a, --agent-id, description='This node identity, used on the transport subject', obligatory"`
		Help    bool   `goptions:"-h, --help"`
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

	onConverge := func(newCfg, newState tree.Value) {
		log.NewAction("converged").With("agent", options.AgentID).Log()
	}

	receiver, err := agent.New(onConverge)
	if err != nil {
		log.PrintfStdErr(ansi.Sprintf("@R{constructing receiver}: %s\n", err.Error()))
		exit(2)
		return
	}

	conn, err := transport.Connect(cfg.ToTransportConfig())
	if err != nil {
		log.PrintfStdErr(ansi.Sprintf("@R{connecting to transport backbone}: %s\n", err.Error()))
		exit(2)
		return
	}
	defer conn.Close()

	// Subscribe before announcing the boot era: the controller's VERSION
	// handshake and its first push both land on this agent's subject, and
	// either one arriving before Serve is listening would be dropped on
	// the floor.
	session, err := transport.Serve(conn, options.AgentID, receiver.Handle)
	if err != nil {
		log.PrintfStdErr(ansi.Sprintf("@R{serving agent subject}: %s\n", err.Error()))
		exit(2)
		return
	}
	defer session.Close()

	if err := reportBootEra(conn, options.AgentID, cfg.Transport.SendTimeout); err != nil {
		log.WARN("reporting boot era: %v", err)
	}

	log.NewAction("agent_started").With("agent_id", options.AgentID).With("nats_url", cfg.Transport.NATSURL).Log()
	log.INFO("agent %s listening on %s", options.AgentID, cfg.Transport.NATSURL)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.INFO("shutting down")
}

// reportBootEra generates a fresh era for this boot and reports it to the
// controller via SET_NODE_ERA, mirroring the original protocol's
// set_node_era handshake: updates sent under a stale era must be
// discarded by the controller, so every process start gets a new one.
func reportBootEra(conn *nats.Conn, agentID string, timeout time.Duration) error {
	era, err := uuid.GenerateUUID()
	if err != nil {
		return err
	}

	cmd := transport.NewCommand(transport.CommandSetNodeEra, map[string][]byte{
		transport.ArgNodeUUID:     []byte(agentID),
		transport.ArgEra:          []byte(era),
		transport.ArgTraceContext: []byte(nuid.Next()),
	})

	sendTimeout := timeout
	if sendTimeout <= 0 {
		sendTimeout = 10 * time.Second
	}

	_, err = transport.SendToController(conn, agentID, cmd, sendTimeout)
	return err
}
