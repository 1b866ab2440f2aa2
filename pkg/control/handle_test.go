package control

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/wayneeseguin/convergent/pkg/transport"
	"github.com/wayneeseguin/convergent/pkg/tree"
	"github.com/wayneeseguin/convergent/pkg/wire"
)

func TestHandleAgentCommandStateFragment(t *testing.T) {
	Convey("A NODE_STATE command folds into the aggregate state and acks with current hashes", t, func() {
		svc, err := NewService(testConfig(), tree.NewMapping(nil))
		So(err, ShouldBeNil)
		defer svc.Close()

		payload, err := wire.EncodeTyped(tree.NewSequence(tree.Leaf{Raw: "observed"}))
		So(err, ShouldBeNil)

		cmd := transport.NewCommand(transport.CommandStateFragment, map[string][]byte{
			transport.ArgFragments: payload,
		})

		resp := svc.HandleAgentCommand("node-1", cmd)
		So(resp.Error, ShouldBeNil)

		args, err := transport.DecodeArgs(resp.Args)
		So(err, ShouldBeNil)
		So(args[transport.ArgCurrentConfigurationHash], ShouldNotBeEmpty)
		So(args[transport.ArgCurrentStateHash], ShouldNotBeEmpty)

		state, _ := svc.stateTracker.GetLatest()
		m := state.(tree.Mapping)
		fragment, ok := m.Get("node-1")
		So(ok, ShouldBeTrue)
		So(fragment.Equal(tree.NewSequence(tree.Leaf{Raw: "observed"})), ShouldBeTrue)
	})
}

func TestHandleAgentCommandSetNodeEra(t *testing.T) {
	Convey("A SET_NODE_ERA command records the era", t, func() {
		svc, err := NewService(testConfig(), tree.NewMapping(nil))
		So(err, ShouldBeNil)
		defer svc.Close()

		cmd := transport.NewCommand(transport.CommandSetNodeEra, map[string][]byte{
			transport.ArgNodeUUID: []byte("node-1"),
			transport.ArgEra:      []byte("era-a"),
		})

		resp := svc.HandleAgentCommand("node-1", cmd)
		So(resp.Error, ShouldBeNil)

		svc.mu.Lock()
		era := svc.nodeEras["node-1"]
		svc.mu.Unlock()
		So(era, ShouldEqual, "era-a")
	})

	Convey("A SET_NODE_ERA command missing required args responds with a protocol error", t, func() {
		svc, err := NewService(testConfig(), tree.NewMapping(nil))
		So(err, ShouldBeNil)
		defer svc.Close()

		cmd := transport.NewCommand(transport.CommandSetNodeEra, nil)
		resp := svc.HandleAgentCommand("node-1", cmd)
		So(resp.Error, ShouldNotBeNil)
	})
}

func TestHandleAgentCommandSetBlockDeviceID(t *testing.T) {
	Convey("A SET_BLOCKDEVICE_ID command records the binding, conflicts surface as errors", t, func() {
		svc, err := NewService(testConfig(), tree.NewMapping(nil))
		So(err, ShouldBeNil)
		defer svc.Close()

		bind := func(dataset, blockdevice string) transport.Response {
			cmd := transport.NewCommand(transport.CommandSetBlockDeviceID, map[string][]byte{
				transport.ArgDatasetID:     []byte(dataset),
				transport.ArgBlockDeviceID: []byte(blockdevice),
			})
			return svc.HandleAgentCommand("node-1", cmd)
		}

		So(bind("dataset-1", "bd-1").Error, ShouldBeNil)

		conflict := bind("dataset-1", "bd-2")
		So(conflict.Error, ShouldNotBeNil)
	})
}

func TestHandleAgentCommandUnsupported(t *testing.T) {
	Convey("An unsupported command name responds with a protocol error", t, func() {
		svc, err := NewService(testConfig(), tree.NewMapping(nil))
		So(err, ShouldBeNil)
		defer svc.Close()

		resp := svc.HandleAgentCommand("node-1", transport.NewCommand(transport.CommandUpdateFull, nil))
		So(resp.Error, ShouldNotBeNil)
	})
}

func TestCurrentHashesReflectsLatestTrackedValues(t *testing.T) {
	Convey("CurrentHashes tracks whatever was last inserted into each tracker", t, func() {
		initial := tree.NewMapping(map[string]tree.Value{"v": tree.Leaf{Raw: 1}})
		svc, err := NewService(testConfig(), initial)
		So(err, ShouldBeNil)
		defer svc.Close()

		cfgHash, stateHash := svc.CurrentHashes()

		wantCfgHash, _ := svc.cfgTracker.GetLatestHash()
		wantStateHash, _ := svc.stateTracker.GetLatestHash()
		So(cfgHash, ShouldEqual, wantCfgHash)
		So(stateHash, ShouldEqual, wantStateHash)
	})
}
