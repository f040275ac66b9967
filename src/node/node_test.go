package node

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/frostnetworks/frost/src/alpha"
	"github.com/frostnetworks/frost/src/cell"
	"github.com/frostnetworks/frost/src/common"
	"github.com/frostnetworks/frost/src/config"
	"github.com/frostnetworks/frost/src/crypto"
	"github.com/frostnetworks/frost/src/crypto/keys"
	"github.com/frostnetworks/frost/src/ice"
	"github.com/frostnetworks/frost/src/net"
	"github.com/frostnetworks/frost/src/peers"
	"github.com/frostnetworks/frost/src/sampling"
	"github.com/frostnetworks/frost/src/storage"
)

func testConfig(t *testing.T) *config.Config {
	conf := config.NewDefaultConfig()
	conf.ProtocolPeriod = 30 * time.Millisecond
	conf.Timeout = 500 * time.Millisecond
	conf.StallTimeout = 2 * time.Second
	conf.Consensus = sampling.Params{K: 2, Alpha: 0.5, Beta1: 2, Beta2: 4}
	conf.Ice = ice.Config{KIce: 2, Beta1: 1, LiveThreshold: 2.0 / 3.0}
	conf.WithLogger(common.NewTestLogger(t))
	return conf
}

type testNet struct {
	nodes []*Node
	keys  []*keys.KeyPair
}

// newTestNet builds n nodes over in-memory transports, all staked equally
// in the same genesis.
func newTestNet(t *testing.T, n int) *testNet {
	t.Helper()

	kps := make([]*keys.KeyPair, n)
	ids := make([]peers.ID, n)
	transports := make([]*net.InmemTransport, n)
	addrs := make([]string, n)
	for i := 0; i < n; i++ {
		kp, err := keys.GenerateKeyPair()
		require.NoError(t, err)
		kps[i] = kp
		ids[i] = peers.NewID(kp.Public)
		addrs[i], transports[i] = net.NewInmemTransport("")
	}

	stakers := make([]*alpha.InitialStaker, n)
	for i := 0; i < n; i++ {
		stakers[i] = &alpha.InitialStaker{
			ID:         ids[i],
			NetAddr:    addrs[i],
			PubKey:     kps[i].Public,
			Allocation: 1000,
		}
	}

	nodes := make([]*Node, n)
	for i := 0; i < n; i++ {
		var list []*peers.Peer
		for j := 0; j < n; j++ {
			list = append(list, peers.NewPeer(ids[j], addrs[j]))
		}
		nodes[i] = NewNode(
			testConfig(t),
			ids[i],
			kps[i],
			stakers,
			peers.NewPeerSet(list),
			transports[i],
			storage.NewInmemStore(),
		)
		require.NoError(t, nodes[i].Init())
	}
	return &testNet{nodes: nodes, keys: kps}
}

func (tn *testNet) start() {
	for _, n := range tn.nodes {
		n.RunAsync()
	}
}

func (tn *testNet) stop() {
	for _, n := range tn.nodes {
		n.Shutdown()
	}
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestCommitteeForms(t *testing.T) {
	tn := newTestNet(t, 3)
	tn.start()
	defer tn.stop()

	waitFor(t, 10*time.Second, "live committee on all nodes", func() bool {
		for _, n := range tn.nodes {
			if n.GetState() != Running {
				return false
			}
		}
		return true
	})

	for _, n := range tn.nodes {
		require.GreaterOrEqual(t, n.Epoch(), uint64(1))
	}
}

func TestSingleCellAcceptedEverywhere(t *testing.T) {
	tn := newTestNet(t, 3)
	tn.start()
	defer tn.stop()

	waitFor(t, 10*time.Second, "live committee", func() bool {
		for _, n := range tn.nodes {
			if n.GetState() != Running {
				return false
			}
		}
		return true
	})

	// spend the first genesis output owned by node 0's key
	genesis := alpha.GenesisCells(tn.nodes[0].alpha.Stakers())
	var spendable crypto.Hash
	lock := crypto.Blake3(tn.keys[0].Public)
	var index uint8
	found := false
	for _, g := range genesis {
		for i := range g.Outputs {
			if g.Outputs[i].Lock == lock && g.Outputs[i].Type == cell.Coinbase {
				spendable = g.Hash()
				index = uint8(i)
				found = true
			}
		}
	}
	require.True(t, found)

	c := cell.New(
		[]cell.Input{cell.NewInput(tn.keys[0], spendable, index)},
		[]cell.Output{{Capacity: 100, Type: cell.Transfer, Lock: crypto.Blake3([]byte("n1"))}},
	)
	tn.nodes[0].SubmitCell(c)

	waitFor(t, 15*time.Second, "cell accepted on all nodes", func() bool {
		for _, n := range tn.nodes {
			if !n.CellAccepted(c.Hash()) {
				return false
			}
		}
		return true
	})
}

func TestVersionHandshake(t *testing.T) {
	tn := newTestNet(t, 2)
	tn.start()
	defer tn.stop()

	// talk to node 0 through a fresh transport
	addr, client := net.NewInmemTransport("")
	defer client.Close()

	clientKey, err := keys.GenerateKeyPair()
	require.NoError(t, err)

	var resp net.VersionResponse
	waitFor(t, 5*time.Second, "version ack", func() bool {
		err := client.Version(
			tn.nodes[0].trans.LocalAddr(),
			&net.VersionRequest{From: peers.NewID(clientKey.Public), FromAddr: addr, Version: "test"},
			&resp,
		)
		return err == nil
	})
	require.Equal(t, tn.nodes[0].ID(), resp.From)
	require.NotEmpty(t, resp.Version)
}
