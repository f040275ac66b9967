package node

import (
	"math/rand"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/frostnetworks/frost/src/alpha"
	"github.com/frostnetworks/frost/src/cell"
	"github.com/frostnetworks/frost/src/config"
	"github.com/frostnetworks/frost/src/crypto"
	"github.com/frostnetworks/frost/src/crypto/keys"
	"github.com/frostnetworks/frost/src/hail"
	"github.com/frostnetworks/frost/src/ice"
	"github.com/frostnetworks/frost/src/net"
	"github.com/frostnetworks/frost/src/peers"
	"github.com/frostnetworks/frost/src/sleet"
	"github.com/frostnetworks/frost/src/storage"
)

// Node wires the three consensus engines to the transport and the store.
// Each engine is owned by a single loop; the per-engine locks serialize the
// loop's access with the inbound request handlers. When a handler needs both
// engines it takes hailLock before sleetLock, never the reverse.
type Node struct {
	state

	conf   *config.Config
	logger *logrus.Entry

	id  peers.ID
	key *keys.KeyPair

	trans net.Transport
	netCh <-chan net.RPC

	ice     *ice.Ice
	iceLock sync.Mutex

	alpha *alpha.Alpha

	sleet     *sleet.Sleet
	sleetLock sync.Mutex

	hail     *hail.Hail
	hailLock sync.Mutex

	store storage.Store

	submitCh chan *cell.Cell
	commitCh chan *alpha.Block

	shutdownCh   chan struct{}
	shutdown     bool
	shutdownLock sync.Mutex

	start time.Time

	// counters for the stats endpoint
	pingRounds     uint64
	txQueries      uint64
	blockQueries   uint64
	acceptedCells  uint64
	acceptedBlocks uint64
}

// NewNode creates a Node over a transport, a store and the genesis staker
// list.
func NewNode(
	conf *config.Config,
	id peers.ID,
	key *keys.KeyPair,
	stakers []*alpha.InitialStaker,
	whitelist *peers.PeerSet,
	trans net.Transport,
	store storage.Store,
) *Node {
	logger := conf.Logger().WithField("node", id.String()[:8])

	alphaBridge := alpha.New(stakers, logger.WithField("prefix", "alpha"))

	sleetEngine := sleet.NewSleet(conf.Consensus, id, logger.WithField("prefix", "sleet"))
	sleetEngine.Bootstrap(alphaBridge.GenesisCells())

	hailEngine := hail.NewHail(conf.Consensus, id, key, logger.WithField("prefix", "hail"))
	hailEngine.Bootstrap(alphaBridge.GenesisBlock())

	node := &Node{
		conf:       conf,
		logger:     logger,
		id:         id,
		key:        key,
		trans:      trans,
		netCh:      trans.Consumer(),
		ice:        ice.NewIce(conf.Ice, id, trans.LocalAddr(), whitelist, logger.WithField("prefix", "ice")),
		alpha:      alphaBridge,
		sleet:      sleetEngine,
		hail:       hailEngine,
		store:      store,
		submitCh:   make(chan *cell.Cell, 64),
		commitCh:   make(chan *alpha.Block, 20),
		shutdownCh: make(chan struct{}),
	}
	node.setState(Bootstrapping)
	return node
}

// Init persists the genesis block and the genesis cells. It does not contact
// any peer.
func (n *Node) Init() error {
	genesis := n.alpha.GenesisBlock()
	if err := n.store.SetBlock(genesis); err != nil {
		return err
	}
	for _, c := range n.alpha.GenesisCells() {
		if err := n.store.SetCell(c); err != nil {
			return err
		}
	}
	n.logger.WithFields(logrus.Fields{
		"genesis": genesis.String(),
		"stakers": len(n.alpha.Stakers()),
	}).Debug("Init Node")
	return nil
}

// ID returns the node's authoritative identity.
func (n *Node) ID() peers.ID {
	return n.id
}

// GetState returns the node's lifecycle state.
func (n *Node) GetState() State {
	return n.getState()
}

// Epoch returns the current committee epoch.
func (n *Node) Epoch() uint64 {
	n.iceLock.Lock()
	defer n.iceLock.Unlock()
	return n.ice.Epoch()
}

// SubmitCell hands a client cell to the mempool.
func (n *Node) SubmitCell(c *cell.Cell) {
	select {
	case n.submitCh <- c:
	case <-n.shutdownCh:
	}
}

// CommitCh returns the channel on which accepted blocks are delivered to
// the block recipient.
func (n *Node) CommitCh() <-chan *alpha.Block {
	return n.commitCh
}

// CellAccepted reports whether sleet finalised the cell.
func (n *Node) CellAccepted(h crypto.Hash) bool {
	return n.cellAccepted(h)
}

// Frontier returns sleet's accepted frontier.
func (n *Node) Frontier() []crypto.Hash {
	n.sleetLock.Lock()
	defer n.sleetLock.Unlock()
	return n.sleet.Frontier()
}

// Height returns the next undecided block height.
func (n *Node) Height() alpha.Height {
	n.hailLock.Lock()
	defer n.hailLock.Unlock()
	return n.hail.Height()
}

// BlockAt returns the accepted block at a height, if decided.
func (n *Node) BlockAt(height alpha.Height) (*alpha.Block, bool) {
	n.hailLock.Lock()
	defer n.hailLock.Unlock()
	return n.hail.AcceptedAt(height)
}

// LivePeers returns the peers currently decided Live, keyed by identity.
func (n *Node) LivePeers() map[string]string {
	n.iceLock.Lock()
	defer n.iceLock.Unlock()
	live := make(map[string]string)
	for id, addr := range n.ice.Live() {
		live[id.String()] = addr
	}
	return live
}

// RunAsync starts the node in the background.
func (n *Node) RunAsync() {
	go n.Run()
}

// Run starts the transport listener, the protocol loops, and blocks until
// shutdown.
func (n *Node) Run() {
	n.start = time.Now()

	go n.trans.Listen()

	n.goFunc(n.mainLoop)
	n.goFunc(n.iceLoop)
	n.goFunc(func() { n.consensusLoop(n.sleetRound) })
	n.goFunc(func() { n.consensusLoop(n.hailRound) })

	<-n.shutdownCh
	n.waitRoutines()
}

// mainLoop serializes inbound requests and client submissions.
func (n *Node) mainLoop() {
	for {
		select {
		case rpc := <-n.netCh:
			n.processRPC(rpc)
		case c := <-n.submitCh:
			n.processSubmit(c)
		case <-n.shutdownCh:
			return
		}
	}
}

// Shutdown drains the loops best-effort and terminates.
func (n *Node) Shutdown() {
	n.shutdownLock.Lock()
	defer n.shutdownLock.Unlock()

	if n.shutdown {
		return
	}
	n.logger.Debug("Shutdown")
	n.setState(Shutdown)
	close(n.shutdownCh)
	n.shutdown = true

	n.trans.Close()
}

// newRNG builds a per-loop random source; loops never share one.
func newRNG() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// GetStats returns counters for the HTTP service.
func (n *Node) GetStats() map[string]string {
	n.sleetLock.Lock()
	frontier := len(n.sleet.Frontier())
	n.sleetLock.Unlock()
	n.hailLock.Lock()
	height := n.hail.Height()
	n.hailLock.Unlock()

	return map[string]string{
		"id":              n.id.String(),
		"state":           n.getState().String(),
		"epoch":           strconv.FormatUint(n.Epoch(), 10),
		"height":          strconv.FormatUint(height, 10),
		"frontier_size":   strconv.Itoa(frontier),
		"ping_rounds":     strconv.FormatUint(atomic.LoadUint64(&n.pingRounds), 10),
		"tx_queries":      strconv.FormatUint(atomic.LoadUint64(&n.txQueries), 10),
		"block_queries":   strconv.FormatUint(atomic.LoadUint64(&n.blockQueries), 10),
		"accepted_cells":  strconv.FormatUint(atomic.LoadUint64(&n.acceptedCells), 10),
		"accepted_blocks": strconv.FormatUint(atomic.LoadUint64(&n.acceptedBlocks), 10),
		"uptime":          time.Since(n.start).String(),
	}
}
