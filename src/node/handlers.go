package node

import (
	"errors"
	"fmt"
	"time"

	"github.com/frostnetworks/frost/src/crypto"
	"github.com/frostnetworks/frost/src/hail"
	"github.com/frostnetworks/frost/src/net"
	"github.com/frostnetworks/frost/src/sleet"
	"github.com/frostnetworks/frost/src/storage"
	"github.com/frostnetworks/frost/src/version"
)

// processRPC routes an inbound request to the owning engine. Query handlers
// may need to gap-fill over the network, so they and the gossip handler run
// in their own goroutines; everything else answers inline.
func (n *Node) processRPC(rpc net.RPC) {
	switch cmd := rpc.Command.(type) {
	case *net.VersionRequest:
		n.processVersion(rpc, cmd)
	case *net.PingRequest:
		n.processPing(rpc, cmd)
	case *net.QueryTxRequest:
		n.goFunc(func() { n.processQueryTx(rpc, cmd) })
	case *net.QueryBlockRequest:
		n.goFunc(func() { n.processQueryBlock(rpc, cmd) })
	case *net.GetCellRequest:
		n.processGetCell(rpc, cmd)
	case *net.GetBlockRequest:
		n.processGetBlock(rpc, cmd)
	case *net.GetAncestorsRequest:
		n.processGetAncestors(rpc, cmd)
	case *net.GossipRequest:
		n.goFunc(func() { n.processGossip(rpc, cmd) })
	default:
		n.logger.WithField("cmd", rpc.Command).Error("unexpected RPC command")
		rpc.Respond(nil, fmt.Errorf("unexpected command"))
	}
}

func (n *Node) processVersion(rpc net.RPC, cmd *net.VersionRequest) {
	n.iceLock.Lock()
	n.ice.Track(cmd.From, cmd.FromAddr)
	epoch := n.ice.Epoch()
	n.iceLock.Unlock()

	rpc.Respond(&net.VersionResponse{
		From:    n.id,
		Version: version.Version,
		Epoch:   epoch,
	}, nil)
}

func (n *Node) processPing(rpc net.RPC, cmd *net.PingRequest) {
	n.iceLock.Lock()
	outcomes := n.ice.HandlePing(cmd.From, cmd.FromAddr, cmd.Queries)
	n.iceLock.Unlock()

	rpc.Respond(&net.PingResponse{From: n.id, Outcomes: outcomes}, nil)
}

// processQueryTx runs on-receive for an unseen transaction, gap-filling its
// ancestry from the querying peer if needed, then answers whether the
// transaction is strongly preferred.
func (n *Node) processQueryTx(rpc net.RPC, cmd *net.QueryTxRequest) {
	txHash := cmd.Tx.Hash()

	n.sleetLock.Lock()
	_, err := n.sleet.OnReceiveTx(cmd.Tx)
	n.sleetLock.Unlock()

	if errors.Is(err, sleet.ErrMissingAncestry) && cmd.FromAddr != "" {
		n.fetchTxAncestry(cmd.FromAddr, cmd.Tx)
		n.sleetLock.Lock()
		_, err = n.sleet.OnReceiveTx(cmd.Tx)
		n.sleetLock.Unlock()
	}
	if err != nil {
		n.logger.WithField("error", err).Debug("rejecting queried transaction")
		rpc.Respond(&net.QueryTxResponse{From: n.id, TxHash: txHash, StronglyPreferred: false}, nil)
		return
	}

	n.sleetLock.Lock()
	preferred := n.sleet.HandleQuery(txHash)
	n.sleetLock.Unlock()

	rpc.Respond(&net.QueryTxResponse{From: n.id, TxHash: txHash, StronglyPreferred: preferred}, nil)
}

// fetchTxAncestry asks the peer that queried us for the ancestry of a
// transaction and inserts it, parents before children.
func (n *Node) fetchTxAncestry(addr string, tx *sleet.Tx) {
	var resp net.GetAncestorsResponse
	if err := n.trans.GetAncestors(addr, &net.GetAncestorsRequest{TxHash: tx.Hash()}, &resp); err != nil {
		n.logger.WithField("error", err).Debug("fetching ancestors failed")
		return
	}
	n.sleetLock.Lock()
	defer n.sleetLock.Unlock()
	for i := len(resp.Ancestors) - 1; i >= 0; i-- {
		if resp.Ancestors[i] == nil {
			continue
		}
		if _, err := n.sleet.OnReceiveTx(resp.Ancestors[i]); err != nil &&
			!errors.Is(err, sleet.ErrMissingAncestry) {
			n.logger.WithField("error", err).Debug("inserting fetched ancestor")
		}
	}
}

// processQueryBlock validates an inbound block, holding it while sleet
// catches up on its cells up to the stall timeout, then answers whether the
// block is strongly preferred.
func (n *Node) processQueryBlock(rpc net.RPC, cmd *net.QueryBlockRequest) {
	b := cmd.Block
	blockHash := b.Hash()
	deadline := time.Now().Add(n.conf.StallTimeout)

	answer := func(preferred bool) {
		rpc.Respond(&net.QueryBlockResponse{From: n.id, BlockHash: blockHash, StronglyPreferred: preferred}, nil)
	}

	for {
		n.hailLock.Lock()
		err := n.hail.ValidateBlock(b, n.cellAccepted)
		n.hailLock.Unlock()

		var missing *hail.ErrMissingCells
		switch {
		case err == nil:
			n.hailLock.Lock()
			if _, insertErr := n.hail.OnReceiveBlock(b); insertErr != nil {
				n.hailLock.Unlock()
				n.logger.WithField("error", insertErr).Debug("inserting queried block")
				answer(false)
				return
			}
			preferred := n.hail.HandleQuery(blockHash)
			n.hailLock.Unlock()
			answer(preferred)
			return

		case errors.Is(err, hail.ErrStaleHeight):
			// the height is decided; answer yes only for the winner
			n.hailLock.Lock()
			accepted, ok := n.hail.AcceptedAt(b.Height)
			n.hailLock.Unlock()
			answer(ok && accepted.Hash() == blockHash)
			return

		case errors.Is(err, hail.ErrUnknownParent):
			if cmd.FromAddr == "" || !n.fetchBlock(cmd.FromAddr, b.Parent) {
				answer(false)
				return
			}

		case errors.As(err, &missing):
			// hold until sleet accepts or the stall timeout treats the
			// block as invalid
			if time.Now().After(deadline) {
				n.logger.WithField("block", b.String()).Warn("stalled on undecided cells, treating as invalid")
				answer(false)
				return
			}
			select {
			case <-time.After(n.conf.ProtocolPeriod / 4):
			case <-n.shutdownCh:
				answer(false)
				return
			}

		default:
			n.logger.WithField("error", err).Debug("rejecting queried block")
			answer(false)
			return
		}
		if time.Now().After(deadline) {
			answer(false)
			return
		}
	}
}

// cellAccepted reports sleet's verdict on a cell. Block validation calls it
// while holding hailLock; taking sleetLock inside is the one sanctioned
// hail-then-sleet ordering.
func (n *Node) cellAccepted(c crypto.Hash) bool {
	n.sleetLock.Lock()
	defer n.sleetLock.Unlock()
	return n.sleet.IsAccepted(c)
}

// fetchBlock gap-fills a missing block from a peer and inserts it. Returns
// true if the block was fetched and admitted.
func (n *Node) fetchBlock(addr string, hash crypto.Hash) bool {
	var resp net.GetBlockResponse
	if err := n.trans.GetBlock(addr, &net.GetBlockRequest{ID: hash}, &resp); err != nil || resp.Block == nil {
		return false
	}
	n.hailLock.Lock()
	defer n.hailLock.Unlock()
	if err := n.hail.ValidateBlock(resp.Block, n.cellAccepted); err != nil {
		return false
	}
	if _, err := n.hail.OnReceiveBlock(resp.Block); err != nil {
		return false
	}
	return true
}

func (n *Node) processGetCell(rpc net.RPC, cmd *net.GetCellRequest) {
	n.sleetLock.Lock()
	tx, ok := n.sleet.Get(cmd.ID)
	n.sleetLock.Unlock()

	if !ok {
		// fall back to finalised storage
		if c, err := n.store.GetCell(cmd.ID); err == nil {
			tx = sleet.NewTx(c, nil)
		} else if !errors.Is(err, storage.ErrNotFound) {
			rpc.Respond(nil, err)
			return
		}
	}
	rpc.Respond(&net.GetCellResponse{Tx: tx}, nil)
}

func (n *Node) processGetBlock(rpc net.RPC, cmd *net.GetBlockRequest) {
	n.hailLock.Lock()
	b, ok := n.hail.Get(cmd.ID)
	n.hailLock.Unlock()

	if !ok {
		if stored, err := n.store.GetBlock(cmd.ID); err == nil {
			b = stored
		} else if !errors.Is(err, storage.ErrNotFound) {
			rpc.Respond(nil, err)
			return
		}
	}
	rpc.Respond(&net.GetBlockResponse{Block: b}, nil)
}

func (n *Node) processGetAncestors(rpc net.RPC, cmd *net.GetAncestorsRequest) {
	n.sleetLock.Lock()
	ancestors := n.sleet.Ancestors(cmd.TxHash, n.conf.SyncLimit)
	n.sleetLock.Unlock()

	rpc.Respond(&net.GetAncestorsResponse{Ancestors: ancestors}, nil)
}

// processGossip folds unsolicited cells and blocks into the engines.
// Gossiped items failing validation are dropped; gossip is never answered
// with an error.
func (n *Node) processGossip(rpc net.RPC, cmd *net.GossipRequest) {
	n.iceLock.Lock()
	n.ice.Track(cmd.From, cmd.FromAddr)
	n.iceLock.Unlock()

	for _, tx := range cmd.Cells {
		if tx == nil {
			continue
		}
		n.sleetLock.Lock()
		_, err := n.sleet.OnReceiveTx(tx)
		n.sleetLock.Unlock()
		if err != nil && !errors.Is(err, sleet.ErrMissingAncestry) {
			n.logger.WithField("error", err).Debug("dropping gossiped cell")
		}
	}

	for _, b := range cmd.Blocks {
		if b == nil {
			continue
		}
		n.hailLock.Lock()
		err := n.hail.ValidateBlock(b, n.cellAccepted)
		if err == nil {
			_, err = n.hail.OnReceiveBlock(b)
		}
		n.hailLock.Unlock()
		var missing *hail.ErrMissingCells
		if err != nil && !errors.As(err, &missing) && !errors.Is(err, hail.ErrStaleHeight) {
			n.logger.WithField("error", err).Debug("dropping gossiped block")
		}
	}

	rpc.Respond(&net.GossipResponse{From: n.id}, nil)
}
