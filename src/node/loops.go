package node

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/frostnetworks/frost/src/alpha"
	"github.com/frostnetworks/frost/src/cell"
	"github.com/frostnetworks/frost/src/crypto"
	"github.com/frostnetworks/frost/src/ice"
	"github.com/frostnetworks/frost/src/net"
	"github.com/frostnetworks/frost/src/peers"
	"github.com/frostnetworks/frost/src/sampling"
	"github.com/frostnetworks/frost/src/sleet"
)

// jitterPeriod spreads a round period over [period, 2*period) so the
// protocol rounds of the nodes in the network de-synchronise.
func jitterPeriod(rng *rand.Rand, period time.Duration) time.Duration {
	if period <= 0 {
		return period
	}
	return period + time.Duration(rng.Int63n(int64(period)))
}

// iceLoop drives one liveness round per jittered protocol period.
func (n *Node) iceLoop() {
	rng := newRNG()
	timer := time.NewTimer(jitterPeriod(rng, n.conf.ProtocolPeriod))
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			n.iceRound(rng)
			timer.Reset(jitterPeriod(rng, n.conf.ProtocolPeriod))
		case <-n.shutdownCh:
			return
		}
	}
}

// iceRound pings one random peer about up to k-ice subjects and folds the
// outcomes into the reservoirs. A timed-out ping counts as a Faulty outcome
// for every subject, never for the target, and is not retried.
func (n *Node) iceRound(rng *rand.Rand) {
	n.iceLock.Lock()
	_, addr, ok := n.ice.PickTarget(rng)
	var queries []peers.ID
	if ok {
		queries = n.ice.SampleQueries(rng)
	}
	n.iceLock.Unlock()
	if !ok || len(queries) == 0 {
		return
	}
	atomic.AddUint64(&n.pingRounds, 1)

	req := &net.PingRequest{From: n.id, FromAddr: n.trans.LocalAddr(), Queries: queries}
	var resp net.PingResponse
	err := n.trans.Ping(addr, req, &resp)

	n.iceLock.Lock()
	if err != nil {
		n.ice.RecordPingFailure(queries)
	} else {
		n.ice.RecordOutcomes(queries, resp.Outcomes)
	}
	ev := n.ice.CheckCommittee()
	n.iceLock.Unlock()

	if ev != nil {
		n.onCommitteeEvent(ev)
	}
}

// onCommitteeEvent installs a new epoch-tagged validator snapshot, or gates
// consensus when the live weight dropped below the supermajority threshold.
func (n *Node) onCommitteeEvent(ev *ice.Committee) {
	if !ev.Live {
		n.logger.WithField("epoch", ev.Epoch).Warn("faulty committee, consensus gated")
		if n.getState() == Running {
			n.setState(Gated)
		}
		return
	}

	vs := n.alpha.OnLiveCommittee(ev.Epoch, ev.Members)

	stakes := make(map[peers.ID]uint64)
	for _, s := range n.alpha.Stakers() {
		stakes[s.ID] = s.Allocation
	}
	n.iceLock.Lock()
	n.ice.SetStakes(stakes)
	n.iceLock.Unlock()

	n.sleetLock.Lock()
	n.sleet.SetValidators(vs)
	n.sleetLock.Unlock()

	n.hailLock.Lock()
	n.hail.SetValidators(vs)
	n.hailLock.Unlock()

	if err := n.store.SetValidatorSet(vs); err != nil {
		n.logger.WithField("error", err).Error("persisting validator snapshot")
	}
	n.setState(Running)
}

// consensusLoop runs a round function every protocol period while a live
// committee is installed.
func (n *Node) consensusLoop(round func(*rand.Rand)) {
	rng := newRNG()
	ticker := time.NewTicker(n.conf.ProtocolPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n.getState() == Running {
				round(rng)
			}
		case <-n.shutdownCh:
			return
		}
	}
}

// fanOutWeighted sends a query to every sampled validator concurrently and
// tallies the stake-weighted yes responses. Non-responses count as no.
func fanOutWeighted(sample []*alpha.Validator, query func(*alpha.Validator) bool) (yes, sampled float64) {
	type outcome struct {
		weight float64
		yes    bool
	}
	results := make(chan outcome, len(sample))
	var wg sync.WaitGroup
	for _, v := range sample {
		wg.Add(1)
		go func(v *alpha.Validator) {
			defer wg.Done()
			results <- outcome{weight: float64(v.Stake), yes: query(v)}
		}(v)
	}
	wg.Wait()
	close(results)
	for o := range results {
		sampled += o.weight
		if o.yes {
			yes += o.weight
		}
	}
	return yes, sampled
}

// sleetRound queries one pending transaction against a stake-weighted
// sample of validators.
func (n *Node) sleetRound(rng *rand.Rand) {
	n.sleetLock.Lock()
	tx, ok := n.sleet.NextUnqueried()
	var sample []*alpha.Validator
	var epoch uint64
	if ok {
		sample = n.sleet.Sample(rng)
		if vs := n.sleet.Validators(); vs != nil {
			epoch = vs.Epoch
		}
	}
	n.sleetLock.Unlock()
	if !ok {
		return
	}
	if len(sample) == 0 {
		n.sleetLock.Lock()
		n.sleet.Requeue(tx.Hash())
		n.sleetLock.Unlock()
		return
	}
	atomic.AddUint64(&n.txQueries, 1)

	req := &net.QueryTxRequest{From: n.id, FromAddr: n.trans.LocalAddr(), Tx: tx}
	yes, sampled := fanOutWeighted(sample, func(v *alpha.Validator) bool {
		var resp net.QueryTxResponse
		if err := n.trans.QueryTx(v.NetAddr, req, &resp); err != nil {
			return false
		}
		return resp.TxHash == tx.Hash() && resp.StronglyPreferred
	})

	n.sleetLock.Lock()
	// a committee change while the query was in flight cancels the round
	if vs := n.sleet.Validators(); vs == nil || vs.Epoch != epoch {
		n.sleet.Requeue(tx.Hash())
		n.sleetLock.Unlock()
		return
	}
	var accepted []*cell.Cell
	if sampling.Quorum(yes, sampled, n.conf.Consensus.Alpha) {
		var err error
		accepted, err = n.sleet.RecordQuerySuccess(tx.Hash())
		if err != nil {
			n.logger.WithField("error", err).Error("recording query success")
		}
	} else {
		if err := n.sleet.RecordQueryFailure(tx.Hash()); err != nil {
			n.logger.WithField("error", err).Error("recording query failure")
		}
	}
	if !n.sleet.IsAccepted(tx.Hash()) {
		n.sleet.Requeue(tx.Hash())
	}
	var frontier []crypto.Hash
	if len(accepted) > 0 {
		frontier = n.sleet.Frontier()
	}
	n.sleetLock.Unlock()

	if len(accepted) > 0 {
		n.persistAcceptedCells(accepted, frontier)
	}
}

func (n *Node) persistAcceptedCells(accepted []*cell.Cell, frontier []crypto.Hash) {
	for _, c := range accepted {
		if err := n.store.SetCell(c); err != nil {
			n.logger.WithField("error", err).Error("persisting cell")
		}
	}
	if err := n.store.SetFrontier(frontier); err != nil {
		n.logger.WithField("error", err).Error("persisting frontier")
	}
	atomic.AddUint64(&n.acceptedCells, uint64(len(accepted)))
}

// hailRound produces a block when this node wins the sortition, then
// queries one pending block against a stake-weighted sample.
func (n *Node) hailRound(rng *rand.Rand) {
	n.produceBlock()

	n.hailLock.Lock()
	b, ok := n.hail.NextUnqueried()
	var sample []*alpha.Validator
	var epoch uint64
	if ok {
		sample = n.hail.Sample(rng)
		if vs := n.hail.Validators(); vs != nil {
			epoch = vs.Epoch
		}
	}
	n.hailLock.Unlock()
	if !ok {
		return
	}
	if len(sample) == 0 {
		n.hailLock.Lock()
		n.hail.Requeue(b.Hash())
		n.hailLock.Unlock()
		return
	}
	atomic.AddUint64(&n.blockQueries, 1)

	req := &net.QueryBlockRequest{From: n.id, FromAddr: n.trans.LocalAddr(), Block: b}
	yes, sampled := fanOutWeighted(sample, func(v *alpha.Validator) bool {
		var resp net.QueryBlockResponse
		if err := n.trans.QueryBlock(v.NetAddr, req, &resp); err != nil {
			return false
		}
		return resp.BlockHash == b.Hash() && resp.StronglyPreferred
	})

	n.hailLock.Lock()
	if vs := n.hail.Validators(); vs == nil || vs.Epoch != epoch {
		n.hail.Requeue(b.Hash())
		n.hailLock.Unlock()
		return
	}
	var accepted []*alpha.Block
	var reissue []crypto.Hash
	if sampling.Quorum(yes, sampled, n.conf.Consensus.Alpha) {
		var err error
		accepted, err = n.hail.RecordQuerySuccess(b.Hash())
		if err != nil {
			n.logger.WithField("error", err).Error("recording block query success")
		}
	} else {
		var err error
		reissue, err = n.hail.RecordQueryFailure(b.Hash())
		if err != nil {
			n.logger.WithField("error", err).Error("recording block query failure")
		}
	}
	n.hail.Requeue(b.Hash())
	n.hailLock.Unlock()

	// a failed block round resets the tentative cell set underneath it
	if len(reissue) > 0 {
		n.sleetLock.Lock()
		for _, c := range reissue {
			n.sleet.Requeue(c)
		}
		n.sleetLock.Unlock()
	}

	for _, accptd := range accepted {
		n.commitBlock(accptd)
	}
}

// produceBlock assembles and gossips a block when the VRF sortition makes
// this node an eligible producer for the next height.
func (n *Node) produceBlock() {
	n.hailLock.Lock()
	proof, output, eligible := n.hail.ProductionSlot()
	n.hailLock.Unlock()
	if !eligible {
		return
	}

	n.sleetLock.Lock()
	cells := n.sleet.Frontier()
	n.sleetLock.Unlock()

	n.hailLock.Lock()
	b := n.hail.GenerateBlock(cells, proof, output)
	_, err := n.hail.OnReceiveBlock(b)
	n.hailLock.Unlock()
	if err != nil {
		n.logger.WithField("error", err).Error("inserting own block")
		return
	}
	n.logger.WithField("block", b.String()).Info("produced block")
	n.gossipBlock(b)
}

// commitBlock persists an accepted block and hands it to the block
// recipient.
func (n *Node) commitBlock(b *alpha.Block) {
	if err := n.store.SetBlock(b); err != nil {
		n.logger.WithField("error", err).Error("persisting block")
	}
	atomic.AddUint64(&n.acceptedBlocks, 1)
	select {
	case n.commitCh <- b:
	case <-n.shutdownCh:
	}
}

// gossipBlock pushes a block to every validator.
func (n *Node) gossipBlock(b *alpha.Block) {
	n.hailLock.Lock()
	vs := n.hail.Validators()
	n.hailLock.Unlock()
	if vs == nil {
		return
	}
	req := &net.GossipRequest{From: n.id, FromAddr: n.trans.LocalAddr(), Blocks: []*alpha.Block{b}}
	for _, v := range vs.List() {
		if v.ID == n.id {
			continue
		}
		go func(addr string) {
			var resp net.GossipResponse
			if err := n.trans.Gossip(addr, req, &resp); err != nil {
				n.logger.WithField("error", err).Debug("gossip failed")
			}
		}(v.NetAddr)
	}
}

// processSubmit attaches a client cell to the DAG and gossips it.
func (n *Node) processSubmit(c *cell.Cell) {
	n.sleetLock.Lock()
	tx, err := n.sleet.GenerateTx(c)
	n.sleetLock.Unlock()
	if err != nil {
		n.logger.WithField("error", err).Error("rejecting submitted cell")
		return
	}
	if tx == nil {
		return
	}
	n.logger.WithField("tx", tx.String()).Debug("submitted cell")

	n.sleetLock.Lock()
	vs := n.sleet.Validators()
	n.sleetLock.Unlock()
	if vs == nil {
		return
	}
	req := &net.GossipRequest{From: n.id, FromAddr: n.trans.LocalAddr(), Cells: []*sleet.Tx{tx}}
	for _, v := range vs.List() {
		if v.ID == n.id {
			continue
		}
		go func(addr string) {
			var resp net.GossipResponse
			if err := n.trans.Gossip(addr, req, &resp); err != nil {
				n.logger.WithField("error", err).Debug("gossip failed")
			}
		}(v.NetAddr)
	}
}
