package ice

import (
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/frostnetworks/frost/src/common"
	"github.com/frostnetworks/frost/src/peers"
)

// Default ice parameters.
const (
	// DefaultKIce is the reservoir window and the max number of subjects
	// per Ping
	DefaultKIce = 11
	// DefaultBeta1 is the decision streak
	DefaultBeta1 = 3
	// DefaultLiveThreshold is the (2f+1) supermajority weight fraction
	DefaultLiveThreshold = 2.0 / 3.0
)

// Config are the ice engine parameters.
type Config struct {
	KIce          int     `mapstructure:"k-ice"`
	Beta1         int     `mapstructure:"ice-beta1"`
	LiveThreshold float64 `mapstructure:"live-threshold"`
}

// DefaultConfig returns the default ice parameters.
func DefaultConfig() Config {
	return Config{
		KIce:          DefaultKIce,
		Beta1:         DefaultBeta1,
		LiveThreshold: DefaultLiveThreshold,
	}
}

// Committee is the event ice emits when the live weight crosses the
// supermajority threshold in either direction.
type Committee struct {
	// Epoch increases monotonically with each LiveCommittee.
	Epoch uint64
	// Live is true for a LiveCommittee, false for a FaultyCommittee.
	Live bool
	// Members maps the Live-decided peers to their endpoints.
	Members map[peers.ID]string
	// Weight is the combined live weight fraction.
	Weight float64
}

// Ice is the liveness engine. It is driven by the node's ice loop; all
// methods must be called under the node's ice lock.
type Ice struct {
	conf      Config
	selfID    peers.ID
	selfAddr  string
	reservoir *Reservoir

	// stake table; empty until the alpha chain is bootstrapped, in which
	// case every whitelisted peer weighs the same
	stakes     map[peers.ID]uint64
	totalStake uint64

	epoch uint64
	live  bool

	logger *logrus.Entry
}

// NewIce creates the liveness engine seeded with the static whitelist.
func NewIce(conf Config, selfID peers.ID, selfAddr string, whitelist *peers.PeerSet, logger *logrus.Entry) *Ice {
	ice := &Ice{
		conf:      conf,
		selfID:    selfID,
		selfAddr:  selfAddr,
		reservoir: NewReservoir(conf.KIce, conf.Beta1),
		stakes:    make(map[peers.ID]uint64),
		logger:    logger,
	}
	for _, p := range whitelist.Peers {
		if p.ID != selfID {
			ice.reservoir.InsertNew(p.ID, p.NetAddr)
		}
	}
	return ice
}

// Epoch returns the current committee epoch.
func (i *Ice) Epoch() uint64 {
	return i.epoch
}

// SetStakes installs validator stakes once alpha is bootstrapped; from then
// on the live weight is stake-weighted and Faulty decisions against stakers
// require stronger evidence.
func (i *Ice) SetStakes(stakes map[peers.ID]uint64) {
	i.stakes = make(map[peers.ID]uint64, len(stakes))
	i.totalStake = 0
	for id, s := range stakes {
		i.stakes[id] = s
		i.totalStake += s
	}
	i.reservoir.SetStakers(i.stakes)
}

// Track starts observing a peer discovered through gossip or handshake.
func (i *Ice) Track(id peers.ID, addr string) {
	if id != i.selfID {
		i.reservoir.InsertNew(id, addr)
	}
}

// PickTarget picks one peer uniformly at random from the current view, to be
// pinged this round.
func (i *Ice) PickTarget(rng *rand.Rand) (peers.ID, string, bool) {
	candidates := make([]peers.ID, 0, i.reservoir.Len())
	for id := range i.reservoir.entries {
		candidates = append(candidates, id)
	}
	if len(candidates) == 0 {
		return peers.ID{}, "", false
	}
	id := candidates[rng.Intn(len(candidates))]
	addr, _ := i.reservoir.Addr(id)
	return id, addr, true
}

// SampleQueries samples the subjects for the next Ping.
func (i *Ice) SampleQueries(rng *rand.Rand) []peers.ID {
	return i.reservoir.Subjects(rng, i.conf.KIce)
}

// HandlePing answers an inbound Ping: for each subject, report this node's
// current opinion.
func (i *Ice) HandlePing(from peers.ID, fromAddr string, queries []peers.ID) []common.Choice {
	i.Track(from, fromAddr)
	outcomes := make([]common.Choice, len(queries))
	for n, subject := range queries {
		if subject == i.selfID {
			outcomes[n] = common.Live
			continue
		}
		outcomes[n] = i.reservoir.Decision(subject)
	}
	return outcomes
}

// RecordOutcomes folds a Pong's outcome vector into the reservoirs.
func (i *Ice) RecordOutcomes(subjects []peers.ID, outcomes []common.Choice) {
	for n, subject := range subjects {
		if n >= len(outcomes) || subject == i.selfID {
			continue
		}
		i.reservoir.Observe(subject, outcomes[n])
	}
}

// RecordPingFailure counts a timed-out Ping as a single Faulty outcome for
// every subject in it. The target itself is not penalised and the Ping is
// never retried.
func (i *Ice) RecordPingFailure(subjects []peers.ID) {
	for _, subject := range subjects {
		if subject == i.selfID {
			continue
		}
		i.reservoir.Observe(subject, common.Faulty)
	}
}

// Live returns the peers currently decided Live, with their endpoints.
func (i *Ice) Live() map[peers.ID]string {
	return i.reservoir.Live()
}

// liveWeight computes the combined weight of the Live-decided peers plus
// self. Weightless before alpha bootstrap (every peer counts equally),
// stake-weighted after.
func (i *Ice) liveWeight(live map[peers.ID]string) float64 {
	if i.totalStake == 0 {
		return float64(len(live)+1) / float64(i.reservoir.Len()+1)
	}
	weight := i.stakes[i.selfID]
	for id := range live {
		weight += i.stakes[id]
	}
	return float64(weight) / float64(i.totalStake)
}

// CheckCommittee re-evaluates the live weight against the supermajority
// threshold and returns a committee event when it crosses in either
// direction.
func (i *Ice) CheckCommittee() *Committee {
	live := i.reservoir.Live()
	weight := i.liveWeight(live)

	if !i.live && weight > i.conf.LiveThreshold {
		i.live = true
		i.epoch++
		i.reservoir.SetEpoch(i.epoch)
		i.logger.WithFields(logrus.Fields{
			"epoch":  i.epoch,
			"weight": weight,
			"live":   len(live),
		}).Info("live committee")
		return &Committee{Epoch: i.epoch, Live: true, Members: live, Weight: weight}
	}
	if i.live && weight <= i.conf.LiveThreshold {
		i.live = false
		i.logger.WithFields(logrus.Fields{
			"epoch":  i.epoch,
			"weight": weight,
			"live":   len(live),
		}).Warn("faulty committee")
		return &Committee{Epoch: i.epoch, Live: false, Members: live, Weight: weight}
	}
	return nil
}
