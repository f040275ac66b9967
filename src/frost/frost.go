// Package frost ties the configuration, transport, storage, consensus node
// and HTTP service together into a runnable engine.
package frost

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/frostnetworks/frost/src/alpha"
	"github.com/frostnetworks/frost/src/config"
	"github.com/frostnetworks/frost/src/crypto/keys"
	"github.com/frostnetworks/frost/src/net"
	"github.com/frostnetworks/frost/src/node"
	"github.com/frostnetworks/frost/src/peers"
	"github.com/frostnetworks/frost/src/service"
	"github.com/frostnetworks/frost/src/storage"
)

// Frost is the top-level engine.
type Frost struct {
	Config *config.Config
	Node   *node.Node

	Peers     *peers.PeerSet
	Store     storage.Store
	Transport net.Transport
	Service   *service.Service

	logger *logrus.Entry
}

// NewFrost creates an engine from a configuration. Call Init before Run.
func NewFrost(conf *config.Config) *Frost {
	return &Frost{
		Config: conf,
		logger: conf.Logger(),
	}
}

// Init builds the key material, transport, store, genesis and node.
func (f *Frost) Init() error {
	key, err := f.initKey()
	if err != nil {
		return fmt.Errorf("initializing key: %w", err)
	}

	id, trans, err := f.initTransport(key)
	if err != nil {
		return fmt.Errorf("initializing transport: %w", err)
	}
	f.Transport = trans

	if f.Config.ID != "" {
		id, err = peers.ParseID(f.Config.ID)
		if err != nil {
			return fmt.Errorf("parsing id override: %w", err)
		}
	}

	if err := f.initStore(); err != nil {
		return fmt.Errorf("initializing store: %w", err)
	}

	stakers, err := loadOrCreateGenesis(f.Config, id, key, trans.LocalAddr())
	if err != nil {
		return fmt.Errorf("loading genesis: %w", err)
	}

	if err := f.initPeers(stakers, id, trans.LocalAddr()); err != nil {
		return fmt.Errorf("initializing peers: %w", err)
	}

	f.Node = node.NewNode(f.Config, id, key, stakers, f.Peers, trans, f.Store)
	if err := f.Node.Init(); err != nil {
		return fmt.Errorf("initializing node: %w", err)
	}

	if !f.Config.NoService {
		f.Service = service.NewService(
			f.Config.ServiceAddr,
			f.Node,
			f.logger.WithField("prefix", "service"),
		)
	}
	return nil
}

func (f *Frost) initKey() (*keys.KeyPair, error) {
	if f.Config.Keypair != "" {
		return keys.FromSeedHex(f.Config.Keypair)
	}
	key, err := keys.ReadKeyfile(f.Config.Keyfile())
	if err == nil {
		return key, nil
	}
	key, err = keys.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	if err := keys.WriteKeyfile(f.Config.Keyfile(), key); err != nil {
		return nil, err
	}
	f.logger.WithField("keyfile", f.Config.Keyfile()).Info("generated new keypair")
	return key, nil
}

func (f *Frost) initTransport(key *keys.KeyPair) (peers.ID, net.Transport, error) {
	logger := f.logger.WithField("prefix", "net")
	if f.Config.UseTLS {
		cert, err := net.LoadOrGenerateCert(f.Config.CertFile(), f.Config.CertKeyFile())
		if err != nil {
			return peers.ID{}, nil, err
		}
		id, err := net.NodeID(cert)
		if err != nil {
			return peers.ID{}, nil, err
		}
		trans, err := net.NewTLSTransport(
			f.Config.BindAddr,
			f.Config.AdvertiseAddr,
			key,
			cert,
			f.Config.MaxPool,
			f.Config.Timeout,
			logger,
		)
		if err != nil {
			return peers.ID{}, nil, err
		}
		return id, trans, nil
	}

	trans, err := net.NewTCPTransport(
		f.Config.BindAddr,
		f.Config.AdvertiseAddr,
		key,
		f.Config.MaxPool,
		f.Config.Timeout,
		logger,
	)
	if err != nil {
		return peers.ID{}, nil, err
	}
	return peers.NewID(key.Public), trans, nil
}

func (f *Frost) initStore() error {
	if f.Config.Store {
		store, err := storage.NewBadgerStore(f.Config.DatabaseDir)
		if err != nil {
			return err
		}
		f.Store = store
		return nil
	}
	f.Store = storage.NewInmemStore()
	return nil
}

func (f *Frost) initPeers(stakers []*alpha.InitialStaker, id peers.ID, localAddr string) error {
	list := []*peers.Peer{peers.NewPeer(id, localAddr)}
	for _, s := range f.Config.Bootstrap {
		p, err := peers.ParseBootstrap(s)
		if err != nil {
			return err
		}
		list = append(list, p)
	}
	for _, s := range stakers {
		if s.NetAddr != "" {
			list = append(list, peers.NewPeer(s.ID, s.NetAddr))
		}
	}
	f.Peers = peers.NewPeerSet(list)
	return nil
}

// Run starts the node, the HTTP service and the block recipient, and blocks
// until shutdown.
func (f *Frost) Run() {
	if f.Service != nil {
		go f.Service.Serve()
		go service.CollectMetrics(f.Node, 5*time.Second)
	}

	// the external block recipient: drain accepted blocks into the log
	go func() {
		for b := range f.Node.CommitCh() {
			f.logger.WithField("block", b.String()).Info("block committed")
		}
	}()

	f.Node.Run()
}

// Shutdown stops the node and releases the store.
func (f *Frost) Shutdown() {
	if f.Node != nil {
		f.Node.Shutdown()
	}
	if f.Store != nil {
		f.Store.Close()
	}
}
