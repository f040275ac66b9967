package net

import (
	"fmt"
	"sync"
	"time"
)

var (
	inmemRegistry     = make(map[string]*InmemTransport)
	inmemRegistryLock sync.RWMutex
	inmemAddrCounter  uint64
)

// InmemTransport implements the Transport interface for tests: requests are
// routed directly between transports in the same process.
type InmemTransport struct {
	consumerCh chan RPC
	localAddr  string
	timeout    time.Duration
}

// NewInmemTransport creates an in-memory transport and registers it under a
// fresh address.
func NewInmemTransport(addr string) (string, *InmemTransport) {
	inmemRegistryLock.Lock()
	defer inmemRegistryLock.Unlock()

	if addr == "" {
		inmemAddrCounter++
		addr = fmt.Sprintf("inmem://%d", inmemAddrCounter)
	}
	trans := &InmemTransport{
		consumerCh: make(chan RPC, 16),
		localAddr:  addr,
		timeout:    500 * time.Millisecond,
	}
	inmemRegistry[addr] = trans
	return addr, trans
}

// Listen implements the Transport interface; in-memory transports are
// always listening.
func (i *InmemTransport) Listen() {}

// Consumer implements the Transport interface.
func (i *InmemTransport) Consumer() <-chan RPC {
	return i.consumerCh
}

// LocalAddr implements the Transport interface.
func (i *InmemTransport) LocalAddr() string {
	return i.localAddr
}

func (i *InmemTransport) makeRPC(target string, args interface{}) (RPCResponse, error) {
	inmemRegistryLock.RLock()
	peer, ok := inmemRegistry[target]
	inmemRegistryLock.RUnlock()
	if !ok {
		return RPCResponse{}, fmt.Errorf("failed to connect to peer: %v", target)
	}

	respCh := make(chan RPCResponse, 1)
	select {
	case peer.consumerCh <- RPC{Command: args, RespChan: respCh}:
	case <-time.After(i.timeout):
		return RPCResponse{}, fmt.Errorf("send timed out: %v", target)
	}

	select {
	case rpcResp := <-respCh:
		if rpcResp.Error != nil {
			return rpcResp, rpcResp.Error
		}
		return rpcResp, nil
	case <-time.After(i.timeout):
		return RPCResponse{}, fmt.Errorf("command timed out: %v", target)
	}
}

// Version implements the Transport interface.
func (i *InmemTransport) Version(target string, args *VersionRequest, resp *VersionResponse) error {
	rpcResp, err := i.makeRPC(target, args)
	if err != nil {
		return err
	}
	*resp = *rpcResp.Response.(*VersionResponse)
	return nil
}

// Ping implements the Transport interface.
func (i *InmemTransport) Ping(target string, args *PingRequest, resp *PingResponse) error {
	rpcResp, err := i.makeRPC(target, args)
	if err != nil {
		return err
	}
	*resp = *rpcResp.Response.(*PingResponse)
	return nil
}

// QueryTx implements the Transport interface.
func (i *InmemTransport) QueryTx(target string, args *QueryTxRequest, resp *QueryTxResponse) error {
	rpcResp, err := i.makeRPC(target, args)
	if err != nil {
		return err
	}
	*resp = *rpcResp.Response.(*QueryTxResponse)
	return nil
}

// QueryBlock implements the Transport interface.
func (i *InmemTransport) QueryBlock(target string, args *QueryBlockRequest, resp *QueryBlockResponse) error {
	rpcResp, err := i.makeRPC(target, args)
	if err != nil {
		return err
	}
	*resp = *rpcResp.Response.(*QueryBlockResponse)
	return nil
}

// GetCell implements the Transport interface.
func (i *InmemTransport) GetCell(target string, args *GetCellRequest, resp *GetCellResponse) error {
	rpcResp, err := i.makeRPC(target, args)
	if err != nil {
		return err
	}
	*resp = *rpcResp.Response.(*GetCellResponse)
	return nil
}

// GetBlock implements the Transport interface.
func (i *InmemTransport) GetBlock(target string, args *GetBlockRequest, resp *GetBlockResponse) error {
	rpcResp, err := i.makeRPC(target, args)
	if err != nil {
		return err
	}
	*resp = *rpcResp.Response.(*GetBlockResponse)
	return nil
}

// GetAncestors implements the Transport interface.
func (i *InmemTransport) GetAncestors(target string, args *GetAncestorsRequest, resp *GetAncestorsResponse) error {
	rpcResp, err := i.makeRPC(target, args)
	if err != nil {
		return err
	}
	*resp = *rpcResp.Response.(*GetAncestorsResponse)
	return nil
}

// Gossip implements the Transport interface.
func (i *InmemTransport) Gossip(target string, args *GossipRequest, resp *GossipResponse) error {
	rpcResp, err := i.makeRPC(target, args)
	if err != nil {
		return err
	}
	*resp = *rpcResp.Response.(*GossipResponse)
	return nil
}

// Close implements the Transport interface.
func (i *InmemTransport) Close() error {
	inmemRegistryLock.Lock()
	defer inmemRegistryLock.Unlock()
	delete(inmemRegistry, i.localAddr)
	return nil
}
