package net

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"

	"github.com/frostnetworks/frost/src/crypto/keys"
)

const (
	rpcVersion uint8 = iota
	rpcPing
	rpcQueryTx
	rpcQueryBlock
	rpcGetCell
	rpcGetBlock
	rpcGetAncestors
	rpcGossip
)

const bufSize = math.MaxUint16

var (
	// ErrTransportShutdown is returned when operations on a transport are
	// invoked after it's been terminated.
	ErrTransportShutdown = errors.New("transport shutdown")

	// ErrBadEnvelope is returned when an inbound request's signature does
	// not verify. The connection is dropped.
	ErrBadEnvelope = errors.New("invalid request envelope signature")
)

// envelope wraps every request body with the sender's message-level
// signature. TLS binds the transport identity; this signature binds the
// message to the node keypair.
type envelope struct {
	PubKey []byte
	Sig    []byte
	Body   []byte
}

func wireHandle() *codec.MsgpackHandle {
	return new(codec.MsgpackHandle)
}

/*
NetworkTransport provides a network based transport that can be used to
communicate with frost on remote machines. It requires an underlying stream
layer to provide a stream abstraction, which can be simple TCP or TLS.

Each RPC request is framed by sending a byte that indicates the message type,
followed by the msgpack encoded envelope. The response is an error string
followed by the response object, both encoded using msgpack.
*/
type NetworkTransport struct {
	logger *logrus.Entry

	key *keys.KeyPair

	connPool     map[string][]*netConn
	connPoolLock sync.Mutex
	maxPool      int

	consumeCh chan RPC

	shutdown     bool
	shutdownCh   chan struct{}
	shutdownLock sync.Mutex

	stream StreamLayer

	timeout time.Duration
}

type netConn struct {
	target string
	conn   net.Conn
	r      *bufio.Reader
	w      *bufio.Writer
	dec    *codec.Decoder
	enc    *codec.Encoder
}

// Release closes the underlying connection
func (n *netConn) Release() error {
	return n.conn.Close()
}

// NewNetworkTransport creates a new network transport with the given stream
// layer. The maxPool controls how many connections we will pool per target.
// The timeout is used to apply I/O deadlines. Outbound requests are signed
// with key.
func NewNetworkTransport(
	stream StreamLayer,
	key *keys.KeyPair,
	maxPool int,
	timeout time.Duration,
	logger *logrus.Entry,
) *NetworkTransport {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}
	return &NetworkTransport{
		connPool:   make(map[string][]*netConn),
		consumeCh:  make(chan RPC),
		key:        key,
		logger:     logger,
		maxPool:    maxPool,
		shutdownCh: make(chan struct{}),
		stream:     stream,
		timeout:    timeout,
	}
}

// Close is used to stop the network transport.
func (n *NetworkTransport) Close() error {
	n.shutdownLock.Lock()
	defer n.shutdownLock.Unlock()

	if !n.shutdown {
		close(n.shutdownCh)
		n.stream.Close()
		n.shutdown = true
	}
	return nil
}

// Consumer implements the Transport interface.
func (n *NetworkTransport) Consumer() <-chan RPC {
	return n.consumeCh
}

// LocalAddr implements the Transport interface.
func (n *NetworkTransport) LocalAddr() string {
	addr := n.stream.Addr()
	if addr != nil {
		return addr.String()
	}
	return ""
}

// AdvertiseAddr returns the publicly-reachable address of the transport.
func (n *NetworkTransport) AdvertiseAddr() string {
	return n.stream.AdvertiseAddr()
}

// IsShutdown is used to check if the transport is shutdown.
func (n *NetworkTransport) IsShutdown() bool {
	select {
	case <-n.shutdownCh:
		return true
	default:
		return false
	}
}

// getPooledConn is used to grab a pooled connection.
func (n *NetworkTransport) getPooledConn(target string) *netConn {
	n.connPoolLock.Lock()
	defer n.connPoolLock.Unlock()

	conns, ok := n.connPool[target]
	if !ok || len(conns) == 0 {
		return nil
	}

	var conn *netConn
	num := len(conns)
	conn, conns[num-1] = conns[num-1], nil
	n.connPool[target] = conns[:num-1]
	return conn
}

// getConn is used to get a connection for a target.
func (n *NetworkTransport) getConn(target string, timeout time.Duration) (*netConn, error) {
	if conn := n.getPooledConn(target); conn != nil {
		return conn, nil
	}

	conn, err := n.stream.Dial(target, timeout)
	if err != nil {
		return nil, err
	}

	nc := &netConn{
		target: target,
		conn:   conn,
		r:      bufio.NewReaderSize(conn, bufSize),
		w:      bufio.NewWriterSize(conn, bufSize),
	}
	nc.dec = codec.NewDecoder(nc.r, wireHandle())
	nc.enc = codec.NewEncoder(nc.w, wireHandle())
	return nc, nil
}

// returnConn returns a connection back to the pool.
func (n *NetworkTransport) returnConn(conn *netConn) {
	n.connPoolLock.Lock()
	defer n.connPoolLock.Unlock()

	key := conn.target
	conns := n.connPool[key]

	if !n.IsShutdown() && len(conns) < n.maxPool {
		n.connPool[key] = append(conns, conn)
	} else {
		conn.Release()
	}
}

// Version implements the Transport interface.
func (n *NetworkTransport) Version(target string, args *VersionRequest, resp *VersionResponse) error {
	return n.genericRPC(target, rpcVersion, args, resp)
}

// Ping implements the Transport interface.
func (n *NetworkTransport) Ping(target string, args *PingRequest, resp *PingResponse) error {
	return n.genericRPC(target, rpcPing, args, resp)
}

// QueryTx implements the Transport interface.
func (n *NetworkTransport) QueryTx(target string, args *QueryTxRequest, resp *QueryTxResponse) error {
	return n.genericRPC(target, rpcQueryTx, args, resp)
}

// QueryBlock implements the Transport interface.
func (n *NetworkTransport) QueryBlock(target string, args *QueryBlockRequest, resp *QueryBlockResponse) error {
	return n.genericRPC(target, rpcQueryBlock, args, resp)
}

// GetCell implements the Transport interface.
func (n *NetworkTransport) GetCell(target string, args *GetCellRequest, resp *GetCellResponse) error {
	return n.genericRPC(target, rpcGetCell, args, resp)
}

// GetBlock implements the Transport interface.
func (n *NetworkTransport) GetBlock(target string, args *GetBlockRequest, resp *GetBlockResponse) error {
	return n.genericRPC(target, rpcGetBlock, args, resp)
}

// GetAncestors implements the Transport interface.
func (n *NetworkTransport) GetAncestors(target string, args *GetAncestorsRequest, resp *GetAncestorsResponse) error {
	return n.genericRPC(target, rpcGetAncestors, args, resp)
}

// Gossip implements the Transport interface.
func (n *NetworkTransport) Gossip(target string, args *GossipRequest, resp *GossipResponse) error {
	return n.genericRPC(target, rpcGossip, args, resp)
}

// genericRPC handles a simple request/response RPC.
func (n *NetworkTransport) genericRPC(target string, rpcType uint8, args interface{}, resp interface{}) error {
	conn, err := n.getConn(target, n.timeout)
	if err != nil {
		return err
	}

	if n.timeout > 0 {
		conn.conn.SetDeadline(time.Now().Add(n.timeout))
	}

	if err = n.sendRPC(conn, rpcType, args); err != nil {
		return err
	}

	canReturn, err := decodeResponse(conn, resp)
	if canReturn {
		n.returnConn(conn)
	}
	return err
}

// sendRPC is used to encode, sign and send the RPC.
func (n *NetworkTransport) sendRPC(conn *netConn, rpcType uint8, args interface{}) error {
	var body []byte
	if err := codec.NewEncoderBytes(&body, wireHandle()).Encode(args); err != nil {
		conn.Release()
		return err
	}
	env := envelope{
		PubKey: n.key.Public,
		Sig:    n.key.Sign(append([]byte{rpcType}, body...)),
		Body:   body,
	}

	if err := conn.w.WriteByte(rpcType); err != nil {
		conn.Release()
		return err
	}
	if err := conn.enc.Encode(env); err != nil {
		conn.Release()
		return err
	}
	if err := conn.w.Flush(); err != nil {
		conn.Release()
		return err
	}
	return nil
}

// decodeResponse is used to decode an RPC response and reports whether the
// connection can be reused.
func decodeResponse(conn *netConn, resp interface{}) (bool, error) {
	var rpcError string
	if err := conn.dec.Decode(&rpcError); err != nil {
		conn.Release()
		return false, err
	}

	if err := conn.dec.Decode(resp); err != nil {
		conn.Release()
		return false, err
	}

	if rpcError != "" {
		return true, fmt.Errorf(rpcError)
	}
	return true, nil
}

// Listen opens the stream and handles incoming connections.
func (n *NetworkTransport) Listen() {
	for {
		conn, err := n.stream.Accept()
		if err != nil {
			if n.IsShutdown() {
				return
			}
			n.logger.WithField("error", err).Error("Failed to accept connection")
			continue
		}
		n.logger.WithFields(logrus.Fields{
			"node": conn.LocalAddr(),
			"from": conn.RemoteAddr(),
		}).Debug("accepted connection")

		go n.handleConn(conn)
	}
}

// handleConn is used to handle an inbound connection for its lifespan.
func (n *NetworkTransport) handleConn(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReaderSize(conn, bufSize)
	w := bufio.NewWriterSize(conn, bufSize)
	dec := codec.NewDecoder(r, wireHandle())
	enc := codec.NewEncoder(w, wireHandle())

	for {
		if err := n.handleCommand(r, dec, enc); err != nil {
			if err != io.EOF && err != ErrTransportShutdown {
				n.logger.WithField("error", err).Error("Failed to decode incoming command")
			}
			return
		}
		if err := w.Flush(); err != nil {
			n.logger.WithField("error", err).Error("Failed to flush response")
			return
		}
	}
}

// handleCommand is used to decode and dispatch a single command.
func (n *NetworkTransport) handleCommand(r *bufio.Reader, dec *codec.Decoder, enc *codec.Encoder) error {
	rpcType, err := r.ReadByte()
	if err != nil {
		return err
	}

	var env envelope
	if err := dec.Decode(&env); err != nil {
		return err
	}
	if !keys.Verify(env.PubKey, append([]byte{rpcType}, env.Body...), env.Sig) {
		return ErrBadEnvelope
	}

	respCh := make(chan RPCResponse, 1)
	rpc := RPC{
		RespChan: respCh,
	}

	decodeBody := func(v interface{}) error {
		return codec.NewDecoderBytes(env.Body, wireHandle()).Decode(v)
	}

	switch rpcType {
	case rpcVersion:
		req := &VersionRequest{}
		if err := decodeBody(req); err != nil {
			return err
		}
		rpc.Command = req
	case rpcPing:
		req := &PingRequest{}
		if err := decodeBody(req); err != nil {
			return err
		}
		rpc.Command = req
	case rpcQueryTx:
		req := &QueryTxRequest{}
		if err := decodeBody(req); err != nil {
			return err
		}
		rpc.Command = req
	case rpcQueryBlock:
		req := &QueryBlockRequest{}
		if err := decodeBody(req); err != nil {
			return err
		}
		rpc.Command = req
	case rpcGetCell:
		req := &GetCellRequest{}
		if err := decodeBody(req); err != nil {
			return err
		}
		rpc.Command = req
	case rpcGetBlock:
		req := &GetBlockRequest{}
		if err := decodeBody(req); err != nil {
			return err
		}
		rpc.Command = req
	case rpcGetAncestors:
		req := &GetAncestorsRequest{}
		if err := decodeBody(req); err != nil {
			return err
		}
		rpc.Command = req
	case rpcGossip:
		req := &GossipRequest{}
		if err := decodeBody(req); err != nil {
			return err
		}
		rpc.Command = req
	default:
		return fmt.Errorf("unknown rpc type %d", rpcType)
	}

	select {
	case n.consumeCh <- rpc:
	case <-n.shutdownCh:
		return ErrTransportShutdown
	}

	select {
	case resp := <-respCh:
		respErr := ""
		if resp.Error != nil {
			respErr = resp.Error.Error()
		}
		if err := enc.Encode(respErr); err != nil {
			return err
		}
		if err := enc.Encode(resp.Response); err != nil {
			return err
		}
	case <-n.shutdownCh:
		return ErrTransportShutdown
	}

	return nil
}
