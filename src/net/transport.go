package net

// Transport provides an interface for network transports to allow a node to
// communicate with other nodes.
type Transport interface {

	// Listen starts the transport listening for inbound requests.
	Listen()

	// Consumer returns a channel that can be used to consume and respond
	// to inbound RPC requests.
	Consumer() <-chan RPC

	// LocalAddr is used to return our local address.
	LocalAddr() string

	// The following send the corresponding request to the target node and
	// block until the response arrives or the transport timeout fires.

	Version(target string, args *VersionRequest, resp *VersionResponse) error

	Ping(target string, args *PingRequest, resp *PingResponse) error

	QueryTx(target string, args *QueryTxRequest, resp *QueryTxResponse) error

	QueryBlock(target string, args *QueryBlockRequest, resp *QueryBlockResponse) error

	GetCell(target string, args *GetCellRequest, resp *GetCellResponse) error

	GetBlock(target string, args *GetBlockRequest, resp *GetBlockResponse) error

	GetAncestors(target string, args *GetAncestorsRequest, resp *GetAncestorsResponse) error

	Gossip(target string, args *GossipRequest, resp *GossipResponse) error

	// Close permanently closes a transport, stopping any associated
	// goroutines and freeing other resources.
	Close() error
}
