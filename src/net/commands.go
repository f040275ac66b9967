package net

import (
	"github.com/frostnetworks/frost/src/alpha"
	"github.com/frostnetworks/frost/src/common"
	"github.com/frostnetworks/frost/src/crypto"
	"github.com/frostnetworks/frost/src/peers"
	"github.com/frostnetworks/frost/src/sleet"
)

// VersionRequest is the handshake: it announces the sender's identity,
// software version and current committee epoch.
type VersionRequest struct {
	From     peers.ID
	FromAddr string
	Version  string
	Epoch    uint64
}

// VersionResponse acknowledges the handshake.
type VersionResponse struct {
	From    peers.ID
	Version string
	Epoch   uint64
}

// PingRequest asks the target to report its opinion of up to k-ice subject
// peers, in order.
type PingRequest struct {
	From     peers.ID
	FromAddr string
	Queries  []peers.ID
}

// PingResponse carries the outcomes in the same order as the queries.
type PingResponse struct {
	From     peers.ID
	Outcomes []common.Choice
}

// QueryTxRequest asks whether a transaction is strongly preferred. The full
// transaction is carried so the receiver can insert unseen transactions.
type QueryTxRequest struct {
	From     peers.ID
	FromAddr string
	Tx       *sleet.Tx
}

// QueryTxResponse answers a transaction query.
type QueryTxResponse struct {
	From              peers.ID
	TxHash            crypto.Hash
	StronglyPreferred bool
}

// QueryBlockRequest asks whether a block is strongly preferred.
type QueryBlockRequest struct {
	From     peers.ID
	FromAddr string
	Block    *alpha.Block
}

// QueryBlockResponse answers a block query.
type QueryBlockResponse struct {
	From              peers.ID
	BlockHash         crypto.Hash
	StronglyPreferred bool
}

// GetCellRequest fetches a transaction by cell hash, for gap-filling.
type GetCellRequest struct {
	ID crypto.Hash
}

// GetCellResponse returns the transaction, or nil if unknown.
type GetCellResponse struct {
	Tx *sleet.Tx
}

// GetBlockRequest fetches a block by hash, for gap-filling.
type GetBlockRequest struct {
	ID crypto.Hash
}

// GetBlockResponse returns the block, or nil if unknown.
type GetBlockResponse struct {
	Block *alpha.Block
}

// GetAncestorsRequest fetches the known ancestry of a transaction.
type GetAncestorsRequest struct {
	TxHash crypto.Hash
}

// GetAncestorsResponse returns the ancestry, oldest last.
type GetAncestorsResponse struct {
	Ancestors []*sleet.Tx
}

// GossipRequest pushes cells and blocks unsolicited.
type GossipRequest struct {
	From     peers.ID
	FromAddr string
	Cells    []*sleet.Tx
	Blocks   []*alpha.Block
}

// GossipResponse acknowledges a gossip push.
type GossipResponse struct {
	From peers.ID
}
