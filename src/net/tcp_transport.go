package net

import (
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/frostnetworks/frost/src/crypto/keys"
)

// NewTCPTransport creates a NetworkTransport listening on bindAddr over
// plain TCP.
func NewTCPTransport(
	bindAddr string,
	advertise string,
	key *keys.KeyPair,
	maxPool int,
	timeout time.Duration,
	logger *logrus.Entry,
) (*NetworkTransport, error) {
	list, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}

	stream := &TCPStreamLayer{
		advertise: advertise,
		listener:  list.(*net.TCPListener),
	}

	if advertise == "" {
		addr, ok := stream.Addr().(*net.TCPAddr)
		if !ok {
			list.Close()
			return nil, errNotTCP
		}
		if addr.IP.IsUnspecified() {
			list.Close()
			return nil, errNotAdvertisable
		}
	}

	return NewNetworkTransport(stream, key, maxPool, timeout, logger), nil
}
