package net

import (
	"crypto/tls"
	"crypto/x509"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/frostnetworks/frost/src/crypto/keys"
	"github.com/frostnetworks/frost/src/peers"
)

// NewTLSTransport creates a NetworkTransport listening on bindAddr over
// mutually authenticated TLS.
func NewTLSTransport(
	bindAddr string,
	advertise string,
	key *keys.KeyPair,
	cert tls.Certificate,
	maxPool int,
	timeout time.Duration,
	logger *logrus.Entry,
) (*NetworkTransport, error) {
	config := TLSConfig(cert)
	listener, err := tls.Listen("tcp", bindAddr, config)
	if err != nil {
		return nil, err
	}

	stream := &TLSStreamLayer{
		advertise: advertise,
		listener:  listener,
		config:    config,
	}

	return NewNetworkTransport(stream, key, maxPool, timeout, logger), nil
}

// NodeID derives the node's own authoritative identity from its TLS
// certificate.
func NodeID(cert tls.Certificate) (peers.ID, error) {
	leaf := cert.Leaf
	if leaf == nil {
		parsed, err := x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return peers.ID{}, err
		}
		leaf = parsed
	}
	return peers.NewID(leaf.RawSubjectPublicKeyInfo), nil
}
