package net

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"time"

	"github.com/frostnetworks/frost/src/peers"
)

var errNoPeerCertificate = errors.New("peer presented no certificate")

// TLSStreamLayer implements the StreamLayer interface over mutually
// authenticated TLS. Certificates are self-signed and no certificate
// authority is involved; the authoritative peer identity is the hash of the
// certificate's public key (see PeerIDFromState). The stream layer does not
// compare that identity with the one a peer claims in its messages.
type TLSStreamLayer struct {
	advertise string
	listener  net.Listener
	config    *tls.Config
}

// Dial implements the StreamLayer interface.
func (t *TLSStreamLayer) Dial(address string, timeout time.Duration) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: timeout}
	return tls.DialWithDialer(dialer, "tcp", address, t.config)
}

// Accept implements the net.Listener interface.
func (t *TLSStreamLayer) Accept() (c net.Conn, err error) {
	return t.listener.Accept()
}

// Close implements the net.Listener interface.
func (t *TLSStreamLayer) Close() (err error) {
	return t.listener.Close()
}

// Addr implements the net.Listener interface.
func (t *TLSStreamLayer) Addr() net.Addr {
	return t.listener.Addr()
}

// AdvertiseAddr implements the StreamLayer interface.
func (t *TLSStreamLayer) AdvertiseAddr() string {
	if t.advertise != "" {
		return t.advertise
	}
	return t.listener.Addr().String()
}

// TLSConfig builds the mutual-auth TLS configuration. Certificate chains are
// not verified against a CA; peers are self-signed and identified by the
// hash of their certificate public key.
func TLSConfig(cert tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates:       []tls.Certificate{cert},
		ClientAuth:         tls.RequireAnyClientCert,
		InsecureSkipVerify: true,
		MinVersion:         tls.VersionTLS13,
	}
}

// PeerIDFromState derives the authoritative peer identity from a TLS
// connection state: base58(blake3(cert SPKI)).
func PeerIDFromState(state tls.ConnectionState) (peers.ID, error) {
	if len(state.PeerCertificates) == 0 {
		return peers.ID{}, errNoPeerCertificate
	}
	return peers.NewID(state.PeerCertificates[0].RawSubjectPublicKeyInfo), nil
}

// LoadOrGenerateCert loads a PEM certificate/key pair from disk, generating
// a self-signed ed25519 certificate if either file is missing.
func LoadOrGenerateCert(certPath, keyPath string) (tls.Certificate, error) {
	_, certErr := os.Stat(certPath)
	_, keyErr := os.Stat(keyPath)
	if certErr == nil && keyErr == nil {
		return tls.LoadX509KeyPair(certPath, keyPath)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, err
	}
	template := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "frost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().AddDate(10, 0, 0),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, pub, priv)
	if err != nil {
		return tls.Certificate{}, err
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})

	if certPath != "" && keyPath != "" {
		if err := os.WriteFile(certPath, certPEM, 0644); err != nil {
			return tls.Certificate{}, fmt.Errorf("writing certificate: %w", err)
		}
		if err := os.WriteFile(keyPath, keyPEM, 0600); err != nil {
			return tls.Certificate{}, fmt.Errorf("writing key: %w", err)
		}
	}

	return tls.X509KeyPair(certPEM, keyPEM)
}
