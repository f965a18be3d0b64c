package nodeclient

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// TLSConfig builds the client TLS config for a wss:// node.
// A non-empty caCertPEM replaces the system roots, and a cert and key pair enables mTLS.
func TLSConfig(caCertPEM, certPEM, keyPEM []byte) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}

	if len(caCertPEM) > 0 {
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCertPEM) {
			return nil, errors.New("no certificates found in CA cert PEM")
		}
		cfg.RootCAs = caCertPool
	}

	if len(certPEM) > 0 || len(keyPEM) > 0 {
		cert, err := tls.X509KeyPair(certPEM, keyPEM)
		if err != nil {
			return nil, fmt.Errorf("parsing client key pair: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

// LoadTLSConfig is TLSConfig with the PEM blocks read from files. Empty paths are skipped.
func LoadTLSConfig(caCertFile, certFile, keyFile string) (*tls.Config, error) {
	var pems [3][]byte
	for i, path := range []string{caCertFile, certFile, keyFile} {
		if path == "" {
			continue
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		pems[i] = b
	}
	return TLSConfig(pems[0], pems[1], pems[2])
}
