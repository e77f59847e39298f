package transport

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

func newCustomTLSKeyPair(certfile, keyfile string) (*tls.Certificate, error) {
	tlsCert, err := tls.LoadX509KeyPair(certfile, keyfile)
	if err != nil {
		return nil, err
	}
	return &tlsCert, nil
}

// Only support one ca file to add
func newCertPool(caPath string) (*x509.CertPool, error) {
	pool := x509.NewCertPool()

	caCrt, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}

	if !pool.AppendCertsFromPEM(caCrt) {
		return nil, fmt.Errorf("no certificates found in %s", caPath)
	}
	return pool, nil
}

// NewServerTLSConfig loads the listener certificate. A non-empty caPath turns on mutual TLS.
func NewServerTLSConfig(certPath, keyPath, caPath string) (*tls.Config, error) {
	if certPath == "" || keyPath == "" {
		return nil, errors.New("tls: cert and key paths are required")
	}
	cert, err := newCustomTLSKeyPair(certPath, keyPath)
	if err != nil {
		return nil, err
	}
	base := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{*cert},
	}

	if caPath != "" {
		pool, err := newCertPool(caPath)
		if err != nil {
			return nil, err
		}

		base.ClientAuth = tls.RequireAndVerifyClientCert
		base.ClientCAs = pool
	}

	return base, nil
}

// NewClientTLSConfig builds the config used towards https candidates. It returns nil when
// the system defaults apply.
func NewClientTLSConfig(caPath string, insecure bool) (*tls.Config, error) {
	if caPath == "" && !insecure {
		return nil, nil
	}
	base := &tls.Config{MinVersion: tls.VersionTLS12}

	if caPath != "" {
		pool, err := newCertPool(caPath)
		if err != nil {
			return nil, err
		}
		base.RootCAs = pool
	}
	base.InsecureSkipVerify = insecure

	return base, nil
}
