package transport

import (
	"crypto/tls"
	"crypto/x509"
	"net"
	"os"

	"github.com/kprime/fixengine/fixerr"
)

// wrapClientTLS performs the handshake for an initiator connection (spec
// §4.3 "TLS"). Uses stdlib crypto/tls: no third-party TLS stack appears
// in the example pack for certificate loading (see DESIGN.md).
func wrapClientTLS(conn net.Conn, cfg Config) (net.Conn, error) {
	tlsCfg := &tls.Config{InsecureSkipVerify: !cfg.VerifyPeer}

	if cfg.VerifyPeer && cfg.CAFile != "" {
		pool, err := loadCAPool(cfg.CAFile)
		if err != nil {
			return nil, err
		}
		tlsCfg.RootCAs = pool
	}
	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fixerr.Wrap(fixerr.KindTransport, "load client certificate", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	tlsConn := tls.Client(conn, tlsCfg)
	if err := tlsConn.Handshake(); err != nil {
		return nil, fixerr.Wrap(fixerr.KindTransport, "TLS handshake", err)
	}
	return tlsConn, nil
}

// wrapServerTLS performs the handshake for an acceptor connection,
// requiring and validating the client certificate when VerifyPeer is set
// (spec §4.3).
func wrapServerTLS(conn net.Conn, cfg Config) (net.Conn, error) {
	if cfg.CertFile == "" || cfg.KeyFile == "" {
		return nil, fixerr.TransportErr("acceptor TLS requires cert_file and key_file")
	}
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fixerr.Wrap(fixerr.KindTransport, "load server certificate", err)
	}

	tlsCfg := &tls.Config{Certificates: []tls.Certificate{cert}}
	if cfg.VerifyPeer {
		tlsCfg.ClientAuth = tls.RequireAndVerifyClientCert
		if cfg.CAFile != "" {
			pool, err := loadCAPool(cfg.CAFile)
			if err != nil {
				return nil, err
			}
			tlsCfg.ClientCAs = pool
		}
	}

	tlsConn := tls.Server(conn, tlsCfg)
	if err := tlsConn.Handshake(); err != nil {
		return nil, fixerr.Wrap(fixerr.KindTransport, "TLS handshake", err)
	}
	return tlsConn, nil
}

func loadCAPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fixerr.Wrap(fixerr.KindTransport, "read ca_file", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fixerr.TransportErr("ca_file contains no usable certificates")
	}
	return pool, nil
}
