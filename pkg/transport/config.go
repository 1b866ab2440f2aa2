// Package transport implements the per-agent framed, chunked
// request/response stream over NATS: connection setup with mutual TLS,
// large-value chunking, and the keepalive/inactivity timers that detect a
// dead peer without requiring round-trips.
package transport

import (
	"crypto/tls"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/wayneeseguin/convergent/internal/cerrors"
	"github.com/wayneeseguin/convergent/log"
)

// Config describes how to reach and authenticate to the NATS backbone a
// controller/agent pair communicates over.
type Config struct {
	URL string

	ConnectTimeout time.Duration
	MaxReconnects  int
	ReconnectWait  time.Duration

	TLS                bool
	CertFile           string
	KeyFile            string
	CAFile             string
	InsecureSkipVerify bool
}

// DefaultConfig returns sane defaults for the connect timeout and
// reconnect behavior, leaving URL/TLS fields for the caller to fill in.
func DefaultConfig(url string) Config {
	return Config{
		URL:            url,
		ConnectTimeout: 5 * time.Second,
		MaxReconnects:  -1, // retry indefinitely; the inactivity timer is
		                    // the layer that decides a peer is dead.
		ReconnectWait:  time.Second,
	}
}

// Connect opens a NATS connection using cfg, applying mutual TLS when
// cfg.TLS is set.
func Connect(cfg Config) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Timeout(cfg.ConnectTimeout),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.DEBUG("transport disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.DEBUG("transport reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.WARN("transport error: %v", err)
		}),
	}

	if cfg.TLS {
		tlsConfig := &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		}
		if cfg.CertFile != "" && cfg.KeyFile != "" {
			cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
			if err != nil {
				return nil, cerrors.Wrap(cerrors.Fatal, "loading client certificate", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}
		if cfg.CAFile != "" {
			opts = append(opts, nats.RootCAs(cfg.CAFile))
		}
		opts = append(opts, nats.Secure(tlsConfig))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.Transient, "connecting to transport backbone", err)
	}
	return conn, nil
}
