package quic

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"math/big"
	"net"
	"sync"
	"time"

	quicgo "github.com/quic-go/quic-go"

	"github.com/moffa90/go-mcumgr/logging"
	"github.com/moffa90/go-mcumgr/transport"
)

// Gateway accepts tunnel clients and relays their frames to a local link.
// One client is served at a time; a new client replaces the previous one.
type Gateway struct {
	link     transport.Transport
	listener *quicgo.Listener
	log      logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Listen starts a gateway on addr relaying to link. A nil tlsConf uses a
// generated self-signed certificate.
func Listen(addr string, tlsConf *tls.Config, link transport.Transport, log logging.Logger) (*Gateway, error) {
	if tlsConf == nil {
		var err error
		tlsConf, err = GenerateTLSConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to generate TLS config: %w", err)
		}
	}

	listener, err := quicgo.ListenAddr(addr, tlsConf, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	g := &Gateway{
		link:     link,
		listener: listener,
		log:      logging.Component(log, "quic-gateway"),
		ctx:      ctx,
		cancel:   cancel,
	}

	g.wg.Add(1)
	go g.acceptLoop()
	return g, nil
}

// Addr returns the listening address.
func (g *Gateway) Addr() net.Addr {
	return g.listener.Addr()
}

// Close stops accepting, drops the current client and disconnects the link.
func (g *Gateway) Close() error {
	g.cancel()
	err := g.listener.Close()
	g.wg.Wait()
	g.link.Disconnect()
	return err
}

func (g *Gateway) acceptLoop() {
	defer g.wg.Done()

	for {
		conn, err := g.listener.Accept(g.ctx)
		if err != nil {
			if g.ctx.Err() != nil {
				return
			}
			g.log.Warn("accept failed", "error", err)
			continue
		}
		g.serve(conn)
	}
}

func (g *Gateway) serve(conn *quicgo.Conn) {
	defer conn.CloseWithError(0, "session ended")

	stream, err := conn.AcceptStream(g.ctx)
	if err != nil {
		return
	}

	if err := g.link.Connect(g.ctx); err != nil {
		g.log.Error("link connect failed", "error", err)
		conn.CloseWithError(1, "link unavailable")
		return
	}

	var writeMu sync.Mutex
	unsubscribe := g.link.Subscribe(func(frame []byte) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if _, err := stream.Write(frame); err != nil {
			g.log.Debug("client write failed", "error", err)
		}
	})
	defer unsubscribe()

	g.log.Info("client attached", "remote", conn.RemoteAddr().String())

	// Closing the connection when the gateway shuts down unblocks the relay.
	stop := context.AfterFunc(g.ctx, func() { conn.CloseWithError(0, "gateway closed") })
	defer stop()

	err = relayFrames(stream, func(frame []byte) {
		if err := g.link.Send(frame); err != nil {
			g.log.Warn("link send failed", "error", err)
		}
	}, g.log)
	if err != nil && !errors.Is(err, context.Canceled) {
		g.log.Debug("client detached", "error", err)
	}
}

// GenerateTLSConfig returns a server TLS config with a fresh self-signed certificate.
func GenerateTLSConfig() (*tls.Config, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{certDER}, PrivateKey: key}},
		NextProtos:   []string{ALPN},
	}, nil
}
