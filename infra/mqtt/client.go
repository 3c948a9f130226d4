// Package mqtt implements the supervisor.Transport contract on top of
// Eclipse Paho, translating the library's own connect/publish/subscribe
// errors and asynchronous callbacks into the reason-code surface the
// connection supervisor consumes.
package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/nimbusiot/deviceclient/core/supervisor"
)

// Config defines the connection parameters for the Paho-backed transport.
// Authentication against Cloud IoT Core uses a constant user name and a
// freshly minted JWT as password on every (re)connect; there is no mutual
// TLS, since the gateway only requires a server certificate.
type Config struct {
	Broker        string
	ClientID      string
	UseTLS        bool
	CABundle      string
	TLSConfig     *tls.Config
	ConnectTimeout time.Duration
	KeepAlive     time.Duration
}

// pahoClient is the subset of paho.Client this package depends on, so tests
// can substitute a double without dialing a broker.
type pahoClient interface {
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	IsConnected() bool
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// PahoTransport implements supervisor.Transport using Eclipse Paho.
type PahoTransport struct {
	cfg Config

	mu               sync.Mutex
	cli              pahoClient
	onConnectionLost func(*supervisor.TransportError)
	onMessage        func(topic string, payload []byte)
}

// NewPahoTransport validates cfg and returns a transport ready for
// SetCallbacks/Connect. It does not dial the broker.
func NewPahoTransport(cfg Config) (*PahoTransport, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt: broker is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("mqtt: client id is required")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 30 * time.Second
	}
	return &PahoTransport{cfg: cfg}, nil
}

// LoadTLSConfig returns cfg.TLSConfig when it is set. Otherwise it builds a
// tls.Config trusting only the CA bundle named by cfg.CABundle, or the
// system roots when CABundle is empty. GCP IoT Core presents a server
// certificate only; the device never presents a client certificate.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.CABundle == "" {
		return &tls.Config{MinVersion: tls.VersionTLS12}, nil
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("mqtt: read ca bundle: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caBytes) {
		return nil, fmt.Errorf("mqtt: ca bundle %s contains no usable certificates", c.CABundle)
	}
	return &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// SetCallbacks registers the handlers the supervisor uses for asynchronous
// transport events. It must be called before the first Connect.
func (t *PahoTransport) SetCallbacks(onConnectionLost func(*supervisor.TransportError), onMessage func(topic string, payload []byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onConnectionLost = onConnectionLost
	t.onMessage = onMessage
}

// Connect builds fresh ClientOptions carrying username/password and opens
// the session. Paho's CredentialsProvider is not used here because the
// supervisor already mints a new token before every call to Connect; the
// password for this one connection attempt is simply passed through.
func (t *PahoTransport) Connect(username, password string) error {
	opts := paho.NewClientOptions().
		AddBroker(t.cfg.Broker).
		SetClientID(t.cfg.ClientID).
		SetUsername(username).
		SetPassword(password).
		SetProtocolVersion(4). // MQTT 3.1.1
		SetConnectTimeout(t.cfg.ConnectTimeout).
		SetKeepAlive(t.cfg.KeepAlive).
		SetAutoReconnect(false). // the supervisor owns reconnect/backoff
		SetCleanSession(true)

	if t.cfg.UseTLS {
		tlsCfg, err := t.cfg.LoadTLSConfig()
		if err != nil {
			return &supervisor.TransportError{Code: supervisor.ReasonCodeClientException, Cause: supervisor.CauseTLS, Err: err}
		}
		opts.SetTLSConfig(tlsCfg)
	}

	opts.SetDefaultPublishHandler(func(_ paho.Client, msg paho.Message) {
		t.dispatchMessage(msg.Topic(), msg.Payload())
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		t.dispatchConnectionLost(classifyPahoError(err))
	})

	cli := newMQTTClient(opts)
	token := cli.Connect()
	if !token.WaitTimeout(t.cfg.ConnectTimeout) {
		return &supervisor.TransportError{Code: supervisor.ReasonCodeClientTimeout, Err: fmt.Errorf("mqtt: connect timed out")}
	}
	if err := token.Error(); err != nil {
		return classifyPahoError(err)
	}

	t.mu.Lock()
	t.cli = cli
	t.mu.Unlock()
	return nil
}

// Disconnect closes the session gracefully, waiting briefly for in-flight
// work to drain.
func (t *PahoTransport) Disconnect() {
	t.mu.Lock()
	cli := t.cli
	t.mu.Unlock()
	if cli != nil {
		cli.Disconnect(250)
	}
}

// ForceDisconnect closes the session immediately.
func (t *PahoTransport) ForceDisconnect() {
	t.mu.Lock()
	cli := t.cli
	t.mu.Unlock()
	if cli != nil {
		cli.Disconnect(0)
	}
}

func (t *PahoTransport) Publish(topic string, payload []byte, qos byte, retained bool) error {
	t.mu.Lock()
	cli := t.cli
	t.mu.Unlock()
	if cli == nil || !cli.IsConnected() {
		return &supervisor.TransportError{Code: supervisor.ReasonCodeClientNotConnected, Err: fmt.Errorf("mqtt: not connected")}
	}
	token := cli.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(t.cfg.ConnectTimeout) {
		return &supervisor.TransportError{Code: supervisor.ReasonCodeWriteTimeout, Err: fmt.Errorf("mqtt: publish timed out")}
	}
	if err := token.Error(); err != nil {
		return classifyPahoError(err)
	}
	return nil
}

func (t *PahoTransport) Subscribe(topic string) error {
	t.mu.Lock()
	cli := t.cli
	t.mu.Unlock()
	if cli == nil || !cli.IsConnected() {
		return &supervisor.TransportError{Code: supervisor.ReasonCodeClientNotConnected, Err: fmt.Errorf("mqtt: not connected")}
	}
	token := cli.Subscribe(topic, 1, func(_ paho.Client, msg paho.Message) {
		t.dispatchMessage(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(t.cfg.ConnectTimeout) {
		return &supervisor.TransportError{Code: supervisor.ReasonCodeClientTimeout, Err: fmt.Errorf("mqtt: subscribe timed out")}
	}
	if err := token.Error(); err != nil {
		return classifyPahoError(err)
	}
	return nil
}

func (t *PahoTransport) IsConnected() bool {
	t.mu.Lock()
	cli := t.cli
	t.mu.Unlock()
	return cli != nil && cli.IsConnected()
}

func (t *PahoTransport) dispatchMessage(topic string, payload []byte) {
	t.mu.Lock()
	cb := t.onMessage
	t.mu.Unlock()
	if cb != nil {
		cb(topic, payload)
	}
}

func (t *PahoTransport) dispatchConnectionLost(te *supervisor.TransportError) {
	t.mu.Lock()
	cb := t.onConnectionLost
	t.mu.Unlock()
	if cb != nil {
		cb(te)
	}
}

// classifyPahoError maps a Paho/network error into the supervisor's
// reason-code surface. Paho itself does not expose typed errors, so this
// relies on matching the underlying net package's own error types and a
// handful of known Paho error strings.
func classifyPahoError(err error) *supervisor.TransportError {
	if err == nil {
		return &supervisor.TransportError{Code: supervisor.ReasonCodeOther}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &supervisor.TransportError{Code: supervisor.ReasonCodeClientException, Cause: supervisor.CauseSocketTimeout, Err: err}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &supervisor.TransportError{Code: supervisor.ReasonCodeClientException, Cause: supervisor.CauseUnknownHost, Err: err}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "not authorized"):
		return &supervisor.TransportError{Code: supervisor.ReasonCodeNotAuthorized, Err: err}
	case strings.Contains(msg, "bad user name or password"), strings.Contains(msg, "not authorised"):
		return &supervisor.TransportError{Code: supervisor.ReasonCodeFailedAuth, Err: err}
	case strings.Contains(msg, "tls"), strings.Contains(msg, "x509"), strings.Contains(msg, "certificate"):
		return &supervisor.TransportError{Code: supervisor.ReasonCodeConnectionLost, Cause: supervisor.CauseTLS, Err: err}
	case strings.Contains(msg, "eof"):
		return &supervisor.TransportError{Code: supervisor.ReasonCodeConnectionLost, Cause: supervisor.CauseEOF, Err: err}
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "network is unreachable"), strings.Contains(msg, "no route to host"):
		return &supervisor.TransportError{Code: supervisor.ReasonCodeServerConnectError, Err: err}
	case strings.Contains(msg, "not connected"):
		return &supervisor.TransportError{Code: supervisor.ReasonCodeClientNotConnected, Err: err}
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return &supervisor.TransportError{Code: supervisor.ReasonCodeClientTimeout, Err: err}
	default:
		return &supervisor.TransportError{Code: supervisor.ReasonCodeOther, Err: err}
	}
}
