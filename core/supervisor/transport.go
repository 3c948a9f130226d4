package supervisor

import "fmt"

// ReasonCode classifies why a transport operation (connect, subscribe,
// publish) failed, independent of the underlying transport library's own
// error types.
type ReasonCode int

const (
	ReasonCodeOther ReasonCode = iota
	ReasonCodeServerConnectError
	ReasonCodeWriteTimeout
	ReasonCodeClientNotConnected
	ReasonCodeClientTimeout
	ReasonCodeClientException
	ReasonCodeConnectionLost
	ReasonCodeFailedAuth
	ReasonCodeNotAuthorized
)

// Cause refines a ReasonCode with the underlying network condition that
// produced it, where the transport can tell the difference.
type Cause int

const (
	CauseNone Cause = iota
	CauseUnknownHost
	CauseEOF
	CauseTLS
	CauseSocketTimeout
)

// TransportError is the classified form of a transport-library failure.
// The supervisor only ever inspects Code and Cause; Err is kept for
// logging.
type TransportError struct {
	Code  ReasonCode
	Cause Cause
	Err   error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport error (code=%d cause=%d): %v", e.Code, e.Cause, e.Err)
	}
	return fmt.Sprintf("transport error (code=%d cause=%d)", e.Code, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Transport is the MQTT session the supervisor drives. Implementations
// translate their library's own errors into *TransportError so the
// supervisor's retry classification never depends on a specific library.
type Transport interface {
	// SetCallbacks registers the handlers invoked for asynchronous
	// transport events. It must be called before the first Connect.
	SetCallbacks(onConnectionLost func(*TransportError), onMessage func(topic string, payload []byte))
	// Connect opens the session, authenticating with username/password.
	Connect(username, password string) error
	// Disconnect closes the session gracefully.
	Disconnect()
	// ForceDisconnect closes the session immediately, without waiting for
	// in-flight work to drain.
	ForceDisconnect()
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string) error
	IsConnected() bool
}
