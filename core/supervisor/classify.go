package supervisor

import (
	"errors"
	"time"

	"github.com/nimbusiot/deviceclient/core/backoff"
	"github.com/nimbusiot/deviceclient/core/model"
)

// classify recovers the *TransportError a Transport implementation wrapped
// around its own library error. A Transport that returns a bare error
// (not classified) is treated as an unknown, fatal failure.
func classify(err error) *TransportError {
	var te *TransportError
	if errors.As(err, &te) {
		return te
	}
	return &TransportError{Code: ReasonCodeOther, Cause: CauseNone, Err: err}
}

// isRetryable implements the error classification table: a failure is
// retryable if it is a server-connect-error, write-timeout,
// client-not-connected, or client-timeout; or a client-exception caused by
// an unknown host; or a connection-lost caused by EOF while run is still
// true.
func isRetryable(te TransportError, run bool) bool {
	switch te.Code {
	case ReasonCodeServerConnectError, ReasonCodeWriteTimeout, ReasonCodeClientNotConnected, ReasonCodeClientTimeout:
		return true
	case ReasonCodeClientException:
		return te.Cause == CauseUnknownHost
	case ReasonCodeConnectionLost:
		return te.Cause == CauseEOF && run
	default:
		return false
	}
}

// mapDisconnectReason implements the disconnect-reason mapping table.
func mapDisconnectReason(te TransportError, run bool) model.DisconnectReason {
	switch te.Code {
	case ReasonCodeFailedAuth, ReasonCodeNotAuthorized:
		return model.ReasonNotAuthorized
	case ReasonCodeConnectionLost:
		switch te.Cause {
		case CauseEOF:
			if run {
				return model.ReasonConnectionLost
			}
			return model.ReasonClientClosed
		case CauseTLS:
			return model.ReasonConnectionLost
		}
		return model.ReasonUnknown
	case ReasonCodeClientException:
		switch te.Cause {
		case CauseSocketTimeout:
			return model.ReasonConnectionTimeout
		case CauseUnknownHost:
			return model.ReasonConnectionLost
		}
		return model.ReasonUnknown
	case ReasonCodeClientTimeout, ReasonCodeWriteTimeout:
		return model.ReasonConnectionTimeout
	default:
		return model.ReasonUnknown
	}
}

// sleepBackoff sleeps for the backoff's next interval. The sleep is a plain
// timer wait: since nothing in this process delivers spurious wakeups to a
// blocked goroutine, no monotonic-deadline recomputation is needed here.
func sleepBackoff(b *backoff.Bounded) {
	time.Sleep(b.Next())
}
