package rabbit

import (
	"context"
	"errors"
	"net"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	// ErrConnectionFailed is returned when the broker cannot be reached.
	ErrConnectionFailed = errors.New("rabbit: connection failed")

	// ErrChannelClosed is returned when the channel or connection is gone.
	ErrChannelClosed = errors.New("rabbit: channel closed")

	// ErrAccessDenied is returned for authentication and permission failures.
	ErrAccessDenied = errors.New("rabbit: access denied")

	// ErrNotFound is returned when an exchange or queue does not exist.
	ErrNotFound = errors.New("rabbit: not found")

	// ErrPreconditionFailed is returned when a declaration conflicts with
	// an existing exchange or queue.
	ErrPreconditionFailed = errors.New("rabbit: precondition failed")

	// ErrMessageTooLarge is returned when the broker rejects a message for its size.
	ErrMessageTooLarge = errors.New("rabbit: message too large")

	// ErrPublishNacked is returned when the broker nacks a publish.
	ErrPublishNacked = errors.New("rabbit: publish not confirmed")

	// ErrTimeout is returned when an operation or confirm times out.
	ErrTimeout = errors.New("rabbit: timeout")

	// ErrServer is returned for internal broker errors and resource alarms.
	ErrServer = errors.New("rabbit: server error")
)

// TranslateError maps AMQP, network and context errors to the package
// sentinels. The original error stays in the chain.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}
	kind := classify(err)
	if kind == nil {
		return err
	}
	return errors.Join(kind, err)
}

func classify(err error) error {
	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) {
		switch amqpErr.Code {
		case amqp.AccessRefused:
			return ErrAccessDenied
		case amqp.NotFound, amqp.InvalidPath:
			return ErrNotFound
		case amqp.PreconditionFailed:
			return ErrPreconditionFailed
		case amqp.ContentTooLarge:
			return ErrMessageTooLarge
		case amqp.ConnectionForced, amqp.ChannelError:
			return ErrChannelClosed
		case amqp.InternalError, amqp.ResourceError:
			return ErrServer
		}
	}
	if errors.Is(err, amqp.ErrClosed) {
		return ErrChannelClosed
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrTimeout
		}
		return ErrConnectionFailed
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "no such host"):
		return ErrConnectionFailed
	case strings.Contains(msg, "access_refused"), strings.Contains(msg, "authentication"):
		return ErrAccessDenied
	}
	return nil
}

// IsRetryableError reports whether retrying the operation may succeed.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrConnectionFailed) ||
		errors.Is(err, ErrChannelClosed) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrServer) ||
		errors.Is(err, ErrPublishNacked)
}
