package collab

import (
	"errors"
)

// ConnID identifies one live connection. It is assigned when the connection is accepted.
type ConnID string

var (
	// ErrSenderClosed is returned by a Sender after Close.
	ErrSenderClosed = errors.New("connection closed")

	// ErrSendQueueFull is returned by a Sender that cannot take more frames without blocking.
	ErrSendQueueFull = errors.New("send queue full")
)

// Sender is the transport endpoint of a connection, owned by the transport.
// TrySend must not block and must return an error rather than panic once the endpoint is
// closed. Close must be idempotent.
type Sender interface {
	TrySend(frame []byte) error
	Close()
}

// fanout delivers encoded frames to registered connections.
type fanout struct {
	registry *Registry

	// onFailure is told about connections whose send failed.
	onFailure func(ConnID)
}

// deliver sends frame to id. Connections that are no longer registered are skipped
// silently; a failed send hands the connection to onFailure for teardown. It reports
// whether the frame was queued.
func (f *fanout) deliver(id ConnID, frame []byte) bool {
	sender, ok := f.registry.Sender(id)
	if !ok {
		return false
	}

	if err := sender.TrySend(frame); err != nil {
		if f.onFailure != nil {
			f.onFailure(id)
		}
		return false
	}

	return true
}
