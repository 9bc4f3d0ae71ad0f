package target

import (
	"context"
	"sync"
)

// Shared hands out one underlying connection to every caller. Handles ignore
// Close; the connection is dropped after a connection-level failure and
// reopened on the next Connect.
type Shared struct {
	inner Connector

	mu   sync.Mutex
	conn Conn
}

func NewShared(inner Connector) *Shared {
	return &Shared{inner: inner}
}

func (s *Shared) Connect(ctx context.Context) (Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		conn, err := s.inner.Connect(ctx)
		if err != nil {
			return nil, err
		}
		s.conn = conn
	}
	return &sharedHandle{owner: s, conn: s.conn}, nil
}

// Close releases the underlying connection.
func (s *Shared) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

func (s *Shared) discard(conn Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == conn {
		_ = s.conn.Close()
		s.conn = nil
	}
}

type sharedHandle struct {
	owner *Shared
	conn  Conn
}

func (h *sharedHandle) Query(ctx context.Context, text string) (int, error) {
	n, err := h.conn.Query(ctx, text)
	if err != nil && IsConnectionFailure(err) {
		h.owner.discard(h.conn)
	}
	return n, err
}

func (h *sharedHandle) Close() error {
	return nil
}
