// Package target defines the contract a query-serving database client must
// satisfy to be load tested, and the ClickHouse implementation of it.
package target

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
)

// Connector opens connections to the service under test.
type Connector interface {
	Connect(ctx context.Context) (Conn, error)
}

// Conn is a single connection. Query runs text to completion and returns the
// number of rows in the result.
type Conn interface {
	Query(ctx context.Context, text string) (int, error)
	Close() error
}

// Policy controls whether connections are reused across units of work.
type Policy string

const (
	// PolicyFresh opens a new connection for every query and closes it after.
	PolicyFresh Policy = "fresh"
	// PolicyShared reuses one long-lived client for all queries.
	PolicyShared Policy = "shared"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyFresh, "":
		return PolicyFresh, nil
	case PolicyShared:
		return PolicyShared, nil
	default:
		return "", fmt.Errorf("unknown connection policy %q (want fresh or shared)", s)
	}
}

// ConnectError reports that a connection could not be established.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

var connectionMarkers = []string{"connect", "reset", "broken pipe"}

// IsConnectionFailure reports whether err means the connection itself failed
// (never established, refused, reset or closed under us) rather than the query.
func IsConnectionFailure(err error) bool {
	if err == nil {
		return false
	}

	var ce *ConnectError
	if errors.As(err, &ce) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range connectionMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
