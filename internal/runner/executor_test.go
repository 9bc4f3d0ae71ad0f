package runner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"loadceiling/internal/target"
)

type fakeConn struct {
	rows     int
	delay    time.Duration
	queryErr error
	closeErr error

	queried *atomic.Int32
	closed  *atomic.Int32
}

func (c *fakeConn) Query(ctx context.Context, _ string) (int, error) {
	c.queried.Add(1)
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if c.queryErr != nil {
		return 0, c.queryErr
	}
	return c.rows, nil
}

func (c *fakeConn) Close() error {
	c.closed.Add(1)
	return c.closeErr
}

type fakeConnector struct {
	connectErr error
	conn       fakeConn

	connects atomic.Int32
	queried  atomic.Int32
	closed   atomic.Int32
}

func (f *fakeConnector) Connect(ctx context.Context) (target.Conn, error) {
	f.connects.Add(1)
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	c := f.conn
	c.queried = &f.queried
	c.closed = &f.closed
	return &c, nil
}

func TestExecute_Success(t *testing.T) {
	fc := &fakeConnector{conn: fakeConn{rows: 7, delay: 5 * time.Millisecond}}
	e := NewExecutor(fc, time.Second, time.Second, zaptest.NewLogger(t))

	out := e.Execute(context.Background(), "top_brands", "SELECT 1")

	assert.Equal(t, StatusSuccess, out.Status)
	assert.True(t, out.Success())
	assert.Equal(t, "top_brands", out.QueryName)
	assert.Equal(t, 7, out.Rows)
	assert.Empty(t, out.Err)
	assert.GreaterOrEqual(t, out.Duration, 5*time.Millisecond)
	assert.Equal(t, int32(1), fc.closed.Load())
}

func TestExecute_ConnectFailureSkipsQuery(t *testing.T) {
	fc := &fakeConnector{connectErr: &target.ConnectError{Addr: "db:9000", Err: errors.New("refused")}}
	e := NewExecutor(fc, time.Second, time.Second, zaptest.NewLogger(t))

	out := e.Execute(context.Background(), "q", "SELECT 1")

	assert.Equal(t, StatusConnectionFailure, out.Status)
	assert.Equal(t, "connect db:9000: refused", out.Err)
	assert.Zero(t, out.Duration)
	assert.Zero(t, out.Rows)
	assert.Zero(t, fc.queried.Load())
	assert.Zero(t, fc.closed.Load())
}

func TestExecute_QueryFailure(t *testing.T) {
	fc := &fakeConnector{conn: fakeConn{queryErr: errors.New("code: 62, Syntax error")}}
	e := NewExecutor(fc, time.Second, time.Second, zaptest.NewLogger(t))

	out := e.Execute(context.Background(), "q", "SELEC 1")

	assert.Equal(t, StatusQueryFailure, out.Status)
	assert.Equal(t, "code: 62, Syntax error", out.Err)
	assert.Zero(t, out.Duration)
	assert.Zero(t, out.Rows)
	assert.Equal(t, int32(1), fc.closed.Load())
}

func TestExecute_ResetDuringQueryIsConnectionFailure(t *testing.T) {
	fc := &fakeConnector{conn: fakeConn{queryErr: errors.New("read: connection reset by peer")}}
	e := NewExecutor(fc, time.Second, time.Second, zaptest.NewLogger(t))

	out := e.Execute(context.Background(), "q", "SELECT 1")

	assert.Equal(t, StatusConnectionFailure, out.Status)
	assert.Equal(t, int32(1), fc.closed.Load())
}

func TestExecute_IOTimeoutSurfacesAsFailure(t *testing.T) {
	fc := &fakeConnector{conn: fakeConn{delay: time.Minute}}
	e := NewExecutor(fc, time.Second, 20*time.Millisecond, zaptest.NewLogger(t))

	start := time.Now()
	out := e.Execute(context.Background(), "q", "SELECT sleep(60)")

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, StatusQueryFailure, out.Status)
	assert.Contains(t, out.Err, "deadline exceeded")
	assert.Equal(t, int32(1), fc.closed.Load())
}

func TestExecute_CloseErrorIsSwallowed(t *testing.T) {
	fc := &fakeConnector{conn: fakeConn{rows: 1, closeErr: errors.New("already closed")}}
	e := NewExecutor(fc, time.Second, time.Second, zaptest.NewLogger(t))

	out := e.Execute(context.Background(), "q", "SELECT 1")

	assert.Equal(t, StatusSuccess, out.Status)
	assert.Empty(t, out.Err)
}

func TestExecute_FreshConnectionPerCall(t *testing.T) {
	fc := &fakeConnector{conn: fakeConn{rows: 1}}
	e := NewExecutor(fc, time.Second, time.Second, nil)

	for i := 0; i < 4; i++ {
		require.True(t, e.Execute(context.Background(), "q", "SELECT 1").Success())
	}

	assert.Equal(t, int32(4), fc.connects.Load())
	assert.Equal(t, int32(4), fc.closed.Load())
}
