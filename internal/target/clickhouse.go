package target

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ClickHouseOptions configures the native-protocol client.
type ClickHouseOptions struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string

	ConnectTimeout time.Duration
	IOTimeout      time.Duration

	// MaxOpenConns bounds the client's internal pool. Fresh connections use 1.
	MaxOpenConns int
}

// ClickHouse opens native-protocol connections.
type ClickHouse struct {
	opts ClickHouseOptions
	open func(*clickhouse.Options) (driver.Conn, error)
}

func NewClickHouse(opts ClickHouseOptions) *ClickHouse {
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 1
	}
	return &ClickHouse{opts: opts, open: clickhouse.Open}
}

func (c *ClickHouse) Addr() string {
	return net.JoinHostPort(c.opts.Host, strconv.Itoa(c.opts.Port))
}

func (c *ClickHouse) clientOptions() *clickhouse.Options {
	return &clickhouse.Options{
		Addr: []string{c.Addr()},
		Auth: clickhouse.Auth{
			Database: c.opts.Database,
			Username: c.opts.User,
			Password: c.opts.Password,
		},
		DialTimeout:  c.opts.ConnectTimeout,
		ReadTimeout:  c.opts.IOTimeout,
		MaxOpenConns: c.opts.MaxOpenConns,
		MaxIdleConns: c.opts.MaxOpenConns,
	}
}

// Connect opens a client and pings it, so that establishment failures are
// reported here and not by the first query.
func (c *ClickHouse) Connect(ctx context.Context) (Conn, error) {
	conn, err := c.open(c.clientOptions())
	if err != nil {
		return nil, &ConnectError{Addr: c.Addr(), Err: err}
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, &ConnectError{Addr: c.Addr(), Err: err}
	}
	return &clickhouseConn{conn: conn}, nil
}

type clickhouseConn struct {
	conn driver.Conn
}

func (c *clickhouseConn) Query(ctx context.Context, text string) (int, error) {
	rows, err := c.conn.Query(ctx, text)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		n++
	}
	return n, rows.Err()
}

func (c *clickhouseConn) Close() error {
	return c.conn.Close()
}
