// Package dummy provides an in-process stand-in for a query service, so the
// escalation can be exercised without a database.
package dummy

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync/atomic"
	"time"

	"loadceiling/internal/target"
)

// ServerConfig shapes the simulated service.
type ServerConfig struct {
	MinLatency time.Duration
	MaxLatency time.Duration

	// Probability of a query-level error (0..1)
	QueryFailRate float64
	// Probability of a refused connection below the knee (0..1)
	ConnFailRate float64
	// Above this many open connections every new connection is refused.
	// 0 disables the knee.
	Knee int
	// Probability of a very slow response and how slow it is.
	SpikeRate    float64
	SpikeLatency time.Duration
}

// Presets mirror the classic endpoints of the local test server.
var Presets = map[string]ServerConfig{
	// 10-50ms
	"fast": {MinLatency: 10 * time.Millisecond, MaxLatency: 50 * time.Millisecond},
	// 100-300ms
	"medium": {MinLatency: 100 * time.Millisecond, MaxLatency: 300 * time.Millisecond},
	// 1s-2s, good for timeouts
	"slow": {MinLatency: time.Second, MaxLatency: 2 * time.Second},
	// usually 20ms, 5% of calls take 2s
	"spike": {MinLatency: 20 * time.Millisecond, MaxLatency: 20 * time.Millisecond, SpikeRate: 0.05, SpikeLatency: 2 * time.Second},
	// 20% query errors
	"error": {MinLatency: 10 * time.Millisecond, MaxLatency: 50 * time.Millisecond, QueryFailRate: 0.2},
	// fine until 25 concurrent connections, then refuses
	"overload": {MinLatency: 20 * time.Millisecond, MaxLatency: 80 * time.Millisecond, Knee: 25, ConnFailRate: 0.01},
}

// PresetNames lists the presets in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Preset looks up a preset by name.
func Preset(name string) (ServerConfig, error) {
	cfg, ok := Presets[name]
	if !ok {
		return ServerConfig{}, fmt.Errorf("unknown preset %q (have %v)", name, PresetNames())
	}
	return cfg, nil
}

var (
	errRefused = errors.New("connection refused: too many simultaneous connections")
	errQuery   = errors.New("code: 241, DB::Exception: Memory limit (for query) exceeded")
)

// Server is a target.Connector backed by the simulation.
type Server struct {
	cfg  ServerConfig
	open atomic.Int64

	connects atomic.Int64
	queries  atomic.Int64
}

func Start(cfg ServerConfig) *Server {
	if cfg.MaxLatency < cfg.MinLatency {
		cfg.MaxLatency = cfg.MinLatency
	}
	return &Server{cfg: cfg}
}

func (s *Server) Addr() string {
	return "dummy"
}

// Open returns the number of currently open connections.
func (s *Server) Open() int64 {
	return s.open.Load()
}

// Counts returns how many connections and queries the server has seen.
func (s *Server) Counts() (connects, queries int64) {
	return s.connects.Load(), s.queries.Load()
}

func (s *Server) Connect(ctx context.Context) (target.Conn, error) {
	s.connects.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, &target.ConnectError{Addr: s.Addr(), Err: err}
	}

	n := s.open.Add(1)
	if (s.cfg.Knee > 0 && n > int64(s.cfg.Knee)) || chance(s.cfg.ConnFailRate) {
		s.open.Add(-1)
		return nil, &target.ConnectError{Addr: s.Addr(), Err: errRefused}
	}
	return &conn{server: s}, nil
}

func (s *Server) latency() time.Duration {
	if chance(s.cfg.SpikeRate) {
		return s.cfg.SpikeLatency
	}
	spread := s.cfg.MaxLatency - s.cfg.MinLatency
	if spread <= 0 {
		return s.cfg.MinLatency
	}
	return s.cfg.MinLatency + rand.N(spread)
}

func chance(p float64) bool {
	return p > 0 && rand.Float64() < p
}

type conn struct {
	server *Server
	closed atomic.Bool
}

func (c *conn) Query(ctx context.Context, _ string) (int, error) {
	c.server.queries.Add(1)

	t := time.NewTimer(c.server.latency())
	defer t.Stop()
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-t.C:
	}

	if chance(c.server.cfg.QueryFailRate) {
		return 0, errQuery
	}
	return 1 + rand.IntN(50), nil
}

func (c *conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return errors.New("connection already closed")
	}
	c.server.open.Add(-1)
	return nil
}
