package runner

import (
	"context"
	"time"

	"go.uber.org/zap"

	"loadceiling/internal/target"
)

// Executor runs one query end-to-end on its own connection. It never retries:
// a failed attempt is the final outcome for that unit of work.
type Executor struct {
	connector      target.Connector
	connectTimeout time.Duration
	ioTimeout      time.Duration
	logger         *zap.Logger
}

func NewExecutor(connector target.Connector, connectTimeout, ioTimeout time.Duration, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		connector:      connector,
		connectTimeout: connectTimeout,
		ioTimeout:      ioTimeout,
		logger:         logger,
	}
}

// Execute never returns an error; failures are carried in the outcome.
func (e *Executor) Execute(ctx context.Context, name, text string) QueryOutcome {
	connCtx, cancel := context.WithTimeout(ctx, e.connectTimeout)
	conn, err := e.connector.Connect(connCtx)
	cancel()
	if err != nil {
		e.logger.Debug("connect failed", zap.String("query", name), zap.Error(err))
		return QueryOutcome{
			QueryName: name,
			Status:    StatusConnectionFailure,
			Err:       err.Error(),
		}
	}
	defer func() {
		if err := conn.Close(); err != nil {
			e.logger.Warn("close connection", zap.String("query", name), zap.Error(err))
		}
	}()

	queryCtx, cancel := context.WithTimeout(ctx, e.ioTimeout)
	defer cancel()

	start := time.Now()
	rows, err := conn.Query(queryCtx, text)
	elapsed := time.Since(start)

	if err != nil {
		status := StatusQueryFailure
		if target.IsConnectionFailure(err) {
			status = StatusConnectionFailure
		}
		e.logger.Debug("query failed",
			zap.String("query", name),
			zap.Stringer("status", status),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return QueryOutcome{
			QueryName: name,
			Status:    status,
			Err:       err.Error(),
		}
	}

	return QueryOutcome{
		QueryName: name,
		Duration:  elapsed,
		Rows:      rows,
		Status:    StatusSuccess,
	}
}
