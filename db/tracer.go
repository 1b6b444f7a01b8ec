package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/nextmail/mailbridge/logger"
)

// queryTracer logs every SQL statement when database.debug is enabled.
type queryTracer struct{}

func (t *queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	logger.Debug("SQL query", "sql", data.SQL, "args", data.Args)
	return ctx
}

func (t *queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	if data.Err != nil {
		logger.Debug("SQL query failed", "error", data.Err)
	}
}
