package tracer

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	otlog "github.com/opentracing/opentracing-go/log"
)

// StartCommand opens a span for one Redis command. The returned context
// carries the span for downstream callers.
func StartCommand(ctx context.Context, command string) (opentracing.Span, context.Context) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "redis."+command)
	ext.DBType.Set(span, "redis")
	ext.SpanKindRPCClient.Set(span)
	span.SetTag("db.statement", command)
	return span, ctx
}

// FinishCommand closes the span, tagging it with the command outcome.
func FinishCommand(span opentracing.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		ext.Error.Set(span, true)
		span.LogFields(otlog.Error(err))
	}
	span.Finish()
}
