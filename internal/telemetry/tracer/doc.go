// Package tracer emits an OpenTracing span per Redis request.
//
// Spans are created from the globally installed opentracing tracer; when
// none is installed the opentracing NoopTracer makes every call free. The
// per-process default for whether connections trace at all is seeded from
// the USE_OPENTRACING environment variable and can be overridden per
// connection.
package tracer
