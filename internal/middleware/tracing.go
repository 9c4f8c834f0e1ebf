package middleware

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// peekCausalRequestAttrs best-effort decodes the consistency mode and
// client id out of a /get or /put body without consuming it, so the span
// can carry them even though the route handler parses the body itself
// afterward.
func peekCausalRequestAttrs(c *fiber.Ctx) (consistency, clientID string, ok bool) {
	if c.Method() != fiber.MethodPost {
		return "", "", false
	}
	switch c.Path() {
	case "/get", "/put":
	default:
		return "", "", false
	}

	var body struct {
		Consistency string `json:"consistency"`
		ClientID    string `json:"client_id"`
	}
	if err := json.Unmarshal(c.Body(), &body); err != nil || body.Consistency == "" {
		return "", "", false
	}
	return body.Consistency, body.ClientID, true
}

// TracingMiddleware creates a middleware for OpenTelemetry tracing
func TracingMiddleware(serviceName string) fiber.Handler {
	tracer := otel.Tracer(serviceName)
	propagator := otel.GetTextMapPropagator()

	return func(c *fiber.Ctx) error {
		// Extract context from incoming request
		ctx := propagator.Extract(c.UserContext(), &fiberCarrier{c: c})

		// Start a new span
		spanName := c.Method() + " " + c.Route().Path
		if spanName == " " {
			spanName = c.Method() + " " + c.Path()
		}

		attrs := []attribute.KeyValue{
			semconv.HTTPMethod(c.Method()),
			semconv.HTTPURL(c.OriginalURL()),
			semconv.HTTPRoute(c.Route().Path),
			semconv.HTTPScheme(c.Protocol()),
			semconv.HTTPTarget(c.Path()),
			semconv.NetHostName(c.Hostname()),
			semconv.HTTPUserAgent(c.Get("User-Agent")),
			attribute.String("http.client_ip", c.IP()),
		}
		// /get and /put carry a causal-cache-specific consistency mode
		// (SINGLE or CROSS) in their JSON body; surface it on the span so
		// a trace can be filtered by consistency without decoding the
		// request payload out-of-band.
		if consistency, clientID, ok := peekCausalRequestAttrs(c); ok {
			attrs = append(attrs,
				attribute.String("causalcache.consistency", consistency),
				attribute.String("causalcache.client_id", clientID),
			)
		}

		ctx, span := tracer.Start(ctx, spanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attrs...),
		)
		defer span.End()

		// Store context in fiber context
		c.SetUserContext(ctx)

		// Store trace ID in locals for logging correlation
		if span.SpanContext().HasTraceID() {
			c.Locals("trace_id", span.SpanContext().TraceID().String())
			c.Set("X-Trace-Id", span.SpanContext().TraceID().String())
		}

		// Continue processing
		err := c.Next()

		// Set span status based on response
		statusCode := c.Response().StatusCode()
		span.SetAttributes(semconv.HTTPStatusCode(statusCode))

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}

		// Set span status based on HTTP status code
		if statusCode >= 500 {
			span.SetStatus(codes.Error, "Internal server error")
		} else if statusCode >= 400 {
			span.SetStatus(codes.Error, "Client error")
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return nil
	}
}

// fiberCarrier adapts fiber.Ctx to propagation.TextMapCarrier
type fiberCarrier struct {
	c *fiber.Ctx
}

func (fc *fiberCarrier) Get(key string) string {
	return fc.c.Get(key)
}

func (fc *fiberCarrier) Set(key, value string) {
	fc.c.Set(key, value)
}

func (fc *fiberCarrier) Keys() []string {
	keys := make([]string, 0)
	fc.c.Request().Header.VisitAll(func(key, _ []byte) {
		keys = append(keys, string(key))
	})
	return keys
}
