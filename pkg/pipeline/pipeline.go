// Package pipeline wires the per-request flow (C7, spec §4.7): decode the
// client's dialect-specific request into neutral IR, convert and
// prompt-inject toward the configured backend dialect, call the backend,
// then either convert a unary response back or drive the stream
// processor. Grounded on the overall shape of the teacher's
// pkg/ai/generate.go and pkg/ai/stream.go top-level entry points
// ("resolve options, call the model, wrap the result"), generalized from
// "call one provider" to "translate, call backend, translate back".
package pipeline

import (
	"context"
	"io"
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/relaybridge/toolbridge/pkg/backend"
	"github.com/relaybridge/toolbridge/pkg/converter"
	"github.com/relaybridge/toolbridge/pkg/dialect/oai"
	"github.com/relaybridge/toolbridge/pkg/dialect/oll"
	"github.com/relaybridge/toolbridge/pkg/ir"
	"github.com/relaybridge/toolbridge/pkg/streamproc"
	"github.com/relaybridge/toolbridge/pkg/telemetry"
)

// backendPath returns the upstream path for a dialect's native chat
// endpoint.
func backendPath(d converter.Dialect) string {
	if d == converter.DialectOAI {
		return "/v1/chat/completions"
	}
	return "/api/chat"
}

// Config configures a Pipeline for a single backend target.
type Config struct {
	BackendDialect converter.Dialect
	ToolPolicy     converter.ToolPolicy

	// DetectorWindowSize and DetectorMaxBufferSize configure the
	// streaming tool-call detector (config.Config.WrapperWindowSize /
	// MaxToolCallBufferSize). Zero values fall back to the detector's
	// own defaults.
	DetectorWindowSize    int
	DetectorMaxBufferSize int
}

// Pipeline runs the request/response translation for one configured
// backend.
type Pipeline struct {
	backend *backend.Client
	cfg     Config
	tracer  trace.Tracer
}

// New builds a Pipeline. tracer may be nil, in which case a disabled
// tracer is used.
func New(backendClient *backend.Client, cfg Config, tracer trace.Tracer) *Pipeline {
	if tracer == nil {
		tracer = telemetry.GetTracer(telemetry.DefaultSettings())
	}
	return &Pipeline{backend: backendClient, cfg: cfg, tracer: tracer}
}

// DecodeClientRequest parses the inbound body in the client's dialect.
// Callers (the HTTP handler layer) use clientReq.Stream to decide whether
// to call HandleUnary or HandleStream.
func (p *Pipeline) DecodeClientRequest(clientDialect converter.Dialect, body []byte) (ir.Request, error) {
	req, err := converter.DecodeRequest(clientDialect, body)
	if err != nil {
		return ir.Request{}, ir.NewClientInvalid("malformed request body", err)
	}
	return req, nil
}

// UnaryResult is the fully-buffered outcome of a non-streaming call,
// ready for an HTTP handler to write as-is.
type UnaryResult struct {
	StatusCode int
	Body       []byte
}

// HandleUnary converts clientReq toward the backend dialect, calls the
// backend unary, and converts the response back to the client dialect.
// Backend and conversion failures are rendered as a dialect-appropriate
// error body rather than returned as a Go error, since an HTTP handler
// always needs *some* body and status to write.
func (p *Pipeline) HandleUnary(ctx context.Context, clientReq ir.Request, clientDialect converter.Dialect, authHeader string, clientHeaders http.Header) UnaryResult {
	known := ir.NewKnownToolSet(clientReq.Tools)
	backendBody := converter.ConvertRequest(clientReq, p.cfg.BackendDialect, p.cfg.ToolPolicy)

	resp, err := p.backend.Unary(ctx, backend.CallOptions{
		Path:          backendPath(p.cfg.BackendDialect),
		Body:          backendBody,
		AuthHeader:    authHeader,
		ClientHeaders: clientHeaders,
		Dialect:       string(p.cfg.BackendDialect),
		Model:         clientReq.Model,
	})
	if err != nil {
		return ErrorResult(clientDialect, err)
	}

	out, err := converter.ConvertResponse(p.cfg.BackendDialect, resp.Body, clientDialect, clientReq.Model, known)
	if err != nil {
		return ErrorResult(clientDialect, ir.NewConversion("failed to convert upstream response", err))
	}
	return UnaryResult{StatusCode: http.StatusOK, Body: out}
}

// HandleStream converts clientReq toward the backend dialect, calls the
// backend in streaming mode, and pipes the translated stream to out. If
// the backend call itself fails before any bytes reach the client, the
// error is rendered as a single terminal error frame in the client's
// dialect.
func (p *Pipeline) HandleStream(ctx context.Context, clientReq ir.Request, clientDialect converter.Dialect, authHeader string, clientHeaders http.Header, out io.Writer) error {
	known := ir.NewKnownToolSet(clientReq.Tools)
	backendBody := converter.ConvertRequest(clientReq, p.cfg.BackendDialect, p.cfg.ToolPolicy)

	resp, err := p.backend.Stream(ctx, backend.CallOptions{
		Path:          backendPath(p.cfg.BackendDialect),
		Body:          backendBody,
		AuthHeader:    authHeader,
		ClientHeaders: clientHeaders,
		Dialect:       string(p.cfg.BackendDialect),
		Model:         clientReq.Model,
	})
	if err != nil {
		ierr, ok := err.(*ir.Error)
		message, code := "upstream request failed", "upstream_error"
		if ok {
			message = ierr.Message
		}
		return streamproc.WriteUpstreamError(streamproc.Dialect(clientDialect), out, message, code)
	}
	defer resp.Body.Close()

	streamID := "chatcmpl-" + uuid.NewString()
	proc := streamproc.NewProcessorWithLimits(
		streamproc.Dialect(p.cfg.BackendDialect),
		resp.Body,
		streamproc.Dialect(clientDialect),
		out,
		clientReq.Model,
		streamID,
		known,
		func() string { return "call_" + uuid.NewString() },
		p.cfg.DetectorWindowSize,
		p.cfg.DetectorMaxBufferSize,
	)
	return proc.Run()
}

// ErrorResult renders any error (decode, backend, or conversion) as a
// dialect-appropriate unary error body with the right status code. The
// HTTP handler layer calls this directly for request-decode failures,
// which happen before a Pipeline method is even reached.
func ErrorResult(clientDialect converter.Dialect, err error) UnaryResult {
	status, message := 502, err.Error()
	if ierr, ok := err.(*ir.Error); ok {
		message = ierr.Message
		switch {
		case ierr.StatusCode != 0:
			status = ierr.StatusCode
		case ierr.Kind == ir.KindClientInvalid:
			status = http.StatusBadRequest
		case ierr.Kind == ir.KindConversion:
			status = http.StatusInternalServerError
		default:
			status = http.StatusBadGateway
		}
	}

	var body []byte
	if clientDialect == converter.DialectOAI {
		body = oai.EncodeErrorForStatus(status, message)
	} else {
		body = oll.EncodeError(message)
	}
	return UnaryResult{StatusCode: status, Body: body}
}
