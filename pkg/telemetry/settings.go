package telemetry

import "go.opentelemetry.io/otel/trace"

// Settings configures telemetry for the proxy core. Trimmed from the
// teacher's AI-SDK-shaped Settings (dropped RecordInputs/RecordOutputs/
// FunctionID/Metadata, which record model generation settings this proxy
// never has reason to record — it doesn't run model generation itself).
type Settings struct {
	// IsEnabled controls whether telemetry is active. Defaults to false.
	IsEnabled bool

	// Tracer is a custom OpenTelemetry tracer. If nil, the global tracer
	// is used.
	Tracer trace.Tracer
}

// DefaultSettings returns Settings with telemetry disabled.
func DefaultSettings() *Settings {
	return &Settings{IsEnabled: false}
}
