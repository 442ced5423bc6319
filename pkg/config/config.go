// Package config defines the Config struct this proxy core is wired from.
// Loading values from the environment is an external config service's job
// (spec.md §6: "env-provided, consumed via an external config service");
// this package only owns the shape and its defaults, the same way the
// teacher's provider packages own a plain Config struct (ollama.Config,
// openai.Config) without any env/flag parsing inside the provider itself.
package config

import (
	"time"

	"github.com/relaybridge/toolbridge/pkg/backend"
	"github.com/relaybridge/toolbridge/pkg/converter"
	"github.com/relaybridge/toolbridge/pkg/promptinject"
)

// Config is the full set of knobs the proxy core needs, independent of
// how they were sourced.
type Config struct {
	// Upstream identifies the backend this proxy translates toward.
	UpstreamBaseURL string
	UpstreamAPIKey  string
	BackendDialect  converter.Dialect

	// ToolPolicy controls whether native tool fields are stripped in
	// favor of prompt-injected instructions, or kept alongside them.
	ToolPolicy converter.ToolPolicy

	// PromptInject controls the reinjection cadence for synthetic
	// tool-calling instructions.
	PromptInject promptinject.Policy

	// Retry is the backend call retry/backoff policy.
	Retry backend.RetryPolicy

	// WrapperWindowSize is the whole trailing-text window, in bytes, the
	// streaming detector withholds while watching for a sentinel; it is
	// the windowSize that detector.NewWithLimits takes as-is.
	WrapperWindowSize int

	// MaxToolCallBufferSize bounds the detector's INSIDE-state buffer.
	MaxToolCallBufferSize int

	// Host and Port the proxy listens on.
	Host string
	Port int

	// UnaryTimeout bounds a single non-streaming backend call.
	UnaryTimeout time.Duration
}

// Default returns a Config with every spec-literal default filled in:
// retry {maxRetries: 2, base: 500ms, cap: 3s}, reinjection enabled with
// N_msg=20/N_tok=4000, a 64-byte trailing detector window, a 64 KiB tool
// call buffer cap, and 0.0.0.0:8080.
func Default() Config {
	return Config{
		BackendDialect:        converter.DialectOAI,
		ToolPolicy:            converter.ToolPolicy{BackendSupportsNativeTools: true, PassTools: false},
		PromptInject:          promptinject.DefaultPolicy(),
		Retry:                 backend.DefaultRetryPolicy(),
		WrapperWindowSize:     64,
		MaxToolCallBufferSize: 64 * 1024,
		Host:                  "0.0.0.0",
		Port:                  8080,
		UnaryTimeout:          30 * time.Second,
	}
}
