package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/relaybridge/toolbridge/pkg/converter"
)

func TestDefault_MatchesSpecLiterals(t *testing.T) {
	cfg := Default()

	assert.Equal(t, converter.DialectOAI, cfg.BackendDialect)
	assert.Equal(t, 2, cfg.Retry.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.Base)
	assert.Equal(t, 3*time.Second, cfg.Retry.Cap)
	assert.Equal(t, 64, cfg.WrapperWindowSize)
	assert.Equal(t, 64*1024, cfg.MaxToolCallBufferSize)
	assert.True(t, cfg.PromptInject.ReinjectEnabled)
	assert.Equal(t, 20, cfg.PromptInject.NMsg)
	assert.Equal(t, 4000, cfg.PromptInject.NTok)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.UnaryTimeout)
}
