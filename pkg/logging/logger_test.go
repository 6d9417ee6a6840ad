package logging

import (
	"context"
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(Options{Verbosity: DEBUG})
	require.NoError(t, err)

	assert.True(t, logger.V(DEBUG).Enabled())
	assert.False(t, logger.V(TRACE).Enabled())
}

func TestNewTestLogger(t *testing.T) {
	assert.True(t, NewTestLogger().V(TRACE).Enabled())
}

func TestContextRoundTrip(t *testing.T) {
	assert.Equal(t, 0, FromContext(context.Background()).GetV())
	assert.Nil(t, FromContext(context.Background()).GetSink())

	logger := testr.New(t)
	ctx := IntoContext(context.Background(), logger)
	assert.NotNil(t, FromContext(ctx).GetSink())
}
