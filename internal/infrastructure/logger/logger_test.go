package logger

import (
	"testing"

	"threadspost/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	l, err := Init(&config.LogConfig{Level: "debug", Development: true})
	require.NoError(t, err)
	assert.NotNil(t, l)
	assert.Same(t, l, Log)
	assert.NotNil(t, Named("test"))
}

func TestInit_BadLevel(t *testing.T) {
	_, err := Init(&config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}
