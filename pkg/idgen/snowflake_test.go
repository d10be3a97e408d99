package idgen

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSnowflake_RejectsWorkerOutOfRange(t *testing.T) {
	_, err := NewSnowflake(-1)
	assert.Error(t, err)
	_, err = NewSnowflake(maxWorkerID + 1)
	assert.Error(t, err)
}

func TestSnowflake_GenerateIsIncreasing(t *testing.T) {
	s, err := NewSnowflake(7)
	require.NoError(t, err)

	seen := make(map[int64]struct{}, 10000)
	prev := int64(0)
	for i := 0; i < 10000; i++ {
		id := s.Generate()
		assert.Greater(t, id, prev)
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %d", id)
		seen[id] = struct{}{}
		prev = id
	}
	assert.Equal(t, int64(7), (prev>>workerIDShift)&maxWorkerID)
}

func TestGenerateIDs_Format(t *testing.T) {
	assert.Regexp(t, regexp.MustCompile(`^PST\d{14}_\d{8}$`), GeneratePostID())
	assert.Regexp(t, regexp.MustCompile(`^PSN\d{14}_\d{8}$`), GeneratePersonaID())
	assert.NotEqual(t, GeneratePostID(), GeneratePostID())
}
