package cliutil

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupSlog(t *testing.T) {
	assert := assert.New(t)

	var buf bytes.Buffer
	logger, err := SetupSlog(LogOptions{LogFormat: "json", LogLevel: "warn", Output: &buf})
	require.NoError(t, err)
	logger.Info("dropped")
	logger.Warn("kept", "uid", 42)
	assert.NotContains(buf.String(), "dropped")
	assert.Contains(buf.String(), `"uid":42`)

	_, err = SetupSlog(LogOptions{LogLevel: "loud"})
	assert.Error(err)
	_, err = SetupSlog(LogOptions{LogFormat: "xml"})
	assert.Error(err)
}

func TestSqliteSuffix(t *testing.T) {
	assert := assert.New(t)

	s, ok := sqliteSuffix("sqlite://data/kantek.db")
	assert.True(ok)
	assert.Equal("data/kantek.db", s)
	s, ok = sqliteSuffix("sqlite=:memory:")
	assert.True(ok)
	assert.Equal(":memory:", s)
	_, ok = sqliteSuffix("postgres://localhost/kantek")
	assert.False(ok)
}
