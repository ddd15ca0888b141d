package configbinder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type readerConfig struct {
	Path      string        `yaml:"path"`
	Delimiter string        `yaml:"delimiter"`
	SkipLines int           `yaml:"skipLines"`
	Strict    bool          `yaml:"strict"`
	Timeout   time.Duration `yaml:"timeout"`
	Columns   []string      `yaml:"columns"`
}

func TestBindProperties(t *testing.T) {
	var cfg readerConfig
	err := BindProperties(map[string]string{
		"path":      "data/player-list.txt",
		"delimiter": ",",
		"skipLines": "1",
		"strict":    "true",
		"timeout":   "2s",
		"columns":   "id,lastName,firstName",
	}, &cfg)

	require.NoError(t, err)
	assert.Equal(t, "data/player-list.txt", cfg.Path)
	assert.Equal(t, 1, cfg.SkipLines)
	assert.True(t, cfg.Strict)
	assert.Equal(t, 2*time.Second, cfg.Timeout)
	assert.Equal(t, []string{"id", "lastName", "firstName"}, cfg.Columns)
}

func TestBindProperties_EmptyLeavesDefaults(t *testing.T) {
	cfg := readerConfig{Delimiter: "\t"}
	require.NoError(t, BindProperties(nil, &cfg))
	assert.Equal(t, "\t", cfg.Delimiter)
}

func TestBindProperties_BadValue(t *testing.T) {
	var cfg readerConfig
	err := BindProperties(map[string]string{"skipLines": "many"}, &cfg)
	assert.ErrorContains(t, err, "readerConfig")
}

func TestDuration(t *testing.T) {
	props := map[string]string{"sleep": "200ms", "bad": "x"}
	assert.Equal(t, 200*time.Millisecond, Duration(props, "sleep", time.Second))
	assert.Equal(t, time.Second, Duration(props, "bad", time.Second))
	assert.Equal(t, time.Second, Duration(props, "missing", time.Second))
}
