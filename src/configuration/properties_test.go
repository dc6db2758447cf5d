package configuration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	config, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, 70.0, config.Match.Threshold)
	assert.Equal(t, 300, config.Catalog.PageSize)
	assert.Equal(t, 10, config.Allocator.Attempts)
	assert.False(t, config.Allocator.DegradedFallback)
	assert.Equal(t, "8088", config.Server.Port)
	assert.Equal(t, 24*time.Hour, config.Match.MissTTL)
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("MATCH_THRESHOLD", "82.5")
	t.Setenv("CATALOG_PAGE_SIZE", "50")
	t.Setenv("HTTP_ALLOW_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("ALLOCATOR_DEGRADED_FALLBACK", "true")

	config, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, 82.5, config.Match.Threshold)
	assert.Equal(t, 50, config.Catalog.PageSize)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, config.Server.AllowOrigins)
	assert.True(t, config.Allocator.DegradedFallback)
}

func TestParseInvalid(t *testing.T) {
	t.Setenv("CATALOG_PAGE_SIZE", "many")

	_, err := Parse()
	assert.Error(t, err)
	assert.Panics(t, func() { ReadProperties() })
}
