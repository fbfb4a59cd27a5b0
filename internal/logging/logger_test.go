package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetBeforeInitialize(t *testing.T) {
	// Must not panic and must return a usable logger.
	l := Get(CategorySafety)
	require.NotNil(t, l)
	l.Info("no-op before init")
}

func TestGetCachesPerCategory(t *testing.T) {
	require.NoError(t, Initialize(true))

	a := Get(CategoryValidation)
	b := Get(CategoryValidation)
	assert.Same(t, a, b)

	c := Get(CategoryDocument)
	assert.NotSame(t, a, c)
}

func TestInitializeResetsCache(t *testing.T) {
	require.NoError(t, Initialize(false))
	before := Get(CategoryAudit)

	require.NoError(t, Initialize(true))
	after := Get(CategoryAudit)
	assert.NotSame(t, before, after)
}
