package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorBuilder(t *testing.T) {
	base := NewStd("connection refused")

	err := New(base).
		Component("storage").
		Category(CategoryNetwork).
		Context("url", "https://storage.test/api/upload").
		Context("attempt", 3).
		Build()

	assert.Equal(t, "connection refused", err.Error())
	assert.Equal(t, "storage", err.Component)
	assert.Equal(t, "network", err.GetCategory())
	assert.Equal(t, base, Unwrap(err))

	ctx := err.GetContext()
	assert.Equal(t, "https://storage.test/api/upload", ctx["url"])
	assert.Equal(t, 3, ctx["attempt"])
	assert.False(t, err.Timestamp.IsZero())
}

func TestBuildDefaults(t *testing.T) {
	err := Newf("pic %d missing", 42).Build()

	assert.Equal(t, "pic 42 missing", err.Error())
	assert.Equal(t, ComponentUnknown, err.Component)
	assert.Equal(t, CategoryGeneric, err.Category)
	assert.Nil(t, err.GetContext())
}

func TestGetContextReturnsCopy(t *testing.T) {
	err := Newf("boom").Context("key", "value").Build()

	ctx := err.GetContext()
	ctx["key"] = "mutated"

	assert.Equal(t, "value", err.GetContext()["key"])
}

func TestIsCategory(t *testing.T) {
	err := Newf("too many requests").
		Component("storage").
		Category(CategoryRateLimit).
		Build()

	assert.True(t, IsCategory(err, CategoryRateLimit))
	assert.False(t, IsCategory(err, CategoryDatabase))
	assert.False(t, IsCategory(NewStd("plain"), CategoryRateLimit))
}

func TestIsCategory_Wrapped(t *testing.T) {
	inner := Newf("bad token").
		Component("conf").
		Category(CategoryConfiguration).
		Build()
	wrapped := fmt.Errorf("loading settings: %w", inner)

	assert.True(t, IsCategory(wrapped, CategoryConfiguration))
}

func TestIsMatchesByCategory(t *testing.T) {
	a := Newf("first").Category(CategoryValidation).Build()
	b := Newf("second").Category(CategoryValidation).Build()
	c := Newf("third").Category(CategoryNetwork).Build()

	assert.True(t, Is(a, b))
	assert.False(t, Is(a, c))
}

func TestValidationError(t *testing.T) {
	err := ValidationError("empty upload group")

	require.NotNil(t, err)
	assert.Equal(t, "empty upload group", err.Error())
	assert.Equal(t, CategoryValidation, err.Category)
}
