package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorStringIncludesKindAndPath(t *testing.T) {
	err := New(KindExtraction, "extract", "bad.pdf", fmt.Errorf("parser blew up"))
	assert.Contains(t, err.Error(), "extraction")
	assert.Contains(t, err.Error(), "bad.pdf")
	assert.Contains(t, err.Error(), "parser blew up")
}

func TestUnwrapReachesCause(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := New(KindNetwork, "submit", "", cause)
	assert.True(t, stderrors.Is(err, cause))
}

func TestRecoverable(t *testing.T) {
	assert.False(t, New(KindConfig, "load", "", fmt.Errorf("x")).Recoverable())
	assert.True(t, New(KindExtraction, "extract", "f", fmt.Errorf("x")).Recoverable())
	assert.True(t, New(KindArchiveMember, "stream", "f", fmt.Errorf("x")).Recoverable())
}

func TestNewMultiFiltersNils(t *testing.T) {
	assert.Nil(t, NewMulti(nil, nil))

	one := NewMulti(nil, fmt.Errorf("only"))
	require.NotNil(t, one)
	assert.Equal(t, "only", one.Error())

	two := NewMulti(fmt.Errorf("first"), fmt.Errorf("second"))
	require.NotNil(t, two)
	assert.Contains(t, two.Error(), "2 errors")
	assert.Len(t, two.Unwrap(), 2)
}
