package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCarriesCodeAndMessage(t *testing.T) {
	err := New(EmptyPopulation, "no agents")
	assert.Equal(t, "no agents", err.Error())

	var e *Error
	require.True(t, stderrors.As(err, &e))
	assert.Equal(t, EmptyPopulation, e.Code())
}

func TestWrapPreservesOriginal(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := Wrap(cause, ArchiveFailed, "failed to insert row")
	assert.Contains(t, err.Error(), "disk full")
	assert.True(t, stderrors.Is(err, cause))

	assert.Nil(t, Wrap(nil, ArchiveFailed, "ignored"))
}

func TestWithFields(t *testing.T) {
	err := WithFields(New(IncompatibleParents, "too different"), Fields{"compatibility": 0.1})
	var e *Error
	require.True(t, stderrors.As(err, &e))
	assert.Equal(t, 0.1, e.Fields()["compatibility"])
	assert.Equal(t, IncompatibleParents, e.Code())

	// Fields stack across calls.
	err = WithFields(err, Fields{"threshold": 0.3})
	require.True(t, stderrors.As(err, &e))
	assert.Len(t, e.Fields(), 2)
}

func TestErrorIsMatchesByCode(t *testing.T) {
	err := New(StrategyNotFound, "no such strategy")
	assert.True(t, stderrors.Is(err, New(StrategyNotFound, "other message")))
	assert.False(t, stderrors.Is(err, New(OperatorNotFound, "no such strategy")))
}

func TestHasCodeWalksChain(t *testing.T) {
	inner := New(InsufficientMutationPotential, "too little headroom")
	outer := Wrap(inner, Unknown, "mutation failed")

	assert.True(t, HasCode(outer, InsufficientMutationPotential))
	assert.True(t, HasCode(outer, Unknown))
	assert.False(t, HasCode(outer, EmptyPopulation))
	assert.False(t, HasCode(nil, Unknown))
}

func TestCheckContext(t *testing.T) {
	assert.NoError(t, CheckContext(context.Background(), "evolve"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := CheckContext(ctx, "evolve")
	require.Error(t, err)
	assert.True(t, HasCode(err, Canceled))
	assert.True(t, stderrors.Is(err, context.Canceled))
}
