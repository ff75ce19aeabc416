package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/itemupdate/internal/ir"
)

func TestItemError(t *testing.T) {
	cause := ir.NewResolutionError("resolve item", `no item with handle "123/9"`, nil)
	err := newItemError("item_3", "load", cause)

	assert.Equal(t, `item item_3: load: RESOLUTION: resolve item: no item with handle "123/9"`, err.Error())
	assert.Equal(t, ir.KindResolution, err.Kind())
	assert.True(t, errors.Is(err, cause))

	wrapped := fmt.Errorf("batch: %w", err)
	assert.True(t, IsItemError(wrapped))
	assert.True(t, ir.IsKind(wrapped, ir.KindResolution))
	assert.False(t, IsItemError(cause))
}

func TestItemError_UnclassifiedCause(t *testing.T) {
	err := newItemError("item_1", "undo", errors.New("disk full"))
	assert.Equal(t, ir.ErrorKind(""), err.Kind())
}
