package common_test

import (
	"testing"

	"github.com/saidin/matchbook/internal/common"
	"github.com/stretchr/testify/assert"
)

func TestPrice_Of(t *testing.T) {
	p, err := common.Of(100.25)
	assert.NoError(t, err)
	assert.InDelta(t, 100.25, p.ToReal(), 0.0001)
}

func TestPrice_Of_Negative(t *testing.T) {
	_, err := common.Of(-1.0)
	assert.ErrorIs(t, err, common.ErrBadPrice)
}

func TestPrice_Less(t *testing.T) {
	low := common.MustOf(99.0)
	high := common.MustOf(99.01)
	assert.True(t, low.Less(high))
	assert.False(t, high.Less(low))
	assert.False(t, low.Less(low))
}

func TestPrice_Equal(t *testing.T) {
	a := common.MustOf(50.5)
	b := common.MustOf(50.5)
	assert.True(t, a.Equal(b))
}

func TestPrice_String(t *testing.T) {
	p := common.MustOf(7.5)
	assert.Equal(t, "7.5000", p.String())
}
