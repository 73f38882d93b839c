package common_test

import (
	"testing"
	"time"

	"github.com/saidin/matchbook/internal/common"
	"github.com/stretchr/testify/assert"
)

func TestNew_LimitRequiresPrice(t *testing.T) {
	_, err := common.New("id-1", common.LimitBuy, common.Price{}, false, 10, time.Now())
	assert.ErrorIs(t, err, common.ErrBadOrder)
}

func TestNew_MarketDiscardsPrice(t *testing.T) {
	price := common.MustOf(50)
	order, err := common.New("id-1", common.Buy, price, true, 10, time.Now())
	assert.NoError(t, err)

	_, hasPrice := order.Price()
	assert.False(t, hasPrice)
}

func TestNew_RejectsNonPositiveQuantity(t *testing.T) {
	_, err := common.New("id-1", common.Buy, common.Price{}, false, 0, time.Now())
	assert.ErrorIs(t, err, common.ErrBadOrder)
}

func TestOrder_Fill_PartialThenFull(t *testing.T) {
	order, err := common.New("id-1", common.LimitBuy, common.MustOf(10), true, 10, time.Now())
	assert.NoError(t, err)

	order.Fill(4)
	assert.Equal(t, common.PartiallyExecuted, order.Status())
	assert.Equal(t, float64(6), order.Quantity())

	order.Fill(6)
	assert.Equal(t, common.Executed, order.Status())
	assert.Equal(t, float64(0), order.Quantity())
}

func TestOrder_Fill_OverfillPanics(t *testing.T) {
	order, _ := common.New("id-1", common.LimitBuy, common.MustOf(10), true, 10, time.Now())
	assert.Panics(t, func() { order.Fill(11) })
}

func TestOrder_Cancel_OnlyFromOpen(t *testing.T) {
	order, _ := common.New("id-1", common.LimitBuy, common.MustOf(10), true, 10, time.Now())
	order.Fill(10)

	err := order.Cancel()
	assert.ErrorIs(t, err, common.ErrNotCancelable)
}

func TestOrder_Update_RejectsTerminal(t *testing.T) {
	order, _ := common.New("id-1", common.LimitBuy, common.MustOf(10), true, 10, time.Now())
	assert.NoError(t, order.Cancel())

	qty := 5.0
	_, err := order.Update(nil, nil, &qty, time.Now())
	assert.ErrorIs(t, err, common.ErrBadUpdate)
}

func TestOrder_Update_SwitchingToMarketClearsPrice(t *testing.T) {
	order, _ := common.New("id-1", common.LimitBuy, common.MustOf(10), true, 10, time.Now())

	marketKind := common.Buy
	updated, err := order.Update(&marketKind, nil, nil, time.Now())
	assert.NoError(t, err)

	_, hasPrice := updated.Price()
	assert.False(t, hasPrice)
}

func TestOrder_Update_RefreshesTimestamp(t *testing.T) {
	created := time.Now().Add(-time.Hour)
	order, _ := common.New("id-1", common.LimitBuy, common.MustOf(10), true, 10, created)

	qty := 3.0
	later := time.Now()
	updated, err := order.Update(nil, nil, &qty, later)
	assert.NoError(t, err)
	assert.True(t, updated.Timestamp().After(order.Timestamp()))
}
