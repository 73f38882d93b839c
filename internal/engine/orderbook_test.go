package engine_test

import (
	"testing"

	"github.com/saidin/matchbook/internal/common"
	"github.com/saidin/matchbook/internal/engine"
	"github.com/stretchr/testify/assert"
)

func newTestBook() *engine.OrderBook {
	return engine.NewOrderBook("TEST", common.MustOf(100))
}

func drainEvents(t *testing.T, book *engine.OrderBook, n int) []engine.TradeEvent {
	t.Helper()
	events := make([]engine.TradeEvent, 0, n)
	for i := 0; i < n; i++ {
		select {
		case ev := <-book.Events():
			events = append(events, ev)
		default:
			t.Fatalf("expected %d events, got %d", n, i)
		}
	}
	return events
}

func TestAdd_Limit_RestsWhenNoCross(t *testing.T) {
	book := newTestBook()

	id, err := book.Add(common.LimitBuy, common.MustOf(99), true, 10)
	assert.NoError(t, err)

	order, ok := book.Get(id)
	assert.True(t, ok)
	assert.Equal(t, float64(10), order.Quantity())
	assert.Equal(t, float64(10), book.BuyVolume())

	bids := book.Bids()
	assert.Len(t, bids, 1)
	assert.True(t, bids[0].Price.Equal(common.MustOf(99)))
}

func TestAdd_Limit_FullMatch(t *testing.T) {
	book := newTestBook()

	sellID, err := book.Add(common.LimitSell, common.MustOf(100), true, 10)
	assert.NoError(t, err)

	buyID, err := book.Add(common.LimitBuy, common.MustOf(100), true, 10)
	assert.NoError(t, err)

	_, ok := book.Get(buyID)
	assert.False(t, ok, "fully filled order should not rest")
	_, ok = book.Get(sellID)
	assert.False(t, ok)

	assert.Empty(t, book.Bids())
	assert.Empty(t, book.Asks())

	events := drainEvents(t, book, 1)
	assert.NotNil(t, events[0].Trade)
	assert.Equal(t, float64(10), events[0].Trade.ExecutedQty)
}

func TestAdd_Limit_PartialMatchRestsResidual(t *testing.T) {
	book := newTestBook()

	_, err := book.Add(common.LimitSell, common.MustOf(100), true, 10)
	assert.NoError(t, err)

	buyID, err := book.Add(common.LimitBuy, common.MustOf(100), true, 15)
	assert.NoError(t, err)

	order, ok := book.Get(buyID)
	assert.True(t, ok)
	assert.Equal(t, float64(5), order.Quantity())

	bids := book.Bids()
	assert.Len(t, bids, 1)
	assert.Equal(t, float64(5), bids[0].Orders[0].Quantity())
}

func TestAdd_Limit_SweepsMultipleLevels(t *testing.T) {
	book := newTestBook()

	_, err := book.Add(common.LimitSell, common.MustOf(100), true, 10)
	assert.NoError(t, err)
	_, err = book.Add(common.LimitSell, common.MustOf(101), true, 10)
	assert.NoError(t, err)

	buyID, err := book.Add(common.LimitBuy, common.MustOf(101), true, 15)
	assert.NoError(t, err)

	_, ok := book.Get(buyID)
	assert.False(t, ok)

	asks := book.Asks()
	assert.Len(t, asks, 1)
	assert.True(t, asks[0].Price.Equal(common.MustOf(101)))
	assert.Equal(t, float64(5), asks[0].Orders[0].Quantity())
}

func TestAdd_Market_InsufficientLiquidityAnnotated(t *testing.T) {
	book := newTestBook()

	_, err := book.Add(common.LimitSell, common.MustOf(100), true, 5)
	assert.NoError(t, err)

	id, err := book.Add(common.Buy, common.Price{}, false, 10)
	assert.NoError(t, err)

	_, ok := book.Get(id)
	assert.False(t, ok, "market orders never rest")

	events := drainEvents(t, book, 2)
	assert.NotNil(t, events[0].Trade)
	assert.NotNil(t, events[1].Err)
	assert.ErrorIs(t, events[1].Err, common.ErrInsufficientLiquidity)
	assert.Equal(t, id, events[1].OrderID)
}

func TestAdd_Market_NeverRests(t *testing.T) {
	book := newTestBook()

	id, err := book.Add(common.Sell, common.Price{}, false, 10)
	assert.NoError(t, err)

	_, ok := book.Get(id)
	assert.False(t, ok)
	assert.Empty(t, book.Asks())
}

func TestCancel_RemovesRestingOrder(t *testing.T) {
	book := newTestBook()
	id, err := book.Add(common.LimitBuy, common.MustOf(99), true, 10)
	assert.NoError(t, err)

	assert.NoError(t, book.Cancel(id))

	_, ok := book.Get(id)
	assert.False(t, ok)
	assert.Empty(t, book.Bids())
	assert.Equal(t, float64(0), book.BuyVolume())
}

func TestCancel_UnknownOrder(t *testing.T) {
	book := newTestBook()
	err := book.Cancel("does-not-exist")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestCancel_RejectsPartiallyExecuted(t *testing.T) {
	book := newTestBook()

	buyID, err := book.Add(common.LimitBuy, common.MustOf(100), true, 10)
	assert.NoError(t, err)
	_, err = book.Add(common.LimitSell, common.MustOf(100), true, 4)
	assert.NoError(t, err)

	err = book.Cancel(buyID)
	assert.ErrorIs(t, err, common.ErrNotCancelable)
}

func TestUpdate_AmendQuantityLosesTimePriority(t *testing.T) {
	book := newTestBook()

	first, err := book.Add(common.LimitBuy, common.MustOf(99), true, 10)
	assert.NoError(t, err)
	_, err = book.Add(common.LimitBuy, common.MustOf(99), true, 5)
	assert.NoError(t, err)

	newQty := 20.0
	assert.NoError(t, book.Update(first, nil, nil, &newQty))

	bids := book.Bids()
	assert.Len(t, bids, 1)
	assert.Len(t, bids[0].Orders, 2)
	assert.Equal(t, first, bids[0].Orders[1].ID(), "amended order drops to the tail")
}

func TestUpdate_RejectedAmendmentRollsBackAtomically(t *testing.T) {
	book := newTestBook()

	id, err := book.Add(common.LimitBuy, common.MustOf(99), true, 10)
	assert.NoError(t, err)

	before := book.Bids()[0].Orders[0]
	assert.Equal(t, id, before.ID())

	badQty := -1.0
	err = book.Update(id, nil, nil, &badQty)
	assert.ErrorIs(t, err, common.ErrBadUpdate)

	order, ok := book.Get(id)
	assert.True(t, ok)
	assert.Equal(t, float64(10), order.Quantity())

	bids := book.Bids()
	assert.Len(t, bids, 1)
	assert.Len(t, bids[0].Orders, 1)
}

func TestUpdate_PartiallyExecutedOrderCanBeAmended(t *testing.T) {
	book := newTestBook()

	buyID, err := book.Add(common.LimitBuy, common.MustOf(100), true, 10)
	assert.NoError(t, err)
	_, err = book.Add(common.LimitSell, common.MustOf(100), true, 4)
	assert.NoError(t, err)

	order, ok := book.Get(buyID)
	assert.True(t, ok)
	assert.Equal(t, common.PartiallyExecuted, order.Status())

	newQty := 3.0
	assert.NoError(t, book.Update(buyID, nil, nil, &newQty))

	order, ok = book.Get(buyID)
	assert.True(t, ok)
	assert.Equal(t, float64(3), order.Quantity())
}

func TestUpdate_AmendmentReMatchesImmediately(t *testing.T) {
	book := newTestBook()

	_, err := book.Add(common.LimitSell, common.MustOf(101), true, 10)
	assert.NoError(t, err)

	buyID, err := book.Add(common.LimitBuy, common.MustOf(99), true, 10)
	assert.NoError(t, err)

	newPrice := common.MustOf(101)
	assert.NoError(t, book.Update(buyID, nil, &newPrice, nil))

	_, ok := book.Get(buyID)
	assert.False(t, ok, "amendment that crosses should match immediately")
	assert.Empty(t, book.Asks())
}
