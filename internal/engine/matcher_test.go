package engine_test

import (
	"testing"

	"github.com/saidin/matchbook/internal/common"
	"github.com/saidin/matchbook/internal/engine"
	"github.com/stretchr/testify/assert"
)

func newTestMatcher(t *testing.T) *engine.Matcher {
	t.Helper()
	m := engine.NewMatcher()
	assert.NoError(t, m.AddPair("BTC-USD", "BTC", "USD", common.MustOf(50000)))
	return m
}

func TestMatcher_AddPair_RejectsDuplicate(t *testing.T) {
	m := newTestMatcher(t)
	err := m.AddPair("BTC-USD", "BTC", "USD", common.MustOf(50000))
	assert.ErrorIs(t, err, common.ErrPairExists)
}

func TestMatcher_GetPair_ReturnsRegisteredPair(t *testing.T) {
	m := newTestMatcher(t)
	pair, err := m.GetPair("BTC-USD")
	assert.NoError(t, err)
	assert.Equal(t, "BTC", pair.Base)
	assert.Equal(t, "USD", pair.Quote)
	assert.True(t, pair.Active)

	_, err = m.GetPair("ETH-USD")
	assert.ErrorIs(t, err, common.ErrUnknownPair)
}

func TestMatcher_AddOrder_UnknownPair(t *testing.T) {
	m := newTestMatcher(t)
	_, err := m.AddOrder("ETH-USD", common.LimitBuy, common.MustOf(1), true, 1)
	assert.ErrorIs(t, err, common.ErrUnknownPair)
}

func TestMatcher_AddOrder_InactivePair(t *testing.T) {
	m := newTestMatcher(t)
	assert.NoError(t, m.SetActive("BTC-USD", false))

	_, err := m.AddOrder("BTC-USD", common.LimitBuy, common.MustOf(50000), true, 1)
	assert.ErrorIs(t, err, common.ErrPairInactive)
}

func TestMatcher_RoutesCancelByOrderIDPrefix(t *testing.T) {
	m := newTestMatcher(t)
	id, err := m.AddOrder("BTC-USD", common.LimitBuy, common.MustOf(49000), true, 1)
	assert.NoError(t, err)

	assert.NoError(t, m.CancelOrder(id))

	_, err = m.GetOrder(id)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestMatcher_CancelOrder_UnknownPairPrefix(t *testing.T) {
	m := newTestMatcher(t)
	err := m.CancelOrder("ETH-USD-deadbeef-000001")
	assert.ErrorIs(t, err, common.ErrUnknownPair)
}

func TestMatcher_UpdateOrder_Routes(t *testing.T) {
	m := newTestMatcher(t)
	id, err := m.AddOrder("BTC-USD", common.LimitBuy, common.MustOf(49000), true, 1)
	assert.NoError(t, err)

	qty := 2.0
	assert.NoError(t, m.UpdateOrder(id, nil, nil, &qty))

	order, err := m.GetOrder(id)
	assert.NoError(t, err)
	assert.Equal(t, float64(2), order.Quantity())
}

func TestMatcher_Snapshot_ReflectsTopOfBook(t *testing.T) {
	m := newTestMatcher(t)
	_, err := m.AddOrder("BTC-USD", common.LimitBuy, common.MustOf(49000), true, 1)
	assert.NoError(t, err)
	_, err = m.AddOrder("BTC-USD", common.LimitSell, common.MustOf(51000), true, 1)
	assert.NoError(t, err)

	snap, err := m.Snapshot("BTC-USD")
	assert.NoError(t, err)
	assert.NotNil(t, snap.BestBid)
	assert.True(t, snap.BestBid.Equal(common.MustOf(49000)))
	assert.NotNil(t, snap.BestAsk)
	assert.True(t, snap.BestAsk.Equal(common.MustOf(51000)))
	assert.Equal(t, float64(1), snap.BuyVolume)
	assert.Equal(t, float64(1), snap.SellVolume)
}
