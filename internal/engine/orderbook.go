package engine

import (
	"fmt"
	"time"

	"github.com/saidin/matchbook/internal/common"
	"github.com/tidwall/btree"
)

// eventBufferSize is generous enough that a frontend draining Events()
// in its own goroutine never backs up the book under normal load; a
// full buffer is a frontend problem, not the book's.
const eventBufferSize = 4096

// TradeEvent is one item on a book's trade stream. Exactly one of
// Trade or Err is meaningful: a filled Trade for an execution, or Err
// (currently only ErrInsufficientLiquidity) annotating OrderID when a
// market order is dropped for lack of resting liquidity.
type TradeEvent struct {
	Trade   *common.Trade
	OrderID string
	Err     error
}

// OrderBook is the resting-order structure and match engine for one
// trading pair. Its operations are expected to be invoked serially by
// the caller -- there are no suspension points inside Add, Cancel, or
// Update, and no internal lock: the hosting frontend owns the
// serialization boundary.
type OrderBook struct {
	pairID string
	idGen  *IdGenerator

	bids *PriceLevels // LimitBuy orders, best (highest) price first
	asks *PriceLevels // LimitSell orders, best (lowest) price first

	index map[string]*common.Order

	buyVolume       float64
	sellVolume      float64
	lastTradedPrice common.Price

	events chan TradeEvent
}

// NewOrderBook seeds an empty book for pairID, with last_traded_price
// taken from the pair's listing price.
func NewOrderBook(pairID string, listingPrice common.Price) *OrderBook {
	bids := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return b.Price.Less(a.Price) // descending: best bid sorts first
	})
	asks := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price.Less(b.Price) // ascending: best ask sorts first
	})

	return &OrderBook{
		pairID:          pairID,
		idGen:           NewIdGenerator(pairID),
		bids:            bids,
		asks:            asks,
		index:           make(map[string]*common.Order),
		lastTradedPrice: listingPrice,
		events:          make(chan TradeEvent, eventBufferSize),
	}
}

// Events returns the book's trade stream. Read-only: the book never
// drains it itself. Draining is the frontend's responsibility.
func (book *OrderBook) Events() <-chan TradeEvent {
	return book.events
}

// BuyVolume is the sum of remaining quantity across all resting
// LimitBuy orders.
func (book *OrderBook) BuyVolume() float64 { return book.buyVolume }

// SellVolume is the sum of remaining quantity across all resting
// LimitSell orders.
func (book *OrderBook) SellVolume() float64 { return book.sellVolume }

// LastTradedPrice is the price of the most recent trade executed
// against a resting limit order, or the pair's listing price if none
// has traded yet.
func (book *OrderBook) LastTradedPrice() common.Price { return book.lastTradedPrice }

// Bids returns the resting bid levels, best price first.
func (book *OrderBook) Bids() []*PriceLevel { return book.bids.Items() }

// Asks returns the resting ask levels, best price first.
func (book *OrderBook) Asks() []*PriceLevel { return book.asks.Items() }

// Get returns the resting order for id, if any. Only resting orders
// appear in the index -- a filled or cancelled order returns false.
func (book *OrderBook) Get(orderID string) (common.Order, bool) {
	order, ok := book.index[orderID]
	if !ok {
		return common.Order{}, false
	}
	return *order, true
}

// Add generates an id, constructs the order, and dispatches it to the
// market- or limit-match procedure. Success is independent of whether
// the order fully filled, partially rested, or (for a market order)
// walked the book until exhausted.
func (book *OrderBook) Add(kind common.OrderKind, price common.Price, hasPrice bool, quantity float64) (string, error) {
	now := time.Now()
	id := book.idGen.Next(now)

	order, err := common.New(id, kind, price, hasPrice, quantity, now)
	if err != nil {
		return "", err
	}

	ptr := &order
	book.index[id] = ptr

	if kind.IsLimit() {
		trades := book.placeLimit(ptr)
		book.publish(trades)
		if ptr.Quantity() == 0 {
			delete(book.index, id)
		}
		return id, nil
	}

	trades := book.placeMarket(ptr)
	book.publish(trades)
	delete(book.index, id) // market orders never rest
	if ptr.Quantity() > 0 {
		book.send(TradeEvent{OrderID: id, Err: common.ErrInsufficientLiquidity})
	}
	return id, nil
}

// Cancel removes a resting order from its ladder and the index.
// Rejected from any status but Open: a PartiallyExecuted order has
// already traded and cannot be retroactively pulled from the tape.
func (book *OrderBook) Cancel(orderID string) error {
	order, ok := book.index[orderID]
	if !ok {
		return common.ErrNotFound
	}

	ladder, level, idx := book.locate(order)
	if level == nil || idx < 0 {
		return common.ErrNotCancelable
	}

	if err := order.Cancel(); err != nil {
		return err
	}

	book.removeFromLevel(ladder, level, idx)
	delete(book.index, orderID)
	book.adjustVolume(order.Kind(), -order.Quantity())
	return nil
}

// Update amends a resting order. PartiallyExecuted orders may be
// amended -- only Cancel is restricted to Open. The book applies the
// amendment atomically: on rejection the order is restored to its
// exact pre-call position and the error is returned; on success the
// amended order drops to the tail of its (possibly new) price level,
// losing time priority, and is immediately re-matched.
func (book *OrderBook) Update(orderID string, kind *common.OrderKind, price *common.Price, quantity *float64) error {
	order, ok := book.index[orderID]
	if !ok {
		return common.ErrNotFound
	}

	oldKind := order.Kind()
	oldQty := order.Quantity()

	ladder, level, idx := book.locate(order)
	if level == nil || idx < 0 {
		panic(fmt.Sprintf("engine: index/ladder divergence amending order %s", orderID))
	}

	book.removeFromLevel(ladder, level, idx)
	delete(book.index, orderID)
	book.adjustVolume(oldKind, -oldQty)

	updated, err := order.Update(kind, price, quantity, time.Now())
	if err != nil {
		// Roll back atomically: restore the exact pre-call position.
		book.reinsertAt(ladder, order, idx)
		book.index[orderID] = order
		book.adjustVolume(oldKind, oldQty)
		return err
	}

	*order = updated
	book.index[orderID] = order

	var trades []common.Trade
	if updated.Kind().IsLimit() {
		trades = book.placeLimit(order)
	} else {
		trades = book.placeMarket(order)
	}
	book.publish(trades)

	if order.Quantity() == 0 {
		delete(book.index, orderID)
	} else if !updated.Kind().IsLimit() {
		// Market amendment with unfilled residual: dropped, not booked.
		delete(book.index, orderID)
		book.send(TradeEvent{OrderID: orderID, Err: common.ErrInsufficientLiquidity})
	}
	return nil
}

// placeLimit sweeps the opposite ladder against order, then books any
// residual at the tail of the same-side level. The sweep only ever
// touches the opposite ladder, so an order can never trade against
// itself; Update reuses this same routine for an amended limit order
// after taking it off its old level.
func (book *OrderBook) placeLimit(order *common.Order) []common.Trade {
	trades := book.sweepOpposite(order)
	if order.Quantity() > 0 {
		book.restOnSameSide(order)
	}
	return trades
}

// placeMarket sweeps the opposite ladder against order. Any residual
// is left for the caller to drop -- a market order never rests.
func (book *OrderBook) placeMarket(order *common.Order) []common.Trade {
	return book.sweepOpposite(order)
}

// sweepOpposite matches order against the ladder on the other side,
// consuming resting orders head-first within each crossing price
// level in best-price-first order. It mutates order and every
// resting order it touches in place and returns the trades generated.
func (book *OrderBook) sweepOpposite(order *common.Order) []common.Trade {
	ladder := book.asks
	isBidsOpposite := false
	if !order.Kind().IsBuy() {
		ladder = book.bids
		isBidsOpposite = true
	}

	limitPrice, isLimit := order.Price()

	var trades []common.Trade
	now := time.Now()

	for order.Quantity() > 0 {
		level, ok := ladder.MinMut()
		if !ok {
			break
		}
		if isLimit && !crosses(order.Kind(), limitPrice, level.Price) {
			break
		}

		for len(level.Orders) > 0 && order.Quantity() > 0 {
			resting := level.Orders[0]
			executed := min(order.Quantity(), resting.Quantity())

			resting.Fill(executed)
			order.Fill(executed)

			trades = append(trades, common.Trade{
				Aggressor:     *order,
				Resting:       *resting,
				ExecutedQty:   executed,
				ExecutedPrice: level.Price,
				Timestamp:     now,
			})

			if isBidsOpposite {
				book.buyVolume -= executed
			} else {
				book.sellVolume -= executed
			}

			if resting.Status() == common.Executed {
				delete(book.index, resting.ID())
				level.Orders = level.Orders[1:]
			}
		}

		if len(level.Orders) == 0 {
			ladder.Delete(level)
		}
	}

	return trades
}

// crosses reports whether an aggressor limit order at aggressorPrice
// crosses a resting level at levelPrice: for a buy, the ask must be at
// or below the bid; for a sell, the bid must be at or above the ask.
func crosses(kind common.OrderKind, aggressorPrice, levelPrice common.Price) bool {
	if kind.IsBuy() {
		return !aggressorPrice.Less(levelPrice)
	}
	return !levelPrice.Less(aggressorPrice)
}

// restOnSameSide appends order to the tail of its own side's level at
// its own price (creating the level if absent) and credits the
// same-side resting volume.
func (book *OrderBook) restOnSameSide(order *common.Order) {
	ladder := book.ladderFor(order.Kind())
	price, _ := order.Price()

	level := book.getOrCreateLevel(ladder, price)
	level.Orders = append(level.Orders, order)
	book.adjustVolume(order.Kind(), order.Quantity())
}

// getOrCreateLevel returns the level at price on ladder, creating and
// inserting an empty one if absent.
func (book *OrderBook) getOrCreateLevel(ladder *PriceLevels, price common.Price) *PriceLevel {
	if level, ok := ladder.GetMut(&PriceLevel{Price: price}); ok {
		return level
	}
	level := &PriceLevel{Price: price}
	ladder.Set(level)
	return level
}

// ladderFor returns the same-side ladder a resting order of kind
// belongs to.
func (book *OrderBook) ladderFor(kind common.OrderKind) *PriceLevels {
	if kind.IsBuy() {
		return book.bids
	}
	return book.asks
}

// locate finds a resting order's ladder, level, and position within
// that level's FIFO queue. Returns a nil level if the order (which
// must have a price -- only limit orders ever rest) cannot be found,
// which the caller treats as NotCancelable for Cancel and as a fatal
// invariant breach for Update.
func (book *OrderBook) locate(order *common.Order) (ladder *PriceLevels, level *PriceLevel, idx int) {
	price, hasPrice := order.Price()
	if !hasPrice {
		return nil, nil, -1
	}

	ladder = book.ladderFor(order.Kind())
	level, ok := ladder.GetMut(&PriceLevel{Price: price})
	if !ok {
		return ladder, nil, -1
	}
	idx = indexOfOrder(level.Orders, order.ID())
	if idx < 0 {
		return ladder, nil, -1
	}
	return ladder, level, idx
}

// removeFromLevel removes the order at idx from level, pruning the
// level from ladder if it becomes empty.
func (book *OrderBook) removeFromLevel(ladder *PriceLevels, level *PriceLevel, idx int) {
	level.Orders = removeAt(level.Orders, idx)
	if len(level.Orders) == 0 {
		ladder.Delete(level)
	}
}

// reinsertAt restores order to position idx of its own level, creating
// the level again if it had been pruned empty. Used only to undo a
// rejected amendment.
func (book *OrderBook) reinsertAt(ladder *PriceLevels, order *common.Order, idx int) {
	price, _ := order.Price()
	level := book.getOrCreateLevel(ladder, price)
	level.Orders = insertAt(level.Orders, idx, order)
}

func (book *OrderBook) adjustVolume(kind common.OrderKind, delta float64) {
	if kind.IsBuy() {
		book.buyVolume += delta
	} else {
		book.sellVolume += delta
	}
}

// publish records last_traded_price for each trade (in chronological
// order) and pushes it onto the event stream.
func (book *OrderBook) publish(trades []common.Trade) {
	for i := range trades {
		book.lastTradedPrice = trades[i].ExecutedPrice
		book.send(TradeEvent{Trade: &trades[i]})
	}
}

func (book *OrderBook) send(event TradeEvent) {
	book.events <- event
}
