package engine

import (
	"fmt"
	"strings"

	"github.com/saidin/matchbook/internal/common"
)

// TradingPair describes one market the Matcher hosts a book for.
type TradingPair struct {
	ID           string
	Base         string
	Quote        string
	ListingPrice common.Price
	Active       bool
}

// Matcher is the registry of every book the server hosts, keyed by
// pair id. Order ids are self-describing: stripping the trailing
// "-<hex millis>-<hex6 counter>" IdGenerator suffix recovers the pair
// id they belong to, so a bare order id routes straight back to its
// book without a side channel. See bookFor.
type Matcher struct {
	pairs map[string]*TradingPair
	books map[string]*OrderBook
}

func NewMatcher() *Matcher {
	return &Matcher{
		pairs: make(map[string]*TradingPair),
		books: make(map[string]*OrderBook),
	}
}

// AddPair registers a new market and seeds its book. Rejects a
// duplicate pair id outright -- pairs are never silently replaced.
func (m *Matcher) AddPair(id, base, quote string, listingPrice common.Price) error {
	if _, exists := m.pairs[id]; exists {
		return fmt.Errorf("%w: %s", common.ErrPairExists, id)
	}
	m.pairs[id] = &TradingPair{ID: id, Base: base, Quote: quote, ListingPrice: listingPrice, Active: true}
	m.books[id] = NewOrderBook(id, listingPrice)
	return nil
}

// GetPair returns the registered pair, or ErrUnknownPair.
func (m *Matcher) GetPair(id string) (TradingPair, error) {
	pair, ok := m.pairs[id]
	if !ok {
		return TradingPair{}, fmt.Errorf("%w: %s", common.ErrUnknownPair, id)
	}
	return *pair, nil
}

// SetActive toggles whether a pair accepts new orders. Cancels and
// updates of already-resting orders are unaffected by inactivity.
func (m *Matcher) SetActive(id string, active bool) error {
	pair, ok := m.pairs[id]
	if !ok {
		return fmt.Errorf("%w: %s", common.ErrUnknownPair, id)
	}
	pair.Active = active
	return nil
}

// Book returns the live order book for id, for read-only introspection
// (snapshots, logging) by the ambient layer.
func (m *Matcher) Book(id string) (*OrderBook, error) {
	book, ok := m.books[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrUnknownPair, id)
	}
	return book, nil
}

// PairIDs lists every registered pair, for the ambient layer to fan
// out per-book trade watchers over at startup.
func (m *Matcher) PairIDs() []string {
	ids := make([]string, 0, len(m.pairs))
	for id := range m.pairs {
		ids = append(ids, id)
	}
	return ids
}

// Events returns pairID's trade stream, for the ambient layer to drain
// and turn into wire reports. The engine never reads its own stream.
func (m *Matcher) Events(pairID string) (<-chan TradeEvent, error) {
	book, err := m.Book(pairID)
	if err != nil {
		return nil, err
	}
	return book.Events(), nil
}

// AddOrder routes a new order to pairID's book. Rejects orders for an
// unknown or inactive pair before the book ever sees them.
func (m *Matcher) AddOrder(pairID string, kind common.OrderKind, price common.Price, hasPrice bool, quantity float64) (string, error) {
	pair, ok := m.pairs[pairID]
	if !ok {
		return "", fmt.Errorf("%w: %s", common.ErrUnknownPair, pairID)
	}
	if !pair.Active {
		return "", fmt.Errorf("%w: %s", common.ErrPairInactive, pairID)
	}
	return m.books[pairID].Add(kind, price, hasPrice, quantity)
}

// CancelOrder routes a cancel to the book named by orderID's pair
// prefix.
func (m *Matcher) CancelOrder(orderID string) error {
	book, err := m.bookFor(orderID)
	if err != nil {
		return err
	}
	return book.Cancel(orderID)
}

// UpdateOrder routes an amendment to the book named by orderID's pair
// prefix. Pair activity is not re-checked here -- an amendment to a
// resting order on a since-deactivated pair is still allowed, matching
// Cancel's behavior.
func (m *Matcher) UpdateOrder(orderID string, kind *common.OrderKind, price *common.Price, quantity *float64) error {
	book, err := m.bookFor(orderID)
	if err != nil {
		return err
	}
	return book.Update(orderID, kind, price, quantity)
}

// GetOrder looks up a resting order by id.
func (m *Matcher) GetOrder(orderID string) (common.Order, error) {
	book, err := m.bookFor(orderID)
	if err != nil {
		return common.Order{}, err
	}
	order, ok := book.Get(orderID)
	if !ok {
		return common.Order{}, common.ErrNotFound
	}
	return order, nil
}

// bookFor recovers the owning pair id from an order id minted by
// IdGenerator.Next ("<pair_id>-<hex millis>-<hex6 counter>") by
// dropping its last two '-'-separated segments. A plain prefix split
// would mis-parse a pair id that itself contains a '-' (e.g.
// "BTC-USD"), which is the common case.
func (m *Matcher) bookFor(orderID string) (*OrderBook, error) {
	parts := strings.Split(orderID, "-")
	if len(parts) < 3 {
		return nil, fmt.Errorf("%w: malformed order id %q", common.ErrUnknownPair, orderID)
	}
	pairID := strings.Join(parts[:len(parts)-2], "-")
	book, ok := m.books[pairID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrUnknownPair, pairID)
	}
	return book, nil
}

// BookSnapshot is a point-in-time read of a book's top of book and
// resting volume, for the ambient layer to log or report -- the
// engine itself never formats or emits this.
type BookSnapshot struct {
	PairID     string
	BestBid    *common.Price
	BestAsk    *common.Price
	BuyVolume  float64
	SellVolume float64
	LastTraded common.Price
}

// Snapshot reads pairID's current top of book without mutating it.
func (m *Matcher) Snapshot(pairID string) (BookSnapshot, error) {
	book, err := m.Book(pairID)
	if err != nil {
		return BookSnapshot{}, err
	}

	snap := BookSnapshot{
		PairID:     pairID,
		BuyVolume:  book.BuyVolume(),
		SellVolume: book.SellVolume(),
		LastTraded: book.LastTradedPrice(),
	}
	if bids := book.Bids(); len(bids) > 0 {
		price := bids[0].Price
		snap.BestBid = &price
	}
	if asks := book.Asks(); len(asks) > 0 {
		price := asks[0].Price
		snap.BestAsk = &price
	}
	return snap, nil
}
