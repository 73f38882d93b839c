// Package net is the TCP frontend for the matching engine: a small
// binary wire protocol, a worker-pool-backed connection handler, and
// per-request execution/error reports. None of this is exercised by
// the engine's own tests -- it is the demo harness a human dials into.
package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/saidin/matchbook/internal/common"
	"github.com/saidin/matchbook/internal/engine"
	"github.com/saidin/matchbook/internal/utils"
	tomb "gopkg.in/tomb.v2"
)

const (
	maxRecvSize        = 4 * 1024
	defaultNWorkers    = 10
	defaultConnTimeout = time.Second
)

var (
	ErrImproperConversion = errors.New("improper type conversion")
	ErrClientDoesNotExist = errors.New("client does not exist")
)

// ClientSession is one connected TCP session.
type ClientSession struct {
	conn net.Conn
}

// ClientMessage links a parsed message to the connection that sent it.
type ClientMessage struct {
	clientAddress string
	message       Message
}

// orderOwner remembers which connection and request correlation id
// submitted an order, so a trade that fills it later -- possibly as
// the resting side of someone else's aggressive order -- can still be
// reported back to the right client.
type orderOwner struct {
	clientAddress string
	requestID     uuid.UUID
}

type Server struct {
	address            string
	port               int
	matcher            *engine.Matcher
	pool               utils.WorkerPool
	cancel             context.CancelFunc
	clientSessions     map[string]ClientSession
	clientSessionsLock sync.Mutex
	clientMessages     chan ClientMessage
	orderOwners        map[string]orderOwner
	orderOwnersLock    sync.Mutex
}

func New(address string, port int, matcher *engine.Matcher) *Server {
	return &Server{
		address:        address,
		port:           port,
		matcher:        matcher,
		pool:           utils.NewWorkerPool(defaultNWorkers),
		clientSessions: make(map[string]ClientSession),
		clientMessages: make(chan ClientMessage, 1),
		orderOwners:    make(map[string]orderOwner),
	}
}

func (s *Server) Shutdown() {
	log.Info().Msg("server shutting down")
	s.cancel()
}

func (s *Server) Run(ctx context.Context) {
	defer s.Shutdown()

	ctx, s.cancel = context.WithCancel(ctx)
	t, ctx := tomb.WithContext(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		log.Error().Err(err).Msg("unable to start listener")
		return
	}
	defer func() {
		if err := listener.Close(); err != nil {
			log.Error().Err(err).Msg("unable to close listener")
		}
	}()

	t.Go(func() error {
		s.pool.Setup(t, s.handleConnection)
		return nil
	})

	t.Go(func() error {
		return s.sessionHandler(t)
	})

	for _, pairID := range s.matcher.PairIDs() {
		pairID := pairID
		events, err := s.matcher.Events(pairID)
		if err != nil {
			log.Error().Err(err).Str("pairID", pairID).Msg("unable to watch pair trade stream")
			continue
		}
		t.Go(func() error {
			s.watchTrades(t, events)
			return nil
		})
	}

	log.Info().Msg("server running")

	for {
		select {
		case <-ctx.Done():
			return
		default:
			log.Info().Msg("listening for new client connections")
			conn, err := listener.Accept()
			if err != nil {
				log.Error().Err(err).Msg("error accepting client")
				continue
			}

			log.Info().
				Str("address", conn.LocalAddr().String()).
				Msg("new client added")
			s.addClientSession(conn)
			s.pool.AddTask(conn)
		}
	}
}

// watchTrades drains one book's trade stream for the lifetime of the
// server and turns each event into a wire report addressed to
// whichever client originally submitted the order it concerns.
func (s *Server) watchTrades(t *tomb.Tomb, events <-chan engine.TradeEvent) {
	for {
		select {
		case <-t.Dying():
			return
		case event := <-events:
			if event.Trade != nil {
				s.reportTrade(*event.Trade)
				continue
			}
			if event.Err != nil {
				owner, ok := s.lookupOwner(event.OrderID)
				if ok {
					s.reportError(owner.clientAddress, owner.requestID, event.OrderID, event.Err)
				}
			}
		}
	}
}

// reportTrade sends one ExecutionReport to each side of a trade,
// looked up by the resting and aggressing order ids.
func (s *Server) reportTrade(trade common.Trade) {
	log.Info().Str("trade", trade.String()).Msg("trade executed")
	for _, orderID := range []string{trade.Aggressor.ID(), trade.Resting.ID()} {
		owner, ok := s.lookupOwner(orderID)
		if !ok {
			continue
		}
		s.sendTradeReport(owner, orderID, trade)
	}
}

func (s *Server) sendTradeReport(owner orderOwner, orderID string, trade common.Trade) {
	s.clientSessionsLock.Lock()
	client, ok := s.clientSessions[owner.clientAddress]
	s.clientSessionsLock.Unlock()
	if !ok {
		return
	}

	wire, err := generateWireTradeReport(owner.requestID, orderID, trade)
	if err != nil {
		log.Error().Err(err).Msg("unable to serialize trade report")
		return
	}
	if _, err := client.conn.Write(wire); err != nil {
		log.Error().Err(err).Str("clientAddress", owner.clientAddress).Msg("unable to send trade report")
		s.deleteClientSession(owner.clientAddress)
	}
}

func (s *Server) reportError(clientAddress string, requestID uuid.UUID, orderID string, reportErr error) {
	s.clientSessionsLock.Lock()
	client, ok := s.clientSessions[clientAddress]
	s.clientSessionsLock.Unlock()
	if !ok {
		return
	}

	wire, err := generateWireErrorReport(requestID, orderID, reportErr)
	if err != nil {
		log.Error().Err(err).Msg("unable to serialize error report")
		return
	}
	if _, err := client.conn.Write(wire); err != nil {
		log.Error().Err(err).Str("clientAddress", clientAddress).Msg("unable to send error report")
		s.deleteClientSession(clientAddress)
	}
}

// sessionHandler reads off incoming messages from clients and handles
// high-level session logic. Messages are received from the pool of
// workers.
func (s *Server) sessionHandler(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case message := <-s.clientMessages:
			s.handleMessage(message)
		}
	}
}

func (s *Server) handleMessage(message ClientMessage) {
	switch m := message.message.(type) {
	case NewOrderMessage:
		price, err := m.ToOrderParams()
		if err != nil {
			s.reportError(message.clientAddress, m.RequestID, "", err)
			return
		}
		orderID, err := s.matcher.AddOrder(m.PairID, m.Kind, price, m.HasPrice, m.Quantity)
		if err != nil {
			log.Error().Err(err).Str("clientAddress", message.clientAddress).Msg("error placing order")
			s.reportError(message.clientAddress, m.RequestID, "", err)
			return
		}
		s.registerOwner(orderID, message.clientAddress, m.RequestID)
		log.Info().Str("orderID", orderID).Str("pairID", m.PairID).Msg("order placed")

	case CancelOrderMessage:
		if err := s.matcher.CancelOrder(m.OrderID); err != nil {
			log.Error().Err(err).Str("uuid", m.OrderID).Msg("error cancelling order")
			s.reportError(message.clientAddress, m.RequestID, m.OrderID, err)
		}

	case UpdateOrderMessage:
		var price *common.Price
		if m.Price != nil {
			p, err := common.Of(*m.Price)
			if err != nil {
				s.reportError(message.clientAddress, m.RequestID, m.OrderID, err)
				return
			}
			price = &p
		}
		if err := s.matcher.UpdateOrder(m.OrderID, m.Kind, price, m.Quantity); err != nil {
			log.Error().Err(err).Str("uuid", m.OrderID).Msg("error updating order")
			s.reportError(message.clientAddress, m.RequestID, m.OrderID, err)
			return
		}
		s.registerOwner(m.OrderID, message.clientAddress, m.RequestID)

	case LogBookMessage:
		s.logBook(m.PairID)

	default:
		log.Error().Any("message", message).Msg("invalid message type")
	}
}

// logBook writes a structured snapshot of one pair's book to the
// server's own log -- it never reaches the wire.
func (s *Server) logBook(pairID string) {
	snap, err := s.matcher.Snapshot(pairID)
	if err != nil {
		log.Error().Err(err).Str("pairID", pairID).Msg("unable to snapshot book")
		return
	}

	event := log.Info().
		Str("pairID", snap.PairID).
		Float64("buyVolume", snap.BuyVolume).
		Float64("sellVolume", snap.SellVolume).
		Str("lastTraded", snap.LastTraded.String())
	if snap.BestBid != nil {
		event = event.Str("bestBid", snap.BestBid.String())
	}
	if snap.BestAsk != nil {
		event = event.Str("bestAsk", snap.BestAsk.String())
	}
	event.Msg("book snapshot")
}

// handleConnection reads the next message off the connection, parses
// it, and passes it forward to sessionHandler. If the connection dies
// the client session is cleaned up. This method touches no shared
// state directly besides the session map's own locking, so it is safe
// to run from many pool workers at once.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	conn, ok := task.(net.Conn)
	if !ok {
		return ErrImproperConversion
	}

	keepOpen := false
	defer func() {
		if keepOpen {
			return
		}
		if err := conn.Close(); err != nil {
			log.Error().Str("address", conn.LocalAddr().String()).Err(err).Msg("error closing connection")
		}
	}()

	if err := conn.SetDeadline(time.Now().Add(defaultConnTimeout)); err != nil {
		log.Error().
			Str("address", conn.LocalAddr().String()).
			Err(err).
			Msg("failed setting deadline for connection")
		return nil
	}

	buffer := make([]byte, maxRecvSize)
	select {
	case <-t.Dying():
		return nil
	default:
		n, err := conn.Read(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				// Idle client, not a dead one: poll it again later.
				keepOpen = true
				s.pool.AddTask(conn)
				return nil
			}
			log.Error().
				Err(err).
				Str("address", conn.LocalAddr().String()).
				Msg("error reading from connection")
			s.deleteClientSession(conn.LocalAddr().String())
			return nil
		}

		message, err := parseMessage(buffer[:n])
		if err != nil {
			log.Error().
				Err(err).
				Str("address", conn.LocalAddr().String()).
				Msg("error parsing message")
			s.deleteClientSession(conn.LocalAddr().String())
			return nil
		}

		s.clientMessages <- ClientMessage{
			message:       message,
			clientAddress: conn.LocalAddr().String(),
		}

		keepOpen = true
		s.pool.AddTask(conn)
	}
	return nil
}

func (s *Server) addClientSession(conn net.Conn) {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	s.clientSessions[conn.LocalAddr().String()] = ClientSession{conn: conn}
}

func (s *Server) deleteClientSession(address string) {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	delete(s.clientSessions, address)
}

func (s *Server) registerOwner(orderID, clientAddress string, requestID uuid.UUID) {
	s.orderOwnersLock.Lock()
	defer s.orderOwnersLock.Unlock()

	s.orderOwners[orderID] = orderOwner{clientAddress: clientAddress, requestID: requestID}
}

func (s *Server) lookupOwner(orderID string) (orderOwner, bool) {
	s.orderOwnersLock.Lock()
	defer s.orderOwnersLock.Unlock()

	owner, ok := s.orderOwners[orderID]
	return owner, ok
}
