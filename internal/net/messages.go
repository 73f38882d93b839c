package net

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/saidin/matchbook/internal/common"
)

var (
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrMessageTooShort    = errors.New("message too short for specified field length")
)

type MessageType int

const (
	Heartbeat MessageType = iota
	NewOrder
	CancelOrder
	UpdateOrder
	LogBook
)

type ReportMessageType int

const (
	ExecutionReport ReportMessageType = iota
	ErrorReport
)

// Message is anything the wire protocol can parse off a connection.
// Every concrete message also carries a RequestID, minted client-side,
// that correlates a request to whatever ExecutionReport/ErrorReport
// eventually answers it -- the engine itself never sees these ids.
type Message interface {
	GetType() MessageType
	GetRequestID() uuid.UUID
}

const (
	baseMessageHeaderLen = 2
	requestIDLen         = 16
)

type BaseMessage struct {
	TypeOf    MessageType // 2 bytes
	RequestID uuid.UUID   // 16 bytes
}

func (m BaseMessage) GetType() MessageType    { return m.TypeOf }
func (m BaseMessage) GetRequestID() uuid.UUID { return m.RequestID }

func parseMessage(msg []byte) (Message, error) {
	if len(msg) < baseMessageHeaderLen {
		return nil, errors.New("message too short to contain header")
	}

	typeOf := MessageType(binary.BigEndian.Uint16(msg[0:2]))
	msg = msg[2:]
	switch typeOf {
	case NewOrder:
		return parseNewOrder(msg)
	case CancelOrder:
		return parseCancelOrder(msg)
	case UpdateOrder:
		return parseUpdateOrder(msg)
	case LogBook:
		return parseLogBook(msg)
	default:
		return nil, ErrInvalidMessageType
	}
}

// readRequestID and readString give every parse* function a common way
// to peel the RequestID prefix and length-prefixed strings off the
// wire without repeating bounds checks.
func readRequestID(msg []byte) (uuid.UUID, []byte, error) {
	if len(msg) < requestIDLen {
		return uuid.UUID{}, nil, ErrMessageTooShort
	}
	id, err := uuid.FromBytes(msg[:requestIDLen])
	if err != nil {
		return uuid.UUID{}, nil, fmt.Errorf("parsing request id: %w", err)
	}
	return id, msg[requestIDLen:], nil
}

func readString(msg []byte) (string, []byte, error) {
	if len(msg) < 2 {
		return "", nil, ErrMessageTooShort
	}
	n := int(binary.BigEndian.Uint16(msg[0:2]))
	msg = msg[2:]
	if len(msg) < n {
		return "", nil, ErrMessageTooShort
	}
	return string(msg[:n]), msg[n:], nil
}

// NewOrderMessage places a new order on pairID. Market kinds (Buy,
// Sell) ignore Price even if HasPrice was somehow set; limit kinds
// require it.
type NewOrderMessage struct {
	BaseMessage
	PairID   string
	Kind     common.OrderKind
	HasPrice bool
	Price    float64
	Quantity float64
}

func (o *NewOrderMessage) ToOrderParams() (common.Price, error) {
	if !o.HasPrice {
		return common.Price{}, nil
	}
	return common.Of(o.Price)
}

func parseNewOrder(msg []byte) (NewOrderMessage, error) {
	id, msg, err := readRequestID(msg)
	if err != nil {
		return NewOrderMessage{}, err
	}
	pairID, msg, err := readString(msg)
	if err != nil {
		return NewOrderMessage{}, err
	}
	if len(msg) < 1+1+8+8 {
		return NewOrderMessage{}, ErrMessageTooShort
	}
	kind := common.OrderKind(msg[0])
	hasPrice := msg[1] != 0
	price := math.Float64frombits(binary.BigEndian.Uint64(msg[2:10]))
	quantity := math.Float64frombits(binary.BigEndian.Uint64(msg[10:18]))

	return NewOrderMessage{
		BaseMessage: BaseMessage{TypeOf: NewOrder, RequestID: id},
		PairID:      pairID,
		Kind:        kind,
		HasPrice:    hasPrice,
		Price:       price,
		Quantity:    quantity,
	}, nil
}

type CancelOrderMessage struct {
	BaseMessage
	OrderID string
}

func parseCancelOrder(msg []byte) (CancelOrderMessage, error) {
	id, msg, err := readRequestID(msg)
	if err != nil {
		return CancelOrderMessage{}, err
	}
	orderID, _, err := readString(msg)
	if err != nil {
		return CancelOrderMessage{}, err
	}
	return CancelOrderMessage{
		BaseMessage: BaseMessage{TypeOf: CancelOrder, RequestID: id},
		OrderID:     orderID,
	}, nil
}

// UpdateOrderMessage amends a resting order. A nil field means "leave
// unchanged" -- this is the wire counterpart of common.Order.Update's
// pointer-means-unset convention.
type UpdateOrderMessage struct {
	BaseMessage
	OrderID  string
	Kind     *common.OrderKind
	Price    *float64
	Quantity *float64
}

func parseUpdateOrder(msg []byte) (UpdateOrderMessage, error) {
	id, msg, err := readRequestID(msg)
	if err != nil {
		return UpdateOrderMessage{}, err
	}
	orderID, msg, err := readString(msg)
	if err != nil {
		return UpdateOrderMessage{}, err
	}
	if len(msg) < 1+1+1 {
		return UpdateOrderMessage{}, ErrMessageTooShort
	}

	m := UpdateOrderMessage{
		BaseMessage: BaseMessage{TypeOf: UpdateOrder, RequestID: id},
		OrderID:     orderID,
	}

	hasKind := msg[0] != 0
	kind := common.OrderKind(msg[1])
	msg = msg[2:]
	if hasKind {
		m.Kind = &kind
	}

	if len(msg) < 1 {
		return UpdateOrderMessage{}, ErrMessageTooShort
	}
	hasPrice := msg[0] != 0
	msg = msg[1:]
	if hasPrice {
		if len(msg) < 8 {
			return UpdateOrderMessage{}, ErrMessageTooShort
		}
		price := math.Float64frombits(binary.BigEndian.Uint64(msg[0:8]))
		m.Price = &price
		msg = msg[8:]
	}

	if len(msg) < 1 {
		return UpdateOrderMessage{}, ErrMessageTooShort
	}
	hasQuantity := msg[0] != 0
	msg = msg[1:]
	if hasQuantity {
		if len(msg) < 8 {
			return UpdateOrderMessage{}, ErrMessageTooShort
		}
		quantity := math.Float64frombits(binary.BigEndian.Uint64(msg[0:8]))
		m.Quantity = &quantity
	}

	return m, nil
}

// LogBookMessage asks the server to write a snapshot of pairID's book
// to its own log; it produces no wire report.
type LogBookMessage struct {
	BaseMessage
	PairID string
}

func parseLogBook(msg []byte) (LogBookMessage, error) {
	id, msg, err := readRequestID(msg)
	if err != nil {
		return LogBookMessage{}, err
	}
	pairID, _, err := readString(msg)
	if err != nil {
		return LogBookMessage{}, err
	}
	return LogBookMessage{
		BaseMessage: BaseMessage{TypeOf: LogBook, RequestID: id},
		PairID:      pairID,
	}, nil
}

// Report is the wire reply to a NewOrder, CancelOrder, or UpdateOrder
// request: one ExecutionReport per trade that fills one of the
// client's orders, and an ErrorReport for a rejected request or for a
// market order whose unfilled residual was dropped (which may follow
// that order's ExecutionReports).
type Report struct {
	MessageType ReportMessageType
	RequestID   uuid.UUID
	OrderID     string
	Quantity    float64
	Price       float64
	Timestamp   uint64
	Err         string
}

const reportFixedHeaderLen = 1 + requestIDLen + 8 + 8 + 8

// Serialize converts the report to be sent on the wire.
func (r *Report) Serialize() ([]byte, error) {
	orderIDBytes := []byte(r.OrderID)
	errBytes := []byte(r.Err)
	totalSize := reportFixedHeaderLen + 2 + len(orderIDBytes) + 2 + len(errBytes)

	buf := make([]byte, totalSize)
	buf[0] = byte(r.MessageType)
	idBytes, err := r.RequestID.MarshalBinary()
	if err != nil {
		return nil, err
	}
	copy(buf[1:1+requestIDLen], idBytes)

	offset := 1 + requestIDLen
	binary.BigEndian.PutUint64(buf[offset:offset+8], math.Float64bits(r.Quantity))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:offset+8], math.Float64bits(r.Price))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:offset+8], r.Timestamp)
	offset += 8

	binary.BigEndian.PutUint16(buf[offset:offset+2], uint16(len(orderIDBytes)))
	offset += 2
	copy(buf[offset:], orderIDBytes)
	offset += len(orderIDBytes)

	binary.BigEndian.PutUint16(buf[offset:offset+2], uint16(len(errBytes)))
	offset += 2
	copy(buf[offset:], errBytes)

	return buf, nil
}

// generateWireTradeReport serializes one execution report for a single
// trade, from the perspective of orderID -- the recipient's own order,
// which may be either the aggressor or the resting side of trade.
func generateWireTradeReport(requestID uuid.UUID, orderID string, trade common.Trade) ([]byte, error) {
	report := Report{
		MessageType: ExecutionReport,
		RequestID:   requestID,
		OrderID:     orderID,
		Quantity:    trade.ExecutedQty,
		Price:       trade.ExecutedPrice.ToReal(),
		Timestamp:   uint64(trade.Timestamp.Unix()),
	}
	return report.Serialize()
}

func generateWireErrorReport(requestID uuid.UUID, orderID string, err error) ([]byte, error) {
	report := Report{
		MessageType: ErrorReport,
		RequestID:   requestID,
		OrderID:     orderID,
		Err:         err.Error(),
	}
	return report.Serialize()
}
