package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"net"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/saidin/matchbook/internal/common"
	wire "github.com/saidin/matchbook/internal/net"
)

func main() {
	serverAddr := flag.String("server", "127.0.0.1:9001", "address of the matching server")
	action := flag.String("action", "place", "action to perform: place, cancel, amend, log")

	pairID := flag.String("pair", "BTC-USD", "trading pair id")
	sideStr := flag.String("side", "buy", "order side: buy or sell")
	typeStr := flag.String("type", "limit", "order type: limit or market")
	price := flag.Float64("price", 100.0, "limit price")
	qty := flag.Float64("qty", 10, "quantity")
	orderID := flag.String("order", "", "order id, required for cancel/amend")

	flag.Parse()

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("failed to connect to %s: %v", *serverAddr, err)
	}
	defer conn.Close()
	fmt.Printf("connected to %s\n", *serverAddr)

	go readReports(conn)

	kind := kindFor(*sideStr, *typeStr)

	switch strings.ToLower(*action) {
	case "place":
		if err := sendNewOrder(conn, *pairID, kind, *price, *qty); err != nil {
			log.Printf("failed to place order: %v", err)
		} else {
			fmt.Printf("-> placed %s %s qty=%v price=%v\n", kind, *pairID, *qty, *price)
		}

	case "cancel":
		if *orderID == "" {
			log.Fatal("-order is required for cancel")
		}
		if err := sendCancelOrder(conn, *orderID); err != nil {
			log.Printf("failed to send cancel: %v", err)
		} else {
			fmt.Printf("-> cancel requested for %s\n", *orderID)
		}

	case "amend":
		if *orderID == "" {
			log.Fatal("-order is required for amend")
		}
		if err := sendUpdateOrder(conn, *orderID, *price, *qty); err != nil {
			log.Printf("failed to send amend: %v", err)
		} else {
			fmt.Printf("-> amend requested for %s: qty=%v price=%v\n", *orderID, *qty, *price)
		}

	case "log":
		if err := sendLogBook(conn, *pairID); err != nil {
			log.Printf("failed to send log request: %v", err)
		} else {
			fmt.Printf("-> log requested for %s\n", *pairID)
		}

	default:
		log.Fatalf("unknown action: %s", *action)
	}

	fmt.Println("listening for reports... (press Ctrl+C to exit)")
	select {}
}

func kindFor(side, orderType string) common.OrderKind {
	isBuy := strings.EqualFold(side, "buy")
	isLimit := strings.EqualFold(orderType, "limit")
	switch {
	case isBuy && isLimit:
		return common.LimitBuy
	case isBuy && !isLimit:
		return common.Buy
	case !isBuy && isLimit:
		return common.LimitSell
	default:
		return common.Sell
	}
}

func writeHeader(msgType wire.MessageType, requestID uuid.UUID) []byte {
	buf := make([]byte, 2+16)
	binary.BigEndian.PutUint16(buf[0:2], uint16(msgType))
	idBytes, _ := requestID.MarshalBinary()
	copy(buf[2:18], idBytes)
	return buf
}

func writeString(s string) []byte {
	buf := make([]byte, 2+len(s))
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(s)))
	copy(buf[2:], s)
	return buf
}

func sendNewOrder(conn net.Conn, pairID string, kind common.OrderKind, price, qty float64) error {
	buf := writeHeader(wire.NewOrder, uuid.New())
	buf = append(buf, writeString(pairID)...)
	buf = append(buf, byte(kind))
	if kind.IsLimit() {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	priceBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(priceBuf, math.Float64bits(price))
	buf = append(buf, priceBuf...)
	qtyBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(qtyBuf, math.Float64bits(qty))
	buf = append(buf, qtyBuf...)

	_, err := conn.Write(buf)
	return err
}

func sendCancelOrder(conn net.Conn, orderID string) error {
	buf := writeHeader(wire.CancelOrder, uuid.New())
	buf = append(buf, writeString(orderID)...)
	_, err := conn.Write(buf)
	return err
}

func sendUpdateOrder(conn net.Conn, orderID string, price, qty float64) error {
	buf := writeHeader(wire.UpdateOrder, uuid.New())
	buf = append(buf, writeString(orderID)...)

	// kind unset
	buf = append(buf, 0, 0)

	// price set
	buf = append(buf, 1)
	priceBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(priceBuf, math.Float64bits(price))
	buf = append(buf, priceBuf...)

	// quantity set
	buf = append(buf, 1)
	qtyBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(qtyBuf, math.Float64bits(qty))
	buf = append(buf, qtyBuf...)

	_, err := conn.Write(buf)
	return err
}

func sendLogBook(conn net.Conn, pairID string) error {
	buf := writeHeader(wire.LogBook, uuid.New())
	buf = append(buf, writeString(pairID)...)
	_, err := conn.Write(buf)
	return err
}

// readReports continuously reads and parses Report messages from the
// server. Report layout matches internal/net.Report.Serialize.
func readReports(conn net.Conn) {
	const fixedHeaderLen = 1 + 16 + 8 + 8 + 8

	for {
		headerBuf := make([]byte, fixedHeaderLen)
		if _, err := io.ReadFull(conn, headerBuf); err != nil {
			if err != io.EOF {
				log.Printf("connection lost: %v", err)
			}
			os.Exit(0)
		}

		msgType := wire.ReportMessageType(headerBuf[0])
		requestID, _ := uuid.FromBytes(headerBuf[1:17])
		quantity := math.Float64frombits(binary.BigEndian.Uint64(headerBuf[17:25]))
		price := math.Float64frombits(binary.BigEndian.Uint64(headerBuf[25:33]))

		orderIDLenBuf := make([]byte, 2)
		if _, err := io.ReadFull(conn, orderIDLenBuf); err != nil {
			log.Printf("error reading report body: %v", err)
			return
		}
		orderIDLen := binary.BigEndian.Uint16(orderIDLenBuf)
		orderIDBuf := make([]byte, orderIDLen)
		if orderIDLen > 0 {
			if _, err := io.ReadFull(conn, orderIDBuf); err != nil {
				log.Printf("error reading report body: %v", err)
				return
			}
		}

		errLenBuf := make([]byte, 2)
		if _, err := io.ReadFull(conn, errLenBuf); err != nil {
			log.Printf("error reading report body: %v", err)
			return
		}
		errLen := binary.BigEndian.Uint16(errLenBuf)
		errBuf := make([]byte, errLen)
		if errLen > 0 {
			if _, err := io.ReadFull(conn, errBuf); err != nil {
				log.Printf("error reading report body: %v", err)
				return
			}
		}

		if msgType == wire.ErrorReport {
			fmt.Printf("\n[ERROR %s] order=%s %s\n", requestID, string(orderIDBuf), string(errBuf))
		} else {
			fmt.Printf("\n[EXECUTION %s] order=%s qty=%v price=%v\n", requestID, string(orderIDBuf), quantity, price)
		}
	}
}
