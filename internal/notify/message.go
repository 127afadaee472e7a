package notify

import (
	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"

	"exchange/pkg/exception"
)

// Client request types.
const (
	RequestSubscribe   = "subscribe"
	RequestUnsubscribe = "unsubscribe"
	RequestPing        = "ping"
)

// Server message types.
const (
	MessageConnected    = "connected"
	MessageSubscribed   = "subscribed"
	MessageUnsubscribed = "unsubscribed"
	MessagePong         = "pong"
	MessageTrade        = "trade"
	MessageCandle       = "candle"
	MessageError        = "error"
)

// Error codes sent to clients.
const (
	CodeInvalidJSON    = "INVALID_JSON"
	CodeUnknownMessage = "UNKNOWN_MESSAGE"
	CodeInvalidChannel = "INVALID_CHANNEL"
)

// Request is a client command.
type Request struct {
	Type     string   `json:"type"`
	Channels []string `json:"channels,omitempty"`
}

func DecodeRequest(data []byte) (Request, error) {
	var r Request
	if err := sonic.Unmarshal(data, &r); err != nil {
		return Request{}, errors.Wrap(exception.ErrMalformedEvent, err.Error())
	}
	return r, nil
}

type connectedMessage struct {
	Type      string `json:"type"`
	ClientID  string `json:"clientId"`
	Timestamp int64  `json:"timestamp"`
}

type ackMessage struct {
	Type     string   `json:"type"`
	Channels []string `json:"channels"`
}

type pongMessage struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type bookMessage struct {
	Type      BookType    `json:"type"`
	Channel   string      `json:"channel"`
	Sequence  uint64      `json:"sequence"`
	Bids      [][2]string `json:"bids"`
	Asks      [][2]string `json:"asks"`
	Timestamp int64       `json:"timestamp"`
}

type tradeMessage struct {
	Type    string    `json:"type"`
	Channel string    `json:"channel"`
	Data    TradeTape `json:"data"`
}

type candleMessage struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	Data    Candle `json:"data"`
}

func EncodeConnected(clientID string, ts int64) ([]byte, error) {
	return sonic.Marshal(connectedMessage{Type: MessageConnected, ClientID: clientID, Timestamp: ts})
}

// EncodeAck encodes a subscribed or unsubscribed acknowledgement.
func EncodeAck(kind string, channels []string) ([]byte, error) {
	if channels == nil {
		channels = []string{}
	}
	return sonic.Marshal(ackMessage{Type: kind, Channels: channels})
}

func EncodePong(ts int64) ([]byte, error) {
	return sonic.Marshal(pongMessage{Type: MessagePong, Timestamp: ts})
}

func EncodeError(code, message string) ([]byte, error) {
	return sonic.Marshal(errorMessage{Type: MessageError, Code: code, Message: message})
}

func EncodeBook(channel string, b Book) ([]byte, error) {
	return sonic.Marshal(bookMessage{
		Type:      b.Type,
		Channel:   channel,
		Sequence:  b.Sequence,
		Bids:      nonNil(b.Bids),
		Asks:      nonNil(b.Asks),
		Timestamp: b.Timestamp,
	})
}

func EncodeTrade(channel string, t TradeTape) ([]byte, error) {
	return sonic.Marshal(tradeMessage{Type: MessageTrade, Channel: channel, Data: t})
}

func EncodeCandle(channel string, c Candle) ([]byte, error) {
	return sonic.Marshal(candleMessage{Type: MessageCandle, Channel: channel, Data: c})
}

func nonNil(levels [][2]string) [][2]string {
	if levels == nil {
		return [][2]string{}
	}
	return levels
}
