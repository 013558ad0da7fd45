package catalog

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	realtimeProtocol      = "graphql-ws"
	writeTimeout          = 10 * time.Second
	handshakeTimeout      = 15 * time.Second
	defaultKeepAlive      = 5 * time.Minute
	maxInboundMessageSize = 1 << 20
)

const (
	msgConnectionInit  = "connection_init"
	msgConnectionAck   = "connection_ack"
	msgConnectionError = "connection_error"
	msgStart           = "start"
	msgStartAck        = "start_ack"
	msgData            = "data"
	msgKeepAlive       = "ka"
	msgError           = "error"
	msgComplete        = "complete"
	msgStop            = "stop"
)

// realtimeMessage is the envelope of the realtime protocol.
type realtimeMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event is a product change pushed by the API.
type Event struct {
	Subscription Subscription
	Product      Product
}

// realtimeConn serialises writes on a websocket connection.
type realtimeConn struct {
	conn       *websocket.Conn
	writeMutex sync.Mutex
}

func (rc *realtimeConn) send(msg realtimeMessage) error {
	rc.writeMutex.Lock()
	defer rc.writeMutex.Unlock()
	if err := rc.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := rc.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	return nil
}

// Subscribe opens a realtime subscription and calls handler for every pushed product.
// It blocks until ctx is cancelled, returning nil, or until the connection fails.
// handler runs on the read loop and must not block for long.
func (c *Client) Subscribe(ctx context.Context, sub Subscription, handler func(Event)) error {
	query, ok := subscriptionQueries[sub]
	if !ok {
		return fmt.Errorf("catalog: unknown subscription %q", sub)
	}
	if handler == nil {
		return fmt.Errorf("catalog: subscription handler is nil")
	}
	headers, err := c.authHeaders(ctx)
	if err != nil {
		return err
	}
	endpoint, err := c.realtimeURL(headers)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
		Subprotocols:     []string{realtimeProtocol},
	}
	if transport, okTransport := c.httpClient.Transport.(*http.Transport); okTransport {
		dialer.Proxy = transport.Proxy
		dialer.NetDialContext = transport.DialContext
	}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("catalog: realtime dial: %w", err)
	}
	rc := &realtimeConn{conn: conn}
	conn.SetReadLimit(maxInboundMessageSize)

	var closeOnce sync.Once
	closeConn := func() { closeOnce.Do(func() { _ = conn.Close() }) }
	defer closeConn()

	keepAlive, err := c.handshake(rc)
	if err != nil {
		return err
	}

	id := uuid.NewString()
	if err = rc.send(realtimeMessage{ID: id, Type: msgStart, Payload: startPayload(query, headers)}); err != nil {
		return fmt.Errorf("catalog: realtime start: %w", err)
	}
	log.WithFields(log.Fields{"operation": string(sub), "key": id}).Debug("realtime subscription started")

	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			_ = rc.send(realtimeMessage{ID: id, Type: msgStop})
			closeConn()
		case <-stopped:
		}
	}()

	for {
		if errDeadline := conn.SetReadDeadline(time.Now().Add(keepAlive)); errDeadline != nil {
			return fmt.Errorf("catalog: set read deadline: %w", errDeadline)
		}
		var msg realtimeMessage
		if errRead := conn.ReadJSON(&msg); errRead != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("catalog: realtime read: %w", errRead)
		}
		switch msg.Type {
		case msgKeepAlive, msgStartAck:
		case msgData:
			if msg.ID != id {
				continue
			}
			item := gjson.GetBytes(msg.Payload, "data."+string(sub))
			if !item.Exists() || item.Type == gjson.Null {
				continue
			}
			handler(Event{Subscription: sub, Product: productFromResult(item)})
		case msgError:
			return &GraphQLError{Errors: realtimeErrors(msg.Payload)}
		case msgComplete:
			if msg.ID == id {
				return nil
			}
		default:
			log.WithField("event", msg.Type).Debug("ignoring realtime message")
		}
	}
}

// handshake performs connection_init and returns the keep-alive timeout announced by the server.
func (c *Client) handshake(rc *realtimeConn) (time.Duration, error) {
	if err := rc.send(realtimeMessage{Type: msgConnectionInit}); err != nil {
		return 0, fmt.Errorf("catalog: realtime init: %w", err)
	}
	if err := rc.conn.SetReadDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		return 0, err
	}
	for {
		var msg realtimeMessage
		if err := rc.conn.ReadJSON(&msg); err != nil {
			return 0, fmt.Errorf("catalog: realtime handshake: %w", err)
		}
		switch msg.Type {
		case msgConnectionAck:
			keepAlive := defaultKeepAlive
			if ms := gjson.GetBytes(msg.Payload, "connectionTimeoutMs").Int(); ms > 0 {
				keepAlive = time.Duration(ms) * time.Millisecond
			}
			return keepAlive, nil
		case msgConnectionError, msgError:
			return 0, &GraphQLError{Errors: realtimeErrors(msg.Payload)}
		case msgKeepAlive:
		default:
			return 0, fmt.Errorf("catalog: realtime handshake: unexpected message %q", msg.Type)
		}
	}
}

func startPayload(query string, headers map[string]string) json.RawMessage {
	data, _ := sjson.Set(`{}`, "query", query)
	data, _ = sjson.Set(data, "variables", map[string]any{})
	payload, _ := sjson.Set(`{}`, "data", data)
	payload, _ = sjson.Set(payload, "extensions.authorization", headers)
	return json.RawMessage(payload)
}

func realtimeErrors(payload json.RawMessage) []ErrorItem {
	var items []ErrorItem
	gjson.GetBytes(payload, "errors").ForEach(func(_, item gjson.Result) bool {
		items = append(items, ErrorItem{
			Message:   item.Get("message").String(),
			ErrorType: item.Get("errorType").String(),
		})
		return true
	})
	if len(items) == 0 {
		items = append(items, ErrorItem{Message: "realtime subscription failed"})
	}
	return items
}

// realtimeURL returns the websocket endpoint with the encoded authorization header.
// Without an explicit realtime-endpoint it is derived from the GraphQL endpoint.
func (c *Client) realtimeURL(headers map[string]string) (string, error) {
	raw := c.realtimeEndpoint
	if raw == "" {
		raw = c.endpoint
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("catalog: parse realtime endpoint: %w", err)
	}
	if c.realtimeEndpoint == "" {
		switch u.Scheme {
		case "https":
			u.Scheme = "wss"
		case "http":
			u.Scheme = "ws"
		}
		u.Host = strings.Replace(u.Host, "appsync-api", "appsync-realtime-api", 1)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", errors.New("catalog: realtime endpoint must use ws or wss")
	}

	apiURL, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("catalog: parse endpoint: %w", err)
	}
	header := map[string]string{"host": apiURL.Host}
	for k, v := range headers {
		header[k] = v
	}
	encoded, err := json.Marshal(header)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("header", base64.StdEncoding.EncodeToString(encoded))
	q.Set("payload", base64.StdEncoding.EncodeToString([]byte("{}")))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
