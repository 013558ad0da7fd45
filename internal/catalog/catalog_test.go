package catalog

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/zstd"
	"github.com/lojinha-app/storefront/internal/config"
	"github.com/tidwall/gjson"
)

type staticTokens struct {
	token string
	err   error
}

func (s staticTokens) AccessToken(context.Context) (string, error) { return s.token, s.err }

type graphqlServer struct {
	*httptest.Server
	mu       sync.Mutex
	requests []*capturedRequest
	respond  func(req *capturedRequest) (status int, body string)
}

type capturedRequest struct {
	header http.Header
	body   gjson.Result
}

func newGraphQLServer(t *testing.T, respond func(req *capturedRequest) (int, string)) *graphqlServer {
	t.Helper()
	srv := &graphqlServer{respond: respond}
	srv.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		req := &capturedRequest{header: r.Header.Clone(), body: gjson.ParseBytes(raw)}
		srv.mu.Lock()
		srv.requests = append(srv.requests, req)
		srv.mu.Unlock()
		status, body := srv.respond(req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, endpoint string, tokens TokenSource, apiKey string) *Client {
	t.Helper()
	cfg := &config.Config{API: config.APIConfig{Endpoint: endpoint, APIKey: apiKey, PageSize: 2}}
	cfg.ApplyDefaults()
	client, err := NewClient(cfg, tokens)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	return client
}

func TestNewClientRequiresEndpoint(t *testing.T) {
	if _, err := NewClient(&config.Config{}, nil); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestListProductsFollowsPaginationAndDropsDeleted(t *testing.T) {
	srv := newGraphQLServer(t, func(req *capturedRequest) (int, string) {
		switch req.body.Get("variables.nextToken").String() {
		case "":
			return http.StatusOK, `{"data":{"listProducts":{"items":[
				{"id":"1","name":"Caneca","price":19.9,"image":"products/1-caneca.jpg","_version":1},
				{"id":"2","name":"Camiseta","price":49.5,"_deleted":true}
			],"nextToken":"page-2"}}}`
		case "page-2":
			return http.StatusOK, `{"data":{"listProducts":{"items":[
				{"id":"3","name":"Boné","price":35,"category":"acessorios","createdAt":"2024-05-01T12:00:00.000Z"},
				null
			],"nextToken":null}}}`
		}
		return http.StatusBadRequest, `{"errors":[{"message":"bad token"}]}`
	})
	client := newTestClient(t, srv.URL, staticTokens{token: "user-token"}, "")

	products, err := client.ListProducts(context.Background())
	if err != nil {
		t.Fatalf("ListProducts returned error: %v", err)
	}
	if len(products) != 2 || products[0].ID != "1" || products[1].ID != "3" {
		t.Fatalf("unexpected products: %+v", products)
	}
	if products[1].Category != "acessorios" || products[1].CreatedAt.IsZero() {
		t.Fatalf("expected decoded fields on product 3, got %+v", products[1])
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if len(srv.requests) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(srv.requests))
	}
	first := srv.requests[0]
	if got := first.header.Get("Authorization"); got != "user-token" {
		t.Fatalf("expected user token authorization, got %q", got)
	}
	if got := first.body.Get("variables.limit").Int(); got != 2 {
		t.Fatalf("expected limit 2, got %d", got)
	}
	if !strings.Contains(first.body.Get("query").String(), "listProducts") {
		t.Fatalf("expected listProducts query, got %s", first.body.Get("query").String())
	}
}

func TestListProductsRejectsRepeatedToken(t *testing.T) {
	srv := newGraphQLServer(t, func(*capturedRequest) (int, string) {
		return http.StatusOK, `{"data":{"listProducts":{"items":[],"nextToken":"same"}}}`
	})
	client := newTestClient(t, srv.URL, nil, "key")
	if _, err := client.ListProducts(context.Background()); err == nil {
		t.Fatalf("expected error for repeated page token")
	}
}

func TestExecuteDecodesCompressedResponses(t *testing.T) {
	payload := `{"data":{"getProduct":{"id":"9","name":"Vaso","price":12.5}}}`
	encoders := map[string]func(w io.Writer) io.WriteCloser{
		"gzip": func(w io.Writer) io.WriteCloser { return gzip.NewWriter(w) },
		"br":   func(w io.Writer) io.WriteCloser { return brotli.NewWriter(w) },
		"zstd": func(w io.Writer) io.WriteCloser {
			enc, err := zstd.NewWriter(w)
			if err != nil {
				panic(err)
			}
			return enc
		},
	}
	for name, newEncoder := range encoders {
		name, newEncoder := name, newEncoder
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			enc := newEncoder(&buf)
			if _, err := io.WriteString(enc, payload); err != nil {
				t.Fatalf("encode: %v", err)
			}
			if err := enc.Close(); err != nil {
				t.Fatalf("close encoder: %v", err)
			}
			compressed := buf.Bytes()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if !strings.Contains(r.Header.Get("Accept-Encoding"), name) {
					t.Errorf("expected %s to be accepted, got %q", name, r.Header.Get("Accept-Encoding"))
				}
				w.Header().Set("Content-Encoding", name)
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write(compressed)
			}))
			defer srv.Close()

			client := newTestClient(t, srv.URL, nil, "key")
			product, err := client.GetProduct(context.Background(), "9")
			if err != nil {
				t.Fatalf("GetProduct returned error: %v", err)
			}
			if product.Name != "Vaso" || product.Price != 12.5 {
				t.Fatalf("unexpected product: %+v", product)
			}
		})
	}
}

func TestExecuteMapsGraphQLErrors(t *testing.T) {
	srv := newGraphQLServer(t, func(*capturedRequest) (int, string) {
		return http.StatusUnauthorized, `{"errors":[{"errorType":"Unauthorized","message":"Not Authorized to access listProducts on type Query","path":["listProducts"]}]}`
	})
	client := newTestClient(t, srv.URL, nil, "key")

	_, err := client.ListProducts(context.Background())
	var gqlErr *GraphQLError
	if !errors.As(err, &gqlErr) {
		t.Fatalf("expected *GraphQLError, got %T %v", err, err)
	}
	if gqlErr.StatusCode != http.StatusUnauthorized || len(gqlErr.Errors) != 1 {
		t.Fatalf("unexpected error: %+v", gqlErr)
	}
	item := gqlErr.Errors[0]
	if item.ErrorType != "Unauthorized" || len(item.Path) != 1 || item.Path[0] != "listProducts" {
		t.Fatalf("unexpected error item: %+v", item)
	}
	if !strings.Contains(err.Error(), "Not Authorized") {
		t.Fatalf("expected message in error string, got %q", err.Error())
	}
}

func TestGetProductNotFound(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "null", body: `{"data":{"getProduct":null}}`},
		{name: "deleted", body: `{"data":{"getProduct":{"id":"1","name":"x","_deleted":true}}}`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			srv := newGraphQLServer(t, func(*capturedRequest) (int, string) { return http.StatusOK, tt.body })
			client := newTestClient(t, srv.URL, nil, "key")
			if _, err := client.GetProduct(context.Background(), "1"); !errors.Is(err, ErrProductNotFound) {
				t.Fatalf("expected ErrProductNotFound, got %v", err)
			}
		})
	}
}

func TestCreateProductSendsInput(t *testing.T) {
	srv := newGraphQLServer(t, func(req *capturedRequest) (int, string) {
		input := req.body.Get("variables.input")
		return http.StatusOK, `{"data":{"createProduct":{"id":"new-1","name":"` + input.Get("name").String() + `","price":` + input.Get("price").Raw + `,"image":"` + input.Get("image").String() + `"}}}`
	})
	client := newTestClient(t, srv.URL, staticTokens{token: "user-token"}, "")

	product, err := client.CreateProduct(context.Background(), CreateProductInput{
		Name:  "Caneca azul",
		Price: 24.9,
		Image: "products/1700000000000-caneca_azul.jpg",
	})
	if err != nil {
		t.Fatalf("CreateProduct returned error: %v", err)
	}
	if product.ID != "new-1" || product.Price != 24.9 || product.Image != "products/1700000000000-caneca_azul.jpg" {
		t.Fatalf("unexpected product: %+v", product)
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	input := srv.requests[0].body.Get("variables.input")
	if input.Get("description").Exists() || input.Get("category").Exists() {
		t.Fatalf("expected empty optional fields to be omitted, got %s", input.Raw)
	}
}

func TestAuthFallsBackToAPIKey(t *testing.T) {
	srv := newGraphQLServer(t, func(*capturedRequest) (int, string) {
		return http.StatusOK, `{"data":{"listProducts":{"items":[]}}}`
	})
	client := newTestClient(t, srv.URL, staticTokens{err: errors.New("no session")}, "da2-key")
	if _, err := client.ListProducts(context.Background()); err != nil {
		t.Fatalf("ListProducts returned error: %v", err)
	}
	srv.mu.Lock()
	header := srv.requests[0].header
	srv.mu.Unlock()
	if header.Get("x-api-key") != "da2-key" || header.Get("Authorization") != "" {
		t.Fatalf("expected api key authorization, got %v", header)
	}

	noCreds := newTestClient(t, srv.URL, staticTokens{err: errors.New("no session")}, "")
	if _, err := noCreds.ListProducts(context.Background()); err == nil {
		t.Fatalf("expected error without credentials")
	}
}

func TestFilter(t *testing.T) {
	products := []Product{{Name: "Caneca Azul"}, {Name: "Camiseta"}, {Name: "caneco"}}
	tests := []struct {
		query string
		want  int
	}{
		{query: "", want: 3},
		{query: "CANEC", want: 2},
		{query: "  azul ", want: 1},
		{query: "bola", want: 0},
	}
	for _, tt := range tests {
		if got := Filter(products, tt.query); len(got) != tt.want {
			t.Fatalf("Filter(%q): expected %d products, got %d", tt.query, tt.want, len(got))
		}
	}
}

func TestFormatPrice(t *testing.T) {
	tests := map[float64]string{
		0:      "R$ 0.00",
		19.9:   "R$ 19.90",
		1234.5: "R$ 1234.50",
	}
	for in, want := range tests {
		if got := FormatPrice(in); got != want {
			t.Fatalf("FormatPrice(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestRealtimeURLDerivedFromEndpoint(t *testing.T) {
	client := &Client{endpoint: "https://abc.appsync-api.sa-east-1.amazonaws.com/graphql"}
	raw, err := client.realtimeURL(map[string]string{"Authorization": "tok"})
	if err != nil {
		t.Fatalf("realtimeURL returned error: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Scheme != "wss" || u.Host != "abc.appsync-realtime-api.sa-east-1.amazonaws.com" {
		t.Fatalf("unexpected realtime url %q", raw)
	}
	header, err := base64.StdEncoding.DecodeString(u.Query().Get("header"))
	if err != nil {
		t.Fatalf("decode header: %v", err)
	}
	if gjson.GetBytes(header, "host").String() != "abc.appsync-api.sa-east-1.amazonaws.com" || gjson.GetBytes(header, "Authorization").String() != "tok" {
		t.Fatalf("unexpected encoded header %s", header)
	}
}

func TestSubscribeDeliversCreatedProducts(t *testing.T) {
	stopped := make(chan string, 1)
	upgrader := websocket.Upgrader{Subprotocols: []string{realtimeProtocol}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer func() { _ = conn.Close() }()

		var msg realtimeMessage
		if err = conn.ReadJSON(&msg); err != nil || msg.Type != msgConnectionInit {
			t.Errorf("expected connection_init, got %+v (%v)", msg, err)
			return
		}
		_ = conn.WriteJSON(realtimeMessage{Type: msgConnectionAck, Payload: []byte(`{"connectionTimeoutMs":300000}`)})

		if err = conn.ReadJSON(&msg); err != nil || msg.Type != msgStart || msg.ID == "" {
			t.Errorf("expected start, got %+v (%v)", msg, err)
			return
		}
		if !strings.Contains(gjson.GetBytes(msg.Payload, "data").String(), "onCreateProduct") {
			t.Errorf("expected onCreateProduct query, got %s", msg.Payload)
		}
		if gjson.GetBytes(msg.Payload, "extensions.authorization.x-api-key").String() != "key" {
			t.Errorf("expected authorization extension, got %s", msg.Payload)
		}
		id := msg.ID
		_ = conn.WriteJSON(realtimeMessage{ID: id, Type: msgStartAck})
		_ = conn.WriteJSON(realtimeMessage{Type: msgKeepAlive})
		_ = conn.WriteJSON(realtimeMessage{ID: "other", Type: msgData, Payload: []byte(`{"data":{"onCreateProduct":{"id":"x"}}}`)})
		_ = conn.WriteJSON(realtimeMessage{ID: id, Type: msgData, Payload: []byte(`{"data":{"onCreateProduct":{"id":"p-1","name":"Caneca","price":10}}}`)})

		for {
			if err = conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Type == msgStop {
				stopped <- msg.ID
				return
			}
		}
	}))
	defer srv.Close()

	cfg := &config.Config{API: config.APIConfig{
		Endpoint:         srv.URL,
		RealtimeEndpoint: "ws" + strings.TrimPrefix(srv.URL, "http"),
		APIKey:           "key",
	}}
	cfg.ApplyDefaults()
	client, err := NewClient(cfg, nil)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan Event, 4)
	done := make(chan error, 1)
	go func() {
		done <- client.Subscribe(ctx, OnCreateProduct, func(ev Event) { events <- ev })
	}()

	select {
	case ev := <-events:
		if ev.Subscription != OnCreateProduct || ev.Product.ID != "p-1" || ev.Product.Price != 10 {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for realtime event")
	}

	cancel()
	select {
	case err = <-done:
		if err != nil {
			t.Fatalf("Subscribe returned error after cancel: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("Subscribe did not return after cancel")
	}
	select {
	case id := <-stopped:
		if id == "" {
			t.Fatalf("expected stop with subscription id")
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("server did not receive stop")
	}
	if len(events) != 0 {
		t.Fatalf("expected no further events, got %d", len(events))
	}
}

func TestSubscribeUnknownSubscription(t *testing.T) {
	client := &Client{endpoint: "https://example.com/graphql", apiKey: "key"}
	if err := client.Subscribe(context.Background(), Subscription("onSomething"), func(Event) {}); err == nil {
		t.Fatalf("expected error for unknown subscription")
	}
}

func TestDecodeBodyUnsupportedEncoding(t *testing.T) {
	if _, err := decodeBody("compress", []byte("x")); err == nil {
		t.Fatalf("expected error for unsupported encoding")
	}
	out, err := decodeBody("", []byte("plain"))
	if err != nil || string(out) != "plain" {
		t.Fatalf("expected identity decoding, got %q %v", out, err)
	}
}
