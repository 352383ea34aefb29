package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/angelmondragon/fueldrop-backend/pkg/config"
	"github.com/angelmondragon/fueldrop-backend/pkg/enums"
	"github.com/angelmondragon/fueldrop-backend/pkg/types"
)

type stubRecorder struct {
	mu     sync.Mutex
	points []types.GeoPoint
	calls  chan struct{}
}

func (s *stubRecorder) RecordLocation(ctx context.Context, driverID, orderID uuid.UUID, point types.GeoPoint) error {
	s.mu.Lock()
	s.points = append(s.points, point)
	s.mu.Unlock()
	s.calls <- struct{}{}
	return nil
}

func dialEndpoint(t *testing.T, hub *Hub, rec LocationRecorder, actor uuid.UUID, role enums.ActorRole) *websocket.Conn {
	t.Helper()
	endpoint, err := NewEndpoint(hub, rec, config.RealtimeConfig{PingInterval: time.Second, WriteTimeout: time.Second}, nil, nil)
	if err != nil {
		t.Fatalf("endpoint: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint.Serve(w, r, actor, role)
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func waitForConnection(t *testing.T, hub *Hub, actor uuid.UUID) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ConnectionCount(actor) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("connection never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEndpointPushesEventsAndAnswersPing(t *testing.T) {
	hub := NewHub(HubOptions{})
	actor := uuid.New()
	conn := dialEndpoint(t, hub, nil, actor, enums.ActorRoleCustomer)
	waitForConnection(t, hub, actor)

	if err := hub.Publish(context.Background(), Audience{ActorIDs: []uuid.UUID{actor}}, Event{
		Type: enums.EventTypeOrderStatusUpdate,
		Data: OrderStatusPayload{OrderID: uuid.New(), Status: enums.OrderStatusPreparing},
	}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if frame := readFrame(t, conn); frame["type"] != "order_status_update" {
		t.Fatalf("unexpected frame %v", frame)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if frame := readFrame(t, conn); frame["type"] != "pong" {
		t.Fatalf("expected pong, got %v", frame)
	}
}

func TestEndpointForwardsDriverLocation(t *testing.T) {
	hub := NewHub(HubOptions{})
	rec := &stubRecorder{calls: make(chan struct{}, 1)}
	driver := uuid.New()
	conn := dialEndpoint(t, hub, rec, driver, enums.ActorRoleDriver)
	waitForConnection(t, hub, driver)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg := `{"type":"driver_location","data":{"orderId":"` + uuid.NewString() + `","lat":-26.1,"lon":28.05}}`
	if err := conn.Write(ctx, websocket.MessageText, []byte(msg)); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case <-rec.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("location not recorded")
	}
	if rec.points[0].Lat != -26.1 {
		t.Fatalf("unexpected point %+v", rec.points[0])
	}
}

func TestEndpointRejectsLocationFromCustomer(t *testing.T) {
	hub := NewHub(HubOptions{})
	actor := uuid.New()
	conn := dialEndpoint(t, hub, &stubRecorder{calls: make(chan struct{}, 1)}, actor, enums.ActorRoleCustomer)
	waitForConnection(t, hub, actor)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"driver_location","data":{}}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if frame := readFrame(t, conn); frame["type"] != "error" {
		t.Fatalf("expected error frame, got %v", frame)
	}
}

func TestEndpointChecksBrowserOrigin(t *testing.T) {
	hub := NewHub(HubOptions{})
	endpoint, err := NewEndpoint(hub, nil, config.RealtimeConfig{PingInterval: time.Second, WriteTimeout: time.Second},
		[]string{"http://localhost:3000", " https://app.fueldrop.co.za "}, nil)
	if err != nil {
		t.Fatalf("endpoint: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint.Serve(w, r, uuid.New(), enums.ActorRoleCustomer)
	}))
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	dial := func(origin string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: http.Header{"Origin": []string{origin}}})
		if err == nil {
			conn.CloseNow()
		}
		return err
	}

	if err := dial("https://evil.example"); err == nil {
		t.Fatal("expected a foreign origin to be rejected")
	}
	for _, origin := range []string{"http://localhost:3000", "https://app.fueldrop.co.za"} {
		if err := dial(origin); err != nil {
			t.Fatalf("origin %s rejected: %v", origin, err)
		}
	}
}
