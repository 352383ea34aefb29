package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc"

	"github.com/angelmondragon/fueldrop-backend/pkg/config"
	"github.com/angelmondragon/fueldrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fueldrop-backend/pkg/errors"
	"github.com/angelmondragon/fueldrop-backend/pkg/logger"
	"github.com/angelmondragon/fueldrop-backend/pkg/types"
)

const (
	inboundPing           = "ping"
	inboundDriverLocation = "driver_location"
	outboundPong          = "pong"
	outboundError         = "error"

	maxInboundBytes = 4096
)

// LocationRecorder accepts driver positions sent over the socket.
type LocationRecorder interface {
	RecordLocation(ctx context.Context, driverID, orderID uuid.UUID, point types.GeoPoint) error
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type driverLocationMessage struct {
	OrderID uuid.UUID `json:"orderId"`
	Lat     float64   `json:"lat"`
	Lon     float64   `json:"lon"`
}

type controlFrame struct {
	Type   string    `json:"type"`
	Data   any       `json:"data,omitempty"`
	SentAt time.Time `json:"sentAt"`
}

// Endpoint upgrades authenticated requests and runs one read loop and one
// write loop per connection.
type Endpoint struct {
	hub          *Hub
	locations    LocationRecorder
	pingInterval time.Duration
	writeTimeout time.Duration
	origins      []string
	logg         *logger.Logger
}

// NewEndpoint builds the socket endpoint. allowedOrigins are the browser
// origins also allowed by CORS; same-host and non-browser clients are always
// accepted.
func NewEndpoint(hub *Hub, locations LocationRecorder, cfg config.RealtimeConfig, allowedOrigins []string, logg *logger.Logger) (*Endpoint, error) {
	if hub == nil {
		return nil, errors.New("realtime hub required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	ping := cfg.PingInterval
	if ping <= 0 {
		ping = 25 * time.Second
	}
	write := cfg.WriteTimeout
	if write <= 0 {
		write = 10 * time.Second
	}
	return &Endpoint{
		hub:          hub,
		locations:    locations,
		pingInterval: ping,
		writeTimeout: write,
		origins:      originPatterns(allowedOrigins),
		logg:         logg,
	}, nil
}

// originPatterns turns origins such as "https://app.fueldrop.co.za" into the
// host patterns the websocket handshake matches against.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			origin = u.Host
		}
		out = append(out, origin)
	}
	return out
}

// Serve blocks until the connection closes.
func (e *Endpoint) Serve(w http.ResponseWriter, r *http.Request, actorID uuid.UUID, role enums.ActorRole) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: e.origins})
	if err != nil {
		e.logg.Error(r.Context(), "websocket upgrade failed", err)
		return
	}
	conn.SetReadLimit(maxInboundBytes)
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	ctx = e.logg.WithActorID(ctx, actorID.String())
	ctx = e.logg.WithActorRole(ctx, role.String())

	client := e.hub.Register(actorID, role)
	defer e.hub.Unregister(client)
	e.logg.Debug(ctx, "realtime connection registered")

	var wg conc.WaitGroup
	wg.Go(func() {
		defer cancel()
		e.readLoop(ctx, conn, client)
	})
	wg.Go(func() {
		defer cancel()
		e.writeLoop(ctx, conn, client)
	})
	wg.Wait()

	_ = conn.Close(websocket.StatusNormalClosure, "")
}

func (e *Endpoint) readLoop(ctx context.Context, conn *websocket.Conn, client *Client) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				e.logg.Debug(ctx, "realtime read ended: "+err.Error())
			}
			return
		}
		if typ != websocket.MessageText {
			e.reply(client, outboundError, map[string]string{"message": "text frames only"})
			continue
		}
		e.handleInbound(ctx, client, data)
	}
}

func (e *Endpoint) handleInbound(ctx context.Context, client *Client, data []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		e.reply(client, outboundError, map[string]string{"message": "invalid json"})
		return
	}

	switch msg.Type {
	case inboundPing:
		e.reply(client, outboundPong, nil)
	case inboundDriverLocation:
		if client.Role != enums.ActorRoleDriver || e.locations == nil {
			e.reply(client, outboundError, map[string]string{"message": "location updates are for drivers"})
			return
		}
		var loc driverLocationMessage
		if err := json.Unmarshal(msg.Data, &loc); err != nil {
			e.reply(client, outboundError, map[string]string{"message": "invalid location payload"})
			return
		}
		err := e.locations.RecordLocation(ctx, client.ActorID, loc.OrderID, types.GeoPoint{Lat: loc.Lat, Lon: loc.Lon})
		if err != nil {
			message := "location rejected"
			if typed := pkgerrors.As(err); typed != nil {
				message = typed.Message()
			}
			e.reply(client, outboundError, map[string]string{"message": message})
		}
	default:
		e.reply(client, outboundError, map[string]string{"message": "unknown message type"})
	}
}

func (e *Endpoint) reply(client *Client, typ string, data any) {
	frame, err := json.Marshal(controlFrame{Type: typ, Data: data, SentAt: time.Now().UTC()})
	if err != nil {
		return
	}
	client.offer(frame)
}

func (e *Endpoint) writeLoop(ctx context.Context, conn *websocket.Conn, client *Client) {
	ticker := time.NewTicker(e.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-client.Done():
			_ = conn.Close(websocket.StatusPolicyViolation, "slow consumer")
			return
		case frame := <-client.Send():
			writeCtx, cancel := context.WithTimeout(ctx, e.writeTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, e.writeTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
