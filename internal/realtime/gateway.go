package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
)

const defaultWriteTimeout = 5 * time.Second

// Gateway upgrades HTTP requests into meeting event feeds.
type Gateway struct {
	hub            *Hub
	log            *slog.Logger
	originPatterns []string
	insecure       bool
	writeTimeout   time.Duration
}

// NewGateway builds a gateway. allowedOrigins holds full origins or "*" to accept any origin.
func NewGateway(hub *Hub, log *slog.Logger, allowedOrigins []string) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	g := &Gateway{hub: hub, log: log, writeTimeout: defaultWriteTimeout}
	for _, origin := range allowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			g.insecure = true
			continue
		}
		if host := originHost(origin); host != "" {
			g.originPatterns = append(g.originPatterns, host)
		}
	}
	return g
}

// Serve streams meetingID's events over a websocket until either side goes away.
func (g *Gateway) Serve(w http.ResponseWriter, r *http.Request, meetingID string) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.insecure,
	})
	if err != nil {
		g.log.InfoContext(r.Context(), "websocket accept failed", "error", err, "meeting_id", meetingID)
		return
	}
	defer func() { _ = conn.CloseNow() }()

	sub := g.hub.Subscribe(meetingID)
	defer g.hub.Unsubscribe(sub)

	// The feed is server to client only; CloseRead discards client frames and cancels on close.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			_ = conn.Close(websocket.StatusPolicyViolation, "subscriber too slow")
			return
		case payload := <-sub.Send:
			if err := g.write(ctx, conn, payload); err != nil {
				g.log.InfoContext(ctx, "websocket write failed", "error", err, "meeting_id", meetingID, "close_status", websocket.CloseStatus(err))
				return
			}
		}
	}
}

func (g *Gateway) write(parent context.Context, conn *websocket.Conn, payload []byte) error {
	ctx, cancel := context.WithTimeout(parent, g.writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}

func originHost(origin string) string {
	if origin == "" {
		return ""
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return strings.ToLower(origin)
	}
	return strings.ToLower(u.Host)
}
