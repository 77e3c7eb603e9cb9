package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"desalination_plant/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	maxMsgSize       = 1 << 12 // 4 KB
	defaultInterval  = 1 * time.Second
	minInterval      = 50 * time.Millisecond
	maxInterval      = 10 * time.Second
	maxIntervalMilli = 10_000
)

// Envelope types sent on /ws.
const (
	wsTypeState = "state"
	wsTypeError = "error"
)

type wsEnvelope struct {
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true }, // TODO: restrict to the HMI origin once it has a fixed host
}

// wsStream remembers the last scan sent so an idle plant does not resend
// identical snapshots.
type wsStream struct {
	conn     *websocket.Conn
	lastScan uint64
	sent     bool
	onChange bool
}

// @Summary      Plant state stream
// @Description  WebSocket. Sends {"type":"state","data":PlantState} at the given interval. With changes=1 only snapshots from a new scan are sent.
// @Tags         plant
// @Param        interval     query  string  false  "Go duration, 50ms..10s"  example(500ms)
// @Param        interval_ms  query  int     false  "Interval in milliseconds"
// @Param        changes      query  bool    false  "Send only new scans"
// @Router       /ws [get]
func (h *Handler) wsConnect(c *gin.Context) {
	interval := h.parseInterval(c)
	onChange, _ := strconv.ParseBool(c.Query("changes"))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_upgrade_failed", "err", err)
		}
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go h.startReader(conn, done)

	ticker := time.NewTicker(interval)
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ping.Stop()
	}()

	ctx := c.Request.Context()
	stream := &wsStream{conn: conn, onChange: onChange}

	// the first snapshot must go out, otherwise the client is dropped
	st, err := h.services.Monitoring.GetState(ctx)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_get_state_failed", "err", err)
		}
		return
	}
	if err := stream.send(st); err != nil {
		if h.log != nil {
			h.log.Infow("ws_write_failed_initial", "err", err)
		}
		return
	}

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if h.log != nil {
					h.log.Infow("ws_ping_failed", "err", err)
				}
				return
			}
		case <-ticker.C:
			if err := h.tick(ctx, stream); err != nil {
				if h.log != nil {
					h.log.Infow("ws_write_failed", "err", err)
				}
				return
			}
		}
	}
}

// tick sends the current state, or an error envelope when it cannot be
// loaded. Only write errors end the stream.
func (h *Handler) tick(ctx context.Context, s *wsStream) error {
	st, err := h.services.Monitoring.GetState(ctx)
	if err != nil {
		if h.log != nil {
			h.log.Warnw("ws_get_state_failed", "err", err)
		}
		_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		return s.conn.WriteJSON(wsEnvelope{Type: wsTypeError, Error: errGetState})
	}
	if s.onChange && s.sent && st.Scans == s.lastScan {
		return nil
	}
	return s.send(st)
}

func (s *wsStream) send(st models.PlantState) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(wsEnvelope{Type: wsTypeState, Data: st}); err != nil {
		return err
	}
	s.lastScan = st.Scans
	s.sent = true
	return nil
}

// parseInterval reads ?interval=2s or ?interval_ms=2000 within bounds.
func (h *Handler) parseInterval(c *gin.Context) time.Duration {
	if s := c.Query("interval"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d >= minInterval && d <= maxInterval {
			return d
		}
	}
	if ms := c.Query("interval_ms"); ms != "" {
		if v, err := strconv.Atoi(ms); err == nil && v > 0 && v <= maxIntervalMilli {
			d := time.Duration(v) * time.Millisecond
			if d >= minInterval {
				return d
			}
		}
	}
	return defaultInterval
}

// startReader drains incoming frames so control frames are handled and a
// closed client is noticed.
func (h *Handler) startReader(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if h.log != nil {
				h.log.Debugw("ws_read_closed", "err", err)
			}
			return
		}
	}
}
