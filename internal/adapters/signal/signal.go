// Package signal carries the realtime event protocol over WebSocket.
package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Huddle/internal/app/orch"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// UserKey is the gin context key holding the verified *domain.User.
const UserKey = "huddle.user"

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	PongWait   time.Duration
	SendBuffer int
	// RateBurst events per RateInterval are allowed for send_message and
	// typing on one connection. Zero disables the limit.
	RateBurst    int
	RateInterval time.Duration
}

func DefaultOptions() Options {
	return Options{
		ReadLimit:    32768,
		PingPeriod:   54 * time.Second,
		PongWait:     60 * time.Second,
		SendBuffer:   64,
		RateBurst:    10,
		RateInterval: time.Second,
	}
}

type SignalWSController struct {
	Orch    *orch.Orchestrator
	opts    Options
	limiter *ConnRateLimiter
}

func NewSignalWSController(o *orch.Orchestrator, opts Options) *SignalWSController {
	ctl := &SignalWSController{Orch: o, opts: opts}
	if opts.RateBurst > 0 && opts.RateInterval > 0 {
		ctl.limiter = NewConnRateLimiter(opts.RateBurst, opts.RateInterval)
	}
	return ctl
}

type WsSignalConn struct {
	id   core.ConnectionID
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnectionClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades an authenticated request. The caller must have put
// the verified user under UserKey.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	v, ok := c.Get(UserKey)
	user, _ := v.(*domain.User)
	if !ok || user == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication error"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	cid := core.ConnectionID(uuid.NewString())
	conn := &WsSignalConn{
		id:   cid,
		conn: ws,
		send: make(chan core.Frame, ctl.opts.SendBuffer),
	}
	log.Info().Str("module", "signal").Str("conn", string(cid)).Str("user", string(user.ID)).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Connect(ctx, cid, *user, conn, cancel)

	go ctl.writePump(ctx, cid, conn)
	go ctl.readPump(ctx, cid, conn, cancel)
}
