package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/store"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type Verifier interface {
	Verify(credential string) (*domain.User, error)
}

type LastSeenReader interface {
	LastSeen(ctx context.Context, uid domain.UserID) (time.Time, bool, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	verifier Verifier
	data     store.DataStore
	presence *core.PresenceTracker
	lastSeen LastSeenReader
	checks   map[string]Pinger
	// enforceMembership gates REST history reads like channel joins.
	enforceMembership bool
}

type HandlersConfig struct {
	Verifier          Verifier
	Data              store.DataStore
	Presence          *core.PresenceTracker
	LastSeen          LastSeenReader
	Checks            map[string]Pinger
	EnforceMembership bool
}

func NewHandlers(cfg HandlersConfig) *Handlers {
	return &Handlers{
		verifier:          cfg.Verifier,
		data:              cfg.Data,
		presence:          cfg.Presence,
		lastSeen:          cfg.LastSeen,
		checks:            cfg.Checks,
		enforceMembership: cfg.EnforceMembership,
	}
}

type createChannelRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *Handlers) ListChannels(c *gin.Context) {
	channels, err := h.data.ListChannels(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, channels)
}

func (h *Handlers) CreateChannel(c *gin.Context) {
	var req createChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%w: invalid payload", domain.ErrValidation))
		return
	}
	user := currentUser(c)
	ch, err := h.data.CreateChannel(c.Request.Context(), domain.Channel{
		Name:        req.Name,
		Description: req.Description,
		CreatedBy:   user.ID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	log.Info().Str("module", "adapters.http").Str("channel", string(ch.ID)).Str("name", ch.Name).Str("user", string(user.ID)).Msg("channel created")
	c.JSON(http.StatusCreated, ch)
}

func (h *Handlers) GetChannel(c *gin.Context) {
	ch, err := h.data.GetChannel(c.Request.Context(), domain.ChannelID(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

func (h *Handlers) JoinChannel(c *gin.Context) {
	if err := h.data.AddMember(c.Request.Context(), domain.ChannelID(c.Param("id")), currentUser(c).ID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Joined channel"})
}

func (h *Handlers) LeaveChannel(c *gin.Context) {
	if err := h.data.RemoveMember(c.Request.Context(), domain.ChannelID(c.Param("id")), currentUser(c).ID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Left channel"})
}

// ListMessages returns one page newest first.
func (h *Handlers) ListMessages(c *gin.Context) {
	ch := domain.ChannelID(c.Param("channelId"))
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(c, fmt.Errorf("%w: invalid limit %q", domain.ErrValidation, raw))
			return
		}
		limit = n
	}
	if h.enforceMembership {
		ok, err := h.data.IsMember(c.Request.Context(), ch, currentUser(c).ID)
		if err != nil {
			respondError(c, err)
			return
		}
		if !ok {
			respondError(c, fmt.Errorf("%w: not a member of %s", domain.ErrForbidden, ch))
			return
		}
	}
	msgs, err := h.data.ListMessagesPage(c.Request.Context(), ch, domain.MessageID(c.Query("cursor")), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *Handlers) OnlineUsers(c *gin.Context) {
	online := h.presence.ListOnlineUserIDs()
	if online == nil {
		online = []domain.UserID{}
	}
	c.JSON(http.StatusOK, gin.H{"onlineUsers": online})
}

type userPresenceResponse struct {
	UserID   domain.UserID `json:"userId"`
	Online   bool          `json:"online"`
	LastSeen *time.Time    `json:"lastSeen,omitempty"`
	// Connections counts the user's live sockets on this server.
	Connections int `json:"connections,omitempty"`
}

func (h *Handlers) UserPresence(c *gin.Context) {
	uid := domain.UserID(c.Param("id"))
	resp := userPresenceResponse{
		UserID:      uid,
		Online:      h.presence.IsOnline(uid),
		Connections: h.presence.ConnectionCount(uid),
	}
	if !resp.Online {
		if at, ok := h.presence.LastSeen(uid); ok {
			resp.LastSeen = &at
		} else if h.lastSeen != nil {
			at, ok, err := h.lastSeen.LastSeen(c.Request.Context(), uid)
			if err != nil {
				respondError(c, err)
				return
			}
			if ok {
				resp.LastSeen = &at
			}
		}
	}
	c.JSON(http.StatusOK, resp)
}

type sessionRequest struct {
	Token string `json:"token"`
}

// CreateSession verifies a bearer token and stores it in the cookie session,
// so browser sockets can connect without a header.
func (h *Handlers) CreateSession(c *gin.Context) {
	token := ""
	if auth := c.GetHeader("Authorization"); auth != "" {
		token = credential(c)
	} else {
		var req sessionRequest
		_ = c.ShouldBindJSON(&req)
		token = req.Token
	}
	user, err := h.verifier.Verify(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication error"})
		return
	}
	if err := h.data.UpsertUser(c.Request.Context(), *user); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Str("user", string(user.ID)).Msg("mirror user failed")
	}

	session := sessions.Default(c)
	session.Set(sessionTokenKey, token)
	if err := session.Save(); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *Handlers) DeleteSession(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := session.Save(); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type check struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

func (h *Handlers) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]check, len(h.checks))
	healthy := true
	for name, p := range h.checks {
		start := time.Now()
		if err := p.Ping(ctx); err != nil {
			checks[name] = check{Status: "fail", Message: "connection failed"}
			healthy = false
			continue
		}
		checks[name] = check{Status: "pass", Latency: time.Since(start).String()}
	}

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
