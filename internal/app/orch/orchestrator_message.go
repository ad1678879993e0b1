package orch

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/metrics"
	"github.com/rs/zerolog/log"
)

type SendInput struct {
	ChannelID domain.ChannelID
	Content   string
}

// SendMessage persists the message and broadcasts new_message to every
// subscriber of the channel, the sender included. Nothing is broadcast when
// validation or persistence fails.
func (o *Orchestrator) SendMessage(ctx context.Context, cid core.ConnectionID, in SendInput) (*domain.Message, error) {
	ch := domain.ChannelID(strings.TrimSpace(string(in.ChannelID)))
	if ch == "" {
		metrics.MessagesSent.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: channelId is required", domain.ErrValidation)
	}
	if strings.TrimSpace(in.Content) == "" {
		metrics.MessagesSent.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: content is required", domain.ErrValidation)
	}
	if limit := o.Options.MaxMessageLen; limit > 0 && utf8.RuneCountInString(in.Content) > limit {
		metrics.MessagesSent.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: content longer than %d characters", domain.ErrValidation, limit)
	}
	user, ok := o.Registry.UserOf(cid)
	if !ok {
		return nil, fmt.Errorf("%w: connection %s", domain.ErrNotFound, cid)
	}
	if err := o.checkMembership(ctx, ch, user.ID); err != nil {
		metrics.MessagesSent.WithLabelValues("forbidden").Inc()
		return nil, err
	}

	unlock := o.seq.lock(ch)
	msg, err := o.Messages.CreateMessage(ctx, domain.Message{
		Content:   in.Content,
		UserID:    user.ID,
		ChannelID: ch,
		User:      user,
	})
	if err != nil {
		unlock()
		metrics.MessagesSent.WithLabelValues("storage_error").Inc()
		log.Error().Err(err).Str("module", "orch").Str("conn", string(cid)).Str("channel", string(ch)).Msg("persist message failed")
		return nil, fmt.Errorf("%w: persist message: %v", domain.ErrStorage, err)
	}
	res := o.Router.Broadcast(ch, core.NewMessageEvent(*msg), "")
	unlock()

	metrics.MessagesSent.WithLabelValues("ok").Inc()
	log.Debug().Str("module", "orch").Str("conn", string(cid)).Str("channel", string(ch)).Str("message", string(msg.ID)).Int("sent_to", res.SentTo).Msg("message broadcast")
	o.applyPolicy(ch, res)
	return msg, nil
}

// Typing relays the indicator to the channel, sender excluded. Not stored.
func (o *Orchestrator) Typing(cid core.ConnectionID, ch domain.ChannelID, isTyping bool) error {
	ch = domain.ChannelID(strings.TrimSpace(string(ch)))
	if ch == "" {
		return fmt.Errorf("%w: channelId is required", domain.ErrValidation)
	}
	user, ok := o.Registry.UserOf(cid)
	if !ok {
		return fmt.Errorf("%w: connection %s", domain.ErrNotFound, cid)
	}
	res := o.Router.Broadcast(ch, core.NewUserTyping(user.ID, ch, isTyping), cid)
	o.applyPolicy(ch, res)
	return nil
}
