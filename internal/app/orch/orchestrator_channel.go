package orch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// JoinChannel subscribes the connection and unicasts the channel history.
// History is read under the channel lock, so the requester sees every message
// exactly once: either in the history or as a later new_message.
func (o *Orchestrator) JoinChannel(ctx context.Context, cid core.ConnectionID, ch domain.ChannelID) error {
	ch = domain.ChannelID(strings.TrimSpace(string(ch)))
	if ch == "" {
		return fmt.Errorf("%w: channelId is required", domain.ErrValidation)
	}
	user, ok := o.Registry.UserOf(cid)
	if !ok {
		return fmt.Errorf("%w: connection %s", domain.ErrNotFound, cid)
	}
	if err := o.checkMembership(ctx, ch, user.ID); err != nil {
		return err
	}

	unlock := o.seq.lock(ch)
	fresh := o.Router.Subscribe(cid, ch)
	history, err := o.Messages.ListChannelHistory(ctx, ch, o.Options.HistoryLimit)
	if err != nil {
		if fresh {
			o.Router.Unsubscribe(cid, ch)
		}
		unlock()
		log.Error().Err(err).Str("module", "orch").Str("conn", string(cid)).Str("channel", string(ch)).Msg("load history failed")
		return fmt.Errorf("%w: load history: %v", domain.ErrStorage, err)
	}
	// A subscriber without its history would see a gap; undo the join instead.
	err = o.Router.Unicast(cid, core.NewChannelHistory(ch, history))
	if err != nil && fresh {
		o.Router.Unsubscribe(cid, ch)
	}
	unlock()

	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("conn", string(cid)).Str("channel", string(ch)).Msg("history not delivered")
		if errors.Is(err, core.ErrBackpressure) {
			o.applyPolicy(ch, core.PublishResult{Dropped: []core.ConnectionID{cid}})
		}
		return fmt.Errorf("%w: deliver history: %v", domain.ErrStorage, err)
	}
	log.Info().Str("module", "orch").Str("conn", string(cid)).Str("channel", string(ch)).Int("history", len(history)).Bool("fresh", fresh).Msg("joined channel")
	return nil
}

// LeaveChannel only unsubscribes; membership rows are untouched.
func (o *Orchestrator) LeaveChannel(cid core.ConnectionID, ch domain.ChannelID) error {
	ch = domain.ChannelID(strings.TrimSpace(string(ch)))
	if ch == "" {
		return fmt.Errorf("%w: channelId is required", domain.ErrValidation)
	}
	o.Router.Unsubscribe(cid, ch)
	return nil
}

func (o *Orchestrator) checkMembership(ctx context.Context, ch domain.ChannelID, uid domain.UserID) error {
	if !o.Options.EnforceMembership || o.Members == nil {
		return nil
	}
	ok, err := o.Members.IsMember(ctx, ch, uid)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("channel", string(ch)).Msg("membership lookup failed")
		return fmt.Errorf("%w: membership lookup: %v", domain.ErrStorage, err)
	}
	if !ok {
		return fmt.Errorf("%w: not a member of %s", domain.ErrForbidden, ch)
	}
	return nil
}
