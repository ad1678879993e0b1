package app

import (
	"fmt"
	"strings"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

// Policy decides what happens to a connection whose send buffer overflowed.
// channel is empty for presence broadcasts, which go to every connection.
type Policy interface {
	OnBackPressure(channel domain.ChannelID, cid core.ConnectionID) BackpressureAction
}

// SimplePolicy kicks any connection that cannot keep up; the client
// reconnects and refetches history.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(domain.ChannelID, core.ConnectionID) BackpressureAction {
	return KickMember
}

// LenientPolicy only drops the frame.
type LenientPolicy struct{}

func (LenientPolicy) OnBackPressure(domain.ChannelID, core.ConnectionID) BackpressureAction {
	return DropFrame
}

// NewPolicy maps the realtime.backpressure setting to a Policy.
func NewPolicy(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "kick":
		return SimplePolicy{}, nil
	case "drop":
		return LenientPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown backpressure policy %q", name)
	}
}
