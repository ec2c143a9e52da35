// Package processor implements the ordered filter → dispatch → notify
// pipeline that every decoded message runs through (spec §4.5).
package processor

import (
	"github.com/sirupsen/logrus"

	"github.com/paseka1/Concordium/internal/conn"
	"github.com/paseka1/Concordium/internal/wire"
)

// FilterResult is the outcome of running one filter.
type FilterResult int

const (
	Pass FilterResult = iota
	Drop
)

// Filter inspects a message before dispatch; any filter returning Drop
// short-circuits the remaining filters and the dispatch stage.
type Filter func(c *conn.Connection, m *wire.Message) FilterResult

// Action is one step of a variant's handler chain. An action returning an
// error is logged but does not halt the remaining actions (spec §4.5).
type Action func(c *conn.Connection, m *wire.Message) error

// Notification fans a processed message out to observers (test hooks,
// metrics) after dispatch completes.
type Notification func(c *conn.Connection, m *wire.Message)

// key identifies one (tag, sub-tag) dispatch slot.
type key struct {
	tag    wire.Tag
	subTag uint8
}

// Pipeline is the per-phase (pre- or post-handshake) dispatch table.
// Mutation is confined to construction and handshake completion, per
// spec §9's note on dynamic dispatch tables.
type Pipeline struct {
	filters       []Filter
	actions       map[key][]Action
	invalid       []Action
	unknown       []Action
	notifications []Notification
	dropped       uint64
	log           *logrus.Entry
}

// New builds an empty pipeline.
func New(log *logrus.Entry) *Pipeline {
	return &Pipeline{actions: make(map[key][]Action), log: log}
}

// AddFilter appends a filter to the end of the filter chain (lowest
// priority last; pass filters in descending priority order).
func (p *Pipeline) AddFilter(f Filter) { p.filters = append(p.filters, f) }

// OnRequest registers actions for a Request sub-tag.
func (p *Pipeline) OnRequest(tag wire.RequestTag, actions ...Action) {
	p.actions[key{wire.TagRequest, uint8(tag)}] = append(p.actions[key{wire.TagRequest, uint8(tag)}], actions...)
}

// OnResponse registers actions for a Response sub-tag.
func (p *Pipeline) OnResponse(tag wire.ResponseTag, actions ...Action) {
	p.actions[key{wire.TagResponse, uint8(tag)}] = append(p.actions[key{wire.TagResponse, uint8(tag)}], actions...)
}

// OnPacket registers actions for a Packet sub-tag.
func (p *Pipeline) OnPacket(tag wire.PacketTag, actions ...Action) {
	p.actions[key{wire.TagPacket, uint8(tag)}] = append(p.actions[key{wire.TagPacket, uint8(tag)}], actions...)
}

// OnInvalid registers the fallback actions: they run for a message with no
// registered handler when no OnUnknown actions are registered.
func (p *Pipeline) OnInvalid(actions ...Action) { p.invalid = append(p.invalid, actions...) }

// OnUnknown registers actions run for any message with no registered
// handler, whether its sub-tag is unregistered or its variant payload is
// missing. When none are registered, the OnInvalid actions run instead.
func (p *Pipeline) OnUnknown(actions ...Action) { p.unknown = append(p.unknown, actions...) }

// Notify registers a fan-out observer.
func (p *Pipeline) Notify(n Notification) { p.notifications = append(p.notifications, n) }

// DroppedCount reports how many messages this pipeline has filtered out.
func (p *Pipeline) DroppedCount() uint64 { return p.dropped }

// Run executes the full pipeline for one decoded message: filters, then
// dispatch, then notifications.
func (p *Pipeline) Run(c *conn.Connection, m *wire.Message) {
	for _, f := range p.filters {
		if f(c, m) == Drop {
			p.dropped++
			return
		}
	}

	actions, ok := p.lookup(m)
	if !ok {
		actions = p.unknown
		if actions == nil {
			actions = p.invalid
		}
	}
	for _, a := range actions {
		if err := a(c, m); err != nil && p.log != nil {
			p.log.WithField("remote", c.RemotePeer()).WithError(err).Warn("message action failed")
		}
	}

	for _, n := range p.notifications {
		n(c, m)
	}
}

func (p *Pipeline) lookup(m *wire.Message) ([]Action, bool) {
	var k key
	switch m.Tag {
	case wire.TagRequest:
		if m.Request == nil {
			return nil, false
		}
		k = key{wire.TagRequest, uint8(m.Request.Tag)}
	case wire.TagResponse:
		if m.Response == nil {
			return nil, false
		}
		k = key{wire.TagResponse, uint8(m.Response.Tag)}
	case wire.TagPacket:
		if m.Packet == nil {
			return nil, false
		}
		k = key{wire.TagPacket, uint8(m.Packet.Tag)}
	default:
		return nil, false
	}
	actions, ok := p.actions[k]
	return actions, ok
}
