package relay

import (
	"github.com/mash-protocol/logrelay/pkg/log"
	"github.com/mash-protocol/logrelay/pkg/wire"
)

func (e *Engine) event(c *Conn, cat log.Category) log.Event {
	ev := log.Event{
		Timestamp: e.config.Now(),
		Layer:     log.LayerRelay,
		Category:  cat,
		LocalRole: log.RoleServer,
	}
	if c != nil {
		ev.ConnectionID = c.id
		ev.RemoteAddr = c.remote
		ev.Channel = c.Channel()
	}
	return ev
}

func (e *Engine) captureState(c *Conn, old string, next ConnState, reason string) {
	if e.config.ProtocolLogger == nil {
		return
	}
	ev := e.event(c, log.CategoryState)
	ev.StateChange = &log.StateChangeEvent{
		Entity:   log.StateEntitySession,
		OldState: old,
		NewState: next.String(),
		Reason:   reason,
	}
	e.config.ProtocolLogger.Log(ev)
}

func (e *Engine) captureSubscription(c *Conn, change, topic string) {
	if e.config.ProtocolLogger == nil {
		return
	}
	ev := e.event(c, log.CategoryState)
	ev.StateChange = &log.StateChangeEvent{
		Entity:   log.StateEntitySubscription,
		NewState: change,
		Reason:   topic,
	}
	e.config.ProtocolLogger.Log(ev)
}

func (e *Engine) captureMessage(c *Conn, dir log.Direction, f wire.Frame, recipients int) {
	if e.config.ProtocolLogger == nil {
		return
	}
	ev := e.event(c, log.CategoryMessage)
	ev.Direction = dir
	ev.Message = log.NewMessageEvent(f)
	ev.Message.Recipients = recipients
	e.config.ProtocolLogger.Log(ev)
}

func (e *Engine) capturePush(p *wire.Push, recipients int) {
	if e.config.ProtocolLogger == nil {
		return
	}
	ev := e.event(nil, log.CategoryMessage)
	ev.Direction = log.DirectionOut
	ev.Channel = p.Channel
	ev.Message = log.NewMessageEvent(p)
	ev.Message.Recipients = recipients
	e.config.ProtocolLogger.Log(ev)
}

func (e *Engine) captureError(c *Conn, err error, context string) {
	if e.config.ProtocolLogger == nil {
		return
	}
	ev := e.event(c, log.CategoryError)
	ev.Error = &log.ErrorEventData{
		Layer:   log.LayerRelay,
		Message: err.Error(),
		Context: context,
	}
	e.config.ProtocolLogger.Log(ev)
}
