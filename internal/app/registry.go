package app

import (
	"context"
	"sync"

	"github.com/dkeye/Babyfoon/internal/core"
	"github.com/dkeye/Babyfoon/internal/domain"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	Code    domain.ChannelCode
	Session core.MemberSession
	Cancel  context.CancelFunc
}

// Registry maps signaling connections to their member session and channel.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[core.SessionID]*sessionEntry)}
}

func (r *Registry) BindSignal(sid core.SessionID, sess core.MemberSession, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sid] = &sessionEntry{Session: sess, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("bound signal")
}

func (r *Registry) GetSession(sid core.SessionID) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Session, true
	}
	return nil, false
}

func (r *Registry) Unbind(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
}

// ChannelOf returns the channel sid is joined to.
func (r *Registry) ChannelOf(sid core.SessionID) (domain.ChannelCode, core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.sessions[sid]
	if !ok || entry.Code == "" {
		return "", nil, false
	}
	return entry.Code, entry.Session, true
}

func (r *Registry) SetChannel(sid core.SessionID, code domain.ChannelCode) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[sid]
	if !ok {
		return false
	}
	entry.Code = code
	entry.Session.Meta().Code = code
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("code", string(code)).Msg("joined channel")
	return true
}

func (r *Registry) ClearChannel(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.sessions[sid]; ok {
		entry.Code = ""
		entry.Session.Meta().Code = ""
	}
}

type Snapshot struct {
	SID     core.SessionID
	Session core.MemberSession
}

func (r *Registry) MembersOf(code domain.ChannelCode) []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Snapshot, 0, len(r.sessions))
	for sid, e := range r.sessions {
		if e.Code == code {
			out = append(out, Snapshot{SID: sid, Session: e.Session})
		}
	}
	return out
}

// RoomMates lists the other members of sid's channel.
func (r *Registry) RoomMates(sid core.SessionID) []Snapshot {
	code, _, ok := r.ChannelOf(sid)
	if !ok {
		return nil
	}
	all := r.MembersOf(code)
	out := all[:0]
	for _, s := range all {
		if s.SID != sid {
			out = append(out, s)
		}
	}
	return out
}

func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}
