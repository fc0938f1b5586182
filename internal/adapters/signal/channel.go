package signal

import (
	"errors"

	"github.com/dkeye/Babyfoon/internal/core"
	"github.com/dkeye/Babyfoon/internal/domain"
	"github.com/rs/zerolog/log"
)

type joinedMsg struct {
	Type    string           `json:"type"`
	Channel string           `json:"channel"`
	UID     uint32           `json:"uid"`
	Role    string           `json:"role"`
	Members []core.MemberDTO `json:"members"`
}

func (ctl *SignalWSController) handleJoin(sid core.SessionID, c *WsSignalConn, msg inbound) {
	if ctl.Limiter != nil && !ctl.Limiter.Allow(c.client) {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("join rate limited")
		ctl.Metrics.RecordJoinRejected("rate_limited")
		ctl.sendError(c, "rate_limited", nil)
		return
	}
	res, err := ctl.Orch.Join(sid, msg.Channel, msg.UID, msg.Token)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Str("channel", msg.Channel).Msg("join rejected")
		ctl.sendError(c, errorCode(err), err)
		return
	}
	ctl.sendJSON(c, joinedMsg{
		Type:    "joined",
		Channel: string(res.Code),
		UID:     res.UID,
		Role:    res.Role.String(),
		Members: res.Members,
	})
}

func (ctl *SignalWSController) handleLeave(sid core.SessionID, c *WsSignalConn) {
	ctl.Orch.Leave(sid)
	ctl.sendJSON(c, struct {
		Type string `json:"type"`
	}{Type: "left"})
}

func (ctl *SignalWSController) handleMute(sid core.SessionID, c *WsSignalConn, msg inbound) {
	if err := ctl.Orch.SetMuted(sid, msg.On); err != nil {
		ctl.sendError(c, errorCode(err), err)
	}
}

func (ctl *SignalWSController) handleLevel(sid core.SessionID, c *WsSignalConn, msg inbound) {
	if err := ctl.Orch.Level(sid, msg.Level); err != nil {
		ctl.sendError(c, errorCode(err), err)
	}
}

// errorCode maps a domain error onto the stable wire code clients switch on.
func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrChannelTaken):
		return "channel_taken"
	case errors.Is(err, domain.ErrChannelNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrCredentialExpired):
		return "expired"
	case errors.Is(err, domain.ErrInvalidCode):
		return "invalid_code"
	}
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return "unauthorized"
	case domain.KindInvalidState:
		return "invalid_state"
	default:
		return "internal"
	}
}
