package signal

import (
	"github.com/dkeye/Babyfoon/internal/core"
	"github.com/dkeye/Babyfoon/internal/domain"
)

type errorMsg struct {
	Type    string `json:"type"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func (ctl *SignalWSController) sendError(c core.SignalConnection, code string, err error) {
	msg := errorMsg{Type: "error", Error: code}
	if err != nil {
		msg.Message = domain.UserMessage(err)
	}
	ctl.sendJSON(c, msg)
}

func (ctl *SignalWSController) handlePing(c *WsSignalConn) {
	ctl.sendJSON(c, struct {
		Type string `json:"type"`
	}{Type: "pong"})
}

func (ctl *SignalWSController) handleWhoAmI(sid core.SessionID, c *WsSignalConn) {
	resp := struct {
		Type    string `json:"type"`
		SID     string `json:"sid"`
		UID     uint32 `json:"uid,omitempty"`
		Role    string `json:"role,omitempty"`
		Channel string `json:"channel,omitempty"`
		Muted   bool   `json:"muted"`
	}{Type: "whoami", SID: string(sid)}
	if code, sess, ok := ctl.Orch.Registry.ChannelOf(sid); ok {
		p := sess.Meta()
		resp.Channel = string(code)
		resp.UID = p.UID
		resp.Role = p.Role.String()
		resp.Muted = p.Muted
	}
	ctl.sendJSON(c, resp)
}
