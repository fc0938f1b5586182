//go:generate mockgen -source=engine_iface.go -destination=mocks/mock_engine.go -package=mocks

package core

import (
	"context"

	"github.com/dkeye/Babyfoon/internal/domain"
)

// EngineHandler receives transport events. Callbacks may run on transport goroutines.
type EngineHandler struct {
	OnJoined           func(channel string, uid uint32)
	OnPeerJoined       func(uid uint32)
	OnPeerLeft         func(uid uint32)
	OnVolumeIndication func(level float64)
	// OnError reports a transport failure after a successful join.
	OnError func(err error)
}

// Engine is the real-time transport a session drives. Implementations are
// selected by configuration: the WebRTC engine or the chunked fallback.
type Engine interface {
	Initialize(appID string) error
	EnableAudio() error
	SetRole(role domain.Role) error
	SetHandler(h EngineHandler)
	Join(ctx context.Context, token, channel string, uid uint32) error
	Leave(ctx context.Context) error
	// MuteLocal suppresses outbound audio.
	MuteLocal(muted bool) error
	// MuteRemote suppresses inbound audio.
	MuteRemote(muted bool) error
}
