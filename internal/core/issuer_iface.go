package core

import (
	"context"
	"time"

	"github.com/dkeye/Babyfoon/internal/domain"
)

type TokenIssuer interface {
	Issue(ctx context.Context, channelName string, uid uint32, role domain.Role) (domain.JoinCredential, error)
}

type Validation int

const (
	Valid Validation = iota
	InvalidFormat
	NotFound
)

func (v Validation) String() string {
	switch v {
	case Valid:
		return "valid"
	case InvalidFormat:
		return "invalid_format"
	default:
		return "not_found"
	}
}

// Directory maps channel codes to live broadcasts.
type Directory interface {
	AllocateCode(ctx context.Context) (domain.ChannelCode, error)
	Validate(ctx context.Context, code string) (Validation, error)
	Claim(ctx context.Context, code domain.ChannelCode, now time.Time) (domain.SessionRecord, error)
	Release(ctx context.Context, code domain.ChannelCode) error
}

// TokenVerifier authorizes SFU joins.
type TokenVerifier interface {
	Verify(token, channelName string, uid uint32) (domain.Role, time.Time, error)
}

// ChannelLookup is the server-side view of the directory used by the SFU.
type ChannelLookup interface {
	Lookup(code domain.ChannelCode) (domain.SessionRecord, bool)
	Attach(code domain.ChannelCode) error
	Detach(code domain.ChannelCode)
}
