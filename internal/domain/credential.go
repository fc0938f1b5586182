package domain

import "time"

// JoinCredential authorizes one uid with one role on one channel until ExpiresAt.
type JoinCredential struct {
	Token       string
	AppID       string
	ChannelName string
	UID         uint32
	Role        Role
	ExpiresAt   time.Time
}

func (c JoinCredential) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
