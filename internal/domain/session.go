package domain

import "time"

// SessionRecord is the directory entry of a broadcast.
type SessionRecord struct {
	Code      ChannelCode `json:"code"`
	Role      Role        `json:"role"`
	CreatedAt time.Time   `json:"createdAt"`
	Active    bool        `json:"active"`
	Listeners int         `json:"listeners"`
	// ReleaseKey authorizes ending the broadcast; only the claimer sees it.
	ReleaseKey string `json:"releaseKey,omitempty"`
}
