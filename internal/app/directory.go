package app

import (
	"context"
	"crypto/subtle"
	"math/rand/v2"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/dkeye/Babyfoon/internal/core"
	"github.com/dkeye/Babyfoon/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const allocateAttempts = 32

// Directory is the process-wide map of live channel codes. Nothing is persisted.
type Directory struct {
	mu      sync.RWMutex
	records map[domain.ChannelCode]*domain.SessionRecord
	intn    func(n int) int
}

var _ core.Directory = (*Directory)(nil)

func NewDirectory() *Directory {
	return &Directory{
		records: make(map[domain.ChannelCode]*domain.SessionRecord),
		intn:    rand.IntN,
	}
}

// AllocateCode picks a random code in 1000..9999 that is not active right now.
// It does not reserve the code; Claim does.
func (d *Directory) AllocateCode(_ context.Context) (domain.ChannelCode, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for i := 0; i < allocateAttempts; i++ {
		code := domain.ChannelCode(strconv.Itoa(1000 + d.intn(9000)))
		if rec, ok := d.records[code]; !ok || !rec.Active {
			return code, nil
		}
	}
	return "", domain.E(domain.KindUnknown, "allocate code", domain.ErrCodesExhausted)
}

func (d *Directory) Validate(_ context.Context, code string) (core.Validation, error) {
	if !domain.IsCode(code) {
		return core.InvalidFormat, nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if rec, ok := d.records[domain.ChannelCode(code)]; ok && rec.Active {
		return core.Valid, nil
	}
	return core.NotFound, nil
}

// Claim registers the broadcaster record for code.
func (d *Directory) Claim(_ context.Context, code domain.ChannelCode, now time.Time) (domain.SessionRecord, error) {
	if !domain.IsCode(string(code)) {
		return domain.SessionRecord{}, domain.E(domain.KindValidation, "claim", domain.ErrInvalidCode)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if rec, ok := d.records[code]; ok && rec.Active {
		return domain.SessionRecord{}, domain.E(domain.KindValidation, "claim", domain.ErrChannelTaken)
	}
	rec := &domain.SessionRecord{
		Code:       code,
		Role:       domain.RoleBroadcaster,
		CreatedAt:  now,
		Active:     true,
		ReleaseKey: uuid.NewString(),
	}
	d.records[code] = rec
	log.Info().Str("module", "app.directory").Str("code", string(code)).Msg("channel claimed")
	return *rec, nil
}

// Release marks the record inactive and drops its key and listeners. The code
// can be claimed again. Releasing an unknown or inactive code is a no-op.
func (d *Directory) Release(_ context.Context, code domain.ChannelCode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.records[code]
	if !ok || !rec.Active {
		return nil
	}
	rec.Active = false
	rec.ReleaseKey = ""
	rec.Listeners = 0
	log.Info().Str("module", "app.directory").Str("code", string(code)).Msg("channel released")
	return nil
}

// Authorize reports whether key is the release key handed out by Claim.
func (d *Directory) Authorize(code domain.ChannelCode, key string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, ok := d.records[code]
	return ok && rec.Active && key != "" && subtle.ConstantTimeCompare([]byte(rec.ReleaseKey), []byte(key)) == 1
}

func (d *Directory) Lookup(code domain.ChannelCode) (domain.SessionRecord, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, ok := d.records[code]
	if !ok || !rec.Active {
		return domain.SessionRecord{}, false
	}
	r := *rec
	r.ReleaseKey = ""
	return r, true
}

// Attach counts a listener on an active channel.
func (d *Directory) Attach(code domain.ChannelCode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.records[code]
	if !ok || !rec.Active {
		return domain.E(domain.KindNotFound, "attach", domain.ErrChannelNotFound)
	}
	rec.Listeners++
	return nil
}

func (d *Directory) Detach(code domain.ChannelCode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if rec, ok := d.records[code]; ok && rec.Listeners > 0 {
		rec.Listeners--
	}
}

// Active lists live records ordered by creation time.
func (d *Directory) Active() []domain.SessionRecord {
	d.mu.RLock()
	out := make([]domain.SessionRecord, 0, len(d.records))
	for _, rec := range d.records {
		if rec.Active {
			r := *rec
			r.ReleaseKey = ""
			out = append(out, r)
		}
	}
	d.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
