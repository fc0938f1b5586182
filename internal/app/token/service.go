// Package token issues and verifies role-scoped channel join credentials.
package token

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"strconv"
	"strings"
	"time"

	"github.com/dkeye/Babyfoon/internal/domain"
)

const (
	DefaultTTL = 3600 * time.Second
	version    = "007"
	payloadLen = 8 + 1 + sha256.Size
)

// Service is stateless: a credential is a pure function of its inputs,
// the server secret and the clock.
type Service struct {
	appID  string
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	mac    func(key []byte) hash.Hash
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func NewService(appID, certificate string, opts ...Option) *Service {
	s := &Service{
		appID:  appID,
		secret: []byte(certificate),
		ttl:    DefaultTTL,
		now:    time.Now,
		mac:    func(key []byte) hash.Hash { return hmac.New(sha256.New, key) },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) TTL() time.Duration { return s.ttl }

func (s *Service) configured() bool { return s.appID != "" && len(s.secret) > 0 }

// Issue signs a credential for channelName. uid 0 means "assign on join".
func (s *Service) Issue(_ context.Context, channelName string, uid uint32, role domain.Role) (domain.JoinCredential, error) {
	const op = "issue token"
	if !s.configured() {
		return domain.JoinCredential{}, domain.E(domain.KindConfiguration, op, domain.ErrNotConfigured)
	}
	if strings.TrimSpace(channelName) == "" {
		return domain.JoinCredential{}, domain.E(domain.KindValidation, op, domain.ErrEmptyChannel)
	}
	if !role.Valid() {
		return domain.JoinCredential{}, domain.E(domain.KindValidation, op, domain.ErrInvalidRole)
	}

	expiresAt := s.now().Add(s.ttl)
	sum, err := s.sign(channelName, uid, expiresAt.Unix(), role)
	if err != nil {
		return domain.JoinCredential{}, domain.E(domain.KindUpstream, op, err)
	}

	payload := make([]byte, 0, payloadLen)
	payload = binary.BigEndian.AppendUint64(payload, uint64(expiresAt.Unix()))
	payload = append(payload, byte(role))
	payload = append(payload, sum...)

	return domain.JoinCredential{
		Token:       version + s.appID + base64.RawURLEncoding.EncodeToString(payload),
		AppID:       s.appID,
		ChannelName: channelName,
		UID:         uid,
		Role:        role,
		ExpiresAt:   expiresAt,
	}, nil
}

// Verify checks that token was issued by this service for channelName and uid
// and has not expired. It returns the role the token grants.
func (s *Service) Verify(token, channelName string, uid uint32) (domain.Role, time.Time, error) {
	const op = "verify token"
	if !s.configured() {
		return 0, time.Time{}, domain.E(domain.KindConfiguration, op, domain.ErrNotConfigured)
	}
	rest, ok := strings.CutPrefix(token, version+s.appID)
	if !ok {
		return 0, time.Time{}, domain.E(domain.KindValidation, op, domain.ErrBadToken)
	}
	payload, err := base64.RawURLEncoding.DecodeString(rest)
	if err != nil || len(payload) != payloadLen {
		return 0, time.Time{}, domain.E(domain.KindValidation, op, domain.ErrBadToken)
	}
	exp := int64(binary.BigEndian.Uint64(payload[:8]))
	role := domain.Role(payload[8])
	if !role.Valid() {
		return 0, time.Time{}, domain.E(domain.KindValidation, op, domain.ErrBadToken)
	}
	want, err := s.sign(channelName, uid, exp, role)
	if err != nil {
		return 0, time.Time{}, domain.E(domain.KindUpstream, op, err)
	}
	if !hmac.Equal(want, payload[9:]) {
		return 0, time.Time{}, domain.E(domain.KindValidation, op, domain.ErrBadToken)
	}
	expiresAt := time.Unix(exp, 0)
	if !s.now().Before(expiresAt) {
		return 0, time.Time{}, domain.E(domain.KindValidation, op, domain.ErrCredentialExpired)
	}
	return role, expiresAt, nil
}

func (s *Service) sign(channelName string, uid uint32, expiresAt int64, role domain.Role) ([]byte, error) {
	m := s.mac(s.secret)
	if m == nil {
		return nil, errors.New("signer unavailable")
	}
	fields := []string{
		s.appID,
		channelName,
		strconv.FormatUint(uint64(uid), 10),
		strconv.FormatInt(expiresAt, 10),
		strconv.Itoa(int(role)),
	}
	for _, f := range fields {
		// Length-prefixed so field boundaries cannot shift.
		if _, err := fmt.Fprintf(m, "%d:%s;", len(f), f); err != nil {
			return nil, fmt.Errorf("sign: %w", err)
		}
	}
	return m.Sum(nil), nil
}
