// Package api is the device-side client of the server HTTP API. It provides
// the token issuer, channel directory and chunk store a device session needs.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/Babyfoon/internal/core"
	"github.com/dkeye/Babyfoon/internal/domain"
	"github.com/rs/zerolog/log"
)

type Client struct {
	base string
	hc   *http.Client
	intn func(int) int

	mu   sync.Mutex
	keys map[domain.ChannelCode]string
	urls map[domain.ChannelCode]latest
}

type latest struct {
	key string
	url string
}

var (
	_ core.TokenIssuer = (*Client)(nil)
	_ core.Directory   = (*Client)(nil)
	_ core.ChunkStore  = (*Client)(nil)
)

func New(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		hc:   hc,
		intn: rand.IntN,
		keys: make(map[domain.ChannelCode]string),
		urls: make(map[domain.ChannelCode]latest),
	}
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// sentinels are recognized in server error bodies so callers can errors.Is them.
var sentinels = []error{
	domain.ErrNotConfigured, domain.ErrEmptyChannel, domain.ErrInvalidCode, domain.ErrInvalidRole,
	domain.ErrChannelNotFound, domain.ErrChannelTaken, domain.ErrStreamNotFound,
	domain.ErrCredentialExpired, domain.ErrInvalidChunkKey, domain.ErrCodesExhausted,
}

func kindForStatus(status int) domain.Kind {
	switch {
	case status == http.StatusNotFound:
		return domain.KindNotFound
	case status == http.StatusConflict, status == http.StatusBadRequest:
		return domain.KindValidation
	case status == http.StatusUnauthorized:
		return domain.KindUpstream
	case status == http.StatusBadGateway:
		return domain.KindStorage
	case status >= 500:
		return domain.KindConfiguration
	default:
		return domain.KindUnknown
	}
}

func decodeError(op string, resp *http.Response) error {
	var body apiError
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)
	for _, s := range sentinels {
		if strings.Contains(body.Error, s.Error()) {
			kind := kindForStatus(resp.StatusCode)
			if errors.Is(s, domain.ErrNotConfigured) {
				kind = domain.KindConfiguration
			}
			return domain.E(kind, op, s)
		}
	}
	msg := body.Error
	if msg == "" {
		msg = resp.Status
	}
	return domain.E(kindForStatus(resp.StatusCode), op, fmt.Errorf("server: %s", msg))
}

// do sends a request and decodes a JSON response into out when want matches.
func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, header http.Header, want int, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return domain.E(domain.KindValidation, op, err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return domain.E(domain.KindUpstream, op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		return decodeError(op, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.E(domain.KindUpstream, op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func jsonBody(v any) (io.Reader, http.Header, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, nil, err
	}
	return bytes.NewReader(b), http.Header{"Content-Type": {"application/json"}}, nil
}

func (c *Client) bearer(code domain.ChannelCode) http.Header {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := http.Header{}
	if k := c.keys[code]; k != "" {
		h.Set("Authorization", "Bearer "+k)
	}
	return h
}

// Issue asks the server for a fresh credential. Nothing is cached.
func (c *Client) Issue(ctx context.Context, channelName string, uid uint32, role domain.Role) (domain.JoinCredential, error) {
	const op = "issue token"
	body, h, err := jsonBody(map[string]any{"channelName": channelName, "uid": uid, "role": int(role)})
	if err != nil {
		return domain.JoinCredential{}, domain.E(domain.KindValidation, op, err)
	}
	var resp struct {
		Token       string `json:"token"`
		AppID       string `json:"appId"`
		ChannelName string `json:"channelName"`
		UID         uint32 `json:"uid"`
		Expiration  int64  `json:"expiration"`
	}
	if err := c.do(ctx, op, http.MethodPost, "/api/token", body, h, http.StatusOK, &resp); err != nil {
		if domain.KindOf(err) == domain.KindUnknown {
			return domain.JoinCredential{}, domain.E(domain.KindUpstream, op, err)
		}
		return domain.JoinCredential{}, err
	}
	return domain.JoinCredential{
		Token:       resp.Token,
		AppID:       resp.AppID,
		ChannelName: resp.ChannelName,
		UID:         resp.UID,
		Role:        role,
		ExpiresAt:   time.Unix(resp.Expiration, 0),
	}, nil
}

// AllocateCode draws a code locally; the server arbitrates on Claim.
func (c *Client) AllocateCode(context.Context) (domain.ChannelCode, error) {
	return domain.ChannelCode(strconv.Itoa(1000 + c.intn(9000))), nil
}

func (c *Client) Validate(ctx context.Context, code string) (core.Validation, error) {
	if !domain.IsCode(code) {
		return core.InvalidFormat, nil
	}
	err := c.do(ctx, "validate code", http.MethodGet, "/api/channels/"+code, nil, nil, http.StatusOK, nil)
	switch {
	case err == nil:
		return core.Valid, nil
	case domain.KindOf(err) == domain.KindNotFound:
		return core.NotFound, nil
	case errors.Is(err, domain.ErrInvalidCode):
		return core.InvalidFormat, nil
	default:
		return core.NotFound, err
	}
}

func (c *Client) Claim(ctx context.Context, code domain.ChannelCode, _ time.Time) (domain.SessionRecord, error) {
	const op = "claim"
	body, h, err := jsonBody(map[string]string{"code": string(code)})
	if err != nil {
		return domain.SessionRecord{}, domain.E(domain.KindValidation, op, err)
	}
	var resp struct {
		Code       domain.ChannelCode `json:"code"`
		CreatedAt  time.Time          `json:"createdAt"`
		ReleaseKey string             `json:"releaseKey"`
	}
	if err := c.do(ctx, op, http.MethodPost, "/api/channels", body, h, http.StatusCreated, &resp); err != nil {
		return domain.SessionRecord{}, err
	}
	c.mu.Lock()
	c.keys[resp.Code] = resp.ReleaseKey
	c.mu.Unlock()
	return domain.SessionRecord{
		Code:      resp.Code,
		Role:      domain.RoleBroadcaster,
		CreatedAt: resp.CreatedAt,
		Active:    true,
	}, nil
}

// Release ends the broadcast. A channel the server no longer knows is released.
func (c *Client) Release(ctx context.Context, code domain.ChannelCode) error {
	err := c.do(ctx, "release", http.MethodDelete, "/api/channels/"+string(code), nil, c.bearer(code), http.StatusNoContent, nil)
	if domain.KindOf(err) == domain.KindNotFound {
		err = nil
	}
	if err == nil {
		c.mu.Lock()
		delete(c.keys, code)
		delete(c.urls, code)
		c.mu.Unlock()
	}
	return err
}

func (c *Client) Put(ctx context.Context, key string, data []byte, contentType string) error {
	code, seq, err := domain.ParseChunkKey(key)
	if err != nil {
		return err
	}
	h := c.bearer(code)
	h.Set("Content-Type", contentType)
	path := fmt.Sprintf("/api/channels/%s/chunks/%d", code, seq)
	return c.do(ctx, "put chunk", http.MethodPut, path, bytes.NewReader(data), h, http.StatusCreated, nil)
}

func (c *Client) Latest(ctx context.Context, prefix string) (core.ObjectInfo, error) {
	const op = "latest chunk"
	code, err := domain.ParseChannelCode(strings.TrimSuffix(prefix, "/"))
	if err != nil {
		return core.ObjectInfo{}, err
	}
	var resp struct {
		Key      string `json:"key"`
		URL      string `json:"url"`
		Sequence int64  `json:"sequence"`
	}
	path := "/api/channels/" + string(code) + "/chunks/latest"
	if err := c.do(ctx, op, http.MethodGet, path, nil, nil, http.StatusOK, &resp); err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			return core.ObjectInfo{}, domain.E(domain.KindNotFound, op, domain.ErrStreamNotFound)
		}
		return core.ObjectInfo{}, err
	}
	c.mu.Lock()
	c.urls[code] = latest{key: resp.Key, url: resp.URL}
	c.mu.Unlock()
	return core.ObjectInfo{Key: resp.Key, CreatedAt: time.UnixMilli(resp.Sequence)}, nil
}

// PublicURL returns the URL the server handed out with the last Latest call.
func (c *Client) PublicURL(_ context.Context, key string) (string, error) {
	code, _, err := domain.ParseChunkKey(key)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	l, ok := c.urls[code]
	c.mu.Unlock()
	if !ok || l.key != key {
		log.Debug().Str("module", "adapters.api").Str("key", key).Msg("no cached url")
		return "", domain.E(domain.KindNotFound, "public url", domain.ErrStreamNotFound)
	}
	return l.url, nil
}
