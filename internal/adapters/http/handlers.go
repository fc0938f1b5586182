package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dkeye/Babyfoon/internal/app"
	"github.com/dkeye/Babyfoon/internal/core"
	"github.com/dkeye/Babyfoon/internal/domain"
	"github.com/dkeye/Babyfoon/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const maxChunkBytes = 16 << 20

// Evictor drops live SFU members of a released channel.
type Evictor interface {
	EvictChannel(code domain.ChannelCode)
}

type API struct {
	Tokens    core.TokenIssuer
	Directory *app.Directory
	Store     core.ChunkStore
	Evictor   Evictor
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

type tokenRequest struct {
	ChannelName string `json:"channelName"`
	UID         uint32 `json:"uid"`
	Role        int    `json:"role"`
}

type tokenResponse struct {
	Token       string `json:"token"`
	AppID       string `json:"appId"`
	ChannelName string `json:"channelName"`
	UID         uint32 `json:"uid"`
	Expiration  int64  `json:"expiration"`
}

type channelResponse struct {
	Code       domain.ChannelCode `json:"code"`
	CreatedAt  time.Time          `json:"createdAt"`
	Link       string             `json:"link"`
	Listeners  int                `json:"listeners"`
	ReleaseKey string             `json:"releaseKey,omitempty"`
}

type chunkResponse struct {
	Key      string `json:"key"`
	URL      string `json:"url,omitempty"`
	Sequence int64  `json:"sequence"`
}

func (a *API) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// statusOf maps an error kind onto an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrChannelTaken):
		return http.StatusConflict
	case errors.Is(err, domain.ErrCredentialExpired):
		return http.StatusUnauthorized
	}
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindUpstream, domain.KindStorage:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func abortWith(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error(), "message": domain.UserMessage(err)})
}

func (a *API) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWith(c, domain.E(domain.KindValidation, "issue token", err))
		return
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		abortWith(c, err)
		return
	}
	cred, err := a.Tokens.Issue(c.Request.Context(), req.ChannelName, req.UID, role)
	a.Metrics.RecordToken(role.String(), err)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse{
		Token:       cred.Token,
		AppID:       cred.AppID,
		ChannelName: cred.ChannelName,
		UID:         cred.UID,
		Expiration:  cred.ExpiresAt.Unix(),
	})
}

// CreateChannel claims the requested code, or a free one when none is given.
func (a *API) CreateChannel(c *gin.Context) {
	var req struct {
		Code string `json:"code"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWith(c, domain.E(domain.KindValidation, "create channel", err))
			return
		}
	}
	ctx := c.Request.Context()

	var code domain.ChannelCode
	var err error
	if strings.TrimSpace(req.Code) == "" {
		code, err = a.Directory.AllocateCode(ctx)
	} else {
		code, err = domain.ParseChannelCode(req.Code)
	}
	if err != nil {
		abortWith(c, err)
		return
	}
	rec, err := a.Directory.Claim(ctx, code, a.now())
	a.Metrics.RecordClaim(err)
	if err != nil {
		abortWith(c, err)
		return
	}
	a.Metrics.SetActiveChannels(len(a.Directory.Active()))
	c.JSON(http.StatusCreated, channelResponse{
		Code:       rec.Code,
		CreatedAt:  rec.CreatedAt,
		Link:       rec.Code.DeepLink(),
		ReleaseKey: rec.ReleaseKey,
	})
}

func (a *API) GetChannel(c *gin.Context) {
	raw := c.Param("code")
	v, err := a.Directory.Validate(c.Request.Context(), raw)
	if err != nil {
		abortWith(c, err)
		return
	}
	switch v {
	case core.InvalidFormat:
		abortWith(c, domain.E(domain.KindValidation, "get channel", domain.ErrInvalidCode))
		return
	case core.NotFound:
		abortWith(c, domain.E(domain.KindNotFound, "get channel", domain.ErrChannelNotFound))
		return
	}
	rec, ok := a.Directory.Lookup(domain.ChannelCode(raw))
	if !ok {
		abortWith(c, domain.E(domain.KindNotFound, "get channel", domain.ErrChannelNotFound))
		return
	}
	c.JSON(http.StatusOK, channelResponse{
		Code:      rec.Code,
		CreatedAt: rec.CreatedAt,
		Link:      rec.Code.DeepLink(),
		Listeners: rec.Listeners,
	})
}

// authorized checks the broadcaster's release key on a live channel.
func (a *API) authorized(c *gin.Context) (domain.ChannelCode, bool) {
	code, err := domain.ParseChannelCode(c.Param("code"))
	if err != nil {
		abortWith(c, err)
		return "", false
	}
	if _, ok := a.Directory.Lookup(code); !ok {
		abortWith(c, domain.E(domain.KindNotFound, "authorize", domain.ErrChannelNotFound))
		return "", false
	}
	key, _ := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !a.Directory.Authorize(code, key) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "release key required"})
		return "", false
	}
	return code, true
}

func (a *API) DeleteChannel(c *gin.Context) {
	code, ok := a.authorized(c)
	if !ok {
		return
	}
	if err := a.Directory.Release(c.Request.Context(), code); err != nil {
		abortWith(c, err)
		return
	}
	if a.Evictor != nil {
		a.Evictor.EvictChannel(code)
	}
	a.Metrics.SetActiveChannels(len(a.Directory.Active()))
	c.Status(http.StatusNoContent)
}

// PutChunk proxies a broadcaster's segment into the chunk store.
func (a *API) PutChunk(c *gin.Context) {
	code, ok := a.authorized(c)
	if !ok {
		return
	}
	seq, err := strconv.ParseInt(c.Param("seq"), 10, 64)
	if err != nil || seq < 0 {
		abortWith(c, domain.E(domain.KindValidation, "put chunk", domain.ErrInvalidChunkKey))
		return
	}
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxChunkBytes+1))
	if err != nil {
		abortWith(c, domain.E(domain.KindValidation, "put chunk", err))
		return
	}
	if len(data) == 0 || len(data) > maxChunkBytes {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "chunk size out of range"})
		return
	}
	mime := c.ContentType()
	if mime == "" {
		mime = domain.MimeM4A
	}
	chunk := domain.AudioChunk{Channel: code, Sequence: seq, Data: data, MimeType: mime}
	err = a.Store.Put(c.Request.Context(), chunk.Key(), chunk.Data, domain.MimeForExt(domain.ExtForMime(mime)))
	a.Metrics.RecordUpload(len(data), err)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusCreated, chunkResponse{Key: chunk.Key(), Sequence: seq})
}

func (a *API) LatestChunk(c *gin.Context) {
	code, err := domain.ParseChannelCode(c.Param("code"))
	if err != nil {
		abortWith(c, err)
		return
	}
	ctx := c.Request.Context()
	obj, err := a.Store.Latest(ctx, code.StoragePrefix())
	a.Metrics.RecordPoll(err)
	if err != nil {
		abortWith(c, err)
		return
	}
	url, err := a.Store.PublicURL(ctx, obj.Key)
	if err != nil {
		abortWith(c, err)
		return
	}
	_, seq, _ := domain.ParseChunkKey(obj.Key)
	c.JSON(http.StatusOK, chunkResponse{Key: obj.Key, URL: url, Sequence: seq})
}

// Watch resolves a shared deep link path.
func (a *API) Watch(c *gin.Context) {
	code, err := domain.ParseDeepLink("/watch/" + c.Param("code"))
	if err != nil {
		abortWith(c, err)
		return
	}
	if _, ok := a.Directory.Lookup(code); !ok {
		abortWith(c, domain.E(domain.KindNotFound, "watch", domain.ErrChannelNotFound))
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": code, "status": "live", "link": code.DeepLink()})
}
