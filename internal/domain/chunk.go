package domain

import (
	"fmt"
	"path"
	"strconv"
	"strings"
)

const (
	MimeM4A = "audio/m4a"
	MimeWAV = "audio/wav"
)

// AudioChunk is one fixed-length segment of the fallback pipeline.
type AudioChunk struct {
	Channel  ChannelCode
	Sequence int64 // capture start, unix millis
	Data     []byte
	MimeType string
}

func (c AudioChunk) Key() string {
	return ChunkKey(c.Channel, c.Sequence, c.MimeType)
}

// ChunkKey builds "{code}/{millis}.{ext}".
func ChunkKey(code ChannelCode, seq int64, mimeType string) string {
	return fmt.Sprintf("%s%d.%s", code.StoragePrefix(), seq, ExtForMime(mimeType))
}

func ExtForMime(mimeType string) string {
	switch mimeType {
	case MimeWAV, "audio/x-wav", "audio/wave":
		return "wav"
	default:
		return "m4a"
	}
}

func MimeForExt(ext string) string {
	if strings.TrimPrefix(ext, ".") == "wav" {
		return MimeWAV
	}
	return MimeM4A
}

// ParseChunkKey is the inverse of ChunkKey.
func ParseChunkKey(key string) (ChannelCode, int64, error) {
	dir, file := path.Split(key)
	code, err := ParseChannelCode(strings.TrimSuffix(dir, "/"))
	if err != nil {
		return "", 0, err
	}
	base := strings.TrimSuffix(file, path.Ext(file))
	seq, err := strconv.ParseInt(base, 10, 64)
	if err != nil || seq < 0 {
		return "", 0, E(KindValidation, "parse chunk key", ErrInvalidChunkKey)
	}
	return code, seq, nil
}
