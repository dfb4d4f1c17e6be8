package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Diagnostic reports what Load found. Callers always end up with a usable
// value (defaults when nothing better exists); the diagnostic makes corrupt
// blobs observable instead of silently indistinguishable from first run.
type Diagnostic int

const (
	LoadOK Diagnostic = iota
	LoadMissing
	LoadCorrupt
)

func (d Diagnostic) String() string {
	switch d {
	case LoadOK:
		return "ok"
	case LoadMissing:
		return "missing"
	case LoadCorrupt:
		return "corrupt"
	}
	return "unknown"
}

// Codec loads and saves JSON documents in a Blobs store.
type Codec struct {
	blobs Blobs
	log   zerolog.Logger
}

func NewCodec(blobs Blobs, log zerolog.Logger) *Codec {
	return &Codec{blobs: blobs, log: log}
}

// Load unmarshals the blob at key into dst. dst should be pre-filled with
// defaults: JSON only overwrites keys present in the blob, so missing
// top-level keys keep their default values. On a missing or unparsable blob
// dst is left untouched and the diagnostic says which case it was.
func (c *Codec) Load(ctx context.Context, key string, dst any) Diagnostic {
	raw, err := c.blobs.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.log.Warn().Err(err).Str("key", key).Msg("blob read failed, using defaults")
		}
		return LoadMissing
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("blob is corrupt, using defaults")
		return LoadCorrupt
	}
	return LoadOK
}

// Save marshals v and writes it under key. Indented output keeps the blob
// diffable and identical to the backup export format.
func (c *Codec) Save(ctx context.Context, key string, v any) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := c.blobs.Set(ctx, key, string(payload)); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// Clear removes the blob at key. A missing blob is not an error.
func (c *Codec) Clear(ctx context.Context, key string) error {
	if err := c.blobs.Delete(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
