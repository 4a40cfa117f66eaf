// Package fallback provides an embedder that tries a remote service first and
// falls back to the local hashing embedder on any failure.
package fallback

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/poiesic/docrag/ai"
	"github.com/poiesic/docrag/ai/local"
)

// Embedder implements ai.Embedder. It only returns an error when ctx is done.
type Embedder struct {
	remote   ai.Embedder
	cooldown time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	skipUntil time.Time

	fallbacks atomic.Int64
}

var _ ai.TracedEmbedder = (*Embedder)(nil)

// Option configures an Embedder.
type Option func(*Embedder)

// WithCooldown skips the remote service for d after a remote failure so a
// down service does not cost a full retry cycle per chunk.
func WithCooldown(d time.Duration) Option {
	return func(e *Embedder) {
		e.cooldown = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Embedder) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New wraps remote. A nil remote always embeds locally.
func New(remote ai.Embedder, opts ...Option) *Embedder {
	e := &Embedder{
		remote: remote,
		logger: slog.Default().With("component", "fallback-embedder"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EmbedText embeds text remotely, or locally if the remote call fails.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vec, _, err := e.EmbedTextTraced(ctx, text)
	return vec, err
}

// EmbedTextTraced is EmbedText that also returns the remote model name, or
// local.ModelName when the vector was embedded locally.
func (e *Embedder) EmbedTextTraced(ctx context.Context, text string) ([]float32, string, error) {
	if e.useRemote() {
		vec, err := e.remote.EmbedText(ctx, text)
		if err == nil && len(vec) > 0 {
			return vec, e.remote.Model(), nil
		}
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		e.remoteFailed(err, 1)
	}
	e.fallbacks.Add(1)
	return local.Embed(text), local.ModelName, nil
}

// EmbedTexts embeds texts remotely as one batch, or each locally if the batch fails.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if e.useRemote() {
		vecs, err := e.remote.EmbedTexts(ctx, texts)
		if err == nil && len(vecs) == len(texts) && allNonEmpty(vecs) {
			return vecs, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.remoteFailed(err, len(texts))
	}
	e.fallbacks.Add(int64(len(texts)))
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = local.Embed(t)
	}
	return out, nil
}

// Model returns the remote model name, or the local model name without a
// remote. Use EmbedTextTraced to learn which model produced a vector.
func (e *Embedder) Model() string {
	if e.remote == nil {
		return local.ModelName
	}
	return e.remote.Model()
}

// Fallbacks returns how many texts were embedded locally.
func (e *Embedder) Fallbacks() int64 {
	return e.fallbacks.Load()
}

func (e *Embedder) useRemote() bool {
	if e.remote == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.now().Before(e.skipUntil)
}

func (e *Embedder) remoteFailed(err error, n int) {
	e.logger.Warn("remote embedding failed, using local embedding", "texts", n, "err", err)
	if e.cooldown <= 0 {
		return
	}
	e.mu.Lock()
	e.skipUntil = e.now().Add(e.cooldown)
	e.mu.Unlock()
}

func allNonEmpty(vecs [][]float32) bool {
	for _, v := range vecs {
		if len(v) == 0 {
			return false
		}
	}
	return true
}
