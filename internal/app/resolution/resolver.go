// Package resolution turns unresolved queue items into local content files in the background.
package resolution

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/trakify/internal/domain/track"
)

// ErrResolutionFailed is reported when no resolver produced content for an item.
var ErrResolutionFailed = errors.New("resolution failed")

// Resolver fetches content for a search query.
// It writes the content at or next to targetPath and returns the path of the
// playable file. An empty path with a nil error means nothing was found.
type Resolver interface {
	Resolve(ctx context.Context, query, targetPath string) (string, error)

	// Name returns the resolver name (used in config).
	Name() string
}

// Admission is the outcome of submitting an item to the pool.
type Admission int

const (
	Accepted        Admission = iota // A job was queued for the item
	AlreadyInFlight                  // A job for the item is already queued or running
	Rejected                         // The job queue is full or the pool is closed
)

// String returns the string representation of the admission.
func (a Admission) String() string {
	switch a {
	case Accepted:
		return "accepted"
	case AlreadyInFlight:
		return "already_in_flight"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Result is the outcome of one resolution job.
type Result struct {
	ItemID     string
	Title      string
	ContentRef string // Empty on failure
	Cached     bool   // Content was already on disk
	Err        error
}

// ClaimFunc marks an item as owned by a resolution job and returns its current
// value. It returns false when the item should not be resolved any more.
type ClaimFunc func(itemID string) (track.QueueItem, bool)

// CompleteFunc receives every finished job.
type CompleteFunc func(Result)

// ResolverWithMetadata wraps a resolver with its display name.
type ResolverWithMetadata struct {
	Resolver    Resolver
	DisplayName string
}

// ResolverChain tries resolvers in order until one produces content.
type ResolverChain struct {
	resolvers []ResolverWithMetadata
}

// NewResolverChain creates a new resolver chain.
func NewResolverChain(resolvers []ResolverWithMetadata) *ResolverChain {
	return &ResolverChain{
		resolvers: resolvers,
	}
}

// Resolve implements Resolver. Errors of one resolver are logged and the next
// one is tried; the last error is returned only when nothing was found.
func (c *ResolverChain) Resolve(ctx context.Context, query, targetPath string) (string, error) {
	var lastErr error
	for i, rm := range c.resolvers {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		zlog.Debug().Msgf("resolution: trying resolver: index=%d total=%d name=%s type=%s query=%q",
			i+1, len(c.resolvers), rm.DisplayName, rm.Resolver.Name(), query)

		path, err := rm.Resolver.Resolve(ctx, query, targetPath)
		if err != nil {
			zlog.Warn().Msgf("resolution: resolver failed, trying next: resolver=%s error=%v", rm.DisplayName, err)
			lastErr = err
			continue
		}
		if path == "" {
			zlog.Debug().Msgf("resolution: resolver found nothing: resolver=%s", rm.DisplayName)
			continue
		}

		zlog.Info().Msgf("resolution: resolved: resolver=%s query=%q path=%s", rm.DisplayName, query, path)
		return path, nil
	}
	return "", lastErr
}

// Name returns the chain name.
func (c *ResolverChain) Name() string {
	return "resolver_chain"
}

// Len returns the number of resolvers in the chain.
func (c *ResolverChain) Len() int {
	return len(c.resolvers)
}
