package resolution

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/trakify/internal/infra/config"
	"github.com/osa030/trakify/internal/infra/resolver/library"
	"github.com/osa030/trakify/internal/infra/resolver/ytdlp"
)

// NewResolverChainFromConfig creates a resolver chain from configuration.
func NewResolverChainFromConfig(cfg *config.Config) (*ResolverChain, error) {
	if len(cfg.Resolution.Resolvers) == 0 {
		return nil, errors.New("no content resolvers configured")
	}

	var resolvers []ResolverWithMetadata

	for i, rcfg := range cfg.Resolution.Resolvers {
		var resolver Resolver
		var err error
		zlog.Debug().Msgf("creating content resolver: index=%d type=%s settings=%+v", i+1, rcfg.Type, rcfg.Settings)
		switch rcfg.Type {
		case "ytdlp":
			resolver, err = ytdlp.New(rcfg.Settings)

		case "library":
			resolver, err = library.New(rcfg.Settings)

		default:
			return nil, errors.Newf("unsupported resolver type: %s (resolver index %d)", rcfg.Type, i)
		}

		if err != nil {
			return nil, errors.Wrapf(err, "failed to create resolver (index %d, type %s)", i, rcfg.Type)
		}

		displayName := rcfg.DisplayName
		if displayName == "" {
			displayName = rcfg.Type
		}
		resolvers = append(resolvers, ResolverWithMetadata{
			Resolver:    resolver,
			DisplayName: displayName,
		})

		zlog.Info().Msgf("registered content resolver: index=%d type=%s display_name=%s", i+1, rcfg.Type, displayName)
	}

	return NewResolverChain(resolvers), nil
}

// ConfigFrom extracts the pool configuration.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Workers:       cfg.Resolution.Workers,
		QueueSize:     cfg.Resolution.QueueSize,
		Timeout:       cfg.ResolutionTimeout(),
		PrefetchDelay: cfg.PrefetchDelay(),
	}
}
