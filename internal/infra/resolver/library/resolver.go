// Package library provides a content resolver backed by a local music library.
package library

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Config represents library resolver settings.
type Config struct {
	Dir        string   `yaml:"dir" mapstructure:"dir" validate:"required"`
	Extensions []string `yaml:"extensions" mapstructure:"extensions" default:"[\"mp3\",\"flac\",\"ogg\",\"m4a\",\"opus\",\"wav\"]"`
	Link       *bool    `yaml:"link" mapstructure:"link" default:"true"`
}

// Resolver finds a library file whose name contains every word of the query.
type Resolver struct {
	config Config
	exts   map[string]bool
}

// New creates a resolver from raw settings.
func New(settings map[string]any) (*Resolver, error) {
	var config Config
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}

	exts := lo.SliceToMap(config.Extensions, func(ext string) (string, bool) {
		return "." + strings.ToLower(strings.TrimPrefix(ext, ".")), true
	})
	return &Resolver{config: config, exts: exts}, nil
}

// Name returns the resolver name.
func (r *Resolver) Name() string {
	return "library"
}

// Resolve returns the best matching library file. When linking is enabled the
// file is also symlinked at targetPath so later lookups hit the content cache.
func (r *Resolver) Resolve(ctx context.Context, query, targetPath string) (string, error) {
	words := tokenize(query)
	if len(words) == 0 {
		return "", nil
	}

	var best string
	bestExtra := -1
	err := filepath.WalkDir(r.config.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !r.exts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		rel, relErr := filepath.Rel(r.config.Dir, path)
		if relErr != nil {
			rel = d.Name()
		}
		name := strings.TrimSuffix(rel, filepath.Ext(rel))
		candidate := tokenize(name)
		if !containsAll(candidate, words) {
			return nil
		}
		// Fewer unrelated words is a closer match.
		extra := len(candidate) - len(words)
		if bestExtra < 0 || extra < bestExtra {
			best, bestExtra = path, extra
		}
		return nil
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to scan library %s", r.config.Dir)
	}
	if best == "" {
		return "", nil
	}

	zlog.Debug().Msgf("library: matched: query=%q path=%s", query, best)
	if r.config.Link == nil || !*r.config.Link || targetPath == "" {
		return best, nil
	}
	if err := os.Symlink(best, targetPath); err != nil {
		zlog.Warn().Msgf("library: cannot link %s: %v", targetPath, err)
		return best, nil
	}
	return targetPath, nil
}

// tokenize lowercases s and splits it into letter/digit words.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func containsAll(haystack, needles []string) bool {
	set := lo.SliceToMap(haystack, func(w string) (string, struct{}) { return w, struct{}{} })
	return lo.EveryBy(needles, func(w string) bool {
		_, ok := set[w]
		return ok
	})
}
