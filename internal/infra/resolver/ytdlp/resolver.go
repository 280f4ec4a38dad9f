// Package ytdlp provides a content resolver that searches and downloads audio with yt-dlp.
package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"
)

// Config represents yt-dlp resolver settings.
type Config struct {
	Binary       string   `yaml:"binary" mapstructure:"binary" default:"yt-dlp" validate:"required"`
	Format       string   `yaml:"format" mapstructure:"format" default:"bestaudio/best" validate:"required"`
	SearchPrefix string   `yaml:"search_prefix" mapstructure:"search_prefix" default:"ytsearch1:" validate:"required"`
	ExtractAudio *bool    `yaml:"extract_audio" mapstructure:"extract_audio" default:"true"`
	ExtraArgs    []string `yaml:"extra_args" mapstructure:"extra_args"`
}

// Resolver downloads the first search hit for a query.
type Resolver struct {
	config Config
	run    runFunc
}

// runFunc executes a command and returns its standard output.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// New creates a resolver from raw settings.
func New(settings map[string]any) (*Resolver, error) {
	var config Config
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	zlog.Debug().Msgf("ytdlp resolver config: %+v", config)
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}
	return &Resolver{config: config, run: runCommand}, nil
}

// Name returns the resolver name.
func (r *Resolver) Name() string {
	return "ytdlp"
}

// Resolve searches for query and downloads the first hit next to targetPath.
// With audio extraction the result is exactly targetPath; otherwise the
// extension is whatever the source provides.
func (r *Resolver) Resolve(ctx context.Context, query, targetPath string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", nil
	}

	args := r.args(query, targetPath)
	zlog.Debug().Msgf("ytdlp: running: %s %s", r.config.Binary, strings.Join(args, " "))

	out, err := r.run(ctx, r.config.Binary, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", errors.Wrap(ctxErr, "yt-dlp did not finish in time")
		}
		return "", errors.Wrap(err, "yt-dlp failed")
	}

	path := lastLine(out)
	if path == "" {
		// No search hit.
		return "", nil
	}
	if _, err := os.Stat(path); err != nil {
		return "", errors.Wrapf(err, "yt-dlp reported %s but it is missing", path)
	}
	return path, nil
}

func (r *Resolver) args(query, targetPath string) []string {
	ext := strings.TrimPrefix(filepath.Ext(targetPath), ".")
	stem := strings.TrimSuffix(targetPath, filepath.Ext(targetPath))

	args := []string{
		"--no-playlist",
		"--no-progress",
		"--no-warnings",
		"--format", r.config.Format,
		"--output", stem + ".%(ext)s",
		"--print", "after_move:filepath",
	}
	if r.config.ExtractAudio == nil || *r.config.ExtractAudio {
		args = append(args, "--extract-audio", "--audio-format", ext)
	}
	args = append(args, r.config.ExtraArgs...)
	return append(args, r.config.SearchPrefix+query)
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return out, errors.Wrapf(err, "%s", strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

func lastLine(out []byte) string {
	var last string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			last = line
		}
	}
	return last
}
