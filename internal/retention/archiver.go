package retention

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/agentoven/agentmarket/internal/validation"
)

// Archiver stores expired jobs somewhere durable before they are purged.
type Archiver interface {
	Kind() string
	ArchiveJobs(ctx context.Context, jobs []validation.Job) (string, error)
	HealthCheck(ctx context.Context) error
}

// LocalFileArchiver writes expired jobs as JSONL files:
//
//	{basePath}/jobs/2026-02-20T15-04-05.000000000Z.jsonl[.gz]
type LocalFileArchiver struct {
	basePath string
	compress bool
}

// NewLocalFileArchiver creates a file archiver. An empty basePath defaults
// to ~/.agentmarket/archive.
func NewLocalFileArchiver(basePath string, compress bool) *LocalFileArchiver {
	if basePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			basePath = filepath.Join(os.TempDir(), "agentmarket", "archive")
		} else {
			basePath = filepath.Join(home, ".agentmarket", "archive")
		}
	}
	return &LocalFileArchiver{basePath: basePath, compress: compress}
}

func (a *LocalFileArchiver) Kind() string { return "local" }

func (a *LocalFileArchiver) ArchiveJobs(_ context.Context, jobs []validation.Job) (path string, err error) {
	dir := filepath.Join(a.basePath, "jobs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	filename := time.Now().UTC().Format("2006-01-02T15-04-05.000000000Z") + ".jsonl"
	if a.compress {
		filename += ".gz"
	}
	path = filepath.Join(dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create archive file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close archive file: %w", cerr)
		}
	}()

	enc := json.NewEncoder(f)
	if a.compress {
		gw := gzip.NewWriter(f)
		defer func() {
			if cerr := gw.Close(); err == nil && cerr != nil {
				err = fmt.Errorf("flush archive file: %w", cerr)
			}
		}()
		enc = json.NewEncoder(gw)
	}

	for _, job := range jobs {
		if err := enc.Encode(job); err != nil {
			return "", fmt.Errorf("encode job %s: %w", job.JobID, err)
		}
	}

	log.Debug().Str("path", path).Int("count", len(jobs)).Msg("Archived jobs to local file")
	return path, nil
}

func (a *LocalFileArchiver) HealthCheck(_ context.Context) error {
	if err := os.MkdirAll(a.basePath, 0o755); err != nil {
		return fmt.Errorf("archive path not writable: %w", err)
	}
	probe := filepath.Join(a.basePath, ".healthcheck")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("archive path not writable: %w", err)
	}
	return os.Remove(probe)
}
