// Package batch expands identifier lists and drives the per-identifier
// download pipeline: validate, resolve, fetch, normalize, write.
//
// Processing is strictly sequential in input order. Each identifier
// either succeeds, is skipped (when the job continues on error), or
// aborts the whole run; nothing later in the list starts before the
// current identifier finishes.
package batch

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/neuro220/AddonGrab/internal/identifier"
)

// Downloader produces the final archive bytes for one identifier.
// *resolve.Chrome and *resolve.Firefox implement it.
type Downloader interface {
	Download(ctx context.Context, id, version string) ([]byte, error)
}

// Job describes one batch run.
type Job struct {
	// IDs are the raw identifier strings, processed in order.
	IDs []string
	// Platform selects the vendor pipeline for every identifier.
	Platform identifier.Platform
	// Version optionally pins the extension version.
	Version string
	// Output is an explicit output path; only valid with a single
	// identifier. Empty means "{id}.zip" in the current directory.
	Output string
	// Force overwrites existing output files.
	Force bool
	// ContinueOnError records failures as skips instead of aborting.
	ContinueOnError bool
}

// Summary reports what a run accomplished.
type Summary struct {
	Downloaded int
	Skipped    int
}

// ExpandIDs turns a batch specifier into a list of identifiers. A
// specifier containing a comma is split inline; anything else is read as
// a file path with one identifier per line. Blank entries are dropped.
func ExpandIDs(spec string) ([]string, error) {
	if strings.Contains(spec, ",") {
		return splitNonEmpty(strings.Split(spec, ",")), nil
	}

	data, err := os.ReadFile(spec)
	if err != nil {
		return nil, errors.Wrapf(err, "read batch file %s", spec)
	}
	return splitNonEmpty(strings.Split(string(data), "\n")), nil
}

func splitNonEmpty(parts []string) []string {
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			ids = append(ids, trimmed)
		}
	}
	return ids
}

// Run executes the pipeline for every identifier in the job. It returns
// a summary of downloads and skips; a non-nil error means the run
// aborted and nothing after the offending identifier was attempted.
func Run(ctx context.Context, job Job, dl Downloader) (Summary, error) {
	var sum Summary

	if job.Output != "" && len(job.IDs) != 1 {
		return sum, errors.New("explicit output path requires exactly one extension ID")
	}

	for i, id := range job.IDs {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		log := logrus.WithField("id", id)
		log.Infof("processing %d/%d", i+1, len(job.IDs))

		if !identifier.Valid(id, job.Platform) {
			err := errors.Errorf("invalid %s extension ID %q: %s",
				job.Platform, id, identifier.Requirement(job.Platform))
			if !job.ContinueOnError {
				return sum, err
			}
			log.WithError(err).Warn("skipping")
			sum.Skipped++
			continue
		}

		outPath := job.Output
		if outPath == "" {
			outPath = id + ".zip"
		}
		if !job.Force && pathExists(outPath) {
			err := errors.Errorf("output file %s already exists (use --force to overwrite)", outPath)
			if !job.ContinueOnError {
				return sum, err
			}
			log.WithError(err).Warn("skipping")
			sum.Skipped++
			continue
		}

		if err := downloadOne(ctx, dl, id, job.Version, outPath); err != nil {
			err = errors.Wrapf(err, "%s", id)
			if !job.ContinueOnError {
				return sum, err
			}
			log.WithError(err).Warn("skipping")
			sum.Skipped++
			continue
		}

		if abs, err := filepath.Abs(outPath); err == nil {
			outPath = abs
		}
		log.Infof("saved %s", outPath)
		sum.Downloaded++
	}

	return sum, nil
}

// downloadOne runs the network-and-write portion of the pipeline for a
// single identifier.
func downloadOne(ctx context.Context, dl Downloader, id, version, outPath string) error {
	data, err := dl.Download(ctx, id, version)
	if err != nil {
		return err
	}
	return writeFile(outPath, data)
}

// writeFile writes data through a temporary file and renames it into
// place, so an interrupted run never leaves a partial archive behind.
func writeFile(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return errors.Wrap(err, "write temp file")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "rename temp file")
	}
	return nil
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
