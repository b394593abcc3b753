package resolve

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/neuro220/AddonGrab/internal/fetch"
)

const (
	defaultAMOBaseURL = "https://addons.mozilla.org/api/v5/addons"

	// firefoxUserAgent mimics a real desktop Firefox for both the
	// metadata API and the XPI file hosts it points at.
	firefoxUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/115.0"
)

// ErrVersionNotFound indicates the requested addon version does not
// appear in the versions listing.
var ErrVersionNotFound = errors.New("version not found")

// addonFile is the downloadable file attached to an addon version.
type addonFile struct {
	URL string `json:"url"`
}

// addonVersion is a single version entry from the addon API.
type addonVersion struct {
	Version string     `json:"version"`
	File    *addonFile `json:"file"`
}

// addonDetail is the relevant slice of the addon lookup response.
type addonDetail struct {
	CurrentVersion *addonVersion `json:"current_version"`
}

// addonVersions is the versions listing response.
type addonVersions struct {
	Results []addonVersion `json:"results"`
}

// Firefox resolves and downloads Firefox addons through the AMO API.
type Firefox struct {
	client  *fetch.Client
	baseURL string

	// Progress, when non-nil, observes XPI download progress.
	Progress fetch.Progress
}

// NewFirefox creates a Firefox resolver backed by the given HTTP client.
func NewFirefox(client *fetch.Client) *Firefox {
	return &Firefox{
		client:  client,
		baseURL: defaultAMOBaseURL,
	}
}

// apiOptions are the fetch options for AMO metadata requests. The API
// rate-limits aggressively, so 429 responses are retried after a flat
// delay.
func (f *Firefox) apiOptions() fetch.Options {
	return fetch.Options{
		Headers: map[string]string{
			"User-Agent": firefoxUserAgent,
			"Accept":     "application/json",
		},
		RetryOn429: true,
	}
}

// DownloadURL resolves an addon ID (and optional version) to a direct
// XPI file URL.
//
// With an empty version the addon lookup endpoint supplies the current
// release; a response missing the current version, its file, or the file
// URL is a hard failure rather than a fallback, since it signals an
// incompatible API. With a specific version the versions listing is
// scanned for an exact match.
func (f *Firefox) DownloadURL(ctx context.Context, id, version string) (string, error) {
	if version != "" {
		return f.versionDownloadURL(ctx, id, version)
	}

	body, err := f.client.Fetch(ctx, f.baseURL+"/addon/"+id+"/", f.apiOptions())
	if errors.Is(err, fetch.ErrNotFound) {
		return "", errors.New("addon not found or invalid ID")
	}
	if err != nil {
		return "", errors.Wrap(err, "fetch addon info")
	}

	var detail addonDetail
	if err := json.Unmarshal(body, &detail); err != nil {
		return "", errors.Wrap(err, "parse addon info")
	}

	switch {
	case detail.CurrentVersion == nil:
		return "", errors.New("no current version found for addon")
	case detail.CurrentVersion.File == nil:
		return "", errors.New("no file found for addon")
	case detail.CurrentVersion.File.URL == "":
		return "", errors.New("no download URL found for addon")
	}
	return detail.CurrentVersion.File.URL, nil
}

// versionDownloadURL scans the versions listing for an exact version
// match and returns its file URL.
func (f *Firefox) versionDownloadURL(ctx context.Context, id, version string) (string, error) {
	listing, err := f.versions(ctx, id)
	if err != nil {
		return "", err
	}

	for _, v := range listing.Results {
		if v.Version != version {
			continue
		}
		if v.File == nil || v.File.URL == "" {
			continue
		}
		return v.File.URL, nil
	}
	return "", errors.Wrapf(ErrVersionNotFound, "version %s", version)
}

// ListVersions returns the version strings the addon API lists for id,
// in API order (newest first).
func (f *Firefox) ListVersions(ctx context.Context, id string) ([]string, error) {
	listing, err := f.versions(ctx, id)
	if err != nil {
		return nil, err
	}

	versions := make([]string, 0, len(listing.Results))
	for _, v := range listing.Results {
		if v.Version != "" {
			versions = append(versions, v.Version)
		}
	}
	return versions, nil
}

// versions fetches and parses the versions listing for an addon.
func (f *Firefox) versions(ctx context.Context, id string) (*addonVersions, error) {
	body, err := f.client.Fetch(ctx, f.baseURL+"/addon/"+id+"/versions/", f.apiOptions())
	if errors.Is(err, fetch.ErrNotFound) {
		return nil, errors.New("addon not found or invalid ID")
	}
	if err != nil {
		return nil, errors.Wrap(err, "fetch addon versions")
	}

	var listing addonVersions
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, errors.Wrap(err, "parse addon versions")
	}
	return &listing, nil
}

// Download resolves id (and optional version) to a file URL and fetches
// the XPI. Firefox packages are already plain archives, so the bytes are
// returned verbatim.
func (f *Firefox) Download(ctx context.Context, id, version string) ([]byte, error) {
	logrus.WithFields(logrus.Fields{
		"id":      id,
		"version": orLatest(version),
	}).Info("resolving addon download URL")

	fileURL, err := f.DownloadURL(ctx, id, version)
	if err != nil {
		return nil, err
	}

	logrus.WithField("url", fileURL).Info("downloading XPI package")

	return f.client.Fetch(ctx, fileURL, fetch.Options{
		Headers:  map[string]string{"User-Agent": firefoxUserAgent},
		Progress: f.Progress,
	})
}

func orLatest(version string) string {
	if version == "" {
		return "latest"
	}
	return version
}
