// Package resolve turns extension identifiers into downloadable archives.
//
// It knows the two vendor distribution surfaces: the Chrome CRX update
// endpoint (plus the public version feed used to pick a plausible
// prodversion parameter) and the Firefox addon metadata API (which hands
// back direct XPI file URLs).
package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/neuro220/AddonGrab/internal/crx"
	"github.com/neuro220/AddonGrab/internal/fetch"
)

const (
	// DefaultChromeVersion is used when the version feed is unreachable
	// or the caller supplies no override. The endpoint treats the
	// version as advisory, so a stale value still works.
	DefaultChromeVersion = "119.0.6045.0"

	chromeVersionFeedURL = "https://omahaproxy.appspot.com/all.json"

	crxEndpoint = "https://clients2.google.com/service/update2/crx"

	// chromeUserAgent mimics a real desktop Chrome so the endpoint
	// serves the package the same way it would to a browser.
	chromeUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36"
)

// chromeFeedEntry is one platform/channel entry in the version feed.
type chromeFeedEntry struct {
	OS       string `json:"os"`
	Channel  string `json:"channel"`
	Versions []struct {
		Version string `json:"version"`
	} `json:"versions"`
}

// Chrome resolves and downloads Chrome extensions.
type Chrome struct {
	client  *fetch.Client
	feedURL string
	crxURL  string

	// Progress, when non-nil, observes package download progress.
	Progress fetch.Progress
}

// NewChrome creates a Chrome resolver backed by the given HTTP client.
func NewChrome(client *fetch.Client) *Chrome {
	return &Chrome{
		client:  client,
		feedURL: chromeVersionFeedURL,
		crxURL:  crxEndpoint,
	}
}

// LatestVersion returns the newest stable win64 Chrome version from the
// public feed. Version resolution is best-effort: any failure (network,
// parse, missing entry) falls back to DefaultChromeVersion, since the
// download endpoint only uses the version as an advisory parameter.
func (c *Chrome) LatestVersion(ctx context.Context) string {
	body, err := c.client.Fetch(ctx, c.feedURL, fetch.Options{
		Headers: map[string]string{"User-Agent": chromeUserAgent},
	})
	if err != nil {
		logrus.WithError(err).Debug("chrome version feed unavailable, using default")
		return DefaultChromeVersion
	}

	var entries []chromeFeedEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		logrus.WithError(err).Debug("chrome version feed unparseable, using default")
		return DefaultChromeVersion
	}

	for _, entry := range entries {
		if entry.OS == "win64" && entry.Channel == "stable" && len(entry.Versions) > 0 {
			return entry.Versions[0].Version
		}
	}

	logrus.Debug("chrome version feed has no stable win64 entry, using default")
	return DefaultChromeVersion
}

// DownloadURL builds the CRX endpoint URL for an extension ID, spoofing
// the given Chrome version as prodversion.
func (c *Chrome) DownloadURL(id, version string) string {
	q := url.Values{}
	q.Set("response", "redirect")
	q.Set("prodversion", version)
	q.Set("acceptformat", "crx2,crx3")
	q.Set("x", fmt.Sprintf("id=%s&installsource=ondemand&uc", id))
	return c.crxURL + "?" + q.Encode()
}

// Download fetches the CRX package for id and strips its signing header,
// returning a plain zip archive. An empty version means "resolve the
// latest from the feed".
func (c *Chrome) Download(ctx context.Context, id, version string) ([]byte, error) {
	if version == "" {
		version = c.LatestVersion(ctx)
	}

	logrus.WithFields(logrus.Fields{
		"id":      id,
		"version": version,
	}).Info("downloading CRX package")

	raw, err := c.client.Fetch(ctx, c.DownloadURL(id, version), fetch.Options{
		Headers:  map[string]string{"User-Agent": chromeUserAgent},
		Progress: c.Progress,
	})
	if errors.Is(err, fetch.ErrNotFound) {
		return nil, errors.New("extension not found or invalid ID")
	}
	if err != nil {
		return nil, err
	}

	archive, err := crx.ToZip(raw)
	if err != nil {
		return nil, errors.Wrap(err, "convert CRX to zip")
	}
	return archive, nil
}
