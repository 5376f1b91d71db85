package mirror

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/mirrorrank/mirrorrank/internal/countries"
)

// FetchMirrorList retrieves the target's mirror-list document and
// parses it into mirrors eligible under the protocol policy.
func FetchMirrorList(ctx context.Context, config *Config, tc *TargetConfig) ([]Mirror, error) {
	doc, err := fetchDocument(ctx, tc)
	if err != nil {
		return nil, err
	}
	return ParseMirrorList(doc, config, tc)
}

// ParseMirrorList turns a mirror-list document into an ordered list of
// mirrors. Lines of the form "## <country>" set the country tag for
// subsequent entries; other "#" lines are comments. Mirror lines carry
// a "Server = <url>$repo/$arch" pacman entry. Malformed entries and
// entries with a disallowed protocol are dropped silently; only a
// failure to join path_to_test aborts, since that indicates broken
// target configuration rather than bad list data.
func ParseMirrorList(doc string, config *Config, tc *TargetConfig) ([]Mirror, error) {
	currentCountry := countries.Unknown
	var mirrors []Mirror
	var dropped int

	for _, line := range strings.Split(doc, "\n") {
		line = strings.TrimSuffix(line, "\r")

		if strings.HasPrefix(line, "## ") {
			currentCountry = countries.FromString(strings.TrimPrefix(line, "## "))
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}

		line = strings.ReplaceAll(line, "Server = ", "")
		line = strings.ReplaceAll(line, "$repo/$arch", "")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		base, err := url.Parse(line)
		if err != nil || !base.IsAbs() || base.Host == "" {
			dropped++
			continue
		}
		protocol, err := ParseProtocol(base.Scheme)
		if err != nil {
			dropped++
			continue
		}
		if !config.ProtocolAllowed(protocol) {
			dropped++
			continue
		}

		testURL, err := base.Parse(tc.PathToTest)
		if err != nil {
			return nil, errors.Wrap(err, "failed to join path_to_test")
		}

		mirrors = append(mirrors, Mirror{
			Country: currentCountry,
			URL:     base,
			TestURL: testURL,
		})
	}

	slog.Debug("mirror list parsed", "mirrors", len(mirrors), "dropped", dropped)
	return mirrors, nil
}
