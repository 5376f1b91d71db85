package mirror

import (
	"net/url"

	"github.com/cockroachdb/errors"

	"github.com/mirrorrank/mirrorrank/internal/countries"
)

// Protocol is a URL scheme a mirror may be reached over.
type Protocol string

const (
	ProtocolHTTP  Protocol = "http"
	ProtocolHTTPS Protocol = "https"
	ProtocolFTP   Protocol = "ftp"
	ProtocolRsync Protocol = "rsync"
)

// ParseProtocol maps a URL scheme to a known Protocol.
func ParseProtocol(scheme string) (Protocol, error) {
	switch scheme {
	case "http":
		return ProtocolHTTP, nil
	case "https":
		return ProtocolHTTPS, nil
	case "ftp":
		return ProtocolFTP, nil
	case "rsync":
		return ProtocolRsync, nil
	}
	return "", errors.New("unknown protocol: " + scheme)
}

// Mirror is one entry of a mirror-list document. Immutable once built
// by the parser.
type Mirror struct {
	Country countries.Country
	URL     *url.URL // base address of the package tree
	TestURL *url.URL // base joined with the target's path_to_test
}

// VersionedMirror pairs a mirror with the update number its state
// endpoint reported. UpdateNumber is nil when the probe failed at any
// stage; such mirrors are never selected.
type VersionedMirror struct {
	Mirror       Mirror
	UpdateNumber *uint64
}
