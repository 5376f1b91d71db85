package mirror

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ProtonMail/gopenpgp/v3/crypto"
	"github.com/cockroachdb/errors"
	"github.com/ulikunitz/xz"
	"log/slog"
)

// userAgent is sent with every outbound request.
const userAgent = "mirrorrank/1.0"

// newHTTPClient creates an HTTP client with pooled transport settings.
// Timeouts are controlled per request via context.
func newHTTPClient() *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.MaxIdleConns = 100
	tr.MaxIdleConnsPerHost = 10
	tr.IdleConnTimeout = 90 * time.Second

	return &http.Client{
		Transport: tr,
		Timeout:   0, // no timeout; timeout is controlled by context
	}
}

// isRemote reports whether source is a fetchable http(s) URL rather
// than a local path.
func isRemote(source string) bool {
	u, err := url.Parse(source)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}

// httpGet fetches source within timeout and returns the body bytes.
func httpGet(ctx context.Context, client *http.Client, source string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, errors.Wrap(err, "httpGet")
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch "+source)
	}
	defer closeRespBody(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("fetch %s: status %d", source, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read "+source)
	}
	return body, nil
}

// verifyDetached checks a detached PGP signature over data using the
// armored public key at keyPath.
func verifyDetached(data, sig []byte, keyPath string) error {
	keyBytes, err := os.ReadFile(keyPath) // #nosec G304 - path validated by TargetConfig.Check
	if err != nil {
		return errors.Wrap(err, "failed to read PGP key")
	}
	publicKey, err := crypto.NewKeyFromArmored(string(keyBytes))
	if err != nil {
		return errors.Wrapf(err, "failed to parse PGP key from: %s", keyPath)
	}

	verifier, err := crypto.PGP().Verify().VerificationKey(publicKey).New()
	if err != nil {
		return errors.Wrap(err, "failed to create verifier")
	}

	var encoding int8 = crypto.Bytes
	if bytes.HasPrefix(bytes.TrimSpace(sig), []byte("-----BEGIN")) {
		encoding = crypto.Armor
	}
	verifyResult, err := verifier.VerifyDetached(data, sig, encoding)
	if err != nil {
		return errors.Wrap(err, "PGP signature verification failed for mirror list")
	}
	if sigErr := verifyResult.SignatureError(); sigErr != nil {
		return errors.Wrap(sigErr, "PGP signature verification failed for mirror list")
	}

	slog.Info("PGP signature for mirror list is valid", "key_id", publicKey.GetHexKeyID())
	return nil
}

// fetchDocument retrieves the mirror-list document named by the target
// configuration. The source may be a remote http(s) URL or a local
// path; sources ending in ".xz" are decompressed transparently. When
// pgp_key_path is set, a detached signature at "<source>.sig" must
// verify against the raw (still compressed) document.
func fetchDocument(ctx context.Context, tc *TargetConfig) (string, error) {
	var raw, sig []byte
	var err error

	if isRemote(tc.MirrorList) {
		client := newHTTPClient()
		raw, err = httpGet(ctx, client, tc.MirrorList, tc.FetchTimeout())
		if err != nil {
			return "", err
		}
		if tc.PGPKeyPath != "" {
			sig, err = httpGet(ctx, client, tc.MirrorList+".sig", tc.FetchTimeout())
			if err != nil {
				return "", err
			}
		}
	} else {
		raw, err = os.ReadFile(tc.MirrorList) // #nosec G304 - operator-supplied config value
		if err != nil {
			return "", errors.Wrap(err, "failed to read mirror list")
		}
		if tc.PGPKeyPath != "" {
			sig, err = os.ReadFile(tc.MirrorList + ".sig") // #nosec G304
			if err != nil {
				return "", errors.Wrap(err, "failed to read mirror list signature")
			}
		}
	}

	if tc.PGPKeyPath != "" {
		if err := verifyDetached(raw, sig, tc.PGPKeyPath); err != nil {
			return "", err
		}
	}

	if strings.HasSuffix(tc.MirrorList, ".xz") {
		r, err := xz.NewReader(bytes.NewReader(raw))
		if err != nil {
			return "", errors.Wrap(err, "failed to open xz mirror list")
		}
		raw, err = io.ReadAll(r)
		if err != nil {
			return "", errors.Wrap(err, "failed to decompress mirror list")
		}
	}

	if !utf8.Valid(raw) {
		return "", errors.New("mirror list is not valid UTF-8")
	}
	return string(raw), nil
}

// closeRespBody closes HTTP response body.
func closeRespBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", "error", err)
	}
}
