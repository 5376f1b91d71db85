package mirror

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
	"log/slog"
)

// errEmptyState marks a state document with no first line to parse.
var errEmptyState = errors.New("empty mirror state")

// parseUpdateNumber extracts the update number from a state document
// body: the first line must be a decimal non-negative integer. Nothing
// past the first line is read.
func parseUpdateNumber(body string) (uint64, error) {
	if body == "" {
		return 0, errEmptyState
	}
	line, _, _ := strings.Cut(body, "\n")
	line = strings.TrimSuffix(line, "\r")
	n, err := strconv.ParseUint(line, 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, "parse update number")
	}
	return n, nil
}

// Prober discovers the content version served by each mirror.
//
// A token-channel semaphore caps the number of in-flight requests: a
// probe acquires a token before issuing its request and returns it
// when the request completes, so no more than ProbeConcurrency probes
// are ever outstanding regardless of the mirror-set size.
type Prober struct {
	client    *http.Client
	tc        *TargetConfig
	semaphore chan struct{}
}

// NewProber creates a prober for the given target.
func NewProber(tc *TargetConfig) *Prober {
	semaphore := make(chan struct{}, tc.ProbeConcurrency)

	// Pre-fill the semaphore with tokens
	for i := 0; i < tc.ProbeConcurrency; i++ {
		semaphore <- struct{}{}
	}

	return &Prober{
		client:    newHTTPClient(),
		tc:        tc,
		semaphore: semaphore,
	}
}

// VersionMirrors probes every mirror and returns one VersionedMirror
// per input, ordered by probe completion. Exactly one progress event
// is sent per mirror, as its probe completes; progress must have
// capacity for len(mirrors) events so a slow consumer cannot stall
// probing. Probe failures are reported only through the events - every
// mirror is retained in the result with a nil update number.
func (p *Prober) VersionMirrors(ctx context.Context, mirrors []Mirror, progress chan<- string) []VersionedMirror {
	results := make(chan VersionedMirror, len(mirrors))

	group, ctx := errgroup.WithContext(ctx)
	for _, m := range mirrors {
		m := m // capture loop variable
		group.Go(func() error {
			results <- p.probe(ctx, m, progress)
			return nil
		})
	}
	_ = group.Wait() // probes never return errors
	close(results)

	versioned := make([]VersionedMirror, 0, len(mirrors))
	for vm := range results {
		versioned = append(versioned, vm)
	}
	return versioned
}

// probe fetches one mirror's state document and reports the outcome.
func (p *Prober) probe(ctx context.Context, m Mirror, progress chan<- string) VersionedMirror {
	select {
	case <-p.semaphore:
	case <-ctx.Done():
		progress <- "FAILED TO CONNECT: " + m.URL.String()
		return VersionedMirror{Mirror: m}
	}
	defer func() { p.semaphore <- struct{}{} }()

	body, err := p.fetchState(ctx, m)
	if err != nil {
		if errors.Is(err, errReadState) {
			progress <- "FAILED TO READ STATE: " + m.URL.String()
		} else {
			progress <- "FAILED TO CONNECT: " + m.URL.String()
		}
		slog.Debug("probe failed", "mirror", m.URL.String(), "error", err)
		return VersionedMirror{Mirror: m}
	}

	number, err := parseUpdateNumber(body)
	switch {
	case errors.Is(err, errEmptyState):
		progress <- "EMPTY MIRROR STATE: " + m.URL.String()
		return VersionedMirror{Mirror: m}
	case err != nil:
		progress <- "FAILED TO READ MIRROR UPDATE NUMBER: " + m.URL.String()
		return VersionedMirror{Mirror: m}
	}

	progress <- fmt.Sprintf("FETCHED MIRROR VERSION %d: %s", number, m.URL.String())
	return VersionedMirror{Mirror: m, UpdateNumber: &number}
}

// errReadState distinguishes a body-read failure from a connect failure.
var errReadState = errors.New("failed to read state")

// fetchState issues the GET against the mirror's test URL within the
// per-probe timeout.
func (p *Prober) fetchState(ctx context.Context, m Mirror) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.tc.ProbeTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.TestURL.String(), nil)
	if err != nil {
		return "", errors.Wrap(err, "probe "+m.URL.String())
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "probe "+m.URL.String())
	}
	defer closeRespBody(resp)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Mark(errors.Wrap(err, "probe "+m.URL.String()), errReadState)
	}
	return string(body), nil
}
