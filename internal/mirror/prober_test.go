package mirror

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func probeTarget(concurrency int) *TargetConfig {
	return &TargetConfig{
		MirrorList:       "unused",
		PathToTest:       "state",
		CommentPrefix:    "# ",
		FetchTimeoutMs:   2000,
		ProbeTimeoutMs:   2000,
		ProbeConcurrency: concurrency,
	}
}

// mkMirror builds a mirror whose test URL lives under base.
func mkMirror(t *testing.T, base string) Mirror {
	t.Helper()
	u, err := url.Parse(base)
	if err != nil {
		t.Fatal("bad test URL:", err)
	}
	testURL, err := u.Parse("state")
	if err != nil {
		t.Fatal(err)
	}
	return Mirror{URL: u, TestURL: testURL}
}

func TestParseUpdateNumber(t *testing.T) {
	t.Parallel()

	// Only the first line matters; everything after it is ignored.
	for input, want := range map[string]uint64{
		"42":         42,
		"42\n":       42,
		"7\r\n":      7,
		"123\n456\n": 123,
		"0\ngarbage": 0,
	} {
		n, err := parseUpdateNumber(input)
		if err != nil {
			t.Errorf("parseUpdateNumber(%q) failed: %v", input, err)
		} else if n != want {
			t.Errorf("parseUpdateNumber(%q) = %d, expected %d", input, n, want)
		}
	}

	if _, err := parseUpdateNumber(""); err == nil {
		t.Error("empty body should fail")
	} else if !strings.Contains(err.Error(), "empty") {
		t.Errorf("empty body should yield errEmptyState, got %v", err)
	}

	for _, input := range []string{"\n42", "12a", "-1", " 7", "v3"} {
		if _, err := parseUpdateNumber(input); err == nil {
			t.Errorf("parseUpdateNumber(%q) should fail", input)
		}
	}
}

func TestVersionMirrorsOutcomes(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/fresh/"):
			fmt.Fprint(w, "42\nextra metadata\n")
		case strings.HasPrefix(r.URL.Path, "/stale/"):
			fmt.Fprint(w, "40\n")
		case strings.HasPrefix(r.URL.Path, "/empty/"):
			// 200 with a zero-length body
		case strings.HasPrefix(r.URL.Path, "/garbage/"):
			fmt.Fprint(w, "not-a-number\n")
		case strings.HasPrefix(r.URL.Path, "/truncated/"):
			// Announce more bytes than are sent so the client's body
			// read fails with an unexpected EOF.
			w.Header().Set("Content-Length", "100")
			w.(http.Flusher).Flush()
			fmt.Fprint(w, "42")
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	// A listener that is already closed yields a connect failure.
	deadListener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	deadAddr := deadListener.Addr().String()
	deadListener.Close()

	mirrors := []Mirror{
		mkMirror(t, server.URL+"/fresh/"),
		mkMirror(t, server.URL+"/stale/"),
		mkMirror(t, server.URL+"/empty/"),
		mkMirror(t, server.URL+"/garbage/"),
		mkMirror(t, server.URL+"/truncated/"),
		mkMirror(t, "http://"+deadAddr+"/dead/"),
	}

	progress := make(chan string, len(mirrors))
	prober := NewProber(probeTarget(3))
	versioned := prober.VersionMirrors(context.Background(), mirrors, progress)
	close(progress)

	if len(versioned) != len(mirrors) {
		t.Fatalf("expected %d results, got %d", len(mirrors), len(versioned))
	}

	// Exactly one event per mirror, classed by outcome.
	var events []string
	for msg := range progress {
		events = append(events, msg)
	}
	if len(events) != len(mirrors) {
		t.Fatalf("expected %d progress events, got %d", len(mirrors), len(events))
	}

	eventFor := func(pathPart string) string {
		for _, msg := range events {
			if strings.Contains(msg, pathPart) {
				return msg
			}
		}
		t.Fatalf("no event mentions %s", pathPart)
		return ""
	}
	if msg := eventFor("/fresh/"); !strings.HasPrefix(msg, "FETCHED MIRROR VERSION 42: ") {
		t.Errorf("unexpected success event: %q", msg)
	}
	if msg := eventFor("/empty/"); !strings.HasPrefix(msg, "EMPTY MIRROR STATE: ") {
		t.Errorf("unexpected empty-state event: %q", msg)
	}
	if msg := eventFor("/garbage/"); !strings.HasPrefix(msg, "FAILED TO READ MIRROR UPDATE NUMBER: ") {
		t.Errorf("unexpected parse-failure event: %q", msg)
	}
	if msg := eventFor("/truncated/"); !strings.HasPrefix(msg, "FAILED TO READ STATE: ") {
		t.Errorf("unexpected read-failure event: %q", msg)
	}
	if msg := eventFor("/dead/"); !strings.HasPrefix(msg, "FAILED TO CONNECT: ") {
		t.Errorf("unexpected connect-failure event: %q", msg)
	}

	versionFor := func(pathPart string) *uint64 {
		for _, vm := range versioned {
			if strings.Contains(vm.Mirror.URL.String(), pathPart) {
				return vm.UpdateNumber
			}
		}
		t.Fatalf("no result for %s", pathPart)
		return nil
	}
	if v := versionFor("/fresh/"); v == nil || *v != 42 {
		t.Errorf("fresh mirror should record version 42, got %v", v)
	}
	if v := versionFor("/stale/"); v == nil || *v != 40 {
		t.Errorf("stale mirror should record version 40, got %v", v)
	}
	for _, pathPart := range []string{"/empty/", "/garbage/", "/truncated/", "/dead/"} {
		if v := versionFor(pathPart); v != nil {
			t.Errorf("failed probe %s should record no version, got %d", pathPart, *v)
		}
	}
}

func TestVersionMirrorsConcurrencyLimit(t *testing.T) {
	t.Parallel()

	const limit = 3
	const total = 20

	var inFlight, maxInFlight int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := atomic.AddInt64(&inFlight, 1)
		defer atomic.AddInt64(&inFlight, -1)
		for {
			seen := atomic.LoadInt64(&maxInFlight)
			if n <= seen || atomic.CompareAndSwapInt64(&maxInFlight, seen, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		fmt.Fprint(w, "1\n")
	}))
	defer server.Close()

	mirrors := make([]Mirror, 0, total)
	for i := 0; i < total; i++ {
		mirrors = append(mirrors, mkMirror(t, server.URL+"/m"+strconv.Itoa(i)+"/"))
	}

	progress := make(chan string, len(mirrors))
	prober := NewProber(probeTarget(limit))
	versioned := prober.VersionMirrors(context.Background(), mirrors, progress)

	if len(versioned) != total {
		t.Fatalf("expected %d results, got %d", total, len(versioned))
	}
	if peak := atomic.LoadInt64(&maxInFlight); peak > limit {
		t.Errorf("observed %d concurrent probes, limit is %d", peak, limit)
	}
}
