package mirror

import (
	"net/url"
	"testing"

	"github.com/BurntSushi/toml"
)

const sampleConfig = `
[log]
level = "debug"
format = "text"

allowed_protocols = ["https"]

[targets.endeavouros]
mirror_list = "https://example.com/endeavouros-mirrorlist"
probe_concurrency = 4
`

func TestConfigDecode(t *testing.T) {
	t.Parallel()

	config := NewConfig()
	meta, err := toml.Decode(sampleConfig, config)
	if err != nil {
		t.Fatal("decode failed:", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		t.Errorf("unexpected undecoded keys: %v", undecoded)
	}
	if err := config.Check(); err != nil {
		t.Fatal("check failed:", err)
	}

	tc := config.Targets["endeavouros"]
	if tc == nil {
		t.Fatal("endeavouros target missing")
	}
	if tc.ProbeConcurrency != 4 {
		t.Errorf("probe_concurrency = %d, expected 4", tc.ProbeConcurrency)
	}

	// Absent keys receive defaults during Check.
	if tc.PathToTest != "state" {
		t.Errorf("default path_to_test = %q", tc.PathToTest)
	}
	if tc.CommentPrefix != "# " {
		t.Errorf("default comment_prefix = %q", tc.CommentPrefix)
	}
	if tc.FetchTimeoutMs != 15000 || tc.ProbeTimeoutMs != 8000 {
		t.Errorf("default timeouts = %d/%d", tc.FetchTimeoutMs, tc.ProbeTimeoutMs)
	}
}

func TestConfigCheckRejectsInvalid(t *testing.T) {
	t.Parallel()

	// No targets at all.
	config := NewConfig()
	if err := config.Check(); err == nil {
		t.Error("empty config should not validate")
	}

	// Missing mirror_list.
	config = NewConfig()
	config.Targets = map[string]*TargetConfig{"x": {}}
	if err := config.Check(); err == nil {
		t.Error("target without mirror_list should not validate")
	}

	// Negative concurrency.
	config = NewConfig()
	config.Targets = map[string]*TargetConfig{
		"x": {MirrorList: "https://example.com/list", ProbeConcurrency: -1},
	}
	if err := config.Check(); err == nil {
		t.Error("negative probe_concurrency should not validate")
	}

	// Unknown protocol in the allow-list.
	config = NewConfig()
	config.AllowedProtocols = []string{"gopher"}
	config.Targets = map[string]*TargetConfig{
		"x": {MirrorList: "https://example.com/list"},
	}
	if err := config.Check(); err == nil {
		t.Error("unknown protocol should not validate")
	}

	// Relative pgp_key_path.
	config = NewConfig()
	config.Targets = map[string]*TargetConfig{
		"x": {MirrorList: "https://example.com/list", PGPKeyPath: "relative/key.asc"},
	}
	if err := config.Check(); err == nil {
		t.Error("relative pgp_key_path should not validate")
	}
}

func TestProtocolAllowed(t *testing.T) {
	t.Parallel()

	config := NewConfig() // defaults to https, http
	if !config.ProtocolAllowed(ProtocolHTTPS) || !config.ProtocolAllowed(ProtocolHTTP) {
		t.Error("default policy should allow https and http")
	}
	if config.ProtocolAllowed(ProtocolRsync) || config.ProtocolAllowed(ProtocolFTP) {
		t.Error("default policy should reject rsync and ftp")
	}
}

func TestParseProtocol(t *testing.T) {
	t.Parallel()

	for scheme, want := range map[string]Protocol{
		"http":  ProtocolHTTP,
		"https": ProtocolHTTPS,
		"ftp":   ProtocolFTP,
		"rsync": ProtocolRsync,
	} {
		p, err := ParseProtocol(scheme)
		if err != nil {
			t.Errorf("ParseProtocol(%q) failed: %v", scheme, err)
		} else if p != want {
			t.Errorf("ParseProtocol(%q) = %v", scheme, p)
		}
	}

	if _, err := ParseProtocol("gopher"); err == nil {
		t.Error("unknown scheme should fail")
	}
}

func TestTargetFormatting(t *testing.T) {
	t.Parallel()

	tc := &TargetConfig{MirrorList: "unused", CommentPrefix: "# "}
	if err := tc.Check(); err != nil {
		t.Fatal(err)
	}

	if got := tc.FormatComment("FETCHED MIRROR VERSION 42: https://a.example/"); got != "# FETCHED MIRROR VERSION 42: https://a.example/" {
		t.Errorf("unexpected comment line: %q", got)
	}

	u, err := url.Parse("https://a.example/repo/")
	if err != nil {
		t.Fatal(err)
	}
	m := Mirror{URL: u, TestURL: u}
	if got := tc.FormatMirrorLine(m); got != "Server = https://a.example/repo/$repo/$arch" {
		t.Errorf("unexpected mirror line: %q", got)
	}
}

func TestLogConfigApply(t *testing.T) {
	if err := (&LogConfig{Level: "info", Format: "text"}).Apply(); err != nil {
		t.Error("valid log config should apply:", err)
	}
	if err := (&LogConfig{Level: "loud"}).Apply(); err == nil {
		t.Error("invalid log level should be rejected")
	}
	if err := (&LogConfig{Format: "xml"}).Apply(); err == nil {
		t.Error("invalid log format should be rejected")
	}
}
