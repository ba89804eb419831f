package link

import (
	"errors"
	"testing"
)

type fakeCodec struct {
	scheme  string
	aliases []string
}

func (c *fakeCodec) Scheme() string          { return c.scheme }
func (c *fakeCodec) Aliases() []string       { return c.aliases }
func (c *fakeCodec) Parse(string) (*Fields, error) {
	return &Fields{Scheme: c.scheme}, nil
}
func (c *fakeCodec) Encode(*Fields) string { return c.scheme + "://encoded" }

func TestRegistryLookup(t *testing.T) {
	reg := NewRegistry(
		&fakeCodec{scheme: "vless"},
		&fakeCodec{scheme: "hysteria2", aliases: []string{"hy2"}},
	)
	tests := []struct {
		name       string
		line       string
		wantScheme string
		wantFound  bool
	}{
		{"direct scheme", "vless://uuid@host:443", "vless", true},
		{"alias resolves to canonical codec", "hy2://pw@host:443", "hysteria2", true},
		{"canonical of aliased codec", "hysteria2://pw@host:443", "hysteria2", true},
		{"scheme is case-insensitive", "VLESS://uuid@host:443", "vless", true},
		{"unknown scheme", "socks5://host:1080", "", false},
		{"no scheme separator", "just a comment line", "", false},
		{"separator at start", "://host", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codec, ok := reg.Lookup(tt.line)
			if ok != tt.wantFound {
				t.Fatalf("Lookup(%q) found = %v, want %v", tt.line, ok, tt.wantFound)
			}
			if ok && codec.Scheme() != tt.wantScheme {
				t.Errorf("Lookup(%q) scheme = %q, want %q", tt.line, codec.Scheme(), tt.wantScheme)
			}
		})
	}
}

func TestParseError(t *testing.T) {
	cause := errors.New("boom")
	err := &ParseError{Scheme: "vmess", Reason: "invalid JSON format", Cause: cause}
	if got := err.Error(); got != "vmess: invalid JSON format: boom" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is() = false, want unwrap to cause")
	}

	plain := &ParseError{Scheme: "ss", Reason: "line too long"}
	if got := plain.Error(); got != "ss: line too long" {
		t.Errorf("Error() = %q", got)
	}
}

func TestSetExtra(t *testing.T) {
	var f Fields
	f.SetExtra("k", "v")
	if f.Extra["k"] != "v" {
		t.Errorf("Extra = %v", f.Extra)
	}
}
