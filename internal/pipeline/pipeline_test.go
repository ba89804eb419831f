package pipeline

import (
	"context"
	"encoding/base64"
	"reflect"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"sub-rewrite/hysteria2"
	"sub-rewrite/internal/geoip"
	"sub-rewrite/internal/link"
	"sub-rewrite/internal/rules"
	"sub-rewrite/internal/utils"
	"sub-rewrite/ss"
	"sub-rewrite/vless"
	"sub-rewrite/vmess"
)

type fakeLocator struct {
	records map[string]geoip.Record
	asked   []string
}

func (l *fakeLocator) ResolveBatch(_ context.Context, hosts []string) map[string]geoip.Record {
	l.asked = append(l.asked, hosts...)
	out := make(map[string]geoip.Record)
	for _, h := range hosts {
		if rec, ok := l.records[h]; ok {
			out[h] = rec
		}
	}
	return out
}

func newTestProcessor(loc Locator) *Processor {
	registry := link.NewRegistry(vmess.NewCodec(nil), vless.NewCodec(nil), ss.NewCodec(), hysteria2.NewCodec())
	return New(registry, loc, zerolog.Nop())
}

const validVLESS = "vless://12345678-1234-1234-1234-123456789abc@example.com:443?security=tls&sni=example.com#old"

func TestProcessPassthrough(t *testing.T) {
	p := newTestProcessor(nil)
	input := strings.Join([]string{
		validVLESS,
		"this line is not a link",
		"socks5://unsupported@host:1080",
		"vless://not-a-uuid@example.com:443", // разбор падает — строка уходит как есть
	}, "\n")

	doc, stats := p.Process(context.Background(), input, rules.Options{RawExport: true})
	lines := strings.Split(doc, "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4:\n%s", len(lines), doc)
	}
	// порядок строк сохраняется, непригодные проходят дословно
	if lines[1] != "this line is not a link" {
		t.Errorf("line 1 = %q", lines[1])
	}
	if lines[2] != "socks5://unsupported@host:1080" {
		t.Errorf("line 2 = %q", lines[2])
	}
	if lines[3] != "vless://not-a-uuid@example.com:443" {
		t.Errorf("line 3 = %q", lines[3])
	}
	if !strings.HasPrefix(lines[0], "vless://12345678-") {
		t.Errorf("line 0 = %q", lines[0])
	}

	if stats.Total != 4 || stats.Rewritten != 1 || stats.Passthrough != 3 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestProcessBase64Document(t *testing.T) {
	p := newTestProcessor(nil)
	input := utils.EncodeBase64(validVLESS + "\n" + "junk line")

	doc, stats := p.Process(context.Background(), input, rules.Options{})
	if stats.Total != 2 {
		t.Fatalf("stats = %+v", stats)
	}
	// выход без RawExport — base64-обёртка
	decoded := utils.DecodeBase64Tolerant(doc)
	if decoded == "" {
		t.Fatalf("output is not base64: %q", doc)
	}
	if !strings.Contains(decoded, "junk line") {
		t.Errorf("decoded output = %q", decoded)
	}
}

func TestProcessRename(t *testing.T) {
	loc := &fakeLocator{records: map[string]geoip.Record{
		"example.com": {Flag: "🇩🇪", Country: "Germany", Code: "DE"},
	}}
	p := newTestProcessor(loc)

	doc, stats := p.Process(context.Background(), validVLESS,
		rules.Options{RawExport: true, AddLocationFlag: true})
	if stats.Rewritten != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if len(loc.asked) != 1 || loc.asked[0] != "example.com" {
		t.Errorf("locator asked = %v", loc.asked)
	}

	codec := vless.NewCodec(nil)
	f, err := codec.Parse(doc)
	if err != nil {
		t.Fatalf("re-Parse(%q) error = %v", doc, err)
	}
	if f.Name != "🇩🇪 Germany Config 1" {
		t.Errorf("Name = %q", f.Name)
	}
}

func TestProcessRenameIndexCountsParsedOnly(t *testing.T) {
	p := newTestProcessor(&fakeLocator{})
	input := strings.Join([]string{
		"junk before",
		validVLESS,
		validVLESS,
	}, "\n")

	doc, _ := p.Process(context.Background(), input, rules.Options{RawExport: true, AddLocationFlag: true})
	lines := strings.Split(doc, "\n")

	codec := vless.NewCodec(nil)
	for i, wantName := range map[int]string{1: "Config 1", 2: "Config 2"} {
		f, err := codec.Parse(lines[i])
		if err != nil {
			t.Fatalf("re-Parse(line %d) error = %v", i, err)
		}
		if f.Name != wantName {
			t.Errorf("line %d Name = %q, want %q", i, f.Name, wantName)
		}
	}
}

func TestProcessRulesApplied(t *testing.T) {
	p := newTestProcessor(nil)
	doc, _ := p.Process(context.Background(), validVLESS, rules.Options{
		RawExport: true,
		EnableMux: true, MuxConcurrency: 4,
		AllowInsecure: true,
	})

	f, err := vless.NewCodec(nil).Parse(doc)
	if err != nil {
		t.Fatalf("re-Parse(%q) error = %v", doc, err)
	}
	if f.MuxConcurrency != 4 {
		t.Errorf("MuxConcurrency = %d", f.MuxConcurrency)
	}
	if !f.AllowInsecure {
		t.Error("AllowInsecure = false")
	}
}

func TestProcessSkipsEmptyLines(t *testing.T) {
	p := newTestProcessor(nil)
	_, stats := p.Process(context.Background(), "\n\n  \n"+validVLESS+"\n\n", rules.Options{RawExport: true})
	if stats.Total != 1 || stats.Rewritten != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestProcessVMessALPN(t *testing.T) {
	p := newTestProcessor(nil)
	input := "vmess://" + base64.StdEncoding.EncodeToString([]byte(
		`{"add":"example.com","port":"443","id":"12345678-1234-1234-1234-123456789abc","net":"ws","tls":"tls","sni":"example.com"}`))

	doc, _ := p.Process(context.Background(), input, rules.Options{RawExport: true, EnableALPN: true})
	f, err := vmess.NewCodec(nil).Parse(doc)
	if err != nil {
		t.Fatalf("re-Parse(%q) error = %v", doc, err)
	}
	if !reflect.DeepEqual(f.ALPN, []string{"h2", "http/1.1"}) {
		t.Errorf("ALPN = %v", f.ALPN)
	}
	if f.Address != "example.com" || f.SNI != "example.com" {
		t.Errorf("add/sni changed: %q/%q", f.Address, f.SNI)
	}
}

func TestProcessCDN(t *testing.T) {
	p := newTestProcessor(nil)
	input := "vless://12345678-1234-1234-1234-123456789abc@origin.example.com:443?type=ws&security=tls&path=%2Fws"

	doc, _ := p.Process(context.Background(), input,
		rules.Options{RawExport: true, EnableCDNIP: true, CustomCDN: "1.2.3.4"})
	f, err := vless.NewCodec(nil).Parse(doc)
	if err != nil {
		t.Fatalf("re-Parse(%q) error = %v", doc, err)
	}
	if f.Address != "1.2.3.4" {
		t.Errorf("Address = %q, want 1.2.3.4", f.Address)
	}
	// исходный адрес переезжает в пустые Host и SNI
	if f.HostHeader != "origin.example.com" || f.SNI != "origin.example.com" {
		t.Errorf("Host/SNI = %q/%q", f.HostHeader, f.SNI)
	}
}

func TestProcessCDNShadowsocks(t *testing.T) {
	p := newTestProcessor(nil)
	userinfo := utils.EncodeRawURBase64([]byte("aes-256-gcm:secret"))
	input := "ss://" + userinfo + "@origin.example.com:8388?type=ws&path=%2Fws"

	doc, _ := p.Process(context.Background(), input,
		rules.Options{RawExport: true, EnableCDNIP: true, CustomCDN: "1.2.3.4"})
	f, err := ss.NewCodec().Parse(doc)
	if err != nil {
		t.Fatalf("re-Parse(%q) error = %v", doc, err)
	}
	if f.Address != "1.2.3.4" {
		t.Errorf("Address = %q, want 1.2.3.4", f.Address)
	}
	// исходный адрес не исчезает: он остаётся в host-параметре
	if f.HostHeader != "origin.example.com" {
		t.Errorf("HostHeader = %q, want origin.example.com", f.HostHeader)
	}
	if f.Transport != "ws" || f.Path != "/ws" {
		t.Errorf("Transport/Path = %q/%q", f.Transport, f.Path)
	}
}

func TestProcessSharedHostEnrichment(t *testing.T) {
	loc := &fakeLocator{records: map[string]geoip.Record{
		"example.com": {Flag: "🇩🇪", Country: "Germany", Code: "DE"},
	}}
	p := newTestProcessor(loc)
	input := strings.Join([]string{
		validVLESS,
		validVLESS,
		"vless://12345678-1234-1234-1234-123456789abc@10.0.0.1:443?security=tls",
	}, "\n")

	doc, _ := p.Process(context.Background(), input,
		rules.Options{RawExport: true, AddLocationFlag: true})
	lines := strings.Split(doc, "\n")

	codec := vless.NewCodec(nil)
	wantNames := []string{"🇩🇪 Germany Config 1", "🇩🇪 Germany Config 2", "Config 3"}
	for i, want := range wantNames {
		f, err := codec.Parse(lines[i])
		if err != nil {
			t.Fatalf("re-Parse(line %d) error = %v", i, err)
		}
		if f.Name != want {
			t.Errorf("line %d Name = %q, want %q", i, f.Name, want)
		}
	}
}

func TestImportSubscription(t *testing.T) {
	plain := "vless://a@b:1\nline two"
	if got := ImportSubscription(plain); got != plain {
		t.Errorf("plaintext mangled: %q", got)
	}
	if got := ImportSubscription(utils.EncodeBase64(plain)); got != plain {
		t.Errorf("base64 not unwrapped: %q", got)
	}
}
