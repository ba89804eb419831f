package ss

import (
	"encoding/base64"
	"strings"
	"testing"

	"sub-rewrite/internal/utils"
)

func TestParseSIP002(t *testing.T) {
	codec := NewCodec()
	userinfo := utils.EncodeRawURBase64([]byte("aes-256-gcm:secret-password"))
	f, err := codec.Parse("ss://" + userinfo + "@example.com:8388#My%20Server")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if f.Method != "aes-256-gcm" {
		t.Errorf("Method = %q", f.Method)
	}
	if f.ID != "secret-password" {
		t.Errorf("ID = %q", f.ID)
	}
	if f.Address != "example.com" || f.Port != 8388 {
		t.Errorf("endpoint = %s:%d", f.Address, f.Port)
	}
	if f.Name != "My Server" {
		t.Errorf("Name = %q", f.Name)
	}
}

func TestParseSIP002PlainUserinfo(t *testing.T) {
	codec := NewCodec()
	// SIP002 допускает нешифрованный percent-encoded userinfo
	f, err := codec.Parse("ss://chacha20-ietf-poly1305:p%40ssword@example.com:8388")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if f.Method != "chacha20-ietf-poly1305" || f.ID != "p@ssword" {
		t.Errorf("cipher/password = %q/%q", f.Method, f.ID)
	}
}

func TestParseLegacy(t *testing.T) {
	codec := NewCodec()
	// пароль с '@' внутри: режем по последнему '@'
	payload := base64.StdEncoding.EncodeToString([]byte("aes-128-gcm:pass@word@example.com:8388"))
	f, err := codec.Parse("ss://" + payload + "#Legacy%20Node")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if f.Method != "aes-128-gcm" {
		t.Errorf("Method = %q", f.Method)
	}
	if f.ID != "pass@word" {
		t.Errorf("ID = %q, want pass@word", f.ID)
	}
	if f.Address != "example.com" || f.Port != 8388 {
		t.Errorf("endpoint = %s:%d", f.Address, f.Port)
	}
	if f.Name != "Legacy Node" {
		t.Errorf("Name = %q", f.Name)
	}
}

func TestParseErrors(t *testing.T) {
	codec := NewCodec()
	tests := []struct {
		name  string
		input string
	}{
		{"not base64 legacy", "ss://!!!definitely-not-base64!!!"},
		{"legacy without at", "ss://" + base64.StdEncoding.EncodeToString([]byte("aes-128-gcm:password"))},
		{"legacy without cipher", "ss://" + base64.StdEncoding.EncodeToString([]byte("justpassword@example.com:8388"))},
		{"empty cipher", "ss://" + utils.EncodeRawURBase64([]byte(":password")) + "@example.com:8388"},
		{"cipher with invalid chars", "ss://" + utils.EncodeRawURBase64([]byte("aes 256:pw")) + "@example.com:8388"},
		{"bad port", "ss://" + base64.StdEncoding.EncodeToString([]byte("aes-128-gcm:pw@example.com:99999"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if f, err := codec.Parse(tt.input); err == nil {
				t.Errorf("Parse() = %+v, want error", f)
			}
		})
	}
}

func TestEncodeRoundTripTransport(t *testing.T) {
	codec := NewCodec()
	userinfo := utils.EncodeRawURBase64([]byte("aes-256-gcm:secret"))
	input := "ss://" + userinfo + "@origin.example.com:8388?type=ws&host=cdn.front.example&path=%2Fws&sni=front.example&security=tls#name"

	first, err := codec.Parse(input)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if first.Transport != "ws" || first.HostHeader != "cdn.front.example" || first.Path != "/ws" {
		t.Fatalf("parsed fields = %+v", first)
	}

	// round-trip без мутаций: транспорт и заголовки не теряются
	second, err := codec.Parse(codec.Encode(first))
	if err != nil {
		t.Fatalf("re-Parse() error = %v", err)
	}
	if second.Transport != "ws" {
		t.Errorf("Transport = %q, want ws", second.Transport)
	}
	if second.HostHeader != "cdn.front.example" {
		t.Errorf("HostHeader = %q, want cdn.front.example", second.HostHeader)
	}
	if second.Path != "/ws" {
		t.Errorf("Path = %q, want /ws", second.Path)
	}
	if second.SNI != "front.example" || second.Security != "tls" {
		t.Errorf("SNI/Security = %q/%q", second.SNI, second.Security)
	}
}

func TestEncodeAlwaysSIP002(t *testing.T) {
	codec := NewCodec()
	// legacy на входе, SIP002 на выходе
	payload := base64.StdEncoding.EncodeToString([]byte("aes-256-gcm:secret@example.com:8388"))
	f, err := codec.Parse("ss://" + payload + "#node")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	encoded := codec.Encode(f)
	if !strings.Contains(encoded, "@example.com:8388") {
		t.Errorf("Encode() = %q, want SIP002 host form", encoded)
	}
	wantUser := utils.EncodeRawURBase64([]byte("aes-256-gcm:secret"))
	if !strings.HasPrefix(encoded, "ss://"+wantUser+"@") {
		t.Errorf("Encode() = %q, want userinfo %q", encoded, wantUser)
	}

	second, err := codec.Parse(encoded)
	if err != nil {
		t.Fatalf("re-Parse(%q) error = %v", encoded, err)
	}
	if second.Method != f.Method || second.ID != f.ID || second.Name != f.Name {
		t.Errorf("round-trip mismatch: %+v vs %+v", f, second)
	}
}
