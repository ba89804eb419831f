// Пакет vmess — кодек ссылок VMess (base64-encoded JSON).
// JSON разбирается в строго типизированную структуру; обязательные поля
// add/port/id проверяются на этапе разбора, а не обнаруживаются позже.
package vmess

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"sub-rewrite/internal/link"
	"sub-rewrite/internal/utils"
	"sub-rewrite/internal/validator"
)

const maxURILength = 8192

// flexString принимает JSON-значение как строку или число: клиенты
// исторически пишут port и aid в обоих видах. Наружу всегда строка.
type flexString string

func (fs *flexString) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*fs = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*fs = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*fs = flexString(n.String())
	return nil
}

func (fs flexString) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(fs))
}

// config — wire-формат VMess share-link.
type config struct {
	V    flexString `json:"v,omitempty"`
	PS   string     `json:"ps,omitempty"`
	Add  string     `json:"add"`
	Port flexString `json:"port"`
	ID   string     `json:"id"`
	Aid  flexString `json:"aid,omitempty"`
	Scy  string     `json:"scy,omitempty"`
	Net  string     `json:"net,omitempty"`
	Type string     `json:"type,omitempty"`
	Host string     `json:"host,omitempty"`
	Path string     `json:"path,omitempty"`
	TLS  string     `json:"tls,omitempty"`
	SNI  string     `json:"sni,omitempty"`
	ALPN string     `json:"alpn,omitempty"`
	FP   string     `json:"fp,omitempty"`

	// Расширения инструмента: появляются только после применения правил.
	AllowInsecure bool          `json:"allowInsecure,omitempty"`
	Mux           *muxConfig    `json:"mux,omitempty"`
	Fragment      *fragmentSpec `json:"fragment,omitempty"`
	DNS           string        `json:"dns,omitempty"`
}

type muxConfig struct {
	Enabled     bool `json:"enabled"`
	Concurrency int  `json:"concurrency"`
}

type fragmentSpec struct {
	Length   string `json:"length"`
	Interval string `json:"interval,omitempty"`
}

// Codec — реализация link.Codec для VMess.
type Codec struct {
	ruleValidator validator.Validator
}

// NewCodec создаёт кодек VMess с валидатором параметров.
func NewCodec(val validator.Validator) *Codec {
	if val == nil {
		val = validator.EmptyValidator{}
	}
	return &Codec{ruleValidator: val}
}

func (*Codec) Scheme() string    { return "vmess" }
func (*Codec) Aliases() []string { return nil }

// Parse разбирает VMess-ссылку: base64 → JSON → типизированные поля.
func (c *Codec) Parse(s string) (*link.Fields, error) {
	if len(s) > maxURILength {
		return nil, &link.ParseError{Scheme: "vmess", Reason: "line too long"}
	}
	if !strings.HasPrefix(strings.ToLower(s), "vmess://") {
		return nil, &link.ParseError{Scheme: "vmess", Reason: "not a VMess link"}
	}
	b64 := s[len("vmess://"):]
	if b64 == "" {
		return nil, &link.ParseError{Scheme: "vmess", Reason: "empty payload"}
	}
	decoded, err := utils.DecodeUserInfo(b64)
	if err != nil {
		return nil, &link.ParseError{Scheme: "vmess", Reason: "invalid base64 encoding", Cause: err}
	}
	var vm config
	if err := json.Unmarshal(decoded, &vm); err != nil {
		return nil, &link.ParseError{Scheme: "vmess", Reason: "invalid JSON format", Cause: err}
	}

	if vm.Add == "" || vm.ID == "" {
		return nil, &link.ParseError{Scheme: "vmess", Reason: "missing server address or UUID"}
	}
	if _, err := uuid.Parse(vm.ID); err != nil {
		return nil, &link.ParseError{Scheme: "vmess", Reason: "malformed UUID", Cause: err}
	}
	port, err := strconv.Atoi(string(vm.Port))
	if err != nil || !utils.IsValidPort(port) {
		return nil, &link.ParseError{Scheme: "vmess", Reason: "missing or invalid port"}
	}
	if !utils.IsValidHost(vm.Add) {
		return nil, &link.ParseError{Scheme: "vmess", Reason: "invalid server host"}
	}

	params := map[string]string{
		"net":  vm.Net,
		"tls":  vm.TLS,
		"type": vm.Type,
	}
	if vm.Net == "grpc" {
		// serviceName у VMess приезжает в path
		params["serviceName"] = vm.Path
	}
	if result := c.ruleValidator.Validate(params); !result.Valid {
		return nil, &link.ParseError{Scheme: "vmess", Reason: result.Reason}
	}

	f := &link.Fields{
		Scheme:        "vmess",
		Address:       vm.Add,
		Port:          port,
		ID:            vm.ID,
		AlterID:       string(vm.Aid),
		Method:        vm.Scy,
		Transport:     vm.Net,
		HeaderType:    vm.Type,
		HostHeader:    vm.Host,
		Path:          vm.Path,
		Security:      vm.TLS,
		SNI:           vm.SNI,
		Fingerprint:   vm.FP,
		Name:          vm.PS,
		AllowInsecure: vm.AllowInsecure,
		DNS:           vm.DNS,
	}
	if vm.ALPN != "" {
		f.ALPN = link.SplitALPN(vm.ALPN)
	}
	if vm.Net == "grpc" {
		f.ServiceName = vm.Path
	}
	if vm.Mux != nil && vm.Mux.Enabled {
		f.MuxConcurrency = vm.Mux.Concurrency
	}
	if vm.Fragment != nil {
		f.FragmentLength = vm.Fragment.Length
		f.FragmentInterval = vm.Fragment.Interval
	}
	if f.Transport == "" {
		f.Transport = "tcp"
	}
	if string(vm.V) != "" {
		f.SetExtra("v", string(vm.V))
	}
	return f, nil
}

// Encode собирает VMess-ссылку: поля → JSON → base64 std.
func (*Codec) Encode(f *link.Fields) string {
	vm := config{
		V:             "2",
		PS:            f.Name,
		Add:           f.Address,
		Port:          flexString(strconv.Itoa(f.Port)),
		ID:            f.ID,
		Aid:           flexString(f.AlterID),
		Scy:           f.Method,
		Net:           f.Transport,
		Type:          f.HeaderType,
		Host:          f.HostHeader,
		Path:          f.Path,
		TLS:           f.Security,
		SNI:           f.SNI,
		ALPN:          strings.Join(f.ALPN, ","),
		FP:            f.Fingerprint,
		AllowInsecure: f.AllowInsecure,
		DNS:           f.DNS,
	}
	if v, ok := f.Extra["v"]; ok {
		vm.V = flexString(v)
	}
	if f.Transport == "grpc" && f.ServiceName != "" {
		vm.Path = f.ServiceName
	}
	if f.MuxConcurrency > 0 {
		vm.Mux = &muxConfig{Enabled: true, Concurrency: f.MuxConcurrency}
	}
	if f.FragmentLength != "" {
		vm.Fragment = &fragmentSpec{Length: f.FragmentLength, Interval: f.FragmentInterval}
	}
	reencoded, err := json.Marshal(vm)
	if err != nil {
		return ""
	}
	return "vmess://" + base64.StdEncoding.EncodeToString(reencoded)
}
