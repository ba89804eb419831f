package validator

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGenericValidator(t *testing.T) {
	rule := Rule{
		RequiredParams: []string{"sni"},
		ForbiddenValues: map[string][]string{
			"security": {"none"},
		},
		AllowedValues: map[string][]string{
			"security": {"tls", "reality"},
		},
		Conditional: []Condition{
			{When: map[string]string{"security": "reality"}, Require: []string{"pbk"}},
			{When: map[string]string{"type": "grpc"}, Require: []string{"serviceName"}},
		},
	}
	gv := &GenericValidator{Rule: rule}

	tests := []struct {
		name   string
		params map[string]string
		valid  bool
		reason string
	}{
		{
			"all good",
			map[string]string{"sni": "example.com", "security": "tls"},
			true, "",
		},
		{
			"missing required",
			map[string]string{"security": "tls"},
			false, "missing required parameter: sni",
		},
		{
			"forbidden value case-insensitive",
			map[string]string{"sni": "example.com", "security": "NONE"},
			false, "forbidden value for security",
		},
		{
			"not in allowed list",
			map[string]string{"sni": "example.com", "security": "xtls"},
			false, "invalid value for security",
		},
		{
			"conditional satisfied",
			map[string]string{"sni": "x.com", "security": "reality", "pbk": "key"},
			true, "",
		},
		{
			"conditional violated",
			map[string]string{"sni": "x.com", "security": "reality"},
			false, "missing required parameter pbk",
		},
		{
			"conditional not triggered",
			map[string]string{"sni": "x.com", "security": "tls", "type": "ws"},
			true, "",
		},
		{
			"grpc requires serviceName",
			map[string]string{"sni": "x.com", "security": "tls", "type": "grpc"},
			false, "missing required parameter serviceName",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := gv.Validate(tt.params)
			if result.Valid != tt.valid {
				t.Fatalf("Valid = %v, want %v (reason %q)", result.Valid, tt.valid, result.Reason)
			}
			if !tt.valid && !strings.Contains(result.Reason, tt.reason) {
				t.Errorf("Reason = %q, want contains %q", result.Reason, tt.reason)
			}
		})
	}
}

func TestEmptyValidator(t *testing.T) {
	if result := (EmptyValidator{}).Validate(nil); !result.Valid {
		t.Error("EmptyValidator rejected nil params")
	}
}

func TestForProtocol(t *testing.T) {
	rules := DefaultRules()
	if _, ok := ForProtocol("vless", rules).(*GenericValidator); !ok {
		t.Error("ForProtocol(vless) is not GenericValidator")
	}
	if _, ok := ForProtocol("ss", rules).(EmptyValidator); !ok {
		t.Error("ForProtocol(ss) is not EmptyValidator")
	}
}

func TestLoadRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	content := `vless:
  required:
    - sni
  forbidden:
    security:
      - none
  conditional:
    - when:
        security: reality
      require:
        - pbk
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules() error = %v", err)
	}
	rule, ok := rules["vless"]
	if !ok {
		t.Fatal("vless rule missing")
	}
	if len(rule.RequiredParams) != 1 || rule.RequiredParams[0] != "sni" {
		t.Errorf("RequiredParams = %v", rule.RequiredParams)
	}
	if len(rule.Conditional) != 1 || rule.Conditional[0].When["security"] != "reality" {
		t.Errorf("Conditional = %+v", rule.Conditional)
	}

	// пустой путь — встроенные правила
	builtin, err := LoadRules("")
	if err != nil {
		t.Fatalf("LoadRules(\"\") error = %v", err)
	}
	if _, ok := builtin["vless"]; !ok {
		t.Error("built-in vless rule missing")
	}
}
