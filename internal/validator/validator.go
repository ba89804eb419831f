// Пакет validator — декларативная проверка параметров разобранных ссылок.
// Правила описываются per-protocol: обязательные параметры, запрещённые и
// допустимые значения, условные требования. Набор правил можно переопределить
// YAML-файлом.
package validator

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Condition — условное требование: когда все пары When совпали,
// параметры из Require обязаны присутствовать.
type Condition struct {
	When    map[string]string `yaml:"when"`
	Require []string          `yaml:"require"`
}

// Rule — набор ограничений для одного протокола.
type Rule struct {
	RequiredParams  []string            `yaml:"required"`
	ForbiddenValues map[string][]string `yaml:"forbidden"`
	AllowedValues   map[string][]string `yaml:"allowed"`
	Conditional     []Condition         `yaml:"conditional"`
}

// ValidationResult — исход проверки.
type ValidationResult struct {
	Valid  bool
	Reason string
}

// Validator проверяет map параметров ссылки.
type Validator interface {
	Validate(params map[string]string) ValidationResult
}

// EmptyValidator принимает всё. Используется для протоколов без правил.
type EmptyValidator struct{}

func (EmptyValidator) Validate(map[string]string) ValidationResult {
	return ValidationResult{Valid: true}
}

// DefaultRules — встроенные правила для URI-протоколов.
// reality без pbk и grpc без serviceName — самые частые поломанные конфиги
// в реальных подписках; такие строки уходят в passthrough, а не в мусор.
func DefaultRules() map[string]Rule {
	return map[string]Rule{
		"vless": {
			Conditional: []Condition{
				{When: map[string]string{"security": "reality"}, Require: []string{"pbk"}},
				{When: map[string]string{"type": "grpc"}, Require: []string{"serviceName"}},
			},
		},
		"trojan": {
			Conditional: []Condition{
				{When: map[string]string{"type": "grpc"}, Require: []string{"serviceName"}},
			},
		},
	}
}

// LoadRules читает YAML-файл правил (map протокол→Rule). Пустой путь
// возвращает встроенные правила.
func LoadRules(filePath string) (map[string]Rule, error) {
	if filePath == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	var rules map[string]Rule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rules YAML: %w", err)
	}
	return rules, nil
}

// ForProtocol возвращает валидатор для схемы из набора правил.
func ForProtocol(scheme string, rules map[string]Rule) Validator {
	if rule, ok := rules[scheme]; ok {
		return &GenericValidator{Rule: rule}
	}
	return EmptyValidator{}
}
