// Страновые метаданные: таблица код→название/флаг из config/countries.yaml
// и синтез флага из ISO 3166-1 alpha-2 кода через региональные индикаторы.
//
//nolint:revive
package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// CountryInfo описывает минимальную информацию о стране, используемую
// при именовании конфигов (config/countries.yaml).
type CountryInfo struct {
	CCA3 string `yaml:"cca3"`
	Flag string `yaml:"flag"`
	Name string `yaml:"name"`
}

// --- REST Countries API structs ---
type restCountry struct {
	Name struct {
		Common   string `json:"common"`
		Official string `json:"official"`
	} `json:"name"`
	Cca2 string `json:"cca2"`
	Cca3 string `json:"cca3"`
	Flag string `json:"flag"`
}

// regionalIndicatorBase — кодовая точка 🇦; флаг страны = два символа
// региональных индикаторов, по одному на каждую букву alpha-2 кода.
const regionalIndicatorBase = 0x1F1E6

// FlagFromCode синтезирует emoji-флаг из двухбуквенного кода страны.
// Пустой или некорректный код даёт пустую строку (не «неизвестный флаг»).
func FlagFromCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 2 {
		return ""
	}
	var b strings.Builder
	for _, c := range code {
		if c < 'A' || c > 'Z' {
			return ""
		}
		b.WriteRune(rune(regionalIndicatorBase + int(c-'A')))
	}
	return b.String()
}

// LoadCountries загружает файл стран YAML и возвращает карту код->CountryInfo.
func LoadCountries(filePath string) (map[string]CountryInfo, error) {
	if filePath == "" {
		return make(map[string]CountryInfo), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read countries file: %w", err)
	}

	var countries map[string]CountryInfo
	if err := yaml.Unmarshal(data, &countries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal countries YAML: %w", err)
	}

	return countries, nil
}

// CountryName возвращает общепринятое название страны по alpha-2 коду,
// либо сам код, если таблица его не знает.
func CountryName(code string, countryMap map[string]CountryInfo) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if info, ok := countryMap[code]; ok && info.Name != "" {
		return info.Name
	}
	return code
}

// GenerateCountries получает список стран из REST API и сохраняет
// их в файл ./config/countries.yaml в формате, ожидаемом приложением.
// Используется в режиме CLI для генерации обновлённого списка стран.
func GenerateCountries() error {
	resp, err := http.Get("https://restcountries.com/v3.1/all?fields=cca2,cca3,flag,name")
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var countries []restCountry
	if err := json.Unmarshal(body, &countries); err != nil {
		return err
	}

	result := make(map[string]CountryInfo, len(countries))
	for _, c := range countries {
		cca2 := strings.ToUpper(c.Cca2)
		if cca2 == "" {
			continue
		}
		result[cca2] = CountryInfo{
			CCA3: strings.ToUpper(c.Cca3),
			Flag: c.Flag,
			Name: c.Name.Common,
		}
	}

	keys := make([]string, 0, len(result))
	for k := range result {
		keys = append(keys, k)
	}
	// Стабильный порядок ключей для контроля версий countries.yaml.
	sort.Strings(keys)

	sorted := make(map[string]CountryInfo, len(result))
	for _, k := range keys {
		sorted[k] = result[k]
	}

	out, err := yaml.Marshal(sorted)
	if err != nil {
		return err
	}

	configDir := "./config"
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("mkdir config: %w", err)
	}

	return os.WriteFile(filepath.Join(configDir, "countries.yaml"), out, 0o644)
}
