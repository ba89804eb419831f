// Пакет alias — детерминированная генерация отображаемого имени ссылки
// из локации, базовой метки и позиционного индекса. Чистая функция без
// побочных эффектов.
package alias

import (
	"strconv"
	"strings"

	"sub-rewrite/internal/geoip"
)

// DefaultBaseName используется при пустой пользовательской метке.
const DefaultBaseName = "Config"

// Generate собирает имя в фиксированном порядке: флаг, страна, город
// (если резолвер его вернул), базовая метка, индекс с единицы.
// Части соединяются одиночными пробелами; отсутствующие части опускаются.
func Generate(index int, loc *geoip.Record, baseName string) string {
	parts := make([]string, 0, 5)
	if loc != nil {
		if loc.Flag != "" {
			parts = append(parts, loc.Flag)
		}
		if loc.Country != "" {
			parts = append(parts, loc.Country)
		}
		if loc.City != "" {
			parts = append(parts, loc.City)
		}
	}
	base := strings.TrimSpace(baseName)
	if base == "" {
		base = DefaultBaseName
	}
	parts = append(parts, base, strconv.Itoa(index+1))
	return strings.Join(parts, " ")
}
