// Адаптеры геолокационных провайдеров. Каждый адаптер самостоятельно
// проверяет, что ответ относится к запрошенной цели: провайдеры под
// rate-limit молча возвращают данные IP вызывающего, и без сверки такие
// ответы отравили бы кэш.
package geoip

import (
	"encoding/json"
	"errors"
	"net"
)

// ErrNoResult — провайдер ответил, но не дал пригодной записи
// (неуспешный статус, чужой IP, пустой код страны).
var ErrNoResult = errors.New("geoip: provider returned no usable result")

// Provider — один геолокационный сервис: URL-шаблон с плейсхолдером
// {target} и парсер ответа.
type Provider struct {
	Name  string
	URL   string
	Parse func(body []byte, target string) (Record, error)
}

// DefaultProviders возвращает цепочку провайдеров в фиксированном порядке
// приоритета. Каждый опрашивается не более одного раза на резолюцию.
func DefaultProviders() []Provider {
	return []Provider{
		{
			Name:  "ip-api",
			URL:   "http://ip-api.com/json/{target}?fields=status,message,country,countryCode,city,isp,query",
			Parse: parseIPAPI,
		},
		{
			Name:  "ipwhois",
			URL:   "https://ipwho.is/{target}",
			Parse: parseIPWhois,
		},
	}
}

type ipAPIResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	Country     string `json:"country"`
	CountryCode string `json:"countryCode"`
	City        string `json:"city"`
	ISP         string `json:"isp"`
	Query       string `json:"query"`
}

func parseIPAPI(body []byte, target string) (Record, error) {
	var resp ipAPIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Record{}, err
	}
	if resp.Status != "success" || resp.CountryCode == "" {
		return Record{}, ErrNoResult
	}
	if !matchesTarget(resp.Query, target) {
		return Record{}, ErrNoResult
	}
	return Record{
		Code:    resp.CountryCode,
		Country: resp.Country,
		City:    resp.City,
		ISP:     resp.ISP,
	}, nil
}

type ipWhoisResponse struct {
	Success     bool   `json:"success"`
	IP          string `json:"ip"`
	Country     string `json:"country"`
	CountryCode string `json:"country_code"`
	City        string `json:"city"`
	Connection  struct {
		ISP string `json:"isp"`
	} `json:"connection"`
}

func parseIPWhois(body []byte, target string) (Record, error) {
	var resp ipWhoisResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Record{}, err
	}
	if !resp.Success || resp.CountryCode == "" {
		return Record{}, ErrNoResult
	}
	if !matchesTarget(resp.IP, target) {
		return Record{}, ErrNoResult
	}
	return Record{
		Code:    resp.CountryCode,
		Country: resp.Country,
		City:    resp.City,
		ISP:     resp.Connection.ISP,
	}, nil
}

// matchesTarget — анти-spoofing сверка: когда цель запроса — IP-литерал,
// echoed IP провайдера обязан совпасть. Для доменных целей сверять нечего.
func matchesTarget(echoed, target string) bool {
	if net.ParseIP(target) == nil {
		return true
	}
	return echoed == target
}
