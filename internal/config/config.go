// Пакет config — загрузка сервисной конфигурации из ini-файла с
// переопределением чувствительных значений из окружения.
package config

import (
	"fmt"
	"os"

	ini "gopkg.in/ini.v1"
)

// Config — конфигурация сервиса. Секции ini мапятся на вложенные структуры.
type Config struct {
	Server   ServerConf   `ini:"server"`
	Resolver ResolverConf `ini:"resolver"`
	Publish  PublishConf  `ini:"publish"`
}

type ServerConf struct {
	Port          int    `ini:"port"`
	CountriesFile string `ini:"countries_file"`
	RulesFile     string `ini:"rules_file"`
	LogLevel      string `ini:"log_level"`
}

type ResolverConf struct {
	CacheDir string `ini:"cache_dir"`
}

type PublishConf struct {
	GistToken        string `ini:"gist_token"`
	GistFilename     string `ini:"gist_filename"`
	DescribeEndpoint string `ini:"describe_endpoint"`
}

// Defaults возвращает конфигурацию по умолчанию.
func Defaults() *Config {
	return &Config{
		Server: ServerConf{
			Port:          8080,
			CountriesFile: "./config/countries.yaml",
			LogLevel:      "info",
		},
		Resolver: ResolverConf{
			CacheDir: "./cache",
		},
		Publish: PublishConf{
			GistFilename: "configs.txt",
		},
	}
}

// Load читает ini-файл поверх значений по умолчанию. Отсутствие файла —
// не ошибка: остаются дефолты и окружение.
func Load(fileName string) (*Config, error) {
	cfg := Defaults()
	if fileName != "" {
		iniFile, err := ini.Load(fileName)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("load %s: %w", fileName, err)
			}
		} else if err := iniFile.MapTo(cfg); err != nil {
			return nil, fmt.Errorf("map %s: %w", fileName, err)
		}
	}

	// Токены не живут в файле рядом с кодом.
	overrideFromEnv(&cfg.Publish.GistToken, "GIST_TOKEN")
	overrideFromEnv(&cfg.Publish.DescribeEndpoint, "DESCRIBE_ENDPOINT")
	overrideFromEnv(&cfg.Server.LogLevel, "LOG_LEVEL")
	return cfg, nil
}

func overrideFromEnv(target *string, envName string) {
	if v := os.Getenv(envName); v != "" {
		*target = v
	}
}
