// Package config gerencia configurações do nó via variáveis de ambiente.
//
// # Variáveis de Ambiente
//
// ## Federação
//   - PORT: Porta HTTP do nó (default: 16842)
//   - MOTHER_URL: Template de busca da mother; vazio roda o nó isolado
//   - MY_URI: URI pública deste nó (default: http://localhost:16842/searsia/)
//   - MY_ID: Identificador deste nó (default: MD5 de MY_URI)
//   - INDEX_PATH: Diretório dos índices (default: ./index)
//   - CACHE_SIZE: Capacidade da fila de resultados, mínimo 30 (default: 500)
//   - POLL_INTERVAL: Segundos entre amostras, mínimo 5 (default: 120)
//   - DEFAULT_RATE: Consultas por dia quando o resource não define (default: 1000)
//   - OPEN_UPDATES: Aceita PUT/DELETE em /searsia/update (default: false)
//   - DONT_SHARE: Omite o apitemplate no OpenSearch (default: false)
//   - CENSOR_QUERY_RESOURCE_ID: Remove query e rid das respostas locais (default: false)
//   - RESOURCES_FILE: Arquivo YAML com resources iniciais
//
// ## Armazenamento
//   - ARCHIVE_BACKEND: sqlite ou typesense (default: sqlite)
//   - TYPESENSE_HOST: Host do servidor Typesense (default: localhost)
//   - TYPESENSE_PORT: Porta do servidor (default: 8108)
//   - TYPESENSE_API_KEY: Chave de API do Typesense
//   - TYPESENSE_PROTOCOL: Protocolo http/https (default: http)
//   - REDIS_URL: Redis para o cache de consultas exatas; vazio usa memória
//   - EXACT_CACHE_TTL_MINUTES: Validade do cache de consultas exatas (default: 10)
//
// ## HTTP
//   - RATE_LIMIT_RPS: Requisições por segundo por IP (default: 20)
//   - RATE_LIMIT_BURST: Rajada por IP (default: 40)
//
// ## Observabilidade
//   - TRACING_ENABLED / TRACING_ENDPOINT: exportador OTLP gRPC
//   - LOG_LEVEL: debug, info, warn, error (default: info)
//   - LOG_FORMAT: json ou console (default: json)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/prefeitura-rio/searsia-node/internal/utils"
)

const (
	ArchiveSQLite    = "sqlite"
	ArchiveTypesense = "typesense"
)

type Config struct {
	ServerPort string `validate:"required,numeric"`

	// Federação
	MotherURL             string `validate:"omitempty,url"`
	MyURI                 string `validate:"required,url"`
	MyID                  string `validate:"required,max=200"`
	IndexPath             string `validate:"required"`
	CacheSize             int    `validate:"gte=30"`
	PollInterval          int    `validate:"gte=5"`
	DefaultRate           int    `validate:"gte=0"`
	OpenUpdates           bool
	DontShare             bool
	CensorQueryResourceID bool
	ResourcesFile         string

	// Armazenamento
	ArchiveBackend    string `validate:"oneof=sqlite typesense"`
	TypesenseHost     string
	TypesensePort     string
	TypesenseAPIKey   string
	TypesenseProtocol string `validate:"oneof=http https"`
	RedisURL          string
	ExactCacheTTL     time.Duration

	// Limite de requisições por IP
	RateLimitRPS   float64 `validate:"gt=0"`
	RateLimitBurst int     `validate:"gte=1"`

	// Tracing configuration
	TracingEnabled  bool
	TracingEndpoint string

	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=json console"`
}

// LoadConfig lê o .env (se houver) e as variáveis de ambiente
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort: getEnv("PORT", "16842"),

		MotherURL:             strings.TrimSpace(getEnv("MOTHER_URL", "")),
		MyURI:                 strings.TrimSpace(getEnv("MY_URI", "http://localhost:16842/searsia/")),
		IndexPath:             getEnv("INDEX_PATH", "index"),
		CacheSize:             getEnvInt("CACHE_SIZE", 500),
		PollInterval:          getEnvInt("POLL_INTERVAL", 120),
		DefaultRate:           getEnvInt("DEFAULT_RATE", 1000),
		OpenUpdates:           getEnvBool("OPEN_UPDATES", false),
		DontShare:             getEnvBool("DONT_SHARE", false),
		CensorQueryResourceID: getEnvBool("CENSOR_QUERY_RESOURCE_ID", false),
		ResourcesFile:         getEnv("RESOURCES_FILE", ""),

		ArchiveBackend:    getEnv("ARCHIVE_BACKEND", ArchiveSQLite),
		TypesenseHost:     getEnv("TYPESENSE_HOST", "localhost"),
		TypesensePort:     getEnv("TYPESENSE_PORT", "8108"),
		TypesenseAPIKey:   getEnv("TYPESENSE_API_KEY", ""),
		TypesenseProtocol: getEnv("TYPESENSE_PROTOCOL", "http"),
		RedisURL:          getEnv("REDIS_URL", ""),
		ExactCacheTTL:     time.Duration(getEnvInt("EXACT_CACHE_TTL_MINUTES", 10)) * time.Minute,

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 40),

		// Tracing configuration
		TracingEnabled:  getEnvBool("TRACING_ENABLED", false),
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4317"),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "json")),
	}
	cfg.MyID = getEnv("MY_ID", utils.HashString(cfg.MyURI))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate confere limites e combinações das opções
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("configuração inválida: %w", err)
	}
	if c.ArchiveBackend == ArchiveTypesense && c.TypesenseAPIKey == "" {
		return fmt.Errorf("configuração inválida: TYPESENSE_API_KEY é obrigatória com ARCHIVE_BACKEND=typesense")
	}
	return nil
}

// IndexName é o prefixo dos arquivos de índice: o MD5 da URL da mother,
// ou de MY_URI para um nó sem mother
func (c *Config) IndexName() string {
	if c.MotherURL != "" {
		return utils.HashString(c.MotherURL)
	}
	return utils.HashString(c.MyURI)
}

// IndexFile devolve o caminho de um arquivo de índice com o sufixo dado
func (c *Config) IndexFile(suffix string) string {
	return filepath.Join(c.IndexPath, c.IndexName()+suffix)
}

func (c *Config) PollDuration() time.Duration {
	return time.Duration(c.PollInterval) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
