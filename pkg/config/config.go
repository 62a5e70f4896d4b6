// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Retrieval, Dataset, Postgres, Kafka, Redis, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Dataset   DatasetConfig   `yaml:"dataset"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// RetrievalConfig carries the scoring and query-expansion parameters.
// K1 and B apply to BM25, Mu to query-likelihood Dirichlet smoothing.
type RetrievalConfig struct {
	K1           float64 `yaml:"k1"`
	B            float64 `yaml:"b"`
	Mu           float64 `yaml:"mu"`
	PRFTopDocs   int     `yaml:"prfTopDocs"`
	PRFTerms     int     `yaml:"prfTerms"`
	DefaultModel string  `yaml:"defaultModel"`
	DefaultK     int     `yaml:"defaultK"`
	MaxK         int     `yaml:"maxK"`
}

// DatasetConfig points at the corpus, topics, and qrels files.
type DatasetConfig struct {
	CorpusPath string `yaml:"corpusPath"`
	TopicsPath string `yaml:"topicsPath"`
	QrelsPath  string `yaml:"qrelsPath"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	RetrievalEvents string `yaml:"retrievalEvents"`
	CorpusReload    string `yaml:"corpusReload"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Retrieval.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (r RetrievalConfig) validate() error {
	if r.K1 < 0 || r.B < 0 || r.B > 1 {
		return fmt.Errorf("invalid BM25 parameters k1=%v b=%v", r.K1, r.B)
	}
	if r.Mu <= 0 {
		return fmt.Errorf("invalid Dirichlet mu=%v", r.Mu)
	}
	if r.PRFTopDocs <= 0 || r.PRFTerms <= 0 {
		return fmt.Errorf("invalid PRF settings topDocs=%d terms=%d", r.PRFTopDocs, r.PRFTerms)
	}
	return nil
}

// defaultConfig returns a Config with defaults matching the parameters tuned
// on the AP88-90 collection.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Retrieval: RetrievalConfig{
			K1:           0.9,
			B:            0.4,
			Mu:           2000,
			PRFTopDocs:   3,
			PRFTerms:     10,
			DefaultModel: "bm25",
			DefaultK:     10,
			MaxK:         1000,
		},
		Dataset: DatasetConfig{
			CorpusPath: "benchmarks/ap_corpus.jsonl",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "evidence",
			User:            "evidence",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "evidence-engine-group",
			Topics: KafkaTopics{
				RetrievalEvents: "retrieval-events",
				CorpusReload:    "corpus-reload",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads EE_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("EE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("EE_CORPUS_PATH"); v != "" {
		cfg.Dataset.CorpusPath = v
	}
	if v := os.Getenv("EE_TOPICS_PATH"); v != "" {
		cfg.Dataset.TopicsPath = v
	}
	if v := os.Getenv("EE_QRELS_PATH"); v != "" {
		cfg.Dataset.QrelsPath = v
	}
	if v := os.Getenv("EE_DEFAULT_MODEL"); v != "" {
		cfg.Retrieval.DefaultModel = v
	}
	if v := os.Getenv("EE_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("EE_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("EE_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("EE_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("EE_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("EE_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("EE_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("EE_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("EE_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("EE_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("EE_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
