package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const DefaultFile = "data/config.yaml"

const (
	envToken  = "TELEGRAM_TOKEN"
	envSecret = "BOT_SECRET"
	envRoot   = "BEANCOUNT_ROOT"
)

type config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Auth      AuthConfig      `yaml:"auth"`
	Beancount BeancountConfig `yaml:"beancount"`
	Git       GitConfig       `yaml:"git"`
	App       AppConfig       `yaml:"app"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Memcached MemcachedConfig `yaml:"memcached"`
}

type Service struct {
	config config
}

// New reads the YAML file at path. Values from the environment, or from a .env file in
// the working directory, take precedence over the file for the token, the secret and
// the ledger root.
func New(path string) (*Service, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "loading .env")
	}

	rawYAML, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading config file")
	}
	return Parse(rawYAML)
}

func Parse(rawYAML []byte) (*Service, error) {
	s := &Service{config: defaults()}

	err := yaml.Unmarshal(rawYAML, &s.config)
	if err != nil {
		return nil, errors.Wrap(err, "parsing yaml")
	}

	s.applyEnv()
	if err = s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func defaults() config {
	return config{
		Auth: AuthConfig{
			Store:          StoreMemory,
			StatePath:      "state.json",
			Attempts:       5,
			LockoutMinutes: 15,
		},
		Beancount: BeancountConfig{
			Currency: "CNY",
		},
		Git: GitConfig{
			Enabled:        true,
			Pull:           true,
			TimeoutSeconds: 30,
		},
		App: AppConfig{
			Confirm:           true,
			MessageAgeSeconds: 180,
		},
		Kafka: KafkaConfig{
			Topic: "beancount-transactions",
		},
	}
}

func (s *Service) applyEnv() {
	if v := os.Getenv(envToken); v != "" {
		s.config.Telegram.ApiToken = v
	}
	if v := os.Getenv(envSecret); v != "" {
		s.config.Auth.PlainSecret = v
	}
	if v := os.Getenv(envRoot); v != "" {
		s.config.Beancount.RootDir = v
	}
}

func (s *Service) validate() error {
	if s.config.Beancount.RootDir == "" {
		return errors.New("beancount.root is required")
	}
	if s.config.Auth.PlainSecret == "" && s.config.Auth.BcryptSecret == "" {
		return errors.New("auth.secret or auth.secret-bcrypt is required")
	}
	switch s.config.Auth.Store {
	case StoreMemory, StoreFile, StorePostgres:
	default:
		return errors.Errorf("unknown auth.store %q", s.config.Auth.Store)
	}
	if tz := s.config.Beancount.TimeZone; tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return errors.Errorf("unknown beancount.timezone %q", tz)
		}
	}
	return nil
}

func (s *Service) Telegram() *TelegramConfig {
	return &s.config.Telegram
}

func (s *Service) Auth() *AuthConfig {
	return &s.config.Auth
}

func (s *Service) Beancount() *BeancountConfig {
	return &s.config.Beancount
}

func (s *Service) Git() *GitConfig {
	return &s.config.Git
}

func (s *Service) App() *AppConfig {
	return &s.config.App
}

func (s *Service) Postgres() *PostgresConfig {
	return &s.config.Postgres
}

func (s *Service) Kafka() *KafkaConfig {
	return &s.config.Kafka
}

func (s *Service) Memcached() *MemcachedConfig {
	return &s.config.Memcached
}
