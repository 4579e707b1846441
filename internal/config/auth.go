package config

import "time"

const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StorePostgres = "postgres"
)

type AuthConfig struct {
	PlainSecret    string `yaml:"secret"`
	BcryptSecret   string `yaml:"secret-bcrypt"`
	Store          string `yaml:"store"`
	StatePath      string `yaml:"state-file"`
	Attempts       int    `yaml:"max-attempts"`
	LockoutMinutes int64  `yaml:"lockout-minutes"`
}

func (a *AuthConfig) Secret() string {
	return a.PlainSecret
}

func (a *AuthConfig) SecretHash() string {
	return a.BcryptSecret
}

func (a *AuthConfig) StoreKind() string {
	return a.Store
}

func (a *AuthConfig) StateFile() string {
	return a.StatePath
}

func (a *AuthConfig) MaxAttempts() int {
	return a.Attempts
}

func (a *AuthConfig) Lockout() time.Duration {
	return time.Duration(a.LockoutMinutes) * time.Minute
}
