package config

import "time"

type AppConfig struct {
	Confirm           bool   `yaml:"confirm-transactions"`
	MessageAgeSeconds int64  `yaml:"max-message-age-seconds"`
	HTTPAddress       string `yaml:"http-addr"`
}

func (s *AppConfig) ConfirmTransactions() bool {
	return s.Confirm
}

// MaxMessageAge is zero when old messages are not filtered.
func (s *AppConfig) MaxMessageAge() time.Duration {
	return time.Duration(s.MessageAgeSeconds) * time.Second
}

func (s *AppConfig) HTTPAddr() string {
	return s.HTTPAddress
}
