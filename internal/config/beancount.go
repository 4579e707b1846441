package config

import "time"

type BeancountConfig struct {
	RootDir  string `yaml:"root"`
	Currency string `yaml:"default-currency"`
	TimeZone string `yaml:"timezone"`
}

func (b *BeancountConfig) Root() string {
	return b.RootDir
}

func (b *BeancountConfig) DefaultCurrency() string {
	return b.Currency
}

// Location falls back to the local zone when the timezone is empty. Unknown zones are
// rejected when the config is loaded.
func (b *BeancountConfig) Location() *time.Location {
	if b.TimeZone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(b.TimeZone)
	if err != nil {
		return time.Local
	}
	return loc
}
