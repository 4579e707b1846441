package cache

import (
	"github.com/bradfitz/gomemcache/memcache"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"max.ks1230/beancount-bot/internal/logger"
)

const (
	keyPrefix = "beancount-bot:report:"
	// reports also go stale when the ledger changes through git pulls
	reportTTLSeconds = 300
)

type MemcacheClient struct {
	client *memcache.Client
}

type config interface {
	Hosts() []string
}

func NewMemcache(config config) (*MemcacheClient, error) {
	logger.Info("memcached hosts", zap.Strings("hosts", config.Hosts()))
	mc := memcache.New(config.Hosts()...)
	return &MemcacheClient{mc}, mc.Ping()
}

func formatKey(period string) string {
	return keyPrefix + period
}

func (mc *MemcacheClient) CacheReport(period string, report string) error {
	logger.Info("cache report", zap.String("period", period))
	return mc.client.Set(&memcache.Item{
		Key:        formatKey(period),
		Value:      []byte(report),
		Expiration: reportTTLSeconds,
	})
}

func (mc *MemcacheClient) GetReport(period string) (string, error) {
	item, err := mc.client.Get(formatKey(period))
	if err != nil {
		return "", err
	}
	logger.Info("report from cache", zap.String("period", period))
	return string(item.Value), nil
}

func (mc *MemcacheClient) InvalidateReports(periods []string) error {
	logger.Info("invalidate cached reports")

	for _, p := range periods {
		err := mc.client.Delete(formatKey(p))
		if err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
			return err
		}
	}
	return nil
}
