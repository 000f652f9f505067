package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"mri-classifier/internal/domain/entity"
	"mri-classifier/internal/domain/port"
)

// ResultCache LRU-кэш результатов по SHA-256 снимка с ограниченным временем жизни.
type ResultCache struct {
	lru *expirable.LRU[string, entity.PredictionResult]
}

// New создаёт кэш на size записей. ttl <= 0 отключает истечение.
func New(size int, ttl time.Duration) *ResultCache {
	if ttl < 0 {
		ttl = 0
	}
	return &ResultCache{lru: expirable.NewLRU[string, entity.PredictionResult](size, nil, ttl)}
}

func (c *ResultCache) Get(key string) (entity.PredictionResult, bool) {
	return c.lru.Get(key)
}

func (c *ResultCache) Add(key string, result entity.PredictionResult) {
	c.lru.Add(key, result)
}

// Len количество живых записей.
func (c *ResultCache) Len() int {
	return c.lru.Len()
}

var _ port.ResultCache = (*ResultCache)(nil)
