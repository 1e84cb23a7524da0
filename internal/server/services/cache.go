package services

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dmitrijs2005/journalkeeper/internal/server/models"
)

var (
	userCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "journalkeeper_user_cache_hits_total",
		Help: "Lookups served from the in-memory user cache.",
	})
	userCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "journalkeeper_user_cache_misses_total",
		Help: "Lookups that went to the database.",
	})
)

// UserCache keeps recently used accounts by username. Salt and login hit
// it on every sign-in, so it saves a round trip per attempt.
type UserCache struct {
	cache *expirable.LRU[string, *models.User]
}

func NewUserCache(size int, ttl time.Duration) *UserCache {
	return &UserCache{cache: expirable.NewLRU[string, *models.User](size, nil, ttl)}
}

func (c *UserCache) Get(username string) (*models.User, bool) {
	u, ok := c.cache.Get(username)
	if ok {
		userCacheHits.Inc()
		return u, true
	}
	userCacheMisses.Inc()
	return nil, false
}

func (c *UserCache) Set(u *models.User) {
	c.cache.Add(u.UserName, u)
}

func (c *UserCache) Delete(username string) {
	c.cache.Remove(username)
}
