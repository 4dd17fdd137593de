package subscribe

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// DedupCache suppresses duplicate delivery of the same transaction's
// Sync logs. Capacity and TTL are set by the caller; the Subscriber
// defaults them to 100,000 entries and 300,000ms. It wraps
// hashicorp/golang-lru's expirable (TTL-aware) LRU variant.
type DedupCache struct {
	cache *lru.LRU[common.Hash, struct{}]
}

// NewDedupCache builds a cache with the given capacity and TTL.
func NewDedupCache(capacity int, ttl time.Duration) *DedupCache {
	return &DedupCache{cache: lru.NewLRU[common.Hash, struct{}](capacity, nil, ttl)}
}

// SeenOrRecord reports whether txHash has already been recorded. If it
// has not, it is recorded and false is returned — the caller should
// dispatch the event. If it has, true is returned and the caller must
// suppress the duplicate.
func (d *DedupCache) SeenOrRecord(txHash common.Hash) bool {
	if _, ok := d.cache.Get(txHash); ok {
		return true
	}
	d.cache.Add(txHash, struct{}{})
	return false
}
