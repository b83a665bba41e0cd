// Package dedupe replays responses for repeated requests that carry the same
// idempotency key, within a TTL and a bounded number of keys.
//
//	cache := dedupe.New[*widget.Exchange](10*time.Minute, 10000)
//	defer cache.Close()
//	ex, replayed, err := cache.Do(key, func() (*widget.Exchange, error) { ... })
//
// Concurrent calls with the same key share a single execution. Failed
// executions are not cached, so a retry after an error runs again.
package dedupe
