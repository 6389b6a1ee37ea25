// Package querycache implements the read path of the data-access core.
//
// An Executor answers reads from a TTL-checked result cache, and on a miss
// runs at most one fetch per key at a time: concurrent readers of the same key
// join the running generation and receive its outcome. Successful results
// replace the cached entry; failures propagate to every joined reader and
// never touch the cache. Nothing is evicted in the background.
//
// Query adapts an executor to the data/loading/error state a view renders.
package querycache
