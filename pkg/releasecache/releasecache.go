// Package releasecache implements a TTL-backed cache of remote release
// metadata with stale-fallback on fetch failure: fresh cache hits avoid
// a live fetch entirely, a live fetch refreshes the cache on success,
// and a fetch failure falls back to a stale cache entry rather than
// failing outright, when one exists.
package releasecache

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// SchemaVersion is the single supported cache-record schema version.
const SchemaVersion = 1

var bucketName = []byte("release_cache")

// Record is one cached lookup result for a source URL.
type Record struct {
	SchemaVersion   int             `json:"schema_version"`
	SourceURL       string          `json:"source_url"`
	FetchedAtUnixMs int64           `json:"fetched_at_unix_ms"`
	Payload         json.RawMessage `json:"payload"`
}

// Outcome classifies how a Lookup call satisfied a request.
type Outcome int

const (
	// CacheFresh means the cache held a record for source_url within ttl_ms.
	CacheFresh Outcome = iota
	// Live means a live fetch succeeded and the cache was refreshed.
	Live
	// CacheStaleFallback means the live fetch failed and a stale cached
	// record was returned instead.
	CacheStaleFallback
)

func (o Outcome) String() string {
	switch o {
	case CacheFresh:
		return "cache_fresh"
	case Live:
		return "live"
	case CacheStaleFallback:
		return "cache_stale_fallback"
	default:
		return "unknown"
	}
}

// Result is the outcome of a Lookup call.
type Result struct {
	Outcome Outcome
	Record  Record
}

// Fetcher performs the live fetch for a source URL. Implementations are
// expected to apply their own transport policy (e.g. pkg/ssrf guarding,
// timeouts); the cache itself is transport-agnostic.
type Fetcher func(sourceURL string) (json.RawMessage, error)

// Cache is a bbolt-backed store of Record values keyed by source URL.
type Cache struct {
	db *bolt.DB
}

// Open opens (creating if necessary) a bbolt-backed release cache at path.
func Open(path string) (*Cache, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open release cache %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create release cache bucket: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Lookup implements the contract from spec.md §4.9: a fresh cache hit
// short-circuits the fetch; otherwise a live fetch is attempted and
// persisted on success; on fetch failure a stale cache entry (if any) is
// returned instead of propagating the error.
func (c *Cache) Lookup(sourceURL string, ttl time.Duration, fetch Fetcher, nowUnixMs int64) (Result, error) {
	existing, found, err := c.get(sourceURL)
	if err != nil {
		return Result{}, err
	}
	if found {
		age := time.Duration(nowUnixMs-existing.FetchedAtUnixMs) * time.Millisecond
		if age <= ttl {
			return Result{Outcome: CacheFresh, Record: existing}, nil
		}
	}

	payload, fetchErr := fetch(sourceURL)
	if fetchErr == nil {
		record := Record{
			SchemaVersion:   SchemaVersion,
			SourceURL:       sourceURL,
			FetchedAtUnixMs: nowUnixMs,
			Payload:         payload,
		}
		if err := c.put(record); err != nil {
			return Result{}, err
		}
		return Result{Outcome: Live, Record: record}, nil
	}

	if found {
		return Result{Outcome: CacheStaleFallback, Record: existing}, nil
	}
	return Result{}, fmt.Errorf("release lookup failed for %s and no cache entry exists: %w", sourceURL, fetchErr)
}

func (c *Cache) get(sourceURL string) (Record, bool, error) {
	var record Record
	found := false
	err := c.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		data := bucket.Get([]byte(sourceURL))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return Record{}, false, fmt.Errorf("failed to read release cache entry for %s: %w", sourceURL, err)
	}
	return record, found, nil
}

func (c *Cache) put(record Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal release cache entry: %w", err)
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		return bucket.Put([]byte(record.SourceURL), data)
	})
}
