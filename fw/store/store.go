// Package store keeps endpoint state across restarts.
package store

// Store is a small key-value store. Get returns nil for a missing key.
type Store interface {
	Get(key []byte) ([]byte, error)
	Put(key []byte, value []byte) error
	Remove(key []byte) error
	RemovePrefix(prefix []byte) error
	Close() error
}
