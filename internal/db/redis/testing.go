package redis

import "github.com/redis/rueidis"

// NewStoreForTest wires a mock rueidis client into a Store.
func NewStoreForTest(c rueidis.Client) *Store {
	return &Store{client: c}
}
