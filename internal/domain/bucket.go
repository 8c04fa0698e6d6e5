package domain

import (
	"fmt"
	"hash/fnv"
)

// BucketCount is the number of buckets targets are hashed into.
const BucketCount = 100

// Bucket maps a target's stable key to a position in [0,100). The mapping
// is a pure FNV-1a hash: the same key yields the same bucket across
// process restarts and across coordinator instances.
func Bucket(key string) (int, error) {
	if key == "" {
		return 0, fmt.Errorf("%w: bucketing key must not be empty", ErrInvalidArgument)
	}
	h := fnv.New64a()
	h.Write([]byte(key))
	return int(h.Sum64() % BucketCount), nil
}

// IncludedAt reports whether the key's bucket falls under the given stage
// percentage. Inclusion is monotonic: once included at percentage p, a key
// stays included at every percentage >= p.
func IncludedAt(key string, percentage int) (bool, error) {
	b, err := Bucket(key)
	if err != nil {
		return false, err
	}
	return b < percentage, nil
}
