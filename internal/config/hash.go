package config

import (
	"encoding/json"
	"hash/fnv"
)

// HashBytes is a cheap content fingerprint used to skip reloads when an
// editor emits several events without changing the file.
func HashBytes(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

func hashConfig(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	return HashBytes(b)
}
