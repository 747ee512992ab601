package vectorindex

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/problem-search/pkg/config"
)

// Open returns the backend selected by cfg.Type for collection. Memory
// backends are private to the process and start without a collection.
func Open(cfg config.VectorIndexConfig, collection string) (Backend, error) {
	switch cfg.Type {
	case "qdrant":
		return NewQdrant(cfg, collection), nil
	case "memory":
		return NewMemory(0), nil
	default:
		return nil, fmt.Errorf("unknown vector index type %q", cfg.Type)
	}
}
