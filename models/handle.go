package models

import (
	"sync/atomic"
	"time"

	"github.com/BaSui01/factflow/llm/embedding"
	"github.com/BaSui01/factflow/llm/entailment"
)

// Handle 已加载的模型句柄
type Handle struct {
	Kind             Kind
	Device           Device
	OptimalBatchSize int
	LoadedAt         time.Time
	LoadTime         time.Duration
	Provider         any

	accesses atomic.Int64
}

// Accesses returns how many times the handle was served by the cache.
func (h *Handle) Accesses() int64 {
	return h.accesses.Load()
}

func (h *Handle) touch() {
	h.accesses.Add(1)
}

// Embedder returns the provider as an embedding.Provider.
func (h *Handle) Embedder() (embedding.Provider, bool) {
	p, ok := h.Provider.(embedding.Provider)
	return p, ok
}

// Entailer returns the provider as an entailment.Provider.
func (h *Handle) Entailer() (entailment.Provider, bool) {
	p, ok := h.Provider.(entailment.Provider)
	return p, ok
}
