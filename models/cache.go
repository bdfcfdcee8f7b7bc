package models

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/factflow/llm/embedding"
	"github.com/BaSui01/factflow/llm/entailment"
	"github.com/BaSui01/factflow/types"
)

// ErrCacheClosed is returned by Get after Close.
var ErrCacheClosed = errors.New("model cache is closed")

// Factory constructs a provider for the detected device.
type Factory func(ctx context.Context, device Device) (any, error)

// Warmer is implemented by providers that need a first call before they
// are considered loaded.
type Warmer interface {
	Warmup(ctx context.Context) error
}

// PressureReleaser is implemented by providers that can drop buffers on
// request.
type PressureReleaser interface {
	ReleaseMemory()
}

// LoadObserver receives model load timings.
type LoadObserver interface {
	RecordModelLoad(kind, deviceClass string, duration time.Duration, err error)
}

// Config 模型缓存配置
type Config struct {
	// Device: auto, cuda, rocm, metal, cpu
	Device string
	// BatchSizes 覆盖项，键为 "<kind>/<device_class>"
	BatchSizes map[string]int
	// LoadTimeout 单次构建（含预热）的上限，0 使用 DefaultLoadTimeout
	LoadTimeout time.Duration
}

// DefaultLoadTimeout bounds a provider construction when Config.LoadTimeout is unset.
const DefaultLoadTimeout = 2 * time.Minute

// Option 配置 Cache
type Option func(*Cache)

// WithDetector replaces the device detector built from Config.Device.
func WithDetector(d *DeviceDetector) Option {
	return func(c *Cache) { c.detector = d }
}

// WithLoadObserver reports every construction attempt.
func WithLoadObserver(o LoadObserver) Option {
	return func(c *Cache) { c.observer = o }
}

// HandleInfo 句柄快照
type HandleInfo struct {
	Kind             Kind          `json:"kind"`
	Device           Device        `json:"device"`
	OptimalBatchSize int           `json:"optimal_batch_size"`
	LoadedAt         time.Time     `json:"loaded_at"`
	LoadTime         time.Duration `json:"load_time"`
	Accesses         int64         `json:"accesses"`
}

// Cache 模型资源缓存，每种 Kind 至多构建一个提供者
type Cache struct {
	factories map[Kind]Factory
	detector  *DeviceDetector
	batches   *BatchSizeTable
	observer  LoadObserver
	logger    *zap.Logger

	loadTimeout time.Duration

	group   singleflight.Group
	mu      sync.RWMutex
	handles map[Kind]*Handle
	closed  bool
}

// NewCache 创建模型缓存
func NewCache(cfg Config, factories map[Kind]Factory, logger *zap.Logger, opts ...Option) (*Cache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	batches, err := NewBatchSizeTable(cfg.BatchSizes)
	if err != nil {
		return nil, err
	}

	c := &Cache{
		factories: make(map[Kind]Factory, len(factories)),
		batches:   batches,
		logger:    logger.With(zap.String("component", "model_cache")),
		handles:   make(map[Kind]*Handle),

		loadTimeout: cfg.LoadTimeout,
	}
	if c.loadTimeout <= 0 {
		c.loadTimeout = DefaultLoadTimeout
	}
	for k, f := range factories {
		if f != nil {
			c.factories[k] = f
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.detector == nil {
		det, err := NewDeviceDetector(cfg.Device)
		if err != nil {
			return nil, err
		}
		c.detector = det
	}

	return c, nil
}

// Get returns the handle for kind, constructing it on first use.
func (c *Cache) Get(ctx context.Context, kind Kind) (*Handle, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, ErrCacheClosed
	}
	h, ok := c.handles[kind]
	c.mu.RUnlock()
	if ok {
		h.touch()
		return h, nil
	}

	factory, ok := c.factories[kind]
	if !ok {
		return nil, types.NewProviderUnavailableError(string(kind),
			fmt.Errorf("no factory registered for %s", kind))
	}

	// 构建与调用方的取消解耦：先到的调用方超时不影响其余等待者
	ch := c.group.DoChan(string(kind), func() (any, error) {
		c.mu.RLock()
		existing, ok := c.handles[kind]
		c.mu.RUnlock()
		if ok {
			return existing, nil
		}
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()
		return c.load(loadCtx, kind, factory)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		h = res.Val.(*Handle)
		h.touch()
		return h, nil
	case <-ctx.Done():
		return nil, types.NewProviderUnavailableError(string(kind), ctx.Err())
	}
}

func (c *Cache) load(ctx context.Context, kind Kind, factory Factory) (*Handle, error) {
	device := c.detector.Detect()
	start := time.Now()

	provider, err := factory(ctx, device)
	if err == nil {
		if w, ok := provider.(Warmer); ok {
			if werr := w.Warmup(ctx); werr != nil {
				closeProvider(provider)
				err = werr
			}
		}
	}
	loadTime := time.Since(start)

	if c.observer != nil {
		c.observer.RecordModelLoad(string(kind), string(device.Class), loadTime, err)
	}
	if err != nil {
		c.logger.Warn("model load failed",
			zap.String("kind", string(kind)),
			zap.String("device", device.String()),
			zap.Duration("elapsed", loadTime),
			zap.Error(err))
		return nil, types.NewProviderUnavailableError(string(kind), err)
	}

	h := &Handle{
		Kind:             kind,
		Device:           device,
		OptimalBatchSize: c.batches.Lookup(kind, device.Class),
		LoadedAt:         start.Add(loadTime),
		LoadTime:         loadTime,
		Provider:         provider,
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		closeProvider(provider)
		return nil, ErrCacheClosed
	}
	c.handles[kind] = h
	c.mu.Unlock()

	c.logger.Info("model loaded",
		zap.String("kind", string(kind)),
		zap.String("device", device.String()),
		zap.Int("batch_size", h.OptimalBatchSize),
		zap.Duration("load_time", loadTime))

	return h, nil
}

// Embedder returns the embedding provider.
func (c *Cache) Embedder(ctx context.Context) (embedding.Provider, error) {
	h, err := c.Get(ctx, KindEmbedding)
	if err != nil {
		return nil, err
	}
	p, ok := h.Embedder()
	if !ok {
		return nil, types.NewProviderUnavailableError(string(KindEmbedding),
			fmt.Errorf("provider %T does not implement embedding.Provider", h.Provider))
	}
	return p, nil
}

// Entailer returns the entailment provider together with its handle.
func (c *Cache) Entailer(ctx context.Context) (entailment.Provider, *Handle, error) {
	h, err := c.Get(ctx, KindEntailment)
	if err != nil {
		return nil, nil, err
	}
	p, ok := h.Entailer()
	if !ok {
		return nil, nil, types.NewProviderUnavailableError(string(KindEntailment),
			fmt.Errorf("provider %T does not implement entailment.Provider", h.Provider))
	}
	return p, h, nil
}

// WarmupAll loads every registered kind and returns per-kind load times.
// Kinds that fail are absent from the map; their errors are joined.
func (c *Cache) WarmupAll(ctx context.Context) (map[Kind]time.Duration, error) {
	out := make(map[Kind]time.Duration, len(c.factories))
	var errs []error
	for _, kind := range c.registeredKinds() {
		h, err := c.Get(ctx, kind)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", kind, err))
			continue
		}
		out[kind] = h.LoadTime
	}
	return out, errors.Join(errs...)
}

// OptimalBatchSize looks up the static batch table.
func (c *Cache) OptimalBatchSize(kind Kind, class DeviceClass) int {
	return c.batches.Lookup(kind, class)
}

// Loaded reports whether kind has a live handle.
func (c *Cache) Loaded(kind Kind) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.handles[kind]
	return ok
}

// Ready reports whether every registered kind is loaded.
func (c *Cache) Ready() bool {
	for _, kind := range c.registeredKinds() {
		if !c.Loaded(kind) {
			return false
		}
	}
	return true
}

// Snapshot describes the loaded handles, sorted by kind.
func (c *Cache) Snapshot() []HandleInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]HandleInfo, 0, len(c.handles))
	for _, h := range c.handles {
		out = append(out, HandleInfo{
			Kind:             h.Kind,
			Device:           h.Device,
			OptimalBatchSize: h.OptimalBatchSize,
			LoadedAt:         h.LoadedAt,
			LoadTime:         h.LoadTime,
			Accesses:         h.Accesses(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// ReleasePressure asks providers to drop buffers and returns freed memory
// to the OS. Best effort.
func (c *Cache) ReleasePressure() {
	c.mu.RLock()
	for _, h := range c.handles {
		if r, ok := h.Provider.(PressureReleaser); ok {
			r.ReleaseMemory()
		}
	}
	c.mu.RUnlock()

	debug.FreeOSMemory()
	c.logger.Debug("memory pressure released")
}

// Close closes every provider implementing io.Closer.
func (c *Cache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	handles := c.handles
	c.handles = make(map[Kind]*Handle)
	c.mu.Unlock()

	var errs []error
	for kind, h := range handles {
		if closer, ok := h.Provider.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", kind, err))
			}
		}
	}
	c.logger.Info("model cache closed", zap.Int("handles", len(handles)))
	return errors.Join(errs...)
}

func (c *Cache) registeredKinds() []Kind {
	kinds := make([]Kind, 0, len(c.factories))
	for k := range c.factories {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func closeProvider(p any) {
	if closer, ok := p.(io.Closer); ok {
		_ = closer.Close()
	}
}
