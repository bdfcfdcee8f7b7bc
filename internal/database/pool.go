package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/factflow/llm/retry"
)

// =============================================================================
// 🗄️ 结果库连接池
// =============================================================================

// ErrPoolClosed 连接池已关闭
var ErrPoolClosed = errors.New("database pool is closed")

// StatsObserver 接收连接池统计（由 metrics.Collector 实现）
type StatsObserver interface {
	RecordDBConnections(database string, open, idle int)
}

// PoolConfig 连接池参数
type PoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
	// MonitorInterval 为 0 时不启动后台监控
	MonitorInterval time.Duration `yaml:"monitor_interval" json:"monitor_interval"`
}

// DefaultPoolConfig 结果库的默认连接池参数
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdleConns:    4,
		MaxOpenConns:    16,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		MonitorInterval: 30 * time.Second,
	}
}

// Validate 校验连接池参数
func (c PoolConfig) Validate() error {
	switch {
	case c.MaxOpenConns <= 0:
		return fmt.Errorf("max_open_conns must be positive, got %d", c.MaxOpenConns)
	case c.MaxIdleConns <= 0:
		return fmt.Errorf("max_idle_conns must be positive, got %d", c.MaxIdleConns)
	case c.MaxIdleConns > c.MaxOpenConns:
		return fmt.Errorf("max_idle_conns (%d) exceeds max_open_conns (%d)", c.MaxIdleConns, c.MaxOpenConns)
	case c.MonitorInterval < 0:
		return fmt.Errorf("monitor_interval must not be negative, got %s", c.MonitorInterval)
	}
	return nil
}

// PoolManager 持有结果库连接，提供事务重试、探活与统计上报
type PoolManager struct {
	db       *gorm.DB
	sqlDB    *sql.DB
	config   PoolConfig
	name     string
	observer StatsObserver
	txRetry  retry.Policy
	logger   *zap.Logger

	mu      sync.RWMutex
	closed  bool
	lastErr error
	stopCh  chan struct{}
}

// PoolOption 连接池选项
type PoolOption func(*PoolManager)

// WithStatsObserver publishes connection counts under name after each
// successful monitor tick.
func WithStatsObserver(name string, o StatsObserver) PoolOption {
	return func(pm *PoolManager) {
		pm.name = name
		pm.observer = o
	}
}

// NewPoolManager applies config to db's connection pool.
func NewPoolManager(db *gorm.DB, config PoolConfig, logger *zap.Logger, opts ...PoolOption) (*PoolManager, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pool config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	pm := &PoolManager{
		db:      db,
		sqlDB:   sqlDB,
		config:  config,
		name:    db.Dialector.Name(),
		txRetry: DefaultTxRetry(),
		logger:  logger.With(zap.String("component", "result_store_pool")),
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(pm)
	}
	if config.MonitorInterval > 0 {
		go pm.monitor()
	}

	pm.logger.Info("result store pool ready",
		zap.String("database", pm.name),
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Int("max_idle_conns", config.MaxIdleConns))
	return pm, nil
}

// Ping 检查数据库连接
func (pm *PoolManager) Ping(ctx context.Context) error {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	if pm.closed {
		return ErrPoolClosed
	}
	return pm.sqlDB.PingContext(ctx)
}

// Close stops the monitor and closes the underlying connections.
func (pm *PoolManager) Close() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.closed {
		return nil
	}
	pm.closed = true
	close(pm.stopCh)
	pm.logger.Info("closing result store pool")
	return pm.sqlDB.Close()
}

func (pm *PoolManager) monitor() {
	ticker := time.NewTicker(pm.config.MonitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-pm.stopCh:
			return
		case <-ticker.C:
			pm.tick()
		}
	}
}

// tick pings the database and, when it answers, publishes pool stats.
func (pm *PoolManager) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := pm.Ping(ctx)
	pm.mu.Lock()
	recovered := err == nil && pm.lastErr != nil
	pm.lastErr = err
	pm.mu.Unlock()

	switch {
	case err != nil:
		pm.logger.Error("result store unreachable", zap.Error(err))
		return
	case recovered:
		pm.logger.Info("result store reachable again")
	}

	st := pm.Stats()
	if pm.observer != nil {
		pm.observer.RecordDBConnections(pm.name, st.Open, st.Idle)
	}
	pm.logger.Debug("result store pool stats",
		zap.Int("open", st.Open), zap.Int("in_use", st.InUse), zap.Int("idle", st.Idle))
}

// PoolStats 连接池快照，用于 /ready 详情
type PoolStats struct {
	Database  string        `json:"database"`
	MaxOpen   int           `json:"max_open"`
	Open      int           `json:"open"`
	InUse     int           `json:"in_use"`
	Idle      int           `json:"idle"`
	WaitCount int64         `json:"wait_count"`
	WaitTime  time.Duration `json:"wait_time"`
	LastError string        `json:"last_error,omitempty"`
}

// Stats returns a snapshot of the connection pool.
func (pm *PoolManager) Stats() PoolStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	st := pm.sqlDB.Stats()
	out := PoolStats{
		Database:  pm.name,
		MaxOpen:   st.MaxOpenConnections,
		Open:      st.OpenConnections,
		InUse:     st.InUse,
		Idle:      st.Idle,
		WaitCount: st.WaitCount,
		WaitTime:  st.WaitDuration,
	}
	if pm.lastErr != nil {
		out.LastError = pm.lastErr.Error()
	}
	return out
}

// =============================================================================
// 🔄 事务管理
// =============================================================================

// TxFunc 事务内执行的写操作
type TxFunc func(tx *gorm.DB) error

// WithTxRetry 设置事务重试策略
func WithTxRetry(p retry.Policy) PoolOption {
	return func(pm *PoolManager) { pm.txRetry = p }
}

// DefaultTxRetry 死锁、序列化冲突与断连时的重试策略
func DefaultTxRetry() retry.Policy {
	return retry.Policy{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2,
		Jitter:       true,
	}
}

// InTx runs fn in a transaction. Transient failures roll back and run fn
// again in a fresh transaction.
func (pm *PoolManager) InTx(ctx context.Context, fn TxFunc) error {
	policy := pm.txRetry
	policy.Retryable = IsTransientError
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		pm.logger.Warn("transaction failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
	}

	_, err := retry.Do(ctx, policy, func(ctx context.Context) (struct{}, error) {
		pm.mu.RLock()
		closed, db := pm.closed, pm.db
		pm.mu.RUnlock()
		if closed {
			return struct{}{}, ErrPoolClosed
		}
		return struct{}{}, db.WithContext(ctx).Transaction(fn)
	})
	return err
}

// IsTransientError reports whether a failed transaction may succeed when
// run again: deadlocks, serialization failures, lock timeouts and broken
// connections.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return true
		}
		return false
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		// 1205 lock wait timeout, 1213 deadlock
		return myErr.Number == 1205 || myErr.Number == 1213
	}

	msg := strings.ToLower(err.Error())
	for _, s := range transientMessages {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

var transientMessages = []string{
	"deadlock",
	"could not serialize access",
	"connection reset",
	"connection refused",
	"broken pipe",
	"database is locked",
}
