package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/factflow/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrResultNotFound 结果不存在
var ErrResultNotFound = errors.New("verification result not found")

// QueryObserver 接收查询耗时（由 metrics.Collector 实现）
type QueryObserver interface {
	RecordDBQuery(database, operation string, duration time.Duration)
}

// VerificationRecord verification_results 表的行
type VerificationRecord struct {
	ID            string                 `gorm:"primaryKey;type:varchar(64)"`
	Claim         string                 `gorm:"type:text;not null"`
	TenantID      string                 `gorm:"type:varchar(128);not null;default:'';index:idx_verification_results_tenant_created,priority:1"`
	Verdict       string                 `gorm:"type:varchar(32);not null;index:idx_verification_results_verdict"`
	Confidence    float64                `gorm:"not null"`
	Explanation   string                 `gorm:"type:text;not null"`
	RetrievalMode string                 `gorm:"type:varchar(32);not null;default:''"`
	Evidence      []types.ScoredEvidence `gorm:"serializer:json;not null"`
	Votes         types.Votes            `gorm:"serializer:json;not null"`
	Degradations  []types.Degradation    `gorm:"serializer:json;not null"`
	ProcessingMS  int64                  `gorm:"column:processing_ms;not null;default:0"`
	CreatedAt     time.Time              `gorm:"not null;index:idx_verification_results_tenant_created,priority:2"`
}

// TableName 表名
func (VerificationRecord) TableName() string {
	return "verification_results"
}

func recordFromResult(r *types.VerificationResult) VerificationRecord {
	evidence := r.Evidence
	if evidence == nil {
		evidence = []types.ScoredEvidence{}
	}
	degradations := r.Degradations
	if degradations == nil {
		degradations = []types.Degradation{}
	}
	return VerificationRecord{
		ID:            r.ID,
		Claim:         r.Claim,
		TenantID:      r.TenantID,
		Verdict:       string(r.Verdict),
		Confidence:    r.Confidence,
		Explanation:   r.Explanation,
		RetrievalMode: string(r.RetrievalMode),
		Evidence:      evidence,
		Votes:         r.Votes,
		Degradations:  degradations,
		ProcessingMS:  r.ProcessingTime.Milliseconds(),
		CreatedAt:     r.CreatedAt,
	}
}

func (rec VerificationRecord) toResult() *types.VerificationResult {
	out := &types.VerificationResult{
		ID:             rec.ID,
		Claim:          rec.Claim,
		TenantID:       rec.TenantID,
		Verdict:        types.Verdict(rec.Verdict),
		Confidence:     rec.Confidence,
		Evidence:       rec.Evidence,
		Explanation:    rec.Explanation,
		Votes:          rec.Votes,
		RetrievalMode:  types.RetrievalMode(rec.RetrievalMode),
		ProcessingTime: time.Duration(rec.ProcessingMS) * time.Millisecond,
		CreatedAt:      rec.CreatedAt,
	}
	if len(rec.Degradations) > 0 {
		out.Degradations = rec.Degradations
	}
	for _, e := range rec.Evidence {
		switch e.Result.Label {
		case types.LabelEntailment:
			out.Counts.Entailment++
		case types.LabelContradiction:
			out.Counts.Contradiction++
		case types.LabelNeutral:
			out.Counts.Neutral++
		}
	}
	return out
}

// ResultRepository 持久化验证结果
type ResultRepository struct {
	db       *gorm.DB
	tx       TxRunner
	observer QueryObserver
	logger   *zap.Logger
}

// TxRunner 以事务执行写操作，PoolManager 实现了带重试的版本
type TxRunner interface {
	InTx(ctx context.Context, fn TxFunc) error
}

// NewResultRepository 创建结果仓储
func NewResultRepository(db *gorm.DB, logger *zap.Logger) *ResultRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultRepository{
		db:     db,
		logger: logger.With(zap.String("component", "result_repository")),
	}
}

// WithObserver 设置查询观察者
func (r *ResultRepository) WithObserver(o QueryObserver) *ResultRepository {
	r.observer = o
	return r
}

// WithTxRunner 写入经由 runner 的事务执行
func (r *ResultRepository) WithTxRunner(runner TxRunner) *ResultRepository {
	r.tx = runner
	return r
}

// AutoMigrate creates the results table for databases not managed by golang-migrate.
func (r *ResultRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&VerificationRecord{})
}

// Record 写入一条验证结果；重复 ID 覆盖旧记录
func (r *ResultRepository) Record(ctx context.Context, result *types.VerificationResult) error {
	if result == nil {
		return fmt.Errorf("nil verification result")
	}
	if result.ID == "" {
		result.ID = uuid.NewString()
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}

	rec := recordFromResult(result)
	upsert := func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error
	}

	start := time.Now()
	var err error
	if r.tx != nil {
		err = r.tx.InTx(ctx, upsert)
	} else {
		err = upsert(r.db.WithContext(ctx))
	}
	r.observe("insert_result", start)
	if err != nil {
		return fmt.Errorf("record verification result %s: %w", result.ID, err)
	}

	r.logger.Debug("verification result recorded",
		zap.String("id", result.ID),
		zap.String("verdict", string(result.Verdict)),
	)
	return nil
}

// Get 按 ID 读取结果
func (r *ResultRepository) Get(ctx context.Context, id string) (*types.VerificationResult, error) {
	var rec VerificationRecord
	start := time.Now()
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&rec).Error
	r.observe("get_result", start)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get verification result %s: %w", id, err)
	}
	return rec.toResult(), nil
}

// List 返回租户最近的结果，按创建时间倒序；tenantID 为空时不过滤
func (r *ResultRepository) List(ctx context.Context, tenantID string, limit int) ([]*types.VerificationResult, error) {
	if limit <= 0 {
		limit = 50
	}

	q := r.db.WithContext(ctx).Model(&VerificationRecord{})
	if tenantID != "" {
		q = q.Where("tenant_id = ?", tenantID)
	}

	var recs []VerificationRecord
	start := time.Now()
	err := q.Order("created_at DESC").Order("id ASC").Limit(limit).Find(&recs).Error
	r.observe("list_results", start)
	if err != nil {
		return nil, fmt.Errorf("list verification results: %w", err)
	}

	out := make([]*types.VerificationResult, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.toResult())
	}
	return out, nil
}

func (r *ResultRepository) observe(op string, start time.Time) {
	if r.observer != nil {
		r.observer.RecordDBQuery(r.db.Dialector.Name(), op, time.Since(start))
	}
}
