package database

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/factflow/config"
	"github.com/BaSui01/factflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupResultRepository(t *testing.T) (*ResultRepository, *gorm.DB) {
	t.Helper()

	db, err := Open(config.DatabaseConfig{Driver: "sqlite", Name: ":memory:"}, zap.NewNop())
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	repo := NewResultRepository(db, zap.NewNop())
	require.NoError(t, repo.AutoMigrate(context.Background()))
	return repo, db
}

func sampleResult(id, tenant string, created time.Time) *types.VerificationResult {
	rank := 1
	sim := 0.82
	return &types.VerificationResult{
		ID:         id,
		Claim:      "water boils at 100C at sea level",
		TenantID:   tenant,
		Verdict:    types.VerdictSupported,
		Confidence: 0.9,
		Evidence: []types.ScoredEvidence{
			{
				Candidate: types.EvidenceCandidate{EvidenceID: "e1", Content: "boiling point", RankVector: &rank, Similarity: &sim},
				Result:    types.NewEntailmentResult("e1", [3]float64{0.9, 0.05, 0.05}),
				Weight:    0.738,
			},
			{
				Candidate: types.EvidenceCandidate{EvidenceID: "e2", Content: "altitude"},
				Result:    types.NewEntailmentResult("e2", [3]float64{0.1, 0.1, 0.8}),
				Weight:    0.8,
			},
		},
		Explanation:    "1 of 2 evidence items entail the claim",
		Votes:          types.Votes{Entailment: 0.738, Neutral: 0.8},
		Counts:         types.LabelCounts{Entailment: 1, Neutral: 1},
		RetrievalMode:  types.RetrievalHybrid,
		ProcessingTime: 1500 * time.Millisecond,
		CreatedAt:      created,
	}
}

func TestResultRepository_RecordAndGet(t *testing.T) {
	repo, _ := setupResultRepository(t)
	ctx := context.Background()

	in := sampleResult("r1", "acme", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	in.AddDegradation(types.ErrBudgetExceeded, types.StageScoring, "budget exhausted")
	require.NoError(t, repo.Record(ctx, in))

	got, err := repo.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, in.Claim, got.Claim)
	assert.Equal(t, "acme", got.TenantID)
	assert.Equal(t, types.VerdictSupported, got.Verdict)
	assert.InDelta(t, 0.9, got.Confidence, 1e-9)
	assert.Equal(t, types.RetrievalHybrid, got.RetrievalMode)
	assert.Equal(t, 1500*time.Millisecond, got.ProcessingTime)
	assert.Equal(t, in.Votes, got.Votes)
	assert.Equal(t, in.Counts, got.Counts)
	assert.Equal(t, in.Degradations, got.Degradations)
	require.Len(t, got.Evidence, 2)
	assert.Equal(t, "e1", got.Evidence[0].Candidate.EvidenceID)
	require.NotNil(t, got.Evidence[0].Candidate.Similarity)
	assert.InDelta(t, 0.82, *got.Evidence[0].Candidate.Similarity, 1e-9)
	assert.Equal(t, types.LabelEntailment, got.Evidence[0].Result.Label)
	assert.True(t, in.CreatedAt.Equal(got.CreatedAt))
}

func TestResultRepository_RecordAssignsIDAndTimestamp(t *testing.T) {
	repo, _ := setupResultRepository(t)
	ctx := context.Background()

	in := sampleResult("", "", time.Time{})
	in.Evidence = nil
	require.NoError(t, repo.Record(ctx, in))
	assert.NotEmpty(t, in.ID)
	assert.False(t, in.CreatedAt.IsZero())

	got, err := repo.Get(ctx, in.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Evidence)
	assert.Nil(t, got.Degradations)
}

func TestResultRepository_RecordOverwrites(t *testing.T) {
	repo, _ := setupResultRepository(t)
	ctx := context.Background()

	in := sampleResult("r1", "acme", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, repo.Record(ctx, in))

	in.Verdict = types.VerdictRefuted
	in.Confidence = 0.4
	require.NoError(t, repo.Record(ctx, in))

	got, err := repo.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, types.VerdictRefuted, got.Verdict)
	assert.InDelta(t, 0.4, got.Confidence, 1e-9)
}

func TestResultRepository_RecordNil(t *testing.T) {
	repo, _ := setupResultRepository(t)
	assert.Error(t, repo.Record(context.Background(), nil))
}

func TestResultRepository_GetNotFound(t *testing.T) {
	repo, _ := setupResultRepository(t)
	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrResultNotFound)
}

func TestResultRepository_List(t *testing.T) {
	repo, _ := setupResultRepository(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Record(ctx, sampleResult("a", "acme", base)))
	require.NoError(t, repo.Record(ctx, sampleResult("b", "acme", base.Add(time.Hour))))
	require.NoError(t, repo.Record(ctx, sampleResult("c", "globex", base.Add(2*time.Hour))))

	acme, err := repo.List(ctx, "acme", 10)
	require.NoError(t, err)
	require.Len(t, acme, 2)
	assert.Equal(t, "b", acme[0].ID)
	assert.Equal(t, "a", acme[1].ID)

	all, err := repo.List(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "c", all[0].ID)
	assert.Equal(t, "b", all[1].ID)
}

type countingTx struct {
	inner TxRunner
	calls int
}

func (c *countingTx) InTx(ctx context.Context, fn TxFunc) error {
	c.calls++
	return c.inner.InTx(ctx, fn)
}

func TestResultRepository_RecordRunsInPoolTransaction(t *testing.T) {
	repo, db := setupResultRepository(t)
	pm, err := NewPoolManager(db, PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1}, zap.NewNop())
	require.NoError(t, err)

	runner := &countingTx{inner: pm}
	repo.WithTxRunner(runner)
	ctx := context.Background()

	require.NoError(t, repo.Record(ctx, sampleResult("tx1", "acme", time.Now().UTC())))
	assert.Equal(t, 1, runner.calls)

	got, err := repo.Get(ctx, "tx1")
	require.NoError(t, err)
	assert.Equal(t, "acme", got.TenantID)
}

type failingTx struct{}

func (failingTx) InTx(context.Context, TxFunc) error { return ErrPoolClosed }

func TestResultRepository_RecordReportsTxFailure(t *testing.T) {
	repo, _ := setupResultRepository(t)
	repo.WithTxRunner(failingTx{})

	err := repo.Record(context.Background(), sampleResult("tx2", "acme", time.Now().UTC()))
	assert.ErrorIs(t, err, ErrPoolClosed)

	_, err = repo.Get(context.Background(), "tx2")
	assert.ErrorIs(t, err, ErrResultNotFound)
}

type queryRecorder struct {
	mu  sync.Mutex
	ops []string
}

func (q *queryRecorder) RecordDBQuery(database, operation string, _ time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ops = append(q.ops, database+":"+operation)
}

func TestResultRepository_Observer(t *testing.T) {
	repo, _ := setupResultRepository(t)
	rec := &queryRecorder{}
	repo.WithObserver(rec)
	ctx := context.Background()

	require.NoError(t, repo.Record(ctx, sampleResult("r1", "acme", time.Now().UTC())))
	_, err := repo.Get(ctx, "r1")
	require.NoError(t, err)
	_, err = repo.List(ctx, "acme", 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"sqlite:insert_result", "sqlite:get_result", "sqlite:list_results"}, rec.ops)
}

func TestDialector(t *testing.T) {
	tests := []struct {
		driver  string
		name    string
		wantErr bool
	}{
		{driver: "postgres", name: "postgres"},
		{driver: "mysql", name: "mysql"},
		{driver: "sqlite", name: "sqlite"},
		{driver: "sqlite3", name: "sqlite"},
		{driver: "", wantErr: true},
		{driver: "oracle", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			d, err := Dialector(config.DatabaseConfig{Driver: tt.driver, Name: "factflow"})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.name, d.Name())
		})
	}
}

func TestPoolConfigFrom(t *testing.T) {
	pc := PoolConfigFrom(config.DatabaseConfig{MaxOpenConns: 4, MaxIdleConns: 8, ConnMaxLifetime: time.Minute})
	assert.Equal(t, 4, pc.MaxOpenConns)
	assert.Equal(t, 4, pc.MaxIdleConns)
	assert.Equal(t, time.Minute, pc.ConnMaxLifetime)
	assert.NoError(t, pc.Validate())

	def := PoolConfigFrom(config.DatabaseConfig{})
	assert.Equal(t, DefaultPoolConfig(), def)

	mem := PoolConfigFrom(config.DatabaseConfig{Driver: "sqlite", Name: ":memory:", MaxIdleConns: 5})
	assert.Equal(t, 1, mem.MaxOpenConns)
	assert.Equal(t, 1, mem.MaxIdleConns)
}
