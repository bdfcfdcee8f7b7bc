package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/BaSui01/factflow/api"
	"github.com/BaSui01/factflow/internal/database"
	"github.com/BaSui01/factflow/pipeline"
	"github.com/BaSui01/factflow/types"
	"go.uber.org/zap"
)

// DefaultMaxBatchClaims 批量请求的默认声明数上限
const DefaultMaxBatchClaims = 64

// ClaimVerifier 声明验证管线
type ClaimVerifier interface {
	Verify(ctx context.Context, text string, opts pipeline.Options) (*types.VerificationResult, error)
	VerifyBatch(ctx context.Context, texts []string, opts pipeline.Options) []pipeline.BatchItem
	ValidateOptions(opts pipeline.Options) error
}

// ResultReader 已记录结果的只读访问
type ResultReader interface {
	Get(ctx context.Context, id string) (*types.VerificationResult, error)
	List(ctx context.Context, tenantID string, limit int) ([]*types.VerificationResult, error)
}

// VerifyHandler 声明验证 API 处理器
type VerifyHandler struct {
	verifier  ClaimVerifier
	results   ResultReader
	maxClaims int
	logger    *zap.Logger
}

// VerifyHandlerOption 配置 VerifyHandler
type VerifyHandlerOption func(*VerifyHandler)

// WithResultReader 启用结果查询端点
func WithResultReader(r ResultReader) VerifyHandlerOption {
	return func(h *VerifyHandler) { h.results = r }
}

// WithMaxBatchClaims 设置批量请求的声明数上限
func WithMaxBatchClaims(n int) VerifyHandlerOption {
	return func(h *VerifyHandler) {
		if n > 0 {
			h.maxClaims = n
		}
	}
}

// NewVerifyHandler 创建声明验证处理器
func NewVerifyHandler(verifier ClaimVerifier, logger *zap.Logger, opts ...VerifyHandlerOption) *VerifyHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &VerifyHandler{
		verifier:  verifier,
		maxClaims: DefaultMaxBatchClaims,
		logger:    logger.With(zap.String("handler", "verify")),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register 在 mux 上注册路由
func (h *VerifyHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/verify", h.HandleVerify)
	mux.HandleFunc("POST /v1/verify/batch", h.HandleVerifyBatch)
	if h.results != nil {
		mux.HandleFunc("GET /v1/results/{id}", h.HandleGetResult)
		mux.HandleFunc("GET /v1/results", h.HandleListResults)
	}
}

// HandleVerify 处理单条声明验证
// @Summary 验证声明
// @Tags 验证
// @Accept json
// @Produce json
// @Param request body api.VerifyRequest true "验证请求"
// @Success 200 {object} Response "验证结果"
// @Failure 400 {object} Response "请求无效"
// @Failure 503 {object} Response "推理服务不可用"
// @Router /v1/verify [post]
func (h *VerifyHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(h.logger, r)
	if !ValidateContentType(w, r, logger) {
		return
	}

	var req api.VerifyRequest
	if err := DecodeJSONBody(w, r, &req, logger); err != nil {
		return
	}
	if strings.TrimSpace(req.Claim) == "" {
		WriteError(w, types.NewInvalidRequestError("claim is required"), logger)
		return
	}

	opts := toOptions(req.VerifyOptions)
	if err := h.verifier.ValidateOptions(opts); err != nil {
		writeVerifyError(w, err, logger)
		return
	}

	result, err := h.verifier.Verify(r.Context(), req.Claim, opts)
	if err != nil {
		writeVerifyError(w, err, logger)
		return
	}

	WriteSuccess(w, api.NewVerifyResponse(result))
}

// HandleVerifyBatch 处理批量声明验证，单条失败不影响其他声明
// @Summary 批量验证声明
// @Tags 验证
// @Accept json
// @Produce json
// @Param request body api.BatchVerifyRequest true "批量验证请求"
// @Success 200 {object} Response "批量结果"
// @Failure 400 {object} Response "请求无效"
// @Router /v1/verify/batch [post]
func (h *VerifyHandler) HandleVerifyBatch(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(h.logger, r)
	if !ValidateContentType(w, r, logger) {
		return
	}

	var req api.BatchVerifyRequest
	if err := DecodeJSONBody(w, r, &req, logger); err != nil {
		return
	}
	if len(req.Claims) == 0 {
		WriteError(w, types.NewInvalidRequestError("claims must not be empty"), logger)
		return
	}
	if len(req.Claims) > h.maxClaims {
		WriteError(w, types.NewInvalidRequestError(
			"too many claims: at most "+strconv.Itoa(h.maxClaims)+" per request"), logger)
		return
	}

	opts := toOptions(req.VerifyOptions)
	if err := h.verifier.ValidateOptions(opts); err != nil {
		writeVerifyError(w, err, logger)
		return
	}

	items := h.verifier.VerifyBatch(r.Context(), req.Claims, opts)
	resp := api.BatchVerifyResponse{Results: make([]api.BatchVerifyItem, len(items))}
	for i, item := range items {
		out := api.BatchVerifyItem{Index: i, Claim: req.Claims[i]}
		if item.Err != nil {
			out.Error = errorBody(item.Err)
			resp.Failed++
		} else {
			out.Result = api.NewVerifyResponse(item.Result)
			resp.Succeeded++
		}
		resp.Results[i] = out
	}

	WriteSuccess(w, resp)
}

// HandleGetResult 按 ID 读取已记录的结果
// @Summary 读取验证结果
// @Tags 验证
// @Produce json
// @Param id path string true "结果 ID"
// @Success 200 {object} Response "验证结果"
// @Failure 404 {object} Response "结果不存在"
// @Router /v1/results/{id} [get]
func (h *VerifyHandler) HandleGetResult(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(h.logger, r)
	id := r.PathValue("id")
	if id == "" {
		WriteError(w, types.NewInvalidRequestError("result id is required"), logger)
		return
	}

	result, err := h.results.Get(r.Context(), id)
	if errors.Is(err, database.ErrResultNotFound) {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrInvalidRequest, "result not found", logger)
		return
	}
	if err != nil {
		WriteError(w, types.NewError(types.ErrInternalError, "failed to read result").WithCause(err), logger)
		return
	}

	WriteSuccess(w, api.NewVerifyResponse(result))
}

// HandleListResults 列出最近的结果，可按 tenant_id 过滤
// @Summary 列出验证结果
// @Tags 验证
// @Produce json
// @Param tenant_id query string false "租户 ID"
// @Param limit query int false "返回条数"
// @Success 200 {object} Response "结果列表"
// @Router /v1/results [get]
func (h *VerifyHandler) HandleListResults(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(h.logger, r)
	q := r.URL.Query()

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			WriteError(w, types.NewInvalidRequestError("limit must be a non-negative integer"), logger)
			return
		}
		limit = n
	}

	results, err := h.results.List(r.Context(), q.Get("tenant_id"), limit)
	if err != nil {
		WriteError(w, types.NewError(types.ErrInternalError, "failed to list results").WithCause(err), logger)
		return
	}

	resp := api.ResultListResponse{Results: make([]*api.VerifyResponse, 0, len(results)), Count: len(results)}
	for _, res := range results {
		resp.Results = append(resp.Results, api.NewVerifyResponse(res))
	}
	WriteSuccess(w, resp)
}

func toOptions(o api.VerifyOptions) pipeline.Options {
	return pipeline.Options{
		MaxEvidence:   o.MaxEvidence,
		VectorWeight:  o.VectorWeight,
		KeywordWeight: o.KeywordWeight,
		Filters:       o.Filters,
		TenantID:      o.TenantID,
		TimeBudget:    o.TimeBudget(),
	}
}

// asAPIError 将管线错误归一为 types.Error
func asAPIError(err error) *types.Error {
	if e, ok := types.AsError(err); ok {
		return e
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return types.NewError(types.ErrUpstreamTimeout, "verification timed out").WithCause(err)
	case errors.Is(err, context.Canceled):
		return types.NewError(types.ErrServiceUnavailable, "verification canceled").WithCause(err)
	default:
		return types.NewError(types.ErrInternalError, "verification failed").WithCause(err)
	}
}

func writeVerifyError(w http.ResponseWriter, err error, logger *zap.Logger) {
	apiErr := asAPIError(err)
	var se *pipeline.StageError
	if errors.As(err, &se) {
		logger = logger.With(zap.String("stage", string(se.Stage)))
	}
	WriteError(w, apiErr, logger)
}

func errorBody(err error) *api.ErrorBody {
	apiErr := asAPIError(err)
	body := &api.ErrorBody{
		Code:      string(apiErr.Code),
		Message:   apiErr.Message,
		Retryable: apiErr.Retryable,
	}
	var se *pipeline.StageError
	if errors.As(err, &se) {
		body.Stage = string(se.Stage)
	}
	return body
}
