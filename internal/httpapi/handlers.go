package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/equilix-backend/internal/flow"
	"github.com/yungbote/equilix-backend/internal/platform/apierr"
	"github.com/yungbote/equilix-backend/internal/platform/logger"
	"github.com/yungbote/equilix-backend/internal/store"
)

const (
	maxBatchCalls     = 16
	defaultStatsRange = 24 * time.Hour
)

type handlers struct {
	log         *logger.Logger
	registry    *flow.Registry
	invocations store.InvocationRepo
	ready       func(ctx context.Context) error
}

type invokeResponse struct {
	Flow       string         `json:"flow"`
	Model      string         `json:"model"`
	Output     map[string]any `json:"output"`
	Fallback   bool           `json:"fallback"`
	DurationMS int64          `json:"durationMs"`
}

func newInvokeResponse(res *flow.Result) invokeResponse {
	return invokeResponse{
		Flow:       res.Flow,
		Model:      res.Model,
		Output:     res.Output,
		Fallback:   res.Fallback,
		DurationMS: res.Duration.Milliseconds(),
	}
}

type batchRequest struct {
	Calls []flow.Call `json:"calls"`
}

type batchItem struct {
	Flow   string          `json:"flow"`
	Result *invokeResponse `json:"result,omitempty"`
	Error  *errorBody      `json:"error,omitempty"`
}

type batchResponse struct {
	Results []batchItem `json:"results"`
}

func (h *handlers) healthz(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (h *handlers) readyz(c *gin.Context) {
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.ready(ctx); err != nil {
			h.log.Warn("not ready", "error", err)
			c.String(http.StatusServiceUnavailable, "unavailable")
			return
		}
	}
	c.String(http.StatusOK, "ok")
}

func (h *handlers) listFlows(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"flows": h.registry.Definitions()})
}

func (h *handlers) invokeFlow(c *gin.Context) {
	input, err := decodeObject(c.Request.Body)
	if err != nil {
		respondError(c, err)
		return
	}
	var opts []flow.InvokeOption
	if m := strings.TrimSpace(c.Query("model")); m != "" {
		opts = append(opts, flow.WithModel(m))
	}
	res, err := h.registry.Invoke(c.Request.Context(), c.Param("name"), input, opts...)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newInvokeResponse(res))
}

// invokeBatch always answers 200 once the batch itself is well formed; each
// item carries its own result or error.
func (h *handlers) invokeBatch(c *gin.Context) {
	var req batchRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		respondError(c, bodyError(err))
		return
	}
	if len(req.Calls) == 0 {
		badRequest(c, flow.ErrEmptyBatch.Error())
		return
	}
	if len(req.Calls) > maxBatchCalls {
		badRequest(c, "batch has more than "+strconv.Itoa(maxBatchCalls)+" calls")
		return
	}
	for i := range req.Calls {
		if req.Calls[i].Input == nil {
			req.Calls[i].Input = map[string]any{}
		}
	}

	outcomes, err := h.registry.InvokeAll(c.Request.Context(), req.Calls)
	if err != nil {
		respondError(c, err)
		return
	}
	resp := batchResponse{Results: make([]batchItem, len(outcomes))}
	for i, o := range outcomes {
		item := batchItem{Flow: o.Flow}
		if o.Err != nil {
			body := errorBodyFor(o.Err)
			item.Error = &body
		} else {
			r := newInvokeResponse(o.Result)
			item.Result = &r
		}
		resp.Results[i] = item
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) listInvocations(c *gin.Context) {
	if h.invocations == nil {
		respondError(c, errStoreDisabled)
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	recs, err := h.invocations.ListRecent(c.Request.Context(), strings.TrimSpace(c.Query("flow")), limit)
	if err != nil {
		h.log.Error("list invocations failed", "error", err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invocations": recs})
}

// invocationStats accepts since as RFC 3339 or as a duration back from now.
func (h *handlers) invocationStats(c *gin.Context) {
	if h.invocations == nil {
		respondError(c, errStoreDisabled)
		return
	}
	since := time.Now().Add(-defaultStatsRange)
	if raw := strings.TrimSpace(c.Query("since")); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			since = t
		} else if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			since = time.Now().Add(-d)
		} else {
			badRequest(c, "since must be an RFC 3339 time or a duration like 24h")
			return
		}
	}
	stats, err := h.invocations.Stats(c.Request.Context(), since)
	if err != nil {
		h.log.Error("invocation stats failed", "error", err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"since": since.UTC(), "stats": stats})
}

var errStoreDisabled = apierr.New(http.StatusServiceUnavailable, "store_disabled", errors.New("invocation store is disabled"))

// decodeObject reads a JSON object. An empty body is an empty input.
func decodeObject(body io.Reader) (map[string]any, error) {
	var input map[string]any
	if body == nil {
		return map[string]any{}, nil
	}
	if err := json.NewDecoder(body).Decode(&input); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]any{}, nil
		}
		return nil, bodyError(err)
	}
	if input == nil {
		input = map[string]any{}
	}
	return input, nil
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return err
	}
	return apierr.New(http.StatusBadRequest, "bad_request", err).WithMessage("request body must be a JSON object")
}
