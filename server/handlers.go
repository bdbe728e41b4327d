package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/rushteam/reckit/core"
	"github.com/rushteam/reckit/history"
	"github.com/rushteam/reckit/pkg/conv"
	"github.com/rushteam/reckit/pkg/logging"
)

// 对外错误信息
const (
	msgNoIDs        = "No movie IDs provided"
	msgInvalidIDs   = "Invalid movie IDs"
	msgInvalidBody  = "Invalid request body"
	msgInvalidGroup = "Invalid group ID"
	msgNoEmbedding  = "Failed to compute average embedding"
	msgTimeout      = "Request timed out"
	msgInternal     = "Internal server error"
)

const maxBodyBytes = 1 << 20

var validate = validator.New()

type recommendRequest struct {
	WatchedIDs []any `json:"watchedIds" validate:"required,min=1"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "corpus": s.corpusSize})
}

func (s *Server) recommendGroup(w http.ResponseWriter, r *http.Request) {
	res, err := s.rec.ForGroup(r.Context(), chi.URLParam(r, "groupID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, renderIDs(res.IDs))
}

func (s *Server) recommendHistory(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgInvalidBody})
		return
	}
	var req recommendRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgInvalidBody})
			return
		}
	}
	if err := validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgNoIDs})
		return
	}

	ids := make([]string, 0, len(req.WatchedIDs))
	for _, v := range req.WatchedIDs {
		id, ok := conv.ToID(v)
		if !ok {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgInvalidIDs})
			return
		}
		ids = append(ids, id)
	}

	res, err := s.rec.ForHistory(r.Context(), ids)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, renderIDs(res.IDs))
}

// writeError 把领域错误映射为 HTTP 状态码
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := http.StatusInternalServerError, msgInternal
	switch {
	case errors.Is(err, history.ErrInvalidGroup):
		status, msg = http.StatusBadRequest, msgInvalidGroup
	case core.IsNoData(err):
		msg = msgNoEmbedding
	case errors.Is(err, context.DeadlineExceeded):
		status, msg = http.StatusServiceUnavailable, msgTimeout
	}
	logging.Ctx(r.Context()).Error().Err(err).Int("status", status).Msg("recommend failed")
	writeJSON(w, status, errorResponse{Error: msg})
}

// renderIDs 整数形式的 ID 输出为 JSON 数字，其余保持字符串
func renderIDs(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		if n, err := strconv.ParseInt(id, 10, 64); err == nil && strconv.FormatInt(n, 10) == id {
			out[i] = n
			continue
		}
		out[i] = id
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn().Err(err).Msg("write response failed")
	}
}
