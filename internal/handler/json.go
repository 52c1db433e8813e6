package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/sysu-ecnc-dev/text-distorter/backend/internal/domain"
)

// 请求体最大 1MB，原文本身最多 10000 个字符
const maxRequestBodyBytes = 1 << 20

// 错误响应中 Response.Code 的取值
const (
	codeInvalidRequest  = "invalid_request"
	codeValidation      = "validation_failed"
	codeInvalidWeights  = "invalid_weights"
	codeInternalFailure = "internal_error"
)

func (h *Handler) logInternalServerError(r *http.Request, err error) {
	slog.Error("服务器内部错误", "method", r.Method, "path", r.URL.Path, "error", err)
}

func (h *Handler) readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return errors.New("请求体过大")
		}
		return err
	}
	return nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logInternalServerError(r, err)
	}
}

type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"` // 只在部分错误响应中出现
	Data    any    `json:"data"`
}

func (h *Handler) errorResponse(w http.ResponseWriter, r *http.Request, msg string) {
	h.errorResponseWithCode(w, r, "", msg)
}

func (h *Handler) errorResponseWithCode(w http.ResponseWriter, r *http.Request, code, msg string) {
	h.writeJSON(w, r, http.StatusOK, Response{
		Success: false,
		Message: msg,
		Code:    code,
		Data:    nil,
	})
}

func (h *Handler) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrors):
		h.errorResponseWithCode(w, r, codeValidation, validationErrors[0].Translate(h.translator))
	case errors.Is(err, domain.ErrInvalidWeights):
		h.errorResponseWithCode(w, r, codeInvalidWeights, err.Error())
	default:
		h.errorResponseWithCode(w, r, codeInvalidRequest, err.Error())
	}
}

func (h *Handler) internalServerError(w http.ResponseWriter, r *http.Request, err error) {
	h.logInternalServerError(r, err)
	h.writeJSON(w, r, http.StatusInternalServerError, Response{
		Success: false,
		Message: "服务器内部错误",
		Code:    codeInternalFailure,
		Data:    nil,
	})
}

func (h *Handler) successResponse(w http.ResponseWriter, r *http.Request, msg string, data any) {
	h.writeJSON(w, r, http.StatusOK, Response{
		Success: true,
		Message: msg,
		Data:    data,
	})
}
