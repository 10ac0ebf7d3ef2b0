// Package transport exposes the callback ingestor as an http.Handler
// so deployments can mount the platform's event deliveries on any mux.
package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/acmecorp/go-mobile-access/core"
	"github.com/acmecorp/go-mobile-access/webhooks"
)

const defaultCallbackBodyLimit int64 = 1 << 20 // 1 MiB

// Ingestor is the slice of the webhook pipeline the handler drives.
type Ingestor interface {
	Ingest(ctx context.Context, delivery webhooks.Delivery) (webhooks.Receipt, error)
}

type HandlerOption func(*CallbackHandler)

func WithHandlerLogger(logger core.Logger) HandlerOption {
	return func(h *CallbackHandler) {
		h.logger = logger
	}
}

// WithMaxBodyBytes caps how much of a delivery body the handler reads.
func WithMaxBodyBytes(limit int64) HandlerOption {
	return func(h *CallbackHandler) {
		h.maxBodyBytes = limit
	}
}

// CallbackHandler accepts platform event deliveries over HTTP and
// answers with the ingestor's receipt status. Deliveries that fail
// signature verification are answered 401 without touching any state.
type CallbackHandler struct {
	ingestor     Ingestor
	logger       core.Logger
	maxBodyBytes int64
}

func NewCallbackHandler(ingestor Ingestor, opts ...HandlerOption) (*CallbackHandler, error) {
	if ingestor == nil {
		return nil, core.NewError(
			"transport: ingestor is required",
			goerrors.CategoryBadInput,
			core.ErrorBadInput,
			nil,
		)
	}

	handler := &CallbackHandler{
		ingestor:     ingestor,
		maxBodyBytes: defaultCallbackBodyLimit,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(handler)
	}
	handler.logger = glog.Ensure(handler.logger)
	if handler.maxBodyBytes <= 0 {
		handler.maxBodyBytes = defaultCallbackBodyLimit
	}

	return handler, nil
}

func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeCallbackResponse(w, http.StatusMethodNotAllowed, callbackResponse{
			Accepted: false,
			Code:     core.ErrorBadInput,
		})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxBodyBytes+1))
	if err != nil {
		h.logger.Warn("callback body read failed", "error", err)
		writeCallbackResponse(w, http.StatusBadRequest, callbackResponse{
			Accepted: false,
			Code:     core.ErrorBadInput,
		})
		return
	}
	if int64(len(body)) > h.maxBodyBytes {
		h.logger.Warn("callback body exceeds limit", "limit_bytes", h.maxBodyBytes)
		writeCallbackResponse(w, http.StatusRequestEntityTooLarge, callbackResponse{
			Accepted: false,
			Code:     core.ErrorBadInput,
		})
		return
	}

	receipt, err := h.ingestor.Ingest(r.Context(), webhooks.Delivery{
		Headers: flattenHeaders(r.Header),
		Body:    body,
	})

	status := receipt.StatusCode
	if status == 0 {
		if err != nil {
			status = http.StatusInternalServerError
		} else {
			status = http.StatusOK
		}
	}

	response := callbackResponse{Accepted: receipt.Accepted}
	if err != nil {
		response.Code = core.TextCode(err)
		if response.Code == "" {
			response.Code = core.ErrorInternal
		}
		h.logger.Warn("callback delivery rejected", "status", status, "code", response.Code)
	}
	for _, result := range receipt.Results {
		response.Results = append(response.Results, callbackResult{
			EventID: result.EventID,
			Type:    string(result.Type),
			Subject: result.Subject,
			Deduped: result.Deduped,
			Changed: result.Changed,
			Ignored: result.Ignored,
		})
	}

	writeCallbackResponse(w, status, response)
}

type callbackResponse struct {
	Accepted bool             `json:"accepted"`
	Code     string           `json:"code,omitempty"`
	Results  []callbackResult `json:"results,omitempty"`
}

type callbackResult struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Subject string `json:"subject,omitempty"`
	Deduped bool   `json:"deduped,omitempty"`
	Changed bool   `json:"changed,omitempty"`
	Ignored bool   `json:"ignored,omitempty"`
}

func writeCallbackResponse(w http.ResponseWriter, status int, response callbackResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response)
}

func flattenHeaders(headers http.Header) map[string]string {
	if len(headers) == 0 {
		return map[string]string{}
	}
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		if len(values) == 0 {
			flat[key] = ""
			continue
		}
		flat[key] = strings.Join(values, ",")
	}
	return flat
}

var _ http.Handler = (*CallbackHandler)(nil)
