package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	xerrors "taskboard/internal/errors"
	"taskboard/internal/observability/alerting"
	"taskboard/internal/task"
)

type errorBody struct {
	Error string `json:"error"`
}

type messageBody struct {
	ID      int64  `json:"id,omitempty"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func statusFor(code xerrors.Code) int {
	switch code {
	case task.CodeTaskValidation, xerrors.CodeInvalidArgument:
		return http.StatusBadRequest
	case task.CodeTaskNotFound, xerrors.CodeNotFound:
		return http.StatusNotFound
	case xerrors.CodeInitializationFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError 把统一错误映射为 HTTP 状态码和 {error} 响应，服务端错误附带底层原因。
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := xerrors.CodeOf(err)
	status := statusFor(code)

	message := err.Error()
	if e, ok := xerrors.From(err); ok {
		message = e.Message()
		if status >= http.StatusInternalServerError {
			message = e.Detail()
		}
	}

	if status >= http.StatusInternalServerError {
		s.log.Error("请求处理失败",
			slog.String("request_id", RequestIDFrom(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("code", string(code)),
			slog.Any("error", err),
		)
	}
	if xerrors.ShouldAlert(err) {
		s.alert(r, err)
	}
	writeJSON(w, status, errorBody{Error: message})
}

func (s *Server) alert(r *http.Request, err error) {
	if s.opts.Alerts == nil {
		return
	}
	event := alerting.EventFromError(err)
	event.Method = r.Method
	event.Route = routeTemplate(r)
	event.RequestID = RequestIDFrom(r.Context())
	if notifyErr := s.opts.Alerts.Notify(context.WithoutCancel(r.Context()), event); notifyErr != nil {
		s.log.Warn("告警发送失败", slog.Any("error", notifyErr))
	}
}

// routeTemplate 返回匹配到的路由模板，未匹配时退回原始路径。
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}
