package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	xerrors "taskboard/internal/errors"
	"taskboard/internal/task"
)

const (
	msgTaskCreated = "任务添加成功"
	msgTaskUpdated = "任务更新成功"
	msgTaskDeleted = "任务删除成功"
)

var errInvalidBody = xerrors.New(xerrors.CodeInvalidArgument, "请求体必须是 JSON 对象")

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.tasks.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []*task.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req task.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体解析失败"))
		return
	}
	created, err := s.tasks.Create(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, messageBody{ID: created.ID, Message: msgTaskCreated})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(r)
	if !ok {
		s.writeError(w, r, task.ErrTaskNotFound)
		return
	}
	found, err := s.tasks.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(r)
	if !ok {
		s.writeError(w, r, task.ErrTaskNotFound)
		return
	}
	var fields map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		s.writeError(w, r, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体解析失败"))
		return
	}
	if fields == nil {
		s.writeError(w, r, errInvalidBody)
		return
	}
	patch, err := decodePatch(fields)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.tasks.Update(r.Context(), id, patch); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: msgTaskUpdated})
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(r)
	if !ok {
		s.writeError(w, r, task.ErrTaskNotFound)
		return
	}
	if err := s.tasks.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: msgTaskDeleted})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.tasks.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// taskID 解析路径中的任务 ID；超出 int64 范围的数字按不存在处理。
func taskID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// decodePatch 只挑选白名单字段，其余键被忽略。
func decodePatch(fields map[string]json.RawMessage) (task.Patch, error) {
	var patch task.Patch

	if raw, ok := fields["title"]; ok {
		if isNull(raw) {
			return patch, xerrors.New(task.CodeTaskValidation, "标题不能为空", xerrors.WithMetadata("field", "title"))
		}
		var title string
		if err := json.Unmarshal(raw, &title); err != nil {
			return patch, fieldTypeError("title", err)
		}
		patch.Title = &title
	}

	if raw, ok := fields["description"]; ok {
		description := ""
		if !isNull(raw) {
			if err := json.Unmarshal(raw, &description); err != nil {
				return patch, fieldTypeError("description", err)
			}
		}
		patch.Description = &description
	}

	if raw, ok := fields["due_date"]; ok {
		var due *string
		if err := json.Unmarshal(raw, &due); err != nil {
			return patch, fieldTypeError("due_date", err)
		}
		patch.SetDueDate(due)
	}

	if raw, ok := fields["is_completed"]; ok {
		var completed bool
		if isNull(raw) {
			return patch, fieldTypeError("is_completed", nil)
		}
		if err := json.Unmarshal(raw, &completed); err != nil {
			return patch, fieldTypeError("is_completed", err)
		}
		patch.Completed = &completed
	}

	return patch, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func fieldTypeError(field string, cause error) error {
	message := "字段 " + field + " 类型不正确"
	if cause == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, message, xerrors.WithMetadata("field", field))
	}
	return xerrors.Wrap(xerrors.CodeInvalidArgument, cause, message, xerrors.WithMetadata("field", field))
}
