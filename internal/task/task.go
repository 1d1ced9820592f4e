package task

import (
	xerrors "taskboard/internal/errors"
)

// Task 描述一条待办记录，status 列在接口层只以 is_completed 布尔值出现。
type Task struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	DueDate     *string `json:"due_date"`
	Completed   bool    `json:"is_completed"`
}

// CreateRequest 是创建任务时接受的字段。
type CreateRequest struct {
	Title       string  `json:"title" validate:"required"`
	Description string  `json:"description"`
	DueDate     *string `json:"due_date"`
}

// Patch 描述一次部分更新：nil 表示字段未提供。
// DueDate 需要区分"未提供"和"置空"，因此用 DueDateSet 标记是否出现。
type Patch struct {
	Title       *string
	Description *string
	DueDate     *string
	DueDateSet  bool
	Completed   *bool
}

// Empty 判断补丁中是否没有任何可更新字段。
func (p Patch) Empty() bool {
	return p.Title == nil && p.Description == nil && !p.DueDateSet && p.Completed == nil
}

// SetDueDate 标记截止日期被提供；空字符串被规范化为 NULL。
func (p *Patch) SetDueDate(value *string) {
	p.DueDateSet = true
	p.DueDate = normalizeDueDate(value)
}

const (
	CodeTaskNotFound   xerrors.Code = "TASK_NOT_FOUND"
	CodeTaskValidation xerrors.Code = "TASK_VALIDATION_FAILED"
)

var (
	// ErrTaskNotFound 表示指定的任务不存在。
	ErrTaskNotFound = xerrors.New(CodeTaskNotFound, "task not found")
)

func init() {
	xerrors.Register(CodeTaskNotFound, xerrors.Attributes{
		Message:  "task not found",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeTaskValidation, xerrors.Attributes{
		Message:  "task validation failed",
		Severity: xerrors.SeverityInfo,
	})
}

func normalizeDueDate(value *string) *string {
	if value == nil || *value == "" {
		return nil
	}
	v := *value
	return &v
}

func encodeStatus(completed bool) int {
	if completed {
		return 1
	}
	return 0
}

func decodeStatus(status int64) bool {
	return status != 0
}

func cloneTask(task *Task) *Task {
	clone := *task
	if task.DueDate != nil {
		due := *task.DueDate
		clone.DueDate = &due
	}
	return &clone
}
