package task

import (
	"context"
	"sort"
	"sync"

	xerrors "taskboard/internal/errors"
)

// MemoryStore 以内存方式保存任务，排序与不存在语义与 SQLStore 一致，主要用于测试。
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	tasks  map[int64]*Task
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[int64]*Task)}
}

// List 实现 Store 接口。
func (m *MemoryStore) List(_ context.Context) ([]*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]*Task, 0, len(m.tasks))
	for _, task := range m.tasks {
		results = append(results, cloneTask(task))
	}
	sort.Slice(results, func(i, j int) bool {
		return lessTask(results[i], results[j])
	})
	return results, nil
}

// Get 返回任务。
func (m *MemoryStore) Get(_ context.Context, id int64) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return cloneTask(task), nil
}

// Create 分配自增 ID 并保存任务。
func (m *MemoryStore) Create(_ context.Context, task *Task) error {
	if task == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "task 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	task.ID = m.nextID
	task.DueDate = normalizeDueDate(task.DueDate)
	task.Completed = false
	m.tasks[task.ID] = cloneTask(task)
	return nil
}

// Update 应用补丁中出现的字段。
func (m *MemoryStore) Update(_ context.Context, id int64, patch Patch) error {
	if patch.Empty() {
		return xerrors.New(CodeTaskValidation, "没有提供可更新的字段")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	if patch.Title != nil {
		task.Title = *patch.Title
	}
	if patch.Description != nil {
		task.Description = *patch.Description
	}
	if patch.DueDateSet {
		task.DueDate = normalizeDueDate(patch.DueDate)
	}
	if patch.Completed != nil {
		task.Completed = *patch.Completed
	}
	return nil
}

// Delete 删除任务。
func (m *MemoryStore) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return ErrTaskNotFound
	}
	delete(m.tasks, id)
	return nil
}

// Ping 对内存存储无需操作。
func (m *MemoryStore) Ping(context.Context) error {
	return nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

// lessTask 复刻 ORDER BY status ASC, due_date ASC, id ASC，NULL 截止日期排在最前。
func lessTask(a, b *Task) bool {
	if a.Completed != b.Completed {
		return !a.Completed
	}
	switch {
	case a.DueDate == nil && b.DueDate != nil:
		return true
	case a.DueDate != nil && b.DueDate == nil:
		return false
	case a.DueDate != nil && b.DueDate != nil && *a.DueDate != *b.DueDate:
		return *a.DueDate < *b.DueDate
	}
	return a.ID < b.ID
}

var _ Store = (*MemoryStore)(nil)
