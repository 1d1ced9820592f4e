package task

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType 标识任务变更的类型。
type EventType string

const (
	EventCreated EventType = "task.created"
	EventUpdated EventType = "task.updated"
	EventDeleted EventType = "task.deleted"
)

// Event 是任务变更后对外投递的通知。删除事件不携带 Task。
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	TaskID     int64     `json:"task_id"`
	Task       *Task     `json:"task,omitempty"`
	OccurredAt int64     `json:"occurred_at"`
}

// NewEvent 构造带有唯一 ID 与时间戳的事件。
func NewEvent(typ EventType, taskID int64, task *Task) Event {
	var snapshot *Task
	if task != nil {
		snapshot = cloneTask(task)
	}
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		TaskID:     taskID,
		Task:       snapshot,
		OccurredAt: time.Now().Unix(),
	}
}

func (e Event) encode() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher 负责把任务事件投递到外部系统。
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// MemoryPublisher 使用 channel 缓存事件，主要用于测试与单进程部署。
type MemoryPublisher struct {
	ch     chan Event
	mu     sync.Mutex
	closed bool
}

// NewMemoryPublisher 创建一个内存事件通道。
func NewMemoryPublisher(size int) *MemoryPublisher {
	if size <= 0 {
		size = 64
	}
	return &MemoryPublisher{ch: make(chan Event, size)}
}

// Publish 将事件写入通道，通道已满时阻塞直到上下文取消。
func (p *MemoryPublisher) Publish(ctx context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("事件通道已关闭")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.ch <- event:
		return nil
	}
}

// Events 返回只读的事件通道。
func (p *MemoryPublisher) Events() <-chan Event {
	return p.ch
}

// Close 关闭事件通道。
func (p *MemoryPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		close(p.ch)
		p.closed = true
	}
	return nil
}
