package task

import "context"

// Store 抽象了任务表的持久化接口。
type Store interface {
	List(ctx context.Context) ([]*Task, error)
	Get(ctx context.Context, id int64) (*Task, error)
	Create(ctx context.Context, task *Task) error
	Update(ctx context.Context, id int64, patch Patch) error
	Delete(ctx context.Context, id int64) error
	Ping(ctx context.Context) error
	Close() error
}
