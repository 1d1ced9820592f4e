package task

import (
	"context"
	stdErrors "errors"
	"log/slog"

	"github.com/go-playground/validator/v10"

	xerrors "taskboard/internal/errors"
	"taskboard/pkg/logger"
)

var validate = validator.New()

// Service 负责任务的校验、持久化以及变更事件的投递。
type Service struct {
	store     Store
	publisher Publisher
	log       *slog.Logger
}

// NewService 构造任务服务，publisher 可以为 nil。
func NewService(store Store, publisher Publisher) *Service {
	return &Service{store: store, publisher: publisher, log: logger.Named("task")}
}

// List 返回全部任务。
func (s *Service) List(ctx context.Context) ([]*Task, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return s.store.List(ctx)
}

// Get 返回指定任务。
func (s *Service) Get(ctx context.Context, id int64) (*Task, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return s.store.Get(ctx, id)
}

// Create 校验标题后插入任务，返回新任务。
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Task, error) {
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if stdErrors.As(err, &verrs) {
			return nil, xerrors.New(CodeTaskValidation, "标题不能为空", xerrors.WithMetadata("field", "title"))
		}
		return nil, xerrors.Wrap(CodeTaskValidation, err, "任务参数校验失败")
	}
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}

	task := &Task{
		Title:       req.Title,
		Description: req.Description,
		DueDate:     normalizeDueDate(req.DueDate),
	}
	if err := s.store.Create(ctx, task); err != nil {
		s.log.Error("添加任务失败", slog.Any("error", err))
		return nil, err
	}

	logger.Audit().Info("task_created",
		slog.Int64("task_id", task.ID),
		slog.String("title", task.Title),
	)
	s.publish(ctx, NewEvent(EventCreated, task.ID, task))
	return task, nil
}

// Update 应用部分更新。没有可识别字段、标题为空都视为校验失败。
func (s *Service) Update(ctx context.Context, id int64, patch Patch) error {
	if patch.Empty() {
		return xerrors.New(CodeTaskValidation, "没有提供可更新的字段")
	}
	if patch.Title != nil && *patch.Title == "" {
		return xerrors.New(CodeTaskValidation, "标题不能为空", xerrors.WithMetadata("field", "title"))
	}
	if s.store == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}

	if err := s.store.Update(ctx, id, patch); err != nil {
		if !stdErrors.Is(err, ErrTaskNotFound) {
			s.log.Error("更新任务失败", slog.Int64("task_id", id), slog.Any("error", err))
		}
		return err
	}

	logger.Audit().Info("task_updated", slog.Int64("task_id", id))
	if s.publisher != nil {
		updated, err := s.store.Get(ctx, id)
		if err != nil {
			s.log.Warn("读取更新后的任务失败", slog.Int64("task_id", id), slog.Any("error", err))
		}
		s.publish(ctx, NewEvent(EventUpdated, id, updated))
	}
	return nil
}

// Delete 删除任务。
func (s *Service) Delete(ctx context.Context, id int64) error {
	if s.store == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	if err := s.store.Delete(ctx, id); err != nil {
		if !stdErrors.Is(err, ErrTaskNotFound) {
			s.log.Error("删除任务失败", slog.Int64("task_id", id), slog.Any("error", err))
		}
		return err
	}
	logger.Audit().Info("task_deleted", slog.Int64("task_id", id))
	s.publish(ctx, NewEvent(EventDeleted, id, nil))
	return nil
}

// Ping 检查存储是否可用。
func (s *Service) Ping(ctx context.Context) error {
	if s.store == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return s.store.Ping(ctx)
}

// Close 释放存储与事件投递器。
func (s *Service) Close() error {
	var err error
	if s.store != nil {
		err = s.store.Close()
	}
	if s.publisher != nil {
		err = stdErrors.Join(err, s.publisher.Close())
	}
	return err
}

// publish 投递事件，失败只记录日志，不影响请求结果。
func (s *Service) publish(ctx context.Context, event Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		wrapped := xerrors.Wrap(xerrors.CodePublishFailure, err, "投递任务事件失败")
		s.log.Warn(wrapped.Message(),
			slog.String("event_id", event.ID),
			slog.String("event_type", string(event.Type)),
			slog.Int64("task_id", event.TaskID),
			slog.Any("error", err),
		)
	}
}
