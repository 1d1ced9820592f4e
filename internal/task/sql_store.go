package task

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"

	xerrors "taskboard/internal/errors"
)

const tableName = "tasks"

var taskColumns = []string{"id", "title", "description", "due_date", "status"}

// SQLStore 基于 database/sql 保存任务，每次操作独占一个连接并在结束时归还。
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore 使用已经完成建表的连接池创建 SQLStore。
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// List 返回全部任务：未完成的在前，同一状态内截止日期早的在前。
func (s *SQLStore) List(ctx context.Context) ([]*Task, error) {
	stmt := sq.Select(taskColumns...).
		From(tableName).
		OrderBy("status ASC", "due_date ASC", "id ASC")
	return s.query(ctx, stmt, "查询任务列表失败")
}

// Get 查询单个任务。
func (s *SQLStore) Get(ctx context.Context, id int64) (*Task, error) {
	stmt := sq.Select(taskColumns...).
		From(tableName).
		Where(sq.Eq{"id": id})
	tasks, err := s.query(ctx, stmt, "查询任务失败")
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, ErrTaskNotFound
	}
	return tasks[0], nil
}

// Create 插入新任务，status 固定为 0、priority 固定为 1，并回填自增 ID。
func (s *SQLStore) Create(ctx context.Context, task *Task) error {
	if task == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "task 不能为空")
	}
	task.DueDate = normalizeDueDate(task.DueDate)
	task.Completed = false

	stmt := sq.Insert(tableName).
		Columns("title", "description", "due_date", "status", "priority").
		Values(task.Title, task.Description, nullString(task.DueDate), encodeStatus(false), 1)

	res, err := s.exec(ctx, stmt, "添加任务失败")
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取新任务 ID 失败")
	}
	task.ID = id
	return nil
}

// Update 只写入补丁中出现的字段，字段顺序固定为 title、description、due_date、status。
func (s *SQLStore) Update(ctx context.Context, id int64, patch Patch) error {
	if patch.Empty() {
		return xerrors.New(CodeTaskValidation, "没有提供可更新的字段")
	}

	stmt := sq.Update(tableName)
	if patch.Title != nil {
		stmt = stmt.Set("title", *patch.Title)
	}
	if patch.Description != nil {
		stmt = stmt.Set("description", *patch.Description)
	}
	if patch.DueDateSet {
		stmt = stmt.Set("due_date", nullString(normalizeDueDate(patch.DueDate)))
	}
	if patch.Completed != nil {
		stmt = stmt.Set("status", encodeStatus(*patch.Completed))
	}
	stmt = stmt.Where(sq.Eq{"id": id})

	res, err := s.exec(ctx, stmt, "更新任务失败")
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// Delete 按 ID 删除任务。
func (s *SQLStore) Delete(ctx context.Context, id int64) error {
	stmt := sq.Delete(tableName).Where(sq.Eq{"id": id})
	res, err := s.exec(ctx, stmt, "删除任务失败")
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// Ping 检查数据库是否可用。
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "数据库不可用")
	}
	return nil
}

// Close 关闭底层数据库连接。
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// withConn 从连接池取出一个连接供 fn 使用，无论成功与否都会归还。
func (s *SQLStore) withConn(ctx context.Context, fn func(conn *sql.Conn) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取数据库连接失败")
	}
	defer conn.Close()
	return fn(conn)
}

func (s *SQLStore) exec(ctx context.Context, stmt sq.Sqlizer, action string) (sql.Result, error) {
	query, args, err := stmt.ToSql()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "构造 SQL 失败")
	}

	var result sql.Result
	err = s.withConn(ctx, func(conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, query, args...)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, action)
		}
		result = res
		return nil
	})
	return result, err
}

func (s *SQLStore) query(ctx context.Context, stmt sq.Sqlizer, action string) ([]*Task, error) {
	query, args, err := stmt.ToSql()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "构造 SQL 失败")
	}

	tasks := make([]*Task, 0)
	err = s.withConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, action)
		}
		defer rows.Close()

		for rows.Next() {
			task, err := scanTask(rows)
			if err != nil {
				return xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析任务记录失败")
			}
			tasks = append(tasks, task)
		}
		if err := rows.Err(); err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历任务失败")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func scanTask(rows *sql.Rows) (*Task, error) {
	var (
		task        Task
		description sql.NullString
		dueDate     sql.NullString
		status      int64
	)
	if err := rows.Scan(&task.ID, &task.Title, &description, &dueDate, &status); err != nil {
		return nil, err
	}
	task.Description = description.String
	if dueDate.Valid {
		due := dueDate.String
		task.DueDate = &due
	}
	task.Completed = decodeStatus(status)
	return &task, nil
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取影响行数失败")
	}
	if affected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func nullString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

var _ Store = (*SQLStore)(nil)
