package sqldb

import (
	"context"
	"database/sql"
	"fmt"
)

// priority 列不会被读取或暴露，保留它是为了兼容已有的 tasks.db 数据文件。
const sqliteSchema = `CREATE TABLE IF NOT EXISTS tasks (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        title TEXT NOT NULL,
        description TEXT,
        due_date TEXT,
        status INTEGER NOT NULL DEFAULT 0,
        priority INTEGER NOT NULL DEFAULT 1
)`

const mysqlSchema = `CREATE TABLE IF NOT EXISTS tasks (
        id BIGINT AUTO_INCREMENT PRIMARY KEY,
        title TEXT NOT NULL,
        description TEXT,
        due_date VARCHAR(64) NULL,
        status TINYINT NOT NULL DEFAULT 0,
        priority INT NOT NULL DEFAULT 1,
        INDEX idx_tasks_status_due (status, due_date)
)`

// EnsureSchema 在表不存在时创建 tasks 表，可在每次启动时重复执行。
func EnsureSchema(ctx context.Context, db *sql.DB, dialect Dialect) error {
	var schema string
	switch dialect {
	case DialectSQLite:
		schema = sqliteSchema
	case DialectMySQL:
		schema = mysqlSchema
	default:
		return fmt.Errorf("未知的数据库方言: %q", dialect)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("初始化 tasks 表失败: %w", err)
	}
	return nil
}
