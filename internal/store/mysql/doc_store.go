package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/tamimiqbalfysal/Today-2.2.5/internal/store/interfaces"
	"github.com/tamimiqbalfysal/Today-2.2.5/internal/util"
	"go.uber.org/zap"
)

// DocStore 基于 MySQL 的文档存储实现
// 所有实体存放在单张 documents 表中，乐观并发通过 version 列实现
type DocStore struct {
	db *sql.DB
}

func NewDocStore(db *sql.DB) *DocStore {
	return &DocStore{db: db}
}

// EnsureSchema 创建 documents 表（如果不存在）
func (s *DocStore) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS documents (
			doc_key VARCHAR(191) PRIMARY KEY,
			body JSON NOT NULL,
			version BIGINT NOT NULL DEFAULT 1
		)`
	_, err := s.db.ExecContext(ctx, query)
	if err != nil {
		util.Logger.Error("创建 documents 表失败", zap.Error(err))
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// isLockContention 判断是否为 InnoDB 死锁（1213）或锁等待超时（1205）
func isLockContention(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1213 || myErr.Number == 1205
	}
	return false
}

func (s *DocStore) Get(ctx context.Context, key string) (interfaces.Document, error) {
	query := `SELECT body, version FROM documents WHERE doc_key = ?`

	doc := interfaces.Document{Key: key}
	err := s.db.QueryRowContext(ctx, query, key).Scan(&doc.Body, &doc.Version)
	if err != nil {
		if err == sql.ErrNoRows {
			return interfaces.Document{Key: key}, nil
		}
		return interfaces.Document{}, err
	}
	// 墓碑行：文档已删除，版本号保留
	if string(doc.Body) == "null" {
		doc.Body = nil
	}
	return doc, nil
}

func (s *DocStore) List(ctx context.Context, prefix string) ([]interfaces.Document, error) {
	query := `SELECT doc_key, body, version FROM documents
		WHERE doc_key LIKE ? AND JSON_TYPE(body) <> 'NULL' ORDER BY doc_key`

	rows, err := s.db.QueryContext(ctx, query, prefix+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []interfaces.Document
	for rows.Next() {
		var doc interfaces.Document
		if err := rows.Scan(&doc.Key, &doc.Body, &doc.Version); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Commit 在单个 SQL 事务内校验读取版本并应用全部写入
func (s *DocStore) Commit(ctx context.Context, reads []interfaces.Read, writes []interfaces.Write) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		util.Logger.Error("开始事务失败", zap.Error(err))
		return err
	}
	defer tx.Rollback()

	// 逐个锁定并校验读取过的文档版本
	// 调用方已按键排序读集，这里的加锁顺序因此是全局一致的
	for _, r := range reads {
		var current int64
		err := tx.QueryRowContext(ctx,
			`SELECT version FROM documents WHERE doc_key = ? FOR UPDATE`, r.Key).Scan(&current)
		if err != nil {
			if err == sql.ErrNoRows {
				current = 0
			} else if isLockContention(err) {
				return interfaces.ErrVersionConflict
			} else {
				return err
			}
		}
		if current != r.Version {
			return interfaces.ErrVersionConflict
		}
	}

	for _, w := range writes {
		// 删除写入 JSON null 墓碑，版本号单调递增，重建后过期读依旧会被拒绝
		body := w.Body
		if body == nil {
			body = []byte("null")
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO documents (doc_key, body, version) VALUES (?, ?, 1)
			ON DUPLICATE KEY UPDATE body = VALUES(body), version = version + 1`,
			w.Key, body)
		if err != nil {
			if isLockContention(err) {
				return interfaces.ErrVersionConflict
			}
			util.Logger.Error("写入文档失败", zap.Error(err), zap.String("doc_key", w.Key))
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		if isLockContention(err) {
			return interfaces.ErrVersionConflict
		}
		util.Logger.Error("提交事务失败", zap.Error(err))
		return err
	}
	return nil
}
