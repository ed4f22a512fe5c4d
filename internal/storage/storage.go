package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// 七个独立持久化的状态分片
const (
	KeyTokens      = "vtt-tokens"
	KeyCombatOrder = "vtt-combat-order"
	KeyInCombat    = "vtt-in-combat"
	KeyCurrentTurn = "vtt-current-turn"
	KeyRound       = "vtt-round"
	KeyChat        = "vtt-chat-messages"
	KeyNotes       = "vtt-notes"
)

// AllKeys lists every slice in load order.
var AllKeys = []string{KeyTokens, KeyCombatOrder, KeyInCombat, KeyCurrentTurn, KeyRound, KeyChat, KeyNotes}

var ErrNotFound = errors.New("storage: slice not found")

type Storage struct {
	db *sql.DB
}

func New(dbPath string) (*Storage, error) {
	// 确保目录存在
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// 单用户单进程，一个连接足够
	db.SetMaxOpenConns(1)

	s := &Storage{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return s, nil
}

func (s *Storage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS slices (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL, -- JSON
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// Load 读取一个分片的原始 JSON
func (s *Storage) Load(key string) ([]byte, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM slices WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	return []byte(value), nil
}

// Save 整体覆盖写入一个分片
func (s *Storage) Save(key string, data []byte) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO slices (key, value, updated_at)
		VALUES (?, ?, ?)
	`, key, string(data), time.Now())

	return err
}

// Delete 删除给定分片，不存在的键忽略
func (s *Storage) Delete(keys ...string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	for _, key := range keys {
		if _, err := tx.Exec(`DELETE FROM slices WHERE key = ?`, key); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Keys 返回当前已持久化的分片名
func (s *Storage) Keys() ([]string, error) {
	rows, err := s.db.Query(`SELECT key FROM slices ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			continue
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}
