package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aiwuxian/tabletop/internal/dice"
	"github.com/aiwuxian/tabletop/internal/models"
	"github.com/aiwuxian/tabletop/internal/storage"
)

const welcomeMessage = "Welcome to Virtual Tabletop!"

type Options struct {
	Rand            dice.Source // nil uses a time-seeded generator
	Now             func() time.Time
	DiceDisplay     time.Duration
	MaxChatMessages int // 0 keeps every message
	Logger          *slog.Logger
}

// Table 整个桌面的状态容器
//
// Every exported method locks the table for its whole duration, so operations
// run one at a time and each sees the effects of the previous one. Helpers
// named *Locked expect the caller to hold mu.
type Table struct {
	mu sync.Mutex

	backend     Backend
	rules       *RuleEngine
	now         func() time.Time
	log         *slog.Logger
	diceDisplay time.Duration
	maxChat     int

	tokens   []models.Token
	combat   models.CombatSession
	chat     []models.ChatMessage
	notes    []models.Note
	selected string

	lastRoll   *models.RollDisplay
	generation uint64
	lastStamp  time.Time
}

// NewTable 从后端加载各分片（缺失或损坏时使用默认值）
func NewTable(backend Backend, opts Options) *Table {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DiceDisplay <= 0 {
		opts.DiceDisplay = 3 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	t := &Table{
		backend:     backend,
		rules:       NewRuleEngine(opts.Rand),
		now:         opts.Now,
		log:         opts.Logger,
		diceDisplay: opts.DiceDisplay,
		maxChat:     opts.MaxChatMessages,
	}
	t.load()
	return t
}

func (t *Table) load() {
	t.tokens = loadSlice(t, storage.KeyTokens, []models.Token{})
	t.combat = models.CombatSession{
		Order:       loadSlice(t, storage.KeyCombatOrder, []models.Combatant{}),
		InCombat:    loadSlice(t, storage.KeyInCombat, false),
		CurrentTurn: loadSlice(t, storage.KeyCurrentTurn, 0),
		Round:       loadSlice(t, storage.KeyRound, 1),
	}
	t.chat = loadSlice(t, storage.KeyChat, []models.ChatMessage{{
		ID:        newID(),
		Timestamp: t.stamp(),
		Type:      models.MessageSystem,
		Content:   welcomeMessage,
	}})
	t.notes = loadSlice(t, storage.KeyNotes, []models.Note{})

	for i := range t.tokens {
		normalizeToken(&t.tokens[i])
	}
	if t.combat.Round < 1 {
		t.combat.Round = 1
	}
	t.fixTurnLocked()
	for _, m := range t.chat {
		if m.Timestamp.After(t.lastStamp) {
			t.lastStamp = m.Timestamp
		}
	}
}

func loadSlice[T any](t *Table, key string, def T) T {
	if t.backend == nil {
		return def
	}
	data, err := t.backend.Load(key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			t.log.Warn("load slice failed", "slice", key, "err", err)
		}
		return def
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.log.Warn("corrupt slice, using default", "slice", key, "err", err)
		return def
	}
	return v
}

// persistLocked 将给定分片整体写回后端；失败只记录日志
func (t *Table) persistLocked(keys ...string) {
	if t.backend == nil {
		return
	}
	for _, key := range keys {
		data, err := json.Marshal(t.sliceValueLocked(key))
		if err != nil {
			t.log.Warn("encode slice failed", "slice", key, "err", err)
			continue
		}
		if err := t.backend.Save(key, data); err != nil {
			t.log.Warn("persist slice failed", "slice", key, "err", err)
		}
	}
}

func (t *Table) sliceValueLocked(key string) any {
	switch key {
	case storage.KeyTokens:
		return nonNil(t.tokens)
	case storage.KeyCombatOrder:
		return nonNil(t.combat.Order)
	case storage.KeyInCombat:
		return t.combat.InCombat
	case storage.KeyCurrentTurn:
		return t.combat.CurrentTurn
	case storage.KeyRound:
		return t.combat.Round
	case storage.KeyChat:
		return nonNil(t.chat)
	case storage.KeyNotes:
		return nonNil(t.notes)
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Flush 重写全部七个分片（关闭前调用）
func (t *Table) Flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.persistLocked(storage.AllKeys...)
}

// ClearAll 清空内存状态并删除全部持久化分片
func (t *Table) ClearAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tokens = []models.Token{}
	t.combat = models.CombatSession{Order: []models.Combatant{}, Round: 1}
	t.chat = []models.ChatMessage{}
	t.notes = []models.Note{}
	t.selected = ""
	t.lastRoll = nil

	if t.backend == nil {
		return
	}
	if err := t.backend.Delete(storage.AllKeys...); err != nil {
		t.log.Warn("clear storage failed", "err", err)
	}
	t.log.Info("all data cleared")
}

// Select 设置当前选中的令牌；空 id 清除选中
func (t *Table) Select(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if id != "" && t.tokenIndexLocked(id) < 0 {
		return fmt.Errorf("%w: token %s", ErrNotFound, id)
	}
	t.selected = id
	return nil
}

func (t *Table) Selected() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.selected
}

// Snapshot 按查看者身份返回完整状态副本
func (t *Table) Snapshot(role models.Role) models.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	return models.Snapshot{
		Tokens:        t.listTokensLocked(models.TokenFilter{Role: role}),
		Combat:        t.combatLocked(),
		Chat:          append([]models.ChatMessage{}, t.chat...),
		Notes:         t.listNotesLocked(models.NoteQuery{Role: role}),
		SelectedToken: t.selected,
		LastRoll:      t.lastRollLocked(),
	}
}

// stamp returns a timestamp strictly after every previously issued one.
func (t *Table) stamp() time.Time {
	now := t.now()
	if !now.After(t.lastStamp) {
		now = t.lastStamp.Add(time.Nanosecond)
	}
	t.lastStamp = now
	return now
}
