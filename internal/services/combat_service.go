package services

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aiwuxian/tabletop/internal/models"
	"github.com/aiwuxian/tabletop/internal/storage"
)

const (
	DefaultInitiative = 10
	MinInitiative     = 1
	MaxInitiative     = 99
)

// AddToCombat 将令牌加入先攻顺序；已在战斗中时不做任何事
func (t *Table) AddToCombat(tokenID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.tokenIndexLocked(tokenID)
	if idx < 0 {
		return fmt.Errorf("%w: token %s", ErrNotFound, tokenID)
	}
	if t.combatantIndexLocked(tokenID) >= 0 {
		return nil
	}

	t.combat.Order = append(t.combat.Order, combatantFor(t.tokens[idx]))
	t.sortOrderLocked()
	t.persistLocked(storage.KeyCombatOrder, storage.KeyCurrentTurn)
	return nil
}

// RemoveFromCombat 移出战斗，不影响令牌本身
func (t *Table) RemoveFromCombat(tokenID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.removeCombatantLocked(tokenID) {
		return fmt.Errorf("%w: combatant %s", ErrNotFound, tokenID)
	}
	t.persistLocked(storage.KeyCombatOrder, storage.KeyCurrentTurn)
	return nil
}

// RollInitiative 为令牌投先攻 (1-20)，返回结果
func (t *Table) RollInitiative(tokenID string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rollInitiativeLocked(tokenID)
}

func (t *Table) rollInitiativeLocked(tokenID string) (int, error) {
	idx := t.tokenIndexLocked(tokenID)
	if idx < 0 {
		return 0, fmt.Errorf("%w: token %s", ErrNotFound, tokenID)
	}

	value := t.rules.RollD20()
	if err := t.updateTokenLocked(tokenID, models.TokenPatch{Initiative: &value}); err != nil {
		return 0, err
	}
	t.postLocked(models.ChatMessage{
		Type:    models.MessageDice,
		Content: fmt.Sprintf("%s rolled initiative: %d", t.tokens[idx].Name, value),
	})
	return value, nil
}

// RollAllInitiative 为所有参战者投先攻，返回投掷次数
func (t *Table) RollAllInitiative() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	// 投掷过程中会重新排序，先记下 id
	ids := make([]string, len(t.combat.Order))
	for i, c := range t.combat.Order {
		ids[i] = c.ID
	}

	rolled := 0
	for _, id := range ids {
		if _, err := t.rollInitiativeLocked(id); err != nil {
			t.log.Debug("skip initiative roll", "combatant", id, "err", err)
			continue
		}
		rolled++
	}
	// 整体重排后从最高先攻开始
	t.combat.CurrentTurn = 0
	t.persistLocked(storage.KeyCurrentTurn)
	t.postLocked(models.ChatMessage{
		Type:    models.MessageSystem,
		Content: "Rolled initiative for all combatants!",
	})
	return rolled
}

// SetInitiative 手动设置参战者的先攻；超出范围时使用默认值 10
func (t *Table) SetInitiative(combatantID string, value int) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if value < MinInitiative || value > MaxInitiative {
		value = DefaultInitiative
	}

	ci := t.combatantIndexLocked(combatantID)
	if ci < 0 {
		return 0, fmt.Errorf("%w: combatant %s", ErrNotFound, combatantID)
	}
	if t.tokenIndexLocked(combatantID) >= 0 {
		if err := t.updateTokenLocked(combatantID, models.TokenPatch{Initiative: &value}); err != nil {
			return 0, err
		}
		return value, nil
	}

	// 令牌已不存在但参战者残留（持久化分片不一致）
	t.combat.Order[ci].Initiative = value
	t.sortOrderLocked()
	t.persistLocked(storage.KeyCombatOrder, storage.KeyCurrentTurn)
	return value, nil
}

// ParseInitiative 解析手动输入的先攻值，非数字时返回默认值
func ParseInitiative(raw string) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v < MinInitiative || v > MaxInitiative {
		return DefaultInitiative
	}
	return v
}

// ToggleCombat 开始/结束战斗，返回切换后的状态
func (t *Table) ToggleCombat() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.combat.InCombat = !t.combat.InCombat
	t.combat.CurrentTurn = 0
	t.combat.Round = 1

	if t.combat.InCombat {
		t.postLocked(models.ChatMessage{
			Type:    models.MessageSystem,
			Content: "Combat started! Roll for initiative.",
		})
	} else {
		t.postLocked(models.ChatMessage{
			Type:    models.MessageSystem,
			Content: "Combat ended.",
		})
	}
	t.persistLocked(storage.KeyInCombat, storage.KeyCurrentTurn, storage.KeyRound)
	t.log.Info("combat toggled", "in_combat", t.combat.InCombat)
	return t.combat.InCombat
}

// NextTurn 推进到下一个参战者；回到首位时回合数加一
func (t *Table) NextTurn() (models.Combatant, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.combat.Order)
	if n == 0 {
		return models.Combatant{}, false
	}

	t.combat.CurrentTurn = (t.combat.CurrentTurn + 1) % n
	if t.combat.CurrentTurn == 0 {
		t.combat.Round++
	}

	active := t.combat.Order[t.combat.CurrentTurn]
	t.postLocked(models.ChatMessage{
		Type:    models.MessageSystem,
		Content: fmt.Sprintf("%s's turn! (Round %d)", active.Name, t.combat.Round),
	})
	t.persistLocked(storage.KeyCurrentTurn, storage.KeyRound)
	return active, true
}

// ClearCombat 清空先攻顺序，不删除令牌，不改变战斗标志
func (t *Table) ClearCombat() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.combat.Order = []models.Combatant{}
	t.combat.CurrentTurn = 0
	t.combat.Round = 1
	t.postLocked(models.ChatMessage{
		Type:    models.MessageSystem,
		Content: "Combat tracker cleared.",
	})
	t.persistLocked(storage.KeyCombatOrder, storage.KeyCurrentTurn, storage.KeyRound)
}

// Combat 返回战斗会话副本
func (t *Table) Combat() models.CombatSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.combatLocked()
}

func (t *Table) combatLocked() models.CombatSession {
	session := t.combat
	session.Order = append([]models.Combatant{}, t.combat.Order...)
	return session
}

func (t *Table) combatantIndexLocked(id string) int {
	for i := range t.combat.Order {
		if t.combat.Order[i].ID == id {
			return i
		}
	}
	return -1
}

// removeCombatantLocked keeps the same combatant active when an earlier one leaves.
func (t *Table) removeCombatantLocked(id string) bool {
	idx := t.combatantIndexLocked(id)
	if idx < 0 {
		return false
	}
	t.combat.Order = append(t.combat.Order[:idx], t.combat.Order[idx+1:]...)
	if idx < t.combat.CurrentTurn {
		t.combat.CurrentTurn--
	}
	t.fixTurnLocked()
	return true
}

func (t *Table) fixTurnLocked() {
	if t.combat.CurrentTurn < 0 || t.combat.CurrentTurn >= len(t.combat.Order) {
		t.combat.CurrentTurn = 0
	}
}

// sortOrderLocked sorts by initiative, highest first; ties keep their order.
// The turn pointer follows the combatant it pointed at before the sort.
func (t *Table) sortOrderLocked() {
	active, ok := t.combat.Active()
	sort.SliceStable(t.combat.Order, func(i, j int) bool {
		return t.combat.Order[i].Initiative > t.combat.Order[j].Initiative
	})
	if ok {
		t.combat.CurrentTurn = t.combatantIndexLocked(active.ID)
	}
}

func combatantFor(tok models.Token) models.Combatant {
	initiative := DefaultInitiative
	if tok.Initiative != nil {
		initiative = *tok.Initiative
	}
	return models.Combatant{
		ID:         tok.ID,
		Name:       tok.Name,
		Initiative: initiative,
		HP:         tok.HP,
		MaxHP:      tok.MaxHP,
		AC:         tok.AC,
	}
}
