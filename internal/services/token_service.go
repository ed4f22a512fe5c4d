package services

import (
	"fmt"
	"strings"

	"github.com/aiwuxian/tabletop/internal/models"
	"github.com/aiwuxian/tabletop/internal/storage"
)

const (
	defaultTokenName = "New Token"
	defaultHP        = 30
	defaultAC        = 15
)

// CreateToken 创建令牌，未指定的字段取默认值，返回新 id
func (t *Table) CreateToken(spec models.TokenSpec) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.createTokenLocked(spec)
}

func (t *Table) createTokenLocked(spec models.TokenSpec) string {
	tok := models.Token{
		ID:         newID(),
		Name:       strings.TrimSpace(spec.Name),
		HP:         defaultHP,
		MaxHP:      defaultHP,
		AC:         defaultAC,
		Conditions: cleanConditions(spec.Conditions),
		Color:      spec.Color,
		Type:       spec.Type,
		Hidden:     spec.Hidden,
	}
	if tok.Name == "" {
		tok.Name = defaultTokenName
	}
	if tok.Color == "" {
		tok.Color = t.rules.RandomColor()
	}

	tok.X, tok.Y = t.rules.RandomPosition()
	if spec.X != nil {
		tok.X = *spec.X
	}
	if spec.Y != nil {
		tok.Y = *spec.Y
	}

	// hp 未指定时随 maxHp
	if spec.MaxHP != nil {
		tok.MaxHP = *spec.MaxHP
		tok.HP = *spec.MaxHP
	}
	if spec.HP != nil {
		tok.HP = *spec.HP
	}
	if spec.AC != nil {
		tok.AC = *spec.AC
	}
	if spec.Initiative != nil {
		v := *spec.Initiative
		tok.Initiative = &v
	}

	normalizeToken(&tok)
	t.tokens = append(t.tokens, tok)
	t.persistLocked(storage.KeyTokens)
	return tok.ID
}

// CreateFromPreset 按预设模板创建令牌
func (t *Table) CreateFromPreset(name string) (string, error) {
	preset, ok := models.FindPreset(name)
	if !ok {
		return "", fmt.Errorf("%w: preset %q", ErrNotFound, name)
	}
	return t.CreateToken(preset.Spec()), nil
}

// DuplicateToken 复制令牌（新 id、新位置，不加入战斗）
func (t *Table) DuplicateToken(id string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.tokenIndexLocked(id)
	if idx < 0 {
		return "", fmt.Errorf("%w: token %s", ErrNotFound, id)
	}
	src := t.tokens[idx]
	hp, maxHP, ac := src.HP, src.MaxHP, src.AC

	return t.createTokenLocked(models.TokenSpec{
		Name:       src.Name + " (Copy)",
		HP:         &hp,
		MaxHP:      &maxHP,
		AC:         &ac,
		Initiative: src.Initiative,
		Conditions: src.Conditions,
		Color:      src.Color,
		Type:       src.Type,
		Hidden:     src.Hidden,
	}), nil
}

// UpdateToken 合并补丁并同步战斗顺序中的对应条目
func (t *Table) UpdateToken(id string, patch models.TokenPatch) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.updateTokenLocked(id, patch)
}

// updateTokenLocked is the single write path for token fields: it clamps hp,
// mirrors the synchronized fields into the matching combatant and re-sorts
// the order when initiative changed.
func (t *Table) updateTokenLocked(id string, patch models.TokenPatch) error {
	idx := t.tokenIndexLocked(id)
	if idx < 0 {
		return fmt.Errorf("%w: token %s", ErrNotFound, id)
	}

	tok := &t.tokens[idx]
	applyPatch(tok, patch)

	keys := []string{storage.KeyTokens}
	if patch.TouchesCombatant() {
		if ci := t.combatantIndexLocked(id); ci >= 0 {
			t.combat.Order[ci] = combatantFor(*tok)
			keys = append(keys, storage.KeyCombatOrder)
			if patch.Initiative != nil {
				t.sortOrderLocked()
				keys = append(keys, storage.KeyCurrentTurn)
			}
		}
	}
	t.persistLocked(keys...)
	return nil
}

// AdjustHP 伤害/治疗，结果限制在 [0, maxHp]
func (t *Table) AdjustHP(id string, delta int) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.tokenIndexLocked(id)
	if idx < 0 {
		return 0, fmt.Errorf("%w: token %s", ErrNotFound, id)
	}
	hp := t.tokens[idx].HP + delta
	if err := t.updateTokenLocked(id, models.TokenPatch{HP: &hp}); err != nil {
		return 0, err
	}
	return t.tokens[idx].HP, nil
}

// AddCondition 添加状态标签
func (t *Table) AddCondition(id, condition string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	condition = strings.TrimSpace(condition)
	if condition == "" {
		return fmt.Errorf("%w: condition is empty", ErrValidation)
	}
	idx := t.tokenIndexLocked(id)
	if idx < 0 {
		return fmt.Errorf("%w: token %s", ErrNotFound, id)
	}
	conditions := append(append([]string{}, t.tokens[idx].Conditions...), condition)
	return t.updateTokenLocked(id, models.TokenPatch{Conditions: &conditions})
}

// RemoveCondition 按下标移除状态标签
func (t *Table) RemoveCondition(id string, index int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.tokenIndexLocked(id)
	if idx < 0 {
		return fmt.Errorf("%w: token %s", ErrNotFound, id)
	}
	current := t.tokens[idx].Conditions
	if index < 0 || index >= len(current) {
		return fmt.Errorf("%w: condition %d", ErrNotFound, index)
	}
	conditions := append(append([]string{}, current[:index]...), current[index+1:]...)
	return t.updateTokenLocked(id, models.TokenPatch{Conditions: &conditions})
}

// DeleteToken 删除令牌，同时移出战斗；返回是否清除了选中状态
func (t *Table) DeleteToken(id string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.tokenIndexLocked(id)
	if idx < 0 {
		return false, fmt.Errorf("%w: token %s", ErrNotFound, id)
	}
	t.tokens = append(t.tokens[:idx], t.tokens[idx+1:]...)
	keys := []string{storage.KeyTokens}
	if t.removeCombatantLocked(id) {
		keys = append(keys, storage.KeyCombatOrder, storage.KeyCurrentTurn)
	}
	t.persistLocked(keys...)

	if t.selected == id {
		t.selected = ""
		return true, nil
	}
	return false, nil
}

// Token 获取单个令牌
func (t *Table) Token(id string) (models.Token, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.tokenIndexLocked(id)
	if idx < 0 {
		return models.Token{}, fmt.Errorf("%w: token %s", ErrNotFound, id)
	}
	return copyToken(t.tokens[idx]), nil
}

// ListTokens 列出令牌；玩家视角看不到隐藏令牌
func (t *Table) ListTokens(filter models.TokenFilter) []models.Token {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.listTokensLocked(filter)
}

func (t *Table) listTokensLocked(filter models.TokenFilter) []models.Token {
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	tokens := make([]models.Token, 0, len(t.tokens))
	for _, tok := range t.tokens {
		if tok.Hidden && !filter.Role.IsDM() {
			continue
		}
		if filter.Type != "" && tok.Type != filter.Type {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(tok.Name), search) {
			continue
		}
		tokens = append(tokens, copyToken(tok))
	}
	return tokens
}

// IsInCombat 令牌是否在战斗顺序中
func (t *Table) IsInCombat(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.combatantIndexLocked(id) >= 0
}

func (t *Table) tokenIndexLocked(id string) int {
	for i := range t.tokens {
		if t.tokens[i].ID == id {
			return i
		}
	}
	return -1
}

func applyPatch(tok *models.Token, p models.TokenPatch) {
	if p.Name != nil {
		if name := strings.TrimSpace(*p.Name); name != "" {
			tok.Name = name
		}
	}
	if p.X != nil {
		tok.X = *p.X
	}
	if p.Y != nil {
		tok.Y = *p.Y
	}
	if p.MaxHP != nil {
		tok.MaxHP = *p.MaxHP
	}
	if p.HP != nil {
		tok.HP = *p.HP
	}
	if p.AC != nil {
		tok.AC = *p.AC
	}
	if p.Initiative != nil {
		v := *p.Initiative
		tok.Initiative = &v
	}
	if p.Conditions != nil {
		tok.Conditions = cleanConditions(*p.Conditions)
	}
	if p.Color != nil && *p.Color != "" {
		tok.Color = *p.Color
	}
	if p.Type != nil && p.Type.Valid() {
		tok.Type = *p.Type
	}
	if p.Hidden != nil {
		tok.Hidden = *p.Hidden
	}
	normalizeToken(tok)
}

// normalizeToken enforces 1 ≤ maxHp and 0 ≤ hp ≤ maxHp.
func normalizeToken(tok *models.Token) {
	if tok.MaxHP < 1 {
		tok.MaxHP = 1
	}
	if tok.HP > tok.MaxHP {
		tok.HP = tok.MaxHP
	}
	if tok.HP < 0 {
		tok.HP = 0
	}
	if tok.AC < 0 {
		tok.AC = 0
	}
	if !tok.Type.Valid() {
		tok.Type = models.TokenNPC
	}
	if tok.Conditions == nil {
		tok.Conditions = []string{}
	}
}

func cleanConditions(in []string) []string {
	out := make([]string, 0, len(in))
	for _, c := range in {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func copyToken(src models.Token) models.Token {
	dst := src
	dst.Conditions = append([]string{}, src.Conditions...)
	if src.Initiative != nil {
		v := *src.Initiative
		dst.Initiative = &v
	}
	return dst
}
