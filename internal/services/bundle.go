package services

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/aiwuxian/tabletop/internal/models"
	"github.com/aiwuxian/tabletop/internal/storage"
)

// Export 导出令牌、先攻顺序、笔记和聊天记录
func (t *Table) Export() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	bundle := models.Bundle{
		Tokens:       nonNil(t.tokens),
		CombatOrder:  nonNil(t.combat.Order),
		Notes:        nonNil(t.notes),
		ChatMessages: nonNil(t.chat),
		ExportDate:   t.now().UTC(),
		Version:      models.BundleVersion,
	}
	return json.MarshalIndent(bundle, "", "  ")
}

// ParseBundle 解析导入文档，不修改任何状态
func ParseBundle(data []byte) (models.Bundle, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return models.Bundle{}, fmt.Errorf("%w: expected a JSON object", ErrParse)
	}

	var bundle models.Bundle
	if err := json.Unmarshal(trimmed, &bundle); err != nil {
		return models.Bundle{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return bundle, nil
}

// Import 用导入文档整体替换当前状态（不合并）
//
// The document is parsed before confirmation is checked, so a malformed file
// is reported even when the caller has not confirmed yet.
func (t *Table) Import(data []byte, confirmed bool) (models.Bundle, error) {
	bundle, err := ParseBundle(data)
	if err != nil {
		return models.Bundle{}, err
	}
	if !confirmed {
		return bundle, ErrConfirmationRequired
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	tokens := make([]models.Token, 0, len(bundle.Tokens))
	for _, tok := range bundle.Tokens {
		if tok.ID == "" {
			tok.ID = newID()
		}
		normalizeToken(&tok)
		tokens = append(tokens, tok)
	}

	t.tokens = tokens
	t.combat = models.CombatSession{
		Order: importOrder(tokens, bundle.CombatOrder),
		Round: 1,
	}
	t.sortOrderLocked()
	t.combat.CurrentTurn = 0
	t.notes = append([]models.Note{}, bundle.Notes...)
	t.chat = append([]models.ChatMessage{}, bundle.ChatMessages...)
	for _, m := range t.chat {
		if m.Timestamp.After(t.lastStamp) {
			t.lastStamp = m.Timestamp
		}
	}
	t.selected = ""
	t.lastRoll = nil

	t.persistLocked(storage.AllKeys...)
	t.log.Info("bundle imported", "tokens", len(t.tokens), "combatants", len(t.combat.Order), "notes", len(t.notes), "messages", len(t.chat))
	return bundle, nil
}

// importOrder rebuilds combatants from their imported tokens. The document's
// initiative wins and is written back to the token so both sides agree.
// Entries without a token and repeated ids are dropped.
func importOrder(tokens []models.Token, order []models.Combatant) []models.Combatant {
	index := make(map[string]int, len(tokens))
	for i, tok := range tokens {
		index[tok.ID] = i
	}

	out := make([]models.Combatant, 0, len(order))
	seen := make(map[string]bool, len(order))
	for _, c := range order {
		i, ok := index[c.ID]
		if !ok || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		initiative := c.Initiative
		tokens[i].Initiative = &initiative
		out = append(out, combatantFor(tokens[i]))
	}
	return out
}
