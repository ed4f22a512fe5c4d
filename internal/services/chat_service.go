package services

import (
	"fmt"
	"strings"

	"github.com/aiwuxian/tabletop/internal/dice"
	"github.com/aiwuxian/tabletop/internal/models"
	"github.com/aiwuxian/tabletop/internal/storage"
)

// PostMessage 追加一条消息，缺少 id 或时间戳时自动生成
func (t *Table) PostMessage(msg models.ChatMessage) models.ChatMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.postLocked(msg)
}

func (t *Table) postLocked(msg models.ChatMessage) models.ChatMessage {
	if msg.ID == "" {
		msg.ID = newID()
	}
	if msg.Timestamp.After(t.lastStamp) {
		t.lastStamp = msg.Timestamp
	} else {
		msg.Timestamp = t.stamp()
	}
	if msg.Roll != nil {
		roll := *msg.Roll
		roll.Results = append([]int{}, msg.Roll.Results...)
		msg.Roll = &roll
	}

	t.chat = append(t.chat, msg)
	if t.maxChat > 0 && len(t.chat) > t.maxChat {
		t.chat = append([]models.ChatMessage{}, t.chat[len(t.chat)-t.maxChat:]...)
	}
	t.persistLocked(storage.KeyChat)
	return msg
}

// SubmitChat 处理聊天输入：投骰指令交给骰子引擎，其余作为普通消息保存
func (t *Table) SubmitChat(role models.Role, text string) (models.ChatMessage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	text = strings.TrimSpace(text)
	if text == "" {
		return models.ChatMessage{}, fmt.Errorf("%w: message is empty", ErrValidation)
	}

	if req, ok := dice.Parse(text); ok {
		return t.rollLocked(role.Label(), req)
	}

	msgType := models.MessageDM
	if !role.IsDM() {
		msgType = models.MessagePlayer
	}
	return t.postLocked(models.ChatMessage{
		Type:    msgType,
		Sender:  role.Label(),
		Content: text,
	}), nil
}

// RollDice 投骰并记录到聊天
func (t *Table) RollDice(role models.Role, count, sides, modifier int, description string) (models.DiceRoll, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	msg, err := t.rollLocked(role.Label(), dice.Request{
		Count:       count,
		Sides:       sides,
		Modifier:    modifier,
		Description: strings.TrimSpace(description),
	})
	if err != nil {
		return models.DiceRoll{}, err
	}
	return *msg.Roll, nil
}

// rollLocked posts a system notice instead of rolling when validation fails.
func (t *Table) rollLocked(sender string, req dice.Request) (models.ChatMessage, error) {
	roll, err := t.rules.Roll(req)
	if err != nil {
		t.postLocked(models.ChatMessage{
			Type:    models.MessageSystem,
			Content: dice.Notice(err),
		})
		return models.ChatMessage{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	msg := t.postLocked(models.ChatMessage{
		Type:    models.MessageDice,
		Sender:  sender,
		Content: dice.Format(roll),
		Roll:    &roll,
	})

	t.generation++
	t.lastRoll = &models.RollDisplay{
		Roll:       roll,
		Generation: t.generation,
		ExpiresAt:  t.now().Add(t.diceDisplay),
	}
	return msg, nil
}

// LastRoll 返回仍在显示期内的最近一次投骰，过期后为 nil
func (t *Table) LastRoll() *models.RollDisplay {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastRollLocked()
}

func (t *Table) lastRollLocked() *models.RollDisplay {
	if t.lastRoll == nil || !t.now().Before(t.lastRoll.ExpiresAt) {
		return nil
	}
	display := *t.lastRoll
	display.Roll.Results = append([]int{}, t.lastRoll.Roll.Results...)
	return &display
}

// ExpireRoll 清除指定代次的显示；更新的投骰不受旧代次影响
func (t *Table) ExpireRoll(generation uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.lastRoll == nil || t.lastRoll.Generation != generation {
		return false
	}
	t.lastRoll = nil
	return true
}

// ClearChat 清空全部聊天记录
func (t *Table) ClearChat() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.chat = []models.ChatMessage{}
	t.persistLocked(storage.KeyChat)
}

// Messages 按时间顺序返回全部消息
func (t *Table) Messages() []models.ChatMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]models.ChatMessage{}, t.chat...)
}
