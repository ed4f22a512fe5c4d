package models

import "time"

// Role 查看者身份：DM 或玩家
type Role string

const (
	RoleDM     Role = "dm"
	RolePlayer Role = "player"
)

// Label returns the sender label used in chat.
func (r Role) Label() string {
	if r == RolePlayer {
		return "Player"
	}
	return "DM"
}

// IsDM reports whether r is the privileged viewing context.
func (r Role) IsDM() bool {
	return r != RolePlayer
}

type TokenType string

const (
	TokenPC      TokenType = "pc"
	TokenNPC     TokenType = "npc"
	TokenMonster TokenType = "monster"
	TokenObject  TokenType = "object"
)

// Valid reports whether t is one of the known categories.
func (t TokenType) Valid() bool {
	switch t {
	case TokenPC, TokenNPC, TokenMonster, TokenObject:
		return true
	}
	return false
}

// Token 画布上的可放置实体
type Token struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
	HP         int       `json:"hp"`
	MaxHP      int       `json:"maxHp"`
	AC         int       `json:"ac"`
	Initiative *int      `json:"initiative"` // nil until rolled
	Conditions []string  `json:"conditions"`
	Color      string    `json:"color"`
	Type       TokenType `json:"type"`
	Hidden     bool      `json:"hidden"`
}

// TokenSpec describes a token to create; nil or empty fields take defaults.
type TokenSpec struct {
	Name       string    `json:"name"`
	X          *float64  `json:"x,omitempty"`
	Y          *float64  `json:"y,omitempty"`
	HP         *int      `json:"hp,omitempty"`
	MaxHP      *int      `json:"maxHp,omitempty"`
	AC         *int      `json:"ac,omitempty"`
	Initiative *int      `json:"initiative,omitempty"`
	Conditions []string  `json:"conditions,omitempty"`
	Color      string    `json:"color,omitempty"`
	Type       TokenType `json:"type,omitempty"`
	Hidden     bool      `json:"hidden,omitempty"`
}

// TokenPatch lists the token fields that may be updated. Nil means unchanged.
type TokenPatch struct {
	Name       *string    `json:"name,omitempty"`
	X          *float64   `json:"x,omitempty"`
	Y          *float64   `json:"y,omitempty"`
	HP         *int       `json:"hp,omitempty"`
	MaxHP      *int       `json:"maxHp,omitempty"`
	AC         *int       `json:"ac,omitempty"`
	Initiative *int       `json:"initiative,omitempty"`
	Conditions *[]string  `json:"conditions,omitempty"`
	Color      *string    `json:"color,omitempty"`
	Type       *TokenType `json:"type,omitempty"`
	Hidden     *bool      `json:"hidden,omitempty"`
}

// TouchesCombatant reports whether the patch changes a field mirrored into the combat order.
func (p TokenPatch) TouchesCombatant() bool {
	return p.Name != nil || p.HP != nil || p.MaxHP != nil || p.AC != nil || p.Initiative != nil
}

// TokenFilter 令牌列表过滤条件
type TokenFilter struct {
	Role   Role
	Type   TokenType // empty means all
	Search string
}

// Combatant 令牌在先攻顺序中的快照
type Combatant struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Initiative int    `json:"initiative"`
	HP         int    `json:"hp"`
	MaxHP      int    `json:"maxHp"`
	AC         int    `json:"ac"`
}

// CombatSession 战斗会话（进程内单例）
type CombatSession struct {
	Order       []Combatant `json:"combat_order"`
	CurrentTurn int         `json:"current_turn"`
	Round       int         `json:"round"`
	InCombat    bool        `json:"in_combat"`
}

// Active returns the combatant whose turn it is, if any.
func (s CombatSession) Active() (Combatant, bool) {
	if s.CurrentTurn < 0 || s.CurrentTurn >= len(s.Order) {
		return Combatant{}, false
	}
	return s.Order[s.CurrentTurn], true
}

type MessageType string

const (
	MessageSystem MessageType = "system"
	MessageDM     MessageType = "dm"
	MessagePlayer MessageType = "player"
	MessageDice   MessageType = "dice"
)

// ChatMessage 聊天记录条目，创建后不可变
type ChatMessage struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Type      MessageType `json:"type"`
	Sender    string      `json:"sender,omitempty"`
	Content   string      `json:"content"`
	Roll      *DiceRoll   `json:"roll,omitempty"`
}

// DiceRoll 骰子结果
type DiceRoll struct {
	Count       int    `json:"count"`
	Sides       int    `json:"sides"`
	Modifier    int    `json:"modifier"`
	Results     []int  `json:"results"`
	Total       int    `json:"total"`
	Description string `json:"description"`
}

// Sum returns the dice total before the modifier.
func (r DiceRoll) Sum() int {
	sum := 0
	for _, v := range r.Results {
		sum += v
	}
	return sum
}

// IsMax reports whether every die came up on its highest face.
func (r DiceRoll) IsMax() bool {
	return r.Count > 0 && r.Total >= r.Count*r.Sides+r.Modifier
}

// RollDisplay 临时显示的最近一次投骰
type RollDisplay struct {
	Roll       DiceRoll  `json:"roll"`
	Generation uint64    `json:"generation"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Note 战役笔记
type Note struct {
	ID        string     `json:"id"`
	Timestamp time.Time  `json:"timestamp"`
	Edited    *time.Time `json:"edited,omitempty"`
	Text      string     `json:"text"`
	Category  string     `json:"category"`
	IsPrivate bool       `json:"isPrivate"`
	Author    Role       `json:"author"`
}

// NoteCategories lists the known note categories; the first is the default.
var NoteCategories = []string{"general", "session", "location", "npc", "plot", "rules"}

type NoteSort string

const (
	SortNewest       NoteSort = "newest"
	SortOldest       NoteSort = "oldest"
	SortAlphabetical NoteSort = "alphabetical"
	SortCategory     NoteSort = "category"
)

// NoteQuery 笔记列表查询条件
type NoteQuery struct {
	Role     Role
	Category string // empty or "all" means every category
	Search   string
	Sort     NoteSort
}

// Snapshot 整个桌面状态的只读副本
type Snapshot struct {
	Tokens        []Token       `json:"tokens"`
	Combat        CombatSession `json:"combat"`
	Chat          []ChatMessage `json:"chat"`
	Notes         []Note        `json:"notes"`
	SelectedToken string        `json:"selected_token,omitempty"`
	LastRoll      *RollDisplay  `json:"last_roll,omitempty"`
}

// BundleVersion 导出格式版本
const BundleVersion = "1.0"

// Bundle 导出/导入文档
type Bundle struct {
	Tokens       []Token       `json:"tokens"`
	CombatOrder  []Combatant   `json:"combatOrder"`
	Notes        []Note        `json:"notes"`
	ChatMessages []ChatMessage `json:"chatMessages"`
	ExportDate   time.Time     `json:"exportDate"`
	Version      string        `json:"version"`
}

// Config 配置
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Game     GameConfig     `yaml:"game"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Port string `yaml:"port" env:"VTT_PORT"`
	Host string `yaml:"host" env:"VTT_HOST"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" env:"VTT_DB_PATH"`
}

type GameConfig struct {
	DiceDisplaySeconds int `yaml:"dice_display_seconds" env:"VTT_DICE_DISPLAY"`
	MaxChatMessages    int `yaml:"max_chat_messages" env:"VTT_MAX_CHAT"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"VTT_LOG_LEVEL"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	return Config{
		Server:   ServerConfig{Host: "127.0.0.1", Port: "8080"},
		Database: DatabaseConfig{Path: "./data/vtt.db"},
		Game:     GameConfig{DiceDisplaySeconds: 3},
		Log:      LogConfig{Level: "info"},
	}
}
