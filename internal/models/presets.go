package models

import "strings"

// Preset 预设令牌模板
type Preset struct {
	Name  string    `json:"name"`
	Type  TokenType `json:"type"`
	HP    int       `json:"hp"`
	MaxHP int       `json:"maxHp"`
	AC    int       `json:"ac"`
	Color string    `json:"color"`
}

// Presets is the built-in token library.
var Presets = []Preset{
	{Name: "Human Fighter", Type: TokenPC, HP: 40, MaxHP: 40, AC: 18, Color: "#e74c3c"},
	{Name: "Elf Wizard", Type: TokenPC, HP: 25, MaxHP: 25, AC: 12, Color: "#9b59b6"},
	{Name: "Dwarf Cleric", Type: TokenPC, HP: 35, MaxHP: 35, AC: 16, Color: "#f39c12"},
	{Name: "Halfling Rogue", Type: TokenPC, HP: 30, MaxHP: 30, AC: 14, Color: "#27ae60"},
	{Name: "Dragonborn Paladin", Type: TokenPC, HP: 45, MaxHP: 45, AC: 19, Color: "#3498db"},
	{Name: "Tiefling Warlock", Type: TokenPC, HP: 28, MaxHP: 28, AC: 13, Color: "#8e44ad"},

	{Name: "Town Guard", Type: TokenNPC, HP: 20, MaxHP: 20, AC: 16, Color: "#34495e"},
	{Name: "Merchant", Type: TokenNPC, HP: 15, MaxHP: 15, AC: 12, Color: "#f39c12"},
	{Name: "Noble", Type: TokenNPC, HP: 18, MaxHP: 18, AC: 15, Color: "#9b59b6"},
	{Name: "Innkeeper", Type: TokenNPC, HP: 22, MaxHP: 22, AC: 11, Color: "#e67e22"},

	{Name: "Goblin", Type: TokenMonster, HP: 7, MaxHP: 7, AC: 15, Color: "#27ae60"},
	{Name: "Orc", Type: TokenMonster, HP: 15, MaxHP: 15, AC: 13, Color: "#e74c3c"},
	{Name: "Skeleton", Type: TokenMonster, HP: 13, MaxHP: 13, AC: 13, Color: "#95a5a6"},
	{Name: "Wolf", Type: TokenMonster, HP: 11, MaxHP: 11, AC: 13, Color: "#7f8c8d"},
	{Name: "Dragon", Type: TokenMonster, HP: 200, MaxHP: 200, AC: 19, Color: "#c0392b"},
	{Name: "Troll", Type: TokenMonster, HP: 84, MaxHP: 84, AC: 15, Color: "#16a085"},

	{Name: "Barrel", Type: TokenObject, HP: 10, MaxHP: 10, AC: 15, Color: "#8b4513"},
	{Name: "Chest", Type: TokenObject, HP: 25, MaxHP: 25, AC: 17, Color: "#cd853f"},
	{Name: "Door", Type: TokenObject, HP: 30, MaxHP: 30, AC: 15, Color: "#a0522d"},
	{Name: "Statue", Type: TokenObject, HP: 50, MaxHP: 50, AC: 17, Color: "#708090"},
}

// FindPreset looks a preset up by name, ignoring case.
func FindPreset(name string) (Preset, bool) {
	name = strings.TrimSpace(name)
	for _, p := range Presets {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Preset{}, false
}

// Spec converts the preset into a creation spec.
func (p Preset) Spec() TokenSpec {
	hp, maxHP, ac := p.HP, p.MaxHP, p.AC
	return TokenSpec{
		Name:  p.Name,
		HP:    &hp,
		MaxHP: &maxHP,
		AC:    &ac,
		Color: p.Color,
		Type:  p.Type,
	}
}
