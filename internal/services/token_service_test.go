package services

import (
	"errors"
	"testing"

	"pgregory.net/rapid"

	"github.com/aiwuxian/tabletop/internal/models"
)

func TestCreateTokenDefaults(t *testing.T) {
	tbl, _, _ := newTestTable(t)

	tok, err := tbl.Token(tbl.CreateToken(models.TokenSpec{}))
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if tok.Name != "New Token" || tok.HP != 30 || tok.MaxHP != 30 || tok.AC != 15 {
		t.Errorf("unexpected defaults: %+v", tok)
	}
	if tok.Type != models.TokenNPC {
		t.Errorf("type = %q, want npc", tok.Type)
	}
	if tok.Initiative != nil {
		t.Errorf("initiative should be unset, got %d", *tok.Initiative)
	}
	if tok.X < 100 || tok.X >= 400 || tok.Y < 100 || tok.Y >= 400 {
		t.Errorf("position (%v, %v) outside spawn area", tok.X, tok.Y)
	}
	if len(tok.Color) != 7 || tok.Color[0] != '#' {
		t.Errorf("color = %q, want #rrggbb", tok.Color)
	}
}

func TestCreateTokenHPFollowsMaxHP(t *testing.T) {
	tbl, _, _ := newTestTable(t)

	tok, _ := tbl.Token(tbl.CreateToken(models.TokenSpec{Name: "Ogre", MaxHP: intPtr(59)}))
	if tok.HP != 59 || tok.MaxHP != 59 {
		t.Errorf("hp/maxHp = %d/%d, want 59/59", tok.HP, tok.MaxHP)
	}

	tok, _ = tbl.Token(tbl.CreateToken(models.TokenSpec{Name: "Hurt", HP: intPtr(80), MaxHP: intPtr(20)}))
	if tok.HP != 20 {
		t.Errorf("hp above maxHp should clamp, got %d", tok.HP)
	}
}

func TestCreateFromPreset(t *testing.T) {
	tbl, _, _ := newTestTable(t)

	id, err := tbl.CreateFromPreset("goblin")
	if err != nil {
		t.Fatalf("CreateFromPreset failed: %v", err)
	}
	tok, _ := tbl.Token(id)
	if tok.Name != "Goblin" || tok.Type != models.TokenMonster {
		t.Errorf("unexpected preset token: %+v", tok)
	}

	if _, err := tbl.CreateFromPreset("Tarrasque"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown preset, got %v", err)
	}
}

func TestDuplicateToken(t *testing.T) {
	tbl, _, _ := newTestTable(t)
	id := tbl.CreateToken(models.TokenSpec{Name: "Guard", MaxHP: intPtr(11), Conditions: []string{"prone"}})
	if err := tbl.AddToCombat(id); err != nil {
		t.Fatalf("AddToCombat failed: %v", err)
	}

	copyID, err := tbl.DuplicateToken(id)
	if err != nil {
		t.Fatalf("DuplicateToken failed: %v", err)
	}
	dup, _ := tbl.Token(copyID)
	if copyID == id || dup.Name != "Guard (Copy)" || dup.MaxHP != 11 {
		t.Errorf("unexpected duplicate: %+v", dup)
	}
	if len(dup.Conditions) != 1 || dup.Conditions[0] != "prone" {
		t.Errorf("conditions not copied: %v", dup.Conditions)
	}
	if tbl.IsInCombat(copyID) {
		t.Error("duplicate should not join combat")
	}
}

func TestUpdateTokenSyncsCombatant(t *testing.T) {
	tbl, _, _ := newTestTable(t)
	id := tbl.CreateToken(models.TokenSpec{Name: "Knight", MaxHP: intPtr(30)})
	if err := tbl.AddToCombat(id); err != nil {
		t.Fatalf("AddToCombat failed: %v", err)
	}

	if err := tbl.UpdateToken(id, models.TokenPatch{HP: intPtr(10)}); err != nil {
		t.Fatalf("UpdateToken failed: %v", err)
	}

	tok, _ := tbl.Token(id)
	combat := tbl.Combat()
	if tok.HP != 10 || combat.Order[0].HP != 10 {
		t.Errorf("token hp %d, combatant hp %d, want both 10", tok.HP, combat.Order[0].HP)
	}

	name := "Sir Knight"
	_ = tbl.UpdateToken(id, models.TokenPatch{Name: &name, AC: intPtr(18)})
	c := tbl.Combat().Order[0]
	if c.Name != name || c.AC != 18 {
		t.Errorf("combatant not synced: %+v", c)
	}
}

func TestUpdateTokenNotFound(t *testing.T) {
	tbl, _, _ := newTestTable(t)

	if err := tbl.UpdateToken("nope", models.TokenPatch{HP: intPtr(1)}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestHPStaysWithinBounds(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		tbl := NewTable(nil, Options{Rand: &fixedSource{faces: []int{1}}, Logger: discardLogger()})
		maxHP := rapid.IntRange(-5, 500).Draw(rt, "maxHp")
		id := tbl.CreateToken(models.TokenSpec{MaxHP: &maxHP})

		for i, n := 0, rapid.IntRange(1, 10).Draw(rt, "steps"); i < n; i++ {
			if rapid.Bool().Draw(rt, "useDelta") {
				_, _ = tbl.AdjustHP(id, rapid.IntRange(-1000, 1000).Draw(rt, "delta"))
			} else {
				hp := rapid.IntRange(-1000, 1000).Draw(rt, "hp")
				_ = tbl.UpdateToken(id, models.TokenPatch{HP: &hp})
			}
			tok, _ := tbl.Token(id)
			if tok.MaxHP < 1 || tok.HP < 0 || tok.HP > tok.MaxHP {
				rt.Fatalf("hp %d outside [0, %d]", tok.HP, tok.MaxHP)
			}
		}
	})
}

func TestAdjustHP(t *testing.T) {
	tbl, _, _ := newTestTable(t)
	id := tbl.CreateToken(models.TokenSpec{MaxHP: intPtr(20)})

	tests := []struct {
		delta int
		want  int
	}{
		{delta: -7, want: 13},
		{delta: -50, want: 0},
		{delta: 5, want: 5},
		{delta: 100, want: 20},
	}
	for _, tt := range tests {
		got, err := tbl.AdjustHP(id, tt.delta)
		if err != nil {
			t.Fatalf("AdjustHP(%d) failed: %v", tt.delta, err)
		}
		if got != tt.want {
			t.Errorf("AdjustHP(%d) = %d, want %d", tt.delta, got, tt.want)
		}
	}
}

func TestConditions(t *testing.T) {
	tbl, _, _ := newTestTable(t)
	id := tbl.CreateToken(models.TokenSpec{})

	if err := tbl.AddCondition(id, "  "); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for blank condition, got %v", err)
	}
	_ = tbl.AddCondition(id, "poisoned")
	_ = tbl.AddCondition(id, "prone")
	_ = tbl.AddCondition(id, "stunned")

	if err := tbl.RemoveCondition(id, 1); err != nil {
		t.Fatalf("RemoveCondition failed: %v", err)
	}
	tok, _ := tbl.Token(id)
	if len(tok.Conditions) != 2 || tok.Conditions[0] != "poisoned" || tok.Conditions[1] != "stunned" {
		t.Errorf("conditions = %v", tok.Conditions)
	}
	if err := tbl.RemoveCondition(id, 5); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for bad index, got %v", err)
	}
}

func TestDeleteTokenRemovesCombatant(t *testing.T) {
	tbl, _, _ := newTestTable(t)
	a := tbl.CreateToken(models.TokenSpec{Name: "A", Initiative: intPtr(18)})
	b := tbl.CreateToken(models.TokenSpec{Name: "B", Initiative: intPtr(12)})
	_ = tbl.AddToCombat(a)
	_ = tbl.AddToCombat(b)
	_ = tbl.Select(a)

	cleared, err := tbl.DeleteToken(a)
	if err != nil {
		t.Fatalf("DeleteToken failed: %v", err)
	}
	if !cleared || tbl.Selected() != "" {
		t.Error("deleting the selected token should clear the selection")
	}
	if tbl.IsInCombat(a) {
		t.Error("deleted token still in combat")
	}
	combat := tbl.Combat()
	if len(combat.Order) != 1 || combat.Order[0].ID != b {
		t.Errorf("unexpected order: %+v", combat.Order)
	}

	if _, err := tbl.DeleteToken(a); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestListTokensFilters(t *testing.T) {
	tbl, _, _ := newTestTable(t)
	tbl.CreateToken(models.TokenSpec{Name: "Aria", Type: models.TokenPC})
	tbl.CreateToken(models.TokenSpec{Name: "Hidden Lich", Type: models.TokenMonster, Hidden: true})
	tbl.CreateToken(models.TokenSpec{Name: "Goblin Archer", Type: models.TokenMonster})

	if got := tbl.ListTokens(models.TokenFilter{Role: models.RoleDM}); len(got) != 3 {
		t.Errorf("DM sees %d tokens, want 3", len(got))
	}
	if got := tbl.ListTokens(models.TokenFilter{Role: models.RolePlayer}); len(got) != 2 {
		t.Errorf("player sees %d tokens, want 2", len(got))
	}
	got := tbl.ListTokens(models.TokenFilter{Role: models.RoleDM, Type: models.TokenMonster, Search: "GOBLIN"})
	if len(got) != 1 || got[0].Name != "Goblin Archer" {
		t.Errorf("filtered list = %+v", got)
	}
}
