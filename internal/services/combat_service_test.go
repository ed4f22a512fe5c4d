package services

import (
	"errors"
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"github.com/aiwuxian/tabletop/internal/models"
)

func lastMessage(t *testing.T, tbl *Table) models.ChatMessage {
	t.Helper()
	msgs := tbl.Messages()
	if len(msgs) == 0 {
		t.Fatal("chat is empty")
	}
	return msgs[len(msgs)-1]
}

func TestToggleCombatFromIdle(t *testing.T) {
	tbl, _, _ := newTestTable(t)

	if !tbl.ToggleCombat() {
		t.Fatal("expected combat to start")
	}
	combat := tbl.Combat()
	if combat.CurrentTurn != 0 || combat.Round != 1 {
		t.Errorf("unexpected session after start: %+v", combat)
	}
	if msg := lastMessage(t, tbl); msg.Type != models.MessageSystem || msg.Content != "Combat started! Roll for initiative." {
		t.Errorf("unexpected start message: %+v", msg)
	}

	if tbl.ToggleCombat() {
		t.Fatal("expected combat to end")
	}
	if msg := lastMessage(t, tbl); msg.Content != "Combat ended." {
		t.Errorf("unexpected end message: %q", msg.Content)
	}
}

func TestAddToCombat(t *testing.T) {
	tbl, _, _ := newTestTable(t)
	id := tbl.CreateToken(models.TokenSpec{Name: "Scout", MaxHP: intPtr(16), AC: intPtr(13)})

	if err := tbl.AddToCombat("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	_ = tbl.AddToCombat(id)
	_ = tbl.AddToCombat(id)

	order := tbl.Combat().Order
	if len(order) != 1 {
		t.Fatalf("adding twice should be a no-op, order has %d entries", len(order))
	}
	want := models.Combatant{ID: id, Name: "Scout", Initiative: DefaultInitiative, HP: 16, MaxHP: 16, AC: 13}
	if order[0] != want {
		t.Errorf("combatant = %+v, want %+v", order[0], want)
	}
}

func TestCombatOrderSortedStable(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		tbl := NewTable(nil, Options{Rand: &fixedSource{faces: []int{1}}, Logger: discardLogger()})
		inits := rapid.SliceOfN(rapid.IntRange(1, 5), 1, 12).Draw(rt, "initiatives")

		added := map[string]int{}
		for i, v := range inits {
			id := tbl.CreateToken(models.TokenSpec{Name: fmt.Sprintf("t%d", i), Initiative: intPtr(v)})
			added[id] = i
			if err := tbl.AddToCombat(id); err != nil {
				rt.Fatalf("AddToCombat failed: %v", err)
			}
		}

		order := tbl.Combat().Order
		for i := 1; i < len(order); i++ {
			prev, cur := order[i-1], order[i]
			if prev.Initiative < cur.Initiative {
				rt.Fatalf("order not descending at %d: %d < %d", i, prev.Initiative, cur.Initiative)
			}
			if prev.Initiative == cur.Initiative && added[prev.ID] > added[cur.ID] {
				rt.Fatalf("tie at %d not in insertion order", i)
			}
		}
	})
}

func TestCombatOrderStableAcrossInitiativeChanges(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		faces := rapid.SliceOfN(rapid.IntRange(1, 5), 1, 8).Draw(rt, "faces")
		tbl := NewTable(nil, Options{Rand: &fixedSource{faces: faces}, Logger: discardLogger()})
		inits := rapid.SliceOfN(rapid.IntRange(1, 5), 1, 10).Draw(rt, "initiatives")

		var ids []string
		for i, v := range inits {
			id := tbl.CreateToken(models.TokenSpec{Name: fmt.Sprintf("t%d", i), Initiative: intPtr(v)})
			if err := tbl.AddToCombat(id); err != nil {
				rt.Fatalf("AddToCombat failed: %v", err)
			}
			ids = append(ids, id)
		}

		steps := rapid.IntRange(1, 20).Draw(rt, "steps")
		for step := 0; step < steps; step++ {
			before := map[string]int{}
			for i, c := range tbl.Combat().Order {
				before[c.ID] = i
			}

			id := ids[rapid.IntRange(0, len(ids)-1).Draw(rt, "combatant")]
			if rapid.Bool().Draw(rt, "roll") {
				if _, err := tbl.RollInitiative(id); err != nil {
					rt.Fatalf("RollInitiative failed: %v", err)
				}
			} else {
				v := rapid.IntRange(1, 5).Draw(rt, "value")
				if _, err := tbl.SetInitiative(id, v); err != nil {
					rt.Fatalf("SetInitiative failed: %v", err)
				}
			}

			order := tbl.Combat().Order
			if len(order) != len(ids) {
				rt.Fatalf("order has %d entries, want %d", len(order), len(ids))
			}
			for i := 1; i < len(order); i++ {
				prev, cur := order[i-1], order[i]
				if prev.Initiative < cur.Initiative {
					rt.Fatalf("step %d: order not descending at %d: %d < %d", step, i, prev.Initiative, cur.Initiative)
				}
				if prev.Initiative == cur.Initiative && before[prev.ID] > before[cur.ID] {
					rt.Fatalf("step %d: tie at %d changed relative order", step, i)
				}
			}
		}
	})
}

func TestResortKeepsActiveCombatant(t *testing.T) {
	tbl, backend, _ := newTestTable(t)
	a := tbl.CreateToken(models.TokenSpec{Name: "A", Initiative: intPtr(20)})
	b := tbl.CreateToken(models.TokenSpec{Name: "B", Initiative: intPtr(10)})
	_ = tbl.AddToCombat(a)
	_ = tbl.AddToCombat(b)
	tbl.ToggleCombat()
	tbl.NextTurn()

	c := tbl.CreateToken(models.TokenSpec{Name: "C", Initiative: intPtr(15)})
	if err := tbl.AddToCombat(c); err != nil {
		t.Fatalf("AddToCombat failed: %v", err)
	}
	combat := tbl.Combat()
	if active, ok := combat.Active(); !ok || active.ID != b || combat.CurrentTurn != 2 {
		t.Fatalf("after add: turn %d active %+v, want %s", combat.CurrentTurn, active, b)
	}
	if string(backend.data["vtt-current-turn"]) != "2" {
		t.Errorf("persisted turn = %s, want 2", backend.data["vtt-current-turn"])
	}

	if _, err := tbl.SetInitiative(b, 30); err != nil {
		t.Fatalf("SetInitiative failed: %v", err)
	}
	combat = tbl.Combat()
	if active, ok := combat.Active(); !ok || active.ID != b || combat.CurrentTurn != 0 {
		t.Errorf("after raising: turn %d active %+v, want %s", combat.CurrentTurn, active, b)
	}

	if err := tbl.UpdateToken(a, models.TokenPatch{Initiative: intPtr(40)}); err != nil {
		t.Fatalf("UpdateToken failed: %v", err)
	}
	combat = tbl.Combat()
	if active, ok := combat.Active(); !ok || active.ID != b || combat.CurrentTurn != 1 {
		t.Errorf("after reordering another: turn %d active %+v, want %s", combat.CurrentTurn, active, b)
	}

	// 下一位仍按新顺序推进
	if next, _ := tbl.NextTurn(); next.ID != c {
		t.Errorf("next = %+v, want %s", next, c)
	}
}

func TestNextTurnWrapsRound(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		tbl := NewTable(nil, Options{Rand: &fixedSource{faces: []int{1}}, Logger: discardLogger()})
		n := rapid.IntRange(1, 8).Draw(rt, "combatants")
		for i := 0; i < n; i++ {
			_ = tbl.AddToCombat(tbl.CreateToken(models.TokenSpec{Initiative: intPtr(20 - i)}))
		}
		tbl.ToggleCombat()

		steps := rapid.IntRange(0, 40).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			if _, ok := tbl.NextTurn(); !ok {
				rt.Fatal("NextTurn reported an empty order")
			}
		}

		combat := tbl.Combat()
		if combat.CurrentTurn != steps%n {
			rt.Fatalf("current turn = %d, want %d", combat.CurrentTurn, steps%n)
		}
		if combat.Round != 1+steps/n {
			rt.Fatalf("round = %d, want %d", combat.Round, 1+steps/n)
		}
	})
}

func TestNextTurnMessage(t *testing.T) {
	tbl, _, _ := newTestTable(t)
	_ = tbl.AddToCombat(tbl.CreateToken(models.TokenSpec{Name: "Aria", Initiative: intPtr(18)}))
	_ = tbl.AddToCombat(tbl.CreateToken(models.TokenSpec{Name: "Bandit", Initiative: intPtr(9)}))
	tbl.ToggleCombat()

	active, ok := tbl.NextTurn()
	if !ok || active.Name != "Bandit" {
		t.Fatalf("active = %+v, want Bandit", active)
	}
	if msg := lastMessage(t, tbl); msg.Content != "Bandit's turn! (Round 1)" {
		t.Errorf("message = %q", msg.Content)
	}

	tbl.NextTurn()
	if msg := lastMessage(t, tbl); msg.Content != "Aria's turn! (Round 2)" {
		t.Errorf("message = %q", msg.Content)
	}
}

func TestNextTurnEmptyOrder(t *testing.T) {
	tbl, _, _ := newTestTable(t)
	before := len(tbl.Messages())

	if _, ok := tbl.NextTurn(); ok {
		t.Error("NextTurn on an empty order should report false")
	}
	if len(tbl.Messages()) != before {
		t.Error("NextTurn on an empty order should not post a message")
	}
	if combat := tbl.Combat(); combat.Round != 1 || combat.CurrentTurn != 0 {
		t.Errorf("session changed: %+v", combat)
	}
}

func TestRemoveKeepsActiveCombatant(t *testing.T) {
	tbl, _, _ := newTestTable(t)
	var ids []string
	for i, v := range []int{20, 15, 10} {
		id := tbl.CreateToken(models.TokenSpec{Name: fmt.Sprintf("c%d", i), Initiative: intPtr(v)})
		_ = tbl.AddToCombat(id)
		ids = append(ids, id)
	}
	tbl.NextTurn()
	tbl.NextTurn()

	if err := tbl.RemoveFromCombat(ids[0]); err != nil {
		t.Fatalf("RemoveFromCombat failed: %v", err)
	}
	active, ok := tbl.Combat().Active()
	if !ok || active.ID != ids[2] {
		t.Errorf("active = %+v, want %s", active, ids[2])
	}

	_ = tbl.RemoveFromCombat(ids[2])
	combat := tbl.Combat()
	if combat.CurrentTurn != 0 {
		t.Errorf("current turn = %d, want 0 after removing the last entry", combat.CurrentTurn)
	}
	if err := tbl.RemoveFromCombat(ids[2]); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := tbl.Token(ids[2]); err != nil {
		t.Error("removing from combat should keep the token")
	}
}

func TestRollInitiative(t *testing.T) {
	tbl, _, _ := newTestTable(t, 17)
	low := tbl.CreateToken(models.TokenSpec{Name: "Slow", Initiative: intPtr(3)})
	hero := tbl.CreateToken(models.TokenSpec{Name: "Hero"})
	_ = tbl.AddToCombat(low)
	_ = tbl.AddToCombat(hero)

	got, err := tbl.RollInitiative(low)
	if err != nil {
		t.Fatalf("RollInitiative failed: %v", err)
	}
	if got != 17 {
		t.Errorf("rolled %d, want 17", got)
	}
	tok, _ := tbl.Token(low)
	if tok.Initiative == nil || *tok.Initiative != 17 {
		t.Errorf("token initiative not updated: %v", tok.Initiative)
	}
	if order := tbl.Combat().Order; order[0].ID != low {
		t.Errorf("order not re-sorted: %+v", order)
	}
	if msg := lastMessage(t, tbl); msg.Type != models.MessageDice || msg.Content != "Slow rolled initiative: 17" {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestRollAllInitiative(t *testing.T) {
	tbl, _, _ := newTestTable(t, 4, 19)
	for _, name := range []string{"A", "B"} {
		_ = tbl.AddToCombat(tbl.CreateToken(models.TokenSpec{Name: name, Color: "#000000", X: new(float64), Y: new(float64)}))
	}

	if n := tbl.RollAllInitiative(); n != 2 {
		t.Errorf("rolled %d, want 2", n)
	}
	order := tbl.Combat().Order
	if order[0].Name != "B" || order[0].Initiative != 19 || order[1].Initiative != 4 {
		t.Errorf("unexpected order: %+v", order)
	}
	if msg := lastMessage(t, tbl); msg.Content != "Rolled initiative for all combatants!" {
		t.Errorf("message = %q", msg.Content)
	}
	if turn := tbl.Combat().CurrentTurn; turn != 0 {
		t.Errorf("current turn = %d, want 0 after rolling everyone", turn)
	}
}

func TestSetInitiative(t *testing.T) {
	tbl, _, _ := newTestTable(t)
	a := tbl.CreateToken(models.TokenSpec{Name: "A", Initiative: intPtr(5)})
	b := tbl.CreateToken(models.TokenSpec{Name: "B", Initiative: intPtr(8)})
	_ = tbl.AddToCombat(a)
	_ = tbl.AddToCombat(b)

	got, err := tbl.SetInitiative(a, 22)
	if err != nil || got != 22 {
		t.Fatalf("SetInitiative = %d, %v", got, err)
	}
	if order := tbl.Combat().Order; order[0].ID != a {
		t.Errorf("order not re-sorted: %+v", order)
	}

	got, _ = tbl.SetInitiative(a, 150)
	if got != DefaultInitiative {
		t.Errorf("out-of-range value = %d, want %d", got, DefaultInitiative)
	}
	if _, err := tbl.SetInitiative("missing", 12); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSetInitiativeOutsideCombat(t *testing.T) {
	tbl, _, _ := newTestTable(t)
	id := tbl.CreateToken(models.TokenSpec{Name: "Bystander", Initiative: intPtr(6)})

	if _, err := tbl.SetInitiative(id, 18); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a token outside combat, got %v", err)
	}
	tok, _ := tbl.Token(id)
	if tok.Initiative == nil || *tok.Initiative != 6 {
		t.Errorf("token initiative changed: %v", tok.Initiative)
	}
	if len(tbl.Combat().Order) != 0 {
		t.Error("token should not join combat")
	}
}

func TestParseInitiative(t *testing.T) {
	tests := map[string]int{
		"14":   14,
		" 7 ":  7,
		"abc":  DefaultInitiative,
		"":     DefaultInitiative,
		"0":    DefaultInitiative,
		"100":  DefaultInitiative,
		"99":   99,
		"-3":   DefaultInitiative,
		"12.5": DefaultInitiative,
	}
	for raw, want := range tests {
		if got := ParseInitiative(raw); got != want {
			t.Errorf("ParseInitiative(%q) = %d, want %d", raw, got, want)
		}
	}
}

func TestClearCombat(t *testing.T) {
	tbl, _, _ := newTestTable(t)
	id := tbl.CreateToken(models.TokenSpec{})
	_ = tbl.AddToCombat(id)
	tbl.ToggleCombat()
	tbl.NextTurn()

	tbl.ClearCombat()

	combat := tbl.Combat()
	if len(combat.Order) != 0 || combat.CurrentTurn != 0 || combat.Round != 1 {
		t.Errorf("unexpected session: %+v", combat)
	}
	if !combat.InCombat {
		t.Error("clearing the tracker should not end combat")
	}
	if _, err := tbl.Token(id); err != nil {
		t.Error("clearing the tracker should keep tokens")
	}
	if msg := lastMessage(t, tbl); msg.Content != "Combat tracker cleared." {
		t.Errorf("message = %q", msg.Content)
	}
}
