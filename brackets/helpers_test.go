package brackets_test

import (
	"fmt"
	"testing"

	"github.com/matchforge/tournament-engine/brackets"
	"github.com/matchforge/tournament-engine/models"
)

func makeSlots(n int) []brackets.SeedSlot {
	slots := make([]brackets.SeedSlot, 0, n)
	for i := 0; i < n; i++ {
		slots = append(slots, brackets.SeedSlot{
			ParticipantID: 100 + i,
			DisplayName:   fmt.Sprintf("Player %d", i+1),
			Seed:          i + 1,
		})
	}
	return slots
}

func byUID(matches []*brackets.BracketMatch) map[string]*brackets.BracketMatch {
	index := make(map[string]*brackets.BracketMatch, len(matches))
	for _, m := range matches {
		index[m.UID] = m
	}
	return index
}

func blueprintOf(t *testing.T, bps []*brackets.Blueprint, typ models.BracketType) *brackets.Blueprint {
	t.Helper()
	for _, bp := range bps {
		if bp.Type == typ {
			return bp
		}
	}
	t.Fatalf("blueprint %s not found", typ)
	return nil
}

func playableCount(bps []*brackets.Blueprint) int {
	count := 0
	for _, bp := range bps {
		for _, m := range bp.Matches {
			if !m.IsBye {
				count++
			}
		}
	}
	return count
}

func seedOf(t *testing.T, slot *brackets.SeedSlot) int {
	t.Helper()
	if slot == nil {
		t.Fatal("expected a filled slot")
	}
	return slot.Seed
}
