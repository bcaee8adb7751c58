package cache

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTournamentLeaderboardKeys(t *testing.T) {
	key := TournamentLeaderboardKey(42, 2, 25, "points", "desc")
	assert.Equal(t, "leaderboard:tournament:42:2:25:points:desc", key)
	assert.True(t, strings.HasPrefix(key, TournamentLeaderboardPrefix(42)))

	// префикс одного турнира не должен цеплять соседние id
	assert.False(t, strings.HasPrefix(TournamentLeaderboardKey(421, 1, 25, "points", "desc"), TournamentLeaderboardPrefix(42)))
}

func TestGlobalLeaderboardKeyNormalization(t *testing.T) {
	key := GlobalLeaderboardKey("", "", "all", 50, 0)
	assert.Equal(t, "leaderboard:global:-:-:all:50:0", key)
	assert.True(t, strings.HasPrefix(key, GlobalLeaderboardPrefix()))

	// двоеточия в фильтрах не ломают схему ключей
	weird := GlobalLeaderboardKey("dota:2", "eu:west", "weekly", 10, 20)
	assert.Equal(t, "leaderboard:global:dota_2:eu_west:weekly:10:20", weird)
}
