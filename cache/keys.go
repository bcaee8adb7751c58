package cache

import (
	"fmt"
	"strings"
)

// Схема ключей лидербордов. Всё, что мутирует standings, обязано снести
// оба префикса: пер-турнирный и глобальный.

const (
	tournamentLeaderboardPrefix = "leaderboard:tournament:"
	globalLeaderboardPrefix     = "leaderboard:global:"
)

// TournamentLeaderboardKey строит ключ страницы турнирного лидерборда.
func TournamentLeaderboardKey(tournamentID, page, limit int, sortBy, order string) string {
	return fmt.Sprintf("%s%d:%d:%d:%s:%s", tournamentLeaderboardPrefix, tournamentID, page, limit, sortBy, order)
}

// TournamentLeaderboardPrefix — префикс всех страниц одного турнира.
func TournamentLeaderboardPrefix(tournamentID int) string {
	return fmt.Sprintf("%s%d:", tournamentLeaderboardPrefix, tournamentID)
}

// GlobalLeaderboardKey строит ключ страницы глобального лидерборда.
// Пустые фильтры нормализуются в "-", чтобы ключи не слипались.
func GlobalLeaderboardKey(gameID, region, timeframe string, limit, offset int) string {
	return fmt.Sprintf("%s%s:%s:%s:%d:%d",
		globalLeaderboardPrefix, normalize(gameID), normalize(region), normalize(timeframe), limit, offset)
}

// GlobalLeaderboardPrefix — префикс всех глобальных ключей.
func GlobalLeaderboardPrefix() string {
	return globalLeaderboardPrefix
}

func normalize(part string) string {
	part = strings.TrimSpace(part)
	if part == "" {
		return "-"
	}
	return strings.ReplaceAll(part, ":", "_")
}
