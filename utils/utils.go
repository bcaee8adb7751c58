package utils

import (
	"os"
	"strings"

	"github.com/google/uuid"
)

// GetEnvOrDefault читает переменную окружения с запасным значением.
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// NewLobbyCode генерирует короткий код лобби для игрового сервера.
// Первые восемь hex-символов UUID достаточно уникальны в рамках турнира.
func NewLobbyCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// NewExportToken — уникальный суффикс для ключей экспорта в объектном
// хранилище, чтобы повторный экспорт не перетирал прежний файл.
func NewExportToken() string {
	return uuid.NewString()
}
