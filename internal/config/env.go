package config

import (
	"os"

	"github.com/joho/godotenv"
)

// LoadEnv загружает переменные окружения из .env файла.
// Уже заданные переменные окружения не перезаписываются.
func LoadEnv(path string) error {
	return godotenv.Load(path)
}

// LoadEnvOptional загружает .env файл, если он существует.
// Отсутствие файла не считается ошибкой.
func LoadEnvOptional(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	return LoadEnv(path)
}
