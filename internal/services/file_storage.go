package services

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStorage хранит PDF сертификатов в локальном каталоге.
// В БД пишется относительный путь
type FileStorage struct {
	baseDir string
}

// NewFileStorage создает каталог, если его нет
func NewFileStorage(baseDir string) (*FileStorage, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("ошибка создания каталога %s: %w", baseDir, err)
	}
	return &FileStorage{baseDir: baseDir}, nil
}

// Save атомарно записывает файл (tmp + rename) и возвращает относительный путь
func (s *FileStorage) Save(relPath string, data []byte) (string, error) {
	full, err := s.resolve(relPath)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("ошибка создания каталога: %w", err)
	}
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("ошибка записи файла: %w", err)
	}
	if err := os.Rename(tmp, full); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("ошибка сохранения файла: %w", err)
	}
	return filepath.ToSlash(filepath.Clean(relPath)), nil
}

// Read читает файл. ErrNotFound, если файла нет на диске
func (s *FileStorage) Read(relPath string) ([]byte, error) {
	full, err := s.resolve(relPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("файл %s: %w", relPath, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла: %w", err)
	}
	return data, nil
}

// resolve не выпускает путь за пределы baseDir
func (s *FileStorage) resolve(relPath string) (string, error) {
	if relPath == "" {
		return "", fmt.Errorf("пустой путь файла: %w", ErrNotFound)
	}
	clean := filepath.Clean(filepath.FromSlash(relPath))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", validationErrorf("недопустимый путь файла %q", relPath)
	}
	return filepath.Join(s.baseDir, clean), nil
}
