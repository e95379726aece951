package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// DataDirName каталог с файлами активности внутри сохранения мира
const DataDirName = "chunk_activity_info"

// FileExtension расширение файла одного измерения
const FileExtension = ".dat"

// PathResolver отдаёт путь к ресурсу в текущем сохранении мира
type PathResolver interface {
	ResolvePath(resource string) (string, error)
}

// DirResolver разрешает ресурсы относительно фиксированного каталога мира
type DirResolver string

// ResolvePath возвращает <root>/<resource>
func (d DirResolver) ResolvePath(resource string) (string, error) {
	if d == "" {
		return "", fmt.Errorf("каталог мира не задан")
	}
	return filepath.Join(string(d), resource), nil
}

// FileBackend хранит каждое измерение в отдельном файле <world>/chunk_activity_info/<dim>.dat
type FileBackend struct {
	resolver PathResolver
}

// NewFileBackend создаёт файловый бэкенд
func NewFileBackend(resolver PathResolver) *FileBackend {
	return &FileBackend{resolver: resolver}
}

// Name возвращает "file"
func (fb *FileBackend) Name() string {
	return string(KindFile)
}

// Path возвращает путь к файлу измерения
func (fb *FileBackend) Path(dimension string) (string, error) {
	dir, err := fb.resolver.ResolvePath(DataDirName)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, SanitizeDimension(dimension)+FileExtension), nil
}

// Read читает файл измерения целиком
func (fb *FileBackend) Read(ctx context.Context, dimension string) ([]byte, error) {
	filename, err := fb.Path(dimension)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filename)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла %s: %w", filename, err)
	}
	return data, nil
}

// Write пишет данные во временный файл рядом с целевым и переименовывает его
func (fb *FileBackend) Write(ctx context.Context, dimension string, data []byte) error {
	filename, err := fb.Path(dimension)
	if err != nil {
		return err
	}

	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("не удалось создать директорию %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(filename)+".tmp-*")
	if err != nil {
		return fmt.Errorf("не удалось создать временный файл в %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("ошибка записи файла %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("ошибка синхронизации файла %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("ошибка закрытия файла %s: %w", tmpName, err)
	}

	if err := os.Rename(tmpName, filename); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("ошибка замены файла %s: %w", filename, err)
	}
	return nil
}

// Close ничего не делает: файлы не держатся открытыми
func (fb *FileBackend) Close() error {
	return nil
}
