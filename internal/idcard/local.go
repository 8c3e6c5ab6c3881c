package idcard

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage writes ID cards under <root>/id_cards.
type LocalStorage struct {
	dir string
}

func NewLocalStorage(root string) *LocalStorage {
	if root == "" {
		root = "uploads"
	}
	return &LocalStorage{dir: filepath.Join(root, "id_cards")}
}

func (s *LocalStorage) Save(_ context.Context, name, _ string, data []byte) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("idcard: invalid file name %q", name)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("idcard: create dir: %w", err)
	}
	dst := filepath.Join(s.dir, name)
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", fmt.Errorf("idcard: write %s: %w", name, err)
	}
	return filepath.ToSlash(dst), nil
}

// Remove deletes a previously saved card. Missing files are not an error.
func (s *LocalStorage) Remove(_ context.Context, location string) error {
	if location == "" {
		return nil
	}
	err := os.Remove(filepath.FromSlash(location))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("idcard: remove %s: %w", location, err)
	}
	return nil
}
