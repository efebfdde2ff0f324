package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// jsonDocument is the on-disk layout of the JSON token file.
type jsonDocument struct {
	Token      string    `json:"token"`
	CookieName string    `json:"cookie_name"`
	Domain     string    `json:"domain"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// JSONFileStore keeps the most recently saved token in a single JSON document.
// Saving a token overwrites the document regardless of its name.
type JSONFileStore struct {
	filePath string
}

// Compile-time check to ensure JSONFileStore implements TokenStore
var _ TokenStore = (*JSONFileStore)(nil)

// NewJSONFileStore creates a JSONFileStore for the given path, creating parent directories
// with 0700 permissions if they don't exist.
func NewJSONFileStore(filePath string) (*JSONFileStore, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0700); err != nil {
		return nil, err
	}

	return &JSONFileStore{
		filePath: filePath,
	}, nil
}

// Name implements TokenStore.
func (f *JSONFileStore) Name() string { return "json_file" }

// Read returns the stored token if the document was saved for the given name.
func (f *JSONFileStore) Read(ctx context.Context, name string) (string, error) {
	data, err := readSecureFile(ctx, f.filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrTokenNotFound
	}
	if err != nil {
		return "", err
	}

	var doc jsonDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("decoding token file %s: %w", f.filePath, err)
	}

	if doc.CookieName != name || doc.Token == "" {
		return "", ErrTokenNotFound
	}

	slog.InfoContext(ctx, "found token in JSON file", "path", f.filePath)
	return doc.Token, nil
}

// Write atomically replaces the document with the given token.
func (f *JSONFileStore) Write(ctx context.Context, token Token) error {
	updatedAt := token.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	data, err := json.MarshalIndent(jsonDocument{
		Token:      token.Value,
		CookieName: token.Name,
		Domain:     token.Domain,
		UpdatedAt:  updatedAt,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}

	if err := writeFileAtomic(ctx, f.filePath, data); err != nil {
		return err
	}

	slog.InfoContext(ctx, "saved token to JSON file", "path", f.filePath)
	return nil
}
