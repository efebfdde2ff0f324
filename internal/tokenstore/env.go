package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/joho/godotenv"
)

// EnvKeyPrefix prefixes the variable name derived from a token name.
const EnvKeyPrefix = "REYREY_TOKEN_"

// EnvKey returns the variable name a token is stored under, e.g. DRT → REYREY_TOKEN_DRT.
func EnvKey(name string) string {
	return EnvKeyPrefix + strings.ToUpper(name)
}

// ErrUnrepresentable is returned when a value cannot be written to a .env file
// and read back unchanged.
var ErrUnrepresentable = errors.New("value cannot be stored in env file")

// EnvFileStore stores tokens in a .env style file as a flat map of variables.
// Variables already present in the process environment take precedence on read.
type EnvFileStore struct {
	filePath string
}

// Compile-time check to ensure EnvFileStore implements TokenStore
var _ TokenStore = (*EnvFileStore)(nil)

// NewEnvFileStore creates an EnvFileStore for the given .env file path.
func NewEnvFileStore(filePath string) (*EnvFileStore, error) {
	if filePath == "" {
		return nil, fmt.Errorf("env file path cannot be empty")
	}

	return &EnvFileStore{
		filePath: filePath,
	}, nil
}

// Name implements TokenStore.
func (e *EnvFileStore) Name() string { return "env_file" }

// Read returns the token from the process environment or the .env file.
func (e *EnvFileStore) Read(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key := EnvKey(name)
	if token, ok := os.LookupEnv(key); ok && token != "" {
		slog.InfoContext(ctx, "found token in environment variable", "variable", key)
		return token, nil
	}

	values, err := e.load()
	if err != nil {
		return "", err
	}

	token := values[key]
	if token == "" {
		return "", ErrTokenNotFound
	}

	slog.InfoContext(ctx, "found token in env file", "variable", key, "path", e.filePath)
	return token, nil
}

// Write sets the token's variable in the .env file, keeping all other entries.
func (e *EnvFileStore) Write(ctx context.Context, token Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	values, err := e.load()
	if err != nil && !errors.Is(err, ErrTokenNotFound) {
		return err
	}
	if values == nil {
		values = make(map[string]string, 1)
	}

	key := EnvKey(token.Name)
	values[key] = token.Value

	data, err := marshalEnv(values)
	if err != nil {
		return fmt.Errorf("encoding env file %s: %w", e.filePath, err)
	}

	if err := writeFileAtomic(ctx, e.filePath, data); err != nil {
		return fmt.Errorf("writing env file %s: %w", e.filePath, err)
	}

	slog.InfoContext(ctx, "saved token to env file", "variable", key, "path", e.filePath)
	return nil
}

// load parses the .env file. A missing file yields ErrTokenNotFound.
func (e *EnvFileStore) load() (map[string]string, error) {
	values, err := godotenv.Read(e.filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading env file %s: %w", e.filePath, err)
	}
	return values, nil
}

// marshalEnv renders the values as .env lines in a stable order. Values are
// single-quoted, which the parser takes literally; values containing a single
// quote or a line break fall back to godotenv's escaped double quotes. The
// output is parsed back and rejected if any value would not survive.
func marshalEnv(values map[string]string) ([]byte, error) {
	lines := make([]string, 0, len(values))
	for key, value := range values {
		if !strings.ContainsAny(value, "'\n\r") {
			lines = append(lines, key+"='"+value+"'")
			continue
		}
		line, err := godotenv.Marshal(map[string]string{key: value})
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	slices.Sort(lines)
	data := strings.Join(lines, "\n") + "\n"

	parsed, err := godotenv.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrepresentable, err)
	}
	for key, value := range values {
		if parsed[key] != value {
			return nil, fmt.Errorf("%w: %s", ErrUnrepresentable, key)
		}
	}
	return []byte(data), nil
}
