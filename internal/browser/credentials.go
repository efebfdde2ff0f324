package browser

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables holding the portal credentials.
const (
	UsernameEnv = "REYREY_USERNAME"
	PasswordEnv = "REYREY_PASSWORD"
)

// Credentials are the portal username and password.
type Credentials struct {
	Username string
	Password string
}

// CredentialsFunc returns the credentials to log in with. It is called at the
// start of every login attempt.
type CredentialsFunc func() (Credentials, error)

// EnvCredentials reads credentials from the process environment after loading
// envFile (if it exists) without overriding variables that are already set.
func EnvCredentials(envFile string) CredentialsFunc {
	return func() (Credentials, error) {
		if envFile != "" {
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				slog.Warn("failed to load env file", "path", envFile, "error", err)
			}
		}

		creds := Credentials{
			Username: os.Getenv(UsernameEnv),
			Password: os.Getenv(PasswordEnv),
		}
		if creds.Username == "" || creds.Password == "" {
			return Credentials{}, ErrMissingCredentials
		}
		return creds, nil
	}
}

// StaticCredentials always returns the given credentials.
func StaticCredentials(username, password string) CredentialsFunc {
	return func() (Credentials, error) {
		if username == "" || password == "" {
			return Credentials{}, ErrMissingCredentials
		}
		return Credentials{Username: username, Password: password}, nil
	}
}
