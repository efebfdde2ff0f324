package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/florianilch/reyrey-auth/internal/browser"
)

// promptCredentials reads credentials from the environment and asks for them
// on the terminal when they are missing and in is a TTY.
func promptCredentials(envFile string, in *os.File, out io.Writer) browser.CredentialsFunc {
	fromEnv := browser.EnvCredentials(envFile)

	return func() (browser.Credentials, error) {
		creds, err := fromEnv()
		if !errors.Is(err, browser.ErrMissingCredentials) {
			return creds, err
		}

		fd := int(in.Fd())
		if !term.IsTerminal(fd) {
			return creds, err
		}

		_, _ = fmt.Fprint(out, "Username: ")
		username, readErr := bufio.NewReader(in).ReadString('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return browser.Credentials{}, fmt.Errorf("reading username: %w", readErr)
		}

		_, _ = fmt.Fprint(out, "Password: ")
		password, readErr := term.ReadPassword(fd)
		_, _ = fmt.Fprintln(out)
		if readErr != nil {
			return browser.Credentials{}, fmt.Errorf("reading password: %w", readErr)
		}

		return browser.StaticCredentials(strings.TrimSpace(username), string(password))()
	}
}
