// Package tokenstore provides persistent storage backends for vendor session tokens.
//
// Every backend implements TokenStore and is keyed by logical token name (e.g. "DRT"):
//   - EnvFile: .env style flat file of REYREY_TOKEN_<NAME>=<value> lines; the process
//     environment takes precedence on read
//   - JSONFile: single JSON document with atomic writes and secure permissions
//   - SQL: SQLite table, most recent row per name wins
//   - API: remote token service over HTTP
//   - Keyring: OS-native credential storage (opt-in)
//
// A Registry maps store names to instances and constructs heavier backends lazily.
package tokenstore
