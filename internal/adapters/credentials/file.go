// Package credentials checks admin logins against a TOML file of bcrypt
// hashes:
//
//	[[admin]]
//	username = "root"
//	password_hash = "$2a$10$..."
package credentials

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

type adminEntry struct {
	Username     string `toml:"username"`
	PasswordHash string `toml:"password_hash"`
}

type fileFormat struct {
	Admin []adminEntry `toml:"admin"`
}

// Admins maps admin usernames to bcrypt hashes.
type Admins struct {
	hashes map[domain.Identity][]byte
}

var _ core.CredentialChecker = (*Admins)(nil)

// Load reads path. A missing file yields a checker that admits nobody.
func Load(path string) (*Admins, error) {
	a := &Admins{hashes: make(map[domain.Identity][]byte)}
	if path == "" {
		return a, nil
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		log.Warn().Str("module", "credentials").Str("path", path).Msg("admin file not found, admin login disabled")
		return a, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read admin file: %w", err)
	}
	return Parse(string(raw))
}

func Parse(data string) (*Admins, error) {
	var f fileFormat
	if _, err := toml.Decode(data, &f); err != nil {
		return nil, fmt.Errorf("parse admin file: %w", err)
	}
	a := &Admins{hashes: make(map[domain.Identity][]byte, len(f.Admin))}
	for _, e := range f.Admin {
		if e.Username == "" || e.PasswordHash == "" {
			return nil, fmt.Errorf("parse admin file: entry %q incomplete", e.Username)
		}
		a.hashes[domain.Identity(e.Username)] = []byte(e.PasswordHash)
	}
	log.Info().Str("module", "credentials").Int("admins", len(a.hashes)).Msg("admin credentials loaded")
	return a, nil
}

func (a *Admins) IsPrivileged(id domain.Identity, secret string) bool {
	if secret == "" {
		return false
	}
	hash, ok := a.hashes[id]
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(secret)) == nil
}
