package dobro

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ChannovDenis/dobro20-sub000/internal/auth"
)

const (
	sessionFile = "session"
	tenantFile  = "tenant"
)

// LoadOrCreateSessionID returns the session identifier stored in dir,
// creating and saving a new one on first use.
func LoadOrCreateSessionID(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, sessionFile))
	if err == nil {
		if id := strings.TrimSpace(string(data)); auth.ValidSessionID(id) {
			return id, nil
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	id := auth.NewSessionID()
	if err := writeConfig(dir, sessionFile, id); err != nil {
		return "", err
	}
	return id, nil
}

// LoadTenant returns the tenant slug saved in dir, or "".
func LoadTenant(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, tenantFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// SaveTenant remembers slug as the tenant for later commands.
func SaveTenant(dir, slug string) error {
	return writeConfig(dir, tenantFile, slug)
}

func writeConfig(dir, name, value string) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name), []byte(value+"\n"), 0600)
}
