//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const defaultsDomain = "com.aide.app"

func defaultDataDir() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, "Library", "Application Support", "aide")
	}
	return "aide-data"
}

func keychainHint(account string) string {
	return " or macOS Keychain (service: aide, account: " + account + ")"
}

// darwinBackend keeps keys in the user's defaults domain.
type darwinBackend struct {
	domain string
}

func newPlatformBackend() ConfigBackend {
	return &darwinBackend{domain: defaultsDomain}
}

// defaults runs the defaults CLI against the domain and returns trimmed output.
func (b *darwinBackend) defaults(verb string, args ...string) (string, error) {
	out, err := exec.Command("defaults", append([]string{verb, b.domain}, args...)...).CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

func (b *darwinBackend) GetString(key string) (string, bool, error) {
	s, err := b.defaults("read", key)
	if err != nil {
		// Exit status 1 means the key is absent.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return "", false, nil
		}
		return "", false, fmt.Errorf("defaults read %s %s: %w (%s)", b.domain, key, err, s)
	}
	return s, true, nil
}

func (b *darwinBackend) GetInt(key string) (int, bool, error) {
	s, ok, err := b.GetString(key)
	if !ok || err != nil {
		return 0, ok, err
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, true, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return i, true, nil
}

func (b *darwinBackend) write(key, typ, val string) error {
	if out, err := b.defaults("write", key, typ, val); err != nil {
		return fmt.Errorf("defaults write %s %s: %w (%s)", b.domain, key, err, out)
	}
	return nil
}

func (b *darwinBackend) SetString(key, val string) error {
	return b.write(key, "-string", val)
}

func (b *darwinBackend) SetInt(key string, val int) error {
	return b.write(key, "-int", strconv.Itoa(val))
}

func (b *darwinBackend) Delete(key string) error {
	if out, err := b.defaults("delete", key); err != nil {
		return fmt.Errorf("defaults delete %s %s: %w (%s)", b.domain, key, err, out)
	}
	return nil
}
