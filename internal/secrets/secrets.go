// Package secrets looks up named secrets for pathguard consumers. The OS
// credential store is consulted first; hosts without one fall back to a YAML
// file that must pass fileops.ValidateConfigFilePermissions before it is read.
package secrets

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/adrg/xdg"
	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"

	"pathguard/internal/logging"
	"pathguard/pkg/fileops"
)

const (
	// Service name for OS credential store
	credentialService = "pathguard"

	secretsFileName = "secrets.yaml"
)

var (
	ErrSecretNotFound = errors.New("secret not found")
	ErrInvalidName    = errors.New("invalid secret name")
)

// Store reads and writes secrets. The zero value is not usable; call NewStore.
type Store struct {
	service  string
	filePath string
}

// DefaultFilePath returns the fallback secrets file next to the config file.
func DefaultFilePath() string {
	return filepath.Join(xdg.ConfigHome, "pathguard", secretsFileName)
}

// NewStore creates a store using filePath as the fallback file. An empty
// filePath selects DefaultFilePath.
func NewStore(filePath string) *Store {
	if filePath == "" {
		filePath = DefaultFilePath()
	}
	return &Store{
		service:  credentialService,
		filePath: filePath,
	}
}

// FilePath returns the fallback secrets file location.
func (s *Store) FilePath() string {
	return s.filePath
}

// Get returns the secret stored under name. It fails with ErrSecretNotFound
// when neither the credential store nor the fallback file holds it, and with
// a fileops permission error when the fallback file is readable by others.
func (s *Store) Get(name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}

	value, err := keyring.Get(s.service, name)
	switch {
	case err == nil:
		if strings.TrimSpace(value) == "" {
			return "", fmt.Errorf("%w: stored value for %q is empty", ErrSecretNotFound, name)
		}
		return value, nil
	case errors.Is(err, keyring.ErrNotFound):
		logging.Debug("Secret not in credential store, trying file", "name", name)
	default:
		logging.Warn("Credential store unavailable, trying file", "error", err)
	}

	secrets, err := s.readFile()
	if err != nil {
		return "", err
	}
	value, ok := secrets[name]
	if !ok || strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%w: %q", ErrSecretNotFound, name)
	}
	return value, nil
}

// Set stores value under name in the credential store. When the store is
// unavailable the secret is written to the fallback file with mode 0600.
func (s *Store) Set(name, value string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("secret value cannot be empty")
	}

	err := keyring.Set(s.service, name, value)
	if err == nil {
		return nil
	}
	logging.Warn("Credential store unavailable, writing secrets file", "path", s.filePath, "error", err)

	secrets, err := s.readFile()
	if err != nil && !errors.Is(err, ErrSecretNotFound) {
		return err
	}
	if secrets == nil {
		secrets = map[string]string{}
	}
	secrets[name] = value
	return s.writeFile(secrets)
}

// Delete removes name from both the credential store and the fallback file.
// Deleting a missing secret is not an error.
func (s *Store) Delete(name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	if err := keyring.Delete(s.service, name); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		logging.Warn("Failed to delete from credential store", "name", name, "error", err)
	}

	secrets, err := s.readFile()
	if err != nil {
		if errors.Is(err, ErrSecretNotFound) {
			return nil
		}
		return err
	}
	if _, ok := secrets[name]; !ok {
		return nil
	}
	delete(secrets, name)
	return s.writeFile(secrets)
}

// Status tests the credential store with a throwaway entry.
func (s *Store) Status() map[string]any {
	status := map[string]any{"file": s.filePath}

	const testKey = "pathguard_status_check"
	const testValue = "ok"

	if err := keyring.Set(s.service, testKey, testValue); err != nil {
		status["available"] = false
		status["error"] = err.Error()
		return status
	}
	defer keyring.Delete(s.service, testKey)

	got, err := keyring.Get(s.service, testKey)
	if err != nil {
		status["available"] = false
		status["error"] = err.Error()
		return status
	}
	if got != testValue {
		status["available"] = false
		status["error"] = "credential store corrupted - values don't match"
		return status
	}

	status["available"] = true
	return status
}

// readFile loads the fallback file. A missing file reports ErrSecretNotFound.
func (s *Store) readFile() (map[string]string, error) {
	if err := fileops.ValidateConfigFilePermissions(s.filePath); err != nil {
		if errors.Is(err, fileops.ErrNotFound) {
			return nil, fmt.Errorf("%w: no secrets file at %s", ErrSecretNotFound, s.filePath)
		}
		logging.LogRejection("read secrets", s.filePath, err)
		return nil, fmt.Errorf("secrets file rejected: %w", err)
	}

	data, err := fileops.SafeReadFile(s.filePath, "")
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets file: %w", err)
	}

	secrets := map[string]string{}
	if err := yaml.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("failed to parse secrets file: %w", err)
	}
	return secrets, nil
}

func (s *Store) writeFile(secrets map[string]string) error {
	if err := fileops.SafeEnsureDirectory(filepath.Dir(s.filePath), ""); err != nil {
		return fmt.Errorf("failed to create secrets directory: %w", err)
	}
	data, err := yaml.Marshal(secrets)
	if err != nil {
		return fmt.Errorf("failed to encode secrets: %w", err)
	}
	if err := fileops.SafeWriteFile(s.filePath, data, ""); err != nil {
		return fmt.Errorf("failed to write secrets file: %w", err)
	}
	return nil
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	for _, r := range name {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("%w: %q contains whitespace or control characters", ErrInvalidName, name)
		}
	}
	return nil
}
