// Package credentials stores warehouse passwords and git tokens in the system
// keyring, falling back to an encrypted file store on headless hosts.
package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/pbkdf2"

	"medallion/internal/common"
)

const (
	keyringService   = "medallion"
	saltSize         = 32
	pbkdf2Iterations = 100000
	keySize          = 32
)

// Credential kinds used by the CLI.
const (
	KindSnowflakePassword = "snowflake_password"
	KindGitToken          = "git_token"
)

// Credential is one stored secret with its metadata.
type Credential struct {
	Name      string            `json:"name"`
	Kind      string            `json:"kind"`
	Value     string            `json:"value"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Encrypted bool              `json:"encrypted"`
}

// Manager stores and retrieves credentials.
type Manager struct {
	useKeyring bool
	dir        string
	masterKey  []byte
}

// NewManager creates a manager rooted at ~/.medallion/credentials. It uses
// the system keyring when one is available.
func NewManager() (*Manager, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to determine home directory: %w", err)
	}
	return newManager(filepath.Join(home, ".medallion", "credentials"), keyringAvailable())
}

// NewFileManager creates a manager that always uses the encrypted file store
// under dir. Used when the keyring must be bypassed.
func NewFileManager(dir string) (*Manager, error) {
	return newManager(dir, false)
}

func newManager(dir string, useKeyring bool) (*Manager, error) {
	m := &Manager{useKeyring: useKeyring, dir: dir}

	if !m.useKeyring {
		key, err := m.loadMasterKey()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize master key: %w", err)
		}
		m.masterKey = key
	}

	return m, nil
}

// Store saves a credential.
func (m *Manager) Store(name, kind, value string, metadata map[string]string) error {
	if m.useKeyring {
		return m.storeInKeyring(name, kind, value, metadata)
	}
	return m.storeEncrypted(name, kind, value, metadata)
}

// Get retrieves a credential. The returned value is always plaintext.
func (m *Manager) Get(name string) (*Credential, error) {
	if m.useKeyring {
		return m.getFromKeyring(name)
	}
	return m.getEncrypted(name)
}

// Delete removes a credential.
func (m *Manager) Delete(name string) error {
	if m.useKeyring {
		if err := keyring.Delete(keyringService, name); err != nil {
			return err
		}
		return m.updateIndex(name, false)
	}
	return os.Remove(m.credentialPath(name))
}

// List returns the names of stored credentials.
func (m *Manager) List() ([]string, error) {
	if m.useKeyring {
		// The keyring cannot enumerate, so a local index tracks names.
		return m.readIndex()
	}

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".cred") {
			names = append(names, strings.TrimSuffix(entry.Name(), ".cred"))
		}
	}
	return names, nil
}

func (m *Manager) storeInKeyring(name, kind, value string, metadata map[string]string) error {
	cred := Credential{Name: name, Kind: kind, Value: value, Metadata: metadata}

	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}

	if err := keyring.Set(keyringService, name, string(data)); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}

	return m.updateIndex(name, true)
}

func (m *Manager) getFromKeyring(name string) (*Credential, error) {
	data, err := keyring.Get(keyringService, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get from keyring: %w", err)
	}

	var cred Credential
	if err := json.Unmarshal([]byte(data), &cred); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential: %w", err)
	}
	return &cred, nil
}

func (m *Manager) storeEncrypted(name, kind, value string, metadata map[string]string) error {
	encrypted, err := m.encrypt(value)
	if err != nil {
		return fmt.Errorf("failed to encrypt credential: %w", err)
	}

	cred := Credential{Name: name, Kind: kind, Value: encrypted, Metadata: metadata, Encrypted: true}

	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(m.dir, common.DirPermissionSecure); err != nil {
		return err
	}

	path, err := common.ValidatePath(m.credentialPath(name), m.dir)
	if err != nil {
		return fmt.Errorf("invalid credential path: %w", err)
	}
	return os.WriteFile(path, data, common.FilePermissionSecure)
}

func (m *Manager) getEncrypted(name string) (*Credential, error) {
	path, err := common.ValidatePath(m.credentialPath(name), m.dir)
	if err != nil {
		return nil, fmt.Errorf("invalid credential path: %w", err)
	}

	data, err := os.ReadFile(path) // #nosec G304 - path is validated
	if err != nil {
		return nil, err
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, err
	}

	if cred.Encrypted {
		plaintext, err := m.decrypt(cred.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt credential: %w", err)
		}
		cred.Value = plaintext
		cred.Encrypted = false
	}

	return &cred, nil
}

func (m *Manager) encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(m.masterKey)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (m *Manager) decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(m.masterKey)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	if len(data) < gcm.NonceSize() {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, sealed := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// loadMasterKey reads the file-store master key, deriving and persisting a new
// one on first use. The key is derived from machine identity so the store is
// not portable between hosts.
func (m *Manager) loadMasterKey() ([]byte, error) {
	keyPath := filepath.Join(m.dir, ".master")

	data, err := os.ReadFile(keyPath) // #nosec G304 - fixed path under the store dir
	if err == nil {
		if len(data) != saltSize+keySize {
			return nil, fmt.Errorf("invalid master key file size")
		}
		return data[saltSize:], nil
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}

	key := pbkdf2.Key([]byte(machineID()), salt, pbkdf2Iterations, keySize, sha256.New)

	if err := os.MkdirAll(m.dir, common.DirPermissionSecure); err != nil {
		return nil, err
	}
	if err := os.WriteFile(keyPath, append(salt, key...), common.FilePermissionSecure); err != nil {
		return nil, err
	}

	return key, nil
}

func (m *Manager) credentialPath(name string) string {
	return filepath.Join(m.dir, name+".cred")
}

func (m *Manager) readIndex() ([]string, error) {
	data, err := os.ReadFile(filepath.Join(m.dir, ".index"))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	var index []string
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, err
	}
	return index, nil
}

func (m *Manager) updateIndex(name string, add bool) error {
	index, err := m.readIndex()
	if err != nil {
		return err
	}

	var updated []string
	found := false
	for _, n := range index {
		if n == name {
			found = true
			if !add {
				continue
			}
		}
		updated = append(updated, n)
	}
	if add && !found {
		updated = append(updated, name)
	}

	data, err := json.Marshal(updated)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(m.dir, common.DirPermissionSecure); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(m.dir, ".index"), data, common.FilePermissionSecure)
}

func keyringAvailable() bool {
	if os.Getenv("MEDALLION_USE_KEYCHAIN") == "false" {
		return false
	}

	switch runtime.GOOS {
	case "darwin", "windows":
		return true
	case "linux":
		if os.Getenv("DISPLAY") != "" || os.Getenv("WAYLAND_DISPLAY") != "" {
			return true
		}
	}
	return false
}

func machineID() string {
	hostname, _ := os.Hostname()
	user := os.Getenv("USER")
	if user == "" {
		user = os.Getenv("USERNAME")
	}

	data := fmt.Sprintf("%s-%s-%s-%s", hostname, user, runtime.GOOS, runtime.GOARCH)
	hash := sha256.Sum256([]byte(data))
	return base64.StdEncoding.EncodeToString(hash[:])
}

// Export bundles every stored credential into a password-encrypted blob for
// transfer to another host.
func (m *Manager) Export(password string) ([]byte, error) {
	names, err := m.List()
	if err != nil {
		return nil, err
	}

	bundle := make(map[string]*Credential, len(names))
	for _, name := range names {
		cred, err := m.Get(name)
		if err != nil {
			return nil, err
		}
		bundle[name] = cred
	}

	data, err := json.Marshal(bundle)
	if err != nil {
		return nil, err
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}

	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, keySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return append(salt, gcm.Seal(nonce, nonce, data, nil)...), nil
}

// Import restores credentials from an Export blob.
func (m *Manager) Import(data []byte, password string) error {
	if len(data) < saltSize {
		return fmt.Errorf("invalid backup data")
	}

	salt, ciphertext := data[:saltSize], data[saltSize:]
	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, keySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return fmt.Errorf("ciphertext too short")
	}

	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return fmt.Errorf("failed to decrypt: invalid password or corrupted data")
	}

	var bundle map[string]*Credential
	if err := json.Unmarshal(plaintext, &bundle); err != nil {
		return err
	}

	for name, cred := range bundle {
		if err := m.Store(name, cred.Kind, cred.Value, cred.Metadata); err != nil {
			return fmt.Errorf("failed to import credential %s: %w", name, err)
		}
	}

	return nil
}
