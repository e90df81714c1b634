// Package artifactstore implements the flat-rooted on-disk store for
// compiled component artifacts, tenant secrets, and encryption keys
// (§4.2). It is the one place in the runtime that knows the on-disk
// naming rules; every other package goes through it rather than building
// paths itself.
package artifactstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/oriys/raikiri/internal/errkind"
	raikiricrypto "github.com/oriys/raikiri/internal/pkg/crypto"
)

const (
	componentsDir = "components"
	secretsDir    = "secrets"
	keysDir       = "keys"
)

// Store is a flat-rooted directory store. All paths passed to its methods
// are relative to Root.
type Store struct {
	Root string
}

// New returns a Store rooted at root. It does not touch the filesystem;
// call Init to create the well-known subdirectories.
func New(root string) *Store {
	return &Store{Root: root}
}

// Init ensures components/, secrets/, and keys/ exist under Root. Errors
// other than "already exists" are fatal to the process (§4.2).
func (s *Store) Init() error {
	for _, dir := range []string{componentsDir, secretsDir, keysDir} {
		if err := s.CreateDir(dir); err != nil {
			return errkind.Wrap(errkind.Storage, fmt.Errorf("init %s: %w", dir, err))
		}
	}
	return nil
}

func (s *Store) abs(rel string) string {
	return filepath.Join(s.Root, filepath.FromSlash(rel))
}

// Read returns the contents of the file at rel.
func (s *Store) Read(rel string) ([]byte, error) {
	b, err := os.ReadFile(s.abs(rel))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errkind.Wrap(errkind.NotFound, err)
		}
		return nil, errkind.Wrap(errkind.Storage, err)
	}
	return b, nil
}

// Write atomically replaces the file at rel with content: it writes to a
// sibling temp file and renames over the target, so a crash mid-write
// never leaves a truncated artifact (§5 "Partially written artifacts").
func (s *Store) Write(rel string, content []byte) error {
	target := s.abs(rel)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errkind.Wrap(errkind.Storage, err)
	}
	tmp := target + ".tmp-" + randomSuffix()
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return errkind.Wrap(errkind.Storage, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return errkind.Wrap(errkind.Storage, err)
	}
	return nil
}

// Rename moves the file at relFrom to relTo, both relative to Root. It is
// used by the secrets shadow-file protocol to swap re-encrypted files
// over their originals (§4.3 "Key rotation").
func (s *Store) Rename(relFrom, relTo string) error {
	if err := os.Rename(s.abs(relFrom), s.abs(relTo)); err != nil {
		return errkind.Wrap(errkind.Storage, err)
	}
	return nil
}

// Remove deletes the file at rel. Removing a missing file is not an error.
func (s *Store) Remove(rel string) error {
	if err := os.Remove(s.abs(rel)); err != nil && !os.IsNotExist(err) {
		return errkind.Wrap(errkind.Storage, err)
	}
	return nil
}

// Exists reports whether rel exists.
func (s *Store) Exists(rel string) bool {
	_, err := os.Stat(s.abs(rel))
	return err == nil
}

// List returns the base names of entries directly under rel.
func (s *Store) List(rel string) ([]string, error) {
	entries, err := os.ReadDir(s.abs(rel))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errkind.Wrap(errkind.Storage, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// CreateDir ensures rel exists as a directory, including parents.
func (s *Store) CreateDir(rel string) error {
	if err := os.MkdirAll(s.abs(rel), 0o755); err != nil {
		return errkind.Wrap(errkind.Storage, err)
	}
	return nil
}

// ComponentPath returns the relative path of a component artifact
// (§4.2): tenant and name appear in plaintext here, unlike secrets/keys,
// because the artifact itself is not secret.
func ComponentPath(tenant, name string) string {
	return fmt.Sprintf("%s/%s.%s.aot.wasm", componentsDir, tenant, name)
}

// TenantHash returns the lower-hex SHA-256 of tenant, used as the
// directory/file component for that tenant's keys and secrets.
func TenantHash(tenant string) string {
	return raikiricrypto.HashHex(tenant)
}

// ComponentHash returns the lower-hex SHA-256 of "<tenant>.<name>", used
// as the secret file name within a tenant's secrets directory.
func ComponentHash(tenant, name string) string {
	return raikiricrypto.HashHex(tenant + "." + name)
}

// KeyPath returns the relative path of a tenant's encryption key.
func KeyPath(tenant string) string {
	return fmt.Sprintf("%s/%s", keysDir, TenantHash(tenant))
}

// SecretsTenantDir returns the relative path of a tenant's secrets
// directory.
func SecretsTenantDir(tenant string) string {
	return fmt.Sprintf("%s/%s", secretsDir, TenantHash(tenant))
}

// SecretPath returns the relative path of a (tenant, name)'s secret file.
func SecretPath(tenant, name string) string {
	return fmt.Sprintf("%s/%s", SecretsTenantDir(tenant), ComponentHash(tenant, name))
}
