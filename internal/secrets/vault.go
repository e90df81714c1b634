// Package secrets implements the SecretVault (§4.3): per-tenant
// AES-256-CBC encryption, key generation and rotation, and YAML
// (de)serialization of ordered secret maps.
package secrets

import (
	"context"

	"github.com/oriys/raikiri/internal/artifactstore"
	"github.com/oriys/raikiri/internal/cache"
	"github.com/oriys/raikiri/internal/domain"
	"github.com/oriys/raikiri/internal/errkind"
	raikiricrypto "github.com/oriys/raikiri/internal/pkg/crypto"
)

// Vault is the process-wide SecretVault. It is safe for concurrent use
// and shared, by construction, between the Gateway and the
// CapabilityBridge (§5 "the bridge uses the same SecretVault cache as the
// gateway").
type Vault struct {
	store *artifactstore.Store

	// keys single-flights per-tenant key creation so a concurrent "first
	// read" of a new tenant's key generates at most one key (§9 open
	// question, resolved).
	keys *cache.KeyedCache[string, []byte]

	// secretsCache is the decrypted-secrets cache threaded through the
	// gateway and the bridge. It is deliberately not invalidated by
	// UpdateSecrets — see §5/§9: readers may observe stale values until
	// the entry is otherwise rebuilt. This is preserved, not a bug.
	secretsCache *cache.KeyedCache[string, domain.SecretMap]
}

// New returns a Vault backed by store.
func New(store *artifactstore.Store) *Vault {
	return &Vault{
		store:        store,
		keys:         cache.New[string, []byte](),
		secretsCache: cache.New[string, domain.SecretMap](),
	}
}

// GetKey returns tenant's 32-byte encryption key, generating and
// persisting one on first access (§4.3 "Key acquisition").
func (v *Vault) GetKey(ctx context.Context, tenant string) ([]byte, error) {
	entry, err := v.keys.LookupOrBuildAsync(ctx, tenant, func(ctx context.Context) ([]byte, error) {
		path := artifactstore.KeyPath(tenant)
		if v.store.Exists(path) {
			return v.store.Read(path)
		}
		key, err := raikiricrypto.GenerateKey()
		if err != nil {
			return nil, errkind.Wrap(errkind.Crypto, err)
		}
		if err := v.store.Write(path, key); err != nil {
			return nil, err
		}
		return key, nil
	})
	if err != nil {
		return nil, err
	}
	g := entry.Read()
	defer g.Release()
	return g.Value(), nil
}

// GetSecrets reads, decrypts, and parses the secret map for (tenant,
// name) straight from disk. A missing secret file is not an error: it
// yields an empty map (§4.3 step 1).
func (v *Vault) GetSecrets(ctx context.Context, tenant, name string) (domain.SecretMap, error) {
	path := artifactstore.SecretPath(tenant, name)
	if !v.store.Exists(path) {
		return domain.SecretMap{}, nil
	}

	ciphertext, err := v.store.Read(path)
	if err != nil {
		return nil, err
	}

	key, err := v.GetKey(ctx, tenant)
	if err != nil {
		return nil, err
	}

	cipher, err := raikiricrypto.NewCipher(key)
	if err != nil {
		return nil, errkind.Wrap(errkind.Crypto, err)
	}
	plaintext, err := cipher.Decrypt(ciphertext)
	if err != nil {
		return nil, errkind.Wrap(errkind.Crypto, err)
	}

	return parseSecretYAML(plaintext)
}

// GetSecretsCached is GetSecrets routed through the process-wide
// secretsCache, the path used by the Gateway and the CapabilityBridge
// (§4.6) so reentrant frames for the same (tenant, name) share one
// decrypted map.
func (v *Vault) GetSecretsCached(ctx context.Context, tenant, name string) (domain.SecretMap, error) {
	key := tenant + "." + name
	entry, err := v.secretsCache.LookupOrBuildAsync(ctx, key, func(ctx context.Context) (domain.SecretMap, error) {
		return v.GetSecrets(ctx, tenant, name)
	})
	if err != nil {
		// A failed decrypt/parse must not poison the cache: the failed
		// build inserts nothing, so the next call retries from disk.
		// This caller falls back to an empty map so a broken secrets file
		// degrades a component to "no secrets" rather than failing the
		// call. Mirrors the source's `unwrap_or_else(|_| Vec::new())` at
		// every call site.
		return domain.SecretMap{}, nil
	}
	g := entry.Read()
	defer g.Release()
	return g.Value(), nil
}

// UpdateSecrets parses yamlBytes as a YAML mapping, canonicalizes it
// through the emitter, encrypts it under the tenant's key, and writes it
// to the component's secret file (§4.3 "Write path").
func (v *Vault) UpdateSecrets(ctx context.Context, tenant, name string, yamlBytes []byte) error {
	pairs, err := parseSecretYAML(yamlBytes)
	if err != nil {
		return err
	}

	canonical, err := serializeSecretYAMLBlocking(pairs)
	if err != nil {
		return err
	}

	if err := v.store.CreateDir(artifactstore.SecretsTenantDir(tenant)); err != nil {
		return err
	}

	key, err := v.GetKey(ctx, tenant)
	if err != nil {
		return err
	}
	cipher, err := raikiricrypto.NewCipher(key)
	if err != nil {
		return errkind.Wrap(errkind.Crypto, err)
	}
	ciphertext, err := cipher.Encrypt(canonical)
	if err != nil {
		return errkind.Wrap(errkind.Crypto, err)
	}

	return v.store.Write(artifactstore.SecretPath(tenant, name), ciphertext)
}
