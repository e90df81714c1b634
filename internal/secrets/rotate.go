package secrets

import (
	"context"
	"fmt"

	"github.com/oriys/raikiri/internal/artifactstore"
	"github.com/oriys/raikiri/internal/errkind"
	raikiricrypto "github.com/oriys/raikiri/internal/pkg/crypto"
	"golang.org/x/sync/errgroup"
)

const newSuffix = ".new"

// RotateKey re-encrypts every secret file under tenant with a freshly
// generated key and atomically swaps it in (§4.3 "Key rotation"). The
// four-step shadow-file protocol:
//
//  1. re-encrypt every secret file under the new key, each written
//     alongside the original with a ".new" suffix (parallelized, since
//     these are independent);
//  2. if any re-encryption fails, remove every ".new" file written so
//     far and return the error — the live secrets and the old key are
//     untouched;
//  3. once every ".new" file exists, rename each over its original;
//  4. overwrite the tenant's key file with the new key.
//
// A crash between steps 3 and 4 leaves some secrets decryptable only
// under the new key while the key file still holds the old one; the
// original accepts this window (see original_source's
// rotate_tenant_key), so this does too.
func (v *Vault) RotateKey(ctx context.Context, tenant string) error {
	dir := artifactstore.SecretsTenantDir(tenant)
	names, err := v.store.List(dir)
	if err != nil {
		return err
	}

	oldKey, err := v.GetKey(ctx, tenant)
	if err != nil {
		return err
	}
	oldCipher, err := raikiricrypto.NewCipher(oldKey)
	if err != nil {
		return errkind.Wrap(errkind.Crypto, err)
	}

	newKey, err := raikiricrypto.GenerateKey()
	if err != nil {
		return errkind.Wrap(errkind.Crypto, err)
	}
	newCipher, err := raikiricrypto.NewCipher(newKey)
	if err != nil {
		return errkind.Wrap(errkind.Crypto, err)
	}

	written := make([]string, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			rel := dir + "/" + name
			ciphertext, err := v.store.Read(rel)
			if err != nil {
				return err
			}
			plaintext, err := oldCipher.Decrypt(ciphertext)
			if err != nil {
				return errkind.Wrap(errkind.Crypto, fmt.Errorf("rotate %s: %w", name, err))
			}
			reencrypted, err := newCipher.Encrypt(plaintext)
			if err != nil {
				return errkind.Wrap(errkind.Crypto, err)
			}
			shadow := rel + newSuffix
			if err := v.store.Write(shadow, reencrypted); err != nil {
				return err
			}
			written[i] = shadow
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, shadow := range written {
			if shadow != "" {
				v.store.Remove(shadow)
			}
		}
		return err
	}

	for i, name := range names {
		rel := dir + "/" + name
		if err := v.store.Rename(written[i], rel); err != nil {
			return err
		}
	}

	if err := v.store.Write(artifactstore.KeyPath(tenant), newKey); err != nil {
		return err
	}

	// Invalidate the cached key so the next GetKey rereads the rotated
	// one; holders mid-flight on the old key keep it until they release
	// (§4.1 graceful destroy). The decrypted-secrets cache is
	// deliberately left alone — see the note on Vault.secretsCache.
	v.keys.DestroyGracefully(tenant)
	return nil
}
