package secrets

import (
	"context"
	"reflect"
	"testing"

	"github.com/oriys/raikiri/internal/artifactstore"
	"github.com/oriys/raikiri/internal/domain"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	store := artifactstore.New(t.TempDir())
	if err := store.Init(); err != nil {
		t.Fatalf("init store: %v", err)
	}
	return New(store)
}

func TestVault_UpdateThenGetSecrets_RoundTripsOrder(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	yamlBody := []byte("ZETA: 1\nALPHA: 2\nMID: 3\n")
	if err := v.UpdateSecrets(ctx, "tenant-a", "comp", yamlBody); err != nil {
		t.Fatalf("update secrets: %v", err)
	}

	got, err := v.GetSecrets(ctx, "tenant-a", "comp")
	if err != nil {
		t.Fatalf("get secrets: %v", err)
	}

	want := domain.SecretMap{
		{Key: "ZETA", Value: "1"},
		{Key: "ALPHA", Value: "2"},
		{Key: "MID", Value: "3"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("order not preserved: got %+v, want %+v", got, want)
	}
}

func TestVault_GetSecrets_MissingFileIsEmptyNotError(t *testing.T) {
	v := newTestVault(t)
	got, err := v.GetSecrets(context.Background(), "no-such-tenant", "comp")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty map, got %+v", got)
	}
}

func TestVault_GetSecretsCached_SharesDecryptedMap(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	if err := v.UpdateSecrets(ctx, "tenant-b", "comp", []byte("A: 1\n")); err != nil {
		t.Fatalf("update secrets: %v", err)
	}

	first, err := v.GetSecretsCached(ctx, "tenant-b", "comp")
	if err != nil {
		t.Fatalf("get secrets cached: %v", err)
	}
	second, err := v.GetSecretsCached(ctx, "tenant-b", "comp")
	if err != nil {
		t.Fatalf("get secrets cached: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected cached reads to agree: %+v vs %+v", first, second)
	}
}

func TestVault_RotateKey_SecretsReadableUnderNewKey(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	if err := v.UpdateSecrets(ctx, "tenant-c", "comp-1", []byte("A: 1\nB: 2\n")); err != nil {
		t.Fatalf("update secrets comp-1: %v", err)
	}
	if err := v.UpdateSecrets(ctx, "tenant-c", "comp-2", []byte("C: 3\n")); err != nil {
		t.Fatalf("update secrets comp-2: %v", err)
	}

	oldKey, err := v.GetKey(ctx, "tenant-c")
	if err != nil {
		t.Fatalf("get key: %v", err)
	}

	if err := v.RotateKey(ctx, "tenant-c"); err != nil {
		t.Fatalf("rotate key: %v", err)
	}

	newKey, err := v.GetKey(ctx, "tenant-c")
	if err != nil {
		t.Fatalf("get key after rotate: %v", err)
	}
	if reflect.DeepEqual(oldKey, newKey) {
		t.Fatalf("expected rotation to change the key")
	}

	got1, err := v.GetSecrets(ctx, "tenant-c", "comp-1")
	if err != nil {
		t.Fatalf("get secrets comp-1 after rotate: %v", err)
	}
	want1 := domain.SecretMap{{Key: "A", Value: "1"}, {Key: "B", Value: "2"}}
	if !reflect.DeepEqual(got1, want1) {
		t.Fatalf("comp-1 mismatch after rotate: got %+v, want %+v", got1, want1)
	}

	got2, err := v.GetSecrets(ctx, "tenant-c", "comp-2")
	if err != nil {
		t.Fatalf("get secrets comp-2 after rotate: %v", err)
	}
	want2 := domain.SecretMap{{Key: "C", Value: "3"}}
	if !reflect.DeepEqual(got2, want2) {
		t.Fatalf("comp-2 mismatch after rotate: got %+v, want %+v", got2, want2)
	}
}

func TestVault_RotateKey_NoSecretsIsNoop(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	if _, err := v.GetKey(ctx, "tenant-empty"); err != nil {
		t.Fatalf("get key: %v", err)
	}
	if err := v.RotateKey(ctx, "tenant-empty"); err != nil {
		t.Fatalf("rotate key on tenant with no secrets: %v", err)
	}
}
