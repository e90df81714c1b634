package dbbroker

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/oriys/raikiri/internal/errkind"
)

func TestCoerceJSONParams_Scalars(t *testing.T) {
	raw := []json.RawMessage{
		json.RawMessage(`null`),
		json.RawMessage(`true`),
		json.RawMessage(`42`),
		json.RawMessage(`3.5`),
		json.RawMessage(`"hello"`),
	}
	got, err := CoerceJSONParams(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[0] != nil {
		t.Fatalf("expected nil, got %v", got[0])
	}
	if got[1] != true {
		t.Fatalf("expected true, got %v", got[1])
	}
	if got[2] != int32(42) {
		t.Fatalf("expected int32(42), got %v (%T)", got[2], got[2])
	}
	if got[3] != 3.5 {
		t.Fatalf("expected float64(3.5), got %v", got[3])
	}
	if got[4] != "hello" {
		t.Fatalf("expected \"hello\", got %v", got[4])
	}
}

func TestCoerceJSONParams_RejectsCompoundTypes(t *testing.T) {
	for _, raw := range []json.RawMessage{
		json.RawMessage(`[1,2,3]`),
		json.RawMessage(`{"a":1}`),
	} {
		_, err := CoerceJSONParams([]json.RawMessage{raw})
		if errkind.From(err) != errkind.Parse {
			t.Fatalf("expected Parse error for %s, got %v", raw, err)
		}
	}
}

func TestBroker_UnregisteredConnectionIsNotFound(t *testing.T) {
	b := New(DefaultDialers())
	_, err := b.FetchRows(context.Background(), "missing-conn", "select 1", nil)
	if errkind.From(err) != errkind.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}
