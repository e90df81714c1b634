package dbbroker

import (
	"encoding/json"

	"github.com/oriys/raikiri/internal/errkind"
)

// CoerceJSONParams turns the JSON values a guest component sends as
// statement parameters into Go values a SQL driver accepts, following
// the original implementation's cast_value_as_tosql rules (§4.5):
// null -> nil, bool -> bool, a number takes the smallest type that
// holds it exactly (int32, then int64, otherwise float64), string ->
// string. Arrays and objects have no SQL scalar equivalent and are
// rejected.
func CoerceJSONParams(raw []json.RawMessage) ([]any, error) {
	out := make([]any, 0, len(raw))
	for _, r := range raw {
		v, err := coerceOne(r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func coerceOne(raw json.RawMessage) (any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, errkind.Wrap(errkind.Parse, err)
	}
	switch t := v.(type) {
	case nil:
		return nil, nil
	case bool:
		return t, nil
	case string:
		return t, nil
	case float64:
		if i := int32(t); float64(i) == t {
			return i, nil
		}
		if i := int64(t); float64(i) == t {
			return i, nil
		}
		return t, nil
	case []any:
		return nil, errkind.Wrapf(errkind.Parse, "dbbroker: array parameters are not supported")
	case map[string]any:
		return nil, errkind.Wrapf(errkind.Parse, "dbbroker: object parameters are not supported")
	default:
		return nil, errkind.Wrapf(errkind.Parse, "dbbroker: unsupported parameter type %T", v)
	}
}
