package opcua

import (
	"fmt"
	"time"

	"github.com/gopcua/opcua/ua"
)

// scalarValue converts a variant into a value that encodes cleanly on the
// bus. Arrays and structured types are rejected.
func scalarValue(v *ua.Variant) (any, error) {
	if v == nil {
		return nil, fmt.Errorf("empty variant")
	}

	switch val := v.Value().(type) {
	case float32:
		return float64(val), nil
	case float64:
		return val, nil
	case int8:
		return int64(val), nil
	case uint8:
		return uint64(val), nil
	case int16:
		return int64(val), nil
	case uint16:
		return uint64(val), nil
	case int32:
		return int64(val), nil
	case uint32:
		return uint64(val), nil
	case int64:
		return val, nil
	case uint64:
		return val, nil
	case bool:
		return val, nil
	case string:
		return val, nil
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano), nil
	case *ua.LocalizedText:
		if val == nil {
			return "", nil
		}
		return val.Text, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", val)
	}
}
