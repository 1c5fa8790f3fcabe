package pipeline

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// DecodeParams decodes string parameters onto out, which must be a pointer to
// a struct already holding the defaults. Unknown parameter names are rejected.
func DecodeParams(params map[string]string, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			stringToIntSliceHook,
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		ZeroFields:       true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(params); err != nil {
		return fmt.Errorf("invalid stage parameters: %w", err)
	}
	return nil
}

// stringToIntSliceHook parses comma-delimited numbers such as "6,8".
func stringToIntSliceHook(f reflect.Type, t reflect.Type, data any) (any, error) {
	if f.Kind() != reflect.String || t != reflect.TypeOf([]int(nil)) {
		return data, nil
	}
	raw := strings.TrimSpace(data.(string))
	if raw == "" {
		return []int{}, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid number %q in list", p)
		}
		out = append(out, n)
	}
	return out, nil
}
