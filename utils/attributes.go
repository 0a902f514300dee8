package utils

import (
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

// DecodeAttributes decodes a generic attribute map into `out`, which must be a pointer to a
// struct. Keys match the struct's json tags, strings are converted to numbers where needed and
// keys that match no field are rejected.
func DecodeAttributes(raw map[string]interface{}, out interface{}) error {
	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           out,
		Metadata:         &md,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(raw); err != nil {
		return err
	}
	if len(md.Unused) > 0 {
		return errors.Errorf("unknown attributes %v", md.Unused)
	}
	return nil
}
