package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"rfid_session_go/sdk"
)

type aliasFile struct {
	Models map[string]string `toml:"models"`
}

// LoadAliases reads extra model-to-class mappings for firmware the built-in
// table does not know yet:
//
//	[models]
//	"M7e Hecto" = "module"
//	"Vega"      = "fixed-reader"
func LoadAliases(path string) (map[string]sdk.DeviceClass, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	var raw aliasFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("load alias file: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("alias file: unknown key %s", undecoded[0])
	}
	if !meta.IsDefined("models") {
		return nil, nil
	}

	out := make(map[string]sdk.DeviceClass, len(raw.Models))
	for model, name := range raw.Models {
		model = strings.TrimSpace(model)
		if model == "" {
			continue
		}
		class, err := sdk.ParseDeviceClass(name)
		if err != nil {
			return nil, fmt.Errorf("alias %q: %w", model, err)
		}
		out[model] = class
	}
	return out, nil
}
