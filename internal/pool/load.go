package pool

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/mapstructure"
	"go.yaml.in/yaml/v3"

	"github.com/koustreak/autopg/internal/errs"
)

// Load reads a TOML (or .yaml/.yml) configuration file, substitutes
// $VARIABLE references from the environment, applies defaults and
// validates the result.
func Load(path string) (*MainConfig, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errs.Wrap(errs.ErrKindNotFound, "config file "+path, err)
	}
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindIOFailed, "read "+path, err)
	}

	raw := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		err = toml.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindParseFailed, "parse "+path, err)
	}

	cfg, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode substitutes environment references in raw and decodes it on top
// of DefaultMainConfig. Values are weakly typed, so "$PORT" may feed an
// integer field. Unknown keys are rejected.
func Decode(raw map[string]any) (*MainConfig, error) {
	swapped, err := SwapEnv(raw)
	if err != nil {
		return nil, err
	}

	cfg := DefaultMainConfig()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ZeroFields:       true,
		ErrorUnused:      true,
		Result:           cfg,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindUnknown, "build config decoder", err)
	}
	if err := dec.Decode(swapped); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "decode config", err)
	}
	return cfg, nil
}

// SwapEnv returns a copy of v where every string beginning with "$" is
// replaced by the value of the environment variable it names. A reference
// to an unset variable is an error.
func SwapEnv(v any) (any, error) {
	switch x := v.(type) {
	case string:
		if !strings.HasPrefix(x, "$") {
			return x, nil
		}
		name := x[1:]
		val, ok := os.LookupEnv(name)
		if !ok {
			return nil, errs.Newf(errs.ErrKindInvalidInput,
				"environment variable %q referenced in config but not set", name)
		}
		return val, nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			s, err := SwapEnv(item)
			if err != nil {
				return nil, err
			}
			out[k] = s
		}
		return out, nil
	case []map[string]any:
		out := make([]any, 0, len(x))
		for _, item := range x {
			s, err := SwapEnv(item)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	case []any:
		out := make([]any, 0, len(x))
		for _, item := range x {
			s, err := SwapEnv(item)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return v, nil
	}
}
