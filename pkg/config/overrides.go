package config

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

// ParseVars turns key=value pairs into a nested map, splitting keys on dots.
func ParseVars(vars []string) (map[string]any, error) {
	out := make(map[string]any)
	for _, v := range vars {
		key, value, ok := strings.Cut(v, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, errors.Errorf("invalid variable '%s', expected key=value", v)
		}

		parts := strings.Split(key, ".")
		node := out
		for _, part := range parts[:len(parts)-1] {
			child, exists := node[part]
			if !exists {
				child = make(map[string]any)
				node[part] = child
			}

			childMap, isMap := child.(map[string]any)
			if !isMap {
				return nil, errors.Errorf("variable '%s' conflicts with '%s'", key, part)
			}
			node = childMap
		}

		last := parts[len(parts)-1]
		if _, exists := node[last]; exists {
			return nil, errors.Errorf("variable '%s' is given more than once", key)
		}
		node[last] = value
	}

	return out, nil
}

// ApplyOverrides patches the selected environment with --var style key=value pairs, e.g.
// fact_table.postgres.host=db.internal or families.yellow.passthrough=cbd_congestion_fee.
func (c *Config) ApplyOverrides(vars []string) error {
	if len(vars) == 0 {
		return nil
	}
	if c.SelectedEnvironment == nil {
		return errors.New("no environment selected")
	}

	values, err := ParseVars(vars)
	if err != nil {
		return err
	}

	env := c.SelectedEnvironment.clone()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "yaml",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToSliceHookFunc(","),
		Result:           &env,
	})
	if err != nil {
		return err
	}

	if err := decoder.Decode(values); err != nil {
		return errors.Wrap(err, "failed to apply variables")
	}

	if err := validator.New().Struct(&env); err != nil {
		return errors.Wrap(err, "invalid configuration after applying variables")
	}

	c.SelectedEnvironment = &env
	return nil
}
