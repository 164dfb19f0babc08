// Package config loads command line defaults from YAML files.
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/kong"
	yaml "gopkg.in/yaml.v3"
)

// YAML is a kong.ConfigurationLoader reading a flat mapping of flag names
// to values, e.g.
//
//	device: /dev/ttyUSB0
//	baudrate: 115200
//	termination: crlf
//
// Keys may use dashes or underscores.
func YAML(r io.Reader) (kong.Resolver, error) {
	values := map[string]any{}
	if err := yaml.NewDecoder(r).Decode(&values); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode yaml config: %w", err)
	}

	return kong.ResolverFunc(func(_ *kong.Context, _ *kong.Path, flag *kong.Flag) (any, error) {
		for _, key := range []string{flag.Name, strings.ReplaceAll(flag.Name, "-", "_")} {
			if raw, ok := values[key]; ok && raw != nil {
				return fmt.Sprint(raw), nil
			}
		}
		return nil, nil
	}), nil
}
