package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// SetValue rewrites one scalar at a dotted key path (for example
// "model.temperature") in the file at path. The value is coerced to bool, int
// or float when it looks like one. The file is left untouched when the key is
// missing or the edited document would not validate.
func SetValue(path, keyPath, value string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return &Error{Msg: fmt.Sprintf("read %s", path), Err: err}
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return &Error{Msg: "parse yaml", Err: err}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return &Error{Msg: "document is empty"}
	}

	node := doc.Content[0]
	keys := strings.Split(keyPath, ".")
	for i, key := range keys {
		if node.Kind != yaml.MappingNode {
			return fieldError(strings.Join(keys[:i], "."), "is not a mapping")
		}
		next := mappingValue(node, key)
		if next == nil {
			return fieldError(strings.Join(keys[:i+1], "."), "key not found")
		}
		node = next
	}
	if node.Kind != yaml.ScalarNode {
		return fieldError(keyPath, "is not a scalar value")
	}
	node.Tag, node.Value = coerce(value)
	node.Style = 0

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return &Error{Msg: "encode yaml", Err: err}
	}
	if err := enc.Close(); err != nil {
		return &Error{Msg: "encode yaml", Err: err}
	}

	cfg, err := Parse(buf.Bytes())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	return writeFile(path, buf.Bytes())
}

// Reset replaces the file at path with the defaults file, provided the
// defaults validate.
func Reset(path, defaultsPath string) error {
	raw, err := os.ReadFile(defaultsPath)
	if err != nil {
		return &Error{Msg: fmt.Sprintf("read %s", defaultsPath), Err: err}
	}
	cfg, err := Parse(raw)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	return writeFile(path, raw)
}

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("config: marshal: %w", err)
	}
	return out, nil
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

func coerce(v string) (tag, value string) {
	switch strings.ToLower(v) {
	case "true", "false":
		return "!!bool", strings.ToLower(v)
	}
	if _, err := strconv.ParseInt(v, 10, 64); err == nil {
		return "!!int", v
	}
	if _, err := strconv.ParseFloat(v, 64); err == nil {
		return "!!float", v
	}
	return "!!str", v
}

func writeFile(path string, data []byte) error {
	info, err := os.Stat(path)
	mode := os.FileMode(0o644)
	if err == nil {
		mode = info.Mode().Perm()
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, mode); err != nil {
		return fmt.Errorf("config: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("config: replace %s: %w", path, err)
	}
	return nil
}
