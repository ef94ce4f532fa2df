package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// GetPath retrieves a value from the configuration using a dot-notation path
// such as lane.settle_delay, or an entity address such as collector:redis.
func (c *Config) GetPath(path string) (any, error) {
	if strings.Contains(path, ":") {
		return c.GetEntity(path)
	}

	m, err := c.asMap()
	if err != nil {
		return nil, err
	}
	return getValue(m, path)
}

// GetEntity retrieves a first-class entity by type:name. Supported types are
// collector (sqlite, redis or *) and module (any module name).
func (c *Config) GetEntity(address string) (any, error) {
	entityType, name, ok := strings.Cut(address, ":")
	if !ok || name == "" {
		return nil, fmt.Errorf("invalid entity address format %q (expected type:name)", address)
	}

	switch entityType {
	case "collector":
		switch name {
		case "*":
			return c.Collectors, nil
		case "sqlite":
			return c.Collectors.SQLite, nil
		case "redis":
			return c.Collectors.Redis, nil
		default:
			return nil, fmt.Errorf("collector %q not found", name)
		}

	case "module":
		return map[string]any{
			"name":    name,
			"enabled": !c.ModuleDisabled(name),
		}, nil

	default:
		return nil, fmt.Errorf("unsupported entity type %q", entityType)
	}
}

func (c *Config) asMap() (map[string]any, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return m, nil
}

func getValue(m map[string]any, path string) (any, error) {
	var current any = m

	for _, part := range strings.Split(path, ".") {
		if part == "" {
			continue
		}

		m, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("path %q breaks at %q (not a map)", path, part)
		}

		val, exists := m[part]
		if !exists {
			return nil, fmt.Errorf("path %q: key %q not found", path, part)
		}
		current = val
	}

	return current, nil
}

func findNode(node *yaml.Node, path string, create bool) (*yaml.Node, error) {
	current := node

	for _, part := range strings.Split(path, ".") {
		if current.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("%q is not a mapping", part)
		}

		found := false
		for i := 0; i < len(current.Content); i += 2 {
			if current.Content[i].Value == part {
				current = current.Content[i+1]
				found = true
				break
			}
		}
		if found {
			continue
		}
		if !create {
			return nil, fmt.Errorf("key %q not found", part)
		}

		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: part}
		valueNode := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		current.Content = append(current.Content, keyNode, valueNode)
		current = valueNode
	}

	return current, nil
}

// SetPath sets the scalar at path in the file this config was loaded from.
// With persist the edited file is written back after it validates; the
// in-memory config is reloaded from it either way.
func (c *Config) SetPath(path, value string, persist bool) error {
	if strings.Contains(path, ":") {
		return fmt.Errorf("entity addresses are read-only: %q", path)
	}
	if c.SourcePath == "" {
		return fmt.Errorf("no configuration file to edit (running on defaults)")
	}

	original, err := os.ReadFile(c.SourcePath)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(original, &root); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		root = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}

	target, err := findNode(root.Content[0], path, true)
	if err != nil {
		return fmt.Errorf("failed to navigate/create path %q: %w", path, err)
	}
	target.Kind = yaml.ScalarNode
	target.Value = value
	target.Tag = guessTag(value)
	target.Content = nil

	candidate, err := yaml.Marshal(&root)
	if err != nil {
		return err
	}

	next, err := parseConfig(candidate)
	if err != nil {
		return err
	}
	if err := validate(next); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	next.SourcePath = c.SourcePath

	if persist {
		mode := os.FileMode(0o644)
		if info, statErr := os.Stat(c.SourcePath); statErr == nil {
			mode = info.Mode().Perm()
		}
		if err := os.WriteFile(c.SourcePath, candidate, mode); err != nil {
			return fmt.Errorf("failed to persist config change: %w", err)
		}
	}

	*c = *next
	return nil
}

func guessTag(v string) string {
	if v == "true" || v == "false" {
		return "!!bool"
	}
	isDigit := true
	for i, c := range v {
		if i == 0 && c == '-' {
			continue
		}
		if c < '0' || c > '9' {
			isDigit = false
			break
		}
	}
	if isDigit && v != "" && v != "-" {
		return "!!int"
	}
	return "!!str"
}
