package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// SaveBuild updates the build section in the config file. This preserves
// comments and formatting in other sections by using yaml.Node.
func SaveBuild(configPath string, build BuildConfig) error {
	// Read existing file content
	data, err := os.ReadFile(configPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config: %w", err)
	}

	// Parse into yaml.Node to preserve comments
	var doc yaml.Node
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	}

	buildNode := buildSectionNode(build)

	// Update or create the build section
	if doc.Kind == 0 {
		// Empty or new file - create document structure
		doc = yaml.Node{
			Kind: yaml.DocumentNode,
			Content: []*yaml.Node{
				{
					Kind: yaml.MappingNode,
					Content: []*yaml.Node{
						{Kind: yaml.ScalarNode, Value: "build"},
						buildNode,
					},
				},
			},
		}
	} else if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		root := doc.Content[0]
		if root.Kind == yaml.MappingNode {
			// Find and replace the build key, or append it
			found := false
			for i := 0; i < len(root.Content)-1; i += 2 {
				if root.Content[i].Value == "build" {
					root.Content[i+1] = buildNode
					found = true
					break
				}
			}
			if !found {
				root.Content = append(root.Content,
					&yaml.Node{Kind: yaml.ScalarNode, Value: "build"},
					buildNode,
				)
			}
		}
	}

	// Marshal back to YAML
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&doc); err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	_ = encoder.Close()

	// Write atomically (write to temp, then rename)
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	temp, err := os.CreateTemp(dir, ".kforge.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := temp.Name()

	if _, err := temp.Write(buf.Bytes()); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tempPath, configPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("replacing config: %w", err)
	}
	return nil
}

func buildSectionNode(build BuildConfig) *yaml.Node {
	return &yaml.Node{
		Kind: yaml.MappingNode,
		Content: []*yaml.Node{
			{Kind: yaml.ScalarNode, Value: "use_makepkg"},
			{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(build.UseMakepkg)},
			{Kind: yaml.ScalarNode, Value: "keep_work_dir"},
			{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(build.KeepWorkDir)},
		},
	}
}
