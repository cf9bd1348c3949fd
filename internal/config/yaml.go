package config

import (
	"gopkg.in/yaml.v3"
)

// YAMLParser is a koanf.Parser backed by yaml.v3.
type YAMLParser struct{}

// YAML returns a koanf parser for YAML config files.
func YAML() *YAMLParser {
	return &YAMLParser{}
}

func (p *YAMLParser) Unmarshal(b []byte) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := yaml.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]interface{}{}
	}
	return out, nil
}

func (p *YAMLParser) Marshal(o map[string]interface{}) ([]byte, error) {
	return yaml.Marshal(o)
}
