package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// InstrumentSpec describes venue-native price scaling for one symbol.
type InstrumentSpec struct {
	Symbol string `yaml:"symbol"`
	Digits int    `yaml:"digits"`
}

// instrumentFile is the top-level YAML structure.
type instrumentFile struct {
	Instruments []InstrumentSpec `yaml:"instruments"`
}

// LoadInstruments reads per-symbol digit counts from a YAML file.
// Returns an empty map (not an error) when the file does not exist,
// so the engine can fall back to the configured default digits.
func LoadInstruments(path string) (map[string]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]int{}, nil
		}
		return nil, err
	}

	var file instrumentFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	out := make(map[string]int, len(file.Instruments))
	for _, spec := range file.Instruments {
		if spec.Symbol != "" && spec.Digits > 0 {
			out[spec.Symbol] = spec.Digits
		}
	}
	return out, nil
}
