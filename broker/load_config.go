package broker

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadConfig reads a YAML configuration file and overlays it onto
// DefaultConfig, so a file only has to set the fields it wants to
// override. Dialing TCPAddr/TLSAddr/WSAddr remains an external listener's
// job (spec.md §1's Non-goals place listener setup out of scope) — this
// just gives that collaborator a single already-tagged struct to decode
// into, grounded on the pack's ZindGH-MQTT-Server config.Load.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}
