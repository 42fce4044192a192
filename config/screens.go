package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ScreenDefinition describes one governed screen. Table binds the screen to a
// dataset table served by the generic record API; it may be empty.
type ScreenDefinition struct {
	Code       string `yaml:"code" json:"code"`
	Title      string `yaml:"title" json:"title"`
	Department string `yaml:"department" json:"department,omitempty"`
	Table      string `yaml:"table" json:"table,omitempty"`
}

// ScreenCatalog is the read-only set of governed screens loaded at start.
type ScreenCatalog struct {
	screens []ScreenDefinition
	byCode  map[string]ScreenDefinition
}

type screenFile struct {
	Screens []ScreenDefinition `yaml:"screens"`
}

// LoadScreenCatalog reads the YAML catalogue at path.
func LoadScreenCatalog(path string) (*ScreenCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read screen catalogue: %w", err)
	}
	return ParseScreenCatalog(data)
}

// ParseScreenCatalog decodes a catalogue document. Codes are matched case-insensitively.
func ParseScreenCatalog(data []byte) (*ScreenCatalog, error) {
	var file screenFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse screen catalogue: %w", err)
	}
	return NewScreenCatalog(file.Screens)
}

func NewScreenCatalog(screens []ScreenDefinition) (*ScreenCatalog, error) {
	catalog := &ScreenCatalog{
		screens: make([]ScreenDefinition, 0, len(screens)),
		byCode:  make(map[string]ScreenDefinition, len(screens)),
	}
	for i, screen := range screens {
		screen.Code = NormalizeScreenCode(screen.Code)
		screen.Table = strings.TrimSpace(screen.Table)
		if screen.Code == "" {
			return nil, fmt.Errorf("screen #%d has no code", i+1)
		}
		if _, dup := catalog.byCode[screen.Code]; dup {
			return nil, fmt.Errorf("duplicate screen code %s", screen.Code)
		}
		if screen.Title == "" {
			screen.Title = screen.Code
		}
		catalog.byCode[screen.Code] = screen
		catalog.screens = append(catalog.screens, screen)
	}
	return catalog, nil
}

// NormalizeScreenCode trims and upper-cases a screen code.
func NormalizeScreenCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (c *ScreenCatalog) Lookup(code string) (ScreenDefinition, bool) {
	if c == nil {
		return ScreenDefinition{}, false
	}
	screen, ok := c.byCode[NormalizeScreenCode(code)]
	return screen, ok
}

// All returns the screens in file order.
func (c *ScreenCatalog) All() []ScreenDefinition {
	if c == nil {
		return nil
	}
	out := make([]ScreenDefinition, len(c.screens))
	copy(out, c.screens)
	return out
}

func (c *ScreenCatalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.screens)
}
