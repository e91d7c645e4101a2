package capacity

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// UnknownPriority is returned for slot ids missing from the table so that
// they sort after every known slot.
const UnknownPriority = math.MaxInt32

// SlotTable maps time slot ids to their sort priority.
type SlotTable struct {
	Slots   map[string]int    `json:"slots" yaml:"slots"`
	Aliases map[string]string `json:"aliases" yaml:"aliases"`
}

// DefaultSlotTable returns the built-in delivery windows and the legacy
// slot ids still found on older jobs.
func DefaultSlotTable() SlotTable {
	return SlotTable{
		Slots: map[string]int{
			"first-am":  1,
			"second-am": 2,
			"lunch":     3,
			"afternoon": 4,
		},
		Aliases: map[string]string{
			"am":      "first-am",
			"mid-am":  "second-am",
			"midday":  "lunch",
			"pm":      "afternoon",
			"morning": "first-am",
		},
	}
}

// Canonical resolves aliases. Unknown ids are returned unchanged.
func (t SlotTable) Canonical(slot string) string {
	s := strings.ToLower(strings.TrimSpace(slot))
	if c, ok := t.Aliases[s]; ok {
		return c
	}
	return s
}

// Priority returns the sort priority of slot.
func (t SlotTable) Priority(slot string) int {
	if p, ok := t.Slots[t.Canonical(slot)]; ok {
		return p
	}
	return UnknownPriority
}

// Known reports whether slot resolves to a configured slot.
func (t SlotTable) Known(slot string) bool {
	_, ok := t.Slots[t.Canonical(slot)]
	return ok
}

// Validate checks that every alias points at a configured slot.
func (t SlotTable) Validate() error {
	if len(t.Slots) == 0 {
		return fmt.Errorf("slot table is empty")
	}
	for a, target := range t.Aliases {
		if _, ok := t.Slots[target]; !ok {
			return fmt.Errorf("alias %s points at unknown slot %s", a, target)
		}
	}
	return nil
}

// LoadSlotTable loads a SlotTable from a JSON or YAML file.
func LoadSlotTable(path string) (SlotTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return SlotTable{}, err
	}
	defer func() { _ = f.Close() }()
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return DecodeSlotTable(f, ext)
}

// DecodeSlotTable reads a SlotTable from r.
func DecodeSlotTable(r io.Reader, format string) (SlotTable, error) {
	var t SlotTable
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.NewDecoder(r).Decode(&t); err != nil {
			return t, err
		}
	case "json":
		if err := json.NewDecoder(r).Decode(&t); err != nil {
			return t, err
		}
	default:
		return t, fmt.Errorf("unsupported format: %s", format)
	}
	normalized := SlotTable{Slots: make(map[string]int, len(t.Slots)), Aliases: make(map[string]string, len(t.Aliases))}
	for k, v := range t.Slots {
		normalized.Slots[strings.ToLower(k)] = v
	}
	for k, v := range t.Aliases {
		normalized.Aliases[strings.ToLower(k)] = strings.ToLower(v)
	}
	return normalized, normalized.Validate()
}
