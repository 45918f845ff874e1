package prompt

import (
	"os"
	"strings"
)

// loadPins reads the pinned long-term facts: one per non-empty line.
// A missing file simply means no pins.
func loadPins(path string) []string {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var pins []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			pins = append(pins, line)
		}
	}
	return pins
}
