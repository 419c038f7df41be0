package device

import (
	"fmt"
	"strings"
	"unicode"
)

// maxNameLength bounds a device name. Names become MQTT topic levels.
const maxNameLength = 255

// ValidateName checks a single device name.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidName, name, maxNameLength)
	}
	if strings.ContainsAny(name, "+#") {
		return fmt.Errorf("%w: %q contains an MQTT wildcard", ErrInvalidName, name)
	}
	if strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: %q contains whitespace", ErrInvalidName, name)
	}
	if strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") || strings.Contains(name, "//") {
		return fmt.Errorf("%w: %q has an empty path segment", ErrInvalidName, name)
	}
	return nil
}

// ParseNameList turns configured device list lines into names.
//
// Each line may hold several comma-separated names. Names are trimmed and
// lower-cased; empty items are skipped. Malformed and duplicate names are
// reported in errs and skipped without discarding the valid ones.
func ParseNameList(lines []string) (names []string, errs []error) {
	seen := make(map[string]bool)
	for _, line := range lines {
		for _, item := range strings.Split(line, ",") {
			name := strings.ToLower(strings.TrimSpace(item))
			if name == "" {
				continue
			}
			if err := ValidateName(name); err != nil {
				errs = append(errs, err)
				continue
			}
			if seen[name] {
				errs = append(errs, fmt.Errorf("%w: %q", ErrDuplicateName, name))
				continue
			}
			seen[name] = true
			names = append(names, name)
		}
	}
	return names, errs
}

// AttributeName builds the name of a per-device attribute published by the
// watchdog: "sys/tg_test/1" and "State" give "sys_tg_test_1_State".
func AttributeName(device, attribute string) string {
	return strings.ReplaceAll(device, "/", "_") + "_" + attribute
}
