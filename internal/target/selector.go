// Package target resolves the CLI's --target-class/--target-id selection
// flags against a Graph Oracle into the ordered target id set the core
// Walker consumes.
package target

import (
	"strconv"
	"strings"

	"github.com/leaks-collector/internal/oracle"
	"github.com/leaks-collector/pkg/errors"
)

// Selection is the parsed, not-yet-resolved CLI selection input.
type Selection struct {
	TargetClasses []string
	TargetIDs     []string // hex (0x-prefixed) or decimal, as given on the CLI
}

// Resolve produces the ordered target id set: every instance whose class
// name contains one of TargetClasses (in instance-scan order), followed by
// every explicit TargetID (validated to exist), falling back to
// defaultClasses when the selection is empty. Duplicate ids are kept at
// their first occurrence only.
func Resolve(oc oracle.GraphOracle, sel Selection, defaultClasses []string) ([]uint64, error) {
	classes := sel.TargetClasses
	useDefaults := len(sel.TargetClasses) == 0 && len(sel.TargetIDs) == 0
	if useDefaults {
		classes = defaultClasses
	}

	seen := make(map[uint64]struct{})
	ids := make([]uint64, 0, 16)

	if len(classes) > 0 {
		oc.Instances(func(id uint64) bool {
			inst, ok := oc.AsInstance(id)
			if !ok {
				return true
			}
			if matchesAny(inst.ClassName(), classes) {
				if _, dup := seen[id]; !dup {
					seen[id] = struct{}{}
					ids = append(ids, id)
				}
			}
			return true
		})
	}

	for _, raw := range sel.TargetIDs {
		id, err := parseID(raw)
		if err != nil {
			return nil, err
		}
		if !oc.Exists(id) {
			return nil, errors.New(errors.CodeInvalidInput, "target id does not exist in snapshot: "+raw)
		}
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	return ids, nil
}

func matchesAny(className string, substrings []string) bool {
	for _, s := range substrings {
		if strings.Contains(className, s) {
			return true
		}
	}
	return false
}

func parseID(raw string) (uint64, error) {
	base := 10
	s := raw
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		s = s[2:]
	}
	id, err := strconv.ParseUint(s, base, 64)
	if err != nil {
		return 0, errors.Wrap(errors.CodeInvalidInput, "invalid target id: "+raw, err)
	}
	return id, nil
}
