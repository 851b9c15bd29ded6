package props

import (
	"fmt"
	"sort"
	"strings"
)

// ApplicationAllowList is the set of invoker properties the backend launch
// tasks forward to the JVM. Anything not listed here stays with the invoker.
var ApplicationAllowList = []string{
	"verifyFeedbackNoLeakage",
	"verifyFeedbackNoLeakageMultiSeed",
	"verifyFeedbackNoLeakageAdaptSweep",
	"verifyFeedbackSweep",
	"adaptSizes",
	"adaptSeeds",
	"feedbackMode",
	"feedbackModes",
	"printPerSeed",
	"server.port",
	"rowFeedback",
	"colFeedback",
	"markov.data.dir",
	"networkAttractorSanity",
	"networkConvergenceSweep",
}

// ParseAssignments parses "name=value" pairs. The value may be empty and may
// itself contain '='; the name may not be empty.
func ParseAssignments(raw []string) (map[string]string, error) {
	out := make(map[string]string, len(raw))
	for _, kv := range raw {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("invalid property %q: expected name=value", kv)
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("invalid property %q: name must not be empty", kv)
		}
		out[name] = value
	}
	return out, nil
}

// Merge overlays the given layers left to right; later layers win.
func Merge(layers ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, layer := range layers {
		for k, v := range layer {
			out[k] = v
		}
	}
	return out
}

// Forward copies every allow-listed name that is present in invoker into a
// fresh map, value untouched. Names missing from invoker are not emitted and
// names missing from allow are never copied.
func Forward(invoker map[string]string, allow []string) map[string]string {
	out := make(map[string]string)
	for _, name := range allow {
		if v, ok := invoker[name]; ok {
			out[name] = v
		}
	}
	return out
}

// SortedKeys returns the keys of m in lexical order.
func SortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
