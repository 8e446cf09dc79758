package directive

import (
	"os"
	"sort"
	"strings"
)

// Variables that make no sense to replicate onto a worker.
var skippedVariables = map[string]bool{
	"DISPLAY": true,
}

// ExportEnvironment generates a bash fragment that reconstructs the current
// process environment on a worker. Exported bash functions survive the trip:
// bash encodes them as variables whose value starts with "() {".
func ExportEnvironment() string {
	environ := os.Environ()
	sort.Strings(environ)

	var b strings.Builder
	for _, entry := range environ {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || skippedVariables[key] {
			continue
		}
		if strings.HasPrefix(value, "() {") {
			// Since 2014-09-25 bash prefixes function names with
			// "BASH_FUNC_" and suffixes them with "()".
			if strings.HasPrefix(key, "BASH_FUNC_") && strings.HasSuffix(key, "()") {
				key = key[10 : len(key)-2]
			}
			b.WriteString(key + " " + value + "\nexport -f " + key + "\n")
		} else {
			quoted := strings.ReplaceAll(value, "'", `'"'"'`)
			b.WriteString("export " + key + "='" + quoted + "'\n")
		}
	}
	return b.String()
}
