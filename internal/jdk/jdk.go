// Package jdk locates JDK tools and formats JVM command-line fragments.
package jdk

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
)

// memoryPattern matches JVM memory sizes such as 512m or 2g.
var memoryPattern = regexp.MustCompile(`^[0-9]+[kKmMgG]?$`)

// ValidMemory reports whether s is a JVM memory size accepted by -Xmx.
func ValidMemory(s string) bool {
	return memoryPattern.MatchString(s)
}

// heapOptions are the JVM options that set or derive the maximum heap size.
var heapOptions = []string{"-Xmx", "-XX:MaxHeapSize", "-XX:MaxRAM"}

// SetsMaxHeap reports whether arg changes the JVM heap ceiling. -XX:MaxRAM
// also covers MaxRAMPercentage and MaxRAMFraction.
func SetsMaxHeap(arg string) bool {
	for _, opt := range heapOptions {
		if strings.HasPrefix(arg, opt) {
			return true
		}
	}
	return false
}

// Tool returns the path of a JDK executable: override when set, else
// $JAVA_HOME/bin/<name>, else the bare name resolved through PATH.
func Tool(javaHome, override, name string) string {
	if override != "" {
		return override
	}
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	if javaHome != "" {
		return filepath.Join(javaHome, "bin", name)
	}
	return name
}

// Classpath joins entries with the host path list separator.
func Classpath(entries []string) string {
	return strings.Join(entries, string(os.PathListSeparator))
}

// SystemProperty renders a -D flag.
func SystemProperty(name, value string) string {
	return fmt.Sprintf("-D%s=%s", name, value)
}

// WriteArgFile writes args to path in the @argfile format understood by
// javac and java, one quoted argument per line.
func WriteArgFile(path string, args []string) error {
	var b strings.Builder
	for _, a := range args {
		b.WriteString(quoteArg(a))
		b.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

func quoteArg(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}
