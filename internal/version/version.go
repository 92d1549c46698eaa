// Package version хранит сведения о сборке, подставляемые через -ldflags.
package version

import "fmt"

var (
	Version   = "0.1.0-dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
	GoVersion = "unknown"
)

// SetInfo заменяет непустые значения сведений о сборке
func SetInfo(v, bt, gc, gv string) {
	if v != "" {
		Version = v
	}
	if bt != "" {
		BuildTime = bt
	}
	if gc != "" {
		GitCommit = gc
	}
	if gv != "" {
		GoVersion = gv
	}
}

// String возвращает однострочное описание сборки для логов и команды status.
func String() string {
	return fmt.Sprintf("modbot %s (commit %s, built %s, %s)", Version, GitCommit, BuildTime, GoVersion)
}
