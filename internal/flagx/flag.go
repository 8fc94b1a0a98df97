// Package flagx contains helpers for sharing os.Args between independent
// flag sets (config file lookup, per-binary flags).
package flagx

import (
	"flag"
	"io"
	"os"
	"strings"
)

// ConfigEnv names the environment variable consulted when no -c/-config
// flag is given.
const ConfigEnv = "INVKEEPER_CONFIG"

// FilterArgs returns only the allowed flags (and their values) from args.
//
// Both "-c conf.json" and "-c=conf.json" forms are recognised. A token that
// follows an allowed flag is treated as its value unless it starts with "-".
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			name, _, _ := strings.Cut(arg, "=")
			if _, ok := allowed[name]; ok {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, ok := allowed[arg]; !ok {
			continue
		}
		filtered = append(filtered, arg)
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			filtered = append(filtered, args[i+1])
			i++
		}
	}
	return filtered
}

// ConfigPath extracts the JSON config path from args (-c or -config),
// falling back to $INVKEEPER_CONFIG. Empty means no config file.
func ConfigPath(args []string) string {
	var path string

	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&path, "config", "", "path to config file")
	fs.StringVar(&path, "c", "", "path to config file (short)")
	_ = fs.Parse(FilterArgs(args, []string{"-c", "-config", "--config"}))

	if path == "" {
		path = os.Getenv(ConfigEnv)
	}
	return path
}
