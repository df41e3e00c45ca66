// Package flagx holds small helpers for sharing os.Args between several
// independent flag sets (config file, env file, component flags).
package flagx

import (
	"flag"
	"os"
	"strings"
)

// FilterArgs returns only the allowed flags (and their values) from args.
//
// Both "-c conf.json" and "--config=conf.json" forms are recognized. A token
// that follows an allowed flag is treated as its value unless it starts
// with "-".
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

// LookupString parses os.Args for a single string option that may be spelled
// several ways (e.g. "c" and "config"). The last occurrence wins; def is
// returned when none is present.
func LookupString(def string, names ...string) string {
	value := def

	allowed := make([]string, 0, len(names))
	fs := flag.NewFlagSet("lookup", flag.ContinueOnError)
	fs.SetOutput(discard{})
	for _, n := range names {
		allowed = append(allowed, "-"+n)
		fs.StringVar(&value, n, def, "")
	}

	_ = fs.Parse(FilterArgs(os.Args[1:], allowed))
	return value
}

// JsonConfigFlags returns the JSON config path given via -c or -config,
// or an empty string.
func JsonConfigFlags() string {
	return LookupString("", "c", "config")
}

// EnvFileFlag returns the dotenv file path given via -env, defaulting to ".env".
func EnvFileFlag() string {
	return LookupString(".env", "env")
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
