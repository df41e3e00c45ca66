package config

import (
	"errors"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/dmitrijs2005/contactbook/internal/flagx"
	"github.com/joho/godotenv"
)

// parseEnv overlays Config with environment variables.
//
// A dotenv file (-env flag, ".env" by default) is loaded first; a missing file
// is not an error and variables already present in the process environment
// are never overridden by it. Only variables that are set replace the current
// values, so defaults and JSON settings survive. Durations use Go syntax
// ("30m"), lists are comma separated.
//
// Malformed values cause a panic, the same as malformed JSON or flags.
func parseEnv(config *Config) {
	if err := godotenv.Load(flagx.EnvFileFlag()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(err)
	}

	if err := env.Parse(config); err != nil {
		panic(err)
	}
}
