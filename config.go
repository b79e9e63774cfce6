package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const EnvPrefix = "SEGARCHIVE_"

// Short flag -> long flag
var flagAliases = map[string]string{
	"h": "help",
	"V": "version",
	"q": "quality",
	"o": "home",
	"y": "yes",
	"j": "threads",
	"c": "cookies",
	"v": "verbose",
	"4": "ipv4",
	"6": "ipv6",
}

// Flags that make no sense to set from the environment
var envIgnored = map[string]bool{
	"help":    true,
	"version": true,
}

func longFlagName(name string) string {
	if long, ok := flagAliases[name]; ok {
		return long
	}

	return name
}

// SEGARCHIVE_ variable for a long flag name, e.g. retry-frags -> SEGARCHIVE_RETRY_FRAGS
func EnvName(flagName string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

/*
Load KEY=VALUE files into the environment. Variables already set are left
alone. Missing files are only an error when they were asked for by name.
*/
func LoadEnvFiles(files ...string) error {
	if len(files) == 0 {
		err := godotenv.Load()
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}

		return nil
	}

	return godotenv.Load(files...)
}

/*
Give every flag not set on the command line its SEGARCHIVE_ environment
value, if there is one. Short aliases count as their long flag.
*/
func ApplyEnvDefaults(fset *flag.FlagSet) error {
	set := make(map[string]bool)
	fset.Visit(func(f *flag.Flag) {
		set[longFlagName(f.Name)] = true
	})

	var errs []error
	fset.VisitAll(func(f *flag.Flag) {
		name := longFlagName(f.Name)
		if name != f.Name || set[name] || envIgnored[name] {
			return
		}

		val, ok := os.LookupEnv(EnvName(name))
		if !ok {
			return
		}

		err := fset.Set(name, val)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid value %q for %s: %w", val, EnvName(name), err))
			return
		}

		LogDebug("Using %s from %s", name, EnvName(name))
	})

	return errors.Join(errs...)
}
