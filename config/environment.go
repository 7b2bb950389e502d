package config

import (
	"os"
	"strings"
)

const (
	appEnvVar = "APP_ENV"

	EnvironmentDevelopment = "development"
	EnvironmentProduction  = "production"
	EnvironmentStaging     = "staging"

	DefaultConfigPath = "config/config.yml"
)

var environmentAliases = map[string]string{
	"dev":         EnvironmentDevelopment,
	"prod":        EnvironmentProduction,
	"producation": EnvironmentProduction,
	"stag":        EnvironmentStaging,
	"stagging":    EnvironmentStaging,
}

var environmentConfigPaths = map[string]string{
	EnvironmentProduction: "config/config.production.yml",
	EnvironmentStaging:    "config/config.staging.yml",
}

// AppEnvironment reads APP_ENV, resolves aliases and defaults to development.
func AppEnvironment() string {
	env := strings.ToLower(strings.TrimSpace(os.Getenv(appEnvVar)))
	if env == "" {
		return EnvironmentDevelopment
	}
	if canonical, ok := environmentAliases[env]; ok {
		return canonical
	}
	return env
}

// ResolveConfigPath swaps the default path for the environment specific file
// when one exists. An explicitly chosen path is returned unchanged.
func ResolveConfigPath(path string) string {
	if path == "" {
		path = DefaultConfigPath
	}
	if path != DefaultConfigPath {
		return path
	}
	envPath, ok := environmentConfigPaths[AppEnvironment()]
	if !ok {
		return path
	}
	if _, err := os.Stat(envPath); err != nil {
		return path
	}
	return envPath
}
