// Package confloader loads client configuration from the environment and
// optional YAML files.
//
// It uses Koanf for flexible configuration loading from multiple sources
// with priority: explicit options > env > file > defaults. Environment
// variables use the REDIS_ prefix: REDIS_HOST, REDIS_PORT,
// REDIS_PIPELINE_DEPTH, and so on.
package confloader
