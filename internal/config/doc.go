// Package config loads cloakscan configuration from local and global YAML
// files. Callers apply precedence CLI > local > global when mapping the
// loaded values into engine configuration.
package config
