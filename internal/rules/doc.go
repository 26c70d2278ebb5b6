// Package rules defines detection rules, the built-in rule set and the
// registry that merges and validates built-in and custom rules into the
// immutable set used for one scan.
package rules
