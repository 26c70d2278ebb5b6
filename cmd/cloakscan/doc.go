// Package cloakscan provides the command-line interface for the cloakscan
// tool. It configures subcommands (scan, security, sbom, rules, version),
// parses flags, and executes the selected command.
//
// Typical usage from a main package:
//
//	package main
//	import "github.com/cloakscan/cloakscan/cmd/cloakscan"
//	func main() { cloakscan.Execute() }
package cloakscan
