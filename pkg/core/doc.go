// Package core provides a small, stable facade over cloakscan's internal
// engine for external integrations. It re-exports a narrow API surface so
// third-party tools can depend on a stable import path without importing
// internal packages.
//
// Example:
//
//	res, err := core.ScanPath(ctx, ".", "")
//	if err != nil { /* handle */ }
//	_ = core.MarshalFindings(os.Stdout, res.Active())
package core
