// Package detectors applies compiled rules to file contents. Match dispatches
// on the rule kind (literal, regex or entropy) and reports spans, redacted
// excerpts and inline suppression state. The raw matched text never leaves
// this package except through redact.Excerpt.
package detectors
