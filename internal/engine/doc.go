// Package engine runs a scan: it walks the tree, fans files out to a bounded
// worker pool, matches and scores every enabled rule, deduplicates per file
// and hands complete file results to the report aggregator.
package engine
