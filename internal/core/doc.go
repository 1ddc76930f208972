// Package core holds the equipment upload domain: CSV parsing, summary
// statistics and the Service that ties storage, memoization and reports
// together. It has no knowledge of HTTP.
//
// # Parsing
//
// [ParseCSV] maps header aliases onto five canonical columns (name, type,
// flowrate, pressure, temperature). A missing column fails the upload with a
// [MissingColumnsError]. Rows whose measurements do not parse as finite
// numbers are dropped and counted in [ParseResult.Dropped].
//
// # Summaries
//
// [Summarize] is pure. The summary stored with a session at upload time and
// the one recomputed later from its rows are equal because rows are always
// read back in insertion order.
//
// # Errors
//
// Technical errors are mapped to user-facing messages with [MapError]:
//
//   - DB0xx: database constraints and connectivity
//   - VAL0xx: CSV content
//   - FILE0xx: file handling
//   - UPL0xx: upload processing
//   - SES001: session lookup
//   - AUTH0xx: authentication
package core
