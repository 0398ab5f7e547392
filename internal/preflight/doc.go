// Package preflight provides readiness checks for the filesystem paths and
// the catalog endpoint audiothek depends on.
//
// These checks run in two contexts:
//   - Every sync run calls RunAll before listing anything. A failed
//     directory check aborts the run before any request is sent.
//   - The CLI "audiothek status" command renders every result, including
//     the endpoint probe, as a table.
//
// Checks for disabled features (the response cache) are skipped.
package preflight
