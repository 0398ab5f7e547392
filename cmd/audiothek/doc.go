// Package main hosts the audiothek CLI entrypoint and command graph.
//
// The root command mirrors one program, collection, or episode (--url or
// --id), re-syncs every folder already in the output directory
// (--update-folders), renames legacy numeric folders (--migrate-folders),
// removes lower-quality duplicates (--remove-lower-quality), or lists an
// editorial category (--editorial-category-id). Subcommands cover config
// scaffolding, response cache maintenance, and a readiness report.
//
// Keep this package lean: configuration resolution and wiring live here,
// everything else lives in the internal packages.
package main
