// Package workflow drives sync runs.
//
// The Orchestrator drains the catalog's episode sequence on a single
// producer, plans each episode, and fans plan execution out over a bounded
// pool of workers (default 4, at most 16). Pagination itself stays
// sequential. Per-episode outcomes are folded into a Report; a failed episode
// never stops the run. Cancelling the context stops dispatch of new episodes
// while plans already handed to a worker finish.
//
// UpdateFolders re-syncs every program folder below the output directory
// using the id encoded in the folder name. Folders whose id no longer
// resolves are reported as stale and left alone. MigrateFolders renames
// legacy numeric-only folders to the "<id> <title>" layout.
package workflow
