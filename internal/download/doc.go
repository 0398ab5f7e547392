// Package download carries out planner steps.
//
// Every transfer streams into a pending file in the target directory and is
// renamed over the final path only after the byte count has been verified,
// so a reader never sees a truncated file under its final name. Installed
// files take the episode's publish date as their modification time.
// Superseded audio is removed only after its replacement is in place.
//
// Failures are reported per file. One failed artifact does not stop the
// remaining steps of the plan.
package download
