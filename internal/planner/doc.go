// Package planner decides, per episode, what the mirror has to do on disk.
//
// Plan compares the normalized catalog record against the files already in
// the episode folder and emits one Step per artifact kind (audio, wide cover,
// square cover, metadata sidecar):
//
//   - create when nothing is on disk yet
//   - replace when the remote audio strictly outranks the local file
//   - repair when a file is implausibly small, left a partial marker, or is
//     shorter than the server copy
//   - noop otherwise
//
// Audio is never downgraded. Local files are joined to the catalog by the
// episode id embedded in their names, so title changes do not trigger
// downloads. Planning only reads the filesystem; DownloadExecutor performs
// the steps.
package planner
