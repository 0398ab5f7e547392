// Package fileutil holds the filesystem primitives shared by the download
// executor and the sync workflow: atomic writes, JSON comparison, publish-date
// timestamps, and inter-process artifact locks.
package fileutil
