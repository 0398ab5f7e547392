// Package services defines shared utilities consumed by the catalog client,
// download executor, and sync orchestrator.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, resource names, and episode IDs for
//     logging.
//   - Structured error markers plus the Wrap helper so callers classify
//     failures with errors.Is instead of string matching.
//   - Retry classification and context-aware sleeping shared by every HTTP
//     caller.
package services
