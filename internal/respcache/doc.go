// Package respcache persists GraphQL responses in a local SQLite database so
// repeated runs skip identical catalog round-trips.
//
// Entries are keyed by a digest of the endpoint, query name, and variables,
// overwritten wholesale on every Put, and treated as absent once older than
// the configured TTL. The cache is a pure optimization: every storage failure
// is logged and reported to callers as a miss.
package respcache
