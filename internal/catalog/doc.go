// Package catalog talks to the Audiothek GraphQL endpoint.
//
// The Client issues the program, editorial collection, and single-episode
// queries, reads through the response cache, paces and retries requests, and
// normalizes every response shape into Episode records so downstream code
// never branches on which query produced them. Listings page by offset in
// fixed steps of PageSize until the API reports no further page.
package catalog
