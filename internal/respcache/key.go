package respcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Request describes one cacheable GraphQL call.
type Request struct {
	Endpoint  string
	QueryName string
	Query     string
	Variables map[string]any
}

// Key returns the normalized signature of r. Variables are serialized with
// sorted keys so map iteration order never changes the key.
func (r Request) Key() string {
	payload, _ := json.Marshal(struct {
		Endpoint  string         `json:"endpoint"`
		QueryName string         `json:"query_name"`
		Variables map[string]any `json:"variables"`
	}{r.Endpoint, r.QueryName, r.Variables})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func (r Request) variablesJSON() string {
	payload, err := json.Marshal(r.Variables)
	if err != nil {
		return "{}"
	}
	return string(payload)
}
