package catalog

import (
	"context"
	"encoding/json"

	"audiothek/internal/resolve"
	"audiothek/internal/services"
)

// DefaultSearchLimit caps editorial category listings.
const DefaultSearchLimit = 200

// SearchResult is one program set or editorial collection in a category.
type SearchResult struct {
	Kind             resolve.Kind
	ID               string
	Title            string
	Path             string
	NumberOfElements int
}

type rawSearchNode struct {
	ID               json.RawMessage `json:"id"`
	Title            string          `json:"title"`
	Path             string          `json:"path"`
	NumberOfElements int             `json:"numberOfElements"`
}

func (n rawSearchNode) result(kind resolve.Kind) (SearchResult, bool) {
	id := scalarString(n.ID)
	if id == "" {
		return SearchResult{}, false
	}
	return SearchResult{Kind: kind, ID: id, Title: n.Title, Path: n.Path, NumberOfElements: n.NumberOfElements}, true
}

// ProgramSetsByCategory lists program sets filed under an editorial category.
func (c *Client) ProgramSetsByCategory(ctx context.Context, categoryID string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	var results []SearchResult
	for offset := 0; len(results) < limit; offset += PageSize {
		variables := map[string]any{
			"editorialCategoryId": categoryID,
			"offset":              offset,
			"count":               min(PageSize, limit-len(results)),
		}
		raw, err := c.execute(ctx, programSetsByCategoryQuery, variables)
		if err != nil {
			return results, err
		}
		var connection struct {
			PageInfo struct {
				HasNextPage bool `json:"hasNextPage"`
			} `json:"pageInfo"`
			Nodes []rawSearchNode `json:"nodes"`
		}
		if err := json.Unmarshal(raw, &connection); err != nil {
			return results, services.Wrap(services.ErrUpstream, "catalog", programSetsByCategoryQuery.name, "decode page", err)
		}
		for _, node := range connection.Nodes {
			if r, ok := node.result(resolve.KindProgram); ok && len(results) < limit {
				results = append(results, r)
			}
		}
		if !connection.PageInfo.HasNextPage {
			break
		}
	}
	return results, nil
}

// CollectionsByCategory lists editorial collections across every section of
// an editorial category, de-duplicated by id. Paging stops once a page adds
// nothing new.
func (c *Client) CollectionsByCategory(ctx context.Context, categoryID string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	seen := make(map[string]struct{})
	var results []SearchResult
	for offset := 0; len(results) < limit; offset += PageSize {
		variables := map[string]any{
			"id":     categoryID,
			"offset": offset,
			"count":  min(PageSize, limit-len(results)),
		}
		raw, err := c.execute(ctx, collectionsByCategoryQuery, variables)
		if err != nil {
			return results, err
		}
		var category struct {
			Sections []*struct {
				Nodes []*rawSearchNode `json:"nodes"`
			} `json:"sections"`
		}
		if err := json.Unmarshal(raw, &category); err != nil {
			return results, services.Wrap(services.ErrUpstream, "catalog", collectionsByCategoryQuery.name, "decode page", err)
		}
		before := len(results)
		for _, section := range category.Sections {
			if section == nil {
				continue
			}
			for _, node := range section.Nodes {
				if node == nil {
					continue
				}
				r, ok := node.result(resolve.KindCollection)
				if !ok {
					continue
				}
				if _, dup := seen[r.ID]; dup || len(results) >= limit {
					continue
				}
				seen[r.ID] = struct{}{}
				results = append(results, r)
			}
		}
		if len(results) == before {
			break
		}
	}
	return results, nil
}
