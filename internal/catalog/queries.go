package catalog

import (
	"embed"
	"strings"

	"audiothek/internal/resolve"
)

//go:embed queries/*.graphql
var queryFiles embed.FS

// query is a named GraphQL document.
type query struct {
	name     string
	document string
}

// listQuery pairs a paged document with the container fields persisted to
// the program-level metadata file, in output order.
type listQuery struct {
	query
	fallbackID      string
	containerFields []string
}

var (
	episodeFragment = mustLoad("EpisodeFields")

	episodeQuery = withFragment("EpisodeQuery")

	programSetQuery = listQuery{
		query:      withFragment("ProgramSetEpisodesQuery"),
		fallbackID: "program_set",
		containerFields: []string{
			"id", "coreId", "title", "synopsis", "numberOfElements", "image",
			"editorialCategoryId", "imageCollectionId", "publicationServiceId",
			"coreDocument", "rowId", "nodeId",
		},
	}

	editorialCollectionQuery = listQuery{
		query:      withFragment("EditorialCollectionQuery"),
		fallbackID: "collection",
		containerFields: []string{
			"id", "coreId", "title", "synopsis", "summary", "editorialDescription",
			"image", "sharingUrl", "path", "numberOfElements", "broadcastDuration",
		},
	}

	programSetsByCategoryQuery = query{name: "ProgramSetsByEditorialCategoryId", document: mustLoad("ProgramSetsByEditorialCategoryId")}
	collectionsByCategoryQuery = query{name: "EditorialCategoryCollections", document: mustLoad("EditorialCategoryCollections")}
)

func listQueryFor(kind resolve.Kind) (listQuery, bool) {
	switch kind {
	case resolve.KindProgram:
		return programSetQuery, true
	case resolve.KindCollection:
		return editorialCollectionQuery, true
	default:
		return listQuery{}, false
	}
}

func withFragment(name string) query {
	return query{name: name, document: mustLoad(name) + "\n" + episodeFragment}
}

func mustLoad(name string) string {
	data, err := queryFiles.ReadFile("queries/" + name + ".graphql")
	if err != nil {
		panic("catalog: missing query document " + name)
	}
	return strings.TrimSpace(string(data))
}
