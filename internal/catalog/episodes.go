package catalog

import (
	"context"
	"encoding/json"
	"iter"

	"audiothek/internal/logging"
	"audiothek/internal/resolve"
	"audiothek/internal/services"
)

type rawPage struct {
	Items *struct {
		PageInfo *struct {
			HasNextPage bool   `json:"hasNextPage"`
			EndCursor   string `json:"endCursor"`
		} `json:"pageInfo"`
		Nodes []json.RawMessage `json:"nodes"`
	} `json:"items"`
}

type page struct {
	container *Container
	nodes     []json.RawMessage
	hasNext   bool
}

// Episodes lists every episode of ref. Pages are fetched one at a time as the
// sequence is consumed and the sequence ends after the page that reports no
// successor. Calling Episodes again restarts from the first page.
//
// A malformed page or a failed request yields a single error and ends the
// sequence. Malformed episodes inside a valid page are logged and skipped.
// Episode ids are yielded at most once per traversal.
func (c *Client) Episodes(ctx context.Context, ref resolve.Ref) iter.Seq2[Episode, error] {
	return func(yield func(Episode, error) bool) {
		if ref.Kind == resolve.KindEpisode {
			yield(c.Episode(ctx, ref.ID))
			return
		}
		q, ok := listQueryFor(ref.Kind)
		if !ok {
			yield(Episode{}, services.Wrap(services.ErrInvalidInput, "catalog", "list", "unsupported resource kind "+string(ref.Kind), nil))
			return
		}

		logger := logging.WithContext(ctx, c.logger)
		seen := make(map[string]struct{})
		var container *Container
		for offset := 0; ; offset += PageSize {
			p, err := c.fetchPage(ctx, q, ref, offset, PageSize)
			if err != nil {
				yield(Episode{}, err)
				return
			}
			if container == nil {
				container = p.container
			}
			for _, raw := range p.nodes {
				ep, err := decodeEpisode(raw)
				if err != nil {
					logging.WarnWithContext(logger, "skipping malformed episode", "episode_malformed",
						logging.String("resource", ref.String()),
						logging.Int("offset", offset),
						logging.Error(err),
					)
					continue
				}
				if _, dup := seen[ep.ID]; dup {
					continue
				}
				seen[ep.ID] = struct{}{}
				ep.Container = container
				if !yield(ep, nil) {
					return
				}
			}
			if !p.hasNext {
				return
			}
			if len(p.nodes) == 0 {
				logging.WarnWithContext(logger, "empty page claims a successor; stopping", "pagination_stalled",
					logging.String("resource", ref.String()),
					logging.Int("offset", offset),
				)
				return
			}
		}
	}
}

func (c *Client) fetchPage(ctx context.Context, q listQuery, ref resolve.Ref, offset, count int) (page, error) {
	variables := map[string]any{"id": ref.ID, "offset": offset, "count": count}
	result, err := c.execute(ctx, q.query, variables)
	if err != nil {
		return page{}, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(result, &fields); err != nil {
		return page{}, services.Wrap(services.ErrUpstream, "catalog", q.name, "result is not an object", err)
	}
	var raw rawPage
	if err := json.Unmarshal(result, &raw); err != nil {
		return page{}, services.Wrap(services.ErrUpstream, "catalog", q.name, "decode page", err)
	}
	if raw.Items == nil || raw.Items.PageInfo == nil {
		return page{}, services.Wrap(services.ErrUpstream, "catalog", q.name, "page is missing items or pageInfo", nil)
	}
	c.logger.Debug("catalog page fetched",
		logging.String("resource", ref.String()),
		logging.Int("offset", offset),
		logging.Int("nodes", len(raw.Items.Nodes)),
		logging.Bool("has_next", raw.Items.PageInfo.HasNextPage),
	)
	return page{
		container: decodeContainer(ref, q, fields),
		nodes:     raw.Items.Nodes,
		hasNext:   raw.Items.PageInfo.HasNextPage,
	}, nil
}

// Episode looks up a single episode by id.
func (c *Client) Episode(ctx context.Context, id string) (Episode, error) {
	result, err := c.execute(ctx, episodeQuery, map[string]any{"id": id})
	if err != nil {
		return Episode{}, err
	}
	ep, err := decodeEpisode(result)
	if err != nil {
		return Episode{}, services.Wrap(services.ErrUpstream, "catalog", episodeQuery.name, "decode episode "+id, err)
	}
	return ep, nil
}

// Title returns the display title of ref: the program set title for programs
// and episodes, the collection title for editorial collections.
func (c *Client) Title(ctx context.Context, ref resolve.Ref) (string, error) {
	if ref.Kind == resolve.KindEpisode {
		ep, err := c.Episode(ctx, ref.ID)
		if err != nil {
			return "", err
		}
		return ep.ProgramSet.Title, nil
	}
	q, ok := listQueryFor(ref.Kind)
	if !ok {
		return "", services.Wrap(services.ErrInvalidInput, "catalog", "title", "unsupported resource kind "+string(ref.Kind), nil)
	}
	p, err := c.fetchPage(ctx, q, ref, 0, PageSize)
	if err != nil {
		return "", err
	}
	if p.container.Title != "" {
		return p.container.Title, nil
	}
	for _, raw := range p.nodes {
		if ep, err := decodeEpisode(raw); err == nil && ep.ProgramSet.Title != "" {
			return ep.ProgramSet.Title, nil
		}
	}
	return "", services.Wrap(services.ErrNotFound, "catalog", "title", "no title for "+ref.String(), nil)
}
