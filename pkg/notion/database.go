package notion

import (
	"context"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// QueryAll fetches every page of a database query, following cursors.
func QueryAll(ctx context.Context, c Client, dbID string, filter *notionapi.DatabaseQueryRequest) ([]notionapi.Page, error) {
	var all []notionapi.Page
	var cursor notionapi.Cursor
	for {
		req := &notionapi.DatabaseQueryRequest{StartCursor: cursor}
		if filter != nil {
			req.Filter = filter.Filter
			req.Sorts = filter.Sorts
			req.PageSize = filter.PageSize
		}

		resp, err := c.QueryDatabase(ctx, dbID, req)
		if err != nil {
			return nil, eris.Wrap(err, "notion: query all")
		}
		all = append(all, resp.Results...)
		if !resp.HasMore || resp.NextCursor == "" {
			return all, nil
		}
		cursor = resp.NextCursor
	}
}

// QueryBySelect returns the pages whose select property equals value.
func QueryBySelect(ctx context.Context, c Client, dbID, property, value string) ([]notionapi.Page, error) {
	pages, err := QueryAll(ctx, c, dbID, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: property,
			Select:   &notionapi.SelectFilterCondition{Equals: value},
		},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "notion: query %s = %s", property, value)
	}
	return pages, nil
}

// Text returns the plain text of a title or rich_text property.
func Text(p notionapi.Page, property string) string {
	switch prop := p.Properties[property].(type) {
	case *notionapi.TitleProperty:
		return plainText(prop.Title)
	case *notionapi.RichTextProperty:
		return plainText(prop.RichText)
	}
	return ""
}

// SelectName returns the option name of a select property.
func SelectName(p notionapi.Page, property string) string {
	if sp, ok := p.Properties[property].(*notionapi.SelectProperty); ok {
		return sp.Select.Name
	}
	return ""
}

// Number returns the value of a number property.
func Number(p notionapi.Page, property string) float64 {
	if np, ok := p.Properties[property].(*notionapi.NumberProperty); ok {
		return np.Number
	}
	return 0
}

func plainText(rt []notionapi.RichText) string {
	var b strings.Builder
	for _, t := range rt {
		b.WriteString(t.PlainText)
	}
	return b.String()
}
