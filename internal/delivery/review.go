package delivery

import (
	"context"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"

	"github.com/huntred/circle/internal/model"
	"github.com/huntred/circle/pkg/notion"
)

// Review database property names.
const (
	propName       = "Name"
	propProposalID = "Proposal ID"
	propCycle      = "Cycle"
	propTier       = "Tier"
	propConfidence = "Confidence"
	propValue      = "Value"
	propStatus     = "Status"
	propCreated    = "Created"
)

// Review statuses.
const (
	StatusPending  = "Pending Review"
	StatusApproved = "Approved"
	StatusRejected = "Rejected"
)

// NotionReviewQueue files proposals that were not auto-sent as pages in a
// Notion database for a recruiter to approve or reject.
type NotionReviewQueue struct {
	client notion.Client
	dbID   string
}

// NewNotionReviewQueue creates a queue writing to database dbID.
func NewNotionReviewQueue(client notion.Client, dbID string) *NotionReviewQueue {
	return &NotionReviewQueue{client: client, dbID: dbID}
}

func (q *NotionReviewQueue) Enqueue(ctx context.Context, p model.Proposal) error {
	created := notionapi.Date(p.CreatedAt)
	if p.CreatedAt.IsZero() {
		created = notionapi.Date(time.Now().UTC())
	}
	_, err := q.client.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(q.dbID),
		},
		Properties: notionapi.Properties{
			propName: notionapi.TitleProperty{
				Type:  notionapi.PropertyTypeTitle,
				Title: richText(p.CompanyName),
			},
			propProposalID: notionapi.RichTextProperty{
				Type:     notionapi.PropertyTypeRichText,
				RichText: richText(p.ID),
			},
			propCycle: notionapi.RichTextProperty{
				Type:     notionapi.PropertyTypeRichText,
				RichText: richText(p.CycleID),
			},
			propTier: notionapi.SelectProperty{
				Select: notionapi.Option{Name: string(p.Tier)},
			},
			propConfidence: notionapi.NumberProperty{
				Number: p.Confidence,
			},
			propValue: notionapi.NumberProperty{
				Number: p.TotalValue,
			},
			propStatus: notionapi.SelectProperty{
				Select: notionapi.Option{Name: StatusPending},
			},
			propCreated: notionapi.DateProperty{
				Date: &notionapi.DateObject{Start: &created},
			},
		},
	})
	if err != nil {
		return eris.Wrapf(err, "delivery: queue proposal %s for review", p.ID)
	}
	return nil
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{
		{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}},
	}
}
