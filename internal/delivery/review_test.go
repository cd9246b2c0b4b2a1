package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestNotionReviewQueue_Enqueue(t *testing.T) {
	nc := new(mockNotion)
	var got *notionapi.PageCreateRequest
	nc.On("CreatePage", mock.Anything, mock.AnythingOfType("*notionapi.PageCreateRequest")).
		Run(func(args mock.Arguments) { got = args.Get(1).(*notionapi.PageCreateRequest) }).
		Return(&notionapi.Page{ID: "page-1"}, nil)

	p := sampleProposal()
	p.CreatedAt = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, NewNotionReviewQueue(nc, "db-review").Enqueue(context.Background(), p))

	require.NotNil(t, got)
	assert.Equal(t, notionapi.DatabaseID("db-review"), got.Parent.DatabaseID)

	title := got.Properties[propName].(notionapi.TitleProperty)
	assert.Equal(t, "Acme Corp", title.Title[0].Text.Content)
	status := got.Properties[propStatus].(notionapi.SelectProperty)
	assert.Equal(t, StatusPending, status.Select.Name)
	tier := got.Properties[propTier].(notionapi.SelectProperty)
	assert.Equal(t, "high", tier.Select.Name)
	value := got.Properties[propValue].(notionapi.NumberProperty)
	assert.InDelta(t, 202500, value.Number, 0.001)
	created := got.Properties[propCreated].(notionapi.DateProperty)
	assert.Equal(t, p.CreatedAt, time.Time(*created.Date.Start))
	nc.AssertExpectations(t)
}

func TestNotionReviewQueue_EnqueueError(t *testing.T) {
	nc := new(mockNotion)
	nc.On("CreatePage", mock.Anything, mock.Anything).Return(nil, errors.New("validation_error"))

	err := NewNotionReviewQueue(nc, "db-review").Enqueue(context.Background(), sampleProposal())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue proposal prop-1 for review")
}
