package model

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkIDRoundTrip(t *testing.T) {
	id := ChunkID("report.txt", CollectionDocuments, 7)
	assert.Equal(t, "report.txt::documents::0007", id)

	doc, collection, idx, err := ParseChunkID(id)
	require.NoError(t, err)
	assert.Equal(t, "report.txt", doc)
	assert.Equal(t, CollectionDocuments, collection)
	assert.Equal(t, 7, idx)
}

func TestParseChunkIDMalformed(t *testing.T) {
	for _, id := range []string{"", "no separators", "a::b", "a::b::c::d", "a::b::notanumber"} {
		_, _, _, err := ParseChunkID(id)
		assert.Error(t, err, "id %q", id)
	}
}

func TestCollectionRank(t *testing.T) {
	assert.Equal(t, 0, CollectionRank(CollectionDocuments))
	assert.Equal(t, 1, CollectionRank(CollectionParagraphSummaries))
	assert.Equal(t, 2, CollectionRank(CollectionLogicalSummaries))
	assert.Equal(t, 3, CollectionRank("unknown"))
}

func TestNewCitation(t *testing.T) {
	c := NewCitation(SearchHit{
		Content:    "body",
		Score:      0.42,
		Document:   "a.txt",
		ChunkID:    "a.txt::documents::0000",
		Collection: CollectionDocuments,
	})
	assert.Equal(t, 0.42, c.RelevancyScore)
	assert.InDelta(t, 42.0, c.RelevancyPercentage, 1e-9)
	assert.Equal(t, "body", c.Text)
}

func TestStageWrapping(t *testing.T) {
	err := WithStage(StageEmbed, fmt.Errorf("%w: boom", ErrUpstreamUnavailable))
	assert.Equal(t, StageEmbed, Stage(err))
	assert.True(t, errors.Is(err, ErrUpstreamUnavailable))
	assert.Nil(t, WithStage(StageEmbed, nil))
	assert.Equal(t, "", Stage(errors.New("plain")))
}

func TestClassifyContextErrors(t *testing.T) {
	assert.True(t, errors.Is(Classify(context.Canceled), ErrCanceled))
	assert.True(t, errors.Is(Classify(context.DeadlineExceeded), ErrUpstreamUnavailable))
	plain := errors.New("plain")
	assert.Equal(t, plain, Classify(plain))
	assert.NoError(t, Classify(nil))
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[error]int{
		nil:                   http.StatusOK,
		ErrInvalidQuery:       http.StatusBadRequest,
		ErrNotFound:           http.StatusNotFound,
		ErrAlreadyExists:      http.StatusConflict,
		ErrAlreadyIngesting:   http.StatusConflict,
		ErrUpstreamUnavailable: http.StatusServiceUnavailable,
		ErrLLMTimeout:         http.StatusGatewayTimeout,
		ErrCanceled:           499,
		ErrInternal:           http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, HTTPStatus(err))
	}
	// Wrapped and staged errors map the same way.
	assert.Equal(t, http.StatusConflict, HTTPStatus(WithStage(StageUpsert, fmt.Errorf("%w: x", ErrAlreadyExists))))
}

func TestExitCodeMapping(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 2, ExitCode(ErrInvalidQuery))
	assert.Equal(t, 3, ExitCode(ErrUpstreamUnavailable))
	assert.Equal(t, 3, ExitCode(ErrLLMTimeout))
	assert.Equal(t, 4, ExitCode(ErrNotFound))
	assert.Equal(t, 5, ExitCode(ErrAlreadyExists))
	assert.Equal(t, 1, ExitCode(errors.New("anything else")))
}
