package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luminalhq/docchat/internal/model"
)

func demoClient() *Client {
	return NewClient(Config{DemoMode: true}, nil)
}

func TestDemoCompleteEchoesLastUserMessage(t *testing.T) {
	c := demoClient()
	out, err := c.Complete(context.Background(), []Message{
		{Role: openai.ChatMessageRoleSystem, Content: "instructions"},
		{Role: openai.ChatMessageRoleUser, Content: "what is in the report?"},
	}, Params{})
	require.NoError(t, err)
	assert.Equal(t, "what is in the report?", out)
}

func TestDemoCompleteTruncates(t *testing.T) {
	c := demoClient()
	long := strings.Repeat("z", 500)
	out, err := c.Complete(context.Background(), []Message{
		{Role: openai.ChatMessageRoleUser, Content: long},
	}, Params{})
	require.NoError(t, err)
	assert.Len(t, out, demoEchoLimit)
}

func TestCompleteRejectsEmptyMessages(t *testing.T) {
	c := demoClient()
	_, err := c.Complete(context.Background(), nil, Params{})
	assert.True(t, errors.Is(err, model.ErrInvalidQuery))
}

func TestPingDemoMode(t *testing.T) {
	assert.NoError(t, demoClient().Ping(context.Background()))
}

func TestSummarizeDemoRespectsBound(t *testing.T) {
	c := demoClient()
	text := strings.Repeat("Summaries compress text by a target ratio. ", 50)
	text = strings.TrimSpace(text)

	for _, ratio := range []float64{0.10, 1.0 / 3.0} {
		out, err := c.Summarize(context.Background(), text, ratio)
		require.NoError(t, err)
		bound := int(float64(len(text)) * ratio * summarySlack)
		assert.LessOrEqual(t, len(out), bound+1, "ratio %g", ratio)
		assert.NotEmpty(t, out)
	}
}

func TestSummarizeEmptyText(t *testing.T) {
	c := demoClient()
	out, err := c.Summarize(context.Background(), "   ", 0.1)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestSummarizeRejectsBadRatio(t *testing.T) {
	c := demoClient()
	for _, ratio := range []float64{0, -0.5, 1, 2} {
		_, err := c.Summarize(context.Background(), "some text", ratio)
		assert.True(t, errors.Is(err, model.ErrInvalidQuery), "ratio %g", ratio)
	}
}
