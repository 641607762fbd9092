package correction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ahrav/go-soilcast/internal/domain"
	"github.com/ahrav/go-soilcast/internal/ports"
	"github.com/ahrav/go-soilcast/internal/testutils"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

func newPostProcessor(t *testing.T, client ports.CorrectionClient, opts ...Option) *PostProcessor {
	t.Helper()
	p, err := NewPostProcessor(MustPromptBuilder(), MustParser(), client, opts...)
	require.NoError(t, err)
	return p
}

// TestPostProcessor_Success verifies a well-behaved client is invoked once
// with the rendered prompt and its series is returned.
func TestPostProcessor_Success(t *testing.T) {
	want := testutils.Uniform(horizon, 0.33)
	client := &testutils.ScriptedClient{Response: testutils.SeriesJSON("soil_moisture", want), Model: "scripted"}
	p := newPostProcessor(t, client)

	c := p.Correct(context.Background(), sampleInitial(), sampleTrajectory(horizon), sampleSummary())

	require.Nil(t, c.Parsed.Failure)
	assert.Equal(t, want, c.Parsed.Values)
	assert.Equal(t, StrategyMapping, c.Parsed.Strategy)
	assert.Equal(t, 1, client.Calls())
	assert.Equal(t, []string{c.Prompt}, client.Prompts())
	assert.Contains(t, c.Raw, `"soil_moisture"`)
	assert.True(t, p.Enabled())
	assert.Equal(t, "scripted", p.Model())
}

func TestPostProcessor_InvocationFailures(t *testing.T) {
	tests := []struct {
		name       string
		client     ports.CorrectionClient
		timeout    time.Duration
		wantReason string
	}{
		{
			name:       "no client",
			client:     nil,
			wantReason: domain.ReasonNoClient,
		},
		{
			name:       "client error",
			client:     &testutils.ScriptedClient{Err: errors.New("upstream 503")},
			wantReason: domain.ReasonClientError,
		},
		{
			name:       "client panic",
			client:     testutils.PanickingClient{Value: "boom"},
			wantReason: domain.ReasonClientPanic,
		},
		{
			name:       "client panics with an error value",
			client:     testutils.PanickingClient{Value: errors.New("wrapped")},
			wantReason: domain.ReasonClientPanic,
		},
		{
			name:       "timeout",
			client:     testutils.NewBlockingClient(),
			timeout:    20 * time.Millisecond,
			wantReason: domain.ReasonTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPostProcessor(t, tt.client, WithTimeout(tt.timeout))

			c := p.Correct(context.Background(), sampleInitial(), sampleTrajectory(horizon), sampleSummary())

			require.NotNil(t, c.Parsed.Failure)
			assert.Equal(t, domain.CorrectionStageInvoke, c.Parsed.Failure.Stage)
			assert.Equal(t, tt.wantReason, c.Parsed.Failure.Reason)
			assert.True(t, errors.Is(c.Parsed.Failure, domain.ErrLLMInvocation))
			assert.Nil(t, c.Parsed.Values)
			assert.NotEmpty(t, c.Prompt)
			assert.Empty(t, c.Raw)
		})
	}
}

func TestPostProcessor_Cancellation(t *testing.T) {
	client := testutils.NewBlockingClient()
	p := newPostProcessor(t, client)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-client.Started
		cancel()
	}()

	c := p.Correct(ctx, sampleInitial(), sampleTrajectory(horizon), sampleSummary())

	require.NotNil(t, c.Parsed.Failure)
	assert.Equal(t, domain.ReasonCanceled, c.Parsed.Failure.Reason)
}

func TestPostProcessor_ParseFailure(t *testing.T) {
	client := &testutils.ScriptedClient{Response: "I cannot forecast soil moisture."}
	p := newPostProcessor(t, client)

	c := p.Correct(context.Background(), sampleInitial(), sampleTrajectory(horizon), sampleSummary())

	require.NotNil(t, c.Parsed.Failure)
	assert.Equal(t, domain.ReasonUnparseableText, c.Parsed.Failure.Reason)
	assert.True(t, errors.Is(c.Parsed.Failure, domain.ErrResponseParse))
	assert.Equal(t, "I cannot forecast soil moisture.", c.Raw)
	assert.Equal(t, 1, client.Calls())
}

func TestPostProcessor_PromptFailure(t *testing.T) {
	b, err := NewPromptBuilder("{{.Missing}}")
	require.NoError(t, err)
	client := &testutils.ScriptedClient{Response: testutils.Uniform(horizon, 0.3)}
	p, err := NewPostProcessor(b, MustParser(), client)
	require.NoError(t, err)

	c := p.Correct(context.Background(), sampleInitial(), sampleTrajectory(horizon), sampleSummary())

	require.NotNil(t, c.Parsed.Failure)
	assert.Equal(t, domain.ReasonPromptError, c.Parsed.Failure.Reason)
	assert.Zero(t, client.Calls(), "client must not be invoked without a prompt")
}

func TestPostProcessor_StructuredResponseRendered(t *testing.T) {
	client := &testutils.ScriptedClient{Response: map[string]any{"values": testutils.Uniform(horizon, 0.5)}}
	p := newPostProcessor(t, client)

	c := p.Correct(context.Background(), sampleInitial(), sampleTrajectory(horizon), sampleSummary())

	require.Nil(t, c.Parsed.Failure)
	assert.Contains(t, c.Raw, `{"values":[0.5,`)
}

func TestPostProcessor_LogsRejections(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	p := newPostProcessor(t, &testutils.ScriptedClient{Response: 42}, WithLogger(zap.New(core)))

	p.Correct(context.Background(), sampleInitial(), sampleTrajectory(horizon), sampleSummary())

	entries := logs.FilterMessage("correction rejected").All()
	require.Len(t, entries, 1)
	assert.Equal(t, domain.ReasonInvalidShape, entries[0].ContextMap()["reason"])
}

func TestNewPostProcessor_RequiresComponents(t *testing.T) {
	_, err := NewPostProcessor(nil, MustParser(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)

	_, err = NewPostProcessor(MustPromptBuilder(), nil, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)

	p, err := NewPostProcessor(MustPromptBuilder(), MustParser(), nil)
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	assert.Empty(t, p.Model())
}

func TestRenderRaw(t *testing.T) {
	cyclic := make([]any, 1)
	cyclic[0] = cyclic

	assert.Equal(t, "", renderRaw(nil))
	assert.Equal(t, "text", renderRaw("text"))
	assert.Equal(t, "bytes", renderRaw([]byte("bytes")))
	assert.Equal(t, "[1,2]", renderRaw([]int{1, 2}))
	assert.Equal(t, "<unrenderable chan int>", renderRaw(make(chan int)))
	assert.NotPanics(t, func() { renderRaw(cyclic) })
}
