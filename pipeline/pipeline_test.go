package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/smallnest/kgqa/answer"
	"github.com/smallnest/kgqa/format"
	"github.com/smallnest/kgqa/graph"
	"github.com/smallnest/kgqa/llms/chat"
	"github.com/smallnest/kgqa/log"
	"github.com/smallnest/kgqa/ontology"
	"github.com/smallnest/kgqa/sparql"
	"github.com/smallnest/kgqa/store"
	"github.com/smallnest/kgqa/store/memory"
	"github.com/smallnest/kgqa/synth"
)

const horseQueryJSON = `{"sparql_query": "PREFIX horses: <http://www.semanticweb.org/noamaadra/ontologies/2024/2/Horses#>\nSELECT ?horse ?name WHERE { ?horse a horses:Horse ; horses:hasName ?name . }", "entities_used": ["horses:Horse"], "relations_used": ["horses:hasName"], "explanation": "Lists every horse with its name"}`

const threeHorses = `{
  "head": {"vars": ["horse", "name"]},
  "results": {"bindings": [
    {"horse": {"type": "uri", "value": "http://www.semanticweb.org/noamaadra/ontologies/2024/2/Horses#Dakota"}, "name": {"type": "literal", "value": "Dakota"}},
    {"horse": {"type": "uri", "value": "http://www.semanticweb.org/noamaadra/ontologies/2024/2/Horses#Tornado"}, "name": {"type": "literal", "value": "Tornado"}},
    {"horse": {"type": "uri", "value": "http://www.semanticweb.org/noamaadra/ontologies/2024/2/Horses#Eclipse"}, "name": {"type": "literal", "value": "Eclipse"}}
  ]}
}`

const noRows = `{"head": {"vars": ["horse"]}, "results": {"bindings": []}}`

// scriptedLLM answers query prompts and answer prompts with separate functions
// and records every prompt it receives.
type scriptedLLM struct {
	mu      sync.Mutex
	query   func(ctx context.Context, prompt string) (string, error)
	answer  func(ctx context.Context, prompt string) (string, error)
	prompts map[string][]string
}

func (m *scriptedLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	var system, human string
	for _, msg := range messages {
		text := msg.Parts[0].(llms.TextContent).Text
		if msg.Role == llms.ChatMessageTypeSystem {
			system = text
		} else {
			human = text
		}
	}
	kind, fn := "answer", m.answer
	if strings.Contains(system, "SPARQL") {
		kind, fn = "query", m.query
	}

	m.mu.Lock()
	if m.prompts == nil {
		m.prompts = make(map[string][]string)
	}
	m.prompts[kind] = append(m.prompts[kind], human)
	m.mu.Unlock()

	if fn == nil {
		return nil, errors.New("no script for " + kind)
	}
	text, err := fn(ctx, human)
	if err != nil {
		return nil, err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: text}}}, nil
}

func (m *scriptedLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func (m *scriptedLLM) promptsFor(kind string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts[kind]...)
}

func reply(text string) func(context.Context, string) (string, error) {
	return func(context.Context, string) (string, error) { return text, nil }
}

func sparqlServer(t *testing.T, body string, status int, queries *[]string) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if queries != nil {
			mu.Lock()
			*queries = append(*queries, r.PostForm.Get("query"))
			mu.Unlock()
		}
		w.Header().Set("Content-Type", sparql.ContentTypeResults)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func fastRetry(attempts int) *graph.RetryConfig {
	return &graph.RetryConfig{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffFactor: 2}
}

func newTestPipeline(t *testing.T, model llms.Model, endpoint string, chatOpts []chat.Option, opts ...Option) *Pipeline {
	t.Helper()
	logger := &log.NoOpLogger{}

	client, err := chat.New(model, append([]chat.Option{chat.WithRetry(fastRetry(2)), chat.WithLogger(logger)}, chatOpts...)...)
	require.NoError(t, err)

	s, err := synth.New(ontology.Default(), client, synth.WithLogger(logger))
	require.NoError(t, err)
	a, err := answer.New(client, answer.WithLogger(logger))
	require.NoError(t, err)
	exec, err := sparql.New(endpoint, sparql.WithRetry(fastRetry(2)), sparql.WithLogger(logger))
	require.NoError(t, err)

	p, err := New(s, exec, a, append([]Option{WithLogger(logger)}, opts...)...)
	require.NoError(t, err)
	return p
}

// Scenario A: a listing question with three matching rows.
func TestAskListsEntities(t *testing.T) {
	var queries []string
	server := sparqlServer(t, threeHorses, http.StatusOK, &queries)
	model := &scriptedLLM{
		query:  reply(horseQueryJSON),
		answer: reply("Il y a trois chevaux : Dakota, Tornado et Eclipse."),
	}
	p := newTestPipeline(t, model, server.URL, nil)

	rec := p.Ask(context.Background(), Question{Text: "Quels sont tous les chevaux ?", Category: format.EntityList})

	require.True(t, rec.Success, rec.Error)
	assert.Equal(t, Done, rec.Stage)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, synth.French, rec.Language)
	assert.True(t, rec.Parsed)
	assert.Equal(t, []string{"horses:Horse"}, rec.Entities)
	assert.Equal(t, 3, rec.ResultCount)
	assert.Equal(t, "Il y a trois chevaux : Dakota, Tornado et Eclipse.", rec.Answer)

	queryPrompts := model.promptsFor("query")
	require.Len(t, queryPrompts, 1)
	assert.Contains(t, queryPrompts[0], "horses:Horse")
	assert.Contains(t, queryPrompts[0], "hasName")

	require.Len(t, queries, 1)
	assert.Contains(t, queries[0], "SELECT ?horse ?name")
	assert.Contains(t, queries[0], "\nSELECT", "escaped newline must reach the endpoint as a real newline")

	lines := 0
	for _, line := range strings.Split(rec.Context, "\n") {
		if strings.HasPrefix(line, "- ") {
			lines++
		}
	}
	assert.Equal(t, 3, lines)

	answerPrompts := model.promptsFor("answer")
	require.Len(t, answerPrompts, 1)
	assert.Contains(t, answerPrompts[0], "Dakota")
	assert.Contains(t, answerPrompts[0], "Tornado")
}

// Scenario B: no matching data.
func TestAskNoData(t *testing.T) {
	server := sparqlServer(t, noRows, http.StatusOK, nil)
	model := &scriptedLLM{
		query:  reply(horseQueryJSON),
		answer: reply("Je n'ai trouvé aucune information pour répondre à cette question."),
	}
	p := newTestPipeline(t, model, server.URL, nil)

	rec := p.Ask(context.Background(), Question{Text: "Quels chevaux ont gagné en 1990 ?"})

	require.True(t, rec.Success)
	assert.Equal(t, 0, rec.ResultCount)
	assert.Equal(t, format.NoDataMessage(synth.French), rec.Context)

	answerPrompts := model.promptsFor("answer")
	require.Len(t, answerPrompts, 1)
	assert.Contains(t, answerPrompts[0], format.NoDataMessage(synth.French))
	assert.Contains(t, answerPrompts[0], "Do not invent")
	assert.NotContains(t, answerPrompts[0], "Dakota")
}

// Scenario C: fenced JSON followed by prose.
func TestAskFencedResponseWithProse(t *testing.T) {
	var queries []string
	server := sparqlServer(t, threeHorses, http.StatusOK, &queries)
	raw := "Voici la requête :\n```json\n" + horseQueryJSON + "\n```\nCette requête liste les chevaux. N'hésitez pas si {besoin}."
	model := &scriptedLLM{query: reply(raw), answer: reply("ok")}
	p := newTestPipeline(t, model, server.URL, nil)

	rec := p.Ask(context.Background(), Question{Text: "Quels sont tous les chevaux ?"})

	require.True(t, rec.Success)
	assert.True(t, rec.Parsed)
	assert.Equal(t, "Lists every horse with its name", rec.Explanation)
	require.Len(t, queries, 1)
	assert.NotContains(t, queries[0], "N'hésitez")
	assert.NotContains(t, queries[0], "besoin")
}

// Scenario D: the generation service times out on every attempt.
func TestAskSynthesisTimeout(t *testing.T) {
	server := sparqlServer(t, threeHorses, http.StatusOK, nil)
	model := &scriptedLLM{
		query: func(ctx context.Context, _ string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	p := newTestPipeline(t, model, server.URL, []chat.Option{chat.WithTimeout(20 * time.Millisecond)})

	rec := p.Ask(context.Background(), Question{Text: "Quels sont tous les chevaux ?"})

	require.False(t, rec.Success)
	assert.Equal(t, Failed, rec.Stage)
	assert.Equal(t, Synthesizing, rec.FailedStage)
	assert.Equal(t, "Quels sont tous les chevaux ?", rec.Question)
	assert.True(t, strings.HasPrefix(rec.Error, "synthesizing: query synthesis failed"), rec.Error)
	assert.Empty(t, rec.Query)
	assert.Len(t, model.promptsFor("query"), 2)
	assert.Empty(t, model.promptsFor("answer"))
}

func TestAskExecutionFailureKeepsQuery(t *testing.T) {
	server := sparqlServer(t, "<html><body><h1>Error</h1><p>MALFORMED QUERY</p></body></html>", http.StatusBadRequest, nil)
	model := &scriptedLLM{query: reply(horseQueryJSON), answer: reply("unused")}
	p := newTestPipeline(t, model, server.URL, nil)

	rec := p.Ask(context.Background(), Question{Text: "Quels sont tous les chevaux ?"})

	require.False(t, rec.Success)
	assert.Equal(t, Executing, rec.FailedStage)
	assert.Contains(t, rec.Query, "SELECT ?horse ?name")
	assert.Contains(t, rec.Error, "executing:")
	assert.Contains(t, rec.Error, "MALFORMED QUERY")
	assert.Empty(t, model.promptsFor("answer"))
}

func TestAskUnreachableEndpoint(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	model := &scriptedLLM{query: reply(horseQueryJSON)}
	p := newTestPipeline(t, model, url, nil)

	rec := p.Ask(context.Background(), Question{Text: "Quels sont tous les chevaux ?"})

	assert.False(t, rec.Success)
	assert.NotEmpty(t, rec.Error)
	assert.NotEmpty(t, rec.Query)
	assert.Equal(t, Executing, rec.FailedStage)
}

func TestAskAnswerFailureIsDegradedNotFailed(t *testing.T) {
	server := sparqlServer(t, threeHorses, http.StatusOK, nil)
	model := &scriptedLLM{
		query: reply(horseQueryJSON),
		answer: func(context.Context, string) (string, error) {
			return "", errors.New("model overloaded")
		},
	}
	p := newTestPipeline(t, model, server.URL, nil)

	rec := p.Ask(context.Background(), Question{Text: "Quels sont tous les chevaux ?"})

	require.True(t, rec.Success)
	assert.True(t, rec.AnswerDegraded)
	assert.Contains(t, rec.Answer, "J'ai trouvé 3 résultat(s)")
}

func TestAskDegradedParseFallsBackToDefaultQuery(t *testing.T) {
	var queries []string
	server := sparqlServer(t, threeHorses, http.StatusOK, &queries)
	model := &scriptedLLM{query: reply("Désolé, je ne sais pas."), answer: reply("ok")}
	p := newTestPipeline(t, model, server.URL, nil)

	rec := p.Ask(context.Background(), Question{Text: "Bonjour ?"})

	require.True(t, rec.Success)
	assert.False(t, rec.Parsed)
	assert.Equal(t, "fallback", rec.Strategy)
	require.Len(t, queries, 1)
	assert.True(t, strings.HasPrefix(queries[0], "PREFIX horses:"))
	assert.Contains(t, queries[0], "LIMIT 10")
}

func TestAskDegradedParseWarnsOnce(t *testing.T) {
	server := sparqlServer(t, threeHorses, http.StatusOK, nil)
	model := &scriptedLLM{query: reply("Désolé, je ne sais pas."), answer: reply("ok")}
	var buf bytes.Buffer
	p := newTestPipeline(t, model, server.URL, nil, WithLogger(log.NewWriter(&buf, log.LogLevelWarn)))

	rec := p.Ask(context.Background(), Question{Text: "Bonjour ?"})

	require.True(t, rec.Success)
	assert.Equal(t, 1, strings.Count(buf.String(), "using fallback query"))
	assert.Len(t, strings.Split(strings.TrimSpace(buf.String()), "\n"), 1)
}

func TestAskEmptyQuestion(t *testing.T) {
	model := &scriptedLLM{}
	p := newTestPipeline(t, model, "http://localhost:7200/repositories/test", nil)

	rec := p.Ask(context.Background(), Question{Text: "   "})

	assert.False(t, rec.Success)
	assert.Equal(t, Synthesizing, rec.FailedStage)
	assert.Contains(t, rec.Error, synth.ErrEmptyQuestion.Error())
	assert.Empty(t, model.promptsFor("query"))
}

func TestAskCancelledContext(t *testing.T) {
	model := &scriptedLLM{query: reply(horseQueryJSON)}
	p := newTestPipeline(t, model, "http://localhost:7200/repositories/test", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := p.Ask(ctx, Question{Text: "Quels sont tous les chevaux ?"})

	assert.False(t, rec.Success)
	assert.Equal(t, Synthesizing, rec.FailedStage)
	assert.Contains(t, rec.Error, context.Canceled.Error())
}

func TestAskEnglish(t *testing.T) {
	server := sparqlServer(t, noRows, http.StatusOK, nil)
	model := &scriptedLLM{query: reply(horseQueryJSON), answer: reply("Nothing found.")}
	p := newTestPipeline(t, model, server.URL, nil)

	rec := p.Ask(context.Background(), Question{Text: "Which horses exist?", Language: synth.English})

	require.True(t, rec.Success)
	assert.Equal(t, synth.English, rec.Language)
	assert.Equal(t, format.NoDataMessage(synth.English), rec.Context)
	assert.Contains(t, model.promptsFor("query")[0], "English")
}

func TestAskSavesRecords(t *testing.T) {
	server := sparqlServer(t, threeHorses, http.StatusOK, nil)
	model := &scriptedLLM{query: reply(horseQueryJSON), answer: reply("Trois chevaux.")}
	records := memory.NewMemoryRecordStore()
	p := newTestPipeline(t, model, server.URL, nil, WithStore(records), WithRawResults(true))

	rec := p.Ask(context.Background(), Question{Text: "Quels sont tous les chevaux ?"})
	require.NotNil(t, rec.RawResults)

	env, err := records.Load(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.True(t, env.Success)
	assert.Equal(t, "done", env.Stage)

	decoded, err := FromEnvelope(env)
	require.NoError(t, err)
	assert.Equal(t, rec.Answer, decoded.Answer)
	assert.Equal(t, rec.Query, decoded.Query)
	assert.Equal(t, 3, decoded.RawResults.Len())
	assert.Equal(t, Done, decoded.Stage)
	assert.Equal(t, format.General, decoded.Category)
}

func TestAskTracesNodes(t *testing.T) {
	server := sparqlServer(t, threeHorses, http.StatusOK, nil)
	model := &scriptedLLM{query: reply(horseQueryJSON), answer: reply("ok")}
	recorder := &graph.SpanRecorder{}
	p := newTestPipeline(t, model, server.URL, nil, WithTracer(graph.NewTracer(recorder)))

	p.Ask(context.Background(), Question{Text: "Quels sont tous les chevaux ?"})

	var ended []string
	for _, span := range recorder.Spans() {
		if span.Event == graph.TraceEventNodeEnd {
			ended = append(ended, span.NodeName)
		}
	}
	assert.Equal(t, []string{NodeSynthesize, NodeParse, NodeCorrect, NodeExecute, NodeFormat, NodeAnswer}, ended)
}

func TestAskAllKeepsOrder(t *testing.T) {
	server := sparqlServer(t, threeHorses, http.StatusOK, nil)
	model := &scriptedLLM{
		query: reply(horseQueryJSON),
		answer: func(_ context.Context, prompt string) (string, error) {
			first := strings.SplitN(prompt, "\n", 2)[0]
			return "answer to " + strings.TrimPrefix(first, "Question: "), nil
		},
	}
	p := newTestPipeline(t, model, server.URL, nil)

	var questions []Question
	for i := range 6 {
		questions = append(questions, Question{Text: fmt.Sprintf("question %d", i)})
	}

	records := p.AskAll(context.Background(), questions, 3)

	require.Len(t, records, 6)
	for i, rec := range records {
		require.NotNil(t, rec)
		assert.Equal(t, fmt.Sprintf("question %d", i), rec.Question)
		assert.Equal(t, fmt.Sprintf("answer to question %d", i), rec.Answer)
	}
}

func TestGraphDiagram(t *testing.T) {
	p := newTestPipeline(t, &scriptedLLM{}, "http://localhost:7200/repositories/test", nil)

	diagram := graph.NewExporter(p.Graph()).DrawMermaid()
	for _, node := range []string{NodeSynthesize, NodeParse, NodeCorrect, NodeExecute, NodeFormat, NodeAnswer} {
		assert.Contains(t, diagram, node)
	}
}

func TestStageText(t *testing.T) {
	for s := Idle; s <= Failed; s++ {
		text, err := s.MarshalText()
		require.NoError(t, err)
		var back Stage
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, s, back)
	}
	var s Stage
	assert.Error(t, s.UnmarshalText([]byte("flying")))
	assert.True(t, Done.Terminal())
	assert.False(t, Executing.Terminal())
}

func TestStageError(t *testing.T) {
	err := &StageError{Stage: Executing, Err: sparql.ErrEmptyQuery}
	assert.Equal(t, "executing: "+sparql.ErrEmptyQuery.Error(), err.Error())
	assert.ErrorIs(t, err, sparql.ErrEmptyQuery)
}

var _ store.RecordStore = (*memory.MemoryRecordStore)(nil)
