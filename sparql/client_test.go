package sparql

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/kgqa/graph"
	"github.com/smallnest/kgqa/log"
)

const riderResults = `{
  "head": {"vars": ["rider", "name"]},
  "results": {"bindings": [
    {"rider": {"type": "uri", "value": "http://example.org/h#Rider_Emma"}, "name": {"type": "literal", "value": "Emma", "xml:lang": "fr"}},
    {"rider": {"type": "uri", "value": "http://example.org/h#Rider_Manon"}, "name": {"type": "literal", "value": "3", "datatype": "http://www.w3.org/2001/XMLSchema#integer"}},
    {"rider": {"type": "bnode", "value": "b0"}}
  ]}
}`

func fastRetry() *graph.RetryConfig {
	return &graph.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffFactor: 2}
}

func newTestClient(t *testing.T, url string, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithRetry(fastRetry()), WithLogger(&log.NoOpLogger{})}, opts...)
	c, err := New(url, opts...)
	require.NoError(t, err)
	return c
}

func TestQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, ContentTypeResults, r.Header.Get("Accept"))
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "SELECT ?rider ?name WHERE { ?rider ?p ?name }", r.PostForm.Get("query"))

		w.Header().Set("Content-Type", ContentTypeResults)
		_, _ = w.Write([]byte(riderResults))
	}))
	defer server.Close()

	res, err := newTestClient(t, server.URL).Query(context.Background(), "SELECT ?rider ?name WHERE { ?rider ?p ?name }")
	require.NoError(t, err)

	assert.Equal(t, []string{"rider", "name"}, res.Vars())
	require.Equal(t, 3, res.Len())

	rows := res.Bindings()
	assert.Equal(t, URI, rows[0]["rider"].Type)
	assert.True(t, rows[0]["rider"].IsURI())
	assert.Equal(t, Literal, rows[0]["name"].Type)
	assert.Equal(t, "fr", rows[0]["name"].Lang)
	assert.Equal(t, Literal, rows[1]["name"].Type)
	assert.Equal(t, TypedLiteral, rows[1]["name"].Kind())
	assert.Equal(t, Literal, rows[0]["name"].Kind())
	assert.Equal(t, "3", rows[1]["name"].String())
	assert.Equal(t, BlankNode, rows[2]["rider"].Type)
	_, bound := rows[2]["name"]
	assert.False(t, bound)
}

func TestResultsKeepWireTypes(t *testing.T) {
	in := `{"head":{"vars":["n","t"]},"results":{"bindings":[{"n":{"type":"literal","value":"5","datatype":"http://www.w3.org/2001/XMLSchema#integer"},"t":{"type":"typed-literal","value":"2","datatype":"http://www.w3.org/2001/XMLSchema#integer"}}]}}`

	var res Results
	require.NoError(t, json.Unmarshal([]byte(in), &res))
	row := res.Bindings()[0]
	assert.Equal(t, Literal, row["n"].Type)
	assert.Equal(t, TypedLiteral, row["n"].Kind())
	assert.Equal(t, TypedLiteral, row["t"].Type)
	assert.Equal(t, TypedLiteral, row["t"].Kind())

	out, err := json.Marshal(&res)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
}

func TestQueryEmptyResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"head": {"vars": ["x"]}, "results": {"bindings": []}}`))
	}))
	defer server.Close()

	res, err := newTestClient(t, server.URL).Query(context.Background(), "SELECT ?x WHERE { ?x ?p ?o }")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Len())
	assert.NotNil(t, res.Bindings())
}

func TestQueryRejectedIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`<html><head><title>Error</title><style>p{color:red}</style></head>
<body><h1>MALFORMED QUERY</h1><p>Lexical error at line 1, column 8.</p></body></html>`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).Query(context.Background(), "SELEC ?x")
	require.Error(t, err)

	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, KindQueryRejected, ee.Kind)
	assert.Equal(t, http.StatusBadRequest, ee.Status)
	assert.Equal(t, "MALFORMED QUERY Lexical error at line 1, column 8.", ee.Message)
	assert.Equal(t, "SELEC ?x", ee.Query)
	assert.Equal(t, 1, ee.Attempts)
	assert.True(t, IsRejected(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestQueryRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "repository busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"head": {"vars": []}, "results": {"bindings": []}}`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).Query(context.Background(), "SELECT * WHERE { ?s ?p ?o }")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestQueryTransportFailureAfterRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).Query(context.Background(), "SELECT * WHERE { ?s ?p ?o }")

	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, KindTransport, ee.Kind)
	assert.Equal(t, http.StatusInternalServerError, ee.Status)
	assert.Equal(t, "internal error", ee.Message)
	assert.Equal(t, 3, ee.Attempts)
	assert.Equal(t, int32(3), calls.Load())
	assert.False(t, IsRejected(err))
}

func TestQueryUnreachableEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestClient(t, url).Query(context.Background(), "SELECT * WHERE { ?s ?p ?o }")

	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, KindTransport, ee.Kind)
	assert.Equal(t, 3, ee.Attempts)
	assert.NotNil(t, errors.Unwrap(ee))
}

func TestQueryDecodeErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`not json`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).Query(context.Background(), "SELECT * WHERE { ?s ?p ?o }")

	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, KindTransport, ee.Kind)
	assert.Contains(t, ee.Error(), "failed to decode response")
	assert.Equal(t, int32(1), calls.Load())
}

func TestQueryTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, WithTimeout(20*time.Millisecond), WithRetry(&graph.RetryConfig{MaxAttempts: 1}))
	_, err := c.Query(context.Background(), "SELECT * WHERE { ?s ?p ?o }")

	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, KindTransport, ee.Kind)
}

func TestQueryContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(t, server.URL).Query(ctx, "SELECT * WHERE { ?s ?p ?o }")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQueryOptions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "admin", user)
		assert.Equal(t, "secret", pass)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, []string{"urn:g1", "urn:g2"}, r.PostForm["default-graph-uri"])
		_, _ = w.Write([]byte(`{"head": {"vars": []}, "results": {"bindings": []}}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, WithBasicAuth("admin", "secret"), WithDefaultGraphs("urn:g1", "urn:g2"))
	_, err := c.Query(context.Background(), "SELECT * WHERE { ?s ?p ?o }")
	require.NoError(t, err)
}

func TestPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, PingQuery, r.PostForm.Get("query"))
		_, _ = w.Write([]byte(`{"head": {}, "boolean": true}`))
	}))
	defer server.Close()

	assert.NoError(t, newTestClient(t, server.URL).Ping(context.Background()))
}

func TestNewRejectsBadEndpoint(t *testing.T) {
	for _, ep := range []string{"", "localhost:7200", "ftp://host/repo", "http://"} {
		_, err := New(ep)
		assert.ErrorIs(t, err, ErrInvalidEndpoint, ep)
	}
}

func TestQueryEmpty(t *testing.T) {
	c := newTestClient(t, "http://localhost:7200/repositories/x")
	_, err := c.Query(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestResultsVarsFallback(t *testing.T) {
	var res Results
	require.NoError(t, json.Unmarshal([]byte(`{"head": {"vars": []}, "results": {"bindings": [{"b": {"type": "literal", "value": "1"}, "a": {"type": "literal", "value": "2"}}]}}`), &res))
	assert.Equal(t, []string{"a", "b"}, res.Vars())

	var nilRes *Results
	assert.Equal(t, 0, nilRes.Len())
	assert.Nil(t, nilRes.Bindings())
}

func TestErrorKindString(t *testing.T) {
	assert.Equal(t, "transport", KindTransport.String())
	assert.Equal(t, "query_rejected", KindQueryRejected.String())
}
