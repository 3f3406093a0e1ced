// kgqa - Natural-language question answering over an RDF knowledge graph
//
// kgqa turns a question such as "Quels sont les noms des chevaux?" into a
// SPARQL query with a language model, runs the query against a SPARQL 1.1
// endpoint, lays the result rows out as a context and asks a second model to
// phrase the answer. Every run produces an AnswerRecord that can be printed,
// served over HTTP or MCP and persisted.
//
// # Quick Start
//
// Point kgqa at an OpenAI-compatible model server and a triplestore:
//
//	export LOCAL_LLM_ENDPOINT=http://localhost:1234/v1
//	export GRAPHDB_ENDPOINT=http://localhost:7200/repositories/equestrian-kg
//	kgqa -q "Quels sont les noms des chevaux?"
//
// Without -q, kgqa starts an interactive session. kgqa serve exposes the
// pipeline over HTTP, kgqa mcp over the Model Context Protocol.
//
// Embedding the pipeline:
//
//	p, err := pipeline.New(synthesizer, executor, answerer,
//		pipeline.WithDefaultLanguage(synth.French),
//		pipeline.WithLogger(logger),
//	)
//	if err != nil {
//		return err
//	}
//	rec := p.Ask(ctx, pipeline.Question{Text: "Qui monte Dakota?"})
//	fmt.Println(rec.Answer)
//
// # Packages
//
//   - graph: typed state machine with retry policies, tracing hooks and
//     Mermaid export
//   - ontology: ontology descriptor, prefixes, few-shot examples
//   - synth: query prompt construction and generation
//   - parser: extraction of the query from the model reply
//   - correct: prefix and vocabulary corrections
//   - sparql: SPARQL 1.1 protocol client and result model
//   - format: category layouts of result rows
//   - answer: answer prompt and templated fallback
//   - pipeline: the orchestrator and AnswerRecord
//   - llms/chat, llms/local: model backends
//   - store: answer record persistence (memory, file, redis, sqlite, postgres)
//   - render: Markdown and HTML reports
//   - server, adapter/mcp: HTTP and MCP surfaces
//   - config, log, metrics, tracing: ambient support
package kgqa // import "github.com/smallnest/kgqa"
