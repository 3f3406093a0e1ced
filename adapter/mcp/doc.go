// Package mcp serves the question answering pipeline as a Model Context
// Protocol server.
//
// The server exposes:
//
//   - ask_knowledge_graph: answers a question and returns the answer text
//     plus a structured summary (query, entities, row count, failure stage).
//   - get_answer_record: returns a saved answer record when a record store
//     is configured.
//   - kgqa://ontology: the prefixes and rendered ontology the queries are
//     generated against.
//
// It runs over stdio (RunStdio) or streamable HTTP (HTTPHandler), which the
// HTTP server mounts on /mcp.
package mcp
