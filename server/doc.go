// Package server exposes the question answering pipeline over HTTP.
//
// Routes:
//
//	POST   /v1/ask            {"question", "language", "category", "format"}
//	GET    /v1/ask?q=&lang=&category=&format=
//	GET    /v1/records?limit=&success=
//	GET    /v1/records/{id}
//	DELETE /v1/records/{id}
//	GET    /healthz
//	GET    /metrics
//	*      /mcp               when an MCP handler is mounted
//
// Answers are JSON answer records unless format is html or markdown, or the
// client accepts text/html.
package server
