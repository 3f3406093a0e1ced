// Package parser recovers a SPARQL query from the free-form text returned by
// a language model.
//
// The model is asked for a JSON envelope:
//
//	{"sparql_query": "...", "entities_used": [...], "relations_used": [...], "explanation": "..."}
//
// but it often wraps it in Markdown fences, adds prose, or returns a bare
// query. Parser tries, in order, a JSON strategy, a PREFIX...SELECT pattern,
// a bare SELECT pattern and finally a fixed exploratory query. Only the JSON
// strategy marks the result as Parsed.
package parser
