// Package synth turns a natural-language question into a SPARQL query
// request for the language model.
//
// The prompt combines the ontology description, the worked examples rendered
// as question and expected JSON pairs, the output format rules and the
// question. The model is called exactly once per question; when the call
// fails no query is invented and a *SynthesisError is returned.
package synth
