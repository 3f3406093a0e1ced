// Package pipeline answers natural-language questions over the knowledge
// graph.
//
// A Pipeline is a compiled graph.StateGraph with one node per stage:
//
//	synthesize -> parse -> correct -> execute -> format -> answer -> END
//
// Every node may route to END when its stage fails. The outcome of a run is an
// AnswerRecord, which is returned for failures too: Ask never returns an error.
// A failed record carries the stage that failed, the error text as
// "<stage>: <cause>", and the generated query when there was one.
//
//	p, err := pipeline.New(synthesizer, sparqlClient, answerer,
//	    pipeline.WithStore(records),
//	    pipeline.WithTracer(graph.NewTracer(metricsHook)),
//	)
//	rec := p.Ask(ctx, pipeline.Question{Text: "Quels sont tous les chevaux ?"})
//
// AskAll runs independent questions with bounded concurrency and returns the
// records in input order. Stores are optional; save failures are logged and
// never change the record.
package pipeline
