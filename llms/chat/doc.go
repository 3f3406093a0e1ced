// Package chat is the boundary between the question answering pipeline and
// the language model. A Client wraps any langchaingo llms.Model and sends
// single-turn prompts under a Profile (model, temperature, token budget and
// system prompt), with a timeout per attempt and retries on failure.
//
// Two profiles are used: QueryProfile for query generation and AnswerProfile
// for phrasing the final answer. NewModel builds the model for the configured
// backend, either a local OpenAI-compatible server or OpenAI itself.
package chat
