// Package local implements the langchaingo llms.Model interface on top of any
// OpenAI-compatible chat completions server, typically a model served on the
// same machine by LM Studio, vLLM or Ollama.
package local
