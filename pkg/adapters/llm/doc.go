// Package llm provides LLM client implementations.
//
// The factory creates LLM clients based on provider configuration:
//   - OpenAI chat completions (default)
//   - Anthropic Claude messages
//   - Ollama chat for self-hosted models
//
// Every client returned by NewClient is wrapped so that calls are bounded
// by the configured request timeout and recorded in metrics.
package llm
