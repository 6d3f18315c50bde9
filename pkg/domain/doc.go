// Package domain holds the data model shared by the quiz solver components:
// jobs and their attempts, parsed quiz pages, events and LLM requests.
package domain
