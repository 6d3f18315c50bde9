// Package processors turns quiz attachments into text the LLM can reason
// over, and renders charts requested as answers.
//
//   - PDF: plain text of every page
//   - Table: CSV or JSON records summarized with per-column statistics
//   - Chart: bar and line charts encoded as PNG data URIs
package processors
