// Package browser provides quiz page renderers.
//
// Two modes are available:
//   - chrome: headless Chrome through chromedp, so pages that build their
//     content with JavaScript are seen as a user would see them
//   - http: a plain GET through the retrying HTTP client
//
// NewRenderer wraps either mode so render latency and failures are recorded.
package browser
