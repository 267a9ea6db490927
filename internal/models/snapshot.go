package models

// PageSnapshot is what the planner and the extractor see of the page.
// HTML is already simplified and truncated.
type PageSnapshot struct {
	URL        string
	Title      string
	HTML       string
	Screenshot []byte

	// Verification names a detected CAPTCHA or login wall, empty otherwise.
	Verification string
}
