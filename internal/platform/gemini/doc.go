// Package gemini implements the license curator's LicenseAdvisor on Google's
// Gemini API.
//
// The advisor renders a prompt for one component and its evidence, asks the
// model for a JSON answer and decodes it into a workers.LicenseSuggestion.
// Transient API errors are retried with exponential backoff; malformed or
// blocked answers fail immediately.
package gemini
