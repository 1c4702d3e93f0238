package filings

import (
	"fmt"
	"time"
)

// Filing is a single regulatory filing entry.
type Filing struct {
	AccessionNumber string    `json:"accession_number"`
	Form            string    `json:"form"`
	FilingDate      time.Time `json:"filing_date"`
	PrimaryDocument string    `json:"primary_document"`
}

// submissionsResponse mirrors the EDGAR submissions JSON, which stores
// filing fields as parallel arrays.
type submissionsResponse struct {
	CIK     string `json:"cik"`
	Name    string `json:"name"`
	Filings struct {
		Recent struct {
			AccessionNumber []string `json:"accessionNumber"`
			FilingDate      []string `json:"filingDate"`
			Form            []string `json:"form"`
			PrimaryDocument []string `json:"primaryDocument"`
		} `json:"recent"`
	} `json:"filings"`
}

// APIError represents an error response from the filings API.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("filings API error (status %d) on %s: %s", e.StatusCode, e.Endpoint, e.Message)
}

// IsNotFound returns true if the error is a 404.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == 404
}
