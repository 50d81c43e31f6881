// internal/errors/errors.go
package appErrors

import "fmt"

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID string
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign %s not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id string) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ErrRecipientNotFound is returned when a delivery job references a
// recipient row that no longer exists.
type ErrRecipientNotFound struct {
	RecipientID string
}

func (e *ErrRecipientNotFound) Error() string {
	return fmt.Sprintf("recipient %s not found", e.RecipientID)
}

func NewRecipientNotFound(id string) error {
	return &ErrRecipientNotFound{RecipientID: id}
}

// ErrUnsupportedFileFormat marks a campaign file the ingestor cannot parse.
// It is fatal for the campaign, not retryable.
type ErrUnsupportedFileFormat struct {
	FileURL string
}

func (e *ErrUnsupportedFileFormat) Error() string {
	return fmt.Sprintf("unsupported file format: %s", e.FileURL)
}

func NewUnsupportedFileFormat(fileURL string) error {
	return &ErrUnsupportedFileFormat{FileURL: fileURL}
}
