package dispatch

import (
	"time"

	"github.com/stepflow-dev/stepflow/pkg/domain"
)

// Payload is the document delivered by the external dispatcher to the
// webhook target.
type Payload struct {
	FormID        string            `json:"formId"`
	FormSlug      string            `json:"formSlug"`
	Responses     map[string]string `json:"responses"`
	ExtractedData domain.Contact    `json:"extractedData"`
	RawAnswers    map[string]string `json:"rawAnswers"`
	SubmissionAt  time.Time         `json:"submissionDate"`
	SessionID     string            `json:"sessionId"`
	LeadID        string            `json:"leadId"`
	CompletionPct int               `json:"completionPercentage"`
	UTM           map[string]string `json:"utm,omitempty"`
	Metadata      PayloadMetadata   `json:"metadata"`
}

// PayloadMetadata carries the page context captured at submission time.
type PayloadMetadata struct {
	PageURL   string `json:"pageUrl,omitempty"`
	Referrer  string `json:"referrer,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}

// BuildPayload maps a lead record onto the webhook payload shape.
func BuildPayload(lead *domain.LeadRecord) Payload {
	return Payload{
		FormID:        lead.FormID,
		FormSlug:      lead.FormSlug,
		Responses:     lead.Responses,
		ExtractedData: lead.Contact,
		RawAnswers:    lead.Answers,
		SubmissionAt:  lead.SubmittedAt,
		SessionID:     lead.SessionID,
		LeadID:        lead.ID,
		CompletionPct: lead.CompletionPct,
		UTM:           lead.UTM,
		Metadata: PayloadMetadata{
			PageURL:   lead.PageURL,
			Referrer:  lead.Referrer,
			UserAgent: lead.UserAgent,
		},
	}
}
