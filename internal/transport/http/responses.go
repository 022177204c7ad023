package httptransport

import (
	"time"

	"custodia/internal/index"
	"custodia/internal/ledger"
)

type evidenceJSON struct {
	EvidenceID   int64  `json:"evidenceId"`
	ContentID    string `json:"contentId"`
	OriginalName string `json:"originalName"`
	MimeType     string `json:"mimeType"`
	DisplayName  string `json:"displayName"`
	Description  string `json:"description"`
	Owner        string `json:"owner"`
	RegisteredAt string `json:"registeredAt"`
}

type projectionJSON struct {
	evidenceJSON
	Version int      `json:"version"`
	CaseIDs []string `json:"caseIds"`
}

type caseJSON struct {
	CaseID      string  `json:"caseId"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Owner       string  `json:"owner"`
	EvidenceIDs []int64 `json:"evidenceIds"`
	CreatedAt   string  `json:"createdAt"`
}

type eventJSON struct {
	EvidenceID int64  `json:"evidenceId"`
	Kind       string `json:"kind"`
	Principal  string `json:"principal,omitempty"`
	At         string `json:"at"`
}

func toEvidenceJSON(record ledger.Record) evidenceJSON {
	return evidenceJSON{
		EvidenceID:   record.EvidenceID,
		ContentID:    record.ContentID,
		OriginalName: record.OriginalName,
		MimeType:     record.MimeType,
		DisplayName:  record.DisplayName,
		Description:  record.Description,
		Owner:        record.Owner,
		RegisteredAt: record.RegisteredAt.UTC().Format(time.RFC3339),
	}
}

func toEvidenceListJSON(records []ledger.Record) []evidenceJSON {
	out := make([]evidenceJSON, 0, len(records))
	for _, record := range records {
		out = append(out, toEvidenceJSON(record))
	}
	return out
}

func toProjectionJSON(projection index.EvidenceProjection) projectionJSON {
	caseIDs := projection.CaseIDs
	if caseIDs == nil {
		caseIDs = []string{}
	}
	return projectionJSON{
		evidenceJSON: evidenceJSON{
			EvidenceID:   projection.EvidenceID,
			ContentID:    projection.ContentID,
			OriginalName: projection.OriginalName,
			MimeType:     projection.MimeType,
			DisplayName:  projection.DisplayName,
			Description:  projection.Description,
			Owner:        projection.Owner,
			RegisteredAt: projection.RegisteredAt.UTC().Format(time.RFC3339),
		},
		Version: projection.Version,
		CaseIDs: caseIDs,
	}
}

func toCaseJSON(c index.Case) caseJSON {
	evidenceIDs := c.EvidenceIDs
	if evidenceIDs == nil {
		evidenceIDs = []int64{}
	}
	return caseJSON{
		CaseID:      c.CaseID,
		Title:       c.Title,
		Description: c.Description,
		Owner:       c.Owner,
		EvidenceIDs: evidenceIDs,
		CreatedAt:   c.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toEventListJSON(events []ledger.Event) []eventJSON {
	out := make([]eventJSON, 0, len(events))
	for _, event := range events {
		out = append(out, eventJSON{
			EvidenceID: event.EvidenceID,
			Kind:       string(event.Kind),
			Principal:  event.Principal,
			At:         event.At.UTC().Format(time.RFC3339),
		})
	}
	return out
}
