package notion

import (
	"context"
	"fmt"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// Incident log database properties.
const (
	PropName       = "Name"
	PropSource     = "Source"
	PropCode       = "Code"
	PropSeverity   = "Severity"
	PropStatus     = "Status"
	PropFirstSeen  = "First Seen"
	PropLastSeen   = "Last Seen"
	PropOccurrence = "Occurrences"
	PropSummary    = "Summary"

	StatusOpen     = "Open"
	StatusResolved = "Resolved"
)

// Incident is one alert written to the incident log.
type Incident struct {
	SourceKey   string
	Code        string
	Severity    string
	Summary     string
	GeneratedAt time.Time
}

// IncidentLog records incidents in a Notion database. An open row for the
// same source and code is updated in place instead of duplicated.
type IncidentLog struct {
	client Client
	dbID   string
}

// NewIncidentLog creates an IncidentLog writing to database dbID.
func NewIncidentLog(c Client, dbID string) *IncidentLog {
	return &IncidentLog{client: c, dbID: dbID}
}

// RecordIncident creates or refreshes the open row for inc.
func (l *IncidentLog) RecordIncident(ctx context.Context, inc Incident) error {
	pages, err := QueryAll(ctx, l.client, l.dbID, &notionapi.DatabaseQueryRequest{
		Filter: openIncidentFilter(inc.SourceKey, inc.Code),
	})
	if err != nil {
		return eris.Wrapf(err, "notion: find open incident %s/%s", inc.SourceKey, inc.Code)
	}

	seen := notionapi.Date(inc.GeneratedAt.UTC())
	if len(pages) > 0 {
		page := pages[0]
		count := occurrences(page) + 1
		_, err := l.client.UpdatePage(ctx, string(page.ID), &notionapi.PageUpdateRequest{
			Properties: notionapi.Properties{
				PropSeverity:   notionapi.SelectProperty{Select: notionapi.Option{Name: inc.Severity}},
				PropLastSeen:   notionapi.DateProperty{Date: &notionapi.DateObject{Start: &seen}},
				PropOccurrence: notionapi.NumberProperty{Number: float64(count)},
				PropSummary:    richText(inc.Summary),
			},
		})
		if err != nil {
			return eris.Wrapf(err, "notion: refresh incident %s", page.ID)
		}
		return nil
	}

	_, err = l.client.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(l.dbID),
		},
		Properties: notionapi.Properties{
			PropName: notionapi.TitleProperty{
				Type: notionapi.PropertyTypeTitle,
				Title: []notionapi.RichText{
					{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: fmt.Sprintf("%s: %s", inc.SourceKey, inc.Code)}},
				},
			},
			PropSource:     richText(inc.SourceKey),
			PropCode:       notionapi.SelectProperty{Select: notionapi.Option{Name: inc.Code}},
			PropSeverity:   notionapi.SelectProperty{Select: notionapi.Option{Name: inc.Severity}},
			PropStatus:     notionapi.StatusProperty{Status: notionapi.Status{Name: StatusOpen}},
			PropFirstSeen:  notionapi.DateProperty{Date: &notionapi.DateObject{Start: &seen}},
			PropLastSeen:   notionapi.DateProperty{Date: &notionapi.DateObject{Start: &seen}},
			PropOccurrence: notionapi.NumberProperty{Number: 1},
			PropSummary:    richText(inc.Summary),
		},
	})
	if err != nil {
		return eris.Wrapf(err, "notion: create incident %s/%s", inc.SourceKey, inc.Code)
	}
	return nil
}

func openIncidentFilter(sourceKey, code string) notionapi.Filter {
	return notionapi.AndCompoundFilter{
		notionapi.PropertyFilter{
			Property: PropSource,
			RichText: &notionapi.TextFilterCondition{Equals: sourceKey},
		},
		notionapi.PropertyFilter{
			Property: PropCode,
			Select:   &notionapi.SelectFilterCondition{Equals: code},
		},
		notionapi.PropertyFilter{
			Property: PropStatus,
			Status:   &notionapi.StatusFilterCondition{DoesNotEqual: StatusResolved},
		},
	}
}

func richText(s string) notionapi.RichTextProperty {
	if len(s) > 1900 {
		s = s[:1900]
	}
	return notionapi.RichTextProperty{
		Type: notionapi.PropertyTypeRichText,
		RichText: []notionapi.RichText{
			{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}},
		},
	}
}

func occurrences(p notionapi.Page) int {
	switch np := p.Properties[PropOccurrence].(type) {
	case *notionapi.NumberProperty:
		return int(np.Number)
	case notionapi.NumberProperty:
		return int(np.Number)
	}
	return 0
}
