// Package campaign resolves campaign keys against the backend and models
// the campaign records it returns.
package campaign

import "github.com/paylisher/paylisher-go/pkg/event"

// OID is the Mongo extended-JSON object-id wrapper the backend emits.
type OID struct {
	OID string `json:"$oid"`
}

// Date is the Mongo extended-JSON date wrapper.
type Date struct {
	Date string `json:"$date"`
}

// Payload is the backend-owned campaign record resolved from a campaign
// key: identifiers, title, per-platform destination URLs and free-form
// metadata.
type Payload struct {
	ID          *OID           `json:"_id,omitempty"`
	TeamID      string         `json:"teamId,omitempty"`
	ProjectID   string         `json:"projectId,omitempty"`
	SourceID    string         `json:"sourceId,omitempty"`
	Type        string         `json:"type,omitempty"`
	Title       string         `json:"title,omitempty"`
	KeyName     string         `json:"keyName,omitempty"`
	WebURL      string         `json:"webUrl,omitempty"`
	IOSURL      string         `json:"iosUrl,omitempty"`
	AndroidURL  string         `json:"androidUrl,omitempty"`
	FallbackURL string         `json:"fallbackUrl,omitempty"`
	Scheme      string         `json:"scheme,omitempty"`
	WebhookURL  string         `json:"webhookUrl,omitempty"`
	CreatedAt   *Date          `json:"createdAt,omitempty"`
	UpdatedAt   *Date          `json:"updatedAt,omitempty"`
	Version     int            `json:"__v,omitempty"`
	AdID        *OID           `json:"adId,omitempty"`
	Metadata    map[string]any `json:"metaData,omitempty"`
	JID         string         `json:"jid,omitempty"`
}

// Properties flattens the payload into an event property map. Metadata
// keys are additionally lifted to the root with a "meta_" prefix so the
// backend can filter on them directly.
func (p *Payload) Properties() event.Properties {
	props := event.Properties{
		"teamId":      p.TeamID,
		"projectId":   p.ProjectID,
		"sourceId":    p.SourceID,
		"type":        p.Type,
		"title":       p.Title,
		"keyName":     p.KeyName,
		"webUrl":      p.WebURL,
		"iosUrl":      p.IOSURL,
		"androidUrl":  p.AndroidURL,
		"fallbackUrl": p.FallbackURL,
		"scheme":      p.Scheme,
		"webhookUrl":  p.WebhookURL,
		"__v":         p.Version,
	}

	if p.ID != nil {
		props["_id"] = p.ID.OID
	} else {
		props["_id"] = ""
	}
	if p.AdID != nil {
		props["adId"] = p.AdID.OID
	} else {
		props["adId"] = ""
	}
	if p.CreatedAt != nil {
		props["createdAt"] = p.CreatedAt.Date
	} else {
		props["createdAt"] = ""
	}
	if p.UpdatedAt != nil {
		props["updatedAt"] = p.UpdatedAt.Date
	} else {
		props["updatedAt"] = ""
	}

	if p.JID != "" {
		props["jid"] = p.JID
	}

	if p.Metadata != nil {
		props["metaData"] = p.Metadata
		for k, v := range p.Metadata {
			props["meta_"+k] = v
		}
	} else {
		props["metaData"] = map[string]any{}
	}

	return props
}
