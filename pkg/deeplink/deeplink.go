// Package deeplink implements the deep link attribution pipeline: URL
// parsing, campaign-key extraction and the pending-auth state machine.
package deeplink

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/paylisher/paylisher-go/pkg/campaign"
)

// ErrEmptyDestination means the URL carried no routable destination.
var ErrEmptyDestination = errors.New("deeplink: empty destination")

// DeepLink is the immutable record of one parsed URL. Campaign is the only
// field filled in after construction, by the resolver continuation.
type DeepLink struct {
	// URL is the original URL.
	URL *url.URL

	// Scheme, e.g. "myapp" or "https".
	Scheme string

	// Destination is the in-app routing target: the path for universal
	// links, the host for custom schemes. Never empty.
	Destination string

	// Parameters holds the query parameters, last value winning on
	// duplicates.
	Parameters map[string]string

	// AuthParamRequired is set when the URL itself carried auth=required.
	AuthParamRequired bool

	// CampaignID from campaign / campaign_id / utm_campaign.
	CampaignID string

	// Source from source / utm_source.
	Source string

	// JID is the journey id from the jid parameter.
	JID string

	// Timestamp is when the link was received.
	Timestamp time.Time

	// RawQuery is the unparsed query string.
	RawQuery string

	// CampaignKey is the extracted key used for backend resolution.
	CampaignKey string

	// Campaign is the resolved campaign record, attached asynchronously
	// after construction.
	Campaign *campaign.Payload
}

func (d *DeepLink) String() string {
	return fmt.Sprintf("DeepLink(destination: %s, scheme: %s, params: %v)",
		d.Destination, d.Scheme, d.Parameters)
}

// Parse turns a raw URL into a DeepLink. http/https URLs route on their
// path (universal link), custom schemes route on their host. URLs without
// a destination fail.
func Parse(rawURL string) (*DeepLink, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("deeplink: parse url: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)

	var destination string
	if scheme == "http" || scheme == "https" {
		destination = strings.Trim(u.Path, "/")
	} else {
		destination = u.Host
	}
	if destination == "" {
		return nil, ErrEmptyDestination
	}

	params := parseQuery(u.RawQuery)

	campaignID := firstOf(params, "campaign", "campaign_id", "utm_campaign")
	source := firstOf(params, "source", "utm_source")

	return &DeepLink{
		URL:               u,
		Scheme:            scheme,
		Destination:       destination,
		Parameters:        params,
		AuthParamRequired: strings.EqualFold(params["auth"], "required"),
		CampaignID:        campaignID,
		Source:            source,
		JID:               params["jid"],
		Timestamp:         time.Now(),
		RawQuery:          u.RawQuery,
		CampaignKey:       ExtractCampaignKey(u),
	}, nil
}

// parseQuery flattens a query string into a string map. Last value wins on
// duplicate keys; a present key with no value maps to "".
func parseQuery(rawQuery string) map[string]string {
	params := map[string]string{}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return params
	}
	for k, vs := range values {
		if len(vs) > 0 {
			params[k] = vs[len(vs)-1]
		} else {
			params[k] = ""
		}
	}
	return params
}

func firstOf(params map[string]string, keys ...string) string {
	for _, k := range keys {
		if v, ok := params[k]; ok && v != "" {
			return v
		}
	}
	return ""
}

// minBareKeyLen is the shortest single path segment treated as a bare
// campaign key.
const minBareKeyLen = 10

// ExtractCampaignKey pulls the backend resolution key out of a URL.
// Checked in order, first match wins: the keyName/key/k query parameters; a
// path segment following "campaign" or "c"; a lone path segment of at
// least 10 characters (bare key form, e.g. paylisher://X7kdi5Yq9lTVOv46uHYtV).
func ExtractCampaignKey(u *url.URL) string {
	params := parseQuery(u.RawQuery)
	for _, k := range []string{"keyName", "key", "k"} {
		if v := params[k]; v != "" {
			return v
		}
	}

	segments := pathSegments(u)

	for _, marker := range []string{"campaign", "c"} {
		for i, seg := range segments {
			if seg == marker && i+1 < len(segments) && segments[i+1] != "" {
				return segments[i+1]
			}
		}
	}

	if len(segments) == 1 && len(segments[0]) >= minBareKeyLen {
		return segments[0]
	}

	return ""
}

// pathSegments splits the path into its non-empty segments. For custom
// schemes with an empty path the host is the single segment, so the bare
// key form works for scheme://KEY URLs too.
func pathSegments(u *url.URL) []string {
	var segments []string
	for _, seg := range strings.Split(strings.Trim(u.Path, "/"), "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	scheme := strings.ToLower(u.Scheme)
	if len(segments) == 0 && scheme != "http" && scheme != "https" && u.Host != "" {
		segments = []string{u.Host}
	}
	return segments
}
