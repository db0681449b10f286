package services

import (
	"context"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// PropertyServiceClient reads listings from the upstream property service.
type PropertyServiceClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewPropertyServiceClient builds a client with fixed connect and read timeouts.
func NewPropertyServiceClient(baseURL string) *PropertyServiceClient {
	return &PropertyServiceClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
			},
		},
	}
}

func (c *PropertyServiceClient) Property(ctx context.Context, id string) (*PropertyView, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, businessError(CodeInvalidRequest, "property id cannot be empty")
	}

	target := c.baseURL + "/api/v1/properties/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create property-service request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to property-service at %s: %w", target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read property-service response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s (property-service)", ErrPropertyNotFound, id)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("property-service server error (%d) for property %s: %s", resp.StatusCode, id, truncate(string(body), 300))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("property-service client error (%d) for property %s", resp.StatusCode, id)
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("property-service returned invalid JSON for property %s", id)
	}
	return ParsePropertyJSON(id, body), nil
}

// ParsePropertyJSON normalizes an upstream property document. Numeric fields
// may be absent, JSON numbers or numeric strings.
func ParsePropertyJSON(id string, body []byte) *PropertyView {
	doc := gjson.ParseBytes(body)

	view := &PropertyView{
		ID:              id,
		OwnerUserID:     ownerField(doc.Get("userId")),
		Title:           doc.Get("title").String(),
		DailyPrice:      floatField(doc.Get("dailyPrice")),
		DepositAmount:   floatField(doc.Get("depositAmount")),
		DiscountEnabled: doc.Get("discountEnabled").Bool(),
	}
	if v := doc.Get("id"); v.Exists() && v.String() != "" {
		view.ID = v.String()
	}
	if v, ok := optionalFloat(doc.Get("negotiationPercentage")); ok {
		view.NegotiationPercentage = &v
	}
	if v, ok := optionalFloat(doc.Get("maxNegotiationPercent")); ok {
		pct := int(v)
		view.MaxNegotiationPercent = &pct
		view.IsNegotiable = v > 0
	} else {
		view.IsNegotiable = doc.Get("isNegotiable").Bool()
	}
	return view
}

func ownerField(v gjson.Result) *string {
	if !v.Exists() || v.Type == gjson.Null {
		return nil
	}
	owner := strings.TrimSpace(v.String())
	return &owner
}

func floatField(v gjson.Result) float64 {
	f, _ := optionalFloat(v)
	return f
}

// optionalFloat accepts a finite JSON number or numeric string.
func optionalFloat(v gjson.Result) (float64, bool) {
	var f float64
	switch v.Type {
	case gjson.Number:
		f = v.Num
	case gjson.String:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
