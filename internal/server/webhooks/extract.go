// Package webhooks reads platform webhook payloads. Payload shapes differ
// between event versions, so each logical field is looked up through an
// ordered list of candidate paths and the first non-empty match wins.
package webhooks

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

var ErrInvalidPayload = errors.New("invalid webhook payload")

// Extractor pulls one value out of a payload, or "" when absent.
type Extractor func(doc gjson.Result) string

// Path extracts the value at a gjson path as a trimmed string.
func Path(p string) Extractor {
	return func(doc gjson.Result) string {
		v := doc.Get(p)
		if !v.Exists() || v.Type == gjson.Null || v.IsObject() || v.IsArray() {
			return ""
		}
		return strings.TrimSpace(v.String())
	}
}

// Field is an ordered list of candidate extractors.
type Field []Extractor

// From returns the first non-empty candidate value.
func (f Field) From(doc gjson.Result) string {
	for _, ex := range f {
		if v := ex(doc); v != "" {
			return v
		}
	}
	return ""
}

var (
	EventType = Field{
		Path("type"),
		Path("event.type"),
		Path("data.type"),
		Path("event"),
	}
	AccountID = Field{
		Path("data.account_id"),
		Path("data.account.id"),
		Path("event.account_id"),
		Path("account_id"),
		Path("accountId"),
		Path("data.accountId"),
	}
	PlanID = Field{
		Path("data.subscription.plan_id"),
		Path("data.subscription.planId"),
		Path("data.plan_id"),
		Path("subscription.plan_id"),
		Path("plan_id"),
		Path("planId"),
	}
)

// Event is the part of a billing webhook the backend acts on.
type Event struct {
	Type      string
	AccountID string
	PlanID    string
}

// Parse extracts the billing event from a raw payload.
func Parse(body []byte) (*Event, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrInvalidPayload
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return nil, ErrInvalidPayload
	}
	return &Event{
		Type:      strings.ToLower(EventType.From(doc)),
		AccountID: AccountID.From(doc),
		PlanID:    PlanID.From(doc),
	}, nil
}
