package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrMalformed marks an authentic refund payload that cannot be reconciled.
var ErrMalformed = errors.New("malformed refund payload")

// Action tells the reconciler whether an unknown refund may be created from the event.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
)

// Shape identifies which known payload layout an event was read from.
type Shape int

const (
	// ShapeEnveloped nests the refund object under "data".
	ShapeEnveloped Shape = iota + 1
	// ShapeFlat carries the refund fields at the top level.
	ShapeFlat
	// ShapeResource is a refund object returned by the gateway API.
	ShapeResource
)

// Event is the canonical refund record produced from any supported payload shape.
type Event struct {
	Shape  Shape
	Type   string
	Action Action

	RefundID string
	ChargeID string

	Amount   *decimal.Decimal
	Currency string

	// Status is the lower-cased raw gateway status.
	Status      string
	Reason      string
	Description string
	Reference   string
	Metadata    map[string]string

	RawPayload []byte
	ObservedAt time.Time
}

type Normalizer struct {
	now func() time.Time
}

func NewNormalizer() *Normalizer {
	return &Normalizer{now: func() time.Time { return time.Now().UTC() }}
}

// Normalize reads a webhook body. A nil event with a nil error means the payload
// is not a refund event and must be ignored.
func (n *Normalizer) Normalize(payload []byte) (*Event, error) {
	doc, err := decodeDocument(payload)
	if err != nil {
		return nil, err
	}

	eventType := strings.ToLower(firstString(doc, "event_type", "event"))
	body, shape := refundBody(doc)
	object := strings.ToLower(firstString(body, "object"))
	if object == "" {
		object = strings.ToLower(firstString(doc, "object"))
	}
	if !isRefundPayload(eventType, object) {
		return nil, nil
	}

	event, err := n.normalizeBody(body, shape, payload, true)
	if err != nil {
		return nil, err
	}
	event.Type = eventType
	event.Action = actionFor(eventType, event.Status)
	if event.Status == "" {
		event.Status = statusForEventType(eventType)
	}
	if eventType == "refund.failed" && event.Reason == "" {
		event.Reason = firstString(body, "failure_reason")
	}

	return event, nil
}

// NormalizeResource reads a refund object fetched from the gateway API.
// API amounts are already in major units.
func (n *Normalizer) NormalizeResource(payload []byte) (*Event, error) {
	doc, err := decodeDocument(payload)
	if err != nil {
		return nil, err
	}
	object := strings.ToLower(firstString(doc, "object"))
	if object != "" && object != "refund" {
		return nil, nil
	}

	event, err := n.normalizeBody(doc, ShapeResource, payload, false)
	if err != nil {
		return nil, err
	}
	event.Action = ActionCreate
	return event, nil
}

func (n *Normalizer) normalizeBody(body map[string]interface{}, shape Shape, raw []byte, minorUnits bool) (*Event, error) {
	refundID := firstString(body, "id", "refund_id")
	if refundID == "" {
		return nil, fmt.Errorf("%w: refund id is missing", ErrMalformed)
	}

	currency := strings.ToUpper(firstString(body, "currency"))
	amount, err := parseAmount(body["amount"], currency, minorUnits)
	if err != nil {
		return nil, err
	}

	event := &Event{
		Shape:       shape,
		RefundID:    refundID,
		ChargeID:    chargeID(body),
		Amount:      amount,
		Currency:    currency,
		Status:      strings.ToLower(firstString(body, "status")),
		Reason:      firstString(body, "reason"),
		Description: firstString(body, "description"),
		Reference:   merchantReference(body["reference"]),
		Metadata:    stringMap(body["metadata"]),
		RawPayload:  raw,
		ObservedAt:  n.observedAt(body["created"]),
	}
	return event, nil
}

func (n *Normalizer) observedAt(raw interface{}) time.Time {
	number, ok := raw.(json.Number)
	if !ok {
		return n.now()
	}
	ts, err := number.Int64()
	if err != nil || ts <= 0 {
		return n.now()
	}
	if ts > 1e12 {
		return time.UnixMilli(ts).UTC()
	}
	return time.Unix(ts, 0).UTC()
}

func decodeDocument(payload []byte) (map[string]interface{}, error) {
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()

	var doc map[string]interface{}
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: payload is not an object", ErrMalformed)
	}
	return doc, nil
}

func refundBody(doc map[string]interface{}) (map[string]interface{}, Shape) {
	if data, ok := doc["data"].(map[string]interface{}); ok {
		if object, ok := data["object"].(map[string]interface{}); ok {
			return object, ShapeEnveloped
		}
		return data, ShapeEnveloped
	}
	return doc, ShapeFlat
}

// A bare object without event type or object marker is accepted because the
// endpoint only receives refund notifications for it.
func isRefundPayload(eventType, object string) bool {
	if object != "" {
		return object == "refund"
	}
	if eventType != "" {
		return strings.HasPrefix(eventType, "refund.")
	}
	return true
}

func actionFor(eventType, status string) Action {
	switch eventType {
	case "refund.created":
		return ActionCreate
	case "":
		if isTerminalStatus(status) {
			return ActionUpdate
		}
		return ActionCreate
	default:
		return ActionUpdate
	}
}

func isTerminalStatus(status string) bool {
	switch status {
	case "refunded", "succeeded", "declined", "failed", "restricted", "rejected":
		return true
	default:
		return false
	}
}

func statusForEventType(eventType string) string {
	switch eventType {
	case "refund.succeeded":
		return "refunded"
	case "refund.failed":
		return "failed"
	case "refund.created":
		return "pending"
	default:
		return ""
	}
}

func chargeID(body map[string]interface{}) string {
	switch charge := body["charge"].(type) {
	case map[string]interface{}:
		if id := firstString(charge, "id"); id != "" {
			return id
		}
	case string:
		if id := strings.TrimSpace(charge); id != "" {
			return id
		}
	}
	return firstString(body, "charge_id")
}

func merchantReference(raw interface{}) string {
	switch ref := raw.(type) {
	case map[string]interface{}:
		return firstString(ref, "merchant")
	case string:
		return strings.TrimSpace(ref)
	default:
		return ""
	}
}

func parseAmount(raw interface{}, currency string, minorUnits bool) (*decimal.Decimal, error) {
	var literal string
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case json.Number:
		literal = v.String()
	case string:
		literal = strings.TrimSpace(v)
		if literal == "" {
			return nil, nil
		}
	default:
		return nil, fmt.Errorf("%w: amount has unexpected type %T", ErrMalformed, raw)
	}

	amount, err := decimal.NewFromString(literal)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid amount %q", ErrMalformed, literal)
	}
	if minorUnits && isIntegerLiteral(literal) {
		amount = amount.Shift(-MinorUnitExponent(currency))
	}
	return &amount, nil
}

func isIntegerLiteral(literal string) bool {
	literal = strings.TrimPrefix(literal, "-")
	if literal == "" {
		return false
	}
	for _, r := range literal {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// MinorUnitExponent returns the number of decimal places of currency's minor unit.
func MinorUnitExponent(currency string) int32 {
	switch strings.ToUpper(currency) {
	case "BHD", "IQD", "JOD", "KWD", "LYD", "OMR", "TND":
		return 3
	case "BIF", "CLP", "DJF", "GNF", "ISK", "JPY", "KMF", "KRW", "PYG", "RWF", "UGX", "VND", "VUV", "XAF", "XOF", "XPF":
		return 0
	default:
		return 2
	}
}

func firstString(doc map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		switch v := doc[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}

func stringMap(raw interface{}) map[string]string {
	src, ok := raw.(map[string]interface{})
	if !ok || len(src) == 0 {
		return map[string]string{}
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		switch t := v.(type) {
		case string:
			dst[k] = t
		case json.Number:
			dst[k] = t.String()
		case bool:
			dst[k] = strconv.FormatBool(t)
		case nil:
			dst[k] = ""
		default:
			encoded, err := json.Marshal(t)
			if err == nil {
				dst[k] = string(encoded)
			}
		}
	}
	return dst
}
