package classify

import (
	"context"
	"fmt"

	"github.com/mkessler-dev/ledgermatch/internal/sources"
)

// ItemDecision is the classified category for one record line item. Price
// is carried over from the line item itself, never taken from the model.
type ItemDecision struct {
	ItemName   string  `json:"item_name"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Price      float64 `json:"price"`
}

// RecordClassification is the full result for one external record. It is
// what the record-level cache stores.
type RecordClassification struct {
	Items      []ItemDecision `json:"items"`
	NeedsSplit bool           `json:"needsSplit"`
}

// MerchantGroup is one merchant's worth of regular-bucket transactions.
type MerchantGroup struct {
	Name    string
	Count   int
	Samples []string
}

// MerchantDecision is the classified category for one merchant group.
type MerchantDecision struct {
	Merchant   string  `json:"merchant"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Ambiguous  bool    `json:"ambiguous"`
}

// Classifier wires the retry-hardened client to the two prompt flows.
type Classifier struct {
	client *Client
}

// NewClassifier creates a classifier on top of an existing client.
func NewClassifier(client *Client) *Classifier {
	return &Classifier{client: client}
}

// ClassifyRecord assigns a category to every line item of one record.
// NeedsSplit is derived, not asked of the model: a record whose items
// resolve to more than one category needs split treatment downstream.
func (c *Classifier) ClassifyRecord(ctx context.Context, rec sources.ExternalRecord, categories []sources.Category) (RecordClassification, error) {
	if len(rec.LineItems) == 0 {
		return RecordClassification{Items: []ItemDecision{}}, nil
	}

	resp := &recordResponse{
		expected: len(rec.LineItems),
		allowed:  categoryNames(categories),
	}

	prompt := buildItemPrompt(rec.LineItems, categories)
	if err := c.client.Classify(ctx, itemSystemPrompt, prompt, len(rec.LineItems), resp); err != nil {
		return RecordClassification{}, fmt.Errorf("classifying record %s: %w", rec.RecordID, err)
	}

	// The count check in Validate guarantees positional correspondence, so
	// prices come from the record rather than the model's echo.
	distinct := make(map[string]bool)
	for i := range resp.Items {
		resp.Items[i].Price = rec.LineItems[i].Price
		distinct[resp.Items[i].Category] = true
	}

	return RecordClassification{
		Items:      resp.Items,
		NeedsSplit: len(distinct) > 1,
	}, nil
}

// ClassifyMerchants assigns a category (or an ambiguous marker) to each
// merchant group in one batched call.
func (c *Classifier) ClassifyMerchants(ctx context.Context, merchants []MerchantGroup, categories []sources.Category) ([]MerchantDecision, error) {
	if len(merchants) == 0 {
		return nil, nil
	}

	resp := &merchantResponse{allowed: categoryNames(categories)}

	prompt := buildMerchantPrompt(merchants, categories)
	if err := c.client.Classify(ctx, merchantSystemPrompt, prompt, len(merchants), resp); err != nil {
		return nil, err
	}

	return resp.Merchants, nil
}

// recordResponse is the decoded item-level payload plus the shape checks the
// parse retry loop needs. The unexported fields are set before decoding and
// untouched by json.Unmarshal.
type recordResponse struct {
	Items []ItemDecision `json:"items"`

	expected int
	allowed  map[string]bool
}

func (r *recordResponse) Validate() error {
	if len(r.Items) != r.expected {
		return fmt.Errorf("expected %d item classifications, got %d", r.expected, len(r.Items))
	}
	for _, item := range r.Items {
		if err := checkDecision(item.Category, item.Confidence, r.allowed); err != nil {
			return fmt.Errorf("item %q: %w", item.ItemName, err)
		}
	}
	return nil
}

type merchantResponse struct {
	Merchants []MerchantDecision `json:"merchants"`

	allowed map[string]bool
}

func (r *merchantResponse) Validate() error {
	if len(r.Merchants) == 0 {
		return fmt.Errorf("no merchant classifications in response")
	}
	for _, m := range r.Merchants {
		if m.Ambiguous {
			continue
		}
		if err := checkDecision(m.Category, m.Confidence, r.allowed); err != nil {
			return fmt.Errorf("merchant %q: %w", m.Merchant, err)
		}
	}
	return nil
}

func checkDecision(category string, confidence float64, allowed map[string]bool) error {
	if category == "" {
		return fmt.Errorf("missing category")
	}
	if !allowed[category] {
		return fmt.Errorf("category %q is not in the taxonomy", category)
	}
	if confidence < 0 || confidence > 1 {
		return fmt.Errorf("confidence %v out of range", confidence)
	}
	return nil
}

func categoryNames(categories []sources.Category) map[string]bool {
	names := make(map[string]bool, len(categories))
	for _, cat := range categories {
		names[cat.Name] = true
	}
	return names
}
