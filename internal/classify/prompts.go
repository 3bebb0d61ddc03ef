package classify

import (
	"fmt"
	"strings"

	"github.com/mkessler-dev/ledgermatch/internal/sources"
)

const itemSystemPrompt = "You are a personal finance assistant that assigns purchase line items to budget categories. Always respond with valid JSON."

const merchantSystemPrompt = "You are a personal finance assistant that assigns merchants to budget categories based on transaction descriptions. Always respond with valid JSON."

// buildItemPrompt asks for a category per line item of one external record.
func buildItemPrompt(items []sources.LineItem, categories []sources.Category) string {
	var itemList strings.Builder
	for i, item := range items {
		if item.Quantity > 1 {
			itemList.WriteString(fmt.Sprintf("%d. %s (x%d) - $%.2f\n", i+1, item.Name, item.Quantity, item.Price))
		} else {
			itemList.WriteString(fmt.Sprintf("%d. %s - $%.2f\n", i+1, item.Name, item.Price))
		}
	}

	return fmt.Sprintf(`Assign each purchased item to the most appropriate category.

Items:
%s
Available categories:
%s
Instructions:
1. Use ONLY category names from the list above.
2. Food and drink belongs in grocery/dining categories; cleaning supplies and
   paper products do not, even when bought at a grocery store.
3. Provide a confidence score between 0.0 and 1.0 for each item.

Return a JSON object with this structure:
{
  "items": [
    {"item_name": "exact item name", "category": "category name", "confidence": 0.95}
  ]
}`, itemList.String(), formatCategories(categories))
}

// buildMerchantPrompt asks for one category per merchant group. Merchants the
// model cannot place with confidence are marked ambiguous rather than guessed.
func buildMerchantPrompt(merchants []MerchantGroup, categories []sources.Category) string {
	var merchantList strings.Builder
	for i, m := range merchants {
		merchantList.WriteString(fmt.Sprintf("%d. %s (%d transactions", i+1, m.Name, m.Count))
		if len(m.Samples) > 0 {
			merchantList.WriteString(fmt.Sprintf(", e.g. %q", m.Samples[0]))
		}
		merchantList.WriteString(")\n")
	}

	return fmt.Sprintf(`Assign each merchant to the most appropriate spending category.

Merchants:
%s
Available categories:
%s
Instructions:
1. Use ONLY category names from the list above.
2. If a merchant could plausibly belong to several unrelated categories, set
   "ambiguous" to true instead of guessing.
3. Provide a confidence score between 0.0 and 1.0 for each merchant.

Return a JSON object with this structure:
{
  "merchants": [
    {"merchant": "exact merchant name", "category": "category name", "confidence": 0.9, "ambiguous": false}
  ]
}`, merchantList.String(), formatCategories(categories))
}

func formatCategories(categories []sources.Category) string {
	var b strings.Builder
	for _, cat := range categories {
		if cat.Group != "" {
			b.WriteString(fmt.Sprintf("- %s (%s)\n", cat.Name, cat.Group))
		} else {
			b.WriteString(fmt.Sprintf("- %s\n", cat.Name))
		}
	}
	return b.String()
}
