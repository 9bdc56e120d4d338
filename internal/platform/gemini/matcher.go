package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/hirosato/go-bank-reconciliation/internal/domain/ledger"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/matching"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/statement"
)

// DefaultModel is used when no model is configured
const DefaultModel = "gemini-2.5-flash"

const instructions = `You reconcile a bank statement against an organization's ledger.
Pair statement transactions with ledger entries that record the same payment. Amount signs may
differ between the two sides. Dates can be a few days apart. Descriptions are free text and may be
abbreviated. Each statement transaction and each ledger entry may appear in at most one pair.
Only propose pairs you are confident about.

Return ONLY raw JSON of the form {"matches":[{"statementTransactionId":"...","ledgerEntryId":"..."}]}.
Do NOT wrap the response in code fences.`

type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Matcher proposes pairings with a Gemini model. It implements matching.Strategy.
type Matcher struct {
	models generator
	model  string
	logger *zap.Logger
}

// NewMatcher creates a matcher backed by the Gemini API
func NewMatcher(ctx context.Context, apiKey, model string, logger *zap.Logger) (*Matcher, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if model == "" {
		model = DefaultModel
	}
	return &Matcher{models: client.Models, model: model, logger: logger}, nil
}

type promptTransaction struct {
	ID          string `json:"id"`
	Date        string `json:"date"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

type promptEntry struct {
	ID          string `json:"id"`
	Date        string `json:"date"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	Type        string `json:"type"`
}

type proposalResponse struct {
	Matches []matching.Proposal `json:"matches"`
}

// Propose implements matching.Strategy
func (m *Matcher) Propose(ctx context.Context, txns []statement.Transaction, entries []ledger.Entry) ([]matching.Proposal, error) {
	prompt, err := buildPrompt(txns, entries)
	if err != nil {
		return nil, err
	}

	resp, err := m.models.GenerateContent(ctx, m.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0),
	})
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}

	raw := resp.Text()
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("empty response from model")
	}

	var decoded proposalResponse
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &decoded); err != nil {
		m.logger.Warn("undecodable model response", zap.String("response", truncate(raw, 512)))
		return nil, fmt.Errorf("decode model response: %w", err)
	}

	m.logger.Info("assisted matching proposals received",
		zap.String("model", m.model),
		zap.Int("transactions", len(txns)),
		zap.Int("entries", len(entries)),
		zap.Int("proposals", len(decoded.Matches)))
	return decoded.Matches, nil
}

func buildPrompt(txns []statement.Transaction, entries []ledger.Entry) (string, error) {
	pt := make([]promptTransaction, 0, len(txns))
	for _, t := range txns {
		pt = append(pt, promptTransaction{ID: t.ID, Date: t.Date, Amount: t.Amount.String(), Description: t.Description})
	}
	pe := make([]promptEntry, 0, len(entries))
	for _, e := range entries {
		pe = append(pe, promptEntry{
			ID:          e.EntryID,
			Date:        e.OccurrenceDate(),
			Amount:      e.Amount.String(),
			Description: e.Description,
			Type:        string(e.Type),
		})
	}

	txnJSON, err := json.Marshal(pt)
	if err != nil {
		return "", fmt.Errorf("encode statement transactions: %w", err)
	}
	entryJSON, err := json.Marshal(pe)
	if err != nil {
		return "", fmt.Errorf("encode ledger entries: %w", err)
	}

	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString("\n\nStatement transactions:\n")
	b.Write(txnJSON)
	b.WriteString("\n\nLedger entries:\n")
	b.Write(entryJSON)
	b.WriteString("\n")
	return b.String(), nil
}

// cleanModelJSON removes Markdown fences and any text around the JSON object
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
