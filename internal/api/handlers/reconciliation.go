package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/hirosato/go-bank-reconciliation/internal/api/middleware"
	"github.com/hirosato/go-bank-reconciliation/internal/api/response"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/errors"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/reconciliation"
	"github.com/hirosato/go-bank-reconciliation/internal/domain/statement"
)

// ReconciliationHandler exposes reconciliation sessions over API Gateway
type ReconciliationHandler struct {
	service *reconciliation.Service
}

// NewReconciliationHandler creates a new reconciliation handler
func NewReconciliationHandler(service *reconciliation.Service) *ReconciliationHandler {
	return &ReconciliationHandler{service: service}
}

type importBody struct {
	FileName string           `json:"fileName"`
	Format   statement.Format `json:"format"`
	// Content is the raw statement, base64 encoded in JSON
	Content []byte `json:"content"`
}

type pairBody struct {
	StatementTransactionID string   `json:"statementTransactionId"`
	LedgerEntryID          string   `json:"ledgerEntryId,omitempty"`
	LedgerEntryIDs         []string `json:"ledgerEntryIds,omitempty"`
	AcceptDivergence       bool     `json:"acceptDivergence"`
}

func (b pairBody) entryIDs() []string {
	if len(b.LedgerEntryIDs) > 0 {
		return b.LedgerEntryIDs
	}
	if b.LedgerEntryID != "" {
		return []string{b.LedgerEntryID}
	}
	return nil
}

// Handle routes a request. Errors are returned as AppErrors for the recovery middleware to render.
func (h *ReconciliationHandler) Handle(ctx context.Context, logger *zap.Logger, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	requestID := request.RequestContext.RequestID

	tenantCtx, ok := middleware.GetTenantContext(ctx)
	if !ok {
		return events.APIGatewayProxyResponse{}, errors.NewTenantError("request has no tenant context")
	}

	segments := splitPath(request.Path)
	if len(segments) == 3 && segments[0] == "ledger-entries" && segments[2] == "undo" {
		if request.HTTPMethod != http.MethodPost {
			return response.MethodNotAllowed(request.HTTPMethod, requestID), nil
		}
		entry, err := h.service.Undo(ctx, tenantCtx.OrganizationID, segments[1])
		if err != nil {
			return events.APIGatewayProxyResponse{}, err
		}
		logger.Info("ledger entry reverted", zap.String("ledgerEntryId", entry.EntryID))
		return response.OK(entry, requestID), nil
	}

	if len(segments) < 3 || segments[0] != "accounts" || segments[2] != "reconciliation" {
		return response.NotFound("route not found: "+request.Path, requestID), nil
	}
	key := reconciliation.SessionKey{
		OrganizationID: tenantCtx.OrganizationID,
		UserID:         tenantCtx.UserID,
		AccountID:      segments[1],
	}
	action := strings.Join(segments[3:], "/")

	switch {
	case action == "":
		switch request.HTTPMethod {
		case http.MethodGet:
			return viewResponse(requestID)(h.service.Get(ctx, key))
		case http.MethodDelete:
			return viewResponse(requestID)(h.service.Reset(ctx, key))
		}
	case action == "import" && request.HTTPMethod == http.MethodPost:
		return h.handleImport(ctx, key, request)
	case action == "selection" && request.HTTPMethod == http.MethodPut:
		var sel reconciliation.Selection
		if err := decodeBody(request, &sel); err != nil {
			return events.APIGatewayProxyResponse{}, err
		}
		return viewResponse(requestID)(h.service.Select(ctx, key, sel))
	case action == "candidates" && request.HTTPMethod == http.MethodGet:
		txnID := request.QueryStringParameters["statementTransactionId"]
		if txnID == "" {
			return response.BadRequest("statementTransactionId query parameter is required", requestID), nil
		}
		entries, err := h.service.Candidates(ctx, key, txnID)
		if err != nil {
			return events.APIGatewayProxyResponse{}, err
		}
		return response.SuccessWithPagination(entries, &response.Pagination{Total: len(entries)}, http.StatusOK, requestID), nil
	case action == "aggregate" && request.HTTPMethod == http.MethodPost:
		var body pairBody
		if err := decodeBody(request, &body); err != nil {
			return events.APIGatewayProxyResponse{}, err
		}
		agg, err := h.service.PreviewAggregate(ctx, key, body.StatementTransactionID, body.entryIDs())
		if err != nil {
			return events.APIGatewayProxyResponse{}, err
		}
		return response.OK(agg, requestID), nil
	case action == "pairs" && request.HTTPMethod == http.MethodPost:
		return h.handlePair(ctx, key, request)
	case strings.HasPrefix(action, "pairs/") && request.HTTPMethod == http.MethodDelete:
		return viewResponse(requestID)(h.service.Unpair(ctx, key, strings.TrimPrefix(action, "pairs/")))
	case action == "filter" && request.HTTPMethod == http.MethodPut:
		var filter reconciliation.DateFilter
		if err := decodeBody(request, &filter); err != nil {
			return events.APIGatewayProxyResponse{}, err
		}
		return viewResponse(requestID)(h.service.SetDateFilter(ctx, key, filter))
	case action == "assisted" && request.HTTPMethod == http.MethodPost:
		result, err := h.service.RunAssisted(ctx, key)
		if err != nil {
			return events.APIGatewayProxyResponse{}, err
		}
		return response.OK(result, requestID), nil
	case action == "confirm" && request.HTTPMethod == http.MethodPost:
		record, err := h.service.Confirm(ctx, key)
		if err != nil {
			return events.APIGatewayProxyResponse{}, err
		}
		return response.Created(record, requestID), nil
	case action == "audits" && request.HTTPMethod == http.MethodGet:
		return h.handleAudits(ctx, key, request)
	}

	if knownAction(action) {
		return response.MethodNotAllowed(request.HTTPMethod, requestID), nil
	}
	return response.NotFound("route not found: "+request.Path, requestID), nil
}

func (h *ReconciliationHandler) handleImport(ctx context.Context, key reconciliation.SessionKey, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var body importBody
	if err := decodeBody(request, &body); err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	if len(body.Content) == 0 {
		return events.APIGatewayProxyResponse{}, errors.NewValidationError("content is required")
	}
	view, err := h.service.Import(ctx, key, reconciliation.ImportRequest{
		FileName: body.FileName,
		Format:   body.Format,
		Data:     body.Content,
	})
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	return response.Created(view, request.RequestContext.RequestID), nil
}

func (h *ReconciliationHandler) handlePair(ctx context.Context, key reconciliation.SessionKey, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var body pairBody
	if err := decodeBody(request, &body); err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	ids := body.entryIDs()
	requestID := request.RequestContext.RequestID
	switch len(ids) {
	case 0:
		return events.APIGatewayProxyResponse{}, errors.NewValidationError("at least one ledger entry is required")
	case 1:
		return viewResponse(requestID)(h.service.Pair(ctx, key, reconciliation.PairRequest{
			StatementTransactionID: body.StatementTransactionID,
			LedgerEntryID:          ids[0],
			AcceptDivergence:       body.AcceptDivergence,
		}))
	default:
		return viewResponse(requestID)(h.service.PairAggregate(ctx, key, reconciliation.AggregateRequest{
			StatementTransactionID: body.StatementTransactionID,
			LedgerEntryIDs:         ids,
		}))
	}
}

func (h *ReconciliationHandler) handleAudits(ctx context.Context, key reconciliation.SessionKey, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	limit := 0
	if raw := request.QueryStringParameters["limit"]; raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return events.APIGatewayProxyResponse{}, errors.NewValidationError("limit must be a positive integer")
		}
		limit = n
	}
	records, err := h.service.ListAudits(ctx, key.OrganizationID, key.AccountID, limit)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	return response.SuccessWithPagination(records, &response.Pagination{Total: len(records), Limit: limit}, http.StatusOK, request.RequestContext.RequestID), nil
}

// viewResponse renders a service call returning a view as a 200 response
func viewResponse(requestID string) func(*reconciliation.View, error) (events.APIGatewayProxyResponse, error) {
	return func(v *reconciliation.View, err error) (events.APIGatewayProxyResponse, error) {
		if err != nil {
			return events.APIGatewayProxyResponse{}, err
		}
		return response.OK(v, requestID), nil
	}
}

func decodeBody(request events.APIGatewayProxyRequest, v interface{}) error {
	raw := []byte(request.Body)
	if request.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(request.Body)
		if err != nil {
			return errors.NewInvalidInputError("request body is not valid base64", err)
		}
		raw = decoded
	}
	if len(raw) == 0 {
		return errors.NewValidationError("request body is required")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.NewInvalidInputError("request body is not valid JSON", err)
	}
	return nil
}

// splitPath drops empty segments so trailing slashes and stage prefixes routed as "/" are tolerated
func splitPath(path string) []string {
	var out []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func knownAction(action string) bool {
	switch action {
	case "", "import", "selection", "candidates", "aggregate", "pairs", "filter", "assisted", "confirm", "audits":
		return true
	}
	return strings.HasPrefix(action, "pairs/")
}
