package purchaseorders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/procurement-backend/api/middleware"
	internalpo "github.com/angelmondragon/procurement-backend/internal/purchaseorders"
	"github.com/angelmondragon/procurement-backend/pkg/db/models"
	"github.com/angelmondragon/procurement-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/procurement-backend/pkg/errors"
	"github.com/angelmondragon/procurement-backend/pkg/pagination"
)

type stubService struct {
	create        func(ctx context.Context, actor string, input internalpo.CreateInput) (*internalpo.OrderSummary, error)
	confirm       func(ctx context.Context, actor string, id uuid.UUID, input internalpo.ConfirmInput) (*internalpo.OrderSummary, error)
	receive       func(ctx context.Context, actor string, id uuid.UUID, input internalpo.ReceiveInput) (*internalpo.OrderSummary, error)
	recordPayment func(ctx context.Context, actor string, id uuid.UUID, input internalpo.PaymentInput) (*internalpo.PaymentResult, error)
	cancel        func(ctx context.Context, actor string, id uuid.UUID, reason string) (*internalpo.OrderSummary, error)
	get           func(ctx context.Context, id uuid.UUID) (*internalpo.OrderSummary, error)
	list          func(ctx context.Context, filters internalpo.ListFilters, params pagination.Params) (*internalpo.OrderList, error)
}

func (s *stubService) Create(ctx context.Context, actor string, input internalpo.CreateInput) (*internalpo.OrderSummary, error) {
	if s.create != nil {
		return s.create(ctx, actor, input)
	}
	return &internalpo.OrderSummary{}, nil
}

func (s *stubService) AddLines(ctx context.Context, actor string, orderID uuid.UUID, lines []internalpo.LineInput) (*internalpo.OrderSummary, error) {
	return &internalpo.OrderSummary{ID: orderID}, nil
}

func (s *stubService) Confirm(ctx context.Context, actor string, orderID uuid.UUID, input internalpo.ConfirmInput) (*internalpo.OrderSummary, error) {
	if s.confirm != nil {
		return s.confirm(ctx, actor, orderID, input)
	}
	return &internalpo.OrderSummary{ID: orderID}, nil
}

func (s *stubService) Receive(ctx context.Context, actor string, orderID uuid.UUID, input internalpo.ReceiveInput) (*internalpo.OrderSummary, error) {
	if s.receive != nil {
		return s.receive(ctx, actor, orderID, input)
	}
	return &internalpo.OrderSummary{ID: orderID}, nil
}

func (s *stubService) ReturnItems(ctx context.Context, actor string, orderID uuid.UUID, input internalpo.ReturnInput) (*internalpo.ReturnResult, error) {
	return &internalpo.ReturnResult{}, nil
}

func (s *stubService) RecordPayment(ctx context.Context, actor string, orderID uuid.UUID, input internalpo.PaymentInput) (*internalpo.PaymentResult, error) {
	if s.recordPayment != nil {
		return s.recordPayment(ctx, actor, orderID, input)
	}
	return &internalpo.PaymentResult{}, nil
}

func (s *stubService) ReversePayment(ctx context.Context, actor string, orderID uuid.UUID, input internalpo.ReverseInput) (*internalpo.ReversalResult, error) {
	return &internalpo.ReversalResult{}, nil
}

func (s *stubService) Complete(ctx context.Context, actor string, orderID uuid.UUID, input internalpo.CompleteInput) (*internalpo.OrderSummary, error) {
	return &internalpo.OrderSummary{ID: orderID}, nil
}

func (s *stubService) ShortClose(ctx context.Context, actor string, orderID uuid.UUID, reason string) (*internalpo.OrderSummary, error) {
	return &internalpo.OrderSummary{ID: orderID}, nil
}

func (s *stubService) Cancel(ctx context.Context, actor string, orderID uuid.UUID, reason string) (*internalpo.OrderSummary, error) {
	if s.cancel != nil {
		return s.cancel(ctx, actor, orderID, reason)
	}
	return &internalpo.OrderSummary{ID: orderID}, nil
}

func (s *stubService) Archive(ctx context.Context, actor string, orderID uuid.UUID) (*internalpo.OrderSummary, error) {
	return &internalpo.OrderSummary{ID: orderID}, nil
}

func (s *stubService) RecordQualityCheck(ctx context.Context, actor string, orderID uuid.UUID, input internalpo.QualityCheckInput) (*models.QualityCheck, error) {
	return &models.QualityCheck{}, nil
}

func (s *stubService) Get(ctx context.Context, orderID uuid.UUID) (*internalpo.OrderSummary, error) {
	if s.get != nil {
		return s.get(ctx, orderID)
	}
	return &internalpo.OrderSummary{ID: orderID}, nil
}

func (s *stubService) List(ctx context.Context, filters internalpo.ListFilters, params pagination.Params) (*internalpo.OrderList, error) {
	if s.list != nil {
		return s.list(ctx, filters, params)
	}
	return &internalpo.OrderList{}, nil
}

func (s *stubService) ListPayments(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	return nil, nil
}

func (s *stubService) ListReturns(ctx context.Context, orderID uuid.UUID) ([]models.PurchaseOrderReturn, error) {
	return nil, nil
}

func (s *stubService) ListQualityChecks(ctx context.Context, orderID uuid.UUID) ([]models.QualityCheck, error) {
	return nil, nil
}

func (s *stubService) AuditTrail(ctx context.Context, orderID uuid.UUID) ([]models.AuditEntry, error) {
	return []models.AuditEntry{{EntityID: orderID}}, nil
}

func (s *stubService) ListArchivable(ctx context.Context, cutoff time.Time, limit int) ([]models.PurchaseOrder, error) {
	return nil, nil
}

func orderRequest(method, target string, orderID uuid.UUID, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rctx := chi.NewRouteContext()
	if orderID != uuid.Nil {
		rctx.URLParams.Add(orderIDParam, orderID.String())
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	return req.WithContext(middleware.WithActor(ctx, "clerk-1"))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) (string, map[string]any) {
	t.Helper()
	var payload struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload.Error.Code, payload.Error.Details
}

func TestCreatePassesActorAndBody(t *testing.T) {
	supplier := uuid.New()
	svc := &stubService{
		create: func(ctx context.Context, actor string, input internalpo.CreateInput) (*internalpo.OrderSummary, error) {
			assert.Equal(t, "clerk-1", actor)
			assert.Equal(t, supplier, input.SupplierID)
			require.Len(t, input.Lines, 1)
			assert.True(t, input.Lines[0].UnitCost.Equal(decimal.RequireFromString("12.50")))
			assert.Equal(t, "rush", input.Notes)
			return &internalpo.OrderSummary{OrderNumber: "PO-20260101-ABCDEF12"}, nil
		},
	}
	body := `{"supplier_id":"` + supplier.String() + `","notes":"  rush ","lines":[{"catalog_item_id":"SKU-1","ordered_quantity":4,"unit_cost":"12.50"}]}`

	rec := httptest.NewRecorder()
	Create(svc, nil).ServeHTTP(rec, orderRequest(http.MethodPost, "/api/v1/purchase-orders", uuid.Nil, body))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "PO-20260101-ABCDEF12")
}

func TestCreateRejectsInvalidBody(t *testing.T) {
	rec := httptest.NewRecorder()
	body := `{"supplier_id":"` + uuid.NewString() + `","lines":[{"catalog_item_id":"SKU-1","ordered_quantity":0,"unit_cost":"1"}]}`
	Create(&stubService{
		create: func(context.Context, string, internalpo.CreateInput) (*internalpo.OrderSummary, error) {
			t.Fatal("service must not be called")
			return nil, nil
		},
	}, nil).ServeHTTP(rec, orderRequest(http.MethodPost, "/api/v1/purchase-orders", uuid.Nil, body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	code, _ := decodeError(t, rec)
	assert.Equal(t, string(pkgerrors.CodeValidation), code)
}

func TestConfirmAcceptsEmptyBody(t *testing.T) {
	orderID := uuid.New()
	called := false
	svc := &stubService{
		confirm: func(ctx context.Context, actor string, id uuid.UUID, input internalpo.ConfirmInput) (*internalpo.OrderSummary, error) {
			called = true
			assert.Equal(t, orderID, id)
			assert.False(t, input.AllowOverReceipt)
			return &internalpo.OrderSummary{ID: id, Status: enums.PurchaseOrderStatusConfirmed}, nil
		},
	}
	rec := httptest.NewRecorder()
	Confirm(svc, nil).ServeHTTP(rec, orderRequest(http.MethodPost, "/confirm", orderID, ""))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}

func TestReceiveSurfacesViolation(t *testing.T) {
	orderID := uuid.New()
	lineID := uuid.New()
	svc := &stubService{
		receive: func(ctx context.Context, actor string, id uuid.UUID, input internalpo.ReceiveInput) (*internalpo.OrderSummary, error) {
			require.Len(t, input.Lines, 1)
			assert.Equal(t, int64(6), input.Lines[0].Quantity)
			return nil, pkgerrors.NewViolation(pkgerrors.CodeQuantityInvariant, "receipt exceeds ordered quantity", pkgerrors.Violation{
				EntityID:   lineID.String(),
				Field:      "received_quantity",
				Current:    int64(0),
				Attempted:  int64(6),
				Constraint: "net_received <= ordered",
			})
		},
	}
	body := `{"lines":[{"line_id":"` + lineID.String() + `","quantity":6}]}`
	rec := httptest.NewRecorder()
	Receive(svc, nil).ServeHTTP(rec, orderRequest(http.MethodPost, "/receipts", orderID, body))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	code, details := decodeError(t, rec)
	assert.Equal(t, string(pkgerrors.CodeQuantityInvariant), code)
	assert.Equal(t, lineID.String(), details["entity_id"])
	assert.Equal(t, float64(6), details["attempted"])
}

func TestRecordPaymentFallsBackToHeaderKey(t *testing.T) {
	orderID := uuid.New()
	account := uuid.New()
	replayed := false
	svc := &stubService{
		recordPayment: func(ctx context.Context, actor string, id uuid.UUID, input internalpo.PaymentInput) (*internalpo.PaymentResult, error) {
			assert.Equal(t, "hdr-key", input.IdempotencyKey)
			assert.Equal(t, account, input.FundingAccountID)
			return &internalpo.PaymentResult{Replayed: replayed}, nil
		},
	}
	body := `{"funding_account_id":"` + account.String() + `","amount":"100.00","method":"bank_transfer"}`

	req := orderRequest(http.MethodPost, "/payments", orderID, body)
	req.Header.Set(middleware.IdempotencyHeader, "hdr-key")
	rec := httptest.NewRecorder()
	RecordPayment(svc, nil).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)

	replayed = true
	req = orderRequest(http.MethodPost, "/payments", orderID, body)
	req.Header.Set(middleware.IdempotencyHeader, "hdr-key")
	rec = httptest.NewRecorder()
	RecordPayment(svc, nil).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCancelRequiresReason(t *testing.T) {
	rec := httptest.NewRecorder()
	Cancel(&stubService{}, nil).ServeHTTP(rec, orderRequest(http.MethodPost, "/cancel", uuid.New(), `{"reason":""}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelMapsDomainError(t *testing.T) {
	svc := &stubService{
		cancel: func(ctx context.Context, actor string, id uuid.UUID, reason string) (*internalpo.OrderSummary, error) {
			assert.Equal(t, "supplier closed", reason)
			return nil, pkgerrors.New(pkgerrors.CodeCancellationNotAllowed, "goods already received")
		},
	}
	rec := httptest.NewRecorder()
	Cancel(svc, nil).ServeHTTP(rec, orderRequest(http.MethodPost, "/cancel", uuid.New(), `{"reason":" supplier closed "}`))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeCancellationNotAllowed), rec.Header().Get("X-Error-Code"))
}

func TestGetRejectsMalformedID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/purchase-orders/nope", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(orderIDParam, "nope")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	rec := httptest.NewRecorder()
	Get(&stubService{}, nil).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetNotFound(t *testing.T) {
	svc := &stubService{
		get: func(ctx context.Context, id uuid.UUID) (*internalpo.OrderSummary, error) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "purchase order not found")
		},
	}
	rec := httptest.NewRecorder()
	Get(svc, nil).ServeHTTP(rec, orderRequest(http.MethodGet, "/", uuid.New(), ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListParsesFilters(t *testing.T) {
	supplier := uuid.New()
	svc := &stubService{
		list: func(ctx context.Context, filters internalpo.ListFilters, params pagination.Params) (*internalpo.OrderList, error) {
			require.NotNil(t, filters.Status)
			assert.Equal(t, enums.PurchaseOrderStatusPartialReceived, *filters.Status)
			require.NotNil(t, filters.SupplierID)
			assert.Equal(t, supplier, *filters.SupplierID)
			assert.True(t, filters.IncludeArchived)
			assert.Equal(t, 5, params.Limit)
			assert.Equal(t, "abc", params.Cursor)
			return &internalpo.OrderList{NextCursor: "next"}, nil
		},
	}
	target := "/api/v1/purchase-orders?status=partial_received&supplier_id=" + supplier.String() + "&include_archived=true&limit=5&cursor=abc"
	rec := httptest.NewRecorder()
	List(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"next_cursor":"next"`)
}

func TestListRejectsInvertedRange(t *testing.T) {
	rec := httptest.NewRecorder()
	List(&stubService{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/purchase-orders?created_from=2026-02-01&created_to=2026-01-01", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuditTrail(t *testing.T) {
	orderID := uuid.New()
	rec := httptest.NewRecorder()
	AuditTrail(&stubService{}, nil).ServeHTTP(rec, orderRequest(http.MethodGet, "/audit", orderID, ""))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), orderID.String())
}

func TestNilServiceIsInternalError(t *testing.T) {
	rec := httptest.NewRecorder()
	Get(nil, nil).ServeHTTP(rec, orderRequest(http.MethodGet, "/", uuid.New(), ""))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
