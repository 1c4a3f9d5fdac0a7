package purchaseorders

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/procurement-backend/api/responses"
	"github.com/angelmondragon/procurement-backend/api/validators"
	internalpo "github.com/angelmondragon/procurement-backend/internal/purchaseorders"
	"github.com/angelmondragon/procurement-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/procurement-backend/pkg/errors"
	"github.com/angelmondragon/procurement-backend/pkg/logger"
	"github.com/angelmondragon/procurement-backend/pkg/pagination"
)

const maxQueryLen = 64

func Get(svc internalpo.Service, logg *logger.Logger) http.HandlerFunc {
	return orderRead(svc, logg, func(ctx context.Context, id uuid.UUID) (any, error) {
		return svc.Get(ctx, id)
	})
}

// List returns a cursor page of orders, newest first.
func List(svc internalpo.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, serviceAbsent))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filters, err := buildListFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		list, err := svc.List(r.Context(), filters, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func ListPayments(svc internalpo.Service, logg *logger.Logger) http.HandlerFunc {
	return orderRead(svc, logg, func(ctx context.Context, id uuid.UUID) (any, error) {
		return svc.ListPayments(ctx, id)
	})
}

func ListReturns(svc internalpo.Service, logg *logger.Logger) http.HandlerFunc {
	return orderRead(svc, logg, func(ctx context.Context, id uuid.UUID) (any, error) {
		return svc.ListReturns(ctx, id)
	})
}

func ListQualityChecks(svc internalpo.Service, logg *logger.Logger) http.HandlerFunc {
	return orderRead(svc, logg, func(ctx context.Context, id uuid.UUID) (any, error) {
		return svc.ListQualityChecks(ctx, id)
	})
}

func AuditTrail(svc internalpo.Service, logg *logger.Logger) http.HandlerFunc {
	return orderRead(svc, logg, func(ctx context.Context, id uuid.UUID) (any, error) {
		return svc.AuditTrail(ctx, id)
	})
}

func orderRead(svc internalpo.Service, logg *logger.Logger, fetch func(ctx context.Context, id uuid.UUID) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, serviceAbsent))
			return
		}
		orderID, err := validators.URLParamUUID(r, orderIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		data, err := fetch(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, data)
	}
}

func buildListFilters(r *http.Request) (internalpo.ListFilters, error) {
	var filters internalpo.ListFilters

	status, err := validators.ParseQueryEnum(r, "status", enums.ParsePurchaseOrderStatus)
	if err != nil {
		return filters, err
	}
	filters.Status = status

	paymentStatus, err := validators.ParseQueryEnum(r, "payment_status", enums.ParseOrderPaymentStatus)
	if err != nil {
		return filters, err
	}
	filters.PaymentStatus = paymentStatus

	supplierID, err := validators.ParseQueryUUID(r, "supplier_id")
	if err != nil {
		return filters, err
	}
	filters.SupplierID = supplierID

	from, err := validators.ParseQueryTime(r, "created_from")
	if err != nil {
		return filters, err
	}
	filters.CreatedFrom = from

	to, err := validators.ParseQueryTime(r, "created_to")
	if err != nil {
		return filters, err
	}
	filters.CreatedTo = to

	if from != nil && to != nil && to.Before(*from) {
		return filters, pkgerrors.New(pkgerrors.CodeValidation, "created_to must not precede created_from")
	}

	includeArchived, err := validators.ParseQueryBool(r, "include_archived")
	if err != nil {
		return filters, err
	}
	filters.IncludeArchived = includeArchived

	filters.Query = validators.CleanText(r.URL.Query().Get("q"), maxQueryLen)
	return filters, nil
}
