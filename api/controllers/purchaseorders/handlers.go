package purchaseorders

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/procurement-backend/api/middleware"
	"github.com/angelmondragon/procurement-backend/api/responses"
	"github.com/angelmondragon/procurement-backend/api/validators"
	internalpo "github.com/angelmondragon/procurement-backend/internal/purchaseorders"
	"github.com/angelmondragon/procurement-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/procurement-backend/pkg/errors"
	"github.com/angelmondragon/procurement-backend/pkg/logger"
)

const (
	orderIDParam  = "orderID"
	maxReasonLen  = 512
	maxNotesLen   = 2048
	serviceAbsent = "purchase order service unavailable"
)

type addLinesRequest struct {
	Lines []internalpo.LineInput `json:"lines" validate:"required,min=1,dive"`
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"required,max=512"`
}

// paymentRequest lets the idempotency key fall back to the request header.
type paymentRequest struct {
	FundingAccountID uuid.UUID           `json:"funding_account_id" validate:"required"`
	Amount           decimal.Decimal     `json:"amount" validate:"money"`
	Currency         enums.Currency      `json:"currency,omitempty" validate:"omitempty,enum"`
	ExchangeRate     *decimal.Decimal    `json:"exchange_rate,omitempty"`
	Method           enums.PaymentMethod `json:"method" validate:"required,enum"`
	Reference        string              `json:"reference,omitempty" validate:"max=128"`
	Notes            string              `json:"notes,omitempty"`
	IdempotencyKey   string              `json:"idempotency_key,omitempty" validate:"max=128"`
	PaidAt           *time.Time          `json:"paid_at,omitempty"`
}

// Create opens a draft purchase order.
func Create(svc internalpo.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, serviceAbsent))
			return
		}
		var payload internalpo.CreateInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payload.Notes = validators.CleanText(payload.Notes, maxNotesLen)

		order, err := svc.Create(r.Context(), middleware.ActorFromContext(r.Context()), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

func AddLines(svc internalpo.Service, logg *logger.Logger) http.HandlerFunc {
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
		var payload addLinesRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.AddLines(r.Context(), middleware.ActorFromContext(r.Context()), orderID, payload.Lines)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// Confirm moves a draft order to confirmed. The body is optional.
func Confirm(svc internalpo.Service, logg *logger.Logger) http.HandlerFunc {
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
		var payload internalpo.ConfirmInput
		if err := validators.DecodeOptionalJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Confirm(r.Context(), middleware.ActorFromContext(r.Context()), orderID, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// Receive applies one receipt covering one or more lines.
func Receive(svc internalpo.Service, logg *logger.Logger) http.HandlerFunc {
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
		var payload internalpo.ReceiveInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payload.Notes = validators.CleanText(payload.Notes, maxNotesLen)

		order, err := svc.Receive(r.Context(), middleware.ActorFromContext(r.Context()), orderID, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

func Return(svc internalpo.Service, logg *logger.Logger) http.HandlerFunc {
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
		var payload internalpo.ReturnInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payload.Notes = validators.CleanText(payload.Notes, maxNotesLen)

		result, err := svc.ReturnItems(r.Context(), middleware.ActorFromContext(r.Context()), orderID, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// RecordPayment applies a payment. Replays of a known idempotency key
// answer 200 with the original payment instead of 201.
func RecordPayment(svc internalpo.Service, logg *logger.Logger) http.HandlerFunc {
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
		var payload paymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		key := strings.TrimSpace(payload.IdempotencyKey)
		if key == "" {
			key = strings.TrimSpace(r.Header.Get(middleware.IdempotencyHeader))
		}

		result, err := svc.RecordPayment(r.Context(), middleware.ActorFromContext(r.Context()), orderID, internalpo.PaymentInput{
			FundingAccountID: payload.FundingAccountID,
			Amount:           payload.Amount,
			Currency:         payload.Currency,
			ExchangeRate:     payload.ExchangeRate,
			Method:           payload.Method,
			Reference:        strings.TrimSpace(payload.Reference),
			Notes:            validators.CleanText(payload.Notes, maxNotesLen),
			IdempotencyKey:   key,
			PaidAt:           payload.PaidAt,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusCreated
		if result.Replayed {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, result)
	}
}

func ReversePayment(svc internalpo.Service, logg *logger.Logger) http.HandlerFunc {
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
		var payload internalpo.ReverseInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ReversePayment(r.Context(), middleware.ActorFromContext(r.Context()), orderID, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func Complete(svc internalpo.Service, logg *logger.Logger) http.HandlerFunc {
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
		var payload internalpo.CompleteInput
		if err := validators.DecodeOptionalJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payload.Notes = validators.CleanText(payload.Notes, maxNotesLen)

		order, err := svc.Complete(r.Context(), middleware.ActorFromContext(r.Context()), orderID, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

func ShortClose(svc internalpo.Service, logg *logger.Logger) http.HandlerFunc {
	return reasonAction(svc, logg, func(svc internalpo.Service, r *http.Request, orderID uuid.UUID, reason string) (*internalpo.OrderSummary, error) {
		return svc.ShortClose(r.Context(), middleware.ActorFromContext(r.Context()), orderID, reason)
	})
}

func Cancel(svc internalpo.Service, logg *logger.Logger) http.HandlerFunc {
	return reasonAction(svc, logg, func(svc internalpo.Service, r *http.Request, orderID uuid.UUID, reason string) (*internalpo.OrderSummary, error) {
		return svc.Cancel(r.Context(), middleware.ActorFromContext(r.Context()), orderID, reason)
	})
}

type reasonFunc func(svc internalpo.Service, r *http.Request, orderID uuid.UUID, reason string) (*internalpo.OrderSummary, error)

func reasonAction(svc internalpo.Service, logg *logger.Logger, fn reasonFunc) http.HandlerFunc {
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
		var payload reasonRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := fn(svc, r, orderID, validators.CleanText(payload.Reason, maxReasonLen))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

func Archive(svc internalpo.Service, logg *logger.Logger) http.HandlerFunc {
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
		order, err := svc.Archive(r.Context(), middleware.ActorFromContext(r.Context()), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

func RecordQualityCheck(svc internalpo.Service, logg *logger.Logger) http.HandlerFunc {
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
		var payload internalpo.QualityCheckInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payload.Notes = validators.CleanText(payload.Notes, maxNotesLen)

		check, err := svc.RecordQualityCheck(r.Context(), middleware.ActorFromContext(r.Context()), orderID, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, check)
	}
}
