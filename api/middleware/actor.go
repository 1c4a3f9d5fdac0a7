package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/procurement-backend/api/responses"
	pkgerrors "github.com/angelmondragon/procurement-backend/pkg/errors"
	"github.com/angelmondragon/procurement-backend/pkg/logger"
)

// ActorHeader carries the identity asserted by the upstream gateway.
const ActorHeader = "X-Actor-Id"

const maxActorLength = 128

// Actor reads the caller identity from ActorHeader. Mutating requests
// without one are rejected; reads pass through anonymously.
func Actor(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := strings.TrimSpace(r.Header.Get(ActorHeader))
			if len(actor) > maxActorLength {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, ActorHeader+" header too long").
					WithDetails(pkgerrors.Violation{Field: ActorHeader, Constraint: "len <= 128"}))
				return
			}
			if actor == "" {
				if isMutating(r.Method) {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, ActorHeader+" header required").
						WithDetails(pkgerrors.Violation{Field: ActorHeader, Constraint: "required"}))
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			ctx := WithActor(r.Context(), actor)
			if logg != nil {
				ctx = logg.WithActor(ctx, actor)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
