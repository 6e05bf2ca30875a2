package handler

import (
	"net/http"

	v1 "vdisphere/api/v1"
	"vdisphere/pkg/jwt"
	"vdisphere/pkg/log"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	logger *log.Logger
}

func NewHandler(logger *log.Logger) *Handler {
	return &Handler{
		logger: logger,
	}
}

func GetUserIdFromCtx(ctx *gin.Context) string {
	v, exists := ctx.Get("claims")
	if !exists {
		return ""
	}
	return v.(*jwt.MyCustomClaims).UserId
}

func IsAdminFromCtx(ctx *gin.Context) bool {
	v, exists := ctx.Get("claims")
	if !exists {
		return false
	}
	return v.(*jwt.MyCustomClaims).IsAdmin
}

// statusFor maps service errors onto HTTP statuses. The body code carries
// the precise error either way.
func statusFor(err error) int {
	switch err {
	case v1.ErrBadRequest:
		return http.StatusBadRequest
	case v1.ErrUnauthorized:
		return http.StatusUnauthorized
	case v1.ErrForbidden, v1.ErrAccessDenied:
		return http.StatusForbidden
	case v1.ErrNotFound, v1.ErrInstanceNotFound, v1.ErrInvalidService:
		return http.StatusNotFound
	case v1.ErrOperationNotAllowed:
		return http.StatusConflict
	case v1.ErrPoolRestrained, v1.ErrCapacityExceeded, v1.ErrServiceNotReady,
		v1.ErrInMaintenance, v1.ErrTransportNotFound:
		return http.StatusServiceUnavailable
	case v1.ErrAgentUnreachable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
