// Package httpapi exposes the attendance service to browser scan stations as
// JSON over HTTP.
package httpapi

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/louisbranch/attendmark/internal/attendance/outcome"
	apperrors "github.com/louisbranch/attendmark/internal/platform/errors"
	grpcattendance "github.com/louisbranch/attendmark/internal/services/attendance/api/grpc/attendance"
	"github.com/louisbranch/attendmark/internal/services/attendance/marking"
	"github.com/louisbranch/attendmark/internal/services/attendance/operatorauth"
)

const claimsContextKey = "operator_claims"

type handler struct {
	marking *marking.Service
}

type scanRequest struct {
	Payload   string `json:"payload"`
	StationID string `json:"station_id"`
}

type scanResponse struct {
	Outcome outcome.Outcome `json:"outcome"`
	Message string          `json:"message,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewRouter builds the HTTP routes.
func NewRouter(svc *marking.Service, auth *operatorauth.Authenticator) *gin.Engine {
	h := &handler{marking: svc}
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/v1", JWTAuth(auth))
	v1.POST("/events/:eventID/scans", RequireRole(operatorauth.RoleScanner, operatorauth.RoleAdmin), h.scan)
	v1.GET("/events/:eventID/incidents", RequireRole(operatorauth.RoleAdmin), h.listIncidents)
	v1.POST("/registrations/:registrationID/payment/verify", RequireRole(operatorauth.RoleAdmin), h.verifyPayment)
	return router
}

// JWTAuth validates the operator bearer token and stores its claims.
func JWTAuth(auth *operatorauth.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := operatorauth.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortWithError(c, apperrors.New(apperrors.CodeOperatorUnauthenticated, "operator token is required"))
			return
		}
		claims, err := auth.Parse(token)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Set(claimsContextKey, claims)
		c.Request = c.Request.WithContext(operatorauth.WithClaims(c.Request.Context(), claims))
		c.Next()
	}
}

// RequireRole rejects operators without one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		value, _ := c.Get(claimsContextKey)
		claims, _ := value.(operatorauth.Claims)
		if err := operatorauth.Authorize(claims, roles...); err != nil {
			abortWithError(c, err)
			return
		}
		c.Next()
	}
}

func (h *handler) scan(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, apperrors.New(apperrors.CodeScanRequestInvalid, "scan body must be JSON"))
		return
	}
	eventID := c.Param("eventID")
	result, err := h.marking.Verify(c.Request.Context(), marking.VerifyRequest{
		Payload:   req.Payload,
		EventID:   eventID,
		StationID: req.StationID,
	})
	locale := outcome.MatchLocale(c.GetHeader("Accept-Language"))
	if err != nil {
		if apperrors.CodeOf(err) != apperrors.CodeUnknown {
			abortWithError(c, err)
			return
		}
		log.Printf("scan event=%s station=%s: %v", eventID, req.StationID, err)
		c.JSON(http.StatusServiceUnavailable, scanResponse{Outcome: result, Message: outcome.Message(result, locale)})
		return
	}
	c.JSON(http.StatusOK, scanResponse{Outcome: result, Message: outcome.Message(result, locale)})
}

func (h *handler) verifyPayment(c *gin.Context) {
	claims, _ := operatorauth.ClaimsFromContext(c.Request.Context())
	registration, err := h.marking.VerifyPayment(c.Request.Context(), marking.PaymentRequest{
		RegistrationID: c.Param("registrationID"),
		OperatorID:     claims.Subject,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, grpcattendance.VerifyPaymentResponse{
		Registration: grpcattendance.RegistrationFromStorage(registration),
	})
}

func (h *handler) listIncidents(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			abortWithError(c, apperrors.New(apperrors.CodeScanRequestInvalid, "limit must be a non-negative integer"))
			return
		}
		limit = parsed
	}
	incidents, err := h.marking.ListIncidents(c.Request.Context(), c.Param("eventID"), limit)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, grpcattendance.ListIncidentsResponse{
		Incidents: grpcattendance.IncidentsFromStorage(incidents),
	})
}

func abortWithError(c *gin.Context, err error) {
	var domainErr *apperrors.Error
	if !errors.As(err, &domainErr) {
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": errorBody{
			Code:    string(apperrors.CodeUnknown),
			Message: "internal error",
		}})
		return
	}
	if domainErr.Code == apperrors.CodeUnknown {
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.AbortWithStatusJSON(domainErr.Code.HTTPStatus(), gin.H{"error": errorBody{
		Code:    string(domainErr.Code),
		Message: domainErr.Message,
	}})
}
