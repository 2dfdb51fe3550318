package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/keywarden/keywarden/internal/handler/dto"
	"github.com/keywarden/keywarden/internal/service"
	"go.uber.org/zap"
)

// VerifyHandler serves the unauthenticated endpoint the external
// application calls on every launch. State-precondition failures come
// back as success=false with a stable status string, not as 5xx.
type VerifyHandler struct {
	service *service.KeyService
	logger  *zap.Logger
}

func NewVerifyHandler(service *service.KeyService, logger *zap.Logger) *VerifyHandler {
	return &VerifyHandler{
		service: service,
		logger:  logger.Named("VerifyHandler"),
	}
}

func (h *VerifyHandler) Verify(c *gin.Context) {
	var req dto.VerifyRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind or validate verify request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	status, err := h.service.VerifyHwid(c.Request.Context(), req.Key, req.Hwid)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrKeyNotFound):
			c.JSON(http.StatusNotFound, dto.VerifyResponse{Success: false, Message: "Key does not exist", Status: "invalid_key"})
		case errors.Is(err, service.ErrKeyBlacklisted):
			c.JSON(http.StatusOK, dto.VerifyResponse{Success: false, Message: "Key is blacklisted", Status: "blacklisted"})
		case errors.Is(err, service.ErrKeyExpired):
			c.JSON(http.StatusOK, dto.VerifyResponse{Success: false, Message: "Key has expired", Status: "expired"})
		case errors.Is(err, service.ErrKeyNotRedeemed):
			c.JSON(http.StatusOK, dto.VerifyResponse{Success: false, Message: "Key has not been redeemed", Status: "not_redeemed"})
		default:
			h.logger.Error("Service failed to verify hwid", zap.String("key", req.Key), zap.Error(err))
			c.JSON(http.StatusInternalServerError, dto.VerifyResponse{Success: false, Message: "Verification failed"})
		}
		return
	}

	switch status {
	case service.VerifyRegistered:
		c.JSON(http.StatusOK, dto.VerifyResponse{Success: true, Message: "Hwid registered to key", Status: string(status)})
	case service.VerifyAccessGranted:
		c.JSON(http.StatusOK, dto.VerifyResponse{Success: true, Message: "Access granted", Status: string(status)})
	case service.VerifyMismatch:
		c.JSON(http.StatusOK, dto.VerifyResponse{Success: false, Message: "Hwid does not match", Status: string(status)})
	default:
		h.logger.Error("Unexpected verify status", zap.String("status", string(status)))
		c.JSON(http.StatusInternalServerError, dto.VerifyResponse{Success: false, Message: "Verification failed"})
	}
}
