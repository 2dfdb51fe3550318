package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/keywarden/keywarden/internal/handler/dto"
	"github.com/keywarden/keywarden/internal/ierr"
	"github.com/keywarden/keywarden/internal/service"
	"go.uber.org/zap"
)

const apiActorID = "api"

type KeyHandler struct {
	service *service.KeyService
	logger  *zap.Logger
}

func NewKeyHandler(service *service.KeyService, logger *zap.Logger) *KeyHandler {
	return &KeyHandler{
		service: service,
		logger:  logger.Named("KeyHandler"),
	}
}

func (h *KeyHandler) Create(c *gin.Context) {
	h.logger.Debug("Received request to create keys")
	var req dto.CreateKeysRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind or validate request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	keys, err := h.service.CreateKeys(c.Request.Context(), req.Quantity, req.Duration, apiActorID)
	if err != nil {
		if errors.Is(err, ierr.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Service failed to create keys", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create keys"})
		return
	}

	h.logger.Info("Keys created via API", zap.Int("count", len(keys)))
	c.JSON(http.StatusOK, dto.NewCreateKeysResponse(keys))
}

func (h *KeyHandler) Check(c *gin.Context) {
	token := c.Param("key")
	h.logger.Debug("Received request to check key", zap.String("key", token))

	k, err := h.service.CheckKey(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, service.ErrKeyNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Key not found"})
			return
		}
		h.logger.Error("Service failed to check key", zap.String("key", token), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve key"})
		return
	}

	c.JSON(http.StatusOK, dto.NewKeyResponse(k, h.service.Now()))
}

func (h *KeyHandler) List(c *gin.Context) {
	h.logger.Debug("Received request to list keys")

	keys, err := h.service.ListKeys(c.Request.Context())
	if err != nil {
		h.logger.Error("Service failed to list keys", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve keys"})
		return
	}

	now := h.service.Now()
	responses := make([]*dto.KeyResponse, len(keys))
	for i, k := range keys {
		responses[i] = dto.NewKeyResponse(k, now)
	}
	c.JSON(http.StatusOK, gin.H{"count": len(responses), "keys": responses})
}

func (h *KeyHandler) Blacklist(c *gin.Context) {
	var req dto.BlacklistKeyRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind or validate blacklist request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	err := h.service.Blacklist(c.Request.Context(), req.Key, apiActorID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrKeyNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Key not found"})
		case errors.Is(err, service.ErrAlreadyInactive):
			c.JSON(http.StatusConflict, gin.H{"error": "Key is already blacklisted"})
		default:
			h.logger.Error("Service failed to blacklist key", zap.String("key", req.Key), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to blacklist key"})
		}
		return
	}

	h.logger.Info("Key blacklisted via API", zap.String("key", req.Key))
	c.JSON(http.StatusOK, dto.BlacklistKeyResponse{Success: true, Key: req.Key})
}

func (h *KeyHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("Service failed to compute stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}
