// Package server provides the document-store HTTP API the sync engine treats
// as its remote source of truth. Collections are opaque JSON documents keyed
// by id and, for owner-scoped collections, an owner id. Upserts are
// idempotent; there are no multi-document transactions.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const deviceIDContextKey = "famling_device_id"

var (
	errMissingDatabase      = errors.New("database handle is required")
	errMissingTokenManager  = errors.New("token manager dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// TokenValidator checks bearer tokens and returns the device subject.
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// Dependencies wires the HTTP handler.
type Dependencies struct {
	Database *gorm.DB
	Tokens   TokenValidator
	Clock    func() time.Time
	Logger   *zap.Logger
}

// NewHTTPHandler builds the gin handler for the document-store API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Database == nil {
		return nil, errMissingDatabase
	}
	if deps.Tokens == nil {
		return nil, errMissingTokenManager
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		db:     deps.Database,
		tokens: deps.Tokens,
		clock:  clock,
		logger: logger,
	}

	protected := router.Group("/v1")
	protected.Use(handler.authorizeRequest)
	protected.GET("/:collection", handler.handleList)
	protected.GET("/:collection/:id", handler.handleGet)
	protected.PUT("/:collection/:id", handler.handleUpsert)
	protected.DELETE("/:collection/:id", handler.handleDelete)

	return router, nil
}

type httpHandler struct {
	db     *gorm.DB
	tokens TokenValidator
	clock  func() time.Time
	logger *zap.Logger
}

func (h *httpHandler) handleList(c *gin.Context) {
	collection, ok := h.collectionParam(c)
	if !ok {
		return
	}

	query := h.db.WithContext(c.Request.Context()).
		Where("collection = ?", collection)
	if ownerID := strings.TrimSpace(c.Query("owner_id")); ownerID != "" {
		query = query.Where("owner_id = ?", ownerID)
	}

	var documents []Document
	if err := query.Order("doc_id ASC").Find(&documents).Error; err != nil {
		h.logger.Error("document list failed", zap.String("collection", collection), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}

	payloads := make([]json.RawMessage, 0, len(documents))
	for _, document := range documents {
		payloads = append(payloads, document.Payload())
	}
	c.JSON(http.StatusOK, payloads)
}

func (h *httpHandler) handleGet(c *gin.Context) {
	collection, ok := h.collectionParam(c)
	if !ok {
		return
	}
	docID := strings.TrimSpace(c.Param("id"))
	ownerID := strings.TrimSpace(c.Query("owner_id"))

	var document Document
	err := h.db.WithContext(c.Request.Context()).
		Where("collection = ? AND doc_id = ? AND owner_id = ?", collection, docID, ownerID).
		Take(&document).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if err != nil {
		h.logger.Error("document fetch failed", zap.String("collection", collection), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "fetch_failed"})
		return
	}
	c.Data(http.StatusOK, "application/json", []byte(document.PayloadJSON))
}

func (h *httpHandler) handleUpsert(c *gin.Context) {
	collection, ok := h.collectionParam(c)
	if !ok {
		return
	}
	docID := strings.TrimSpace(c.Param("id"))
	ownerID := strings.TrimSpace(c.Query("owner_id"))

	var payload json.RawMessage
	if err := c.ShouldBindJSON(&payload); err != nil || len(payload) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload"})
		return
	}

	document := Document{
		Collection:       collection,
		DocID:            docID,
		OwnerID:          ownerID,
		PayloadJSON:      string(payload),
		UpdatedAtSeconds: h.clock().UTC().Unix(),
	}
	err := h.db.WithContext(c.Request.Context()).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "collection"}, {Name: "doc_id"}, {Name: "owner_id"}},
			UpdateAll: true,
		}).
		Create(&document).Error
	if err != nil {
		h.logger.Error("document upsert failed", zap.String("collection", collection), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upsert_failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleDelete(c *gin.Context) {
	collection, ok := h.collectionParam(c)
	if !ok {
		return
	}
	docID := strings.TrimSpace(c.Param("id"))
	ownerID := strings.TrimSpace(c.Query("owner_id"))

	result := h.db.WithContext(c.Request.Context()).
		Where("collection = ? AND doc_id = ? AND owner_id = ?", collection, docID, ownerID).
		Delete(&Document{})
	if result.Error != nil {
		h.logger.Error("document delete failed", zap.String("collection", collection), zap.Error(result.Error))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete_failed"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) collectionParam(c *gin.Context) (string, bool) {
	collection := strings.TrimSpace(c.Param("collection"))
	if collection == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_collection"})
		return "", false
	}
	return collection, true
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(deviceIDContextKey, subject)
	c.Next()
}
