package mock

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stoik/mailsync/internal/models"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Router returns the HTTP handler serving the provider API
func (s *Server) Router(middleware ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware...)

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	grants := r.Group("/v3/grants/:grant", s.authorize)
	{
		grants.GET("/folders", s.handleListFolders)
		grants.GET("/messages", s.handleListMessages)
		grants.GET("/messages/:id", s.handleGetMessage)
		grants.PUT("/messages/:id", s.handleUpdateMessage)
	}

	// Admin endpoints for testing
	admin := r.Group("/admin")
	{
		admin.POST("/grants", s.handleAddGrant)
		admin.POST("/grants/:grant/folders", s.handleAddFolder)
		admin.DELETE("/grants/:grant/folders/:id", s.handleRemoveFolder)
		admin.POST("/grants/:grant/messages/generate", s.handleGenerateMessages)
	}

	return r
}

func abortWithError(c *gin.Context, status int, errType, message string) {
	c.AbortWithStatusJSON(status, models.ErrorResponse{
		RequestID: uuid.NewString(),
		Error:     models.ErrorBody{Type: errType, Message: message},
	})
}

func respond[T any](c *gin.Context, data T, nextCursor string) {
	c.JSON(http.StatusOK, models.Response[T]{
		RequestID:  uuid.NewString(),
		Data:       data,
		NextCursor: nextCursor,
	})
}

func (s *Server) authorize(c *gin.Context) {
	grantID := c.Param("grant")
	token, ok := s.token(grantID)
	if !ok {
		abortWithError(c, http.StatusNotFound, models.ErrorTypeNotFound, "grant not found")
		return
	}
	if token != "" && c.GetHeader("Authorization") != "Bearer "+token {
		abortWithError(c, http.StatusUnauthorized, models.ErrorTypeUnauthorized, "invalid access token")
		return
	}
	c.Next()
}

// injected aborts the request with a queued failure for op, if any
func (s *Server) injected(c *gin.Context, op string) bool {
	f, ok := s.popFailure(c.Param("grant"), op)
	if !ok {
		return false
	}
	if f.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(f.RetryAfter))
	}
	message := f.Message
	if message == "" {
		message = http.StatusText(f.Status)
	}
	abortWithError(c, f.Status, f.Type, message)
	return true
}

func pagination(c *gin.Context) (offset, limit int) {
	limit = defaultPageSize
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = v
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v > 0 {
		offset = v
	}
	if v, err := strconv.Atoi(c.Query("page_token")); err == nil && v > 0 {
		offset = v
	}
	return offset, limit
}

func page[T any](items []T, offset, limit int) ([]T, string) {
	if offset > len(items) {
		offset = len(items)
	}
	end := offset + limit
	if end >= len(items) {
		return items[offset:], ""
	}
	return items[offset:end], strconv.Itoa(end)
}

func (s *Server) handleListFolders(c *gin.Context) {
	if s.injected(c, OpListFolders) {
		return
	}

	folders, _ := s.folders(c.Param("grant"), c.Query("single_level") == "true")
	offset, limit := pagination(c)
	data, next := page(folders, offset, limit)
	respond(c, data, next)
}

func (s *Server) handleListMessages(c *gin.Context) {
	if s.injected(c, OpListMessages) {
		return
	}

	grantID := c.Param("grant")
	filter := messageFilter{
		folderID: c.Query("in"),
		subject:  c.Query("subject"),
		from:     c.Query("from"),
		to:       c.Query("to"),
	}
	if v := c.Query("received_after"); v != "" {
		ts, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, models.ErrorTypeInvalidRequest, "received_after must be a unix timestamp")
			return
		}
		filter.receivedAfter = ts
	}
	if v := c.Query("received_before"); v != "" {
		ts, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, models.ErrorTypeInvalidRequest, "received_before must be a unix timestamp")
			return
		}
		filter.receivedBefore = ts
	}

	if filter.folderID != "" {
		folder, ok := s.folder(grantID, filter.folderID)
		if !ok {
			abortWithError(c, http.StatusNotFound, models.ErrorTypeNotFound, "folder not found")
			return
		}
		for _, attr := range folder.Attributes {
			if strings.EqualFold(attr, "\\Noselect") {
				abortWithError(c, http.StatusBadRequest, models.ErrorTypeUnselectableFolder, "folder cannot be selected")
				return
			}
		}
	}

	messages, _ := s.messages(grantID, filter)
	offset, limit := pagination(c)
	data, next := page(messages, offset, limit)
	if !includeHeaders(c) {
		data = withoutHeaders(data)
	}
	respond(c, data, next)
}

func (s *Server) handleGetMessage(c *gin.Context) {
	if s.injected(c, OpGetMessage) {
		return
	}

	m, ok := s.Message(c.Param("grant"), c.Param("id"))
	if !ok {
		abortWithError(c, http.StatusNotFound, models.ErrorTypeNotFound, "message not found")
		return
	}
	if !includeHeaders(c) {
		m.Headers = nil
	}
	respond(c, m, "")
}

func (s *Server) handleUpdateMessage(c *gin.Context) {
	if s.injected(c, OpUpdate) {
		return
	}

	var req models.ReadStatusUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, models.ErrorTypeInvalidRequest, err.Error())
		return
	}

	m, ok := s.setUnread(c.Param("grant"), c.Param("id"), req.Unread)
	if !ok {
		abortWithError(c, http.StatusNotFound, models.ErrorTypeNotFound, "message not found")
		return
	}
	respond(c, m, "")
}

func includeHeaders(c *gin.Context) bool {
	return strings.Contains(c.Query("fields"), "include_headers")
}

func withoutHeaders(messages []models.RemoteMessage) []models.RemoteMessage {
	out := make([]models.RemoteMessage, len(messages))
	for i, m := range messages {
		m.Headers = nil
		out[i] = m
	}
	return out
}

func (s *Server) handleAddGrant(c *gin.Context) {
	var req struct {
		Email          string `json:"email"`
		Token          string `json:"token"`
		DefaultFolders bool   `json:"default_folders"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" {
		abortWithError(c, http.StatusBadRequest, models.ErrorTypeInvalidRequest, "email is required")
		return
	}

	g := s.AddGrant(req.Email, req.Token)
	if req.DefaultFolders {
		s.AddDefaultFolders(g.ID)
	}
	c.JSON(http.StatusOK, gin.H{"id": g.ID, "email": g.Email})
}

func (s *Server) handleAddFolder(c *gin.Context) {
	grantID := c.Param("grant")
	if _, ok := s.token(grantID); !ok {
		abortWithError(c, http.StatusNotFound, models.ErrorTypeNotFound, "grant not found")
		return
	}

	var req models.RemoteFolder
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		abortWithError(c, http.StatusBadRequest, models.ErrorTypeInvalidRequest, "name is required")
		return
	}
	c.JSON(http.StatusOK, s.AddFolder(grantID, req))
}

func (s *Server) handleRemoveFolder(c *gin.Context) {
	grantID := c.Param("grant")
	if _, ok := s.token(grantID); !ok {
		abortWithError(c, http.StatusNotFound, models.ErrorTypeNotFound, "grant not found")
		return
	}
	if !s.RemoveFolder(grantID, c.Param("id")) {
		abortWithError(c, http.StatusNotFound, models.ErrorTypeNotFound, "folder not found")
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleGenerateMessages(c *gin.Context) {
	grantID := c.Param("grant")
	if _, ok := s.token(grantID); !ok {
		abortWithError(c, http.StatusNotFound, models.ErrorTypeNotFound, "grant not found")
		return
	}

	count := 1
	if v, err := strconv.Atoi(c.DefaultQuery("count", "1")); err == nil && v > 0 {
		count = v
	}
	folderID := c.Query("folder")
	if folderID == "" {
		abortWithError(c, http.StatusBadRequest, models.ErrorTypeInvalidRequest, "folder is required")
		return
	}
	if _, ok := s.folder(grantID, folderID); !ok {
		abortWithError(c, http.StatusNotFound, models.ErrorTypeNotFound, "folder not found")
		return
	}

	generated := s.GenerateMessages(grantID, folderID, count, time.Now())
	c.JSON(http.StatusOK, gin.H{"added": len(generated)})
}
