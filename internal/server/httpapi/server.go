// Package httpapi exposes the collaborator API over HTTP. Handlers are thin
// glue: decode, delegate to a service, translate the error taxonomy.
package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/postloom/postloom/internal/errs"
	"github.com/postloom/postloom/internal/model"
	"github.com/postloom/postloom/internal/service"
)

// Server bundles the services behind the HTTP surface.
type Server struct {
	tokens  *service.TokenService
	revoker *service.RevocationService
	quota   *service.QuotaService
	gate    *service.GateService
	logger  *zap.Logger
}

// New constructs a Server.
func New(tokens *service.TokenService, revoker *service.RevocationService, quota *service.QuotaService, gate *service.GateService, logger *zap.Logger) *Server {
	return &Server{tokens: tokens, revoker: revoker, quota: quota, gate: gate, logger: logger}
}

// Router builds the gin engine with auth, logging and recovery middleware.
func (s *Server) Router(jwtKey []byte) *gin.Engine {
	r := gin.New()
	r.Use(Recovery(s.logger), RequestLogger(s.logger))

	v1 := r.Group("/v1", RequireServiceAuth(jwtKey))
	v1.GET("/tokens/:provider", s.getValidToken)
	v1.POST("/tokens/:provider", s.saveAuthorizedToken)
	v1.DELETE("/tokens/:provider", s.revoke)
	v1.GET("/quota/can-post", s.canCreatePost)
	v1.GET("/quota/cycles", s.availableCycles)
	v1.POST("/posts/:id/settle", s.settlePost)
	v1.POST("/posts/settle-bulk", s.settleBulk)
	v1.POST("/quota/purge-expired", s.purgeExpiredCycles)
	return r
}

func (s *Server) getValidToken(c *gin.Context) {
	uid, ok := userIDFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	tok, err := s.tokens.GetValidToken(c.Request.Context(), uid, c.Param("provider"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": tok.Token, "is_valid": tok.Valid})
}

type saveTokenRequest struct {
	AccessToken  string     `json:"access_token" binding:"required"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresAt    *time.Time `json:"expires_at"`
	Scope        []string   `json:"scope"`
}

func (s *Server) saveAuthorizedToken(c *gin.Context) {
	uid, ok := userIDFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var req saveTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec := &model.TokenRecord{
		UserID:       uid,
		Provider:     c.Param("provider"),
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		ExpiresAt:    req.ExpiresAt,
		Scope:        req.Scope,
	}
	if err := s.tokens.SaveAuthorizedToken(c.Request.Context(), rec); err != nil {
		s.renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) revoke(c *gin.Context) {
	uid, ok := userIDFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	res, err := s.revoker.Revoke(c.Request.Context(), uid, c.Param("provider"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"provider_revoked": res.ProviderRevoked,
		"provider_error":   res.ProviderError,
	})
}

func (s *Server) canCreatePost(c *gin.Context) {
	uid, ok := userIDFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	d, err := s.quota.CanCreatePost(c.Request.Context(), uid)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"allowed": d.Allowed, "remaining": d.Remaining, "reason": d.Reason})
}

func (s *Server) availableCycles(c *gin.Context) {
	uid, ok := userIDFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	cycles, err := s.quota.AvailableCycles(c.Request.Context(), uid)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cycles": cycles})
}

// purgeExpiredCycles is called by the retention janitor.
func (s *Server) purgeExpiredCycles(c *gin.Context) {
	n, err := s.quota.PurgeExpiredCycles(c.Request.Context())
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"purged": n})
}

type settleRequest struct {
	SubscriberKey string `json:"subscriber_key" binding:"required"`
}

func (s *Server) settlePost(c *gin.Context) {
	postID, err := uuid.FromString(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid post id"})
		return
	}
	var req settleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := s.gate.CheckAndDeduct(c.Request.Context(), req.SubscriberKey, postID)
	if err != nil {
		// The result still carries the reason for observability.
		c.JSON(statusFor(err), settlementJSON(res))
		return
	}
	c.JSON(http.StatusOK, settlementJSON(res))
}

type settleBulkRequest struct {
	SubscriberKey string      `json:"subscriber_key" binding:"required"`
	PostIDs       []uuid.UUID `json:"post_ids" binding:"required"`
}

func (s *Server) settleBulk(c *gin.Context) {
	var req settleBulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	results, err := s.gate.BulkCheckAndDeduct(c.Request.Context(), req.SubscriberKey, req.PostIDs)
	if err != nil {
		s.renderError(c, err)
		return
	}
	out := make(map[string]gin.H, len(results))
	for id, res := range results {
		out[id.String()] = settlementJSON(res)
	}
	c.JSON(http.StatusOK, gin.H{"results": out})
}

func settlementJSON(res model.SettlementResult) gin.H {
	return gin.H{
		"success":         res.Success,
		"post_verified":   res.PostVerified,
		"quota_deducted":  res.QuotaDeducted,
		"already_counted": res.AlreadyCounted,
		"remaining_posts": res.RemainingPosts,
		"reason":          res.Reason,
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrUnsupportedProvider):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrNotConnected), errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrQuotaExhausted):
		return http.StatusForbidden
	case errors.Is(err, errs.ErrSubscriberNotFound), errors.Is(err, errs.ErrPostOwnershipMismatch):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) renderError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, gin.H{"error": "internal"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
