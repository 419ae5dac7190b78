package webserver

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/stake-plus/trustink/src/auth"
	"github.com/stake-plus/trustink/src/certify"
	"github.com/stake-plus/trustink/src/reports"
	"github.com/stake-plus/trustink/src/submissions"
	"github.com/stake-plus/trustink/src/types"
	"go.uber.org/zap"
)

// Auth

type authHandler struct {
	svc *auth.Service
	log *zap.Logger
}

func (h *authHandler) Register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.log, err)
		return
	}
	sess, err := h.svc.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (h *authHandler) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.log, err)
		return
	}
	sess, err := h.svc.Login(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *authHandler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.View(currentUser(c)))
}

// Submissions and dashboard

type submissionHandler struct {
	intake    *submissions.Intake
	dashboard *submissions.Dashboard
	log       *zap.Logger
}

func (h *submissionHandler) Create(c *gin.Context) {
	var req submissions.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.log, err)
		return
	}
	sub, err := h.intake.Submit(c.Request.Context(), currentUser(c), req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

func (h *submissionHandler) List(c *gin.Context) {
	subs, err := h.dashboard.ListOwn(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, subs)
}

func (h *submissionHandler) Get(c *gin.Context) {
	sub, err := h.dashboard.Get(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (h *submissionHandler) Stats(c *gin.Context) {
	st, err := h.dashboard.Stats(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *submissionHandler) Profile(c *gin.Context) {
	p, err := h.dashboard.Profile(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Moderation

type moderationHandler struct {
	queue *submissions.Queue
	log   *zap.Logger
}

type reviewRequest struct {
	Decision types.Decision `json:"decision" binding:"required"`
	Notes    string         `json:"notes"`
}

func (h *moderationHandler) Queue(c *gin.Context) {
	items, err := h.queue.List(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *moderationHandler) Stats(c *gin.Context) {
	st, err := h.queue.Stats(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *moderationHandler) Review(c *gin.Context) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.log, err)
		return
	}
	sub, err := h.queue.Decide(c.Request.Context(), currentUser(c), c.Param("id"), req.Decision, req.Notes)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// Registry, verification and certificate documents

type registryHandler struct {
	registry *certify.Registry
	auth     *auth.Service
	reports  *reports.Generator
	log      *zap.Logger
}

func (h *registryHandler) List(c *gin.Context) {
	q := certify.ListQuery{
		Search: c.Query("search"),
		Page:   queryInt(c, "page"),
		Limit:  queryInt(c, "limit"),
	}
	page, err := h.registry.List(c.Request.Context(), q)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *registryHandler) Stats(c *gin.Context) {
	st, err := h.registry.Stats(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *registryHandler) Verify(c *gin.Context) {
	v, err := h.registry.Verify(c.Request.Context(), c.Param("vid"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// VerifyThirdParty is Verify for API key holders, tagged with the issuer.
func (h *registryHandler) VerifyThirdParty(c *gin.Context) {
	v, err := h.registry.Verify(c.Request.Context(), c.Param("vid"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"verification": v,
		"valid":        v.Valid,
		"issued_by":    "TrustInk",
		"api_version":  "v1",
	})
}

func (h *registryHandler) Certificate(c *gin.Context) {
	cert, err := h.certificate(c)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, cert)
}

func (h *registryHandler) PDF(c *gin.Context) {
	cert, err := h.certificate(c)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	creator, err := h.auth.User(c.Request.Context(), cert.CreatorID)
	if err != nil {
		h.log.Warn("Certificate creator not loaded", zap.String("certificate_id", cert.ID), zap.Error(err))
	}
	doc, err := h.reports.Certificate(cert, creator)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+reports.Filename(cert.VerificationID)+`"`)
	c.Data(http.StatusOK, "application/pdf", doc)
}

// certificate accepts either a certificate id or a verification id.
func (h *registryHandler) certificate(c *gin.Context) (*types.Certificate, error) {
	id := c.Param("id")
	if strings.HasPrefix(id, "VH-") {
		return h.registry.Lookup(c.Request.Context(), id)
	}
	return h.registry.Get(c.Request.Context(), id)
}

// Admin

type adminHandler struct {
	auth     *auth.Service
	registry *certify.Registry
	log      *zap.Logger
}

type statusRequest struct {
	Status types.UserStatus `json:"status" binding:"required"`
}

type trustRequest struct {
	TrustScore *int `json:"trust_score" binding:"required"`
}

type revokeRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *adminHandler) Users(c *gin.Context) {
	users, err := h.auth.ListUsers(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *adminHandler) SetStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.log, err)
		return
	}
	u, err := h.auth.SetStatus(c.Request.Context(), currentUser(c), c.Param("id"), req.Status)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *adminHandler) SetTrust(c *gin.Context) {
	var req trustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.log, err)
		return
	}
	res, err := h.auth.SetTrust(c.Request.Context(), currentUser(c), c.Param("id"), *req.TrustScore)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":     res.UserID,
		"trust_score": res.Score,
		"trust_level": res.Level,
	})
}

func (h *adminHandler) Stats(c *gin.Context) {
	st, err := h.auth.AdminStats(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *adminHandler) Revoke(c *gin.Context) {
	var req revokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.log, err)
		return
	}
	cert, err := h.registry.Revoke(c.Request.Context(), currentUser(c), c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, cert)
}

// API keys

type apiKeyHandler struct {
	keys *auth.APIKeys
	log  *zap.Logger
}

func (h *apiKeyHandler) Create(c *gin.Context) {
	var req auth.CreateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.log, err)
		return
	}
	key, err := h.keys.Create(c.Request.Context(), currentUser(c), req.Name)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, key)
}

func (h *apiKeyHandler) List(c *gin.Context) {
	keys, err := h.keys.List(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, keys)
}

func (h *apiKeyHandler) Delete(c *gin.Context) {
	if err := h.keys.Delete(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// queryInt returns 0 for a missing or malformed value; callers apply defaults.
func queryInt(c *gin.Context, name string) int {
	n, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return 0
	}
	return n
}
