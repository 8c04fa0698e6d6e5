// Package httpapi exposes the rollout coordinator over HTTP using gin.
package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stagegate/stagegate-server/internal/application"
	"github.com/stagegate/stagegate-server/internal/domain"
)

// Server holds the handlers for the rollout API.
type Server struct {
	Rollouts *application.RolloutService
	Targets  *application.TargetService
	Logger   *zap.Logger
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", s.healthz)

	api := router.Group("/api")
	{
		api.POST("/rollouts", s.startRollout)
		api.GET("/rollouts", s.listRollouts)
		api.GET("/rollouts/:id", s.getRollout)
		api.POST("/rollouts/:id/cancel", s.cancelRollout)
		api.POST("/rollouts/:id/rollback", s.rollbackRollout)

		api.POST("/targets", s.registerTarget)
		api.GET("/targets", s.listTargets)
		api.GET("/targets/:id", s.getTarget)
		api.DELETE("/targets/:id", s.deleteTarget)
	}
	return router
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) startRollout(c *gin.Context) {
	var req startRolloutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	strategy, err := req.Strategy.toDomain()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	targets := make([]domain.Target, len(req.Targets))
	for i, t := range req.Targets {
		targets[i] = t.toDomain()
	}

	id, err := s.Rollouts.Start(c.Request.Context(), application.StartRolloutInput{
		Subject:             domain.SubjectID(req.Subject),
		TargetVersion:       req.TargetVersion,
		PreviousVersion:     req.PreviousVersion,
		Strategy:            strategy,
		Targets:             targets,
		DisableAutoRollback: req.DisableAutoRollback,
	})
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": string(id)})
}

func (s *Server) listRollouts(c *gin.Context) {
	rollouts, err := s.Rollouts.List(c.Request.Context())
	if err != nil {
		s.renderError(c, err)
		return
	}
	responses := make([]rolloutResponse, 0, len(rollouts))
	for _, ro := range rollouts {
		responses = append(responses, toRolloutResponse(ro))
	}
	c.JSON(http.StatusOK, responses)
}

func (s *Server) getRollout(c *gin.Context) {
	ro, err := s.Rollouts.Status(c.Request.Context(), domain.RolloutID(c.Param("id")))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRolloutResponse(ro))
}

func (s *Server) cancelRollout(c *gin.Context) {
	id := domain.RolloutID(c.Param("id"))
	if err := s.Rollouts.Cancel(c.Request.Context(), id); err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": string(id), "cancel_requested": true})
}

func (s *Server) rollbackRollout(c *gin.Context) {
	var req rollbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := domain.RolloutID(c.Param("id"))
	if err := s.Rollouts.Rollback(c.Request.Context(), id, req.Reason); err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": string(id), "rollback_requested": true})
}

func (s *Server) registerTarget(c *gin.Context) {
	var req targetDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.Targets.Register(c.Request.Context(), req.toDomain()); err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

func (s *Server) listTargets(c *gin.Context) {
	targets, err := s.Targets.List(c.Request.Context())
	if err != nil {
		s.renderError(c, err)
		return
	}
	responses := make([]targetDTO, 0, len(targets))
	for _, t := range targets {
		responses = append(responses, targetResponse(t))
	}
	c.JSON(http.StatusOK, responses)
}

func (s *Server) getTarget(c *gin.Context) {
	target, err := s.Targets.Get(c.Request.Context(), domain.TargetID(c.Param("id")))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, targetResponse(target))
}

func (s *Server) deleteTarget(c *gin.Context) {
	if err := s.Targets.Delete(c.Request.Context(), domain.TargetID(c.Param("id"))); err != nil {
		s.renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) renderError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyExists), errors.Is(err, domain.ErrAlreadyInProgress):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidArgument):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError && s.Logger != nil {
		s.Logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
