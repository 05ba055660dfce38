package rpc

import (
	"net/http"

	"botlink/internal/core/domain"
	"botlink/internal/core/ports"
	"botlink/internal/core/robot"
	"botlink/pkg/errors"

	"github.com/gin-gonic/gin"
)

// ServicePrefix is the route group every robot RPC lives under.
const ServicePrefix = "/robot.v1.RobotService"

// RobotHandler exposes the shared robot as JSON RPCs. Every call holds the
// robot lock for its duration.
type RobotHandler struct {
	shared *robot.Shared
}

var _ ports.RPCHandler = (*RobotHandler)(nil)

func NewRobotHandler(shared *robot.Shared) *RobotHandler {
	return &RobotHandler{shared: shared}
}

func (h *RobotHandler) SetupRoutes(router gin.IRouter) {
	svc := router.Group(ServicePrefix)
	{
		svc.POST("/ResourceNames", h.ResourceNames)
		svc.POST("/GetStatus", h.GetStatus)
		svc.POST("/DoCommand", h.DoCommand)
	}
}

func (h *RobotHandler) ResourceNames(c *gin.Context) {
	var names []domain.ResourceName
	_ = h.shared.Do(func(r ports.Robot) error {
		names = r.ResourceNames()
		return nil
	})

	c.JSON(http.StatusOK, gin.H{"resources": names})
}

func (h *RobotHandler) GetStatus(c *gin.Context) {
	var req struct {
		ResourceNames []domain.ResourceName `json:"resource_names"`
	}
	// an empty body asks for everything
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(errors.NewInvalidInputError(err.Error()))
			return
		}
	}

	var statuses []domain.ResourceStatus
	err := h.shared.Do(func(r ports.Robot) error {
		var err error
		statuses, err = r.Status(c.Request.Context(), req.ResourceNames)
		return err
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": statuses})
}

func (h *RobotHandler) DoCommand(c *gin.Context) {
	var req struct {
		Name    string                 `json:"name" binding:"required"`
		Command map[string]interface{} `json:"command"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}

	var result map[string]interface{}
	err := h.shared.Do(func(r ports.Robot) error {
		var err error
		result, err = r.DoCommand(c.Request.Context(), req.Name, req.Command)
		return err
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result})
}
