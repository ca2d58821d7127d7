package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bujia-iot/carwings-gateway/internal/app/service"
	"github.com/bujia-iot/carwings-gateway/internal/domain/vehicle"
	"github.com/bujia-iot/carwings-gateway/pkg/errors"
)

// CommandHandlers 远程命令运维API
type CommandHandlers struct {
	service *service.CommandService
}

// NewCommandHandlers 创建命令处理器
func NewCommandHandlers(svc *service.CommandService) *CommandHandlers {
	return &CommandHandlers{service: svc}
}

// HandleIssueCommand 为车辆创建一条waiting命令，车辆下一次INIT时取走
func (h *CommandHandlers) HandleIssueCommand(c *gin.Context) {
	vin := c.Param("vin")

	var req IssueCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{
			Code:    int(errors.ErrInvalidParameter),
			Message: "参数错误: " + err.Error(),
		})
		return
	}

	cmd, err := h.service.Issue(c.Request.Context(), vin, req.Command)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, APIResponse{
		Code:    0,
		Message: "命令已创建",
		Data:    toCommandInfo(vin, cmd),
	})
}

// HandleCommandStatus 查询车辆当前命令
func (h *CommandHandlers) HandleCommandStatus(c *gin.Context) {
	vin := c.Param("vin")

	cmd, err := h.service.Status(c.Request.Context(), vin)
	if err != nil {
		respondError(c, err)
		return
	}
	if cmd == nil {
		c.JSON(http.StatusNotFound, APIResponse{Code: 0, Message: "车辆没有命令"})
		return
	}
	c.JSON(http.StatusOK, APIResponse{
		Code:    0,
		Message: "success",
		Data:    toCommandInfo(vin, cmd),
	})
}

func toCommandInfo(vin string, cmd *vehicle.Command) CommandInfo {
	return CommandInfo{
		VIN:         vin,
		ID:          cmd.ID,
		Command:     cmd.Type.String(),
		State:       string(cmd.State),
		RequestedAt: cmd.RequestedAt,
		UpdatedAt:   cmd.UpdatedAt,
	}
}

// respondError 按错误码映射HTTP状态
func respondError(c *gin.Context, err error) {
	code := errors.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case errors.ErrInvalidParameter:
		status = http.StatusBadRequest
	case errors.ErrVehicleNotFound:
		status = http.StatusNotFound
	case errors.ErrCommandConflict:
		status = http.StatusConflict
	}
	c.JSON(status, APIResponse{Code: int(code), Message: err.Error()})
}
