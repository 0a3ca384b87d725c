package handler

import (
	"github.com/gofiber/fiber/v2"

	"telegram-clicker/internal/service"
)

// taskRequest is the body of the task endpoints that act on one task.
type taskRequest struct {
	InitData string `json:"initData"`
	TaskID   string `json:"taskId"`
}

// ClaimHandler handles task claims.
type ClaimHandler struct {
	claimService *service.ClaimService
}

// NewClaimHandler creates a new ClaimHandler.
func NewClaimHandler(claimService *service.ClaimService) *ClaimHandler {
	return &ClaimHandler{claimService: claimService}
}

// HandleCheckVisit handles POST /api/tasks/check/visit.
// A pending claim is a 200 with success=false and the remaining seconds.
func (h *ClaimHandler) HandleCheckVisit(c *fiber.Ctx) error {
	var req taskRequest
	if err := c.BodyParser(&req); err != nil {
		return sendError(c, fiber.StatusBadRequest, CodeInvalidRequest, "Invalid request body")
	}

	result, err := h.claimService.ClaimVisitTask(c.UserContext(), req.InitData, req.TaskID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(result)
}
