package handler

import (
	"github.com/gofiber/fiber/v2"

	"telegram-clicker/internal/service"
)

type initDataRequest struct {
	InitData string `json:"initData"`
}

// UserHandler handles the player-facing user and task endpoints.
type UserHandler struct {
	accountService *service.AccountService
	taskService    *service.TaskService
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(accountService *service.AccountService, taskService *service.TaskService) *UserHandler {
	return &UserHandler{
		accountService: accountService,
		taskService:    taskService,
	}
}

// HandleUser handles POST /api/user. The first verified request creates the user.
func (h *UserHandler) HandleUser(c *fiber.Ctx) error {
	var req initDataRequest
	if err := c.BodyParser(&req); err != nil {
		return sendError(c, fiber.StatusBadRequest, CodeInvalidRequest, "Invalid request body")
	}

	user, created, err := h.accountService.EnsureUser(c.UserContext(), req.InitData)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"user":    user,
		"created": created,
	})
}

// transactionsLimit caps the ledger entries returned to the Mini App.
const transactionsLimit = 50

// HandleTransactions handles POST /api/user/transactions.
func (h *UserHandler) HandleTransactions(c *fiber.Ctx) error {
	var req initDataRequest
	if err := c.BodyParser(&req); err != nil {
		return sendError(c, fiber.StatusBadRequest, CodeInvalidRequest, "Invalid request body")
	}

	identity, err := h.accountService.Authenticate(req.InitData)
	if err != nil {
		return respondError(c, err)
	}

	transactions, err := h.accountService.RecentTransactions(c.UserContext(), identity, transactionsLimit)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"success":      true,
		"transactions": transactions,
	})
}

// HandleTasks handles POST /api/tasks.
func (h *UserHandler) HandleTasks(c *fiber.Ctx) error {
	var req initDataRequest
	if err := c.BodyParser(&req); err != nil {
		return sendError(c, fiber.StatusBadRequest, CodeInvalidRequest, "Invalid request body")
	}

	tasks, err := h.taskService.ListTasks(c.UserContext(), req.InitData)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"tasks":   tasks,
	})
}

// HandleStartTask handles POST /api/tasks/start.
func (h *UserHandler) HandleStartTask(c *fiber.Ctx) error {
	var req taskRequest
	if err := c.BodyParser(&req); err != nil {
		return sendError(c, fiber.StatusBadRequest, CodeInvalidRequest, "Invalid request body")
	}

	userTask, err := h.taskService.StartTask(c.UserContext(), req.InitData, req.TaskID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"userTask": userTask,
	})
}
