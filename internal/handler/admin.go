package handler

import (
	"github.com/gofiber/fiber/v2"

	"telegram-clicker/internal/model"
	"telegram-clicker/internal/service"
)

// AdminHandler handles the admin endpoints.
type AdminHandler struct {
	adminService *service.AdminService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(adminService *service.AdminService) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

// HandleListTasks handles GET /api/admin/tasks.
func (h *AdminHandler) HandleListTasks(c *fiber.Ctx) error {
	tasks, err := h.adminService.ListTasks(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(tasks)
}

// HandleCreateTask handles POST /api/admin/tasks.
func (h *AdminHandler) HandleCreateTask(c *fiber.Ctx) error {
	var task model.Task
	if err := c.BodyParser(&task); err != nil {
		return sendError(c, fiber.StatusBadRequest, CodeInvalidRequest, "Invalid task body")
	}

	created, err := h.adminService.CreateTask(c.UserContext(), &task)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(created)
}

// HandleUpdateTask handles PUT /api/admin/tasks/:id. An id in the body is ignored.
func (h *AdminHandler) HandleUpdateTask(c *fiber.Ctx) error {
	var patch model.TaskPatch
	if err := c.BodyParser(&patch); err != nil {
		return sendError(c, fiber.StatusBadRequest, CodeInvalidRequest, "Invalid task body")
	}

	updated, err := h.adminService.UpdateTask(c.UserContext(), c.Params("id"), &patch)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(updated)
}

type exportRequest struct {
	Fields []string `json:"fields"`
	Page   int      `json:"page"`
}

// HandleExport handles POST /api/admin/export.
func (h *AdminHandler) HandleExport(c *fiber.Ctx) error {
	var req exportRequest
	if err := c.BodyParser(&req); err != nil {
		return sendError(c, fiber.StatusBadRequest, CodeInvalidRequest, "Invalid export body")
	}

	page, err := h.adminService.ExportUsers(c.UserContext(), req.Fields, req.Page)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(page)
}
