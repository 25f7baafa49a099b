package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/you/phoneauth/domain"
	"github.com/you/phoneauth/internal/http/response"
)

// PolicyHandlers exposes the role policy table to admins
type PolicyHandlers struct {
	policies domain.PolicyService
}

// NewPolicyHandlers creates new policy handlers
func NewPolicyHandlers(policies domain.PolicyService) *PolicyHandlers {
	return &PolicyHandlers{policies: policies}
}

// PolicyRequest names one role/resource/action rule
type PolicyRequest struct {
	Role     string `json:"role" binding:"required"`
	Resource string `json:"resource" binding:"required"`
	Action   string `json:"action" binding:"required"`
}

// List returns every policy rule
func (h *PolicyHandlers) List(c *gin.Context) {
	response.OK(c, http.StatusOK, "", gin.H{"policies": h.policies.GetPolicies()})
}

// Add grants a role access to a resource
func (h *PolicyHandlers) Add(c *gin.Context) {
	var req PolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err)
		return
	}
	if err := h.policies.AddPolicy(domain.Role(req.Role), req.Resource, req.Action); err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, http.StatusCreated, "Policy added", nil)
}

// Remove revokes a role's access to a resource
func (h *PolicyHandlers) Remove(c *gin.Context) {
	var req PolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err)
		return
	}
	if err := h.policies.RemovePolicy(domain.Role(req.Role), req.Resource, req.Action); err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Policy removed", nil)
}
