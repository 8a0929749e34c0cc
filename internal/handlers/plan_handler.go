package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/trackforge/backend/internal/services"
)

type PlanHandler struct {
	planService *services.PlanService
}

func NewPlanHandler(planService *services.PlanService) *PlanHandler {
	return &PlanHandler{planService: planService}
}

// GetPlanRules returns the rule set for a plan tier
// GET /plans/:key/rules?refresh=true
func (h *PlanHandler) GetPlanRules(c *gin.Context) {
	planKey := c.Param("key")
	if planKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "plan key is required"})
		return
	}

	forceRefresh := c.Query("refresh") == "true"
	rules := h.planService.Rules(c.Request.Context(), planKey, forceRefresh)
	c.JSON(http.StatusOK, rules)
}
