package handlers

import (
	"github.com/gin-gonic/gin"
)

// Router groups the handlers mounted by the server. Nil handlers leave
// their routes unregistered.
type Router struct {
	Evidences *EvidenceHandler
	Cards     *CardHandler
	Chains    *ChainHandler
	Slots     *SlotAssignmentHandler
	Rules     *RulesHandler
	Socket    *ProgressSocket
}

// Register mounts every route on r
func (rt Router) Register(r *gin.Engine) {
	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	if rt.Socket != nil {
		r.GET("/ws/auto-process", rt.Socket.AutoProcess)
	}

	api := r.Group("/api")
	if h := rt.Evidences; h != nil {
		api.POST("/evidences/auto-process", h.AutoProcess)
		api.POST("/evidences/classify", h.Classify)
		api.GET("/evidences", h.ListEvidences)
		api.GET("/evidences/:id/file", h.GetEvidenceFile)
		api.DELETE("/evidences/:id", h.DeleteEvidence)
		api.POST("/evidences/batch-delete", h.BatchDelete)
	}
	if h := rt.Cards; h != nil {
		api.POST("/evidence-cards/cast", h.Cast)
		api.GET("/evidence-cards/tasks/:id", h.GetTask)
		api.GET("/evidence-cards", h.ListCards)
		api.POST("/evidence-cards/:id/rebind", h.Rebind)
	}
	if h := rt.Chains; h != nil {
		api.GET("/evidence-chains/:case_id", h.GetDashboard)
	}
	if h := rt.Slots; h != nil {
		api.GET("/evidence-card-templates", h.ListTemplates)
		api.GET("/evidence-card-slot-assignments/:case_id/:template_id", h.GetSnapshot)
		api.PUT("/evidence-card-slot-assignments/:case_id/:template_id", h.UpdateAssignment)
		api.POST("/evidence-card-slot-assignments/:case_id/:template_id", h.ResetSnapshot)
	}
	if h := rt.Rules; h != nil {
		api.POST("/rules/reload", h.Reload)
	}
}
