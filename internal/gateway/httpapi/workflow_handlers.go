package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/jkaninda/busara/internal/scheduler"
	"github.com/jkaninda/busara/internal/workflow"
	"github.com/jkaninda/okapi"
)

// **** Workflow request/response types ****

// WorkflowRunRequest is the JSON body for POST /v1/workflows/{id}/run.
type WorkflowRunRequest struct {
	Message string `json:"message"`
}

// WorkflowRunResponse wraps a workflow execution result.
type WorkflowRunResponse struct {
	WorkflowID    string                    `json:"workflow_id"`
	CorrelationID string                    `json:"correlation_id"`
	Result        *workflow.ExecutionResult `json:"result"`
}

// **** Route registration ****

func (g *Gateway) registerWorkflowRoutes() {
	g.group.Get("/workflows", g.handleWorkflowList,
		okapi.DocSummary("List configured workflows"),
		okapi.DocTags("Workflows"),
		okapi.DocResponse([]workflow.Definition{}),
	)
	g.group.Get("/workflows/active", g.handleWorkflowGetActive,
		okapi.DocSummary("Get the active workflow"),
		okapi.DocTags("Workflows"),
		okapi.DocResponse(workflow.Definition{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Get("/workflows/{id}", g.handleWorkflowGet,
		okapi.DocSummary("Get a workflow by id"),
		okapi.DocTags("Workflows"),
		okapi.DocPathParam("id", "string", "Workflow id"),
		okapi.DocResponse(workflow.Definition{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Put("/workflows", g.handleWorkflowSave,
		okapi.DocSummary("Replace the workflow catalog"),
		okapi.DocTags("Workflows"),
		okapi.DocRequestBody([]workflow.Definition{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
	)
	g.group.Post("/workflows/{id}/activate", g.handleWorkflowActivate,
		okapi.DocSummary("Mark a workflow as active"),
		okapi.DocTags("Workflows"),
		okapi.DocPathParam("id", "string", "Workflow id"),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Post("/workflows/deactivate", g.handleWorkflowDeactivate,
		okapi.DocSummary("Clear the active workflow"),
		okapi.DocTags("Workflows"),
	)
	g.group.Post("/workflows/{id}/run", g.handleWorkflowRun,
		okapi.DocSummary("Execute a workflow with a message"),
		okapi.DocTags("Workflows"),
		okapi.DocPathParam("id", "string", "Workflow id"),
		okapi.DocRequestBody(WorkflowRunRequest{}),
		okapi.DocResponse(WorkflowRunResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
}

// **** Handlers ****

func (g *Gateway) handleWorkflowList(c *okapi.Context) error {
	defs, err := g.workflows.LoadAll(c.Context())
	if err != nil {
		g.logger.Error("workflow listing failed", slog.String("error", err.Error()))
		return c.AbortInternalServerError("failed to list workflows")
	}
	return c.OK(defs)
}

func (g *Gateway) handleWorkflowGet(c *okapi.Context) error {
	def, err := g.findWorkflow(c, c.Param("id"))
	if err != nil {
		return err
	}
	return c.OK(def)
}

func (g *Gateway) handleWorkflowGetActive(c *okapi.Context) error {
	def, err := g.workflows.GetActive(c.Context())
	if err != nil {
		if errors.Is(err, workflow.ErrWorkflowNotActive) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "no active workflow"})
		}
		g.logger.Error("active workflow lookup failed", slog.String("error", err.Error()))
		return c.AbortInternalServerError("failed to load active workflow")
	}
	return c.OK(def)
}

func (g *Gateway) handleWorkflowSave(c *okapi.Context) error {
	var defs []workflow.Definition
	if err := c.Bind(&defs); err != nil {
		return c.AbortBadRequest("invalid request body")
	}

	seen := make(map[string]struct{}, len(defs))
	for i := range defs {
		if defs[i].ID == "" {
			defs[i].ID = uuid.NewString()
		}
		if _, dup := seen[defs[i].ID]; dup {
			return c.AbortBadRequest("duplicate workflow id: " + defs[i].ID)
		}
		seen[defs[i].ID] = struct{}{}
		if err := defs[i].Validate(); err != nil {
			return c.AbortBadRequest(err.Error())
		}
		if defs[i].Schedule != "" {
			if err := scheduler.ValidateExpression(defs[i].Schedule); err != nil {
				return c.AbortBadRequest(err.Error())
			}
		}
	}

	if err := g.workflows.Save(c.Context(), defs); err != nil {
		g.logger.Error("workflow catalog save failed", slog.String("error", err.Error()))
		return c.AbortInternalServerError("failed to save workflows")
	}

	g.logger.Info("workflow catalog replaced", slog.Int("workflows", len(defs)))
	return c.OK(map[string]any{"status": "saved", "workflows": len(defs)})
}

func (g *Gateway) handleWorkflowActivate(c *okapi.Context) error {
	id := c.Param("id")
	if err := g.workflows.SetActive(c.Context(), id); err != nil {
		if errors.Is(err, workflow.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "workflow not found"})
		}
		g.logger.Error("workflow activation failed", slog.String("workflow_id", id), slog.String("error", err.Error()))
		return c.AbortInternalServerError("failed to activate workflow")
	}

	g.logger.Info("workflow activated", slog.String("workflow_id", id))
	return c.OK(map[string]string{"status": "activated", "workflow_id": id})
}

func (g *Gateway) handleWorkflowDeactivate(c *okapi.Context) error {
	if err := g.workflows.SetActive(c.Context(), ""); err != nil {
		g.logger.Error("workflow deactivation failed", slog.String("error", err.Error()))
		return c.AbortInternalServerError("failed to deactivate workflow")
	}
	return c.OK(map[string]string{"status": "deactivated"})
}

func (g *Gateway) handleWorkflowRun(c *okapi.Context) error {
	clientID := c.GetString("clientID")
	if g.limiter != nil {
		if err := g.limiter.Allow(clientID); err != nil {
			return c.AbortTooManyRequests("rate limit exceeded")
		}
	}

	var req WorkflowRunRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	if req.Message == "" {
		return c.AbortBadRequest("message is required")
	}

	def, err := g.findWorkflow(c, c.Param("id"))
	if err != nil {
		return err
	}

	correlationID := newCorrelationID()
	g.logger.Info("workflow run requested",
		slog.String("workflow_id", def.ID),
		slog.String("client", clientID),
		slog.String("correlation_id", correlationID),
	)

	result := g.engine.Run(c.Context(), def, req.Message)
	return c.OK(WorkflowRunResponse{
		WorkflowID:    def.ID,
		CorrelationID: correlationID,
		Result:        result,
	})
}

// findWorkflow loads a workflow by id, writing the 404 response itself
// when the id does not resolve.
func (g *Gateway) findWorkflow(c *okapi.Context, id string) (*workflow.Definition, error) {
	defs, err := g.workflows.LoadAll(c.Context())
	if err != nil {
		g.logger.Error("workflow lookup failed", slog.String("error", err.Error()))
		return nil, c.AbortInternalServerError("failed to load workflows")
	}
	for i := range defs {
		if defs[i].ID == id {
			return &defs[i], nil
		}
	}
	return nil, c.JSON(http.StatusNotFound, map[string]string{"error": "workflow not found"})
}
