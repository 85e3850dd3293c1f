package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jkaninda/busara/internal/agent"
	"github.com/jkaninda/busara/internal/rule"
	"github.com/jkaninda/okapi"
)

// **** Agent request/response types ****

// AgentRequest is the JSON body for POST/PUT /v1/agents.
type AgentRequest struct {
	Name         string            `json:"name"`
	Description  string            `json:"description,omitempty"`
	Instructions string            `json:"instructions"`
	Model        string            `json:"model,omitempty"`
	Tools        []string          `json:"tools,omitempty"`
	ShouldUse    *rule.Node        `json:"should_use,omitempty"`
	Priority     int               `json:"priority,omitempty"`
	Role         string            `json:"role,omitempty"`
	Extensions   map[string]string `json:"extensions,omitempty"`
}

// AgentResponse is the JSON representation of a configured agent.
type AgentResponse struct {
	Name         string            `json:"name"`
	Description  string            `json:"description,omitempty"`
	Instructions string            `json:"instructions"`
	Model        string            `json:"model,omitempty"`
	Tools        []string          `json:"tools,omitempty"`
	ShouldUse    *rule.Node        `json:"should_use,omitempty"`
	Priority     int               `json:"priority"`
	Role         string            `json:"role,omitempty"`
	Extensions   map[string]string `json:"extensions,omitempty"`
}

func toAgentDefinition(req AgentRequest) agent.Definition {
	return agent.Definition{
		Name:         req.Name,
		Description:  req.Description,
		Instructions: req.Instructions,
		Model:        req.Model,
		Tools:        req.Tools,
		ShouldUse:    req.ShouldUse,
		Priority:     req.Priority,
		Role:         agent.Role(req.Role),
		Extensions:   req.Extensions,
	}
}

func toAgentResponse(def *agent.Definition) AgentResponse {
	return AgentResponse{
		Name:         def.Name,
		Description:  def.Description,
		Instructions: def.Instructions,
		Model:        def.Model,
		Tools:        def.Tools,
		ShouldUse:    def.ShouldUse,
		Priority:     def.EffectivePriority(),
		Role:         string(def.Role),
		Extensions:   def.Extensions,
	}
}

// **** Route registration ****

func (g *Gateway) registerAgentRoutes() {
	g.group.Get("/agents", g.handleAgentList,
		okapi.DocSummary("List configured agents"),
		okapi.DocTags("Agents"),
		okapi.DocResponse([]AgentResponse{}),
	)
	g.group.Get("/agents/{name}", g.handleAgentGet,
		okapi.DocSummary("Get an agent by name"),
		okapi.DocTags("Agents"),
		okapi.DocPathParam("name", "string", "Agent name"),
		okapi.DocResponse(AgentResponse{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Post("/agents", g.handleAgentCreate,
		okapi.DocSummary("Create an agent"),
		okapi.DocTags("Agents"),
		okapi.DocRequestBody(AgentRequest{}),
		okapi.DocResponse(AgentResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusConflict, ErrorBody{}),
	)
	g.group.Put("/agents/{name}", g.handleAgentUpdate,
		okapi.DocSummary("Replace an agent definition"),
		okapi.DocTags("Agents"),
		okapi.DocPathParam("name", "string", "Agent name"),
		okapi.DocRequestBody(AgentRequest{}),
		okapi.DocResponse(AgentResponse{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Delete("/agents/{name}", g.handleAgentDelete,
		okapi.DocSummary("Delete an agent"),
		okapi.DocTags("Agents"),
		okapi.DocPathParam("name", "string", "Agent name"),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Post("/agents/reload", g.handleAgentReload,
		okapi.DocSummary("Reload the agent catalog from the configuration store"),
		okapi.DocTags("Agents"),
	)
}

// **** Handlers ****

func (g *Gateway) handleAgentList(c *okapi.Context) error {
	defs := g.registry.List()
	resp := make([]AgentResponse, len(defs))
	for i, def := range defs {
		resp[i] = toAgentResponse(def)
	}
	return c.OK(resp)
}

func (g *Gateway) handleAgentGet(c *okapi.Context) error {
	def, ok := g.registry.Get(c.Param("name"))
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "agent not found"})
	}
	return c.OK(toAgentResponse(def))
}

func (g *Gateway) handleAgentCreate(c *okapi.Context) error {
	var req AgentRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}

	def := toAgentDefinition(req)
	if err := def.Validate(); err != nil {
		return c.AbortBadRequest(err.Error())
	}
	if err := g.registry.Create(c.Context(), def); err != nil {
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	}

	g.logger.Info("agent created", slog.String("agent", def.Name))
	return c.JSON(http.StatusCreated, toAgentResponse(&def))
}

func (g *Gateway) handleAgentUpdate(c *okapi.Context) error {
	var req AgentRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	req.Name = c.Param("name")

	def := toAgentDefinition(req)
	if err := g.registry.Update(c.Context(), def); err != nil {
		if errors.Is(err, agent.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "agent not found"})
		}
		return c.AbortBadRequest(err.Error())
	}

	g.logger.Info("agent updated", slog.String("agent", def.Name))
	return c.OK(toAgentResponse(&def))
}

func (g *Gateway) handleAgentDelete(c *okapi.Context) error {
	name := c.Param("name")
	if err := g.registry.Delete(c.Context(), name); err != nil {
		if errors.Is(err, agent.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "agent not found"})
		}
		g.logger.Error("agent deletion failed", slog.String("agent", name), slog.String("error", err.Error()))
		return c.AbortInternalServerError("failed to delete agent")
	}

	g.logger.Info("agent deleted", slog.String("agent", name))
	return c.OK(map[string]string{"status": "deleted"})
}

func (g *Gateway) handleAgentReload(c *okapi.Context) error {
	if err := g.registry.Reload(c.Context()); err != nil {
		g.logger.Error("agent reload failed", slog.String("error", err.Error()))
		return c.AbortInternalServerError("failed to reload agents")
	}
	return c.OK(map[string]any{"status": "reloaded", "agents": g.registry.Count()})
}
