package api

import (
	"fmt"
	"net/http"

	"github.com/cyverse-de/hub-gateway/client/hub"
	"github.com/cyverse-de/hub-gateway/logging"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

var log = logging.Log.WithFields(logrus.Fields{"package": "api"})

// Handler holds the gateway's routes. Every route makes exactly one hub
// client call and maps its outcome to a response; nothing is cached or
// retried here.
type Handler struct {
	hub *hub.HubClient
}

func NewHandler(hubClient *hub.HubClient) *Handler {
	return &Handler{hub: hubClient}
}

// Request bodies. Malformed or incomplete bodies are rejected by the binding
// validator before any hub call is made.

type CreateUserRequest struct {
	Name  string `json:"name" binding:"required"`
	Admin bool   `json:"admin"`
}

type ModifyUserRequest struct {
	Admin *bool `json:"admin"`
}

type CreateGroupRequest struct {
	Name  string   `json:"name" binding:"required"`
	Users []string `json:"users"`
}

type AddGroupMemberRequest struct {
	Username string `json:"username" binding:"required"`
}

// Roles and scopes are accepted here but not forwarded to the hub; see
// DESIGN.md.
type CreateTokenRequest struct {
	Note      string   `json:"note"`
	ExpiresIn int      `json:"expires_in" binding:"omitempty,gt=0"`
	Roles     []string `json:"roles"`
	Scopes    []string `json:"scopes"`
}

type ActivityRequest struct {
	Servers []string `json:"servers"`
}

type StartServerRequest struct {
	Options map[string]any `json:"options"`
}

// Health & info

func (h *Handler) GetHealth(c *gin.Context) {
	// GetHealth degrades instead of failing, so this route always answers 200.
	c.JSON(http.StatusOK, h.hub.GetHealth(c.Request.Context()))
}

func (h *Handler) GetInfo(c *gin.Context) {
	info, err := h.hub.GetInfo(c.Request.Context())
	if err != nil {
		respondUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// Users

func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.hub.ListUsers(c.Request.Context())
	if err != nil {
		respondUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

// GetUser is the one route that translates hub failures: any failure at all
// becomes a 404 naming the requested user. Other lookup routes deliberately
// do not do this.
func (h *Handler) GetUser(c *gin.Context) {
	username := c.Param("username")

	user, err := h.hub.GetUser(c.Request.Context(), username)
	if err != nil {
		respondError(c, http.StatusNotFound, fmt.Sprintf("user %s not found", username))
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.hub.CreateUser(c.Request.Context(), req.Name, req.Admin)
	if err != nil {
		respondUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *Handler) DeleteUser(c *gin.Context) {
	_, err := h.hub.DeleteUser(c.Request.Context(), c.Param("username"))
	if err != nil {
		respondUpstreamError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ModifyUser(c *gin.Context) {
	var req ModifyUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.hub.ModifyUser(c.Request.Context(), c.Param("username"), req.Admin)
	if err != nil {
		respondUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// Servers

func (h *Handler) ListUserServers(c *gin.Context) {
	servers, err := h.hub.ListServers(c.Request.Context(), c.Param("username"))
	if err != nil {
		respondUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, servers)
}

func (h *Handler) GetServer(c *gin.Context) {
	server, err := h.hub.GetServer(c.Request.Context(), c.Param("username"), c.Param("server"))
	if err != nil {
		respondUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, server)
}

func (h *Handler) StartServer(c *gin.Context) {
	var req StartServerRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, err.Error())
			return
		}
	}

	result, err := h.hub.StartServer(c.Request.Context(), c.Param("username"), c.Param("server"), req.Options)
	if err != nil {
		respondUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// StopServer answers 202: the hub tears the server down asynchronously, so
// acceptance is all that can be reported.
func (h *Handler) StopServer(c *gin.Context) {
	result, err := h.hub.StopServer(c.Request.Context(), c.Param("username"), c.Param("server"))
	if err != nil {
		respondUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, result)
}

func (h *Handler) PostActivity(c *gin.Context) {
	var req ActivityRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, err.Error())
			return
		}
	}

	result, err := h.hub.PostActivity(c.Request.Context(), c.Param("username"), req.Servers)
	if err != nil {
		respondUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Groups

func (h *Handler) ListGroups(c *gin.Context) {
	groups, err := h.hub.ListGroups(c.Request.Context())
	if err != nil {
		respondUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, groups)
}

func (h *Handler) GetGroup(c *gin.Context) {
	group, err := h.hub.GetGroup(c.Request.Context(), c.Param("group"))
	if err != nil {
		respondUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

func (h *Handler) CreateGroup(c *gin.Context) {
	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	group, err := h.hub.CreateGroup(c.Request.Context(), req.Name, req.Users)
	if err != nil {
		respondUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusCreated, group)
}

func (h *Handler) DeleteGroup(c *gin.Context) {
	_, err := h.hub.DeleteGroup(c.Request.Context(), c.Param("group"))
	if err != nil {
		respondUpstreamError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) AddGroupMember(c *gin.Context) {
	var req AddGroupMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	group, err := h.hub.AddGroupMember(c.Request.Context(), c.Param("group"), req.Username)
	if err != nil {
		respondUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

func (h *Handler) RemoveGroupMember(c *gin.Context) {
	_, err := h.hub.RemoveGroupMember(c.Request.Context(), c.Param("group"), c.Param("username"))
	if err != nil {
		respondUpstreamError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Services

func (h *Handler) ListServices(c *gin.Context) {
	services, err := h.hub.ListServices(c.Request.Context())
	if err != nil {
		respondUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, services)
}

func (h *Handler) GetService(c *gin.Context) {
	service, err := h.hub.GetService(c.Request.Context(), c.Param("service"))
	if err != nil {
		respondUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, service)
}

// Tokens

func (h *Handler) ListTokens(c *gin.Context) {
	tokens, err := h.hub.ListTokens(c.Request.Context())
	if err != nil {
		respondUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokens)
}

func (h *Handler) GetToken(c *gin.Context) {
	token, err := h.hub.GetToken(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, token)
}

func (h *Handler) CreateToken(c *gin.Context) {
	var req CreateTokenRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, err.Error())
			return
		}
	}

	token, err := h.hub.CreateToken(c.Request.Context(), c.Param("username"), req.Note, req.ExpiresIn)
	if err != nil {
		respondUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusCreated, token)
}

func (h *Handler) DeleteToken(c *gin.Context) {
	_, err := h.hub.DeleteToken(c.Request.Context(), c.Param("username"), c.Param("id"))
	if err != nil {
		respondUpstreamError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Admin

func (h *Handler) ShutdownHub(c *gin.Context) {
	result, err := h.hub.Shutdown(c.Request.Context())
	if err != nil {
		respondUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) GetProxyInfo(c *gin.Context) {
	result, err := h.hub.GetProxy(c.Request.Context())
	if err != nil {
		respondUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) CullServers(c *gin.Context) {
	result, err := h.hub.CullServers(c.Request.Context())
	if err != nil {
		respondUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
