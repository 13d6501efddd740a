package api

import "github.com/gin-gonic/gin"

// RegisterRoutes wires every gateway route onto the router. Server start and
// stop are registered both with and without a server name; the bare form
// addresses the user's default (unnamed) server.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.GetHealth)
	router.GET("/info", h.GetInfo)

	router.GET("/users", h.ListUsers)
	router.POST("/users", h.CreateUser)
	router.GET("/users/:username", h.GetUser)
	router.PATCH("/users/:username", h.ModifyUser)
	router.DELETE("/users/:username", h.DeleteUser)

	router.GET("/users/:username/servers", h.ListUserServers)
	router.POST("/users/:username/servers", h.StartServer)
	router.DELETE("/users/:username/servers", h.StopServer)
	router.GET("/users/:username/servers/:server", h.GetServer)
	router.POST("/users/:username/servers/:server", h.StartServer)
	router.DELETE("/users/:username/servers/:server", h.StopServer)

	router.POST("/users/:username/activity", h.PostActivity)

	router.GET("/groups", h.ListGroups)
	router.POST("/groups", h.CreateGroup)
	router.GET("/groups/:group", h.GetGroup)
	router.DELETE("/groups/:group", h.DeleteGroup)
	router.POST("/groups/:group/users", h.AddGroupMember)
	router.DELETE("/groups/:group/users/:username", h.RemoveGroupMember)

	router.GET("/services", h.ListServices)
	router.GET("/services/:service", h.GetService)

	router.GET("/tokens", h.ListTokens)
	router.GET("/tokens/:id", h.GetToken)
	router.POST("/users/:username/tokens", h.CreateToken)
	router.DELETE("/users/:username/tokens/:id", h.DeleteToken)

	router.POST("/admin/shutdown", h.ShutdownHub)
	router.GET("/admin/proxy", h.GetProxyInfo)
	router.POST("/admin/cull", h.CullServers)
}
