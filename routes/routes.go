package routes

import (
	"github.com/gin-gonic/gin"

	"groupdrive/middleware"
	"groupdrive/services"
	"groupdrive/utils"
)

// ServiceContainer holds all services and dependencies the routes need.
type ServiceContainer struct {
	NodeService       *services.NodeService
	ShareService      *services.ShareService
	TrashService      *services.TrashService
	Propagator        *services.Propagator
	MembershipService *services.MembershipService
	Verifier          utils.TokenVerifier
	RateLimiter       *middleware.RateLimiter
	MaxFileSize       int64
}

// NewServiceContainer wires the services over one node service. Membership
// may be nil when every token carries its group claim.
func NewServiceContainer(nodes *services.NodeService, propagator *services.Propagator, trash *services.TrashService, membership *services.MembershipService, verifier utils.TokenVerifier, limiter *middleware.RateLimiter, maxFileSize int64) *ServiceContainer {
	return &ServiceContainer{
		NodeService:       nodes,
		ShareService:      services.NewShareService(nodes, propagator, services.NewPermissionService()),
		TrashService:      trash,
		Propagator:        propagator,
		MembershipService: membership,
		Verifier:          verifier,
		RateLimiter:       limiter,
		MaxFileSize:       maxFileSize,
	}
}

// SetupRoutesWithContainer registers every authenticated API route on api.
func SetupRoutesWithContainer(api *gin.RouterGroup, container *ServiceContainer) {
	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(container.Verifier, container.MembershipService))
	if container.RateLimiter != nil {
		protected.Use(container.RateLimiter.Middleware())
	}

	RegisterFolderRoutes(protected, container)
	RegisterFileRoutes(protected, container)
	RegisterTrashRoutes(protected, container)
	RegisterAdminRoutes(protected, container)
}
