package rbac

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/eatthat/eatthat/internal/platform/httpx"
	"github.com/eatthat/eatthat/internal/shared"
	"github.com/eatthat/eatthat/internal/tenant"
)

// Handler exposes the role and permission administration API. All routes sit
// behind the admin gate.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	mw        Middleware
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw Middleware) *Handler {
	return &Handler{logger: logger, service: service, mw: mw, validator: validator.New()}
}

// MountRoutes registers administration routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireGate(GateAdmin))
		r.Route("/roles", func(r chi.Router) {
			r.Get("/", h.listRoles)
			r.Post("/", h.createRole)
			r.Delete("/{roleID}", h.deleteRole)
			r.Post("/{roleID}/permissions", h.attachPermission)
			r.Delete("/{roleID}/permissions/{permissionID}", h.revokePermission)
		})
		r.Route("/permissions", func(r chi.Router) {
			r.Get("/", h.listPermissions)
			r.Post("/", h.createPermission)
			r.Delete("/{permissionID}", h.deletePermission)
		})
		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/permissions", h.listUserPermissions)
			r.Post("/roles", h.assignRoles)
			r.Delete("/roles/{roleID}", h.removeRole)
			r.Post("/permissions", h.grantPermissions)
		})
	})
}

type roleResponse struct {
	ID             int64   `json:"id"`
	UUID           string  `json:"uuid"`
	Name           string  `json:"name"`
	RestaurantID   *int64  `json:"restaurant_id"`
	RestaurantUUID *string `json:"restaurant_uuid"`
	CreatedAt      string  `json:"created_at"`
}

type permissionResponse struct {
	ID   int64  `json:"id"`
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

func toRoleResponse(role Role) roleResponse {
	return roleResponse{
		ID:             role.ID,
		UUID:           role.UUID,
		Name:           role.Name,
		RestaurantID:   role.RestaurantID,
		RestaurantUUID: role.RestaurantUUID,
		CreatedAt:      role.CreatedAt.Format(time.RFC3339),
	}
}

func toPermissionResponses(perms []Permission) []permissionResponse {
	out := make([]permissionResponse, 0, len(perms))
	for _, perm := range perms {
		out = append(out, permissionResponse{ID: perm.ID, UUID: perm.UUID, Name: perm.Name})
	}
	return out
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	roles, pagination, err := h.service.ListRoles(r.Context(), requestScope(r), page, perPage)
	if err != nil {
		h.fail(w, "list roles", err)
		return
	}
	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, toRoleResponse(role))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": out, "pagination": pagination})
}

type createRoleRequest struct {
	Name           string `json:"name" validate:"required,min=2,max=100"`
	RestaurantID   *int64 `json:"restaurant_id"`
	RestaurantUUID string `json:"restaurant_uuid"`
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if !h.bind(w, r, &req) {
		return
	}
	scope := requestScope(r)
	if req.RestaurantID != nil {
		scope = tenant.ForRestaurant(*req.RestaurantID, req.RestaurantUUID)
	}
	role, err := h.service.FindOrCreateRole(r.Context(), scope, req.Name)
	if err != nil {
		h.fail(w, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleResponse(role))
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	if err := h.service.DeleteRole(r.Context(), id); err != nil {
		h.fail(w, "delete role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	perms, pagination, err := h.service.ListPermissions(r.Context(), page, perPage)
	if err != nil {
		h.fail(w, "list permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": toPermissionResponses(perms), "pagination": pagination})
}

type createPermissionRequest struct {
	Name string `json:"name" validate:"required,min=2,max=100"`
}

func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	var req createPermissionRequest
	if !h.bind(w, r, &req) {
		return
	}
	perm, err := h.service.FindOrCreatePermission(r.Context(), req.Name)
	if err != nil {
		h.fail(w, "create permission", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, permissionResponse{ID: perm.ID, UUID: perm.UUID, Name: perm.Name})
}

func (h *Handler) deletePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "permissionID")
	if !ok {
		return
	}
	if err := h.service.DeletePermission(r.Context(), id); err != nil {
		h.fail(w, "delete permission", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type attachPermissionRequest struct {
	Permission   string `json:"permission" validate:"required_without=PermissionID"`
	PermissionID int64  `json:"permission_id"`
}

func (req attachPermissionRequest) ref() PermissionRef {
	if req.Permission != "" {
		return PermissionNamed(req.Permission)
	}
	return PermissionWithID(req.PermissionID)
}

func (h *Handler) attachPermission(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	var req attachPermissionRequest
	if !h.bind(w, r, &req) {
		return
	}
	role, err := h.service.FindRoleByID(r.Context(), requestScope(r), roleID)
	if err != nil {
		h.fail(w, "attach permission", err)
		return
	}
	if err := h.service.AttachPermission(r.Context(), role, req.ref()); err != nil {
		h.fail(w, "attach permission", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revokePermission(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	permissionID, ok := h.pathID(w, r, "permissionID")
	if !ok {
		return
	}
	if err := h.service.RevokePermissionFromRole(r.Context(), roleID, permissionID); err != nil {
		h.fail(w, "revoke permission", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type assignRolesRequest struct {
	Roles          []string `json:"roles" validate:"required,min=1,dive,required"`
	RestaurantID   *int64   `json:"restaurant_id"`
	RestaurantUUID string   `json:"restaurant_uuid"`
}

func (h *Handler) assignRoles(w http.ResponseWriter, r *http.Request) {
	member, ok := h.pathMember(w, r)
	if !ok {
		return
	}
	var req assignRolesRequest
	if !h.bind(w, r, &req) {
		return
	}
	scope := requestScope(r)
	if req.RestaurantID != nil {
		scope = tenant.ForRestaurant(*req.RestaurantID, req.RestaurantUUID)
	}
	refs := make([]RoleRef, 0, len(req.Roles))
	for _, name := range req.Roles {
		refs = append(refs, RoleNamed(name))
	}
	if err := h.service.AssignRoles(r.Context(), scope, member, refs...); err != nil {
		h.fail(w, "assign roles", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	member, ok := h.pathMember(w, r)
	if !ok {
		return
	}
	roleID, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	if err := h.service.RemoveRole(r.Context(), requestScope(r), member, RoleWithID(roleID)); err != nil {
		h.fail(w, "remove role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type grantPermissionsRequest struct {
	Permissions    []string `json:"permissions" validate:"required,min=1,dive,required"`
	RestaurantID   *int64   `json:"restaurant_id"`
	RestaurantUUID string   `json:"restaurant_uuid"`
}

func (h *Handler) grantPermissions(w http.ResponseWriter, r *http.Request) {
	member, ok := h.pathMember(w, r)
	if !ok {
		return
	}
	var req grantPermissionsRequest
	if !h.bind(w, r, &req) {
		return
	}
	scope := requestScope(r)
	if req.RestaurantID != nil {
		scope = tenant.ForRestaurant(*req.RestaurantID, req.RestaurantUUID)
	}
	refs := make([]PermissionRef, 0, len(req.Permissions))
	for _, name := range req.Permissions {
		refs = append(refs, PermissionNamed(name))
	}
	if err := h.service.GrantPermissions(r.Context(), scope, member, refs...); err != nil {
		h.fail(w, "grant permissions", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listUserPermissions(w http.ResponseWriter, r *http.Request) {
	member, ok := h.pathMember(w, r)
	if !ok {
		return
	}
	perms, err := h.service.AllPermissions(r.Context(), requestScope(r), member)
	if err != nil {
		h.fail(w, "list user permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": toPermissionResponses(perms)})
}

func (h *Handler) bind(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable Entity", err.Error())
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid "+param)
		return 0, false
	}
	return id, true
}

func (h *Handler) pathMember(w http.ResponseWriter, r *http.Request) (Member, bool) {
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return nil, false
	}
	member, err := h.mw.Members.Member(r.Context(), userID)
	if err != nil {
		h.fail(w, "load user", err)
		return nil, false
	}
	return member, true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, ErrNotFound) || errors.Is(err, shared.ErrNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		return
	}
	h.logger.Error(op, slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", http.StatusText(http.StatusInternalServerError))
}

// requestScope reads the tenant scope established by routing middleware.
func requestScope(r *http.Request) tenant.Scope {
	return tenant.ScopeFromContext(r.Context())
}
