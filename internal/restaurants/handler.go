package restaurants

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/eatthat/eatthat/internal/platform/httpx"
	"github.com/eatthat/eatthat/internal/rbac"
	"github.com/eatthat/eatthat/internal/shared"
	"github.com/eatthat/eatthat/internal/tenant"
)

type restaurantContextKey struct{}

// FromContext extracts the restaurant resolved by the routing middleware.
func FromContext(ctx context.Context) (Restaurant, bool) {
	rest, ok := ctx.Value(restaurantContextKey{}).(Restaurant)
	return rest, ok
}

// Handler exposes restaurant endpoints. Nested routes run inside the
// restaurant's tenant scope; profile and post writes sit behind the matching
// unlock gates.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	mw        rbac.Middleware
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, mw: mw, validator: validator.New()}
}

// MountRoutes registers restaurant routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireGate(rbac.GateAdmin))
		r.Post("/", h.create)
	})
	r.Route("/{restaurantID}", func(r chi.Router) {
		r.Use(h.restaurantCtx)
		r.Get("/", h.get)

		r.Group(func(r chi.Router) {
			r.Use(h.mw.RequireGate(rbac.GateAdmin))
			r.Delete("/", h.delete)
			r.Post("/members", h.addMember)
			r.Delete("/members/{userID}", h.removeMember)
		})

		r.With(h.mw.RequireGate(rbac.GateProfileTextUnlock)).
			Put("/profile/text", h.updateProfileText)
		r.With(h.mw.RequireGate(rbac.GateProfileImageUnlock)).
			Put("/profile/image", h.updateProfileImage)
		r.With(h.mw.RequireGate(rbac.GateProfileVideoUnlock)).
			Put("/profile/video", h.updateProfileVideo)

		r.With(h.mw.RequireGate(rbac.GateRestaurantHasPost)).
			Get("/posts", h.listPosts)
		r.With(h.mw.RequireGate(rbac.GateRestaurantHasUser)).
			Post("/posts", h.createPost)
		r.With(h.mw.RequireGate(rbac.GateSponsoredUnlock)).
			Post("/sponsored-posts", h.createSponsoredPost)
	})
}

// restaurantCtx resolves the restaurant and establishes its tenant scope for
// everything nested below, before any gate runs.
func (h *Handler) restaurantCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "restaurantID"), 10, 64)
		if err != nil || id <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid restaurant id")
			return
		}
		rest, err := h.service.Get(r.Context(), id)
		if err != nil {
			h.fail(w, "resolve restaurant", err)
			return
		}
		ctx := context.WithValue(r.Context(), restaurantContextKey{}, rest)
		ctx = tenant.WithScope(ctx, tenant.ForRestaurant(rest.ID, rest.UUID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type restaurantResponse struct {
	ID        int64  `json:"id"`
	UUID      string `json:"uuid"`
	Name      string `json:"name"`
	Text      string `json:"profile_text,omitempty"`
	ImageURL  string `json:"profile_image_url,omitempty"`
	VideoURL  string `json:"profile_video_url,omitempty"`
	CreatedAt string `json:"created_at"`
}

func toRestaurantResponse(rest Restaurant) restaurantResponse {
	return restaurantResponse{
		ID:        rest.ID,
		UUID:      rest.UUID,
		Name:      rest.Name,
		Text:      rest.Profile.Text,
		ImageURL:  rest.Profile.ImageURL,
		VideoURL:  rest.Profile.VideoURL,
		CreatedAt: rest.CreatedAt.Format(time.RFC3339),
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	rests, pagination, err := h.service.List(r.Context(), page, perPage)
	if err != nil {
		h.fail(w, "list restaurants", err)
		return
	}
	out := make([]restaurantResponse, 0, len(rests))
	for _, rest := range rests {
		out = append(out, toRestaurantResponse(rest))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"restaurants": out, "pagination": pagination})
}

type createRestaurantRequest struct {
	Name string `json:"name" validate:"required,min=2,max=160"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRestaurantRequest
	if !h.bind(w, r, &req) {
		return
	}
	rest, err := h.service.Create(r.Context(), req.Name)
	if err != nil {
		h.fail(w, "create restaurant", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRestaurantResponse(rest))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	rest, ok := FromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "restaurant not resolved")
		return
	}
	httpx.JSON(w, http.StatusOK, toRestaurantResponse(rest))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	rest, _ := FromContext(r.Context())
	if err := h.service.Delete(r.Context(), rest.ID); err != nil {
		h.fail(w, "delete restaurant", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type profileTextRequest struct {
	Text string `json:"text" validate:"required,max=4000"`
}

func (h *Handler) updateProfileText(w http.ResponseWriter, r *http.Request) {
	rest, _ := FromContext(r.Context())
	var req profileTextRequest
	if !h.bind(w, r, &req) {
		return
	}
	if err := h.service.UpdateProfileText(r.Context(), rest.ID, req.Text); err != nil {
		h.fail(w, "update profile text", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type profileMediaRequest struct {
	URL string `json:"url" validate:"required,url"`
}

func (h *Handler) updateProfileImage(w http.ResponseWriter, r *http.Request) {
	rest, _ := FromContext(r.Context())
	var req profileMediaRequest
	if !h.bind(w, r, &req) {
		return
	}
	if err := h.service.UpdateProfileImage(r.Context(), rest.ID, req.URL); err != nil {
		h.fail(w, "update profile image", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) updateProfileVideo(w http.ResponseWriter, r *http.Request) {
	rest, _ := FromContext(r.Context())
	var req profileMediaRequest
	if !h.bind(w, r, &req) {
		return
	}
	if err := h.service.UpdateProfileVideo(r.Context(), rest.ID, req.URL); err != nil {
		h.fail(w, "update profile video", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addMemberRequest struct {
	UserID int64 `json:"user_id" validate:"required,gt=0"`
}

func (h *Handler) addMember(w http.ResponseWriter, r *http.Request) {
	rest, _ := FromContext(r.Context())
	var req addMemberRequest
	if !h.bind(w, r, &req) {
		return
	}
	if err := h.service.AddMember(r.Context(), rest.ID, req.UserID); err != nil {
		h.fail(w, "add member", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeMember(w http.ResponseWriter, r *http.Request) {
	rest, _ := FromContext(r.Context())
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid userID")
		return
	}
	if err := h.service.RemoveMember(r.Context(), rest.ID, userID); err != nil {
		h.fail(w, "remove member", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type postResponse struct {
	ID        int64  `json:"id"`
	UUID      string `json:"uuid"`
	AuthorID  int64  `json:"author_id"`
	Body      string `json:"body"`
	Sponsored bool   `json:"sponsored"`
	CreatedAt string `json:"created_at"`
}

func (h *Handler) listPosts(w http.ResponseWriter, r *http.Request) {
	rest, _ := FromContext(r.Context())
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	posts, pagination, err := h.service.ListPosts(r.Context(), rest.ID, page, perPage)
	if err != nil {
		h.fail(w, "list posts", err)
		return
	}
	out := make([]postResponse, 0, len(posts))
	for _, post := range posts {
		out = append(out, postResponse{
			ID:        post.ID,
			UUID:      post.UUID,
			AuthorID:  post.AuthorID,
			Body:      post.Body,
			Sponsored: post.Sponsored,
			CreatedAt: post.CreatedAt.Format(time.RFC3339),
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"posts": out, "pagination": pagination})
}

type createPostRequest struct {
	Body string `json:"body" validate:"required,max=8000"`
}

func (h *Handler) createPost(w http.ResponseWriter, r *http.Request) {
	h.publishPost(w, r, false)
}

func (h *Handler) createSponsoredPost(w http.ResponseWriter, r *http.Request) {
	h.publishPost(w, r, true)
}

func (h *Handler) publishPost(w http.ResponseWriter, r *http.Request, sponsored bool) {
	rest, _ := FromContext(r.Context())
	member := rbac.MemberFromContext(r.Context())
	if member == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
		return
	}
	var req createPostRequest
	if !h.bind(w, r, &req) {
		return
	}
	post, err := h.service.CreatePost(r.Context(), rest.ID, member.HolderID(), req.Body, sponsored)
	if err != nil {
		h.fail(w, "create post", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, postResponse{
		ID:        post.ID,
		UUID:      post.UUID,
		AuthorID:  post.AuthorID,
		Body:      post.Body,
		Sponsored: post.Sponsored,
		CreatedAt: post.CreatedAt.Format(time.RFC3339),
	})
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

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, shared.ErrNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		return
	}
	h.logger.Error(op, slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", http.StatusText(http.StatusInternalServerError))
}
