package restaurants

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/eatthat/eatthat/internal/shared"
)

// Service manages restaurant tenants.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Create registers a restaurant with a fresh external uuid.
func (s *Service) Create(ctx context.Context, name string) (Restaurant, error) {
	return s.repo.CreateRestaurant(ctx, CreateRestaurantParams{UUID: uuid.NewString(), Name: name})
}

// Get fetches one restaurant.
func (s *Service) Get(ctx context.Context, id int64) (Restaurant, error) {
	return s.repo.FindByID(ctx, id)
}

// List pages through restaurants.
func (s *Service) List(ctx context.Context, page, perPage int) ([]Restaurant, shared.Pagination, error) {
	if perPage <= 0 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	rests, total, err := s.repo.ListRestaurants(ctx, perPage, (page-1)*perPage)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return rests, shared.NewPagination(page, perPage, total), nil
}

// Delete soft-deletes a restaurant.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.SoftDeleteRestaurant(ctx, id)
}

// UpdateProfileText sets the text tier of the profile.
func (s *Service) UpdateProfileText(ctx context.Context, id int64, text string) error {
	return s.repo.UpdateProfileText(ctx, id, text)
}

// UpdateProfileImage sets the image tier of the profile.
func (s *Service) UpdateProfileImage(ctx context.Context, id int64, imageURL string) error {
	return s.repo.UpdateProfileImage(ctx, id, imageURL)
}

// UpdateProfileVideo sets the video tier of the profile.
func (s *Service) UpdateProfileVideo(ctx context.Context, id int64, videoURL string) error {
	return s.repo.UpdateProfileVideo(ctx, id, videoURL)
}

// CreatePost publishes a post under the restaurant.
func (s *Service) CreatePost(ctx context.Context, restaurantID, authorID int64, body string, sponsored bool) (Post, error) {
	return s.repo.CreatePost(ctx, CreatePostParams{
		UUID:         uuid.NewString(),
		RestaurantID: restaurantID,
		AuthorID:     authorID,
		Body:         body,
		Sponsored:    sponsored,
	})
}

// ListPosts pages through the restaurant's feed.
func (s *Service) ListPosts(ctx context.Context, restaurantID int64, page, perPage int) ([]Post, shared.Pagination, error) {
	if perPage <= 0 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	posts, total, err := s.repo.ListPosts(ctx, restaurantID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return posts, shared.NewPagination(page, perPage, total), nil
}

// AddMember links a user to the restaurant.
func (s *Service) AddMember(ctx context.Context, restaurantID, userID int64) error {
	return s.repo.AttachUser(ctx, restaurantID, userID)
}

// RemoveMember unlinks a user from the restaurant.
func (s *Service) RemoveMember(ctx context.Context, restaurantID, userID int64) error {
	return s.repo.DetachUser(ctx, restaurantID, userID)
}
