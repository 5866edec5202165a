package restaurants

import "context"

// CreateRestaurantParams carries the columns written for a new restaurant.
type CreateRestaurantParams struct {
	UUID string
	Name string
}

// Repository defines persistence operations for restaurants, their member
// pivot and their posts.
type Repository interface {
	CreateRestaurant(ctx context.Context, params CreateRestaurantParams) (Restaurant, error)
	FindByID(ctx context.Context, id int64) (Restaurant, error)
	ListRestaurants(ctx context.Context, limit, offset int) ([]Restaurant, int, error)
	SoftDeleteRestaurant(ctx context.Context, id int64) error

	UpdateProfileText(ctx context.Context, id int64, text string) error
	UpdateProfileImage(ctx context.Context, id int64, imageURL string) error
	UpdateProfileVideo(ctx context.Context, id int64, videoURL string) error

	AttachUser(ctx context.Context, restaurantID, userID int64) error
	DetachUser(ctx context.Context, restaurantID, userID int64) error
	HasUser(ctx context.Context, restaurantID, userID int64) (bool, error)
	HasPost(ctx context.Context, restaurantID int64) (bool, error)

	CreatePost(ctx context.Context, params CreatePostParams) (Post, error)
	ListPosts(ctx context.Context, restaurantID int64, limit, offset int) ([]Post, int, error)
}

// CreatePostParams carries the columns written for a new post.
type CreatePostParams struct {
	UUID         string
	RestaurantID int64
	AuthorID     int64
	Body         string
	Sponsored    bool
}
