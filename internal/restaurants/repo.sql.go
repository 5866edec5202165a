package restaurants

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eatthat/eatthat/internal/shared"
)

// PGRepository provides PostgreSQL backed persistence for restaurants.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

const restaurantColumns = `id, uuid, name, profile_text, profile_image_url, profile_video_url, created_at, updated_at`

// CreateRestaurant inserts a restaurant row.
func (r *PGRepository) CreateRestaurant(ctx context.Context, params CreateRestaurantParams) (Restaurant, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO restaurants (uuid, name, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		RETURNING `+restaurantColumns, params.UUID, params.Name)
	return scanRestaurant(row)
}

// FindByID fetches one live restaurant.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (Restaurant, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+restaurantColumns+`
		FROM restaurants
		WHERE id = $1 AND deleted_at IS NULL`, id)
	rest, err := scanRestaurant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Restaurant{}, fmt.Errorf("restaurants: id %d: %w", id, shared.ErrNotFound)
		}
		return Restaurant{}, err
	}
	return rest, nil
}

// RestaurantUUID returns the uuid of a live restaurant.
func (r *PGRepository) RestaurantUUID(ctx context.Context, id int64) (string, error) {
	var restaurantUUID string
	err := r.pool.QueryRow(ctx, `
		SELECT uuid FROM restaurants
		WHERE id = $1 AND deleted_at IS NULL`, id).Scan(&restaurantUUID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("restaurants: id %d: %w", id, shared.ErrNotFound)
		}
		return "", err
	}
	return restaurantUUID, nil
}

// ListRestaurants pages through live restaurants ordered by name.
func (r *PGRepository) ListRestaurants(ctx context.Context, limit, offset int) ([]Restaurant, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM restaurants WHERE deleted_at IS NULL`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+restaurantColumns+`
		FROM restaurants
		WHERE deleted_at IS NULL
		ORDER BY name, id
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	rests := []Restaurant{}
	for rows.Next() {
		rest, err := scanRestaurant(rows)
		if err != nil {
			return nil, 0, err
		}
		rests = append(rests, rest)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return rests, total, nil
}

// SoftDeleteRestaurant marks a restaurant deleted.
func (r *PGRepository) SoftDeleteRestaurant(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE restaurants SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("restaurants: id %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (r *PGRepository) updateProfileColumn(ctx context.Context, id int64, column, value string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE restaurants SET `+column+` = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id, value)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("restaurants: id %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

// UpdateProfileText replaces the profile text.
func (r *PGRepository) UpdateProfileText(ctx context.Context, id int64, text string) error {
	return r.updateProfileColumn(ctx, id, "profile_text", text)
}

// UpdateProfileImage replaces the profile image URL.
func (r *PGRepository) UpdateProfileImage(ctx context.Context, id int64, imageURL string) error {
	return r.updateProfileColumn(ctx, id, "profile_image_url", imageURL)
}

// UpdateProfileVideo replaces the profile video URL.
func (r *PGRepository) UpdateProfileVideo(ctx context.Context, id int64, videoURL string) error {
	return r.updateProfileColumn(ctx, id, "profile_video_url", videoURL)
}

// AttachUser links a user to the restaurant, reviving a removed membership.
func (r *PGRepository) AttachUser(ctx context.Context, restaurantID, userID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO restaurant_has_users (restaurant_id, user_id, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (restaurant_id, user_id)
		DO UPDATE SET deleted_at = NULL, updated_at = NOW()`, restaurantID, userID)
	return err
}

// DetachUser soft-deletes the membership pivot.
func (r *PGRepository) DetachUser(ctx context.Context, restaurantID, userID int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE restaurant_has_users SET deleted_at = NOW(), updated_at = NOW()
		WHERE restaurant_id = $1 AND user_id = $2 AND deleted_at IS NULL`, restaurantID, userID)
	return err
}

// HasUser reports whether the user is a live member of the restaurant.
func (r *PGRepository) HasUser(ctx context.Context, restaurantID, userID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM restaurant_has_users
			WHERE restaurant_id = $1 AND user_id = $2 AND deleted_at IS NULL
		)`, restaurantID, userID).Scan(&exists)
	return exists, err
}

// HasPost reports whether the restaurant has at least one live post.
func (r *PGRepository) HasPost(ctx context.Context, restaurantID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM posts
			WHERE restaurant_id = $1 AND deleted_at IS NULL
		)`, restaurantID).Scan(&exists)
	return exists, err
}

// CreatePost inserts a post row.
func (r *PGRepository) CreatePost(ctx context.Context, params CreatePostParams) (Post, error) {
	var post Post
	var createdAt pgtype.Timestamptz
	err := r.pool.QueryRow(ctx, `
		INSERT INTO posts (uuid, restaurant_id, author_id, body, sponsored, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING id, uuid, restaurant_id, author_id, body, sponsored, created_at`,
		params.UUID, params.RestaurantID, params.AuthorID, params.Body, params.Sponsored).
		Scan(&post.ID, &post.UUID, &post.RestaurantID, &post.AuthorID, &post.Body, &post.Sponsored, &createdAt)
	if err != nil {
		return Post{}, err
	}
	post.CreatedAt = createdAt.Time
	return post, nil
}

// ListPosts pages through a restaurant's live posts, newest first.
func (r *PGRepository) ListPosts(ctx context.Context, restaurantID int64, limit, offset int) ([]Post, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM posts WHERE restaurant_id = $1 AND deleted_at IS NULL`, restaurantID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, uuid, restaurant_id, author_id, body, sponsored, created_at
		FROM posts
		WHERE restaurant_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, restaurantID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	posts := []Post{}
	for rows.Next() {
		var post Post
		var createdAt pgtype.Timestamptz
		if err := rows.Scan(&post.ID, &post.UUID, &post.RestaurantID, &post.AuthorID, &post.Body, &post.Sponsored, &createdAt); err != nil {
			return nil, 0, err
		}
		post.CreatedAt = createdAt.Time
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

func scanRestaurant(row pgx.Row) (Restaurant, error) {
	var rest Restaurant
	var text, imageURL, videoURL pgtype.Text
	var createdAt, updatedAt pgtype.Timestamptz
	if err := row.Scan(&rest.ID, &rest.UUID, &rest.Name, &text, &imageURL, &videoURL, &createdAt, &updatedAt); err != nil {
		return Restaurant{}, err
	}
	rest.Profile = Profile{Text: text.String, ImageURL: imageURL.String, VideoURL: videoURL.String}
	rest.CreatedAt = createdAt.Time
	rest.UpdatedAt = updatedAt.Time
	return rest, nil
}
