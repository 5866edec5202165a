package restaurants

import (
	"context"
	"fmt"
	"io"
	"sort"
	"testing"
	"time"

	"log/slog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eatthat/eatthat/internal/shared"
)

type membership struct {
	restaurantID int64
	userID       int64
	deleted      bool
}

type mockRepo struct {
	seq         int64
	restaurants map[int64]Restaurant
	members     []*membership
	posts       map[int64]Post
}

func newMockRepo() *mockRepo {
	return &mockRepo{restaurants: map[int64]Restaurant{}, posts: map[int64]Post{}}
}

func (m *mockRepo) CreateRestaurant(ctx context.Context, params CreateRestaurantParams) (Restaurant, error) {
	m.seq++
	rest := Restaurant{ID: m.seq, UUID: params.UUID, Name: params.Name, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	m.restaurants[rest.ID] = rest
	return rest, nil
}

func (m *mockRepo) FindByID(ctx context.Context, id int64) (Restaurant, error) {
	rest, ok := m.restaurants[id]
	if !ok {
		return Restaurant{}, fmt.Errorf("restaurants: id %d: %w", id, shared.ErrNotFound)
	}
	return rest, nil
}

func (m *mockRepo) ListRestaurants(ctx context.Context, limit, offset int) ([]Restaurant, int, error) {
	ids := make([]int64, 0, len(m.restaurants))
	for id := range m.restaurants {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return m.restaurants[ids[i]].Name < m.restaurants[ids[j]].Name })
	out := []Restaurant{}
	for i := offset; i < len(ids) && len(out) < limit; i++ {
		out = append(out, m.restaurants[ids[i]])
	}
	return out, len(ids), nil
}

func (m *mockRepo) SoftDeleteRestaurant(ctx context.Context, id int64) error {
	if _, ok := m.restaurants[id]; !ok {
		return fmt.Errorf("restaurants: id %d: %w", id, shared.ErrNotFound)
	}
	delete(m.restaurants, id)
	return nil
}

func (m *mockRepo) updateProfile(id int64, apply func(*Profile)) error {
	rest, ok := m.restaurants[id]
	if !ok {
		return fmt.Errorf("restaurants: id %d: %w", id, shared.ErrNotFound)
	}
	apply(&rest.Profile)
	m.restaurants[id] = rest
	return nil
}

func (m *mockRepo) UpdateProfileText(ctx context.Context, id int64, text string) error {
	return m.updateProfile(id, func(p *Profile) { p.Text = text })
}

func (m *mockRepo) UpdateProfileImage(ctx context.Context, id int64, imageURL string) error {
	return m.updateProfile(id, func(p *Profile) { p.ImageURL = imageURL })
}

func (m *mockRepo) UpdateProfileVideo(ctx context.Context, id int64, videoURL string) error {
	return m.updateProfile(id, func(p *Profile) { p.VideoURL = videoURL })
}

func (m *mockRepo) AttachUser(ctx context.Context, restaurantID, userID int64) error {
	for _, mem := range m.members {
		if mem.restaurantID == restaurantID && mem.userID == userID {
			mem.deleted = false
			return nil
		}
	}
	m.members = append(m.members, &membership{restaurantID: restaurantID, userID: userID})
	return nil
}

func (m *mockRepo) DetachUser(ctx context.Context, restaurantID, userID int64) error {
	for _, mem := range m.members {
		if mem.restaurantID == restaurantID && mem.userID == userID {
			mem.deleted = true
		}
	}
	return nil
}

func (m *mockRepo) HasUser(ctx context.Context, restaurantID, userID int64) (bool, error) {
	for _, mem := range m.members {
		if mem.restaurantID == restaurantID && mem.userID == userID && !mem.deleted {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepo) HasPost(ctx context.Context, restaurantID int64) (bool, error) {
	for _, post := range m.posts {
		if post.RestaurantID == restaurantID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepo) CreatePost(ctx context.Context, params CreatePostParams) (Post, error) {
	m.seq++
	post := Post{
		ID:           m.seq,
		UUID:         params.UUID,
		RestaurantID: params.RestaurantID,
		AuthorID:     params.AuthorID,
		Body:         params.Body,
		Sponsored:    params.Sponsored,
		CreatedAt:    time.Now(),
	}
	m.posts[post.ID] = post
	return post, nil
}

func (m *mockRepo) ListPosts(ctx context.Context, restaurantID int64, limit, offset int) ([]Post, int, error) {
	ids := make([]int64, 0, len(m.posts))
	for id, post := range m.posts {
		if post.RestaurantID == restaurantID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	out := []Post{}
	for i := offset; i < len(ids) && len(out) < limit; i++ {
		out = append(out, m.posts[ids[i]])
	}
	return out, len(ids), nil
}

var _ Repository = (*mockRepo)(nil)

func newTestService() (*Service, *mockRepo) {
	repo := newMockRepo()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, logger), repo
}

func TestCreateStampsUUID(t *testing.T) {
	svc, _ := newTestService()

	rest, err := svc.Create(context.Background(), "Casa Nonna")
	require.NoError(t, err)
	assert.NotEmpty(t, rest.UUID)
	assert.Equal(t, "Casa Nonna", rest.Name)
}

func TestProfileUpdatesUnknownRestaurant(t *testing.T) {
	svc, _ := newTestService()

	err := svc.UpdateProfileText(context.Background(), 99, "hello")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestMembershipAttachDetach(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	rest, err := svc.Create(ctx, "Golden Wok")
	require.NoError(t, err)

	require.NoError(t, svc.AddMember(ctx, rest.ID, 7))
	ok, err := repo.HasUser(ctx, rest.ID, 7)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, svc.RemoveMember(ctx, rest.ID, 7))
	ok, err = repo.HasUser(ctx, rest.ID, 7)
	require.NoError(t, err)
	assert.False(t, ok)

	// Re-adding revives the same membership row.
	require.NoError(t, svc.AddMember(ctx, rest.ID, 7))
	ok, err = repo.HasUser(ctx, rest.ID, 7)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, repo.members, 1)
}

func TestCreatePostStampsAndLists(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	rest, err := svc.Create(ctx, "Brasserie")
	require.NoError(t, err)

	has, err := repo.HasPost(ctx, rest.ID)
	require.NoError(t, err)
	assert.False(t, has)

	post, err := svc.CreatePost(ctx, rest.ID, 3, "opening night", true)
	require.NoError(t, err)
	assert.NotEmpty(t, post.UUID)
	assert.True(t, post.Sponsored)

	has, err = repo.HasPost(ctx, rest.ID)
	require.NoError(t, err)
	assert.True(t, has)

	posts, pagination, err := svc.ListPosts(ctx, rest.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, 1, pagination.Total)
}

func TestListPaginates(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	for _, name := range []string{"Alpha", "Bravo", "Charlie"} {
		_, err := svc.Create(ctx, name)
		require.NoError(t, err)
	}

	rests, pagination, err := svc.List(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, rests, 1)
	assert.Equal(t, "Charlie", rests[0].Name)
	assert.Equal(t, 3, pagination.Total)
	assert.Equal(t, 2, pagination.TotalPages)
}
