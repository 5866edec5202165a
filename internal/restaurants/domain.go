// Package restaurants manages restaurant tenants and their profiles.
package restaurants

import "time"

// Restaurant is the tenant boundary for roles and permission grants.
type Restaurant struct {
	ID        int64
	UUID      string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time

	Profile Profile
}

// Profile holds the presentation content a restaurant unlocks tier by tier:
// text only, text plus image, or full video.
type Profile struct {
	Text     string
	ImageURL string
	VideoURL string
}

// Post is a restaurant feed entry. Sponsored posts require the sponsored
// content unlock.
type Post struct {
	ID           int64
	UUID         string
	RestaurantID int64
	AuthorID     int64
	Body         string
	Sponsored    bool
	CreatedAt    time.Time
}
