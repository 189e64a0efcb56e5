package service

import (
	"errors"

	"connectrpc.com/connect"

	"github.com/hamori-app/hamori/internal/models"
	"github.com/hamori-app/hamori/internal/ranking"
	"github.com/hamori-app/hamori/internal/recommend"
	"github.com/hamori-app/hamori/internal/storage"
	"github.com/hamori-app/hamori/pkg/api"
)

// storeError maps storage failures to connect codes.
func storeError(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return connect.NewError(connect.CodeNotFound, err)
	}
	return connect.NewError(connect.CodeInternal, err)
}

func toAPIGroup(g *models.Group) *api.Group {
	members := make([]*api.Member, len(g.Members))
	for i, m := range g.Members {
		members[i] = &api.Member{Id: m.ID, DisplayName: m.DisplayName, AvatarRef: m.AvatarRef}
	}
	return &api.Group{
		Id:        g.ID,
		Name:      g.Name,
		Color:     g.Color,
		Image:     g.Image,
		Members:   members,
		CreatedAt: g.CreatedAt,
		CreatedBy: g.CreatedBy,
	}
}

func fromAPIMembers(in []*api.Member) []models.GroupMember {
	members := make([]models.GroupMember, 0, len(in))
	for _, m := range in {
		if m == nil {
			continue
		}
		members = append(members, models.GroupMember{ID: m.Id, DisplayName: m.DisplayName, AvatarRef: m.AvatarRef})
	}
	return members
}

func toAPITags(tags []models.Tag) []*api.Tag {
	out := make([]*api.Tag, len(tags))
	for i, t := range tags {
		out[i] = &api.Tag{Label: t.Label, Description: t.Description}
	}
	return out
}

func fromAPITags(in []*api.Tag) []models.Tag {
	out := make([]models.Tag, 0, len(in))
	for _, t := range in {
		if t == nil {
			continue
		}
		out = append(out, models.Tag{Label: t.Label, Description: t.Description})
	}
	return out
}

func tagDescriptions(tags []models.Tag) map[string]string {
	m := make(map[string]string, len(tags))
	for _, t := range tags {
		m[t.Label] = t.Description
	}
	return m
}

func int32Ptr(v *int) *int32 {
	if v == nil {
		return nil
	}
	n := int32(*v)
	return &n
}

// PhotoLinker renders provider photo references as fetchable URLs.
type PhotoLinker interface {
	PhotoURL(photoRef string, maxWidth int) string
}

// DirectionsLinker builds a map link for a venue.
type DirectionsLinker func(name, address string) string

type restaurantRenderer struct {
	photos     PhotoLinker
	directions DirectionsLinker
	photoWidth int
}

func (r restaurantRenderer) restaurant(c models.Candidate, score float64) *api.Restaurant {
	out := &api.Restaurant{
		Id:          c.ID,
		Name:        c.Name,
		Address:     c.Address,
		Rating:      c.Rating,
		ReviewCount: int32Ptr(c.ReviewCount),
		PriceLevel:  int32Ptr(c.PriceLevel),
		PriceLabel:  c.PriceLabel(),
		IsOpenNow:   c.IsOpenNow,
		Score:       score,
	}
	if r.photos != nil && c.HasPhoto() {
		out.PhotoUrl = r.photos.PhotoURL(c.PhotoRef, r.photoWidth)
	}
	if r.directions != nil {
		out.DirectionsUrl = r.directions(c.Name, c.Address)
	}
	return out
}

func (r restaurantRenderer) result(res recommend.Result) *api.RecommendResponse {
	out := &api.RecommendResponse{
		Keyword:     res.Keyword,
		Restaurants: make([]*api.Restaurant, len(res.Ranked)),
		Fallback:    res.Fallback,
	}
	for i, s := range res.Ranked {
		out.Restaurants[i] = r.restaurant(s.Candidate, s.Score)
	}
	if res.HasBest {
		out.Best = r.restaurant(res.Best, ranking.Score(res.Best))
	}
	return out
}
