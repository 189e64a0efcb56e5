// Package recommend turns a tag set into one best restaurant plus the full
// candidate pool for browsing.
//
// Every external call has a local fallback: keyword generation falls back to
// the joined tag labels and place search falls back to DemoCandidates.
package recommend

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hamori-app/hamori/internal/metrics"
	"github.com/hamori-app/hamori/internal/models"
	"github.com/hamori-app/hamori/internal/ranking"
)

// SearchRadiusMeters is the fixed place search radius.
const SearchRadiusMeters = 1500

// ErrNoTags is returned by Recommend when the request carries no usable tag.
var ErrNoTags = errors.New("at least one tag is required")

// KeywordGenerator produces a search phrase from a prompt pair.
type KeywordGenerator interface {
	Configured() bool
	Complete(ctx context.Context, system, user string) (string, error)
}

// PlaceSearcher queries the place provider.
type PlaceSearcher interface {
	SearchNearby(ctx context.Context, loc models.Location, keyword string, radius int) ([]models.Candidate, error)
}

// Engine is the recommendation pipeline. It holds no per-request state and
// is safe for concurrent use.
type Engine struct {
	keywords KeywordGenerator
	places   PlaceSearcher
	radius   int
}

// NewEngine creates an Engine. keywords may be nil, in which case the
// joined-label fallback is always used. A radius <= 0 uses SearchRadiusMeters.
func NewEngine(keywords KeywordGenerator, places PlaceSearcher, radius int) *Engine {
	if radius <= 0 {
		radius = SearchRadiusMeters
	}
	return &Engine{keywords: keywords, places: places, radius: radius}
}

// OptimizeQuery returns a concise search phrase for tags. It never fails:
// without a configured generator, on error, or on an empty answer it
// returns the tag labels joined by single spaces.
func (e *Engine) OptimizeQuery(ctx context.Context, tags []models.Tag, group *models.GroupContext) string {
	fallback := joinLabels(tags)
	if fallback == "" {
		return ""
	}
	if e.keywords == nil || !e.keywords.Configured() {
		metrics.Fallbacks.WithLabelValues("query").Inc()
		return fallback
	}

	system, user := queryPrompts(models.Labels(tags), group)
	out, err := e.keywords.Complete(ctx, system, user)
	if err != nil {
		slog.Warn("Query optimization failed, using tag labels", "error", err)
		metrics.Fallbacks.WithLabelValues("query").Inc()
		return fallback
	}

	keyword := cleanKeyword(out)
	if keyword == "" {
		metrics.Fallbacks.WithLabelValues("query").Inc()
		return fallback
	}
	slog.Debug("Query optimized", "keyword", keyword)
	return keyword
}

// Search queries the place provider within the engine's radius. Any
// failure, including zero results, yields DemoCandidates and fallback true.
func (e *Engine) Search(ctx context.Context, loc models.Location, query string) (candidates []models.Candidate, fallback bool) {
	if e.places == nil {
		metrics.Fallbacks.WithLabelValues("search").Inc()
		return DemoCandidates(), true
	}

	found, err := e.places.SearchNearby(ctx, loc, query, e.radius)
	if err != nil {
		slog.Warn("Place search failed, using demo candidates", "query", query, "error", err)
		metrics.Fallbacks.WithLabelValues("search").Inc()
		return DemoCandidates(), true
	}
	if len(found) == 0 {
		slog.Info("Place search returned nothing, using demo candidates", "query", query)
		metrics.Fallbacks.WithLabelValues("search").Inc()
		return DemoCandidates(), true
	}
	return found, false
}

// Request is one recommendation request.
type Request struct {
	Tags     []models.Tag
	Location models.Location
	Group    *models.GroupContext
}

// Result is the outcome of a recommendation.
type Result struct {
	// Keyword is the phrase sent to the place provider.
	Keyword string

	// Best is the highest-scoring candidate; valid only when HasBest.
	Best    models.Candidate
	HasBest bool

	// Candidates is the provider's list in provider order.
	Candidates []models.Candidate

	// Ranked is Candidates ordered by descending score, ties in provider order.
	Ranked []ranking.Scored

	// Fallback is true when Candidates is the built-in demo set.
	Fallback bool
}

// Recommend runs optimize, search and rank for req.
func (e *Engine) Recommend(ctx context.Context, req Request) (Result, error) {
	keyword := e.OptimizeQuery(ctx, req.Tags, req.Group)
	if keyword == "" {
		return Result{}, ErrNoTags
	}

	candidates, fallback := e.Search(ctx, req.Location, keyword)
	best, ok := ranking.SelectBest(candidates)

	res := Result{
		Keyword:    keyword,
		Best:       best,
		HasBest:    ok,
		Candidates: candidates,
		Ranked:     ranking.Rank(candidates),
		Fallback:   fallback,
	}

	slog.Info("Recommendation ready",
		"keyword", keyword,
		"candidates", len(candidates),
		"best", best.Name,
		"fallback", fallback,
	)
	return res, nil
}
