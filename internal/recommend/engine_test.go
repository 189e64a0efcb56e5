package recommend

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hamori-app/hamori/internal/models"
	"github.com/hamori-app/hamori/internal/places"
)

type fakeGenerator struct {
	configured bool
	out        string
	err        error

	system, user string
	calls        int
}

func (f *fakeGenerator) Configured() bool { return f.configured }

func (f *fakeGenerator) Complete(ctx context.Context, system, user string) (string, error) {
	f.calls++
	f.system, f.user = system, user
	return f.out, f.err
}

type fakeSearcher struct {
	results []models.Candidate
	err     error

	keyword string
	radius  int
}

func (f *fakeSearcher) SearchNearby(ctx context.Context, loc models.Location, keyword string, radius int) ([]models.Candidate, error) {
	f.keyword, f.radius = keyword, radius
	return f.results, f.err
}

func tagsOf(labels ...string) []models.Tag {
	out := make([]models.Tag, len(labels))
	for i, l := range labels {
		out[i] = models.Tag{Label: l}
	}
	return out
}

func TestOptimizeQuery_Fallback(t *testing.T) {
	tags := tagsOf("鍋", "あったかい料理", "焼肉")

	tests := []struct {
		name string
		gen  KeywordGenerator
	}{
		{name: "no generator", gen: nil},
		{name: "missing credential", gen: &fakeGenerator{configured: false, out: "ignored"}},
		{name: "generator error", gen: &fakeGenerator{configured: true, err: errors.New("boom")}},
		{name: "empty answer", gen: &fakeGenerator{configured: true, out: "   "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewEngine(tt.gen, nil, 0)
			got := engine.OptimizeQuery(context.Background(), tags, nil)
			if got != "鍋 あったかい料理 焼肉" {
				t.Errorf("OptimizeQuery = %q", got)
			}
		})
	}
}

func TestOptimizeQuery_FallbackSkipsBlankLabels(t *testing.T) {
	engine := NewEngine(nil, nil, 0)
	got := engine.OptimizeQuery(context.Background(), tagsOf(" 鍋 ", "", "個室"), nil)
	if got != "鍋 個室" {
		t.Errorf("OptimizeQuery = %q", got)
	}
}

func TestOptimizeQuery_Generated(t *testing.T) {
	gen := &fakeGenerator{configured: true, out: "「和食  鍋料理 個室」\n"}
	engine := NewEngine(gen, nil, 0)

	got := engine.OptimizeQuery(context.Background(), tagsOf("鍋", "寒い"), nil)
	if got != "和食 鍋料理 個室" {
		t.Errorf("OptimizeQuery = %q", got)
	}
	if !strings.Contains(gen.user, "鍋, 寒い") {
		t.Errorf("user prompt missing tags: %q", gen.user)
	}
	if strings.Contains(gen.system, "グループ") {
		t.Errorf("solo prompt should not mention groups: %q", gen.system)
	}
}

func TestOptimizeQuery_GroupBias(t *testing.T) {
	gen := &fakeGenerator{configured: true, out: "居酒屋 個室 宴会"}
	engine := NewEngine(gen, nil, 0)

	engine.OptimizeQuery(context.Background(), tagsOf("飲み会"), &models.GroupContext{Name: "会社の仲間", MemberCount: 6})

	for _, want := range []string{"会社の仲間", "6人", "個室"} {
		if !strings.Contains(gen.system, want) {
			t.Errorf("system prompt missing %q: %q", want, gen.system)
		}
	}
}

func TestSearch_Fallback(t *testing.T) {
	tests := []struct {
		name     string
		searcher PlaceSearcher
	}{
		{name: "provider error", searcher: &fakeSearcher{err: errors.New("network down")}},
		{name: "zero results", searcher: &fakeSearcher{err: places.ErrZeroResults}},
		{name: "denied", searcher: &fakeSearcher{err: &places.StatusError{Status: "REQUEST_DENIED"}}},
		{name: "empty list", searcher: &fakeSearcher{results: []models.Candidate{}}},
		{name: "no searcher", searcher: nil},
	}

	demo := DemoCandidates()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewEngine(nil, tt.searcher, 0)
			got, fallback := engine.Search(context.Background(), models.Location{}, "鍋")
			if !fallback {
				t.Error("expected fallback")
			}
			if len(got) != len(demo) {
				t.Fatalf("expected %d demo candidates, got %d", len(demo), len(got))
			}
			for i := range demo {
				if got[i].Name != demo[i].Name {
					t.Errorf("candidate %d = %q, want %q", i, got[i].Name, demo[i].Name)
				}
			}
		})
	}
}

func TestSearch_UsesFixedRadius(t *testing.T) {
	searcher := &fakeSearcher{results: []models.Candidate{{ID: "p1", Name: "x"}}}
	engine := NewEngine(nil, searcher, 0)

	got, fallback := engine.Search(context.Background(), models.Location{}, "鍋 個室")
	if fallback {
		t.Error("unexpected fallback")
	}
	if len(got) != 1 || got[0].ID != "p1" {
		t.Errorf("unexpected candidates %+v", got)
	}
	if searcher.radius != SearchRadiusMeters {
		t.Errorf("radius = %d", searcher.radius)
	}
	if searcher.keyword != "鍋 個室" {
		t.Errorf("keyword = %q", searcher.keyword)
	}
}

func TestRecommend(t *testing.T) {
	searcher := &fakeSearcher{results: []models.Candidate{
		{ID: "b", Name: "B", Rating: models.Float64(4.7), ReviewCount: models.Int(210), IsOpenNow: models.Bool(false)},
		{ID: "a", Name: "A", Rating: models.Float64(4.5), ReviewCount: models.Int(120), IsOpenNow: models.Bool(true), PhotoRef: "r"},
	}}
	engine := NewEngine(nil, searcher, 0)

	res, err := engine.Recommend(context.Background(), Request{Tags: tagsOf("鍋", "個室")})
	if err != nil {
		t.Fatalf("Recommend failed: %v", err)
	}
	if res.Keyword != "鍋 個室" {
		t.Errorf("keyword = %q", res.Keyword)
	}
	if !res.HasBest || res.Best.ID != "a" {
		t.Errorf("best = %+v", res.Best)
	}
	if res.Fallback {
		t.Error("unexpected fallback")
	}
	if res.Candidates[0].ID != "b" {
		t.Error("candidates should keep provider order")
	}
	if len(res.Ranked) != 2 || res.Ranked[0].Candidate.ID != "a" {
		t.Errorf("ranked = %+v", res.Ranked)
	}
}

func TestRecommend_DemoFallbackPicksBest(t *testing.T) {
	engine := NewEngine(nil, &fakeSearcher{err: places.ErrZeroResults}, 0)

	res, err := engine.Recommend(context.Background(), Request{Tags: tagsOf("鍋")})
	if err != nil {
		t.Fatalf("Recommend failed: %v", err)
	}
	if !res.Fallback || !res.HasBest {
		t.Fatalf("expected fallback with a best candidate, got %+v", res)
	}
	// 4.5 rated, open: 45 + 5*log10(120) + 20 beats the higher-rated closed venue.
	if res.Best.Name != "和食鍋専門店 あったか亭" {
		t.Errorf("best = %q", res.Best.Name)
	}
}

func TestRecommend_NoTags(t *testing.T) {
	engine := NewEngine(nil, nil, 0)
	if _, err := engine.Recommend(context.Background(), Request{Tags: tagsOf(" ", "")}); !errors.Is(err, ErrNoTags) {
		t.Errorf("expected ErrNoTags, got %v", err)
	}
}

func TestDemoCandidates_FreshCopy(t *testing.T) {
	a := DemoCandidates()
	a[0].Name = "changed"
	*a[0].Rating = 0

	b := DemoCandidates()
	if b[0].Name == "changed" || *b[0].Rating != 4.5 {
		t.Error("DemoCandidates must return independent values")
	}
}
