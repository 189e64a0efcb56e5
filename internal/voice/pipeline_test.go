package voice

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hamori-app/hamori/internal/models"
	"github.com/hamori-app/hamori/internal/tags"
)

type fakeTranscriber struct {
	configured bool
	text       string
	err        error
}

func (f *fakeTranscriber) Configured() bool { return f.configured }

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	return f.text, f.err
}

type fakeExtractor struct {
	out          string
	err          error
	system, user string
}

func (f *fakeExtractor) Complete(ctx context.Context, system, user string) (string, error) {
	f.system, f.user = system, user
	return f.out, f.err
}

func TestTranscribe(t *testing.T) {
	tests := []struct {
		name       string
		tr         *fakeTranscriber
		wantErr    error
		wantText   string
		wantFailed bool
	}{
		{
			name:     "success",
			tr:       &fakeTranscriber{configured: true, text: " 寒いから鍋がいい "},
			wantText: "寒いから鍋がいい",
		},
		{
			name:       "provider error degrades to sentinel",
			tr:         &fakeTranscriber{configured: true, err: errors.New("timeout")},
			wantText:   TranscriptionFailedText,
			wantFailed: true,
		},
		{
			name:       "empty transcript degrades to sentinel",
			tr:         &fakeTranscriber{configured: true, text: "  "},
			wantText:   TranscriptionFailedText,
			wantFailed: true,
		},
		{
			name:    "missing credential blocks",
			tr:      &fakeTranscriber{configured: false},
			wantErr: ErrMissingCredential,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPipeline(tt.tr, nil)
			got, err := p.Transcribe(context.Background(), []byte("audio"), "clip.m4a")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Text != tt.wantText || got.Failed != tt.wantFailed {
				t.Errorf("got %+v", got)
			}
		})
	}
}

func TestAnalyze(t *testing.T) {
	ex := &fakeExtractor{out: `{"tags":[{"tag":"鍋","description":"温まる料理"}]}`}
	p := NewPipeline(nil, ex)

	got, err := p.Analyze(context.Background(), "寒い", nil)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(got) < tags.MinTags {
		t.Fatalf("expected at least %d tags, got %d", tags.MinTags, len(got))
	}
	if got[0].Label != "鍋" || got[0].Description != "温まる料理" {
		t.Errorf("first tag = %+v", got[0])
	}
	if !strings.Contains(ex.user, "「寒い」") {
		t.Errorf("user prompt = %q", ex.user)
	}
}

func TestAnalyze_GroupContext(t *testing.T) {
	ex := &fakeExtractor{out: `{"tags":["鍋","焼肉","居酒屋"]}`}
	p := NewPipeline(nil, ex)

	if _, err := p.Analyze(context.Background(), "飲み会", &models.GroupContext{Name: "家族", MemberCount: 4}); err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if !strings.Contains(ex.system, "「家族」") || !strings.Contains(ex.system, "4人") {
		t.Errorf("system prompt missing group context: %q", ex.system)
	}
}

func TestAnalyze_Failures(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		ex      *fakeExtractor
		wantErr error
	}{
		{name: "blank text", text: "  ", ex: &fakeExtractor{}, wantErr: ErrEmptyText},
		{name: "sentinel text", text: TranscriptionFailedText, ex: &fakeExtractor{}, wantErr: ErrEmptyText},
		{name: "extractor error", text: "寒い", ex: &fakeExtractor{err: errors.New("503")}, wantErr: ErrAnalysisFailed},
		{name: "unparseable output", text: "寒い", ex: &fakeExtractor{out: "すみません、わかりません"}, wantErr: ErrAnalysisFailed},
		{name: "unknown shape", text: "寒い", ex: &fakeExtractor{out: `{"foo":"bar"}`}, wantErr: ErrAnalysisFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPipeline(nil, tt.ex)
			_, err := p.Analyze(context.Background(), tt.text, nil)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
