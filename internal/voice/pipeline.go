// Package voice turns a recorded clip or typed text into a normalized tag set.
package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hamori-app/hamori/internal/metrics"
	"github.com/hamori-app/hamori/internal/models"
	"github.com/hamori-app/hamori/internal/tags"
)

// TranscriptionFailedText replaces the transcript when transcription fails.
const TranscriptionFailedText = "文字起こしに失敗しました。もう一度お試しください。"

var (
	// ErrMissingCredential blocks transcription when no credential is configured.
	ErrMissingCredential = errors.New("transcription credential not configured")

	// ErrAnalysisFailed means the extractor output could not be turned into tags.
	ErrAnalysisFailed = errors.New("analysis failed, try again")

	// ErrEmptyText is returned by Analyze for blank input.
	ErrEmptyText = errors.New("text is required")
)

// Transcriber converts an audio clip into text.
type Transcriber interface {
	Configured() bool
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// TagExtractor is a text-to-JSON generator.
type TagExtractor interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Pipeline runs transcription and tag extraction.
type Pipeline struct {
	transcriber Transcriber
	extractor   TagExtractor
}

// NewPipeline creates a Pipeline.
func NewPipeline(transcriber Transcriber, extractor TagExtractor) *Pipeline {
	return &Pipeline{transcriber: transcriber, extractor: extractor}
}

// Transcription is the result of Transcribe.
type Transcription struct {
	Text string

	// Failed is true when Text is TranscriptionFailedText.
	Failed bool
}

// Transcribe converts audio to text. Provider failures degrade to the
// sentinel text; only a missing credential is returned as an error.
func (p *Pipeline) Transcribe(ctx context.Context, audio []byte, filename string) (Transcription, error) {
	if p.transcriber == nil || !p.transcriber.Configured() {
		return Transcription{}, ErrMissingCredential
	}

	text, err := p.transcriber.Transcribe(ctx, audio, filename)
	if err == nil {
		text = strings.TrimSpace(text)
	}
	if err != nil || text == "" {
		slog.Warn("Transcription failed", "error", err, "audio_bytes", len(audio))
		metrics.Fallbacks.WithLabelValues("transcription").Inc()
		return Transcription{Text: TranscriptionFailedText, Failed: true}, nil
	}

	slog.Info("Transcription completed", "chars", len([]rune(text)))
	return Transcription{Text: text}, nil
}

const extractInstruction = "あなたは飲食店探しを助けるAIアシスタントです。" +
	"ユーザーの入力から飲食店検索に役立つキーワードを抽出し、必ず3つ以上のタグに変換してください。" +
	"どんな入力でも必ず3つ以上のタグを作成してください。" +
	"内容がシンプルで飲食店に直接関連しない場合でも、可能性のある関連タグを作成してください。" +
	"各タグには短い説明も付けてください。" +
	`結果は {"tags":[{"tag":"...","description":"..."}]} の形式のJSONで返してください。` +
	"タグの例:「寒い」→「鍋」「あったかい料理」「焼肉」"

func extractPrompts(text string, group *models.GroupContext) (system, user string) {
	system = extractInstruction
	if group != nil {
		system += fmt.Sprintf("ユーザーは「%s」というグループ（%d人）で飲食店を探しています。グループでの食事に適したタグも考慮してください。",
			group.Name, group.MemberCount)
	}
	return system, fmt.Sprintf("次の入力からタグを作成してください：「%s」", text)
}

// Analyze extracts at least tags.MinTags tags from text. Extractor errors
// and unrecognized payloads both surface as ErrAnalysisFailed; tags are
// never fabricated from unparseable output.
func (p *Pipeline) Analyze(ctx context.Context, text string, group *models.GroupContext) ([]models.Tag, error) {
	text = strings.TrimSpace(text)
	if text == "" || text == TranscriptionFailedText {
		return nil, ErrEmptyText
	}
	if p.extractor == nil {
		return nil, fmt.Errorf("%w: no extractor", ErrAnalysisFailed)
	}

	system, user := extractPrompts(text, group)
	raw, err := p.extractor.Complete(ctx, system, user)
	if err != nil {
		slog.Warn("Tag extraction failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
	}

	result, err := tags.Normalize([]byte(raw))
	if err != nil {
		slog.Warn("Tag payload unrecognized", "error", err, "payload_bytes", len(raw))
		return nil, fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
	}

	slog.Info("Tags extracted", "count", len(result), "labels", models.Labels(result))
	return result, nil
}
