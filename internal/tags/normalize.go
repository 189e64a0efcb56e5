// Package tags converts untrusted tag-extractor output into a canonical tag set.
//
// The extractor is a text-to-JSON generator, so its output shape varies
// between calls. Normalize tries a fixed, ordered list of shape parsers; the
// first that yields at least one usable tag wins. The result is then padded
// from DefaultPool up to MinTags. A recognized shape with no usable tags
// yields the padding alone.
package tags

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/hamori-app/hamori/internal/models"
)

// MinTags is the minimum size of a normalized tag set.
const MinTags = 3

// maxNumberedTags bounds the tag1..tagN fallback shape.
const maxNumberedTags = 5

// ErrUnrecognizedPayload is returned when the payload is not JSON or carries
// none of the known tag shape keys.
var ErrUnrecognizedPayload = errors.New("tag payload matches no recognized shape")

// DefaultPool pads short tag sets, consumed in order.
var DefaultPool = []models.Tag{
	{Label: "人気店", Description: "口コミ評価の高い人気のある飲食店"},
	{Label: "おすすめ料理", Description: "シェフのおすすめや名物料理がある店舗"},
	{Label: "居心地のよい空間", Description: "落ち着いた雰囲気で長居できる店舗"},
	{Label: "地元の味", Description: "地元で愛されている料理や食材を使った店舗"},
}

// shape extracts tags from one decoded payload layout.
type shape struct {
	name    string
	present func(doc map[string]json.RawMessage) bool
	parse   func(doc map[string]json.RawMessage) []models.Tag
}

// shapes are tried in priority order.
var shapes = []shape{
	{name: "tags", present: arrayAt("tags"), parse: parseTagsArray},
	{name: "localized", present: arrayAt("タグ"), parse: parseLocalized},
	{name: "numbered", present: hasNumbered, parse: parseNumbered},
}

// Normalize parses raw extractor output and returns at least MinTags tags.
// Extracted tags keep their order and are never dropped by padding.
func Normalize(raw []byte) ([]models.Tag, error) {
	doc, err := decode(raw)
	if err != nil {
		return nil, err
	}

	recognized := false
	for _, s := range shapes {
		if !s.present(doc) {
			continue
		}
		recognized = true
		if tags := s.parse(doc); len(tags) > 0 {
			return Pad(tags), nil
		}
	}
	if !recognized {
		return nil, ErrUnrecognizedPayload
	}
	return Pad(nil), nil
}

// Pad appends DefaultPool entries until tags has MinTags entries. Pool labels
// already present are skipped. The input slice is not modified.
func Pad(tags []models.Tag) []models.Tag {
	out := make([]models.Tag, len(tags), max(len(tags), MinTags))
	copy(out, tags)

	seen := make(map[string]bool, len(out))
	for _, t := range out {
		seen[t.Label] = true
	}

	for _, d := range DefaultPool {
		if len(out) >= MinTags {
			break
		}
		if seen[d.Label] {
			continue
		}
		out = append(out, d)
		seen[d.Label] = true
	}
	return out
}

// decode turns raw into an object. A bare top-level array is wrapped as
// {"tags": [...]}; prose around a JSON object is stripped.
func decode(raw []byte) (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrUnrecognizedPayload)
	}

	if trimmed[0] == '[' {
		var arr json.RawMessage
		if err := json.Unmarshal(trimmed, &arr); err == nil {
			return map[string]json.RawMessage{"tags": arr}, nil
		}
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &doc); err == nil {
		return doc, nil
	}

	// Model output sometimes wraps the object in prose or code fences.
	start := bytes.IndexByte(trimmed, '{')
	end := bytes.LastIndexByte(trimmed, '}')
	if start >= 0 && end > start {
		if err := json.Unmarshal(trimmed[start:end+1], &doc); err == nil {
			return doc, nil
		}
	}
	return nil, fmt.Errorf("%w: not a JSON object", ErrUnrecognizedPayload)
}

// arrayAt reports whether doc holds a JSON array under key.
func arrayAt(key string) func(doc map[string]json.RawMessage) bool {
	return func(doc map[string]json.RawMessage) bool {
		raw := bytes.TrimSpace(doc[key])
		return len(raw) > 0 && raw[0] == '['
	}
}

func hasNumbered(doc map[string]json.RawMessage) bool {
	for i := 1; i <= maxNumberedTags; i++ {
		if _, ok := doc[fmt.Sprintf("tag%d", i)]; ok {
			return true
		}
	}
	return false
}

// parseTagsArray handles {"tags": [{"tag"|"label"|"name": ..., "description": ...}]}
// and {"tags": ["a", "b"]}.
func parseTagsArray(doc map[string]json.RawMessage) []models.Tag {
	return parseArray(doc["tags"],
		[]string{"tag", "label", "name"},
		[]string{"description"},
	)
}

// parseLocalized handles {"タグ": [{"名前"|"名称"|"タグ"|"tag"|"label": ..., "説明"|"description": ...}]}.
func parseLocalized(doc map[string]json.RawMessage) []models.Tag {
	return parseArray(doc["タグ"],
		[]string{"名前", "名称", "タグ", "tag", "label"},
		[]string{"説明", "description"},
	)
}

// parseNumbered handles {"tag1": "...", "description1": "...", ...}.
func parseNumbered(doc map[string]json.RawMessage) []models.Tag {
	var tags []models.Tag
	for i := 1; i <= maxNumberedTags; i++ {
		label := stringField(doc, fmt.Sprintf("tag%d", i))
		if label == "" {
			continue
		}
		desc := stringField(doc, fmt.Sprintf("description%d", i))
		if desc == "" {
			desc = relatedDescription(label)
		}
		tags = append(tags, models.Tag{Label: label, Description: desc})
	}
	return tags
}

// parseArray reads an array whose elements are either strings or objects
// keyed by the first present label key. Blank labels are skipped.
func parseArray(raw json.RawMessage, labelKeys, descKeys []string) []models.Tag {
	if len(raw) == 0 {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}

	var tags []models.Tag
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			if label := strings.TrimSpace(s); label != "" {
				tags = append(tags, models.Tag{Label: label, Description: relatedDescription(label)})
			}
			continue
		}

		var obj map[string]json.RawMessage
		if err := json.Unmarshal(item, &obj); err != nil {
			continue
		}
		label := firstString(obj, labelKeys)
		if label == "" {
			continue
		}
		tags = append(tags, models.Tag{Label: label, Description: firstString(obj, descKeys)})
	}
	return tags
}

func firstString(obj map[string]json.RawMessage, keys []string) string {
	for _, k := range keys {
		if v := stringField(obj, k); v != "" {
			return v
		}
	}
	return ""
}

// stringField returns the trimmed string at key, or "" when absent or not a string.
func stringField(obj map[string]json.RawMessage, key string) string {
	raw, ok := obj[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func relatedDescription(label string) string {
	return label + "に関連する飲食店"
}
