package recommend

import (
	"fmt"
	"strings"

	"github.com/hamori-app/hamori/internal/models"
)

const queryInstruction = "あなたはGoogle Mapsで日本の飲食店を検索するための専門家です。" +
	"ユーザーから提供されたタグを基に、日本のGoogle Maps検索で最も良い結果が得られる検索クエリを作成してください。"

const queryFormat = "店舗タイプや料理ジャンル、特徴的な要素を含む、簡潔で効果的な日本語の検索キーワードを返してください。" +
	"例えば「和食 鍋料理 個室」のように、空白で区切られた3-5個のキーワードが理想的です。検索クエリのみを返してください。"

// queryPrompts builds the system and user prompts for keyword generation.
// A group context biases the phrase toward group dining (capacity, private rooms).
func queryPrompts(labels []string, group *models.GroupContext) (system, user string) {
	var sb strings.Builder
	sb.WriteString(queryInstruction)
	if group != nil {
		fmt.Fprintf(&sb, "ユーザーは「%s」というグループ（%d人）で飲食店を探しています。", group.Name, group.MemberCount)
		sb.WriteString("大人数で入れる店や個室のある店など、グループでの食事に適した検索クエリを考慮してください。")
	}
	sb.WriteString(queryFormat)

	var ub strings.Builder
	ub.WriteString("以下のタグから、日本のGoogle Maps検索で飲食店を効果的に見つけるための最適な検索クエリを作成してください。")
	if group != nil {
		fmt.Fprintf(&ub, "「%s」（%d人）のグループに適した店舗を検索します。", group.Name, group.MemberCount)
	}
	ub.WriteString("タグをそのまま使用してもいいのですが、そのまま使用しても検索にヒットしなそうな場合はタグを上位概念で捉えて簡潔なクエリを作成して：")
	ub.WriteString(strings.Join(labels, ", "))

	return sb.String(), ub.String()
}

// joinLabels is the keyword used when generation is unavailable: labels
// joined by single spaces, blank labels skipped.
func joinLabels(tags []models.Tag) string {
	parts := make([]string, 0, len(tags))
	for _, t := range tags {
		if l := strings.TrimSpace(t.Label); l != "" {
			parts = append(parts, l)
		}
	}
	return strings.Join(parts, " ")
}

// cleanKeyword collapses whitespace and strips quotes the model sometimes
// wraps the phrase in.
func cleanKeyword(s string) string {
	s = strings.Trim(strings.TrimSpace(s), "\"'「」")
	return strings.Join(strings.Fields(s), " ")
}
