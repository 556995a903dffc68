package suggestion

import (
	"sort"
	"strings"
)

// NoInstructions is rendered when the host supplied no extra instructions.
const NoInstructions = "特になし"

const promptTemplate = `あなたは優秀なアシスタントです。以下のミーティング参加者の空き状況と制約条件を考慮し、最も最適なミーティング日時を1つ提案してください。

全員が参加できることを最優先とします。もし全員の参加が難しい場合は、より多くの人が参加できる時間を優先してください。

ミーティング情報:
- タイトル: {{title}}
- 候補時間: {{slots}}

参加者の空き状況:
{{participants}}

ホストからの追加指示:
{{instructions}}

なぜその時間が最適なのか、誰が参加できないのかを明確にして理由を説明してください。

出力は以下のJSON形式で厳密に返してください:
{
    "date": "2024-01-15T14:30:00+09:00",
    "reason": "この時間が最適な理由の詳細な説明"
}
`

var statusLabels = map[string]string{
	StatusAvailable:   "参加可能",
	StatusMaybe:       "条件付き参加可能",
	StatusUnavailable: "参加不可",
}

var statusOrder = []string{StatusAvailable, StatusMaybe, StatusUnavailable}

// BuildPrompt renders the instruction sent to the model.
func BuildPrompt(in Input) string {
	instructions := strings.TrimSpace(in.HostInstructions)
	if instructions == "" {
		instructions = NoInstructions
	}

	return strings.NewReplacer(
		"{{title}}", in.MeetingTitle,
		"{{slots}}", strings.Join(in.TimeSlots, ", "),
		"{{participants}}", FormatParticipants(in.Participants),
		"{{instructions}}", instructions,
	).Replace(promptTemplate)
}

// FormatParticipants renders one block per participant, grouping slot times by status.
// Known statuses come first in a fixed order; unknown statuses follow sorted and keep their raw name.
func FormatParticipants(participants []Participant) string {
	blocks := make([]string, 0, len(participants))
	for _, p := range participants {
		groups := make(map[string][]string)
		for _, slot := range p.Availability {
			entry := slot.Time
			if slot.Comment != "" {
				entry += " (" + slot.Comment + ")"
			}
			groups[slot.Status] = append(groups[slot.Status], entry)
		}

		var b strings.Builder
		b.WriteString("- " + p.Name + ":\n")
		for _, status := range groupOrder(groups) {
			label, ok := statusLabels[status]
			if !ok {
				label = status
			}
			b.WriteString("  " + label + ": " + strings.Join(groups[status], ", ") + "\n")
		}
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n")
}

func groupOrder(groups map[string][]string) []string {
	order := make([]string, 0, len(groups))
	for _, status := range statusOrder {
		if _, ok := groups[status]; ok {
			order = append(order, status)
		}
	}
	var extra []string
	for status := range groups {
		if _, known := statusLabels[status]; !known {
			extra = append(extra, status)
		}
	}
	sort.Strings(extra)
	return append(order, extra...)
}
