package bot

import (
	"fmt"
	"strings"

	"news_digest/internal/model"
	"news_digest/internal/storage"
)

const none = "none"

// FormatBrief formats a digest as one Telegram message.
func FormatBrief(date string, entries []model.BriefEntry) string {
	if len(entries) == 0 {
		return fmt.Sprintf("Digest for %s is empty. Try /refresh or widen your /prefs.", date)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Digest for %s (%d items)\n", date, len(entries))
	for _, e := range entries {
		fmt.Fprintf(&b, "\n%d. %s", e.Rank, e.Title)
		if e.SourceName != "" {
			fmt.Fprintf(&b, " [%s]", e.SourceName)
		}
		b.WriteString("\n")
		if e.Summary != "" {
			b.WriteString(e.Summary)
			b.WriteString("\n")
		}
		if e.URL != "" {
			b.WriteString(e.URL)
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "id %d\n", e.ItemID)
	}
	return b.String()
}

// FormatHistory lists past digests, newest first.
func FormatHistory(digests []storage.DigestInfo) string {
	if len(digests) == 0 {
		return "No digests yet. Use /digest to build today's."
	}
	var b strings.Builder
	b.WriteString("Your digests:\n")
	for _, d := range digests {
		fmt.Fprintf(&b, "%s — %d items\n", d.Date, d.EntryCount)
	}
	b.WriteString("\nOpen one with /digest YYYY-MM-DD")
	return b.String()
}

// FormatPreference formats a user's settings for display.
func FormatPreference(p model.UserPreference) string {
	var b strings.Builder
	status := "on"
	if !p.Enabled {
		status = "off"
	}
	fmt.Fprintf(&b, "Digest: %s\n", status)
	fmt.Fprintf(&b, "Language: %s\n", orNone(p.Language))
	fmt.Fprintf(&b, "Region: %s\n", orNone(p.Region))
	fmt.Fprintf(&b, "Categories: %s\n", listOrNone(p.Categories))
	fmt.Fprintf(&b, "Include: %s\n", listOrNone(p.IncludeKeywords))
	fmt.Fprintf(&b, "Exclude: %s\n", listOrNone(p.ExcludeKeywords))
	fmt.Fprintf(&b, "Academic papers: %s\n", yesNo(p.IncludeAcademic))
	fmt.Fprintf(&b, "Daily limit: %d\n", p.DailyLimit)
	fmt.Fprintf(&b, "Push time: %s\n", orNone(p.PushTime))
	return b.String()
}

// FormatState formats the user's flags on an item.
func FormatState(st model.UserItemState) string {
	var flags []string
	if st.Read {
		flags = append(flags, "read")
	}
	if st.Favorite {
		flags = append(flags, "favorite")
	}
	if st.Later {
		flags = append(flags, "later")
	}
	if st.Blocked {
		flags = append(flags, "blocked")
	}
	return fmt.Sprintf("Item %d: %s", st.ItemID, listOrNone(flags))
}

func orNone(s string) string {
	if s == "" {
		return none
	}
	return s
}

func listOrNone(values []string) string {
	if len(values) == 0 {
		return none
	}
	return strings.Join(values, ", ")
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
