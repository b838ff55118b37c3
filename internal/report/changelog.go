package report

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TruncationMarker is appended when a changelog is cut.
const TruncationMarker = "[...] (truncated)"

var (
	reImageBlock = regexp.MustCompile(`(?is)\[(img|image)\].*?\[/(img|image)\]`)
	reURLBlock   = regexp.MustCompile(`(?is)\[url(=[^\]]*)?\].*?\[/url\]`)
	reAnchor     = regexp.MustCompile(`(?is)<a\b[^>]*>.*?</a>`)
	reImgTag     = regexp.MustCompile(`(?is)<img\b[^>]*>`)
	reListItem   = regexp.MustCompile(`(?i)\[\*\]`)
	reAnyTag     = regexp.MustCompile(`(?i)\[/?[a-z0-9]+(=[^\]]*)?\]`)
	reBareScheme = regexp.MustCompile(`(?i)\b([a-z][a-z0-9+.-]*)://`)
	rePunctOnly  = regexp.MustCompile(`^[*_~\s]+$`)
	reNameTags   = regexp.MustCompile(`(?i)\[/?[a-z]+(=[^\]]*)?\]`)

	stripHTML = bluemonday.StrictPolicy()
)

// emphasis maps BBCode formatting tags to chat markdown.
var emphasis = []struct {
	re   *regexp.Regexp
	rich string
}{
	{regexp.MustCompile(`(?is)\[b\](.*?)\[/b\]`), "**${1}**"},
	{regexp.MustCompile(`(?is)\[u\](.*?)\[/u\]`), "__${1}__"},
	{regexp.MustCompile(`(?is)\[i\](.*?)\[/i\]`), "*${1}*"},
	{regexp.MustCompile(`(?is)\[s\](.*?)\[/s\]`), "~~${1}~~"},
}

// defeatLinks breaks the scheme separator of every bare URL so chat
// clients do not unfurl it.
func defeatLinks(s string) string {
	return reBareScheme.ReplaceAllString(s, "${1}\u200b://")
}

// convertMarkup removes links, images and markup tags from workshop text.
// The rich target keeps bold, underline, italic and strikethrough as
// markdown; the plain target drops them.
func convertMarkup(s string, target Target) string {
	s = reImageBlock.ReplaceAllString(s, "")
	s = reURLBlock.ReplaceAllString(s, "")
	s = reAnchor.ReplaceAllString(s, "")
	s = reImgTag.ReplaceAllString(s, "")
	s = html.UnescapeString(stripHTML.Sanitize(s))

	for _, e := range emphasis {
		repl := "${1}"
		if target == Rich {
			repl = e.rich
		}
		s = e.re.ReplaceAllString(s, repl)
	}
	s = reListItem.ReplaceAllString(s, "- ")
	s = reAnyTag.ReplaceAllString(s, "")
	return defeatLinks(s)
}

// contentLines drops blank lines and lines left with only emphasis marks.
func contentLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || rePunctOnly.MatchString(trimmed) {
			continue
		}
		out = append(out, strings.TrimRight(line, " \t\r"))
	}
	return out
}

// splitNamePrefix detects the mod's own name at the start of the
// changelog, optionally wrapped in [b]/[u], and returns the remainder.
func splitNamePrefix(raw, name string) (string, bool) {
	plain := strings.TrimSpace(reNameTags.ReplaceAllString(name, ""))
	if plain == "" {
		return raw, false
	}
	re, err := regexp.Compile(`(?i)^(\[b\]|\[u\])*` + regexp.QuoteMeta(plain) + `(\[/u\]|\[/b\])*`)
	if err != nil {
		return raw, false
	}
	trimmed := strings.TrimLeft(raw, " \t\r\n")
	loc := re.FindStringIndex(trimmed)
	if loc == nil {
		return raw, false
	}
	return strings.TrimLeft(trimmed[loc[1]:], ": \r\n"), true
}

func decoratedName(name string, target Target) string {
	plain := strings.TrimSpace(reNameTags.ReplaceAllString(name, ""))
	if target == Rich {
		return "__**" + plain + "**__"
	}
	return plain + ":"
}

// CleanChangelog turns raw workshop text into at most maxLines lines for
// the given target. maxLines <= 0 means no limit.
func CleanChangelog(raw, name string, target Target, maxLines int) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	rest, prefixed := splitNamePrefix(raw, name)
	lines := contentLines(convertMarkup(rest, target))

	truncated := false
	if maxLines > 0 && len(lines) > maxLines {
		lines = lines[:maxLines]
		truncated = true
	}

	if prefixed {
		deco := decoratedName(name, target)
		if len(lines) == 0 {
			lines = []string{deco}
		} else {
			lines[0] = deco + " " + strings.TrimLeft(lines[0], " \t")
		}
	}
	if len(lines) == 0 {
		return ""
	}
	if truncated {
		lines = append(lines, TruncationMarker)
	}
	return strings.Join(lines, "\n")
}
