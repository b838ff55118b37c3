// Package report renders classified change events into the plain summary
// (console, file) and the rich summary (chat webhook).
//
// Building is pure formatting: the same events and context always yield
// the same two strings, and nothing here can fail.
package report

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/HendryAvila/modwatch/internal/mods"
	"github.com/HendryAvila/modwatch/internal/templates"
)

// Target selects the rendering conventions.
type Target int

const (
	// Plain is literal text for console and file sinks.
	Plain Target = iota
	// Rich is chat markdown with native timestamp tokens.
	Rich
)

func (t Target) String() string {
	if t == Rich {
		return "rich"
	}
	return "plain"
}

const (
	// MaxRichLength is the chat webhook's message size limit, in characters.
	MaxRichLength = 2000

	separator      = "------------------------------------"
	plainTimeFmt   = "2006-01-02 15:04:05"
	workshopURLFmt = "https://steamcommunity.com/sharedfiles/filedetails/?id=%s"
)

// Renderer produces localized lines.
type Renderer interface {
	Render(category, name string, params templates.Params) string
}

// Options are the output flags from configuration.
type Options struct {
	ShowIsland     bool
	ShowPlatform   bool
	ShowDedicated  bool
	ShowModCount   bool
	ShowNextReboot bool

	ShowChangelog     bool
	MaxChangelogLines int
	ShowLinks         bool
	ReportLimit       int

	// Location for plain timestamps; nil means time.Local.
	Location *time.Location
}

// Context is per-run data that is not part of the events.
type Context struct {
	ServerName string
	Info       mods.ServerInfo
	// NextReboot is zero when unknown or not configured.
	NextReboot time.Time
	// TotalChanges is the reconciler's added+updated count.
	TotalChanges int
}

// Builder renders reports.
type Builder struct {
	r      Renderer
	opts   Options
	logger *slog.Logger
}

// New creates a report builder.
func New(r Renderer, opts Options, logger *slog.Logger) *Builder {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{r: r, opts: opts, logger: logger}
}

// Build renders events for one target.
func (b *Builder) Build(events []mods.ChangeEvent, ctx Context, target Target) string {
	lines := b.header(ctx, target)
	lines = append(lines, b.contextLines(ctx)...)

	for _, e := range events {
		lines = append(lines, b.eventLines(e, target)...)
	}

	if b.opts.ShowNextReboot && !ctx.NextReboot.IsZero() {
		lines = append(lines, b.r.Render(templates.Output, "next_reboot.txt", templates.Params{
			"next_reboot": b.timestamp(ctx.NextReboot.Unix(), target),
		}))
	}

	out := strings.Join(lines, "\n")
	if target == Rich && utf8.RuneCountInString(out) > MaxRichLength {
		b.logger.Info("rich summary too long, replacing with count",
			"length", utf8.RuneCountInString(out),
			"total_changes", ctx.TotalChanges,
		)
		return b.r.Render(templates.Discord, "too_many_display.txt", templates.Params{"total": ctx.TotalChanges})
	}
	return out
}

// QueryFailure renders the message delivered when the server could not be
// queried.
func (b *Builder) QueryFailure(ctx Context, err error, target Target) string {
	lines := b.header(ctx, target)
	lines = append(lines, b.r.Render(templates.Output, "query_failed.txt", templates.Params{"error": err.Error()}))
	return strings.Join(lines, "\n")
}

func (b *Builder) header(ctx Context, target Target) []string {
	var h string
	if ctx.ServerName != "" {
		h = b.r.Render(templates.Output, "header_named.txt", templates.Params{"server_name": ctx.ServerName})
	} else {
		h = b.r.Render(templates.Output, "header.txt", nil)
	}
	if target == Rich {
		h = "**" + h + "**"
	}
	return []string{h, separator}
}

func (b *Builder) contextLines(ctx Context) []string {
	var lines []string
	info := ctx.Info
	if b.opts.ShowPlatform && info.Platform != "" {
		lines = append(lines, b.r.Render(templates.Output, "server_platform.txt", templates.Params{"platform": info.Platform}))
	}
	if b.opts.ShowDedicated && info.Dedicated != nil {
		lines = append(lines, b.r.Render(templates.Output, "server_dedicated.txt", templates.Params{"dedicated": *info.Dedicated}))
	}
	if b.opts.ShowIsland && info.Island != "" {
		lines = append(lines, b.r.Render(templates.Output, "server_island.txt", templates.Params{"island": info.Island}))
	}
	if b.opts.ShowModCount {
		lines = append(lines, b.r.Render(templates.Output, "mod_count.txt", templates.Params{"mod_count": info.ModCount}))
	}
	return lines
}

func (b *Builder) eventLines(e mods.ChangeEvent, target Target) []string {
	switch e.Kind {
	case mods.KindNew:
		lines := []string{b.r.Render(templates.Output, "mod_new.txt", templates.Params{
			"title": b.title(e, target),
		})}
		return append(lines, b.detail(e, target)...)
	case mods.KindUpdated:
		lines := []string{b.r.Render(templates.Output, "mod_updated.txt", templates.Params{
			"title":     b.title(e, target),
			"timestamp": b.timestamp(e.CurrentUpdate, target),
		})}
		return append(lines, b.detail(e, target)...)
	case mods.KindRemoved:
		title := e.Title
		if title == "" {
			title = e.WorkshopID
		}
		if target == Rich {
			title = defeatLinks(title)
		}
		return []string{b.r.Render(templates.Output, "mod_removed.txt", templates.Params{"title": title})}
	case mods.KindNoChanges:
		return []string{b.r.Render(templates.Output, "no_changes.txt", nil)}
	case mods.KindTooMany:
		return []string{b.r.Render(templates.Output, "too_many.txt", templates.Params{
			"total": e.Total,
			"limit": b.opts.ReportLimit,
		})}
	}
	b.logger.Warn("unknown event kind", "kind", e.Kind)
	return nil
}

// title is the event title, turned into a named link on the rich target
// when links are enabled. Angle brackets keep chat clients from embedding
// a preview. URLs inside a rich title are defeated like changelog links.
func (b *Builder) title(e mods.ChangeEvent, target Target) string {
	if target != Rich {
		return e.Title
	}
	t := defeatLinks(e.Title)
	if !b.opts.ShowLinks || e.WorkshopID == "" {
		return t
	}
	return fmt.Sprintf("[%s](<%s>)", linkTextEscaper.Replace(t), workshopURL(e.WorkshopID))
}

// linkTextEscaper keeps brackets in a title from closing the link text.
var linkTextEscaper = strings.NewReplacer("[", `\[`, "]", `\]`)

// detail renders the plain link line and the changelog block.
func (b *Builder) detail(e mods.ChangeEvent, target Target) []string {
	var lines []string
	if b.opts.ShowLinks && target == Plain && e.WorkshopID != "" {
		lines = append(lines, b.r.Render(templates.Output, "mod_link.txt", templates.Params{
			"url": defeatLinks(workshopURL(e.WorkshopID)),
		}))
	}
	if b.opts.ShowChangelog {
		if text := CleanChangelog(e.Changelog, e.Title, target, b.opts.MaxChangelogLines); text != "" {
			lines = append(lines, b.r.Render(templates.Output, "changelog.txt", nil), text)
		}
	}
	return lines
}

// timestamp renders a unix time in the target's convention. Zero renders
// as an empty string.
func (b *Builder) timestamp(ts int64, target Target) string {
	if ts == 0 {
		return ""
	}
	if target == Rich {
		return fmt.Sprintf("<t:%d:F>", ts)
	}
	return time.Unix(ts, 0).In(b.opts.Location).Format(plainTimeFmt)
}

func workshopURL(id string) string { return fmt.Sprintf(workshopURLFmt, id) }
