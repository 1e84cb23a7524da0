package cli

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/journalkeeper/internal/client/models"
	"github.com/dmitrijs2005/journalkeeper/internal/client/services"
	"github.com/dmitrijs2005/journalkeeper/internal/filex"
	"github.com/fatih/color"
)

const dateLayout = "2006-01-02"

var errUsage = errors.New("usage")

// AddEntry prompts for a title, a body and tags and stores a new entry.
func (a *App) AddEntry(ctx context.Context, _ []string) error {
	es := a.entryService()
	in, err := a.readEntryInput(services.EntryInput{})
	if err != nil {
		return err
	}
	v, err := es.CreateEntry(ctx, in)
	if err != nil {
		return a.fail(err)
	}
	a.success("Entry %s saved", v.ID)
	return nil
}

// EditEntry replaces the title, body and tags of an entry. Empty answers keep
// the current values.
func (a *App) EditEntry(ctx context.Context, args []string) error {
	es := a.entryService()
	id, err := a.argOrPrompt(args, 0, "Enter entry id to edit")
	if err != nil {
		return err
	}
	cur, err := es.GetEntry(ctx, id)
	if err != nil {
		return a.fail(err)
	}

	in, err := a.readEntryInput(services.EntryInput{
		Title:      cur.Title,
		Content:    cur.Content,
		Tags:       cur.Tags,
		Source:     cur.Source,
		ExternalID: cur.ExternalID,
		Mood:       cur.Mood,
		CreatedAt:  cur.CreatedAt,
	})
	if err != nil {
		return err
	}
	if _, err := es.UpdateEntry(ctx, id, in); err != nil {
		return a.fail(err)
	}
	a.success("Entry %s updated", id)
	return nil
}

func (a *App) readEntryInput(cur services.EntryInput) (services.EntryInput, error) {
	title, err := getSimpleText(a.reader, fieldPrompt("Title", cur.Title), a.out)
	if err != nil {
		return cur, err
	}
	body, err := GetBody(a.reader, fieldPrompt("Text", shorten(cur.Content, 40)), a.out)
	if err != nil {
		return cur, err
	}
	tags, err := getSimpleText(a.reader, fieldPrompt("Tags, comma separated", strings.Join(cur.Tags, ", ")), a.out)
	if err != nil {
		return cur, err
	}
	mood, err := getSimpleText(a.reader, fieldPrompt("Mood ("+moodChoices()+")", string(cur.Mood)), a.out)
	if err != nil {
		return cur, err
	}

	if title != "" {
		cur.Title = title
	}
	if body != "" {
		cur.Content = body
	}
	if tags != "" {
		cur.Tags = SplitTags(tags)
	}
	if mood != "" {
		m, err := models.ParseMood(mood)
		if err != nil {
			return cur, a.fail(err)
		}
		cur.Mood = m
	}
	return cur, nil
}

func moodChoices() string {
	names := make([]string, 0, len(models.Moods))
	for _, m := range models.Moods {
		names = append(names, string(m))
	}
	return strings.Join(names, "/")
}

func fieldPrompt(name, cur string) string {
	if cur == "" {
		return name
	}
	return fmt.Sprintf("%s [%s]", name, cur)
}

// DeleteEntry removes an entry locally and queues the remote delete.
func (a *App) DeleteEntry(ctx context.Context, args []string) error {
	id, err := a.argOrPrompt(args, 0, "Enter entry id to delete")
	if err != nil {
		return err
	}
	if err := a.entryService().DeleteEntry(ctx, id); err != nil {
		return a.fail(err)
	}
	a.success("Entry %s deleted", id)
	return nil
}

// RestoreEntry brings back a deleted entry.
func (a *App) RestoreEntry(ctx context.Context, args []string) error {
	id, err := a.argOrPrompt(args, 0, "Enter entry id to restore")
	if err != nil {
		return err
	}
	if _, err := a.entryService().RestoreEntry(ctx, id); err != nil {
		return a.fail(err)
	}
	a.success("Entry %s restored", id)
	return nil
}

// List prints all live entries, newest first.
func (a *App) List(ctx context.Context, _ []string) error {
	list, err := a.entryService().GetAllEntries(ctx)
	return a.showEntries(list, err)
}

// Query lists entries matching key=value filters: tag, source, mood, from
// and to (dates as YYYY-MM-DD, "to" inclusive).
func (a *App) Query(ctx context.Context, args []string) error {
	f, err := parseFilter(args)
	if err != nil {
		return a.fail(err)
	}
	list, err := a.entryService().QueryEntries(ctx, f)
	return a.showEntries(list, err)
}

// showEntries prints what could be read before reporting err, so one
// unreadable entry does not hide the others.
func (a *App) showEntries(list []*services.EntryView, err error) error {
	if err == nil || len(list) > 0 {
		a.printEntries(list)
	}
	if err != nil {
		return a.fail(err)
	}
	return nil
}

func parseFilter(args []string) (models.EntryFilter, error) {
	var f models.EntryFilter
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok {
			return f, fmt.Errorf("%w: query [tag=x] [source=x] [mood=x] [from=YYYY-MM-DD] [to=YYYY-MM-DD]", errUsage)
		}
		switch k {
		case "tag":
			f.Tag = v
		case "source":
			s, err := models.ParseSource(v)
			if err != nil {
				return f, err
			}
			f.Source = s
		case "mood":
			m, err := models.ParseMood(v)
			if err != nil {
				return f, err
			}
			if m == models.MoodNone {
				return f, fmt.Errorf("%w: mood needs a value", errUsage)
			}
			f.Mood = m
		case "from", "to":
			d, err := time.Parse(dateLayout, v)
			if err != nil {
				return f, fmt.Errorf("bad %s date: %w", k, err)
			}
			if k == "from" {
				f.From = d
			} else {
				f.To = d.Add(24*time.Hour - time.Millisecond)
			}
		default:
			return f, fmt.Errorf("unknown filter %q", k)
		}
	}
	return f, nil
}

func (a *App) printEntries(list []*services.EntryView) {
	if len(list) == 0 {
		a.info("No entries")
		return
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tTITLE\tTAGS\tSTATUS")
	for _, v := range list {
		title := v.Title
		if title == "" {
			title = shorten(v.Content, 30)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", v.ID, v.CreatedAt.Local().Format("2006-01-02 15:04"),
			title, strings.Join(v.Tags, ","), statusText(v.SyncStatus))
	}
	_ = w.Flush()
}

func statusText(s models.SyncStatus) string {
	switch s {
	case models.SyncStatusSynced:
		return color.GreenString(string(s))
	case models.SyncStatusFailed, models.SyncStatusConflict:
		return color.RedString(string(s))
	default:
		return color.YellowString(string(s))
	}
}

// Show prints one decrypted entry with its attachments.
func (a *App) Show(ctx context.Context, args []string) error {
	es := a.entryService()
	id, err := a.argOrPrompt(args, 0, "Enter entry id to show")
	if err != nil {
		return err
	}
	v, err := es.GetEntry(ctx, id)
	if err != nil {
		return a.fail(err)
	}

	if v.Title != "" {
		fmt.Fprintln(a.out, color.YellowString(v.Title))
	}
	fmt.Fprintln(a.out, v.Content)
	fmt.Fprintln(a.out)
	fmt.Fprintf(a.out, "%s %s\n", color.CyanString("Created:"), v.CreatedAt.Local().Format(time.DateTime))
	fmt.Fprintf(a.out, "%s %s\n", color.CyanString("Updated:"), v.UpdatedAt.Local().Format(time.DateTime))
	fmt.Fprintf(a.out, "%s %s\n", color.CyanString("Source:"), v.Source)
	if v.Mood != models.MoodNone {
		fmt.Fprintf(a.out, "%s %s\n", color.CyanString("Mood:"), v.Mood)
	}
	if len(v.Tags) > 0 {
		fmt.Fprintf(a.out, "%s %s\n", color.CyanString("Tags:"), strings.Join(v.Tags, ", "))
	}
	fmt.Fprintf(a.out, "%s %s\n", color.CyanString("Sync:"), statusText(v.SyncStatus))
	if len(v.MediaIDs) > 0 {
		fmt.Fprintf(a.out, "%s %s\n", color.CyanString("Media:"), strings.Join(v.MediaIDs, ", "))
	}
	return nil
}

// Attach encrypts a file and adds it to an entry: attach <entry id> <path>.
func (a *App) Attach(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return a.fail(fmt.Errorf("%w: attach <entry id> <path>", errUsage))
	}
	data, err := filex.ReadLimited(args[1], maxAttachmentSize)
	if err != nil {
		return a.fail(err)
	}
	meta := services.MediaMeta{MimeType: mime.TypeByExtension(filepath.Ext(args[1]))}
	if meta.MimeType == "" {
		meta.MimeType = http.DetectContentType(data)
	}

	m, err := a.entryService().AddMedia(ctx, args[0], data, meta)
	if err != nil {
		return a.fail(err)
	}
	a.success("Attached %s (%s, %d bytes) as %s", filepath.Base(args[1]), m.MimeType, m.Size, m.ID)
	return nil
}

// Media lists the attachments of an entry, or with "save <media id> <path>"
// writes one decrypted attachment to disk.
func (a *App) Media(ctx context.Context, args []string) error {
	es := a.entryService()
	if len(args) == 3 && args[0] == "save" {
		_, data, err := es.GetMedia(ctx, args[1])
		if err != nil {
			return a.fail(err)
		}
		if err := os.WriteFile(args[2], data, 0o600); err != nil {
			return a.fail(err)
		}
		a.success("Saved %d bytes to %s", len(data), args[2])
		return nil
	}
	if len(args) != 1 {
		return a.fail(fmt.Errorf("%w: media <entry id> | media save <media id> <path>", errUsage))
	}

	list, err := es.ListMedia(ctx, args[0])
	if err != nil {
		return a.fail(err)
	}
	if len(list) == 0 {
		a.info("No attachments")
		return nil
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tSIZE\tSTATUS")
	for _, m := range list {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", m.ID, m.MimeType, m.Size, statusText(m.SyncStatus))
	}
	_ = w.Flush()
	return nil
}

func shorten(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
