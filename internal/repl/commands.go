package repl

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/manash/prodstudio/internal/display"
	"github.com/manash/prodstudio/internal/journal"
	"github.com/manash/prodstudio/internal/security"
	"github.com/manash/prodstudio/pkg/models"
)

type Command interface {
	Name() string
	Aliases() []string
	Description() string
	Usage() string
	Execute(ctx context.Context, r *REPL, args []string) error
}

func allCommands() []Command {
	return []Command{
		&SubjectCommand{},
		&ReferenceCommand{},
		&PresetsCommand{},
		&ToggleCommand{},
		&SelectionCommand{},
		&AutoCommand{},
		&AnalyzeCommand{},
		&BriefCommand{},
		&BriefsCommand{},
		&ExportCommand{},
		&PromptCommand{},
		&GenerateCommand{},
		&UpscaleCommand{},
		&DownloadCommand{},
		&ShowCommand{},
		&StatusCommand{},
		&HistoryCommand{},
		&HelpCommand{},
		&QuitCommand{},
	}
}

func (r *REPL) registerCommands() {
	for _, cmd := range allCommands() {
		r.commands[cmd.Name()] = cmd
		for _, alias := range cmd.Aliases() {
			r.commands[alias] = cmd
		}
	}
}

var titler = cases.Title(language.English)

// SubjectCommand loads the product image
type SubjectCommand struct{}

func (c *SubjectCommand) Name() string        { return "subject" }
func (c *SubjectCommand) Aliases() []string   { return []string{"product", "sub"} }
func (c *SubjectCommand) Description() string { return "Upload the product image (file or URL)" }
func (c *SubjectCommand) Usage() string       { return "subject <file|url|clear>" }

func (c *SubjectCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	if strings.EqualFold(args[0], "clear") {
		fmt.Fprintln(r.out, "Subject cleared")
		return r.studio.SetSubject(ctx, nil)
	}

	img, err := r.loader.Load(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to load subject: %w", err)
	}
	fmt.Fprintf(r.out, "Subject: %s (%s, %s)\n", img.Name, img.MIMEType, humanize.Bytes(uint64(len(img.Data))))
	if err := r.studio.SetSubject(ctx, img); err != nil {
		return err
	}
	r.printSuggestions()
	return nil
}

// ReferenceCommand loads the style reference image
type ReferenceCommand struct{}

func (c *ReferenceCommand) Name() string        { return "reference" }
func (c *ReferenceCommand) Aliases() []string   { return []string{"ref"} }
func (c *ReferenceCommand) Description() string { return "Upload the style reference (file or URL)" }
func (c *ReferenceCommand) Usage() string       { return "reference <file|url|clear>" }

func (c *ReferenceCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	if strings.EqualFold(args[0], "clear") {
		fmt.Fprintln(r.out, "Reference cleared")
		return r.studio.SetReference(ctx, nil)
	}

	img, err := r.loader.Load(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to load reference: %w", err)
	}
	fmt.Fprintf(r.out, "Reference: %s (%s, %s)\n", img.Name, img.MIMEType, humanize.Bytes(uint64(len(img.Data))))
	if err := r.studio.SetReference(ctx, img); err != nil {
		return err
	}
	r.printSuggestions()
	return nil
}

// PresetsCommand lists the catalog
type PresetsCommand struct{}

func (c *PresetsCommand) Name() string        { return "presets" }
func (c *PresetsCommand) Aliases() []string   { return []string{"p", "catalog"} }
func (c *PresetsCommand) Description() string { return "List presets, optionally for one category" }
func (c *PresetsCommand) Usage() string       { return "presets [category]" }

func (c *PresetsCommand) Execute(_ context.Context, r *REPL, args []string) error {
	cats := models.Categories()
	if len(args) > 0 {
		cat, err := models.ParseCategory(args[0])
		if err != nil {
			return fmt.Errorf("%w: %s", err, args[0])
		}
		cats = []models.Category{cat}
	}

	sel := r.studio.Selections()
	for i, cat := range cats {
		if i > 0 {
			fmt.Fprintln(r.out)
		}
		fmt.Fprintf(r.out, "%s (%s)\n", titler.String(cat.Label()), cat)
		for _, p := range r.studio.Catalog().List(cat) {
			marker := "  "
			if sel.Contains(cat, p.ID) {
				marker = "* "
			}
			fmt.Fprintf(r.out, "%s%-28s %s\n", marker, p.ID, p.Name)
		}
	}
	return nil
}

// ToggleCommand adds or removes a preset
type ToggleCommand struct{}

func (c *ToggleCommand) Name() string        { return "toggle" }
func (c *ToggleCommand) Aliases() []string   { return []string{"t"} }
func (c *ToggleCommand) Description() string { return "Select or deselect a preset (leaves auto mode)" }
func (c *ToggleCommand) Usage() string       { return "toggle <category> <preset-id>" }

func (c *ToggleCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	cat, err := models.ParseCategory(args[0])
	if err != nil {
		return fmt.Errorf("%w: %s", err, args[0])
	}

	selected, err := r.studio.Toggle(cat, args[1])
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "%s: %s\n", titler.String(cat.Label()), presetNames(selected))
	return nil
}

// SelectionCommand prints the current selection
type SelectionCommand struct{}

func (c *SelectionCommand) Name() string        { return "selection" }
func (c *SelectionCommand) Aliases() []string   { return []string{"sel"} }
func (c *SelectionCommand) Description() string { return "Show selected presets per category" }
func (c *SelectionCommand) Usage() string       { return "selection [clear]" }

func (c *SelectionCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if len(args) > 0 {
		if !strings.EqualFold(args[0], "clear") {
			return fmt.Errorf("usage: %s", c.Usage())
		}
		r.studio.Selections().ClearAll()
		fmt.Fprintln(r.out, "Selection cleared")
		return nil
	}

	if r.studio.Selections().Empty() {
		fmt.Fprintln(r.out, "No presets selected")
		return nil
	}
	snap := r.studio.Selections().Snapshot()
	for _, cat := range models.Categories() {
		if presets := snap[cat]; len(presets) > 0 {
			fmt.Fprintf(r.out, "%-16s %s\n", titler.String(cat.Label())+":", presetNames(presets))
		}
	}
	return nil
}

// AutoCommand switches AI suggestion mode
type AutoCommand struct{}

func (c *AutoCommand) Name() string        { return "auto" }
func (c *AutoCommand) Aliases() []string   { return []string{"composite"} }
func (c *AutoCommand) Description() string { return "Let the AI pick the presets" }
func (c *AutoCommand) Usage() string       { return "auto [on|off]" }

func (c *AutoCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		fmt.Fprintf(r.out, "Auto mode: %s\n", onOff(r.studio.AutoMode()))
		return nil
	}

	var on bool
	switch strings.ToLower(args[0]) {
	case "on", "true", "1":
		on = true
	case "off", "false", "0":
	default:
		return fmt.Errorf("usage: %s", c.Usage())
	}

	if on && (r.studio.Subject() == nil || r.studio.Reference() == nil) {
		fmt.Fprintln(r.out, "Auto mode on. Suggestions run once both images are uploaded.")
	}
	if err := r.studio.SetAutoMode(ctx, on); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Auto mode: %s\n", onOff(r.studio.AutoMode()))
	r.printSuggestions()
	return nil
}

// AnalyzeCommand reruns the suggestion request
type AnalyzeCommand struct{}

func (c *AnalyzeCommand) Name() string        { return "analyze" }
func (c *AnalyzeCommand) Aliases() []string   { return []string{"suggest"} }
func (c *AnalyzeCommand) Description() string { return "Ask the AI for preset suggestions now" }
func (c *AnalyzeCommand) Usage() string       { return "analyze" }

func (c *AnalyzeCommand) Execute(ctx context.Context, r *REPL, _ []string) error {
	if r.studio.Subject() == nil || r.studio.Reference() == nil {
		return errors.New("analysis needs both a subject and a reference image")
	}
	fmt.Fprintln(r.out, "Analyzing subject and reference...")
	if err := r.studio.Reconcile(ctx); err != nil {
		return err
	}
	r.printSuggestions()
	return nil
}

// BriefCommand sets the creative brief
type BriefCommand struct{}

func (c *BriefCommand) Name() string        { return "brief" }
func (c *BriefCommand) Aliases() []string   { return []string{"b"} }
func (c *BriefCommand) Description() string { return "Show, set or clear the creative brief" }
func (c *BriefCommand) Usage() string       { return "brief [text|clear]" }

func (c *BriefCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		if b := r.studio.Brief(); b != "" {
			fmt.Fprintf(r.out, "Brief: %s\n", b)
		} else {
			fmt.Fprintln(r.out, "No brief set")
		}
		return nil
	}
	if len(args) == 1 && strings.EqualFold(args[0], "clear") {
		r.studio.SetBrief("")
		fmt.Fprintln(r.out, "Brief cleared")
		return nil
	}
	r.studio.SetBrief(strings.Join(args, " "))
	fmt.Fprintf(r.out, "Brief: %s\n", r.studio.Brief())
	return nil
}

// BriefsCommand asks for brief ideas or adopts one
type BriefsCommand struct{}

func (c *BriefsCommand) Name() string        { return "briefs" }
func (c *BriefsCommand) Aliases() []string   { return []string{"ideas"} }
func (c *BriefsCommand) Description() string { return "Suggest creative briefs, or use suggestion n" }
func (c *BriefsCommand) Usage() string       { return "briefs [n]" }

func (c *BriefsCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("usage: %s", c.Usage())
		}
		b, err := r.studio.UseBrief(n - 1)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "Brief: %s\n", b.Text)
		return nil
	}

	fmt.Fprintln(r.out, "Asking for creative directions...")
	briefs, err := r.studio.SuggestBriefs(ctx)
	if err != nil {
		return err
	}
	for i, b := range briefs {
		fmt.Fprintf(r.out, "[%d] %s\n    %s\n", i+1, b.Title, b.Text)
	}
	fmt.Fprintln(r.out, "Use one with 'briefs <n>'.")
	return nil
}

// ExportCommand shows or changes export settings
type ExportCommand struct{}

func (c *ExportCommand) Name() string        { return "export" }
func (c *ExportCommand) Aliases() []string   { return []string{"aspect", "ar"} }
func (c *ExportCommand) Description() string { return "Set aspect ratio and background" }
func (c *ExportCommand) Usage() string       { return "export [ratio] [transparent|opaque]" }

func (c *ExportCommand) Execute(_ context.Context, r *REPL, args []string) error {
	for _, arg := range args {
		switch strings.ToLower(arg) {
		case "transparent", "png":
			r.studio.SetTransparent(true)
		case "opaque", "solid":
			r.studio.SetTransparent(false)
		default:
			if err := r.studio.SetAspectRatio(models.AspectRatio(arg)); err != nil {
				fmt.Fprintf(r.out, "Valid ratios: %s\n", ratioList())
				return err
			}
		}
	}

	e := r.studio.Export()
	bg := "opaque"
	if e.Transparent {
		bg = "transparent"
	}
	fmt.Fprintf(r.out, "Export: %s %s, %s background\n", e.AspectRatio, e.AspectRatio.Label(), bg)
	return nil
}

// PromptCommand prints the composed prompt
type PromptCommand struct{}

func (c *PromptCommand) Name() string        { return "prompt" }
func (c *PromptCommand) Aliases() []string   { return []string{"compose"} }
func (c *PromptCommand) Description() string { return "Print the prompt the next generation sends" }
func (c *PromptCommand) Usage() string       { return "prompt" }

func (c *PromptCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	fmt.Fprintln(r.out, r.studio.ComposePrompt())
	return nil
}

// GenerateCommand renders the product shot
type GenerateCommand struct{}

func (c *GenerateCommand) Name() string        { return "generate" }
func (c *GenerateCommand) Aliases() []string   { return []string{"gen", "g"} }
func (c *GenerateCommand) Description() string { return "Generate the product image" }
func (c *GenerateCommand) Usage() string       { return "generate" }

func (c *GenerateCommand) Execute(ctx context.Context, r *REPL, _ []string) error {
	fmt.Fprintln(r.out, "Generating...")
	a, err := r.studio.Generate(ctx)
	if err != nil {
		return err
	}
	r.present(a)
	return nil
}

// UpscaleCommand upscales the current artifact
type UpscaleCommand struct{}

func (c *UpscaleCommand) Name() string        { return "upscale" }
func (c *UpscaleCommand) Aliases() []string   { return []string{"up"} }
func (c *UpscaleCommand) Description() string { return "Upscale the current image to HD or 4K" }
func (c *UpscaleCommand) Usage() string       { return "upscale <hd|4k>" }

func (c *UpscaleCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	target, err := models.ParseUpscaleTarget(args[0])
	if err != nil {
		return fmt.Errorf("%w: %s", err, args[0])
	}

	fmt.Fprintf(r.out, "Upscaling to %s (%dpx long edge)...\n", strings.ToUpper(target.String()), target.LongEdge())
	a, err := r.studio.Upscale(ctx, target)
	if err != nil {
		return err
	}
	r.present(a)
	return nil
}

// DownloadCommand writes the current artifact to disk
type DownloadCommand struct{}

func (c *DownloadCommand) Name() string        { return "download" }
func (c *DownloadCommand) Aliases() []string   { return []string{"save", "s"} }
func (c *DownloadCommand) Description() string { return "Save the current image to a file" }
func (c *DownloadCommand) Usage() string       { return "download [filename]" }

func (c *DownloadCommand) Execute(_ context.Context, r *REPL, args []string) error {
	a := r.studio.Artifact()
	if a == nil {
		return errors.New("no current image to save - use 'generate' first")
	}

	dest := ""
	if len(args) > 0 {
		dest = args[0]
		if err := security.ValidateSavePath(dest); err != nil {
			return fmt.Errorf("invalid save path: %w", err)
		}
	}

	path, err := r.saver.Save(a, dest)
	if err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}
	fmt.Fprintf(r.out, "Saved: %s\n", path)
	return nil
}

// ShowCommand displays the current artifact
type ShowCommand struct{}

func (c *ShowCommand) Name() string        { return "show" }
func (c *ShowCommand) Aliases() []string   { return []string{"display", "view"} }
func (c *ShowCommand) Description() string { return "Display the current image" }
func (c *ShowCommand) Usage() string       { return "show" }

func (c *ShowCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	a := r.studio.Artifact()
	if a == nil {
		return errors.New("no current image to display")
	}
	fmt.Fprintln(r.out, display.Describe(a))
	return r.displayer.Show(a)
}

// StatusCommand summarizes the studio
type StatusCommand struct{}

func (c *StatusCommand) Name() string        { return "status" }
func (c *StatusCommand) Aliases() []string   { return []string{"st"} }
func (c *StatusCommand) Description() string { return "Show images, modes, phases and the last error" }
func (c *StatusCommand) Usage() string       { return "status" }

func (c *StatusCommand) Execute(ctx context.Context, r *REPL, _ []string) error {
	st := r.studio.Status(ctx)

	fmt.Fprintf(r.out, "Session:    %s\n", st.SessionID)
	fmt.Fprintf(r.out, "Subject:    %s\n", digestLabel(st.HasSubject, st.SubjectDigest))
	fmt.Fprintf(r.out, "Reference:  %s\n", digestLabel(st.HasReference, st.ReferenceDigest))
	fmt.Fprintf(r.out, "Auto mode:  %s\n", onOff(st.AutoMode))
	fmt.Fprintf(r.out, "Export:     %s, transparent %s\n", st.Export.AspectRatio, onOff(st.Export.Transparent))
	fmt.Fprintf(r.out, "Generation: %s\n", st.Generation)
	if st.UpscaleTarget != "" {
		fmt.Fprintf(r.out, "Upscale:    %s (%s)\n", st.Upscale, st.UpscaleTarget)
	} else {
		fmt.Fprintf(r.out, "Upscale:    %s\n", st.Upscale)
	}
	fmt.Fprintf(r.out, "Network:    %s\n", map[bool]string{true: "online", false: "offline"}[st.Online])
	if a := r.studio.Artifact(); a != nil {
		fmt.Fprintf(r.out, "Image:      %s\n", display.Describe(a))
	}
	if st.Brief != "" {
		fmt.Fprintf(r.out, "Brief:      %s\n", truncate(st.Brief, 60))
	}
	if st.Error != nil {
		fmt.Fprintf(r.out, "Last error: %s\n", st.Error.Message)
	}
	return nil
}

// HistoryCommand lists journaled renders
type HistoryCommand struct{}

func (c *HistoryCommand) Name() string        { return "history" }
func (c *HistoryCommand) Aliases() []string   { return []string{"h", "hist"} }
func (c *HistoryCommand) Description() string { return "Show renders saved in this session" }
func (c *HistoryCommand) Usage() string       { return "history" }

func (c *HistoryCommand) Execute(ctx context.Context, r *REPL, _ []string) error {
	if r.journal == nil {
		return errors.New("render history is disabled")
	}
	history, err := r.journal.History(ctx)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Fprintln(r.out, "No history yet")
		return nil
	}

	currentID := ""
	if last := r.journal.LastRender(); last != nil {
		currentID = last.ID
	}
	for i, rd := range history {
		marker := "  "
		if rd.ID == currentID {
			marker = "> "
		}
		label := rd.Operation
		if rd.Metadata.Target != "" {
			label += " " + rd.Metadata.Target
		}
		fmt.Fprintf(r.out, "%s[%d] %s %-11s %8s  %s\n",
			marker,
			i+1,
			journal.FormatTimestamp(rd.Timestamp),
			label,
			humanize.Bytes(uint64(rd.ByteSize)),
			rd.ImagePath)
	}
	return nil
}

// HelpCommand shows available commands
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Aliases() []string   { return []string{"?"} }
func (c *HelpCommand) Description() string { return "Show available commands" }
func (c *HelpCommand) Usage() string       { return "help" }

func (c *HelpCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	fmt.Fprintln(r.out, "Available commands:")
	fmt.Fprintln(r.out)

	for _, cmd := range allCommands() {
		aliases := ""
		if len(cmd.Aliases()) > 0 {
			aliases = fmt.Sprintf(" (%s)", strings.Join(cmd.Aliases(), ", "))
		}
		fmt.Fprintf(r.out, "  %-26s%s\n", cmd.Name()+aliases, cmd.Description())
		fmt.Fprintf(r.out, "  %-26sUsage: %s\n", "", cmd.Usage())
	}

	return nil
}

// QuitCommand exits the REPL
type QuitCommand struct{}

func (c *QuitCommand) Name() string        { return "quit" }
func (c *QuitCommand) Aliases() []string   { return []string{"exit", "q"} }
func (c *QuitCommand) Description() string { return "Exit interactive mode" }
func (c *QuitCommand) Usage() string       { return "quit" }

func (c *QuitCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	fmt.Fprintln(r.out, "Goodbye!")
	r.Stop()
	return nil
}

func (r *REPL) present(a *models.Artifact) {
	if err := r.displayer.Show(a); err != nil && !errors.Is(err, display.ErrUnsupportedTerminal) {
		fmt.Fprintf(r.err, "Warning: failed to display: %v\n", err)
	}
	fmt.Fprintf(r.out, "Done: %s\n", display.Describe(a))
	if r.journal != nil {
		if last := r.journal.LastRender(); last != nil {
			fmt.Fprintf(r.out, "Saved: %s\n", last.ImagePath)
		}
	}
}

func (r *REPL) printSuggestions() {
	if !r.studio.AutoMode() {
		return
	}
	s := r.studio.Suggestions()
	if len(s) == 0 {
		return
	}
	fmt.Fprintln(r.out, "AI suggestions:")
	for _, cat := range models.Categories() {
		if presets := r.studio.Selections().Get(cat); len(presets) > 0 {
			fmt.Fprintf(r.out, "  %-16s %s\n", titler.String(cat.Label())+":", presetNames(presets))
		}
	}
}

func presetNames(presets []models.Preset) string {
	if len(presets) == 0 {
		return "(none)"
	}
	names := make([]string, len(presets))
	for i, p := range presets {
		names[i] = p.Name
	}
	return strings.Join(names, ", ")
}

func ratioList() string {
	ratios := models.ValidAspectRatios()
	out := make([]string, len(ratios))
	for i, a := range ratios {
		out[i] = a.String()
	}
	return strings.Join(out, " ")
}

func digestLabel(ok bool, digest string) string {
	if !ok {
		return "(none)"
	}
	return "sha256:" + digest
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
