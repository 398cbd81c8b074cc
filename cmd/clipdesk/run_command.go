package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/clipdesk/clipdesk/internal/backend"
	"github.com/clipdesk/clipdesk/internal/clips"
	"github.com/clipdesk/clipdesk/internal/config"
	"github.com/clipdesk/clipdesk/internal/controller"
	"github.com/clipdesk/clipdesk/internal/history"
	"github.com/clipdesk/clipdesk/internal/logging"
	"github.com/clipdesk/clipdesk/internal/probe"
)

type runOptions struct {
	video     string
	movements []string
	selects   []string
	trims     []string
	output    string
	edl       bool
}

// trimSpec is one parsed --trim flag.
type trimSpec struct {
	name       string
	start, end float64
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Upload a video, extract movement clips and download a selection",
		Example: `  clipdesk run --video workout.mov --movement "arm swings" --movement Squat
  clipdesk run --video workout.mov --movement Squat --select Squat_01 --trim Squat_01=0.5:2.5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return runWorkflow(cmd.Context(), ctx, cfg, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.video, "video", "", "Video file to upload (mp4, avi, mov)")
	cmd.Flags().StringArrayVarP(&opts.movements, "movement", "m", nil, "Movement label (repeatable)")
	cmd.Flags().StringSliceVar(&opts.selects, "select", []string{"all"}, "Clips to download: all or display names")
	cmd.Flags().StringArrayVar(&opts.trims, "trim", nil, "Trim a clip as name=start:end seconds (repeatable)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Directory for the archive (default: downloads dir)")
	cmd.Flags().BoolVar(&opts.edl, "edl", false, "Also write an EDL of the selection")
	_ = cmd.MarkFlagRequired("video")

	return cmd
}

func runWorkflow(parent context.Context, cc *commandContext, cfg *config.EnvConfig, opts *runOptions, out io.Writer) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	trims, err := parseTrims(opts.trims)
	if err != nil {
		return err
	}
	outputDir := opts.output
	if outputDir == "" {
		outputDir = cfg.DownloadsDir()
	}

	logger := cc.logger(os.Stderr, "text")

	var repo history.Repository
	if database, r, err := cc.openHistory(logger); err != nil {
		logger.Warn("history unavailable, continuing without it", "error", err)
	} else {
		defer database.Close()
		repo = r
	}

	var prober probe.Prober
	if cfg.ProbeUploads() {
		prober = probe.NewFFProbe(logger)
	}

	ctl := controller.New(controller.Options{
		Backend: backend.NewHTTPClient(cfg.BackendURL(), cfg.RequestTimeout(), logger),
		History: repo,
		Prober:  prober,
		Alerter: controller.AlerterFunc(func(message string) {
			fmt.Fprintln(os.Stderr, message)
		}),
		Logger:            logger,
		Debounce:          cfg.Debounce(),
		ProgressGrace:     controller.NoProgressGrace,
		ArchiveName:       cfg.ArchiveName(),
		LookupConcurrency: cfg.LookupConcurrency(),
	})
	defer ctl.Close()

	progress := newRunProgress(os.Stderr, logging.IsTerminal(os.Stderr))
	unsubscribe := ctl.Subscribe(progress.handle)
	defer unsubscribe()

	if _, err := ctl.Upload(ctx, opts.video); err != nil {
		return err
	}

	for _, m := range opts.movements {
		if err := ctl.SetMovement(ctl.AddMovement(), m); err != nil {
			return err
		}
	}

	resp, err := ctl.Process(ctx)
	if err != nil {
		return err
	}
	ctl.Wait()
	progress.finish()

	if resp.Movements.SegmentCount() == 0 {
		fmt.Fprintln(out, "No clips were extracted.")
		return nil
	}

	if err := applyTrims(ctl, trims); err != nil {
		return err
	}

	view := ctl.View()
	ids, err := resolveSelection(view.Groups, opts.selects)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := ctl.SetSelected(id, true); err != nil {
			return err
		}
	}

	fmt.Fprintln(out, renderClipTable(ctl.View().Groups))

	if len(ids) == 0 {
		fmt.Fprintln(out, "No clips selected; nothing to download.")
		return nil
	}

	res, err := ctl.DownloadSelected(ctx, outputDir)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Saved %d clips to %s (%s)\n", res.ClipCount, res.Path, humanize.Bytes(uint64(res.SizeBytes)))

	if opts.edl {
		title := strings.TrimSuffix(filepath.Base(opts.video), filepath.Ext(opts.video))
		edl, err := ctl.ExportEDL(outputDir, title)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote EDL to %s\n", edl.OutputPath)
	}
	return nil
}

// parseTrims parses name=start:end flags.
func parseTrims(values []string) ([]trimSpec, error) {
	specs := make([]trimSpec, 0, len(values))
	for _, v := range values {
		i := strings.LastIndex(v, "=")
		if i <= 0 {
			return nil, fmt.Errorf("invalid --trim %q: want name=start:end", v)
		}
		name := strings.TrimSpace(v[:i])
		startS, endS, ok := strings.Cut(v[i+1:], ":")
		if !ok {
			return nil, fmt.Errorf("invalid --trim %q: want name=start:end", v)
		}
		start, err := strconv.ParseFloat(strings.TrimSpace(startS), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --trim %q start: %w", v, err)
		}
		end, err := strconv.ParseFloat(strings.TrimSpace(endS), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --trim %q end: %w", v, err)
		}
		if start > end {
			return nil, fmt.Errorf("invalid --trim %q: start after end", v)
		}
		specs = append(specs, trimSpec{name: name, start: start, end: end})
	}
	return specs, nil
}

type trimmer interface {
	FindClip(name string) (clips.Clip, bool)
	SetTrim(id string, start, end float64) (clips.Clip, error)
}

func applyTrims(t trimmer, specs []trimSpec) error {
	for _, s := range specs {
		cl, ok := t.FindClip(s.name)
		if !ok {
			return fmt.Errorf("trim: unknown clip %q", s.name)
		}
		if _, err := t.SetTrim(cl.ID, s.start, s.end); err != nil {
			if errors.Is(err, clips.ErrControlsDisabled) {
				return fmt.Errorf("trim %s: duration unknown, clip cannot be trimmed", s.name)
			}
			return fmt.Errorf("trim %s: %w", s.name, err)
		}
	}
	return nil
}

// resolveSelection maps --select values to clip ids in board order. "all"
// selects every clip.
func resolveSelection(groups []clips.Group, names []string) ([]string, error) {
	want := make(map[string]bool, len(names))
	all := false
	for _, n := range names {
		n = strings.TrimSpace(n)
		switch {
		case n == "":
		case strings.EqualFold(n, "all"):
			all = true
		default:
			want[n] = true
		}
	}

	var ids []string
	for _, g := range groups {
		for _, c := range g.Clips {
			if all || want[c.Name] {
				ids = append(ids, c.ID)
				delete(want, c.Name)
			}
		}
	}

	if len(want) > 0 && !all {
		missing := make([]string, 0, len(want))
		for n := range want {
			missing = append(missing, n)
		}
		sort.Strings(missing)
		return nil, fmt.Errorf("unknown clips: %s", strings.Join(missing, ", "))
	}
	return ids, nil
}

func renderClipTable(groups []clips.Group) string {
	var rows [][]string
	for _, g := range groups {
		for _, c := range g.Clips {
			duration := "-"
			if c.Enabled() {
				duration = fmt.Sprintf("%.1fs", c.Duration)
			}
			rows = append(rows, []string{
				c.Name,
				g.Movement,
				fmt.Sprintf("%.1fs - %.1fs", c.SourceStart, c.SourceEnd),
				duration,
				c.TrimLabel(),
				yesNo(c.Selected),
			})
		}
	}
	return renderTable(
		[]string{"Clip", "Movement", "Original", "Length", "Selected Range", "Download"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
	)
}

// runProgress draws upload and processing bars from controller events.
type runProgress struct {
	w       io.Writer
	visible bool

	mu      sync.Mutex
	upload  *progressbar.ProgressBar
	process *progressbar.ProgressBar
	step    string
}

func newRunProgress(w io.Writer, visible bool) *runProgress {
	return &runProgress{w: w, visible: visible}
}

func (p *runProgress) newBar(total int64, description string, bytes bool) *progressbar.ProgressBar {
	opts := []progressbar.Option{
		progressbar.OptionSetWriter(p.w),
		progressbar.OptionSetVisibility(p.visible),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowBytes(bytes),
		progressbar.OptionSetWidth(30),
	}
	if p.visible {
		opts = append(opts, progressbar.OptionOnCompletion(func() { fmt.Fprintln(p.w) }))
	}
	return progressbar.NewOptions64(total, opts...)
}

func (p *runProgress) handle(ev controller.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.Type {
	case controller.EventUploadProgress:
		if p.upload == nil && ev.Total > 0 {
			p.upload = p.newBar(ev.Total, "uploading", true)
		}
		if p.upload != nil {
			_ = p.upload.Set64(ev.Sent)
		}
	case controller.EventUploaded:
		if p.upload != nil {
			_ = p.upload.Finish()
		}
	case controller.EventProgress:
		if p.process == nil || p.step != ev.Step {
			if p.process != nil {
				_ = p.process.Finish()
			}
			p.process = p.newBar(100, ev.Step, false)
			p.step = ev.Step
		}
		_ = p.process.Set(int(ev.Percent))
	case controller.EventProcessingFinished:
		if p.process != nil {
			_ = p.process.Finish()
		}
	}
}

// finish closes any bar still drawing.
func (p *runProgress) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, b := range []*progressbar.ProgressBar{p.upload, p.process} {
		if b != nil && !b.IsFinished() {
			_ = b.Finish()
		}
	}
}
