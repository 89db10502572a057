// Package batch runs a list of product shots through fresh studio sessions.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/manash/prodstudio/internal/image"
	"github.com/manash/prodstudio/internal/studio"
	"github.com/manash/prodstudio/pkg/models"
)

var ErrAutoNeedsReference = errors.New("auto mode needs a reference image")

type Result struct {
	Index    int
	Subject  string
	Path     string
	Bytes    int
	Error    error
	Duration time.Duration
}

type Options struct {
	OutputDir   string
	Style       Style
	Upscale     models.UpscaleTarget
	Parallel    int
	StopOnError bool
	DelayMs     int
}

// Processor owns no session state; every item gets its own studio.
type Processor struct {
	newSession func() *studio.Session
	loader     *image.Loader
	saver      *image.Saver
	out        io.Writer
	err        io.Writer
	outMu      sync.Mutex
}

func NewProcessor(newSession func() *studio.Session, loader *image.Loader, saver *image.Saver, out, errOut io.Writer) *Processor {
	return &Processor{
		newSession: newSession,
		loader:     loader,
		saver:      saver,
		out:        out,
		err:        errOut,
	}
}

func (p *Processor) printf(format string, args ...any) {
	p.outMu.Lock()
	fmt.Fprintf(p.out, format, args...)
	p.outMu.Unlock()
}

func (p *Processor) errorf(format string, args ...any) {
	p.outMu.Lock()
	fmt.Fprintf(p.err, format, args...)
	p.outMu.Unlock()
}

func (p *Processor) Process(ctx context.Context, items []Item, opts *Options) ([]Result, error) {
	if opts.Parallel <= 1 {
		return p.processSequential(ctx, items, opts)
	}
	return p.processParallel(ctx, items, opts)
}

func (p *Processor) processSequential(ctx context.Context, items []Item, opts *Options) ([]Result, error) {
	results := make([]Result, len(items))
	total := len(items)

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		results[i] = p.processItem(ctx, item, opts, i+1, total)
		if results[i].Error != nil && opts.StopOnError {
			return results, fmt.Errorf("stopped at item %d: %w", item.Index, results[i].Error)
		}

		if opts.DelayMs > 0 && i < len(items)-1 {
			select {
			case <-ctx.Done():
				return results, ctx.Err()
			case <-time.After(time.Duration(opts.DelayMs) * time.Millisecond):
			}
		}
	}
	return results, nil
}

func (p *Processor) processParallel(ctx context.Context, items []Item, opts *Options) ([]Result, error) {
	results := make([]Result, len(items))
	total := len(items)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(opts.Parallel, len(items)))

	for i, item := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			results[i] = p.processItem(gctx, item, opts, i+1, total)
			if results[i].Error != nil && opts.StopOnError {
				return fmt.Errorf("item %d: %w", item.Index, results[i].Error)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, fmt.Errorf("batch stopped due to error: %w", err)
	}
	return results, ctx.Err()
}

func (p *Processor) processItem(ctx context.Context, item Item, opts *Options, current, total int) Result {
	start := time.Now()
	result := Result{Index: item.Index, Subject: item.Subject}
	fail := func(err error) Result {
		result.Error = err
		result.Duration = time.Since(start)
		p.errorf("       Error: %v\n", err)
		return result
	}

	p.printf("[%d/%d] %s\n", current, total, filepath.Base(item.Subject))

	style := opts.Style.Merge(item.Style)
	if style.Auto && item.Reference == "" {
		return fail(ErrAutoNeedsReference)
	}

	subject, reference, err := p.loader.LoadPair(ctx, item.Subject, item.Reference)
	if err != nil {
		return fail(err)
	}

	sess := p.newSession()
	if err := sess.SetSubject(ctx, subject); err != nil {
		return fail(err)
	}
	if err := sess.SetReference(ctx, reference); err != nil {
		return fail(err)
	}
	if err := style.Apply(ctx, sess); err != nil {
		return fail(err)
	}

	a, err := sess.Generate(ctx)
	if err != nil {
		return fail(fmt.Errorf("generation failed: %w", err))
	}
	if opts.Upscale != "" {
		if a, err = sess.Upscale(ctx, opts.Upscale); err != nil {
			return fail(fmt.Errorf("upscale failed: %w", err))
		}
	}

	name := item.Output
	if name == "" {
		name = generateFilename(item.Index, item.Subject, a.Extension())
	}
	path, err := p.saver.SaveInDir(a, opts.OutputDir, name)
	if err != nil {
		return fail(fmt.Errorf("save failed: %w", err))
	}

	result.Path = path
	result.Bytes = len(a.Data)
	result.Duration = time.Since(start)
	p.printf("       Saved: %s (%s)\n", path, humanize.Bytes(uint64(result.Bytes)))
	return result
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\s_-]`)

// generateFilename names an output after its subject, e.g. "003-blue-bottle.png".
func generateFilename(index int, subject, ext string) string {
	base := filepath.Base(subject)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return fmt.Sprintf("%03d-%s.%s", index, sanitizeName(base), ext)
}

func sanitizeName(name string) string {
	s := unsafeChars.ReplaceAllString(name, "")
	s = strings.ToLower(strings.ReplaceAll(s, "_", " "))
	s = strings.Join(strings.Fields(s), "-")
	s = strings.Trim(s, "-")
	if len(s) > 50 {
		s = strings.TrimSuffix(s[:50], "-")
	}
	if s == "" {
		return "shot"
	}
	return s
}

func (p *Processor) PrintSummary(results []Result) {
	var successful, failed, totalBytes int
	var errs []Result

	for _, r := range results {
		switch {
		case r.Error != nil:
			failed++
			errs = append(errs, r)
		case r.Path != "":
			successful++
			totalBytes += r.Bytes
		}
	}

	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, "Summary:")
	fmt.Fprintf(p.out, "  Successful: %d/%d shots\n", successful, len(results))
	if failed > 0 {
		fmt.Fprintf(p.out, "  Failed: %d (see errors below)\n", failed)
	}
	fmt.Fprintf(p.out, "  Written: %s\n", humanize.Bytes(uint64(totalBytes)))

	if len(errs) > 0 {
		fmt.Fprintln(p.out)
		fmt.Fprintln(p.out, "Errors:")
		for _, e := range errs {
			fmt.Fprintf(p.out, "  [%d] %s: %v\n", e.Index, filepath.Base(e.Subject), e.Error)
		}
	}
}
