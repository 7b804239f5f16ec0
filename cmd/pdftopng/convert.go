package main

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/drummonds/dtools/config"
	"github.com/drummonds/dtools/conversion"
	"github.com/drummonds/dtools/engine/pdfrenderer"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// runConvert renders input and writes the results described by opts
func runConvert(ctx context.Context, cmd *cobra.Command, input string, renderCfg config.RenderConfig, opts *convertOptions) error {
	stat, err := os.Stat(input)
	if err != nil {
		return fmt.Errorf("input file does not exist: %s", input)
	}
	f, err := os.Open(input)
	if err != nil {
		return err
	}
	defer f.Close()

	engine, err := newEngine(pdfrenderer.Config{
		Backend:         renderCfg.Backend,
		MaxInstances:    renderCfg.MaxInstances,
		InstanceTimeout: renderCfg.InstanceTimeout,
	})
	if err != nil {
		return err
	}
	defer engine.Close()

	state := conversion.NewState()
	if !opts.quiet {
		reporter := &progressReporter{out: cmd.ErrOrStderr(), size: stat.Size()}
		state.Watch(reporter.observe)
	}

	converter := &conversion.Converter{Engine: engine, Scale: renderCfg.Scale}
	sess, err := converter.Convert(ctx, state, conversion.Upload{
		Name:         filepath.Base(input),
		DeclaredType: declaredType(input),
		Size:         stat.Size(),
		Body:         f,
	})
	if err != nil {
		return fmt.Errorf("%s (%w)", conversion.Message(err), err)
	}

	written, err := writeOutputs(sess, opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, path := range written {
		fmt.Fprintln(out, path)
	}
	ok, failed := sess.Counts()
	fmt.Fprintf(out, "Converted %d of %d pages of %s\n", ok, sess.PageCount, sess.Name)
	if failed > 0 {
		for _, p := range sess.Pages {
			if !p.OK() {
				fmt.Fprintf(cmd.ErrOrStderr(), "page %d: %s\n", p.PageNumber, conversion.Message(p.Err))
			}
		}
		return fmt.Errorf("%d of %d pages failed", failed, sess.PageCount)
	}
	return nil
}

// declaredType stands in for the browser's file type, from the extension
func declaredType(path string) string {
	return mime.TypeByExtension(filepath.Ext(path))
}

// writeOutputs writes the converted pages and/or the archive, returning the paths written
func writeOutputs(sess *conversion.Session, opts *convertOptions) ([]string, error) {
	if err := os.MkdirAll(opts.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	var written []string
	if !opts.skipPNG {
		for _, p := range sess.Pages {
			if !p.OK() {
				continue
			}
			path := filepath.Join(opts.outputDir, conversion.PageFileName(sess.Name, p.PageNumber))
			if err := os.WriteFile(path, p.Data, 0o644); err != nil {
				return written, fmt.Errorf("writing page %d: %w", p.PageNumber, err)
			}
			written = append(written, path)
		}
	}

	if opts.zip || opts.skipPNG {
		path := filepath.Join(opts.outputDir, conversion.ArchiveName(sess.Name))
		if err := writeArchiveFile(path, sess); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

func writeArchiveFile(path string, sess *conversion.Session) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %w", conversion.ErrArchive, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("%w: %w", conversion.ErrArchive, cerr)
		}
		if err != nil {
			os.Remove(path)
		}
	}()

	_, err = conversion.WriteArchive(f, sess)
	return err
}

// progressReporter draws a byte bar while the file loads and a page bar
// while it renders. State watchers are called one at a time.
type progressReporter struct {
	out   io.Writer
	size  int64
	load  *progressbar.ProgressBar
	pages *progressbar.ProgressBar
}

func (r *progressReporter) observe(change conversion.Change) {
	cur := change.Current
	if cur == nil {
		return
	}
	if cur.Err != nil {
		r.finish()
		return
	}

	if cur.PageCount == 0 {
		if r.load == nil && r.size > 0 {
			r.load = progressbar.NewOptions64(r.size,
				progressbar.OptionSetWriter(r.out),
				progressbar.OptionSetDescription("Reading "+cur.Name),
				progressbar.OptionShowBytes(true),
				progressbar.OptionSetWidth(50),
				progressbar.OptionThrottle(65*time.Millisecond),
				progressbar.OptionOnCompletion(func() { fmt.Fprintln(r.out) }),
			)
		}
		if r.load != nil {
			_ = r.load.Set64(int64(cur.UploadProgress * float64(r.size)))
		}
		return
	}

	if r.pages == nil {
		if r.load != nil && !r.load.IsFinished() {
			_ = r.load.Finish()
		}
		r.pages = progressbar.NewOptions(cur.PageCount,
			progressbar.OptionSetWriter(r.out),
			progressbar.OptionSetDescription("Rendering pages"),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetWidth(50),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(r.out) }),
		)
	}
	_ = r.pages.Set(len(cur.Pages))
}

func (r *progressReporter) finish() {
	for _, bar := range []*progressbar.ProgressBar{r.load, r.pages} {
		if bar != nil && !bar.IsFinished() {
			_ = bar.Exit()
		}
	}
}
