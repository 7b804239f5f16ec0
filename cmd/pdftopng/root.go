package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/drummonds/dtools/config"
	"github.com/drummonds/dtools/conversion"
	"github.com/drummonds/dtools/engine/pdfrenderer"
	"github.com/drummonds/dtools/internal/build"
	"github.com/spf13/cobra"
)

// newEngine is swapped out by tests
var newEngine = pdfrenderer.New

type convertOptions struct {
	outputDir string
	scale     float64
	backend   string
	zip       bool
	skipPNG   bool
	quiet     bool
}

func newRootCmd() *cobra.Command {
	opts := &convertOptions{}

	rootCmd := &cobra.Command{
		Use:   "pdftopng <input.pdf>",
		Short: "Convert every page of a PDF to PNG",
		Long: `Render each page of a PDF document to a PNG image.

Pages are written as <name>-page-<n>.png into the output directory.
With --zip the pages are also collected into <name>-pages.zip.
A page that fails to render is reported and skipped, the rest are still written.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			renderCfg, logger := config.SetupCLI()
			conversion.Logger = logger

			if cmd.Flags().Changed("backend") {
				renderCfg.Backend = opts.backend
			}
			if cmd.Flags().Changed("scale") {
				if opts.scale <= 0 {
					return fmt.Errorf("scale must be positive, got %v", opts.scale)
				}
				renderCfg.Scale = config.ClampScale(opts.scale)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			err := runConvert(ctx, cmd, args[0], renderCfg, opts)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
			}
			return err
		},
	}

	rootCmd.Flags().StringVarP(&opts.outputDir, "output", "o", ".", "Directory to write pages into")
	rootCmd.Flags().Float64Var(&opts.scale, "scale", 0, "Render scale, 1 is 72 DPI (default from RENDER_SCALE)")
	rootCmd.Flags().StringVar(&opts.backend, "backend", "", "Render backend: 'pdfium' or 'fitz' (default from RENDER_BACKEND)")
	rootCmd.Flags().BoolVar(&opts.zip, "zip", false, "Also write all pages to <name>-pages.zip")
	rootCmd.Flags().BoolVar(&opts.skipPNG, "zip-only", false, "Write only the zip archive (implies --zip)")
	rootCmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Do not show progress bars")

	rootCmd.AddCommand(newInfoCmd(), newVersionCmd())
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pdftopng %s %s\n", build.Version, build.BuildDate)
		},
	}
}
