package main

import (
	"fmt"
	"os"

	"github.com/drummonds/dtools/config"
	"github.com/drummonds/dtools/engine/pdfrenderer"
	"github.com/spf13/cobra"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <input.pdf>",
		Short: "Show the title, author and page count of a PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			info, err := pdfrenderer.ReadInfo(data)
			if err != nil {
				// The metadata parser is stricter than the renderers, so fall
				// back to a page count from the engine
				info, err = engineInfo(cmd, data)
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Title:  %s\n", orNone(info.Title))
			fmt.Fprintf(out, "Author: %s\n", orNone(info.Author))
			fmt.Fprintf(out, "Pages:  %d\n", info.PageCount)
			return nil
		},
	}
}

func engineInfo(cmd *cobra.Command, data []byte) (pdfrenderer.Info, error) {
	renderCfg := config.LoadRenderConfig()
	engine, err := newEngine(pdfrenderer.Config{
		Backend:         renderCfg.Backend,
		MaxInstances:    renderCfg.MaxInstances,
		InstanceTimeout: renderCfg.InstanceTimeout,
	})
	if err != nil {
		return pdfrenderer.Info{}, err
	}
	defer engine.Close()

	doc, err := engine.Open(cmd.Context(), data)
	if err != nil {
		return pdfrenderer.Info{}, err
	}
	defer doc.Close()
	return pdfrenderer.Info{PageCount: doc.PageCount()}, nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
