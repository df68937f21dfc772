package commands

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/objrt/internal/cli/ui"
	"github.com/conduit-lang/objrt/internal/docs"
)

type docsOptions struct {
	global *globalOptions
	output string
	title  string
}

// NewDocsCommand creates the docs command
func NewDocsCommand(global *globalOptions) *cobra.Command {
	opts := &docsOptions{global: global}

	cmd := &cobra.Command{
		Use:   "docs [files...]",
		Short: "Generate Markdown reference pages for defined types",
		Long: `Load type definition files and write a Markdown page per type plus
a README.md index into the output directory.`,
		Example: `  objrt docs types/*.yaml
  objrt docs --output site/reference --title "Widget Types"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDocs(cmd, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "docs", "output directory")
	cmd.Flags().StringVar(&opts.title, "title", "", "title of the index page")

	return cmd
}

func runDocs(cmd *cobra.Command, opts *docsOptions, args []string) error {
	files, err := definitionFiles(opts.global, args)
	if err != nil {
		return err
	}
	reg, doc, types, err := loadTypes(files, zap.NewNop())
	if err != nil {
		return err
	}

	g := docs.NewMarkdownGenerator(reg, &docs.Config{
		Title:     opts.title,
		OutputDir: opts.output,
		Describe:  doc.Description,
		Source:    doc.Source,
	})
	written, err := g.Generate(types)
	if err != nil {
		return err
	}

	ui.Success(cmd.OutOrStdout(), opts.global.noColor, "Wrote %d pages to %s", len(written), opts.output)
	return nil
}
