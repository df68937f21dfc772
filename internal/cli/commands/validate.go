package commands

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/objrt/internal/cli/ui"
	"github.com/conduit-lang/objrt/internal/typedef"
	"github.com/conduit-lang/objrt/internal/watch"
)

type validateOptions struct {
	global *globalOptions
	watch  bool
}

// NewValidateCommand creates the validate command
func NewValidateCommand(global *globalOptions) *cobra.Command {
	opts := &validateOptions{global: global}

	cmd := &cobra.Command{
		Use:   "validate [files...]",
		Short: "Check type definition files",
		Long: `Parse and validate type definition files, then register them with a
scratch registry. Every problem found is reported, not only the first.

Without arguments the files listed under "types" in objrt.yaml are used.
With --watch the files are checked again whenever they change.`,
		Example: `  objrt validate types/widgets.yaml types/labels.yaml
  objrt validate --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, opts, args)
		},
	}

	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "validate again on every change")

	return cmd
}

func runValidate(cmd *cobra.Command, opts *validateOptions, args []string) error {
	files, err := definitionFiles(opts.global, args)
	if err != nil {
		return err
	}

	err = validateFiles(cmd, opts.global, files)
	if !opts.watch {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := watch.New(files, watch.DefaultDelay, func(changed []string) {
		fmt.Fprintln(cmd.OutOrStdout())
		ui.Message{Level: ui.LevelInfo, Subject: "changed: " + fmt.Sprint(changed),
			NoColor: opts.global.noColor}.Write(cmd.OutOrStdout())
		_ = validateFiles(cmd, opts.global, files)
	}, zap.NewNop())
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		_ = w.Stop()
		return err
	}

	<-ctx.Done()
	return w.Stop()
}

// validateFiles loads files into a scratch registry and reports the outcome
func validateFiles(cmd *cobra.Command, global *globalOptions, files []string) error {
	_, doc, types, err := loadTypes(files, zap.NewNop())
	if err != nil {
		reportInvalid(cmd, global, err)
		return fmt.Errorf("validation failed")
	}

	ui.Success(cmd.OutOrStdout(), global.noColor, "%d interfaces and %d types valid (%d registered)",
		len(doc.Interfaces), len(doc.Types), len(types))
	return nil
}

func reportInvalid(cmd *cobra.Command, global *globalOptions, err error) {
	out := cmd.ErrOrStderr()

	var verrs typedef.ValidationErrors
	if !errors.As(err, &verrs) {
		ui.Message{Level: ui.LevelError, Title: "invalid definitions", Detail: []string{err.Error()},
			NoColor: global.noColor}.Write(out)
		return
	}

	for _, verr := range verrs {
		subject := verr.Type
		if verr.Member != "" {
			subject += "." + verr.Member
		}
		msg := ui.Message{
			Level:   ui.LevelError,
			Title:   "invalid definition",
			Subject: subject,
			Detail:  []string{verr.Message},
			NoColor: global.noColor,
		}
		if verr.Source != "" {
			msg.Detail = append(msg.Detail, "in "+verr.Source)
		}
		if verr.Hint != "" {
			msg.Commands = []string{verr.Hint}
		}
		msg.Write(out)
	}
}
