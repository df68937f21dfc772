package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/objrt/internal/cli/config"
	"github.com/conduit-lang/objrt/internal/inspect"
	"github.com/conduit-lang/objrt/internal/logging"
	"github.com/conduit-lang/objrt/internal/store"
	"github.com/conduit-lang/objrt/internal/typedef"
	"github.com/conduit-lang/objrt/runtime/object"
)

type serveOptions struct {
	global *globalOptions
	addr   string
}

// NewServeCommand creates the serve command
func NewServeCommand(global *globalOptions) *cobra.Command {
	opts := &serveOptions{global: global}

	cmd := &cobra.Command{
		Use:   "serve [files...]",
		Short: "Serve the inspector over a live registry",
		Long: `Load type definitions, create the configured instances and serve the
HTTP inspector until interrupted.

With a store configured, each instance with a key is restored from the
store at startup and its property changes are saved as they happen.`,
		Example: `  objrt serve
  objrt serve --addr :8080 types/widgets.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "listen address (default inspector.addr)")

	return cmd
}

func runServe(cmd *cobra.Command, opts *serveOptions, args []string) error {
	cfg, err := config.Load(opts.global.configFile)
	if err != nil {
		return err
	}
	if opts.addr != "" {
		cfg.Inspector.Addr = opts.addr
	}

	logger, err := logging.New(cfg.Logging())
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	files := append(append([]string{}, cfg.Types...), args...)
	s, err := openSession(ctx, cfg, files, logger)
	if err != nil {
		return err
	}

	serveErr := s.server.ListenAndServe(ctx)

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.close(closeCtx); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
	return serveErr
}

// session is a registry with its inspector, store and the instances
// created from configuration
type session struct {
	reg     *object.Registry
	server  *inspect.Server
	backend store.Backend
	saver   *store.Autosaver
	objects []*object.Object
	logger  *zap.Logger
}

func openSession(ctx context.Context, cfg *config.Config, files []string, logger *zap.Logger) (*session, error) {
	s := &session{
		reg:    object.NewRegistry(object.WithLogger(logger.Named("object"))),
		logger: logger,
	}

	if len(files) > 0 {
		doc, err := typedef.LoadFiles(files...)
		if err != nil {
			return nil, err
		}
		types, err := doc.Apply(s.reg)
		if err != nil {
			return nil, err
		}
		logger.Info("types loaded", zap.Int("count", len(types)), zap.Strings("files", files))
	}

	server, err := inspect.New(s.reg, cfg.InspectorOptions(), logger.Named("inspect"))
	if err != nil {
		return nil, err
	}
	s.server = server

	if cfg.StoreEnabled() {
		backend, err := store.Open(ctx, cfg.StoreOptions(), logger.Named("store"))
		if err != nil {
			_ = s.close(ctx)
			return nil, err
		}
		s.backend = backend
		s.saver = store.NewAutosaver(backend, cfg.Store.Workers, logger.Named("autosave"))
		s.saver.Start()
	}

	for i, inst := range cfg.Instances {
		if err := s.spawn(ctx, inst); err != nil {
			_ = s.close(ctx)
			return nil, fmt.Errorf("instances[%d]: %w", i, err)
		}
	}
	return s, nil
}

// spawn creates one configured instance, restoring and tracking it when a
// store is configured
func (s *session) spawn(ctx context.Context, inst config.InstanceConfig) error {
	t, ok := s.reg.Lookup(inst.Type)
	if !ok {
		return fmt.Errorf("type '%s': %w", inst.Type, object.ErrUnknownType)
	}
	obj, err := s.reg.New(t)
	if err != nil {
		return err
	}
	s.objects = append(s.objects, obj)

	if s.saver == nil || inst.Key == "" {
		s.logger.Info("instance created", zap.String("instance", obj.String()))
		return nil
	}

	restored := true
	if err := store.NewObjectStore(s.backend, s.logger).Load(ctx, inst.Key, obj); err != nil {
		if !store.IsNotFound(err) {
			return err
		}
		restored = false
	}
	if err := s.saver.Track(ctx, inst.Key, obj); err != nil {
		return err
	}
	s.logger.Info("instance created",
		zap.String("instance", obj.String()),
		zap.String("key", inst.Key),
		zap.Bool("restored", restored))
	return nil
}

// close saves tracked instances, releases them and closes the store
func (s *session) close(ctx context.Context) error {
	var errs []error
	if s.saver != nil {
		errs = append(errs, s.saver.Shutdown(ctx))
		s.saver = nil
	}
	for _, obj := range s.objects {
		obj.Unref()
	}
	s.objects = nil
	if s.server != nil {
		s.server.Close()
	}
	if s.backend != nil {
		errs = append(errs, s.backend.Close())
		s.backend = nil
	}
	return errors.Join(errs...)
}
