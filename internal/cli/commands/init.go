package commands

import (
	"bytes"
	"crypto/rand"
	"embed"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/objrt/internal/cli/config"
	"github.com/conduit-lang/objrt/internal/cli/ui"
)

//go:embed templates/*
var templatesFS embed.FS

var storeBackends = []string{"none", "memory", "redis", "sql"}

type initOptions struct {
	global      *globalOptions
	interactive bool
	force       bool
	noExample   bool
	auth        bool

	addr      string
	store     string
	redisAddr string
	sqlDriver string
	sqlDSN    string
}

// initData is the input of the objrt.yaml template
type initData struct {
	Generated string
	Types     []string
	Addr      string
	JWTSecret string
	Backend   string
	RedisAddr string
	SQLDriver string
	SQLDSN    string
	Instances []config.InstanceConfig
}

// NewInitCommand creates the init command
func NewInitCommand(global *globalOptions) *cobra.Command {
	opts := &initOptions{global: global}

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Create objrt.yaml and an example type definition file",
		Long: `Create objrt.yaml in dir (default: the working directory) together
with types/objects.yaml declaring an example Counter type.

With --interactive the inspector address, store backend and authentication
are asked for.`,
		Example: `  objrt init
  objrt init --store sql --sql-dsn objects.db
  objrt init --interactive`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return runInit(cmd, opts, dir)
		},
	}

	cmd.Flags().BoolVarP(&opts.interactive, "interactive", "i", false, "prompt for settings")
	cmd.Flags().BoolVarP(&opts.force, "force", "f", false, "overwrite existing files")
	cmd.Flags().BoolVar(&opts.noExample, "no-example", false, "do not write types/objects.yaml")
	cmd.Flags().BoolVar(&opts.auth, "auth", false, "generate an inspector JWT secret")
	cmd.Flags().StringVar(&opts.addr, "addr", "127.0.0.1:7070", "inspector listen address")
	cmd.Flags().StringVar(&opts.store, "store", "none", "store backend (none, memory, redis, sql)")
	cmd.Flags().StringVar(&opts.redisAddr, "redis-addr", "localhost:6379", "redis address")
	cmd.Flags().StringVar(&opts.sqlDriver, "sql-driver", "sqlite3", "sql driver (sqlite3, pgx, postgres)")
	cmd.Flags().StringVar(&opts.sqlDSN, "sql-dsn", "objrt.db", "sql data source name")

	return cmd
}

func runInit(cmd *cobra.Command, opts *initOptions, dir string) error {
	if opts.interactive {
		if err := askInit(opts); err != nil {
			return err
		}
	}

	data, err := opts.data()
	if err != nil {
		return err
	}

	files := map[string]string{filepath.Join(dir, "objrt.yaml"): "objrt.yaml.tmpl"}
	if !opts.noExample {
		files[filepath.Join(dir, "types", "objects.yaml")] = "types.yaml.tmpl"
	}
	if !opts.force {
		for path := range files {
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
		}
	}

	rendered := make(map[string][]byte, len(files))
	for path, name := range files {
		content, err := renderTemplate(name, data)
		if err != nil {
			return err
		}
		rendered[path] = content
	}

	cfgPath := filepath.Join(dir, "objrt.yaml")
	for path, content := range rendered {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		if err := os.WriteFile(path, content, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	// the generated configuration must load cleanly
	if _, err := config.Load(cfgPath); err != nil {
		return fmt.Errorf("generated configuration is invalid: %w", err)
	}

	out := cmd.OutOrStdout()
	ui.Success(out, opts.global.noColor, "Created %s", cfgPath)
	if !opts.noExample {
		ui.Success(out, opts.global.noColor, "Created %s", filepath.Join(dir, "types", "objects.yaml"))
	}
	if data.JWTSecret != "" {
		fmt.Fprintln(out, "\nCreate an inspector token with: objrt token")
	}
	fmt.Fprintln(out, "Start the inspector with: objrt serve")
	return nil
}

func (o *initOptions) data() (*initData, error) {
	data := &initData{
		Generated: time.Now().Format("2006-01-02"),
		Types:     []string{},
		Addr:      o.addr,
		RedisAddr: o.redisAddr,
		SQLDriver: o.sqlDriver,
		SQLDSN:    o.sqlDSN,
	}

	switch o.store {
	case "none", "":
	case "memory", "redis", "sql":
		data.Backend = o.store
	default:
		return nil, fmt.Errorf("unknown store backend '%s' (expected one of none, memory, redis, sql)", o.store)
	}

	if !o.noExample {
		data.Types = append(data.Types, "types/objects.yaml")
		if data.Backend != "" {
			data.Instances = []config.InstanceConfig{{Type: "Counter", Key: "counter"}}
		}
	}

	if o.auth {
		secret, err := generateSecret()
		if err != nil {
			return nil, err
		}
		data.JWTSecret = secret
	}
	return data, nil
}

func askInit(opts *initOptions) error {
	questions := []*survey.Question{
		{
			Name:     "addr",
			Prompt:   &survey.Input{Message: "Inspector address:", Default: opts.addr},
			Validate: survey.Required,
		},
		{
			Name: "store",
			Prompt: &survey.Select{
				Message: "Store backend:",
				Options: storeBackends,
				Default: opts.store,
			},
		},
		{
			Name:   "auth",
			Prompt: &survey.Confirm{Message: "Require JWT authentication?", Default: opts.auth},
		},
	}
	answers := struct {
		Addr  string
		Store string
		Auth  bool
	}{}
	if err := survey.Ask(questions, &answers); err != nil {
		return err
	}
	opts.addr, opts.store, opts.auth = answers.Addr, answers.Store, answers.Auth

	switch opts.store {
	case "redis":
		return survey.AskOne(&survey.Input{Message: "Redis address:", Default: opts.redisAddr},
			&opts.redisAddr, survey.WithValidator(survey.Required))
	case "sql":
		if err := survey.AskOne(&survey.Select{
			Message: "SQL driver:",
			Options: []string{"sqlite3", "pgx", "postgres"},
			Default: opts.sqlDriver,
		}, &opts.sqlDriver); err != nil {
			return err
		}
		return survey.AskOne(&survey.Input{Message: "Data source name:", Default: opts.sqlDSN},
			&opts.sqlDSN, survey.WithValidator(survey.Required))
	}
	return nil
}

func renderTemplate(name string, data any) ([]byte, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/"+name)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
