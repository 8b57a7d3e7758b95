package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/openshift-pipelines/index-info/internal/handlers"
	"github.com/openshift-pipelines/index-info/pkg/config"
	"github.com/openshift-pipelines/index-info/pkg/github"
	"github.com/openshift-pipelines/index-info/pkg/image"
	"github.com/openshift-pipelines/index-info/pkg/metadata"
	"github.com/openshift-pipelines/index-info/pkg/provenance"
	"github.com/openshift-pipelines/index-info/pkg/resolver"
	"github.com/openshift-pipelines/index-info/pkg/selector"
)

type appKey struct{}

// app holds what every command shares once flags are parsed.
type app struct {
	cfg     config.Config
	log     *logrus.Logger
	source  image.Source
	mirrors *resolver.ImageResolver
}

func addPersistentFlags(fs *pflag.FlagSet) {
	fs.BoolP("verbose", "v", false, "Enable debug logging")
	fs.String("config", "", "Path to a YAML config file")
	fs.Int("parallel", metadata.DefaultParallelism, "Number of images inspected at once")
	fs.StringSlice("mirror-policy", nil, "Path to a mirror policy YAML file (ICSP or IDMS), may be repeated")
	fs.String("namespace", metadata.DefaultNamespace, "Registry namespace of the images to inspect")
	fs.String("package", config.Default().Package, "Operator package whose catalog is read")
	fs.Bool("provenance", false, "Fall back to SLSA provenance attestations for downstream commits")
	fs.Bool("tls-verify", true, "Verify registry TLS certificates")
}

func addSelectionFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("channel", "c", "", "Channel to pick the bundle from (prompts when empty)")
	cmd.Flags().StringP("bundle", "b", "", "Bundle name or name prefix (prompts when empty)")
}

func selectionFrom(cmd *cobra.Command) handlers.Selection {
	channel, _ := cmd.Flags().GetString("channel")
	bundle, _ := cmd.Flags().GetString("bundle")
	return handlers.Selection{Channel: channel, Bundle: bundle}
}

// loadConfig reads the config file named by --config and applies the flags
// that were set explicitly on top of it.
func loadConfig(fs *pflag.FlagSet) (config.Config, error) {
	path, _ := fs.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}

	if fs.Changed("parallel") {
		cfg.Parallelism, _ = fs.GetInt("parallel")
	}
	if fs.Changed("mirror-policy") {
		cfg.MirrorPolicy, _ = fs.GetStringSlice("mirror-policy")
	}
	if fs.Changed("namespace") {
		cfg.Namespace, _ = fs.GetString("namespace")
	}
	if fs.Changed("package") {
		cfg.Package, _ = fs.GetString("package")
	}
	if fs.Changed("provenance") {
		cfg.Provenance, _ = fs.GetBool("provenance")
	}
	if fs.Changed("tls-verify") {
		cfg.TLSVerify, _ = fs.GetBool("tls-verify")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(verbose bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

// setup runs once arguments have been validated. Usage is printed for
// argument errors only, not for failures of the command itself.
func setup(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true

	fs := cmd.Flags()
	cfg, err := loadConfig(fs)
	if err != nil {
		return err
	}
	verbose, _ := fs.GetBool("verbose")
	log := newLogger(verbose)

	loader := cfg.MirrorPolicyLoader()
	mirrors, err := loader.Resolver()
	if err != nil {
		return err
	}
	log.Debug(loader.GetDescription())
	if mirrors != nil {
		stats := mirrors.GetMirrorStats()
		log.Debugf("loaded %d mirror policies with %d mirrors", stats.TotalPolicies, stats.TotalMirrors)
	}

	a := &app{
		cfg: cfg,
		log: log,
		source: image.NewRegistrySource(
			image.WithTLSVerify(cfg.TLSVerify),
			image.WithLogger(log),
		),
		mirrors: mirrors,
	}
	cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, a))
	return nil
}

func appFrom(cmd *cobra.Command) *app {
	return cmd.Context().Value(appKey{}).(*app)
}

func (a *app) index() *handlers.Index {
	return handlers.NewIndex(a.source, selector.Interactive{MaxHeight: 15}, a.cfg.Package, a.cfg.Catalog(), a.log)
}

func (a *app) resolver() *metadata.Resolver {
	opts := []metadata.Option{
		metadata.WithNamespace(a.cfg.Namespace),
		metadata.WithParallelism(a.cfg.Parallelism),
		metadata.WithLogger(a.log),
	}
	if a.mirrors != nil {
		opts = append(opts, metadata.WithMirrors(a.mirrors))
	}
	if a.cfg.Provenance {
		parser := provenance.NewParser()
		parser.SetLogger(a.log)
		parser.SetTLSVerify(a.cfg.TLSVerify)
		parser.SetMaxAttestations(a.cfg.ProvenanceMaxAttestations)
		parser.SetProcessingTimeout(a.cfg.ProvenanceTimeout)
		opts = append(opts, metadata.WithProvenance(parser))
	}
	return metadata.NewResolver(a.source, a.cfg.RepositoryTable(), opts...)
}

func (a *app) inspectHandler() *handlers.InspectHandler {
	return handlers.NewInspectHandler(a.index(), a.resolver())
}

func (a *app) validateHandler() *handlers.ValidateHandler {
	var mirrors metadata.Mirrors
	if a.mirrors != nil {
		mirrors = a.mirrors
	}
	return handlers.NewValidateHandler(a.index(), a.source, mirrors, a.cfg.Parallelism)
}

func (a *app) compareHandler(githubURL string) (*handlers.CompareHandler, error) {
	var opts []github.Option
	if githubURL != "" {
		opts = append(opts, github.WithBaseURL(githubURL))
	}
	client, err := github.NewClient(http.DefaultClient, os.Getenv("GITHUB_TOKEN"), opts...)
	if err != nil {
		return nil, err
	}
	return handlers.NewCompareHandler(a.index(), a.resolver(), client, a.log), nil
}
