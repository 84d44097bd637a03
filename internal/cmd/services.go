package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/3leaps/gocondense/internal/config"
	"github.com/3leaps/gocondense/internal/observability"
	"github.com/3leaps/gocondense/pkg/jobregistry"
	"github.com/3leaps/gocondense/pkg/manifest"
	"github.com/3leaps/gocondense/pkg/provider"
	"github.com/3leaps/gocondense/pkg/provider/command"
	"github.com/3leaps/gocondense/pkg/provider/file"
	s3provider "github.com/3leaps/gocondense/pkg/provider/s3"
	"github.com/3leaps/gocondense/pkg/scheduler"
)

// newRunner builds the runner shared by the command backend and the
// submitter. Tests replace it to avoid spawning processes.
var newRunner = func(cfg *config.Config) scheduler.Runner {
	return scheduler.NewExecRunner(
		scheduler.WithEnv(cfg.Scheduler.Env...),
		scheduler.WithRunnerLogger(observability.CLILogger),
	)
}

// currentConfig returns the config loaded by initRuntime, loading defaults
// when a command runs without it (tests calling run functions directly).
func currentConfig(ctx context.Context) (*config.Config, error) {
	if appConfig != nil {
		return appConfig, nil
	}
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}
	appConfig = cfg
	return cfg, nil
}

func newProvider(ctx context.Context, cfg *config.Config, runner scheduler.Runner) (provider.Provider, error) {
	var (
		p   provider.Provider
		err error
	)
	store := cfg.Store
	switch provider.ProviderType(store.Backend) {
	case provider.ProviderCommand:
		p, err = command.New(runner, command.Config{
			CopyCommand:     store.CopyCommand,
			MkdirCommand:    store.MkdirCommand,
			NamespacePrefix: store.NamespacePrefix,
			KeepNamespace:   store.KeepNamespace,
		})
	case provider.ProviderFile:
		p, err = file.New(file.Config{
			NamespacePrefix: store.NamespacePrefix,
			MountDir:        store.MountDir,
		})
	case provider.ProviderS3:
		p, err = s3provider.New(ctx, s3provider.Config{
			Bucket:          store.S3.Bucket,
			Region:          store.S3.Region,
			Endpoint:        store.S3.Endpoint,
			Profile:         store.S3.Profile,
			AccessKeyID:     store.S3.AccessKeyID,
			SecretAccessKey: store.S3.SecretAccessKey,
			ForcePathStyle:  store.S3.ForcePathStyle,
			NamespacePrefix: store.NamespacePrefix,
			KeyPrefix:       store.S3.KeyPrefix,
		})
	default:
		return nil, fmt.Errorf("unknown store backend %q", store.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("%s store: %w", store.Backend, err)
	}
	return provider.NewThrottled(p, store.RateLimit, store.RateBurst), nil
}

func storeIdentity(cfg *config.Config) *jobregistry.StoreIdentity {
	id := &jobregistry.StoreIdentity{
		Backend:         cfg.Store.Backend,
		NamespacePrefix: cfg.Store.NamespacePrefix,
	}
	if cfg.Store.Backend == string(provider.ProviderS3) {
		id.Bucket = cfg.Store.S3.Bucket
		id.Endpoint = cfg.Store.S3.Endpoint
	}
	return id
}

func submissionsStore(cfg *config.Config) *jobregistry.Store {
	return jobregistry.NewStore(filepath.Join(cfg.DataDir, "submissions"))
}

// loadWorkflow loads a manifest and builds it with bare build options: no
// provider, submitter or recorder.
func loadWorkflow(cfg *config.Config, manifestPath string) (*manifest.Manifest, *manifest.Workflow, error) {
	m, err := manifest.Load(manifestPath)
	if err != nil {
		return nil, nil, err
	}
	w, err := manifest.Build(m, baseBuildOptions(cfg, manifestPath))
	if err != nil {
		return m, nil, err
	}
	return m, w, nil
}

func baseBuildOptions(cfg *config.Config, manifestPath string) manifest.BuildOptions {
	base, err := filepath.Abs(filepath.Dir(manifestPath))
	if err != nil {
		base = filepath.Dir(manifestPath)
	}
	return manifest.BuildOptions{
		BaseDir:         base,
		NamespacePrefix: cfg.Store.NamespacePrefix,
		WorkerScript:    cfg.Scheduler.WorkerScript,
		Logger:          observability.CLILogger,
	}
}
