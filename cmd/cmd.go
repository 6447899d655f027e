package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/charmbracelet/lipgloss"
	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/variantdev/reml/pkg/artifact"
	"github.com/variantdev/reml/pkg/ci"
	"github.com/variantdev/reml/pkg/config"
	"github.com/variantdev/reml/pkg/gitops"
	"github.com/variantdev/reml/pkg/gitrepo"
	"github.com/variantdev/reml/pkg/loginfra"
	"github.com/variantdev/reml/pkg/operator"
	"github.com/variantdev/reml/pkg/project"
	"github.com/variantdev/reml/pkg/release"
	"github.com/variantdev/reml/pkg/semver"
	"github.com/variantdev/reml/pkg/telemetry"
	"k8s.io/klog/v2"
)

var (
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	pathStyle    = lipgloss.NewStyle().Bold(true)
)

// Options are the command line settings of a release.
type Options struct {
	Type                    string
	Series                  string
	Tagline                 string
	Dry                     bool
	Rebuild                 bool
	NoSign                  bool
	ReuseLastBuildArtifacts bool
	Config                  string
	WorkDir                 string
}

// Runner performs the release of the project with the given id.
type Runner func(ctx context.Context, id string, req release.Request, opts *Options) (*release.Descriptor, error)

func Execute() {
	log := klog.NewKlogr()

	fs := loginfra.Init()

	// Hand parsing of remaining flags to pflags and cobra
	pflag.CommandLine.AddGoFlagSet(fs)

	cmd := NewCommand(os.Stdout, os.Stderr, func(ctx context.Context, id string, req release.Request, opts *Options) (*release.Descriptor, error) {
		return run(ctx, log, id, req, opts)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		log.V(1).Info("release failed", "err", err.Error())
		fmt.Fprintln(os.Stderr, errorStyle.Render(Diagnose(err)))
		stop()
		os.Exit(1)
	}
}

func NewCommand(stdout, stderr io.Writer, runner Runner) *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:   "reml PROJECT",
		Short: "Release LTTng-tools, Babeltrace2 or Babeltrace1",
		Long: `reml tags a new version of a project on its stable branch, pushes it,
publishes the GitHub releases, builds the release tarball on the CI server,
then checksums, signs and uploads it.`,
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := semver.ParseReleaseType(opts.Type)
			if err != nil {
				return err
			}

			if opts.Tagline == "" && !opts.Rebuild {
				fmt.Fprintln(stderr, warningStyle.Render("No release tagline provided"))
			}

			d, err := runner(cmd.Context(), args[0], release.Request{
				Series:                  opts.Series,
				Type:                    t,
				Tagline:                 opts.Tagline,
				Dry:                     opts.Dry,
				Rebuild:                 opts.Rebuild,
				NoSign:                  opts.NoSign,
				ReuseLastBuildArtifacts: opts.ReuseLastBuildArtifacts,
			}, opts)
			if err != nil {
				return err
			}

			fmt.Fprintln(stdout, successStyle.Render(d.Name()+" has been released!"))
			fmt.Fprintln(stdout, "Repository: "+pathStyle.Render(d.RepositoryPath))

			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.Type, "type", "t", "", "release type: stable or candidate")
	f.StringVarP(&opts.Series, "series", "s", "", "release series, e.g. 2.13")
	f.StringVar(&opts.Tagline, "tagline", "", "tagline of the changelog section")
	f.BoolVar(&opts.Dry, "dry", false, "prepare the release without pushing nor publishing anything")
	f.BoolVar(&opts.Rebuild, "rebuild", false, "rebuild and upload the artifacts of the latest tag of the series")
	f.BoolVar(&opts.NoSign, "no-sign", false, "sign neither the commits, the tag nor the tarball")
	f.BoolVar(&opts.ReuseLastBuildArtifacts, "reuse-last-build-artifacts", false, "use the artifacts of the last successful build instead of building again")
	f.StringVar(&opts.Config, "config", "", "configuration file (default: $XDG_CONFIG_HOME/reml/reml.conf)")
	f.StringVar(&opts.WorkDir, "workdir", "", "directory the repository is cloned into (default: a new temporary directory)")

	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("series")

	return cmd
}

func run(ctx context.Context, log logr.Logger, id string, req release.Request, opts *Options) (*release.Descriptor, error) {
	registry, err := project.Builtin()
	if err != nil {
		return nil, err
	}

	policy, err := registry.Lookup(id)
	if err != nil {
		return nil, err
	}

	conf, err := config.Load(config.Path(opts.Config), policy.Name())
	if err != nil {
		return nil, err
	}

	metrics := telemetry.NewMetrics("reml")
	if conf.MetricsPushURL != "" {
		defer func() {
			if err := metrics.Push(conf.MetricsPushURL, telemetry.DefaultJob); err != nil {
				log.Error(err, "pushing metrics failed", "url", conf.MetricsPushURL)
			}
		}()
	}

	wd := opts.WorkDir
	if wd == "" {
		if wd, err = os.MkdirTemp("", "reml-"+policy.ID()); err != nil {
			return nil, err
		}
	}

	builds, err := ci.New(conf.CIURL, conf.CIUser, conf.CIToken,
		ci.Logger(log),
		ci.PollInterval(conf.PollInterval),
		ci.ScheduleTimeout(conf.ScheduleTimeout),
	)
	if err != nil {
		return nil, err
	}

	log.V(1).Info("authenticating to GitHub", "user", conf.GitHubUser)

	host, err := gitrepo.NewClient(ctx, conf.GitHubToken, gitrepo.Logger(log))
	if err != nil {
		return nil, err
	}

	term := operator.NewTerminal()

	artifacts, err := artifact.New(
		artifact.Logger(log),
		artifact.Operator(term),
		artifact.Fetch(&artifact.GoGetter{Header: artifact.BasicAuthHeader(conf.CIUser, conf.CIToken), Logger: log}),
	)
	if err != nil {
		return nil, err
	}

	o, err := release.New(policy,
		release.Logger(log),
		release.Source(gitops.New(gitops.WD(wd), gitops.Logger(log))),
		release.Builder(builds),
		release.Host(host),
		release.Artifacts(artifacts),
		release.Operator(term),
		release.Metrics(metrics),
		release.GitURLs(conf.GitURLs...),
		release.UploadLocation(conf.UploadLocation),
	)
	if err != nil {
		artifacts.Close()
		return nil, err
	}

	return o.Release(ctx, req)
}
