package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/briangreenhill/mldash/dashapi"
	"github.com/briangreenhill/mldash/internal/config"
	"github.com/briangreenhill/mldash/internal/upstream"
)

const version = "0.1.0"

func main() {
	if err := runCLI(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runCLI(args []string, out io.Writer) error {
	root := newRootCmd(out)
	root.SetArgs(args)
	return root.Execute()
}

// app carries what every subcommand needs once the root has loaded config
type app struct {
	out        io.Writer
	configPath string
	fresh      bool
	verbose    bool
	client     *dashapi.Client
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}

	root := &cobra.Command{
		Use:           "mldash",
		Short:         "Command line client for the ML dashboard backend",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&a.configPath, "config", os.Getenv("MLDASH_CONFIG"), "path to a YAML config file")
	root.PersistentFlags().BoolVar(&a.fresh, "fresh", false, "bypass the response cache")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log requests and retries to stderr")

	root.AddCommand(
		a.panelsCmd(),
		a.datasetCmd(),
		a.dvcCmd(),
		a.featureStoreCmd(),
		a.predictCmd(),
		a.modelsCmd(),
		a.pipelinesCmd(),
		a.analyticsCmd(),
		a.configCmd(),
	)
	return root
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	logger := zerolog.Nop()
	if a.verbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}

	httpClient, err := upstream.NewClient(0, upstream.Options{})
	if err != nil {
		return fmt.Errorf("build http client: %w", err)
	}
	a.client, err = dashapi.New(cfg.API, dashapi.WithHTTPClient(httpClient), dashapi.WithLogger(logger))
	return err
}

// useCache is the cached accessors' flag; --fresh turns it off
func (a *app) useCache() bool {
	return !a.fresh
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseFilters turns col=value pairs into dataset filters
func parseFilters(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	filters := make(map[string]string, len(pairs))
	for _, p := range pairs {
		col, val, ok := strings.Cut(p, "=")
		if !ok || col == "" {
			return nil, fmt.Errorf("filter %q must look like column=value", p)
		}
		filters[col] = val
	}
	return filters, nil
}
