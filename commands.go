package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/briangreenhill/mldash/dashapi"
	"github.com/briangreenhill/mldash/panels"
)

func (a *app) panelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "panels [name...]",
		Short: "Render dashboard panels as markdown; lists them when no name is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := panels.Defaults(a.client)
			if len(args) == 0 {
				for _, name := range reg.List() {
					fmt.Fprintln(a.out, name)
				}
				return nil
			}

			failed := 0
			for _, name := range args {
				res, err := reg.Render(cmd.Context(), name, a.fresh)
				if err != nil {
					return fmt.Errorf("%w: %s (available: %v)", err, name, reg.List())
				}
				if res.Failure != nil {
					failed++
					hint := ""
					if res.Failure.Retry {
						hint = " (try again with --fresh)"
					}
					fmt.Fprintf(a.out, "## %s\n\n%s%s\n\n", name, res.Failure.Message, hint)
					continue
				}
				fmt.Fprint(a.out, res.Output)
			}
			if failed > 0 {
				return fmt.Errorf("%d panel(s) failed", failed)
			}
			return nil
		},
	}
	return cmd
}

func (a *app) datasetCmd() *cobra.Command {
	var (
		q       dashapi.DatasetQuery
		filters []string
		online  bool
	)
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Fetch one page of the dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseFilters(filters)
			if err != nil {
				return err
			}
			q.Filters = f

			var page *dashapi.DatasetPage
			if online {
				page, err = a.client.OnlineStore(cmd.Context(), q)
			} else {
				page, err = a.client.Dataset(cmd.Context(), q, a.useCache())
			}
			if err != nil {
				return err
			}
			return a.printJSON(page)
		},
	}
	cmd.Flags().IntVar(&q.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&q.PageSize, "page-size", dashapi.DefaultPageSize, "rows per page")
	cmd.Flags().StringVar(&q.SortBy, "sort-by", "", "column to sort by")
	cmd.Flags().StringVar(&q.SortOrder, "sort-order", dashapi.SortAsc, "asc or desc")
	cmd.Flags().StringArrayVar(&filters, "filter", nil, "column=value filter, repeatable")
	cmd.Flags().BoolVar(&online, "online", false, "read the online store with predictions instead of the raw dataset")

	var rowFile string
	add := &cobra.Command{
		Use:   "add",
		Short: "Append a labelled row read from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			var row dashapi.DatasetRow
			if err := readYAML(rowFile, &row); err != nil {
				return err
			}
			if err := row.Validate(); err != nil {
				return err
			}
			if row.Outcome != 0 && row.Outcome != 1 {
				return fmt.Errorf("outcome must be 0 or 1, got %d", row.Outcome)
			}
			res, err := a.client.AddDatasetRow(cmd.Context(), row)
			if err != nil {
				return err
			}
			return a.printJSON(res)
		},
	}
	add.Flags().StringVarP(&rowFile, "file", "f", "", "YAML file with the row")
	_ = add.MarkFlagRequired("file")
	cmd.AddCommand(add)
	return cmd
}

func (a *app) dvcCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dvc",
		Short: "Show data version control status",
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := a.client.DVCInfo(cmd.Context(), a.useCache())
			if err != nil {
				return err
			}
			return a.printJSON(info)
		},
	}
}

func (a *app) featureStoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feature-store",
		Short: "Inspect the feature store",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Show the feature store configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.client.FeatureStoreConfig(cmd.Context(), a.useCache())
			if err != nil {
				return err
			}
			return a.printJSON(cfg.Raw)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "views",
		Short: "List feature views and entities",
		RunE: func(cmd *cobra.Command, args []string) error {
			views, err := a.client.FeatureStoreViews(cmd.Context(), a.useCache())
			if err != nil {
				return err
			}
			return a.printJSON(views)
		},
	})

	var page, pageSize int
	data := &cobra.Command{
		Use:   "data",
		Short: "Fetch one page of materialized features",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.client.FeatureStoreData(cmd.Context(), page, pageSize, a.useCache())
			if err != nil {
				return err
			}
			return a.printJSON(res)
		},
	}
	data.Flags().IntVar(&page, "page", 1, "page number")
	data.Flags().IntVar(&pageSize, "page-size", dashapi.DefaultPageSize, "rows per page")
	cmd.AddCommand(data)
	return cmd
}

func (a *app) predictCmd() *cobra.Command {
	var (
		file string
		p    dashapi.PatientFeatures
	)
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Score a patient, or every patient in a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				if err := p.Validate(); err != nil {
					return err
				}
				res, err := a.client.Predict(cmd.Context(), p)
				if err != nil {
					return err
				}
				return a.printJSON(res)
			}

			patients, err := readPatients(file)
			if err != nil {
				return err
			}
			for i, pt := range patients {
				if err := pt.Validate(); err != nil {
					return fmt.Errorf("patient %d: %w", i, err)
				}
			}
			if len(patients) == 1 {
				res, err := a.client.Predict(cmd.Context(), patients[0])
				if err != nil {
					return err
				}
				return a.printJSON(res)
			}
			res, err := a.client.PredictBatch(cmd.Context(), patients)
			if err != nil {
				return err
			}
			return a.printJSON(res)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&file, "file", "f", "", "YAML file with one patient or a list of patients")
	f.IntVar(&p.Pregnancies, "pregnancies", 0, "number of pregnancies")
	f.Float64Var(&p.Glucose, "glucose", 120, "plasma glucose")
	f.Float64Var(&p.BloodPressure, "blood-pressure", 70, "diastolic blood pressure")
	f.Float64Var(&p.SkinThickness, "skin-thickness", 20, "triceps skin fold thickness")
	f.Float64Var(&p.Insulin, "insulin", 80, "2-hour serum insulin")
	f.Float64Var(&p.BMI, "bmi", 25, "body mass index")
	f.Float64Var(&p.DiabetesPedigreeFunction, "dpf", 0.5, "diabetes pedigree function")
	f.IntVar(&p.Age, "age", 30, "age in years")
	return cmd
}

func (a *app) modelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Show the serving model and the registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := a.client.ModelInfo(cmd.Context())
			if err != nil {
				return err
			}
			return a.printJSON(info)
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered models",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := a.client.ListModels(cmd.Context())
			if err != nil {
				return err
			}
			return a.printJSON(list)
		},
	})

	var alias string
	switchCmd := &cobra.Command{
		Use:   "switch <registry-name>",
		Short: "Serve a different registered model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.client.SwitchModel(cmd.Context(), args[0], alias)
			if err != nil {
				return err
			}
			return a.printJSON(res)
		},
	}
	switchCmd.Flags().StringVar(&alias, "alias", "latest", "model alias to load")
	cmd.AddCommand(switchCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "alias <registry-name> <alias> <version>",
		Short: "Point an alias at a model version",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.client.SetModelAlias(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			return a.printJSON(res)
		},
	})
	return cmd
}

func (a *app) pipelinesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipelines",
		Short: "Airflow DAGs and ZenML pipelines",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "dags",
		Short: "List Airflow DAGs",
		RunE: func(cmd *cobra.Command, args []string) error {
			dags, err := a.client.AirflowDAGs(cmd.Context())
			if err != nil {
				return err
			}
			return a.printJSON(dags)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "trigger <dag-id>",
		Short: "Trigger an Airflow DAG run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.client.TriggerDAG(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printJSON(res)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "runs <dag-id>",
		Short: "Show recent runs of a DAG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := a.client.DAGRuns(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printJSON(runs)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:       "run <training|prediction>",
		Short:     "Run a ZenML pipeline and wait for it",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{dashapi.PipelineTraining, dashapi.PipelinePrediction},
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.client.RunPipeline(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := a.printJSON(res); err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("pipeline %s failed", args[0])
			}
			return nil
		},
	})
	return cmd
}

func (a *app) analyticsCmd() *cobra.Command {
	var q dashapi.AnalyticsQuery
	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Feature statistics and drift around a cutoff date",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := a.client.AnalyticsStats(cmd.Context(), q)
			if err != nil {
				return err
			}
			return a.printJSON(stats)
		},
	}
	cmd.Flags().StringVar(&q.Cutoff, "cutoff", "", "split date, YYYY-MM-DD")
	cmd.Flags().StringVar(&q.Category, "category", "all", "outcome category: all, 0 or 1")
	return cmd
}

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read or replace the pipeline YAML configs",
	}
	cmd.AddCommand(&cobra.Command{
		Use:       "show <training|prediction>",
		Short:     "Print a pipeline config as YAML",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{dashapi.PipelineTraining, dashapi.PipelinePrediction},
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				cfg dashapi.PipelineConfig
				err error
			)
			switch args[0] {
			case dashapi.PipelineTraining:
				cfg, err = a.client.TrainingConfig(cmd.Context())
			case dashapi.PipelinePrediction:
				cfg, err = a.client.PredictionConfig(cmd.Context())
			default:
				return fmt.Errorf("%w: %s", dashapi.ErrUnknownPipeline, args[0])
			}
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(a.out)
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "push <training|prediction> <file>",
		Short: "Replace a pipeline config with the contents of a YAML file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg dashapi.PipelineConfig
			if err := readYAML(args[1], &cfg); err != nil {
				return err
			}
			if len(cfg) == 0 {
				return fmt.Errorf("%s is empty", args[1])
			}

			var (
				res *dashapi.ActionResult
				err error
			)
			switch args[0] {
			case dashapi.PipelineTraining:
				res, err = a.client.UpdateTrainingConfig(cmd.Context(), cfg)
			case dashapi.PipelinePrediction:
				res, err = a.client.UpdatePredictionConfig(cmd.Context(), cfg)
			default:
				return fmt.Errorf("%w: %s", dashapi.ErrUnknownPipeline, args[0])
			}
			if err != nil {
				return err
			}
			return a.printJSON(res)
		},
	})
	return cmd
}

func readYAML(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// readPatients accepts either a single mapping or a sequence of them
func readPatients(path string) ([]dashapi.PatientFeatures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(doc.Content) == 0 {
		return nil, errors.New(path + " is empty")
	}

	if doc.Content[0].Kind == yaml.SequenceNode {
		var list []dashapi.PatientFeatures
		if err := doc.Content[0].Decode(&list); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return list, nil
	}
	var one dashapi.PatientFeatures
	if err := doc.Content[0].Decode(&one); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return []dashapi.PatientFeatures{one}, nil
}
