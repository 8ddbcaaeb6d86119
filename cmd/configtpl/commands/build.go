package commands

import (
	"fmt"
	"os"

	"github.com/openfroyo/configtpl/pkg/config"
	"github.com/openfroyo/configtpl/pkg/value"
	"github.com/spf13/cobra"
)

// buildFlags are the builder and build argument flags shared by render and
// validate.
type buildFlags struct {
	envPrefix    string
	sets         []string
	defaultsFile string
	ctxFile      string
	schemaFile   string
}

func (f *buildFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.envPrefix, "env-prefix", "", "inject environment variables named PREFIX__KEY")
	cmd.Flags().StringArrayVar(&f.sets, "set", nil, "override a value, e.g. --set server.port=8080 (repeatable)")
	cmd.Flags().StringVar(&f.defaultsFile, "defaults", "", "YAML or JSON file with default values")
	cmd.Flags().StringVar(&f.ctxFile, "ctx", "", "YAML or JSON file with template-only context values")
	cmd.Flags().StringVar(&f.schemaFile, "schema", "", "CUE schema the result must satisfy")
}

// options returns the builder construction options.
func (f *buildFlags) options() ([]config.Option, error) {
	var opts []config.Option

	if f.envPrefix != "" {
		opts = append(opts, config.WithEnvVarPrefix(f.envPrefix))
	}

	if f.defaultsFile != "" {
		defaults, err := loadMapping(f.defaultsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load defaults: %w", err)
		}
		opts = append(opts, config.WithDefaults(defaults))
	}

	if f.schemaFile != "" {
		schema, err := os.ReadFile(f.schemaFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read schema: %w", err)
		}
		opts = append(opts, config.WithSchema(string(schema)))
	}

	return opts, nil
}

// buildArgs returns the build arguments for paths.
func (f *buildFlags) buildArgs(paths []string) (config.BuildArgs, error) {
	args := config.DefaultBuildArgs().WithPaths(paths...)

	if len(f.sets) > 0 {
		overrides := value.EmptyMap()
		for _, set := range f.sets {
			v, err := config.ParseAssignment(set)
			if err != nil {
				return args, err
			}
			overrides = config.DeepMerge(overrides, v)
		}
		args = args.WithOverrides(overrides)
	}

	if f.ctxFile != "" {
		extra, err := loadMapping(f.ctxFile)
		if err != nil {
			return args, fmt.Errorf("failed to load context: %w", err)
		}
		args = args.WithContext(extra)
	}

	return args, nil
}

// loadMapping reads a YAML (or JSON) file holding a mapping.
func loadMapping(path string) (value.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return value.Value{}, err
	}
	v, err := config.ParseYAML(data)
	if err != nil {
		return value.Value{}, fmt.Errorf("%s: %w", path, err)
	}
	if v.Kind() != value.KindMap {
		return value.Value{}, fmt.Errorf("%s: expected a mapping, got %s", path, v.Kind())
	}
	return v, nil
}
