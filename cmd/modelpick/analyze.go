package modelpick

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/modelpick/modelpick/internal/catalog"
)

const (
	analyzeModelFlagName  = "model"
	analyzeModelFlagUsage = "Override the configured LLM model"

	analyzeMissingAdvisorErrorFormat = "task analysis needs an LLM API key in %s"
)

type analyzeCommandOptions struct {
	configPath    string
	modelOverride string
}

func newAnalyzeCommand() *cobra.Command {
	options := &analyzeCommandOptions{}

	command := &cobra.Command{
		Use:   analyzeCommandUse,
		Short: analyzeCommandShort,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyzeCommand(cmd, *options, strings.Join(args, " "))
		},
	}
	command.Flags().StringVar(&options.configPath, configFlagName, defaultConfigPath, configFlagUsage)
	command.Flags().StringVar(&options.modelOverride, analyzeModelFlagName, "", analyzeModelFlagUsage)
	return command
}

func runAnalyzeCommand(cmd *cobra.Command, options analyzeCommandOptions, taskDescription string) error {
	rootConfiguration, configurationErr := loadRootConfiguration(options.configPath)
	if configurationErr != nil {
		return configurationErr
	}
	if options.modelOverride != "" {
		rootConfiguration.LLM.Model = options.modelOverride
	}

	decisionTable := catalog.Default()
	taskAdvisor := newAdvisor(rootConfiguration, decisionTable)
	if taskAdvisor == nil {
		return fmt.Errorf(analyzeMissingAdvisorErrorFormat, rootConfiguration.Common.API.APIKeyEnv)
	}

	analysis, analysisErr := taskAdvisor.ParseTask(cmd.Context(), taskDescription)
	if analysisErr != nil {
		return analysisErr
	}

	encoded, marshalErr := json.MarshalIndent(analysis, "", "  ")
	if marshalErr != nil {
		return marshalErr
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(encoded))

	if knownModels, modelsErr := decisionTable.Models("Tabular", analysis.TaskType); modelsErr == nil {
		if !slices.Contains(knownModels, analysis.RecommendedModel) {
			fmt.Fprintf(cmd.OutOrStdout(), "note: %s is not in the built-in %s model list\n",
				analysis.RecommendedModel, analysis.TaskType)
		}
	}
	return nil
}
