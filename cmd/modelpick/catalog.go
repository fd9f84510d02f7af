package modelpick

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/modelpick/modelpick/internal/catalog"
)

const (
	catalogCategoryFlagName  = "category"
	catalogCategoryFlagUsage = "Print only this category"
	catalogSubtaskFlagName   = "subtask"
	catalogSubtaskFlagUsage  = "Print only this subtask (requires --category)"
	catalogSourceFlagName    = "source"
	catalogSourceFlagUsage   = "Restrict printed datasets to one source (e.g. sklearn, kaggle)"
)

type catalogCommandOptions struct {
	categoryFilter string
	subtaskFilter  string
	sourceFilter   string
}

func newCatalogCommand() *cobra.Command {
	options := &catalogCommandOptions{}

	command := &cobra.Command{
		Use:   catalogCommandUse,
		Short: catalogCommandShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if options.subtaskFilter != "" && options.categoryFilter == "" {
				return fmt.Errorf("--%s requires --%s", catalogSubtaskFlagName, catalogCategoryFlagName)
			}
			return printCatalog(cmd, *options)
		},
	}
	command.Flags().StringVar(&options.categoryFilter, catalogCategoryFlagName, "", catalogCategoryFlagUsage)
	command.Flags().StringVar(&options.subtaskFilter, catalogSubtaskFlagName, "", catalogSubtaskFlagUsage)
	command.Flags().StringVar(&options.sourceFilter, catalogSourceFlagName, catalog.SourceAll, catalogSourceFlagUsage)
	return command
}

func printCatalog(cmd *cobra.Command, options catalogCommandOptions) error {
	decisionTable := catalog.Default()

	categories := decisionTable.Categories()
	if options.categoryFilter != "" {
		categories = []string{options.categoryFilter}
	}

	for _, category := range categories {
		subtasks, subtasksErr := decisionTable.Subtasks(category)
		if subtasksErr != nil {
			return subtasksErr
		}
		if options.subtaskFilter != "" {
			subtasks = []string{options.subtaskFilter}
		}

		fmt.Fprintln(cmd.OutOrStdout(), category)
		for _, subtask := range subtasks {
			info, infoErr := decisionTable.TaskInfo(category, subtask)
			if infoErr != nil {
				return infoErr
			}
			datasets, datasetsErr := decisionTable.Datasets(category, subtask, options.sourceFilter)
			if datasetsErr != nil {
				return datasetsErr
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", subtask)
			if info.Description != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "    %s\n", info.Description)
			}
			if len(info.Models) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "    models:   %s\n", strings.Join(info.Models, ", "))
			}
			if len(datasets) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "    datasets: %s\n", strings.Join(datasets, ", "))
			}
		}
	}
	return nil
}
