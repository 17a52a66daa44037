package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/orgctl/orgctl/internal/client"
	"github.com/orgctl/orgctl/internal/csvio"
	"github.com/orgctl/orgctl/internal/manifest"
	"github.com/orgctl/orgctl/internal/metadata"
	"github.com/orgctl/orgctl/internal/output"
	"github.com/orgctl/orgctl/internal/validate"
)

var validateCmd = &cobra.Command{
	Use:     "validate <backup-folder>",
	Short:   "Validate backup data against the target org schema",
	GroupID: groupAnalysis,
	Args:    cobra.ExactArgs(1),
	Long: `Check backup rows against the target org before restoring.

Each object's columns are checked against the target describe, required
fields are verified, and values are checked against their field types
(emails, IDs, dates, numbers, picklist lengths). Unknown fields and
suspicious values are warnings; missing required data and malformed
values are errors.

Examples:
  # Validate a whole backup folder
  orgctl validate ./backups/2026-08-01

  # Validate specific objects only
  orgctl validate ./backups/2026-08-01 --objects Account,Contact`,
	RunE: runValidate,
}

var validateObjects []string

func init() {
	validateCmd.Flags().StringSliceVar(&validateObjects, "objects", nil, "Validate only these objects (default: all in folder)")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	c, err := GetClient()
	if err != nil {
		return err
	}

	results, err := validateFolder(c, args[0], validateObjects)
	if err != nil {
		return err
	}

	printer := output.NewPrinter(outputFormat)
	if outputFormat != "table" {
		return printer.Print(results)
	}

	output.Header("Validation Results")
	invalid := 0
	for _, entry := range results {
		if entry.Result.Valid() {
			output.Success("%s: %s", entry.ObjectName, entry.Result.Summary())
		} else {
			invalid++
			output.Error("%s: %s", entry.ObjectName, entry.Result.Summary())
		}
		for _, msg := range entry.Result.Errors {
			output.Error("  %s", msg)
		}
		for _, msg := range entry.Result.Warnings {
			output.Warning("  %s", msg)
		}
	}

	if invalid > 0 {
		return fmt.Errorf("%d of %d objects failed validation", invalid, len(results))
	}
	return nil
}

// objectValidation pairs an object name with its validation outcome.
type objectValidation struct {
	ObjectName string           `json:"objectName"`
	Result     *validate.Result `json:"result"`
}

func validateFolder(c client.PlatformClient, folderPath string, objects []string) ([]objectValidation, error) {
	folder := manifest.NewFolder(folderPath)
	files, err := folder.DataFiles()
	if err != nil {
		return nil, err
	}
	files = filterObjects(files, objects)
	if len(files) == 0 {
		return nil, fmt.Errorf("no backup data found in %s", folderPath)
	}

	objectNames := make([]string, 0, len(files))
	for name := range files {
		objectNames = append(objectNames, name)
	}
	sort.Strings(objectNames)

	validator := validate.NewValidator(metadata.NewCache(c))

	var results []objectValidation
	for _, objectName := range objectNames {
		rows, err := csvio.ReadFile(files[objectName])
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", files[objectName], err)
		}
		result, err := validator.ValidateRows(objectName, rows)
		if err != nil {
			return nil, err
		}
		results = append(results, objectValidation{ObjectName: objectName, Result: result})
	}
	return results, nil
}
