package cmd

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/orgctl/orgctl/internal/client"
	"github.com/orgctl/orgctl/internal/compare"
	"github.com/orgctl/orgctl/internal/csvio"
	"github.com/orgctl/orgctl/internal/manifest"
	"github.com/orgctl/orgctl/internal/metadata"
	"github.com/orgctl/orgctl/internal/output"
	"github.com/orgctl/orgctl/internal/transform"
)

var compareCmd = &cobra.Command{
	Use:     "compare <backup-folder>",
	Short:   "Compare backup values against the target org",
	GroupID: groupAnalysis,
	Args:    cobra.ExactArgs(1),
	Long: `Find backup values that do not exist in the target org.

The backup rows are scanned for the record types, picklist values, and
user IDs they actually use, and each is checked against the target org.
Mismatches are reported with suggested replacements based on name
similarity. With --write-config, the suggestions are written to the
backup folder as a transformation config that the restore command picks
up automatically.

Examples:
  # Report mismatches for a backup folder
  orgctl compare ./backups/2026-08-01

  # Generate a transformation config from the suggestions
  orgctl compare ./backups/2026-08-01 --write-config`,
	RunE: runCompare,
}

var (
	compareObjects     []string
	compareWriteConfig bool
)

func init() {
	compareCmd.Flags().StringSliceVar(&compareObjects, "objects", nil, "Compare only these objects (default: all in folder)")
	compareCmd.Flags().BoolVar(&compareWriteConfig, "write-config", false, "Write suggested mappings as a transformation config in the backup folder")
	rootCmd.AddCommand(compareCmd)
}

func runCompare(cmd *cobra.Command, args []string) error {
	c, err := GetClient()
	if err != nil {
		return err
	}

	folderPath := args[0]
	results, err := compareFolder(c, folderPath, compareObjects)
	if err != nil {
		return err
	}

	printer := output.NewPrinter(outputFormat)
	if outputFormat != "table" {
		if err := printer.Print(results); err != nil {
			return err
		}
	} else {
		printCompareResults(results)
	}

	if compareWriteConfig {
		cfg := compare.BuildTransformationConfig(filepath.Base(folderPath), results)
		path := filepath.Join(folderPath, transform.ConfigFileName)
		if err := cfg.Save(path); err != nil {
			return err
		}
		output.Success("Transformation config written to %s", path)
	}
	return nil
}

func compareFolder(c client.PlatformClient, folderPath string, objects []string) ([]*compare.Result, error) {
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

	meta := metadata.NewCache(c)
	comparer := compare.NewComparer(c, meta, func(msg string) { output.Info("%s", msg) })

	var results []*compare.Result
	for _, objectName := range objectNames {
		rows, err := csvio.ReadFile(files[objectName])
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", files[objectName], err)
		}
		md, err := meta.Describe(objectName)
		if err != nil {
			output.Warning("Skipping %s: %v", objectName, err)
			continue
		}
		analysis := compare.AnalyzeRows(md, objectName, rows)
		result, err := comparer.CompareObject(analysis)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

func printCompareResults(results []*compare.Result) {
	output.Header("Comparison Results")
	for _, result := range results {
		if !result.HasMismatches() && len(result.NonCreateableFields) == 0 {
			output.Success("%s: %s", result.ObjectName, result.Summary())
			continue
		}
		output.SubHeader("%s", result.ObjectName)
		output.Warning("%s", result.Summary())

		if len(result.MissingFields) > 0 {
			output.Error("Fields missing in target: %s", strings.Join(result.MissingFields, ", "))
		}
		if len(result.NonCreateableFields) > 0 {
			output.Info("Read-only in target (will be skipped): %s", strings.Join(result.NonCreateableFields, ", "))
		}
		for _, mismatch := range result.PicklistMismatches {
			output.Warning("%s: value %q not in target picklist", mismatch.FieldName, mismatch.SourceValue)
		}
		if len(result.UnknownRecordTypes) > 0 {
			var rows [][]string
			suggestions := compare.SuggestRecordTypeMappings(
				unknownRecordTypes(result.UnknownRecordTypes), result.TargetRecordTypes)
			for _, id := range result.UnknownRecordTypes {
				rows = append(rows, []string{id, suggestionOrDash(suggestions[id])})
			}
			output.PrintTable([]string{"Unknown RecordTypeId", "Suggested Target"}, rows)
		}
		if len(result.UnknownUsers) > 0 {
			output.Warning("Unknown user IDs: %s", strings.Join(result.UnknownUsers, ", "))
		}
	}
}

// unknownRecordTypes wraps raw IDs so the similarity matcher can run on
// them; the backup carries only IDs, so names fall back to the ID text.
func unknownRecordTypes(ids []string) []compare.RecordTypeInfo {
	infos := make([]compare.RecordTypeInfo, 0, len(ids))
	for _, id := range ids {
		infos = append(infos, compare.RecordTypeInfo{ID: id, Name: id, DeveloperName: id})
	}
	return infos
}

func suggestionOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
