package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/orgctl/orgctl/internal/csvio"
	"github.com/orgctl/orgctl/internal/manifest"
	"github.com/orgctl/orgctl/internal/output"
)

var previewCmd = &cobra.Command{
	Use:     "preview <backup-folder>",
	Short:   "Show what a backup folder contains",
	GroupID: groupAnalysis,
	Args:    cobra.ExactArgs(1),
	Long: `Summarize a backup folder without touching any org.

Lists each object with its record count, file size, and the key that
would be used to match records in the target. The key comes from the
relationship metadata when the backup is enriched, or the manifest's
recommended upsert field otherwise.

Examples:
  orgctl preview ./backups/2026-08-01
  orgctl preview ./backups/2026-08-01 -o json`,
	RunE: runPreview,
}

func init() {
	rootCmd.AddCommand(previewCmd)
}

// Previewable is a backup entry that can be summarized without reading
// the target org.
type Previewable interface {
	Name() string
	RecordCount() int
	FilePath() string
}

// previewEntry is one object's summary line.
type previewEntry struct {
	ObjectName string `json:"objectName"`
	Records    int    `json:"records"`
	File       string `json:"file"`
	SizeBytes  int64  `json:"sizeBytes"`
	KeyField   string `json:"keyField,omitempty"`
}

func (p previewEntry) Name() string     { return p.ObjectName }
func (p previewEntry) RecordCount() int { return p.Records }
func (p previewEntry) FilePath() string { return p.File }

func runPreview(cmd *cobra.Command, args []string) error {
	entries, err := previewFolder(args[0])
	if err != nil {
		return err
	}

	printer := output.NewPrinter(outputFormat)
	if outputFormat != "table" {
		return printer.Print(entries)
	}

	output.Header("Backup Contents")
	var rows [][]string
	total := 0
	for _, entry := range entries {
		total += entry.Records
		rows = append(rows, []string{
			entry.ObjectName,
			fmt.Sprintf("%d", entry.Records),
			entry.File,
			output.FormatBytes(entry.SizeBytes),
			suggestionOrDash(entry.KeyField),
		})
	}
	output.PrintTable([]string{"Object", "Records", "File", "Size", "Match Key"}, rows)
	output.Info("%d objects, %d records total", len(entries), total)
	return nil
}

func previewFolder(folderPath string) ([]previewEntry, error) {
	folder := manifest.NewFolder(folderPath)
	files, err := folder.DataFiles()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no backup data found in %s", folderPath)
	}

	m, err := folder.LoadManifest()
	if err != nil {
		return nil, err
	}
	rel, err := folder.LoadRelationshipMetadata()
	if err != nil {
		return nil, err
	}

	objectNames := make([]string, 0, len(files))
	for name := range files {
		objectNames = append(objectNames, name)
	}
	sort.Strings(objectNames)

	entries := make([]previewEntry, 0, len(objectNames))
	for _, objectName := range objectNames {
		path := files[objectName]
		rows, err := csvio.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		var size int64
		if info, err := os.Stat(path); err == nil {
			size = info.Size()
		}

		key := ""
		if rel != nil {
			if strategy, ok := rel.StrategyFor(objectName); ok {
				key = strategy.KeyField
			}
		}
		if key == "" && m != nil {
			key = m.RecommendedUpsertField(objectName)
		}

		entries = append(entries, previewEntry{
			ObjectName: objectName,
			Records:    len(rows),
			File:       path,
			SizeBytes:  size,
			KeyField:   key,
		})
	}
	return entries, nil
}
