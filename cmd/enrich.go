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
	"github.com/orgctl/orgctl/internal/relationship"
)

var enrichCmd = &cobra.Command{
	Use:     "enrich <backup-folder>",
	Short:   "Add portable lookup keys to a backup",
	GroupID: groupRestore,
	Args:    cobra.ExactArgs(1),
	Long: `Rewrite a plain backup into a relationship-aware one.

Each lookup column gets a companion _ref_ column holding the referenced
record's portable key (external ID, unique field, or name), fetched from
the org the backup was taken from. A relationship metadata file recording
each object's key strategy is written alongside the CSVs. Enriched
backups restore into any target org without relying on record IDs.

Run this against the SOURCE org, before moving the backup folder to
another org.

Examples:
  # Enrich every object in a backup folder
  orgctl enrich ./backups/2026-08-01

  # Enrich only specific objects
  orgctl enrich ./backups/2026-08-01 --objects Contact,Case`,
	RunE: runEnrich,
}

var enrichObjects []string

func init() {
	enrichCmd.Flags().StringSliceVar(&enrichObjects, "objects", nil, "Enrich only these objects (default: all in folder)")
	rootCmd.AddCommand(enrichCmd)
}

func runEnrich(cmd *cobra.Command, args []string) error {
	c, err := GetClient()
	if err != nil {
		return err
	}
	return enrichFolder(c, args[0], enrichObjects)
}

func enrichFolder(c client.PlatformClient, folderPath string, objects []string) error {
	folder := manifest.NewFolder(folderPath)
	files, err := folder.DataFiles()
	if err != nil {
		return err
	}
	files = filterObjects(files, objects)
	if len(files) == 0 {
		return fmt.Errorf("no backup data found in %s", folderPath)
	}

	objectNames := make([]string, 0, len(files))
	for name := range files {
		objectNames = append(objectNames, name)
	}
	sort.Strings(objectNames)

	meta := metadata.NewCache(c)
	enricher := relationship.NewEnricher(c, meta, func(msg string) { output.Warning("%s", msg) })

	rel := &manifest.RelationshipMetadata{
		Objects: make(map[string]*manifest.RelationshipObjectInfo),
	}

	for _, objectName := range objectNames {
		rows, err := csvio.ReadFile(files[objectName])
		if err != nil {
			return fmt.Errorf("read %s: %w", files[objectName], err)
		}
		if len(rows) == 0 {
			output.Info("%s: no records, skipped", objectName)
			continue
		}

		output.Step("Enriching %s (%d records)", objectName, len(rows))
		if err := enricher.Enrich(objectName, rows); err != nil {
			return err
		}
		if err := csvio.WriteFile(files[objectName], rows); err != nil {
			return err
		}

		md, err := meta.Describe(objectName)
		if err != nil {
			return err
		}
		info := &manifest.RelationshipObjectInfo{
			ExternalKeyStrategy: manifest.NewKeyStrategyInfo(metadata.SelectStrategy(md)),
		}
		for _, field := range md.RelationshipFields {
			info.RelationshipFields = append(info.RelationshipFields, manifest.RelationshipFieldInfo{
				FieldName:        field.Name,
				RelationshipName: field.RelationshipName,
				ReferenceTo:      field.ReferenceTo,
				Polymorphic:      field.Polymorphic(),
			})
		}
		rel.Objects[objectName] = info
	}

	if err := folder.SaveRelationshipMetadata(rel); err != nil {
		return err
	}
	output.Success("Enriched %d objects; relationship metadata saved", len(rel.Objects))
	return nil
}
