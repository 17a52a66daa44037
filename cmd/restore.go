package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/orgctl/orgctl/internal/audit"
	"github.com/orgctl/orgctl/internal/client"
	"github.com/orgctl/orgctl/internal/csvio"
	"github.com/orgctl/orgctl/internal/depgraph"
	"github.com/orgctl/orgctl/internal/manifest"
	"github.com/orgctl/orgctl/internal/metadata"
	"github.com/orgctl/orgctl/internal/output"
	"github.com/orgctl/orgctl/internal/relationship"
	"github.com/orgctl/orgctl/internal/restore"
	"github.com/orgctl/orgctl/internal/transform"
	"github.com/orgctl/orgctl/internal/validate"
)

var restoreCmd = &cobra.Command{
	Use:     "restore <backup-folder>",
	Short:   "Restore a backup folder into the target org",
	GroupID: groupRestore,
	Args:    cobra.ExactArgs(1),
	Long: `Restore CSV backup data into the target org.

Objects are restored in dependency order so that lookup targets exist
before the records that point at them. Relationship reference columns
(_ref_*) are resolved against the target org, transformations from the
backup folder's transformation config are applied, and rows are
validated against the target schema before anything is written.

Examples:
  # Restore everything in a backup folder
  orgctl restore ./backups/2026-08-01

  # Restore only two objects, stopping on the first error
  orgctl restore ./backups/2026-08-01 --objects Account,Contact --stop-on-error

  # Upsert using a custom external ID field
  orgctl restore ./backups/2026-08-01 --mode upsert --external-id Legacy_Key__c

  # Keep source record IDs (forces upsert on Id)
  orgctl restore ./backups/2026-08-01 --preserve-ids

  # Restore independent objects in parallel, exposing Prometheus metrics
  orgctl restore ./backups/2026-08-01 --parallel --metrics-addr :9109

  # Publish per-object outcomes to Kafka
  orgctl restore ./backups/2026-08-01 --audit-brokers broker1:9092 --audit-topic orgctl.restore`,
	RunE: runRestore,
}

var (
	restoreObjects     []string
	restoreMode        string
	restoreBatchSize   int
	restoreMaxRetries  int
	restoreRetryDelay  time.Duration
	restoreStopOnError bool
	restorePreserveIDs bool
	restoreExternalID  string
	restoreParallel    bool
	restoreWorkers     int
	restoreSkipResolve bool
	restoreSkipCheck   bool
	restoreDryRun      bool
	restoreMetricsAddr string
	restoreAuditBroker []string
	restoreAuditTopic  string
)

func init() {
	restoreCmd.Flags().StringSliceVar(&restoreObjects, "objects", nil, "Restore only these objects (default: all in folder)")
	restoreCmd.Flags().StringVar(&restoreMode, "mode", "insert", "Write mode: insert, update, upsert")
	restoreCmd.Flags().IntVar(&restoreBatchSize, "batch-size", 200, "Records per write batch")
	restoreCmd.Flags().IntVar(&restoreMaxRetries, "max-retries", 3, "Attempts per batch on transient failures")
	restoreCmd.Flags().DurationVar(&restoreRetryDelay, "retry-delay", 2*time.Second, "Base delay between retries (grows linearly)")
	restoreCmd.Flags().BoolVar(&restoreStopOnError, "stop-on-error", false, "Stop at the first failing batch")
	restoreCmd.Flags().BoolVar(&restorePreserveIDs, "preserve-ids", false, "Keep source record IDs (forces upsert on Id)")
	restoreCmd.Flags().StringVar(&restoreExternalID, "external-id", "", "External ID field for upsert mode")
	restoreCmd.Flags().BoolVar(&restoreParallel, "parallel", false, "Restore independent objects concurrently")
	restoreCmd.Flags().IntVar(&restoreWorkers, "workers", 4, "Concurrent objects when --parallel is set")
	restoreCmd.Flags().BoolVar(&restoreSkipResolve, "no-resolve", false, "Skip relationship reference resolution")
	restoreCmd.Flags().BoolVar(&restoreSkipCheck, "no-validate", false, "Skip schema validation before writing")
	restoreCmd.Flags().BoolVar(&restoreDryRun, "dry-run", false, "Plan the restore without writing anything")
	restoreCmd.Flags().StringVar(&restoreMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9109)")
	restoreCmd.Flags().StringSliceVar(&restoreAuditBroker, "audit-brokers", nil, "Kafka brokers for restore audit events")
	restoreCmd.Flags().StringVar(&restoreAuditTopic, "audit-topic", "orgctl.restore", "Kafka topic for restore audit events")

	rootCmd.AddCommand(restoreCmd)
}

// restoreSettings carries the flag values into the pipeline so tests can
// drive it directly.
type restoreSettings struct {
	Objects     []string
	Mode        restore.Mode
	BatchSize   int
	MaxRetries  int
	RetryDelay  time.Duration
	StopOnError bool
	PreserveIDs bool
	ExternalID  string
	Parallel    bool
	Workers     int
	SkipResolve bool
	SkipCheck   bool
	DryRun      bool
	Target      string

	// Progress sink factory; nil means no progress display.
	newProgress func(objectName string, total int) func(restore.Progress)

	// Audit sink; nil means no audit events.
	publish func(audit.Event)

	// Called with the executor once it exists, before any writes.
	onExecutor func(*restore.Executor)
}

func runRestore(cmd *cobra.Command, args []string) error {
	c, err := GetClient()
	if err != nil {
		return err
	}

	mode, err := parseMode(restoreMode)
	if err != nil {
		return err
	}

	settings := restoreSettings{
		Objects:     restoreObjects,
		Mode:        mode,
		BatchSize:   restoreBatchSize,
		MaxRetries:  restoreMaxRetries,
		RetryDelay:  restoreRetryDelay,
		StopOnError: restoreStopOnError,
		PreserveIDs: restorePreserveIDs,
		ExternalID:  restoreExternalID,
		Parallel:    restoreParallel,
		Workers:     restoreWorkers,
		SkipResolve: restoreSkipResolve,
		SkipCheck:   restoreSkipCheck,
		DryRun:      restoreDryRun,
		Target:      targetName(),
		newProgress: terminalProgress,
	}

	if len(restoreAuditBroker) > 0 {
		producer, err := audit.NewProducer(audit.ProducerConfig{
			Brokers: restoreAuditBroker,
			Topic:   restoreAuditTopic,
		})
		if err != nil {
			return fmt.Errorf("audit producer: %w", err)
		}
		defer producer.Close()
		settings.publish = func(event audit.Event) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := producer.Publish(ctx, event); err != nil {
				output.Warning("audit publish failed: %v", err)
			}
		}
	}

	var metricsCancel context.CancelFunc
	if restoreMetricsAddr != "" {
		settings.onExecutor = func(exec *restore.Executor) {
			ctx, cancel := context.WithCancel(context.Background())
			metricsCancel = cancel
			server := restore.NewMetricsServer(exec.Stats(), restoreMetricsAddr, settings.Target)
			go func() {
				if err := server.Start(ctx); err != nil {
					output.Warning("metrics server: %v", err)
				}
			}()
			output.Info("Serving metrics on %s/metrics", restoreMetricsAddr)
		}
	}

	results, _, err := runRestoreFolder(c, args[0], settings)
	if metricsCancel != nil {
		metricsCancel()
	}
	if err != nil {
		return err
	}

	return printRestoreResults(results)
}

// runRestoreFolder executes the whole restore pipeline for a backup
// folder: plan, transform, validate, resolve, write.
func runRestoreFolder(c client.PlatformClient, folderPath string, settings restoreSettings) ([]*restore.Result, *restore.Stats, error) {
	folder := manifest.NewFolder(folderPath)
	files, err := folder.DataFiles()
	if err != nil {
		return nil, nil, err
	}
	files = filterObjects(files, settings.Objects)
	if len(files) == 0 {
		return nil, nil, fmt.Errorf("no backup data found in %s", folderPath)
	}

	meta := metadata.NewCache(c)
	orderer := depgraph.NewOrderer(meta, func(msg string) { output.Warning("%s", msg) })

	objectNames := make([]string, 0, len(files))
	for name := range files {
		objectNames = append(objectNames, name)
	}
	sort.Strings(objectNames)

	ordered, err := orderer.OrderForRestore(objectNames)
	if err != nil {
		return nil, nil, fmt.Errorf("order objects: %w", err)
	}

	transformConfig, err := transform.LoadFromBackupFolder(folderPath)
	if err != nil {
		return nil, nil, err
	}
	if transformConfig != nil {
		output.Info("Using transformation config %q from backup folder", transformConfig.Name)
	}

	runningUserID, err := c.RunningUserID()
	if err != nil {
		output.Warning("could not resolve running user: %v", err)
	}

	if settings.DryRun {
		printRestorePlan(ordered, files, settings)
		return nil, nil, nil
	}

	opts := restore.Options{
		BatchSize:       settings.BatchSize,
		MaxRetries:      settings.MaxRetries,
		RetryDelay:      settings.RetryDelay,
		StopOnError:     settings.StopOnError,
		PreserveIDs:     settings.PreserveIDs,
		ExternalIDField: settings.ExternalID,
		Workers:         settings.Workers,
	}
	exec := restore.NewExecutor(c, meta, opts)
	exec.SetLogSink(func(msg string) { output.Step("%s", msg) })
	if settings.onExecutor != nil {
		settings.onExecutor(exec)
	}

	transformer := transform.NewTransformer(transformConfig, func(msg string) { output.Info("%s", msg) })
	resolver := relationship.NewResolver(c, meta, func(msg string) { output.Warning("%s", msg) })
	validator := validate.NewValidator(meta)

	prepare := func(objectName string) ([]csvio.Row, error) {
		rows, err := csvio.ReadFile(files[objectName])
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", files[objectName], err)
		}

		rows, skipped, err := transformer.TransformRows(objectName, rows, runningUserID)
		if err != nil {
			return nil, err
		}
		for _, reason := range skipped {
			output.Warning("%s: skipped record: %s", objectName, reason)
		}

		if !settings.SkipCheck {
			check, err := validator.ValidateRows(objectName, rows)
			if err != nil {
				return nil, err
			}
			for _, warning := range check.Warnings {
				output.Warning("%s", warning)
			}
			if !check.Valid() {
				for _, msg := range check.Errors {
					output.Error("%s", msg)
				}
				if settings.StopOnError {
					return nil, fmt.Errorf("%s failed validation: %s", objectName, check.Summary())
				}
			}
		}

		if !settings.SkipResolve {
			if err := resolver.Resolve(objectName, rows); err != nil {
				return nil, fmt.Errorf("resolve references for %s: %w", objectName, err)
			}
		}
		return rows, nil
	}

	var results []*restore.Result
	if settings.Parallel {
		levels, err := orderer.GroupForParallelProcessing(objectNames)
		if err != nil {
			return nil, nil, err
		}
		var plan [][]restore.SetItem
		for _, level := range levels {
			var items []restore.SetItem
			for _, objectName := range level {
				rows, err := prepare(objectName)
				if err != nil {
					return nil, nil, err
				}
				items = append(items, restore.SetItem{ObjectName: objectName, Rows: rows, Mode: settings.Mode})
			}
			plan = append(plan, items)
		}
		results = exec.RestoreLevels(plan)
	} else {
		for _, objectName := range ordered {
			rows, err := prepare(objectName)
			if err != nil {
				return nil, nil, err
			}

			if settings.newProgress != nil {
				exec.SetProgressSink(settings.newProgress(objectName, len(rows)))
			}
			result, err := exec.RestoreRows(objectName, rows, settings.Mode)
			if err != nil {
				return nil, nil, err
			}
			results = append(results, result)
			if settings.publish != nil {
				settings.publish(audit.NewEvent(settings.Target, objectName, string(settings.Mode),
					result.TotalRecords, result.SuccessCount, result.FailureCount, result.Completed))
			}
			if result.FailureCount > 0 && settings.StopOnError {
				break
			}
		}
	}

	if settings.Parallel && settings.publish != nil {
		for _, result := range results {
			settings.publish(audit.NewEvent(settings.Target, result.ObjectName, string(settings.Mode),
				result.TotalRecords, result.SuccessCount, result.FailureCount, result.Completed))
		}
	}

	return results, exec.Stats(), nil
}

func parseMode(mode string) (restore.Mode, error) {
	switch strings.ToUpper(mode) {
	case "INSERT":
		return restore.ModeInsert, nil
	case "UPDATE":
		return restore.ModeUpdate, nil
	case "UPSERT":
		return restore.ModeUpsert, nil
	default:
		return "", fmt.Errorf("invalid mode: %s (valid: insert, update, upsert)", mode)
	}
}

func filterObjects(files map[string]string, objects []string) map[string]string {
	if len(objects) == 0 {
		return files
	}
	filtered := make(map[string]string, len(objects))
	for _, name := range objects {
		name = strings.TrimSpace(name)
		if path, ok := files[name]; ok {
			filtered[name] = path
		} else {
			output.Warning("object %s not found in backup folder", name)
		}
	}
	return filtered
}

func printRestorePlan(ordered []string, files map[string]string, settings restoreSettings) {
	output.Header("Restore Plan (dry run)")
	output.Info("Mode: %s, batch size: %d", settings.Mode, settings.BatchSize)

	var rows [][]string
	for i, objectName := range ordered {
		count := "?"
		if fileRows, err := csvio.ReadFile(files[objectName]); err == nil {
			count = fmt.Sprintf("%d", len(fileRows))
		}
		rows = append(rows, []string{fmt.Sprintf("%d", i+1), objectName, count})
	}
	output.PrintTable([]string{"#", "Object", "Records"}, rows)
}

func printRestoreResults(results []*restore.Result) error {
	if results == nil {
		return nil
	}

	output.Header("Restore Results")
	var rows [][]string
	var totalSuccess, totalFailed int
	failed := false
	for _, result := range results {
		status := output.Green("OK")
		if result.FailureCount > 0 {
			status = output.Red("FAILED")
			failed = true
		}
		rows = append(rows, []string{
			result.ObjectName,
			fmt.Sprintf("%d", result.TotalRecords),
			fmt.Sprintf("%d", result.SuccessCount),
			fmt.Sprintf("%d", result.FailureCount),
			status,
		})
		totalSuccess += result.SuccessCount
		totalFailed += result.FailureCount
	}
	output.PrintTable([]string{"Object", "Total", "Succeeded", "Failed", "Status"}, rows)

	for _, result := range results {
		if len(result.Errors) == 0 {
			continue
		}
		output.SubHeader("%s errors", result.ObjectName)
		for _, msg := range restore.GroupedErrors(result.Errors) {
			output.Error("%s", msg)
		}
	}

	if failed {
		return fmt.Errorf("restore finished with %d failed records (%d succeeded)", totalFailed, totalSuccess)
	}
	output.Success("Restore complete: %d records across %d objects", totalSuccess, len(results))
	return nil
}

// terminalProgress renders a per-object progress bar.
func terminalProgress(objectName string, total int) func(restore.Progress) {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription(objectName),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	return func(p restore.Progress) {
		_ = bar.Set(p.ProcessedRecords)
	}
}
