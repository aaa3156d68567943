package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"bm-go/internal/app"
	"bm-go/internal/config"
	"bm-go/internal/manager"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a BMApp. The caller must defer closeApp.
// operation identifies the CLI command being run (e.g. "ExportBackup", "AddManager").
func newApp(ctx context.Context, operation, parameters string) (*app.BMApp, error) {
	cfg, _, err := readConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewBMApp(ctx, cfg, operation, parameters)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

func closeApp(ctx context.Context, a *app.BMApp) {
	if err := a.Close(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
}

func readConfig() (*config.Config, string, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, "", fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, "", fmt.Errorf("reading config: %w", err)
	}
	return cfg, defaults["config_path"], nil
}

// readPassphrase prompts on the terminal without echo.
func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

var rootCmd = &cobra.Command{
	Use:          "bm",
	Short:        "Backup manager archive tool",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := readConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", path)
		fmt.Printf("Base Dir:     %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:      %s\n", cfg.LogDir)
		fmt.Printf("Temp Dir:     %s\n", cfg.TempDir)
		fmt.Printf("Storage:      %s\n", describeStorage(cfg.Storage))
		fmt.Printf("Export:       enabled=%t compression=%s dir=%s\n",
			cfg.Export.Enabled, cfg.Export.CompressionLevel, cfg.Export.Dir)
		fmt.Printf("Database:     %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		return nil
	},
}

func describeStorage(s config.StorageConfig) string {
	switch s.Type {
	case "filesystem":
		return "filesystem " + s.FSRoot
	case "s3":
		loc := "s3://" + s.S3Bucket
		if s.S3Prefix != "" {
			loc += "/" + s.S3Prefix
		}
		if s.S3Endpoint != "" {
			loc += " (" + s.S3Endpoint + ")"
		}
		return loc
	default:
		return s.Type
	}
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Generate the encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, "SetupKeys", "")
		if err != nil {
			return err
		}
		defer closeApp(ctx, a)

		pass, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := readPassphrase("Confirm passphrase: ")
		if err != nil {
			return err
		}
		if pass != confirm {
			return fmt.Errorf("passphrases do not match")
		}

		if err := a.SetupKeys(pass); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}
		fmt.Println("Encryption keys generated.")
		return nil
	},
}

// manager command
var managerCmd = &cobra.Command{
	Use:   "manager",
	Short: "Manage backup managers",
}

var managerAddCmd = &cobra.Command{
	Use:   "add ID",
	Short: "Register a backup manager",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		backupType, _ := cmd.Flags().GetString("type")
		domain, _ := cmd.Flags().GetString("domain")
		description, _ := cmd.Flags().GetString("description")

		ctx := cmd.Context()
		a, err := newApp(ctx, "AddManager", args[0])
		if err != nil {
			return err
		}
		defer closeApp(ctx, a)

		m := manager.BackupManager{
			ID:           args[0],
			BackupType:   backupType,
			BackupDomain: domain,
			Description:  description,
		}
		if err := a.AddManager(ctx, m); err != nil {
			return fmt.Errorf("adding backup manager: %w", err)
		}

		fmt.Printf("Added backup manager: %s\n", args[0])
		return nil
	},
}

var managerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backup managers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, "ListManagers", "")
		if err != nil {
			return err
		}
		defer closeApp(ctx, a)

		managers, err := a.ListManagers(ctx)
		if err != nil {
			return err
		}

		if len(managers) == 0 {
			fmt.Println("No backup managers.")
			return nil
		}

		for _, m := range managers {
			fmt.Printf("%-20s  %-10s  %-10s  %s\n", m.ID, m.BackupType, m.BackupDomain, m.Description)
		}
		return nil
	},
}

// stage command
var stageCmd = &cobra.Command{
	Use:   "stage",
	Short: "Copy a local backup into storage",
	RunE: func(cmd *cobra.Command, args []string) error {
		managerID, _ := cmd.Flags().GetString("manager")
		name, _ := cmd.Flags().GetString("name")
		metadataPath, _ := cmd.Flags().GetString("metadata")
		dataPath, _ := cmd.Flags().GetString("data")

		absMeta, err := filepath.Abs(metadataPath)
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}
		absData, err := filepath.Abs(dataPath)
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}

		ctx := cmd.Context()
		a, err := newApp(ctx, "StageBackup", managerID+"/"+name)
		if err != nil {
			return err
		}
		defer closeApp(ctx, a)

		count, err := a.StageBackup(ctx, managerID, name, absMeta, absData)
		if err != nil {
			return fmt.Errorf("staging: %w", err)
		}

		fmt.Printf("Staged %d file(s)\n", count)
		return nil
	},
}

// export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a stored backup as a tarball",
	RunE: func(cmd *cobra.Command, args []string) error {
		managerID, _ := cmd.Flags().GetString("manager")
		name, _ := cmd.Flags().GetString("name")
		encrypt, _ := cmd.Flags().GetBool("encrypt")

		ctx := cmd.Context()
		a, err := newApp(ctx, "ExportBackup", managerID+"/"+name)
		if err != nil {
			return err
		}
		defer closeApp(ctx, a)

		rec, err := a.ExportBackup(ctx, managerID, name, encrypt)
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}

		fmt.Printf("Exported %s (%d entries, %d bytes, checksum %s)\n",
			rec.Location, rec.Entries, rec.Size, rec.Checksum)
		return nil
	},
}

// import command
var importCmd = &cobra.Command{
	Use:   "import ARCHIVE",
	Short: "Import a tarball into storage",
	Long: "Import a tarball into storage. ARCHIVE is a storage location, or a local\n" +
		"file when --file is set. Archives ending in .age are decrypted.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		managerID, _ := cmd.Flags().GetString("manager")
		name, _ := cmd.Flags().GetString("name")
		local, _ := cmd.Flags().GetBool("file")

		var passphrase string
		encrypted := app.IsEncryptedArchive(args[0])
		if encrypted {
			var err error
			passphrase, err = readPassphrase("Passphrase: ")
			if err != nil {
				return err
			}
		}

		ctx := cmd.Context()
		a, err := newApp(ctx, "ImportBackup", args[0])
		if err != nil {
			return err
		}
		defer closeApp(ctx, a)

		var count int
		if local {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening archive: %w", err)
			}
			defer f.Close()
			created, err := a.ImportBackupFrom(ctx, f, encrypted, managerID, name, passphrase)
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
			}
			count = len(created)
		} else {
			created, err := a.ImportBackup(ctx, args[0], managerID, name, passphrase)
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
			}
			count = len(created)
		}

		fmt.Printf("Imported %s/%s: %d location(s) created\n", managerID, name, count)
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		ctx := cmd.Context()
		a, err := newApp(ctx, "GetHistory", "")
		if err != nil {
			return err
		}
		defer closeApp(ctx, a)

		ops, err := a.GetHistory(ctx, limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt != nil {
				d := op.FinishedAt.Sub(op.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-15s  %s  %-10s  %-10s  %s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
				op.Parameters,
			)
		}
		return nil
	},
}

// archives command
var archivesCmd = &cobra.Command{
	Use:   "archives",
	Short: "List exported archives",
	RunE: func(cmd *cobra.Command, args []string) error {
		managerID, _ := cmd.Flags().GetString("manager")

		ctx := cmd.Context()
		a, err := newApp(ctx, "ListArchives", "")
		if err != nil {
			return err
		}
		defer closeApp(ctx, a)

		recs, err := a.ListArchives(ctx, managerID)
		if err != nil {
			return err
		}

		if len(recs) == 0 {
			fmt.Println("No archives recorded.")
			return nil
		}

		for _, r := range recs {
			flags := ""
			if r.Encrypted {
				flags = "[encrypted]"
			}
			fmt.Printf("%s  %s  %-12s  %10d  %s %s\n",
				r.CreatedAt.Format("2006-01-02 15:04:05"),
				r.Checksum,
				strings.Join([]string{r.ManagerID, r.BackupName}, "/"),
				r.Size,
				r.Location,
				flags,
			)
		}
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configKeysCmd)

	// manager subcommands
	managerCmd.AddCommand(managerAddCmd)
	managerAddCmd.Flags().String("type", "", "Backup type (default "+manager.DefaultBackupType+")")
	managerAddCmd.Flags().String("domain", "", "Backup domain (default "+manager.DefaultBackupDomain+")")
	managerAddCmd.Flags().String("description", "", "Free-form description")
	managerCmd.AddCommand(managerListCmd)

	// backup selection shared by stage, export and import
	for _, c := range []*cobra.Command{stageCmd, exportCmd, importCmd} {
		c.Flags().StringP("manager", "m", "", "Backup manager ID")
		c.Flags().StringP("name", "n", "", "Backup name")
		c.MarkFlagRequired("manager")
		c.MarkFlagRequired("name")
	}
	stageCmd.Flags().String("metadata", "", "Local metadata document")
	stageCmd.Flags().String("data", "", "Local payload directory")
	stageCmd.MarkFlagRequired("metadata")
	stageCmd.MarkFlagRequired("data")
	exportCmd.Flags().BoolP("encrypt", "e", false, "Encrypt the tarball with the configured public key")
	importCmd.Flags().BoolP("file", "f", false, "Read ARCHIVE from the local disk")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(managerCmd)
	rootCmd.AddCommand(stageCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
	rootCmd.AddCommand(archivesCmd)
	archivesCmd.Flags().StringP("manager", "m", "", "Only list archives of this backup manager")
}
