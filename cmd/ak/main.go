package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"assetkeeper/internal/ak"
	"assetkeeper/internal/app"
	"assetkeeper/internal/config"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// EnvPassphrase supplies the key passphrase without a prompt.
const EnvPassphrase = "AK_PASSPHRASE"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file named by the defaults.
func loadConfig() (*config.Config, *app.Defaults, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, nil, fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := config.ReadFromFile(defaults.ConfigPath)
	if err != nil {
		return nil, nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, defaults, nil
}

// newApp reads the config and creates an AKApp. The caller must defer app.Close().
// command identifies the CLI command being run (e.g. "AddImages", "Recover").
func newApp(cmd *cobra.Command, command string) (*app.AKApp, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	verbose, _ := cmd.Flags().GetBool("verbose")

	a, err := app.NewAKApp(cmd.Context(), cfg, command, app.Options{Verbose: verbose})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// readPassphrase prompts on the terminal, or reads one line from stdin
// when it is not a terminal.
func readPassphrase(prompt string) (string, error) {
	if p := os.Getenv(EnvPassphrase); p != "" {
		return p, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && err != io.EOF {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

func printCommit(c *ak.Commit) {
	fmt.Printf("Committed %s, version %d\n", c.TxnID, c.Version.CurrentVersion)
	for _, r := range c.Records {
		prem := ""
		if r.Premium {
			prem = "  [premium]"
		}
		fmt.Printf("  %-8s %s%s\n", r.Key(), r.Filename(), prem)
	}
}

func uploadOptions(cmd *cobra.Command) app.UploadOptions {
	premium, _ := cmd.Flags().GetBool("premium")
	tags, _ := cmd.Flags().GetStringSlice("tag")
	return app.UploadOptions{Premium: premium, Tags: tags}
}

var rootCmd = &cobra.Command{
	Use:          "ak",
	Short:        "Versioned image asset store",
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

		cfg := config.NewConfig(defaults.BaseDir)
		if root, _ := cmd.Flags().GetString("root"); root != "" {
			cfg.Store.Root = root
		}
		if variant, _ := cmd.Flags().GetString("variant"); variant != "" {
			cfg.Store.Variant = variant
		}

		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Store Root: %s (%s)\n", cfg.Store.Root, cfg.Store.Variant)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, defaults, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", defaults.ConfigPath)
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Store Root: %s (%s)\n", cfg.Store.Root, cfg.Store.Variant)
		fmt.Printf("Ledger:     %s\n", cfg.Ledger.Path)
		fmt.Printf("Journal:    %s %s\n", cfg.Journal.Type, cfg.Journal.DataDir)
		fmt.Printf("Encryption: %s\n", cfg.Encryption.Type)
		for _, a := range cfg.Archives {
			fmt.Printf("Archive:    %s (%s)\n", a.Name, a.Type)
		}
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage archive encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the archive key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		pass, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}
		if term.IsTerminal(int(os.Stdin.Fd())) && os.Getenv(EnvPassphrase) == "" {
			again, err := readPassphrase("Repeat passphrase: ")
			if err != nil {
				return err
			}
			if again != pass {
				return fmt.Errorf("passphrases do not match")
			}
		}
		if err := app.SetupKeys(cfg, pass); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}
		fmt.Printf("Public key:  %s\n", cfg.Encryption.PublicKeyPath)
		fmt.Printf("Private key: %s\n", cfg.Encryption.PrivateKeyPath)
		return nil
	},
}

// category command
var categoryCmd = &cobra.Command{
	Use:   "category",
	Short: "Manage categories",
}

var categoryAddCmd = &cobra.Command{
	Use:   "add CATEGORY FILE...",
	Short: "Create a category from image files",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sub, _ := cmd.Flags().GetString("sub")

		a, err := newApp(cmd, "AddCategory")
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.AddCategory(cmd.Context(), args[0], sub, args[1:], uploadOptions(cmd))
		if err != nil {
			return fmt.Errorf("adding category: %w", err)
		}
		printCommit(c)
		return nil
	},
}

var categoryDeleteCmd = &cobra.Command{
	Use:   "delete CATEGORY",
	Short: "Delete a category or sub-category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sub, _ := cmd.Flags().GetString("sub")

		a, err := newApp(cmd, "DeleteCategory")
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.DeleteCategory(cmd.Context(), args[0], sub)
		if err != nil {
			return fmt.Errorf("deleting category: %w", err)
		}
		printCommit(c)
		return nil
	},
}

var categoryRenameCmd = &cobra.Command{
	Use:   "rename CATEGORY NEW_NAME",
	Short: "Rename a category or sub-category",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sub, _ := cmd.Flags().GetString("sub")

		a, err := newApp(cmd, "RenameCategory")
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.RenameCategory(cmd.Context(), args[0], sub, args[1])
		if err != nil {
			return fmt.Errorf("renaming category: %w", err)
		}
		printCommit(c)
		return nil
	},
}

// image command
var imageCmd = &cobra.Command{
	Use:   "image",
	Short: "Manage images in a category",
}

var imageAddCmd = &cobra.Command{
	Use:   "add CATEGORY FILE...",
	Short: "Insert images, shifting later images up",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sub, _ := cmd.Flags().GetString("sub")
		at, _ := cmd.Flags().GetInt("at")

		a, err := newApp(cmd, "AddImages")
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.AddImages(cmd.Context(), args[0], sub, args[1:], at, uploadOptions(cmd))
		if err != nil {
			return fmt.Errorf("adding images: %w", err)
		}
		printCommit(c)
		return nil
	},
}

var imageReplaceCmd = &cobra.Command{
	Use:   "replace CATEGORY IMAGE",
	Short: "Replace an image's content or flags",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sub, _ := cmd.Flags().GetString("sub")
		file, _ := cmd.Flags().GetString("file")

		req := app.ReplaceRequest{Path: file}
		if cmd.Flags().Changed("premium") {
			premium, _ := cmd.Flags().GetBool("premium")
			req.Premium = &premium
		}
		if cmd.Flags().Changed("tag") {
			req.Tags, _ = cmd.Flags().GetStringSlice("tag")
			if req.Tags == nil {
				req.Tags = []string{}
			}
		}

		a, err := newApp(cmd, "ReplaceImage")
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.ReplaceImage(cmd.Context(), args[0], sub, args[1], req)
		if err != nil {
			return fmt.Errorf("replacing image: %w", err)
		}
		printCommit(c)
		return nil
	},
}

var imageDeleteCmd = &cobra.Command{
	Use:   "delete CATEGORY IMAGE",
	Short: "Delete an image, shifting later images down",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sub, _ := cmd.Flags().GetString("sub")

		a, err := newApp(cmd, "DeleteImage")
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.DeleteImage(cmd.Context(), args[0], sub, args[1])
		if err != nil {
			return fmt.Errorf("deleting image: %w", err)
		}
		printCommit(c)
		return nil
	},
}

var imageSwapCmd = &cobra.Command{
	Use:   "swap CATEGORY IMAGE IMAGE",
	Short: "Exchange the positions of two images",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		sub, _ := cmd.Flags().GetString("sub")

		a, err := newApp(cmd, "SwapImages")
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.SwapImages(cmd.Context(), args[0], sub, args[1], args[2])
		if err != nil {
			return fmt.Errorf("swapping images: %w", err)
		}
		printCommit(c)
		return nil
	},
}

// flags command
var flagsCmd = &cobra.Command{
	Use:   "flags",
	Short: "Manage premium flags",
}

var flagsUpdateCmd = &cobra.Command{
	Use:   "update FILE",
	Short: "Apply premium flag updates from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "UpdateFlags")
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.UpdateFlagsFromFile(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("updating flags: %w", err)
		}

		fmt.Printf("Committed %s, version %d\n", result.TxnID, result.Version.CurrentVersion)
		fmt.Printf("Updated %d, failed %d\n", len(result.Updated), len(result.Failed))
		for _, f := range result.Failed {
			scope := ak.Scope{Category: f.Category, SubCategory: f.SubCategory}
			fmt.Printf("  %s %s: %s\n", scope, f.Filename, f.Reason)
		}
		return nil
	},
}

// version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the store version",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Version")
		if err != nil {
			return err
		}
		defer a.Close()

		v, err := a.Version()
		if err != nil {
			return err
		}
		fmt.Println(app.FormatVersion(v))
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View transaction history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "History")
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.History(limit)
		if err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("No transactions recorded.")
			return nil
		}

		for _, e := range entries {
			duration := ""
			if e.FinishedAt != nil {
				duration = e.FinishedAt.Sub(e.StartedAt).Truncate(time.Millisecond).String()
			}
			version := "-"
			if e.Version > 0 {
				version = fmt.Sprintf("v%d", e.Version)
			}
			fmt.Printf("%s  %-16s  %-20s  %s  %-16s  %-5s  %s\n",
				e.ID[:min(8, len(e.ID))],
				e.Operation,
				e.Scope,
				e.StartedAt.Format("2006-01-02 15:04:05"),
				e.State,
				version,
				duration,
			)
			if e.Error != "" {
				fmt.Printf("          %s\n", e.Error)
			}
		}
		return nil
	},
}

// recover command
var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Finish transactions interrupted by a crash",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Recover")
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.Recover(cmd.Context())
		for _, e := range entries {
			fmt.Printf("%s  %-16s  %-20s  %s\n", e.ID, e.Operation, e.Scope, e.State)
		}
		if err != nil {
			return fmt.Errorf("recovery incomplete: %w", err)
		}
		if len(entries) == 0 {
			fmt.Println("Nothing to recover.")
		}
		return nil
	},
}

// archive command
var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Access published archives",
}

var archiveCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify archive backends are writable",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "CheckArchives")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.CheckArchives(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("All archives ready.")
		return nil
	},
}

var archiveGetCmd = &cobra.Command{
	Use:   "get NAME",
	Short: "Print an archived document (e.g. version.json)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("archive")
		version, _ := cmd.Flags().GetInt64("version")
		decrypt, _ := cmd.Flags().GetBool("decrypt")
		output, _ := cmd.Flags().GetString("output")

		req := app.FetchRequest{Archive: name, Version: version, Name: args[0]}
		if decrypt {
			pass, err := readPassphrase("Passphrase: ")
			if err != nil {
				return err
			}
			req.Passphrase = pass
		}

		a, err := newApp(cmd, "FetchArchive")
		if err != nil {
			return err
		}
		defer a.Close()

		var w io.Writer = os.Stdout
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating %s: %w", output, err)
			}
			defer f.Close()
			w = f
		}

		got, err := a.FetchArchive(cmd.Context(), req, w)
		if err != nil {
			return fmt.Errorf("fetching %s: %w", args[0], err)
		}
		if output != "" {
			fmt.Printf("Wrote %s from version %d to %s\n", args[0], got, output)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug output to stderr")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().String("root", "", "Asset store root (default: <base_dir>/Assets)")
	configInitCmd.Flags().String("variant", "", "Store layout: imagine or ibgc")

	keysCmd.AddCommand(keysInitCmd)

	// category subcommands
	categoryCmd.AddCommand(categoryAddCmd)
	categoryCmd.AddCommand(categoryDeleteCmd)
	categoryCmd.AddCommand(categoryRenameCmd)

	// image subcommands
	imageCmd.AddCommand(imageAddCmd)
	imageCmd.AddCommand(imageReplaceCmd)
	imageCmd.AddCommand(imageDeleteCmd)
	imageCmd.AddCommand(imageSwapCmd)
	imageAddCmd.Flags().Int("at", -1, "List position to insert at (default: append)")
	imageReplaceCmd.Flags().String("file", "", "New image content")

	for _, c := range []*cobra.Command{categoryAddCmd, imageAddCmd, imageReplaceCmd} {
		c.Flags().Bool("premium", false, "Mark images as premium")
		c.Flags().StringSlice("tag", nil, "Tag to attach (repeatable)")
	}
	for _, c := range []*cobra.Command{categoryAddCmd, categoryDeleteCmd, categoryRenameCmd, imageAddCmd, imageReplaceCmd, imageDeleteCmd, imageSwapCmd} {
		c.Flags().StringP("sub", "s", "", "Sub-category")
	}

	flagsCmd.AddCommand(flagsUpdateCmd)

	// archive subcommands
	archiveCmd.AddCommand(archiveCheckCmd)
	archiveCmd.AddCommand(archiveGetCmd)
	archiveGetCmd.Flags().String("archive", "", "Archive name (default: first configured)")
	archiveGetCmd.Flags().Int64("version", 0, "Version to read (default: latest)")
	archiveGetCmd.Flags().Bool("decrypt", false, "Prompt for the key passphrase and decrypt")
	archiveGetCmd.Flags().StringP("output", "o", "", "Write to a file instead of stdout")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(categoryCmd)
	rootCmd.AddCommand(imageCmd)
	rootCmd.AddCommand(flagsCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of transactions to show")
	rootCmd.AddCommand(recoverCmd)
	rootCmd.AddCommand(archiveCmd)
}
