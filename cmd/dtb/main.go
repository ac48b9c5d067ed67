package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"dtb-go/internal/app"
	"dtb-go/internal/config"
	"dtb-go/internal/dtb"
	"dtb-go/internal/media"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig returns the config path and the config, falling back to
// defaults when no config file exists.
func loadConfig() (string, *config.Config, error) {
	defaults, err := app.LoadDefaults()
	if err != nil {
		return "", nil, fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := config.Load(defaults.ConfigPath, defaults.BaseDir)
	if err != nil {
		return "", nil, fmt.Errorf("reading config: %w", err)
	}
	return defaults.ConfigPath, cfg, nil
}

// newApp reads the config and creates a DTBApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "share", "download").
func newApp(cmd *cobra.Command, operation string) (*app.DTBApp, error) {
	_, cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	verbosity, _ := cmd.Flags().GetCount("verbose")
	root, _ := cmd.Flags().GetString("root")
	as, _ := cmd.Flags().GetString("as")

	a, err := app.NewDTBApp(cfg, operation, app.Options{Root: root, As: as, Verbosity: verbosity})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// currentUser wraps the lookup with a hint for machines without a user.
func currentUser(a *app.DTBApp) (*dtb.User, error) {
	u, err := a.CurrentUser()
	if errors.Is(err, dtb.ErrNotFound) {
		return nil, fmt.Errorf("%w\ncreate a user with `dtb new NAME` or join one with `dtb join NAME`", err)
	}
	return u, err
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// confirm asks a yes/no question on the terminal. Without a terminal the
// answer is no.
func confirm(question string) bool {
	if !isTerminal() {
		return false
	}
	fmt.Printf("%s [y/N] ", question)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func describe(song *dtb.Song) string {
	return media.DisplayName(song.Source())
}

var rootCmd = &cobra.Command{
	Use:          "dtb",
	Short:        "Share music with friends through a synced folder",
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
		defaults, err := app.LoadDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults.BaseDir)
		if root, _ := cmd.Flags().GetString("root"); root != "" {
			cfg.Root = root
		}

		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Printf("Base Dir: %s\n", defaults.BaseDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, cfg, err := loadConfig()
		if err != nil {
			return err
		}

		root := cfg.Root
		if root == "" {
			root = "(search under home directory)"
		}
		fmt.Printf("Configuration from %s:\n\n", path)
		fmt.Printf("Root:         %s\n", root)
		fmt.Printf("Base Dir:     %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:      %s\n", cfg.LogDir)
		fmt.Printf("Downloads:    %s\n", cfg.Engine.DefaultDownloads)
		fmt.Printf("Broken links: %s\n", cfg.Engine.BrokenLinks)
		fmt.Printf("Strict:       %t\n", cfg.Engine.Strict)
		fmt.Printf("Interval:     %ds\n", cfg.Daemon.IntervalSeconds)
		return nil
	},
}

// new command
var newCmd = &cobra.Command{
	Use:   "new NAME",
	Short: "Create a user for this computer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		downloads, _ := cmd.Flags().GetString("downloads")
		name := args[0]

		a, err := newApp(cmd, "new")
		if err != nil {
			return err
		}
		defer a.Close()

		u, err := a.NewUser(name, downloads)
		if errors.Is(err, dtb.ErrAlreadyExists) {
			for _, r := range a.Identities(name) {
				fmt.Printf("%s is '%s' on '%s'\n", name, r.Account, r.Computer)
			}
			if !confirm(fmt.Sprintf("Is %s you?", name)) {
				return err
			}
			u, err = a.JoinUser(name, downloads)
		}
		if err != nil {
			return err
		}

		fmt.Printf("Welcome, %s (%s)\n", u.Name, u.Path())
		return nil
	},
}

// join command
var joinCmd = &cobra.Command{
	Use:   "join NAME",
	Short: "Use an existing user from this computer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		downloads, _ := cmd.Flags().GetString("downloads")

		a, err := newApp(cmd, "join")
		if err != nil {
			return err
		}
		defer a.Close()

		u, err := a.JoinUser(args[0], downloads)
		if err != nil {
			return err
		}

		fmt.Printf("Welcome back, %s\n", u.Name)
		return nil
	},
}

// whoami command
var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the user of this computer and their friends",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "whoami")
		if err != nil {
			return err
		}
		defer a.Close()

		u, err := currentUser(a)
		if err != nil {
			return err
		}
		downloads, err := u.DownloadsPath()
		if err != nil {
			return err
		}
		friends, err := u.Friends()
		if err != nil {
			return err
		}

		fmt.Printf("User:      %s\n", u.Name)
		fmt.Printf("Root:      %s\n", a.Root())
		fmt.Printf("Downloads: %s\n", downloads)
		for _, f := range friends {
			fmt.Printf("Friend:    %s\n", f.Name)
		}
		return nil
	},
}

// incoming command
var incomingCmd = &cobra.Command{
	Use:   "incoming",
	Short: "List songs friends shared with you",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "incoming")
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := currentUser(a); err != nil {
			return err
		}
		songs, err := a.Incoming()
		if err != nil {
			return err
		}

		if len(songs) == 0 {
			fmt.Println("No incoming songs.")
			return nil
		}
		for _, s := range songs {
			fmt.Printf("%-20s  %s\n", s.Sender, describe(s))
		}
		return nil
	},
}

// outgoing command
var outgoingCmd = &cobra.Command{
	Use:   "outgoing",
	Short: "List songs you shared that friends have not taken yet",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "outgoing")
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := currentUser(a); err != nil {
			return err
		}
		songs, err := a.Outgoing()
		if err != nil {
			return err
		}

		if len(songs) == 0 {
			fmt.Println("No outgoing songs.")
			return nil
		}
		for _, s := range songs {
			fmt.Printf("%-20s  %s\n", s.Sender, describe(s))
		}
		return nil
	},
}

// share command
var shareCmd = &cobra.Command{
	Use:   "share PATH...",
	Short: "Share songs with friends",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		users, _ := cmd.Flags().GetStringSlice("user")

		a, err := newApp(cmd, "share")
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := currentUser(a); err != nil {
			return err
		}
		for _, path := range args {
			song, err := a.Share(path, users)
			if err != nil {
				return fmt.Errorf("sharing %s: %w", path, err)
			}
			fmt.Printf("Shared %s\n", describe(song))
		}
		return nil
	},
}

// download command
var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download incoming songs",
	RunE: func(cmd *cobra.Command, args []string) error {
		daemon, _ := cmd.Flags().GetBool("daemon")
		watchFlag, _ := cmd.Flags().GetBool("watch")
		interval, _ := cmd.Flags().GetDuration("interval")

		a, err := newApp(cmd, "download")
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := currentUser(a); err != nil {
			return err
		}

		if !daemon {
			files, err := a.DownloadAll()
			for _, f := range files {
				fmt.Printf("Downloaded %s\n", f)
			}
			if err != nil {
				return err
			}
			fmt.Printf("Downloaded %d song(s)\n", len(files))
			return nil
		}

		_, cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if interval == 0 {
			interval = time.Duration(cfg.Daemon.IntervalSeconds) * time.Second
		}
		if !cmd.Flags().Changed("watch") {
			watchFlag = cfg.Daemon.Watch
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Println("Downloading incoming songs, press Ctrl+C to stop")
		return a.RunDaemon(ctx, interval, watchFlag, func(files []string) {
			for _, f := range files {
				fmt.Printf("Downloaded %s\n", f)
			}
		})
	},
}

// ignore command
var ignoreCmd = &cobra.Command{
	Use:   "ignore NAME",
	Short: "Drop an incoming song without downloading it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "ignore")
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := currentUser(a); err != nil {
			return err
		}
		n, err := a.Ignore(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Ignored %d song(s)\n", n)
		return nil
	},
}

// cleanup command
var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove songs no friend still needs and stale folders",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "cleanup")
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := currentUser(a); err != nil {
			return err
		}
		result, err := a.Cleanup()
		if err != nil {
			return err
		}
		for _, p := range result.Files {
			fmt.Printf("Deleted %s\n", p)
		}
		for _, p := range result.Directories {
			fmt.Printf("Deleted %s/\n", p)
		}
		fmt.Printf("Removed %d item(s)\n", result.Count())
		return nil
	},
}

// delete command
var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete your user and every mailbox friends keep for it",
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")

		a, err := newApp(cmd, "delete")
		if err != nil {
			return err
		}
		defer a.Close()

		u, err := currentUser(a)
		if err != nil {
			return err
		}
		if !yes && !confirm(fmt.Sprintf("Delete %s and all songs shared with it?", u.Name)) {
			return fmt.Errorf("not confirmed; pass --yes to delete without a prompt")
		}

		if _, err := a.DeleteUser(); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", u.Name)
		return nil
	},
}

// downloads command
var downloadsCmd = &cobra.Command{
	Use:   "downloads [PATH]",
	Short: "Show or change where songs are downloaded on this computer",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "downloads")
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := currentUser(a); err != nil {
			return err
		}

		if len(args) == 0 {
			p, err := a.Downloads()
			if err != nil {
				return err
			}
			fmt.Println(p)
			return nil
		}

		p, err := a.SetDownloads(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Downloads: %s\n", p)
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history of this computer",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		songs, _ := cmd.Flags().GetBool("songs")

		a, err := newApp(cmd, "history")
		if err != nil {
			return err
		}
		defer a.Close()

		if songs {
			transfers, err := a.Transfers(limit)
			if err != nil {
				return err
			}
			if len(transfers) == 0 {
				fmt.Println("No songs recorded.")
				return nil
			}
			for _, t := range transfers {
				fmt.Printf("%s  %-8s  %-20s  %s\n",
					t.CreatedAt.Format("2006-01-02 15:04:05"),
					t.Kind,
					t.Peer,
					t.Song,
				)
			}
			return nil
		}

		ops, err := a.History(limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt.Valid {
				d := op.FinishedAt.Time.Sub(op.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-10s  %s  %-8s  %-10s  %s\n",
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

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase log output (-v info, -vv debug)")
	rootCmd.PersistentFlags().String("root", "", "Share root to use instead of searching")
	rootCmd.PersistentFlags().String("as", "", "Act as the named user")
	rootCmd.PersistentFlags().MarkHidden("root")
	rootCmd.PersistentFlags().MarkHidden("as")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(newCmd)
	newCmd.Flags().StringP("downloads", "d", "", "Downloads directory on this computer")
	rootCmd.AddCommand(joinCmd)
	joinCmd.Flags().StringP("downloads", "d", "", "Downloads directory on this computer")
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(incomingCmd)
	rootCmd.AddCommand(outgoingCmd)
	rootCmd.AddCommand(shareCmd)
	shareCmd.Flags().StringSliceP("user", "u", nil, "Share only with these friends")
	rootCmd.AddCommand(downloadCmd)
	downloadCmd.Flags().Bool("daemon", false, "Keep downloading until interrupted")
	downloadCmd.Flags().Bool("watch", false, "In daemon mode, also react to mailbox changes")
	downloadCmd.Flags().Duration("interval", 0, "In daemon mode, time between polls")
	rootCmd.AddCommand(ignoreCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(deleteCmd)
	deleteCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(downloadsCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of entries to show")
	historyCmd.Flags().Bool("songs", false, "Show shared, downloaded and ignored songs")
}
