// Package main provides the tootmix CLI entry point.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/gauthierbraillon/tootmix/internal/config"
	"github.com/gauthierbraillon/tootmix/internal/display"
	"github.com/gauthierbraillon/tootmix/internal/engine"
	"github.com/gauthierbraillon/tootmix/internal/logging"
	"github.com/gauthierbraillon/tootmix/internal/mastodon"
	"github.com/gauthierbraillon/tootmix/pkg/browser"
	"github.com/gauthierbraillon/tootmix/pkg/credentials"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveVersion prefers the ldflags version and falls back to the module
// version recorded by go install.
func resolveVersion(v string, bi *debug.BuildInfo) string {
	if v != "dev" && v != "" {
		return v
	}
	if bi == nil || bi.Main.Version == "" || bi.Main.Version == "(devel)" {
		return "dev"
	}
	return bi.Main.Version
}

func currentVersion() string {
	bi, _ := debug.ReadBuildInfo()
	return resolveVersion(version, bi)
}

// app carries state shared by the subcommands.
type app struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

// newRootCmd creates the root command for tootmix CLI.
func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:     "tootmix",
		Short:   "Unified Mastodon timeline in your terminal",
		Long:    "Tootmix merges your home and local Mastodon timelines into one live view.",
		Version: currentVersion(),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			if a.logLevel != "" {
				cfg.Logging.Level = a.logLevel
			}
			if err := logging.Setup(cfg.Logging.Level, cfg.Logging.Format, cmd.ErrOrStderr()); err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
		SilenceUsage: true,
	}

	rootCmd.SetVersionTemplate("tootmix version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file (default "+config.DefaultPath()+")")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newAuthCmd(a))
	rootCmd.AddCommand(newTimelineCmd(a))
	rootCmd.AddCommand(newStreamCmd(a))
	rootCmd.AddCommand(newAccountCmd(a))
	rootCmd.AddCommand(newConfigCmd(a))

	return rootCmd
}

// normalizeHost turns user input such as "https://Mstdn.JP/" into "mstdn.jp".
func normalizeHost(input string) (string, error) {
	host := strings.ToLower(strings.TrimSpace(input))
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	host = strings.TrimSuffix(host, "/")
	if host == "" || strings.ContainsAny(host, "/\\ ?#@") || strings.Contains(host, "..") {
		return "", errors.Errorf("invalid host %q: expected an instance domain such as mastodon.social", input)
	}
	return host, nil
}

// newClient creates a REST client, honouring the API URL override.
func (a *app) newClient(host, token string) *mastodon.Client {
	opts := []mastodon.ClientOption{}
	if a.cfg.APIURL != "" {
		opts = append(opts, mastodon.WithBaseURL(a.cfg.APIURL))
	}
	return mastodon.NewClient(host, token, opts...)
}

func (a *app) store() *credentials.Store {
	return credentials.NewStore(config.Dir())
}

// session is an authenticated instance.
type session struct {
	host   string
	token  string
	selfID mastodon.ID
	client *mastodon.Client
}

// openSession resolves the instance and token from the environment or the
// credentials store. A single stored account is used when no instance is
// configured.
func (a *app) openSession(ctx context.Context) (*session, error) {
	host := a.cfg.Instance
	token := a.cfg.Token
	var selfID mastodon.ID

	if token == "" {
		account, err := a.storedAccount(host)
		if err != nil {
			return nil, err
		}
		host = account.Instance
		token = account.AccessToken
		selfID = account.Account.ID
	}
	if host == "" {
		return nil, errors.Errorf("no instance configured (set %s or run 'tootmix auth <host>')", config.EnvInstance)
	}

	s := &session{host: host, token: token, selfID: selfID, client: a.newClient(host, token)}
	if s.selfID == "" {
		if me, err := s.client.CurrentUser(ctx); err == nil {
			s.selfID = me.ID
		}
	}
	return s, nil
}

func (a *app) storedAccount(host string) (*credentials.InstanceAccount, error) {
	store := a.store()
	if host != "" {
		account, err := store.Load(host)
		if errors.Is(err, credentials.ErrAccountNotFound) {
			return nil, errors.Errorf("not authenticated with %s (run 'tootmix auth %s')", host, host)
		}
		return account, err
	}

	accounts, err := store.List()
	if err != nil {
		return nil, err
	}
	switch len(accounts) {
	case 0:
		return nil, errors.New("not authenticated (run 'tootmix auth <host>')")
	case 1:
		return &accounts[0], nil
	default:
		return nil, errors.Errorf("several accounts stored; choose one with %s", config.EnvInstance)
	}
}

func (a *app) newEngine(s *session, opts ...engine.Option) *engine.Engine {
	cfg := a.cfg.Engine()
	cfg.Host = s.host
	cfg.Token = s.token
	cfg.SelfID = s.selfID
	return engine.New(cfg, s.client, opts...)
}

// newAuthCmd creates the auth subcommand.
func newAuthCmd(a *app) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "auth <host>",
		Short: "Sign in to a Mastodon instance",
		Long: "Store an access token for a Mastodon instance. Without --token the\n" +
			"instance's application settings page is opened and the token is read from stdin.",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errors.New("requires exactly one instance host argument")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			host, err := normalizeHost(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if token == "" {
				settingsURL := browser.ApplicationSettingsURL(host)
				fmt.Fprintf(out, "Create an application with the read scope at:\n%s\n", settingsURL)
				if err := browser.Open(settingsURL); err != nil {
					fmt.Fprintf(out, "Could not open browser, please visit the page above.\n")
				}
				fmt.Fprint(out, "Paste the access token: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return errors.Wrap(err, "read token")
				}
				token = strings.TrimSpace(line)
			}
			if token == "" {
				return errors.New("no access token given")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			account, err := a.newClient(host, token).CurrentUser(ctx)
			if err != nil {
				return errors.Wrap(err, "verify token")
			}

			err = a.store().Save(credentials.InstanceAccount{
				Instance:    host,
				Account:     *account,
				AccessToken: token,
			})
			if err != nil {
				return errors.Wrap(err, "save credentials")
			}

			fmt.Fprintf(out, "Signed in to %s as @%s\n", host, account.Acct)
			fmt.Fprintf(out, "Credentials saved to: %s\n", config.Dir())
			return nil
		},
	}

	cmd.Flags().StringVarP(&token, "token", "t", "", "Access token (skips the browser)")

	return cmd
}

// newTimelineCmd creates the timeline subcommand.
func newTimelineCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Display the unified timeline once",
		Long:  "Fetch the latest home and local toots, merge them and print the result.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			s, err := a.openSession(ctx)
			if err != nil {
				return err
			}
			eng := a.newEngine(s)
			defer eng.Stop()

			if err := eng.Fetch(ctx); err != nil {
				return errors.Wrap(err, "fetch timeline")
			}
			events, err := eng.Snapshot(ctx)
			if err != nil {
				return err
			}
			if limit > 0 && len(events) > limit {
				events = events[:limit]
			}

			fmt.Fprint(cmd.OutOrStdout(), display.NewTerminalFormatter().FormatTimeline(events))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Maximum number of toots to display")

	return cmd
}

// newAccountCmd creates the account subcommand.
func newAccountCmd(a *app) *cobra.Command {
	var pinned bool

	cmd := &cobra.Command{
		Use:   "account <id|me>",
		Short: "Display an account's toots",
		Long:  "Display an account's latest toots. With --pinned, pinned toots come first when the instance supports them.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			s, err := a.openSession(ctx)
			if err != nil {
				return err
			}
			accountID := mastodon.ID(args[0])
			if args[0] == "me" {
				if s.selfID == "" {
					return errors.New("could not determine the signed-in account")
				}
				accountID = s.selfID
			}

			eng := a.newEngine(s)
			defer eng.Stop()

			statuses, err := eng.AccountStatuses(ctx, accountID, pinned)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), display.NewTerminalFormatter().FormatStatuses(statuses))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&pinned, "pinned", "p", false, "Show pinned toots first")

	return cmd
}

// newConfigCmd creates the config subcommand.
func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show configuration",
		Long:  "Show the tootmix configuration directory, effective settings and stored accounts.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cfg := a.cfg
			path := a.configPath
			if path == "" {
				path = config.DefaultPath()
			}

			fmt.Fprintf(out, "Config directory: %s\n", config.Dir())
			fmt.Fprintf(out, "Config file: %s\n", path)
			fmt.Fprintf(out, "Instance: %s\n", valueOr(cfg.Instance, "(not set)"))
			fmt.Fprintf(out, "Retention: %d, trimmed to %d\n", cfg.Timeline.RetentionCap, cfg.Timeline.RetentionFloor)
			fmt.Fprintf(out, "Page limit: %d\n", cfg.Timeline.PageLimit)
			fmt.Fprintf(out, "Pinned limit: %d\n", cfg.Timeline.PinnedLimit)
			fmt.Fprintf(out, "Log level: %s\n", cfg.Logging.Level)

			rewrites := cfg.HostRewrites()
			hosts := make([]string, 0, len(rewrites))
			for host := range rewrites {
				hosts = append(hosts, host)
			}
			sort.Strings(hosts)
			for _, host := range hosts {
				fmt.Fprintf(out, "Stream host: %s -> %s%s\n", host, rewrites[host], host)
			}

			accounts, err := a.store().List()
			if err != nil {
				return err
			}
			for _, account := range accounts {
				fmt.Fprintf(out, "Account: @%s@%s\n", account.Account.Acct, account.Instance)
			}
			return nil
		},
	}

	return cmd
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
