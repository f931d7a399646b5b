// Command skiff is a terminal file manager for remote hosts over SSH: browse,
// transfer and edit files, run commands and drop into a detachable shell, all
// over a single authenticated session.
package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/skiff-ssh/skiff/internal/config"
	"github.com/skiff-ssh/skiff/internal/remote"
	"github.com/skiff-ssh/skiff/internal/store"
	"github.com/skiff-ssh/skiff/internal/ui"
)

var (
	flagIdentity string
	flagPort     int
	flagSave     string
)

func main() {
	root := &cobra.Command{
		Use:   "skiff [destination]",
		Short: "Remote file manager over SSH",
		Long: "skiff connects to [user@]host[:port] (or a saved connection name) with\n" +
			"public-key authentication and opens a file browser backed by SFTP.\n" +
			"From there: edit files in place, run one-shot commands, or toggle an\n" +
			"interactive shell with Ctrl+S.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0])
		},
		SilenceUsage: true,
	}
	root.Flags().StringVarP(&flagIdentity, "identity", "i", "", "private key file (default ~/.ssh/id_rsa)")
	root.Flags().IntVarP(&flagPort, "port", "p", 0, "port to connect to (default 22)")
	root.Flags().StringVar(&flagSave, "save", "", "save this destination under a name before connecting")

	hosts := &cobra.Command{
		Use:   "hosts",
		Short: "Manage saved connections",
	}
	hosts.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved connections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return hostsList(cmd)
		},
	})
	hosts.AddCommand(&cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a saved connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open()
			if err != nil {
				return err
			}
			return st.RemoveConnection(args[0])
		},
	})
	root.AddCommand(hosts)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func hostsList(cmd *cobra.Command) error {
	st, err := store.Open()
	if err != nil {
		return err
	}
	conns, err := st.Connections()
	if err != nil {
		return err
	}
	if len(conns) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no saved connections")
		return nil
	}
	for _, c := range conns {
		key := c.IdentityFile
		if key == "" {
			key = "~/.ssh/id_rsa"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-20s %s@%s:%d  (%s)\n", c.Name, c.User, c.Host, c.Port, key)
	}
	return nil
}

// resolveParams turns the destination argument into connection parameters. A
// saved connection name wins over destination syntax; flags override both.
func resolveParams(st *store.Store, cfg *config.Config, dest string) (remote.Params, error) {
	var params remote.Params
	if saved, err := st.LookupConnection(dest); err == nil {
		params = remote.Params{
			Host:         saved.Host,
			Port:         saved.Port,
			User:         saved.User,
			IdentityFile: saved.IdentityFile,
		}
	} else {
		params, err = remote.ParseDestination(dest)
		if err != nil {
			return remote.Params{}, err
		}
	}
	if flagPort != 0 {
		params.Port = flagPort
	}
	if flagIdentity != "" {
		params.IdentityFile = flagIdentity
	}
	if params.IdentityFile == "" {
		params.IdentityFile = cfg.IdentityFile
	}
	params.IdleTimeout = cfg.IdleTimeout
	return params, nil
}

func run(ctx context.Context, dest string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, closeLog, err := cfg.Logger()
	if err != nil {
		return err
	}
	defer closeLog()

	st, err := store.Open()
	if err != nil {
		return err
	}
	params, err := resolveParams(st, cfg, dest)
	if err != nil {
		return err
	}
	if flagSave != "" {
		err := st.SaveConnection(store.SavedConnection{
			Name:         flagSave,
			Host:         params.Host,
			Port:         params.Port,
			User:         params.User,
			IdentityFile: params.IdentityFile,
		})
		if err != nil {
			return err
		}
	}

	logger.Info().Str("host", params.Host).Int("port", params.Port).Str("user", params.User).Msg("connecting")
	sess, err := remote.Connect(ctx, params)
	if err != nil {
		return err
	}
	defer sess.Close()

	files, err := sess.OpenFileTransfer()
	if err != nil {
		return err
	}
	defer files.Close()

	startDir, startIndex := "/", 0
	if snap, ok, err := st.SessionState(params.User, params.Host, params.Port); err == nil && ok {
		startDir, startIndex = snap.CurrentDir, snap.SelectedIndex
	} else if err != nil {
		logger.Warn().Err(err).Msg("session snapshot unreadable, starting at /")
	}

	model := ui.New(sess, files, st, logger, startDir, startIndex).WithDetachByte(cfg.DetachByte)
	program := tea.NewProgram(model, tea.WithAltScreen())
	final, err := program.Run()
	if err != nil {
		return err
	}
	if m, ok := final.(ui.Model); ok {
		if ferr := m.FatalErr(); ferr != nil {
			logger.Error().Err(ferr).Msg("session ended")
			return ferr
		}
	}
	logger.Info().Msg("bye")
	return nil
}
