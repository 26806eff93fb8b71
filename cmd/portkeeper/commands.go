package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loykin/portkeeper/pkg/client"
)

func newClient(flags *APIFlags) *client.Client {
	cfg := client.DefaultConfig()
	if flags.APIUrl != "" {
		cfg.BaseURL = flags.APIUrl
	}
	if flags.APITimeout > 0 {
		cfg.Timeout = flags.APITimeout
	}
	return client.New(cfg)
}

func createStartCommand(flags *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the managed service",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient(flags).Start(context.Background()); err != nil {
				return err
			}
			fmt.Println("start requested; follow progress with 'portkeeper events'")
			return nil
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

func createStopCommand(flags *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the managed service",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient(flags).Stop(context.Background()); err != nil {
				return err
			}
			fmt.Println("stop requested")
			return nil
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

func createRestartCommand(flags *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the managed service",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient(flags).Restart(context.Background()); err != nil {
				return err
			}
			fmt.Println("restart requested")
			return nil
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

func createStatusCommand(flags *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the managed service status",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := newClient(flags).Status(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("status:  %s\n", st.Status)
			if st.PID != 0 {
				fmt.Printf("pid:     %d", st.PID)
				if st.Adopted {
					fmt.Printf(" (adopted)")
				}
				fmt.Println()
			}
			fmt.Printf("url:     %s\n", st.URL)
			if st.PortBlocked {
				fmt.Println("warning: port is blocked by a foreign process; run 'portkeeper resolve-port'")
			}
			if st.LastErr != "" {
				fmt.Printf("error:   %s\n", st.LastErr)
			}
			return nil
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

func createRefreshCommand(flags *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Re-run adoption detection",
		Long: `Refresh re-reads the persisted PID record and the live process table,
re-adopting a running service or cleaning up a stale record.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient(flags).Refresh(context.Background()); err != nil {
				return err
			}
			fmt.Println("refresh requested")
			return nil
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

func createResolvePortCommand(flags *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve-port",
		Short: "Kill the process tree blocking the service port",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient(flags).ResolvePortConflict(context.Background()); err != nil {
				return err
			}
			fmt.Println("port conflict resolution requested")
			return nil
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

func createEventsCommand(flags *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent supervisor events",
		RunE: func(cmd *cobra.Command, args []string) error {
			evs, err := newClient(flags).Events(context.Background())
			if err != nil {
				return err
			}
			for _, e := range evs {
				if e.Kind == "log" {
					fmt.Printf("%s  %s\n", e.At.Format("15:04:05"), e.Text)
				} else {
					fmt.Printf("%s  [%s] %s\n", e.At.Format("15:04:05"), e.Kind, e.Text)
				}
			}
			return nil
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}
