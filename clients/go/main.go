// Dobro CLI - command line client for the Dobro chat API
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ChannovDenis/dobro20-sub000/clients/go/dobro"
	"github.com/ChannovDenis/dobro20-sub000/internal/models"
)

var (
	baseURL   string
	configDir string
)

func main() {
	root := &cobra.Command{
		Use:           "dobro",
		Short:         "Dobro CLI - talk to the Dobro assistant from a terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `Environment:
  DOBRO_URL      Server URL (default: ` + dobro.DefaultURL + `)
  DOBRO_CONFIG   Config directory (default: ~/.dobro)
  DOBRO_TOKEN    Bearer token of a signed-in user (optional)`,
	}
	root.PersistentFlags().StringVar(&baseURL, "url", os.Getenv("DOBRO_URL"), "server URL")
	root.PersistentFlags().StringVar(&configDir, "config", os.Getenv("DOBRO_CONFIG"), "config directory")

	root.AddCommand(healthCmd(), sessionCmd(), tenantCmd(), topicsCmd(), chatCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func resolveConfigDir() string {
	if configDir != "" {
		return configDir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".dobro")
}

// newClient builds a client carrying the saved session, tenant and token.
func newClient() (*dobro.Client, error) {
	dir := resolveConfigDir()
	sid, err := dobro.LoadOrCreateSessionID(dir)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	opts := []dobro.Option{dobro.WithSession(sid)}
	if slug := dobro.LoadTenant(dir); slug != "" {
		opts = append(opts, dobro.WithTenant(slug))
	}
	if tok := os.Getenv("DOBRO_TOKEN"); tok != "" {
		opts = append(opts, dobro.WithToken(tok))
	}
	return dobro.NewClient(baseURL, opts...), nil
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := dobro.NewClient(baseURL).Health(cmd.Context())
			if err != nil {
				return err
			}
			printJSON(resp)
			return nil
		},
	}
}

func sessionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "session",
		Short: "Print the anonymous session identifier",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sid, err := dobro.LoadOrCreateSessionID(resolveConfigDir())
			if err != nil {
				return err
			}
			fmt.Println(sid)
			return nil
		},
	}
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Show or select the tenant",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the current tenant's branding",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			resp, err := c.GetTenant(cmd.Context())
			if err != nil {
				return err
			}
			printJSON(resp.Tenant)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "use <slug>",
		Short: "Select a tenant for later commands",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			t, err := c.GetTenantBySlug(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := dobro.SaveTenant(resolveConfigDir(), t.Slug); err != nil {
				return err
			}
			fmt.Printf("Using tenant %s (%s)\n", t.Slug, t.Name)
			return nil
		},
	})
	return cmd
}

func topicsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topics",
		Short: "Manage conversation topics",
	}

	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List topics, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			resp, err := c.ListTopics(cmd.Context(), models.TopicStatus(status), 50)
			if err != nil {
				return err
			}
			for _, t := range resp.Topics {
				service := ""
				if t.ServiceType != "" {
					service = " [" + t.ServiceType + "]"
				}
				fmt.Printf("  %s  %-9s %s%s\n", t.ID, t.Status, t.Title, service)
			}
			return nil
		},
	}
	list.Flags().StringVar(&status, "status", "", "filter by status (active, archived, escalated)")

	var service string
	create := &cobra.Command{
		Use:   "new <title>",
		Short: "Create a topic",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			t, err := c.CreateTopic(cmd.Context(), dobro.CreateTopicRequest{
				Title:       strings.Join(args, " "),
				ServiceType: service,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Created: %s\n", t.ID)
			return nil
		},
	}
	create.Flags().StringVar(&service, "service", "", "expert service type")

	rename := &cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Rename a topic",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, id, err := clientAndTopic(args[0])
			if err != nil {
				return err
			}
			t, err := c.RenameTopic(cmd.Context(), id, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fmt.Printf("Renamed: %s\n", t.Title)
			return nil
		},
	}

	cmd.AddCommand(list, create, rename,
		statusCmd("archive", "Archive a topic", models.TopicArchived),
		statusCmd("restore", "Restore an archived topic", models.TopicActive),
		statusCmd("escalate", "Hand a topic to a human expert", models.TopicEscalated),
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete a topic and its messages",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, id, err := clientAndTopic(args[0])
				if err != nil {
					return err
				}
				if err := c.DeleteTopic(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Println("Deleted")
				return nil
			},
		},
	)
	return cmd
}

func statusCmd(use, short string, status models.TopicStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, id, err := clientAndTopic(args[0])
			if err != nil {
				return err
			}
			t, err := c.SetTopicStatus(cmd.Context(), id, status)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %s\n", t.ID, t.Status)
			return nil
		},
	}
}

func clientAndTopic(raw string) (*dobro.Client, uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("invalid topic ID %q", raw)
	}
	c, err := newClient()
	return c, id, err
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
