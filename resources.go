package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/widgetctl/internal/admin"
	"github.com/tonimelisma/widgetctl/internal/tokenstore"
)

// resourceSpec describes how one admin collection is exposed on the CLI.
type resourceSpec[T any] struct {
	use     string
	aliases []string
	short   string
	pick    func(*admin.Service) *admin.Resource[T]
	headers []string
	row     func(T) []string
}

// newResourceCmds returns one command group per admin collection.
func newResourceCmds() []*cobra.Command {
	users := newResourceCmd(resourceSpec[admin.User]{
		use:     "users",
		aliases: []string{"user"},
		short:   "Manage admin users",
		pick:    func(s *admin.Service) *admin.Resource[admin.User] { return s.Users },
		headers: []string{"ID", "EMAIL", "NAME", "ROLES", "ACTIVE", "CREATED"},
		row: func(u admin.User) []string {
			return []string{u.ID, u.Email, u.Name, strings.Join(u.Roles, ","), yesNo(u.Active), formatTime(u.CreatedAt)}
		},
	})

	roles := newResourceCmd(resourceSpec[admin.Role]{
		use:     "roles",
		aliases: []string{"role"},
		short:   "Manage roles",
		pick:    func(s *admin.Service) *admin.Resource[admin.Role] { return s.Roles.Resource },
		headers: []string{"ID", "NAME", "PERMISSIONS", "DESCRIPTION"},
		row: func(r admin.Role) []string {
			return []string{r.ID, r.Name, strings.Join(r.Permissions, ","), r.Description}
		},
	})
	roles.AddCommand(newSetPermissionsCmd())

	permissions := newResourceCmd(resourceSpec[admin.Permission]{
		use:     "permissions",
		aliases: []string{"perms"},
		short:   "Manage permissions",
		pick:    func(s *admin.Service) *admin.Resource[admin.Permission] { return s.Permissions },
		headers: []string{"ID", "NAME", "DESCRIPTION"},
		row: func(p admin.Permission) []string {
			return []string{p.ID, p.Name, p.Description}
		},
	})

	chats := newResourceCmd(resourceSpec[admin.Chat]{
		use:     "chats",
		aliases: []string{"chat"},
		short:   "Manage visitor chats",
		pick:    func(s *admin.Service) *admin.Resource[admin.Chat] { return s.Chats.Resource },
		headers: []string{"ID", "WIDGET", "STATUS", "TITLE", "UPDATED"},
		row: func(c admin.Chat) []string {
			return []string{c.ID, c.WidgetID, c.Status, c.Title, formatTime(c.UpdatedAt)}
		},
	})
	chats.AddCommand(newChatMessagesCmd(), newChatSendCmd())

	models := newResourceCmd(resourceSpec[admin.AIModel]{
		use:     "models",
		aliases: []string{"model", "ai-models"},
		short:   "Manage AI model configurations",
		pick:    func(s *admin.Service) *admin.Resource[admin.AIModel] { return s.AIModels },
		headers: []string{"ID", "NAME", "PROVIDER", "ACTIVE"},
		row: func(m admin.AIModel) []string {
			return []string{m.ID, m.Name, m.Provider, yesNo(m.Active)}
		},
	})

	widgets := newResourceCmd(resourceSpec[admin.Widget]{
		use:     "widgets",
		aliases: []string{"widget"},
		short:   "Manage chat widgets",
		pick:    func(s *admin.Service) *admin.Resource[admin.Widget] { return s.Widgets },
		headers: []string{"ID", "NAME", "MODEL", "ACTIVE", "CREATED"},
		row: func(w admin.Widget) []string {
			return []string{w.ID, w.Name, w.ModelID, yesNo(w.Active), formatTime(w.CreatedAt)}
		},
	})

	notifications := newResourceCmd(resourceSpec[admin.Notification]{
		use:     "notifications",
		aliases: []string{"notification", "notif"},
		short:   "List and follow notifications",
		pick:    func(s *admin.Service) *admin.Resource[admin.Notification] { return s.Notifications.Resource },
		headers: notificationHeaders,
		row:     notificationRow,
	})
	notifications.AddCommand(newNotificationReadCmd(), newNotificationWatchCmd())

	return []*cobra.Command{users, roles, permissions, chats, models, widgets, notifications}
}

// newResourceCmd builds the list/get/create/update/delete group for spec.
func newResourceCmd[T any](spec resourceSpec[T]) *cobra.Command {
	cmd := &cobra.Command{
		Use:     spec.use,
		Aliases: spec.aliases,
		Short:   spec.short,
	}

	cmd.AddCommand(
		newListCmd(spec),
		newGetCmd(spec),
		newCreateCmd(spec),
		newUpdateCmd(spec),
		newDeleteCmd(spec),
	)

	return cmd
}

func newListCmd[T any](spec resourceSpec[T]) *cobra.Command {
	var opts admin.ListOptions

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List " + spec.use,
		Args:    cobra.NoArgs,
		RunE: runWithSession(func(cmd *cobra.Command, _ []string, cc *CLIContext, s *session) error {
			items, err := spec.pick(s.svc).List(cmd.Context(), opts)
			if err != nil {
				return err
			}

			if items == nil {
				items = []T{}
			}

			rows := make([][]string, 0, len(items))
			for _, it := range items {
				rows = append(rows, spec.row(it))
			}

			return cc.render(items, spec.headers, rows)
		}),
	}

	cmd.Flags().IntVar(&opts.Page, "page", 0, "page number (1-based)")
	cmd.Flags().IntVar(&opts.PerPage, "per-page", 0, "items per page")
	cmd.Flags().StringVar(&opts.Search, "search", "", "free-text filter")

	return cmd
}

func newGetCmd[T any](spec resourceSpec[T]) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one of " + spec.use,
		Args:  cobra.ExactArgs(1),
		RunE: runWithSession(func(cmd *cobra.Command, args []string, cc *CLIContext, s *session) error {
			item, err := spec.pick(s.svc).Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return cc.render(item, spec.headers, [][]string{spec.row(item)})
		}),
	}
}

func newCreateCmd[T any](spec resourceSpec[T]) *cobra.Command {
	var data string

	cmd := &cobra.Command{
		Use:   "create --data <json>",
		Short: "Create one of " + spec.use,
		Args:  cobra.NoArgs,
		RunE: runWithSession(func(cmd *cobra.Command, _ []string, cc *CLIContext, s *session) error {
			body, err := jsonObject(data)
			if err != nil {
				return err
			}

			item, err := spec.pick(s.svc).Create(cmd.Context(), body)
			if err != nil {
				return err
			}

			return cc.render(item, spec.headers, [][]string{spec.row(item)})
		}),
	}

	cmd.Flags().StringVar(&data, "data", "", "JSON object with the fields to set")
	_ = cmd.MarkFlagRequired("data")

	return cmd
}

func newUpdateCmd[T any](spec resourceSpec[T]) *cobra.Command {
	var data string

	cmd := &cobra.Command{
		Use:   "update <id> --data <json>",
		Short: "Patch one of " + spec.use,
		Args:  cobra.ExactArgs(1),
		RunE: runWithSession(func(cmd *cobra.Command, args []string, cc *CLIContext, s *session) error {
			patch, err := jsonObject(data)
			if err != nil {
				return err
			}

			item, err := spec.pick(s.svc).Update(cmd.Context(), args[0], patch)
			if err != nil {
				return err
			}

			return cc.render(item, spec.headers, [][]string{spec.row(item)})
		}),
	}

	cmd.Flags().StringVar(&data, "data", "", "JSON object with the fields to change")
	_ = cmd.MarkFlagRequired("data")

	return cmd
}

func newDeleteCmd[T any](spec resourceSpec[T]) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete one of " + spec.use,
		Args:    cobra.ExactArgs(1),
		RunE: runWithSession(func(cmd *cobra.Command, args []string, cc *CLIContext, s *session) error {
			if err := spec.pick(s.svc).Delete(cmd.Context(), args[0]); err != nil {
				return err
			}

			cc.Statusf("Deleted %s %s.\n", strings.TrimSuffix(spec.use, "s"), args[0])

			return nil
		}),
	}
}

// jsonObject validates that s is a JSON object and returns it unparsed.
func jsonObject(s string) (json.RawMessage, error) {
	var probe map[string]any
	if err := json.Unmarshal([]byte(s), &probe); err != nil {
		return nil, fmt.Errorf("--data must be a JSON object: %w", err)
	}

	return json.RawMessage(s), nil
}

func newSetPermissionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-permissions <role-id> [permission-id...]",
		Short: "Replace the permissions of a role",
		Long:  "Replace the permissions of a role. Passing no permission IDs removes all of them.",
		Args:  cobra.MinimumNArgs(1),
		RunE: runWithSession(func(cmd *cobra.Command, args []string, cc *CLIContext, s *session) error {
			role, err := s.svc.Roles.SetPermissions(cmd.Context(), args[0], args[1:])
			if err != nil {
				return err
			}

			return cc.render(role, []string{"ID", "NAME", "PERMISSIONS"},
				[][]string{{role.ID, role.Name, strings.Join(role.Permissions, ",")}})
		}),
	}
}

func newChatMessagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "messages <chat-id>",
		Short: "Show the transcript of a chat",
		Args:  cobra.ExactArgs(1),
		RunE: runWithSession(func(cmd *cobra.Command, args []string, cc *CLIContext, s *session) error {
			msgs, err := s.svc.Chats.Messages(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if msgs == nil {
				msgs = []admin.Message{}
			}

			rows := make([][]string, 0, len(msgs))
			for _, m := range msgs {
				rows = append(rows, []string{formatTime(m.CreatedAt), m.Role, m.Content})
			}

			return cc.render(msgs, []string{"TIME", "FROM", "MESSAGE"}, rows)
		}),
	}
}

func newChatSendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <chat-id> <text...>",
		Short: "Post an agent message into a chat",
		Args:  cobra.MinimumNArgs(2),
		RunE: runWithSession(func(cmd *cobra.Command, args []string, cc *CLIContext, s *session) error {
			msg, err := s.svc.Chats.SendMessage(cmd.Context(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}

			if cc.Flags.Output != outputTable {
				return cc.render(msg, nil, nil)
			}

			cc.Statusf("Sent message %s.\n", msg.ID)

			return nil
		}),
	}
}

var notificationHeaders = []string{"ID", "TYPE", "READ", "TIME", "TITLE"}

func notificationRow(n admin.Notification) []string {
	return []string{n.ID, n.Type, yesNo(n.Read), formatTime(n.CreatedAt), n.Title}
}

func newNotificationReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <id>",
		Short: "Mark a notification as read",
		Args:  cobra.ExactArgs(1),
		RunE: runWithSession(func(cmd *cobra.Command, args []string, cc *CLIContext, s *session) error {
			n, err := s.svc.Notifications.MarkRead(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return cc.render(n, notificationHeaders, [][]string{notificationRow(n)})
		}),
	}
}

func newNotificationWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print notifications as they arrive",
		Long: "Follow the notification stream until interrupted. JSON output " +
			"writes one object per line.",
		Args: cobra.NoArgs,
		RunE: runWithSession(func(cmd *cobra.Command, _ []string, cc *CLIContext, s *session) error {
			ctx := cmd.Context()

			// Pick up a login or logout made by another process while we run.
			if fs, ok := s.store.(*tokenstore.FileStore); ok {
				go watchTokenFile(ctx, fs, cc.Logger)
			}

			cc.Statusf("Watching notifications (Ctrl-C to stop)...\n")

			err := s.svc.Notifications.Watch(ctx, func(n admin.Notification) error {
				if cc.Flags.Output == outputTable {
					_, err := fmt.Fprintln(cc.Out, strings.Join(notificationRow(n), "  "))
					return err
				}

				return cc.render(n, nil, nil)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}

			return err
		}),
	}
}

func watchTokenFile(ctx context.Context, fs *tokenstore.FileStore, logger *slog.Logger) {
	if err := fs.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("token file watcher stopped", slog.String("error", err.Error()))
	}
}
