package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gosuri/uitable"
	serveradapter "github.com/hylla/stamp/internal/adapters/server"
	servercommon "github.com/hylla/stamp/internal/adapters/server/common"
	"github.com/hylla/stamp/internal/adapters/server/live"
	"github.com/hylla/stamp/internal/app"
	"github.com/hylla/stamp/internal/config"
	"github.com/hylla/stamp/internal/domain"
	"github.com/hylla/stamp/internal/platform"
	"github.com/hylla/stamp/internal/timeexpr"
	"github.com/hylla/stamp/internal/tui"
	"github.com/spf13/cobra"
)

// displayLayout is the CLI rendering of instants, in local time.
const displayLayout = "2006-01-02 15:04"

// withRuntime opens the runtime for one command flow and logs its outcome.
func withRuntime(ctx context.Context, opts *rootOptions, stderr io.Writer, command string, fn func(context.Context, *runtimeEnv) error) error {
	env, err := openRuntime(opts, stderr, command)
	if err != nil {
		return err
	}
	defer env.Close()

	env.logger.Debug("command flow start", "command", command)
	if err := fn(ctx, env); err != nil {
		env.logger.Debug("command flow failed", "command", command, "err", err)
		return err
	}
	env.logger.Debug("command flow complete", "command", command)
	return nil
}

// newServeCommand runs the HTTP API, MCP endpoint, and live feed.
func newServeCommand(opts *rootOptions, stderr io.Writer) *cobra.Command {
	var bind string
	cmd := &cobra.Command{
		Use:     "serve",
		GroupID: "admin",
		Short:   "Serve the REST API, the MCP endpoint, and the live change feed",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd.Context(), opts, stderr, "serve", func(ctx context.Context, env *runtimeEnv) error {
				return runServe(ctx, env, bind)
			})
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "override server.http_bind")
	return cmd
}

// runServe wires the live hub and config watcher around the server.
func runServe(ctx context.Context, env *runtimeEnv, bind string) error {
	hub := live.NewHub(env.logger)
	defer hub.Close()
	adapter := servercommon.NewAppServiceAdapter(env.svc,
		servercommon.WithNotifier(hub),
		servercommon.WithLocation(time.Local),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := config.EnsureConfigDir(env.configPath); err != nil {
		env.logger.Warn("config watch disabled", "config_path", env.configPath, "err", err)
	} else {
		go watchConfig(ctx, env)
	}

	cfg := serveradapter.Config{
		HTTPBind:      env.cfg.Server.HTTPBind,
		APIEndpoint:   env.cfg.Server.APIEndpoint,
		MCPEndpoint:   env.cfg.Server.MCPEndpoint,
		LiveEndpoint:  env.cfg.Server.LiveEndpoint,
		ServerName:    "stamp",
		ServerVersion: version,
	}
	if strings.TrimSpace(bind) != "" {
		cfg.HTTPBind = bind
	}
	env.logger.Info("serving", "bind", cfg.HTTPBind, "api", cfg.APIEndpoint, "mcp", cfg.MCPEndpoint, "live", cfg.LiveEndpoint)
	if err := serveCommandRunner(ctx, cfg, serveradapter.Dependencies{
		Service: adapter,
		Live:    hub,
		Logger:  env.logger,
	}); err != nil {
		env.logger.Error("server stopped with error", "err", err)
		return fmt.Errorf("run server: %w", err)
	}
	env.logger.Info("server stopped")
	return nil
}

// watchConfig applies log level and summary settings when the config file changes.
func watchConfig(ctx context.Context, env *runtimeEnv) {
	err := config.Watch(ctx, env.configPath, env.defaults, func(cfg config.Config) {
		if err := env.logger.SetLevel(cfg.Logging.Level); err != nil {
			env.logger.Warn("config reload: keep log level", "err", err)
		}
		svcCfg, err := serviceConfig(cfg)
		if err != nil {
			env.logger.Warn("config reload: keep summary settings", "err", err)
			return
		}
		env.svc.Configure(svcCfg)
		env.logger.Info("config reloaded", "config_path", env.configPath, "log_level", cfg.Logging.Level)
	}, func(err error) {
		env.logger.Warn("config reload failed", "config_path", env.configPath, "err", err)
	})
	if err != nil {
		env.logger.Warn("config watch stopped", "config_path", env.configPath, "err", err)
	}
}

// newPathsCommand prints resolved runtime paths.
func newPathsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "paths",
		GroupID: "admin",
		Short:   "Print the resolved config, data, and log paths",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := platformPaths(opts)
			if err != nil {
				return err
			}
			configPath, dbPath, _ := resolveConfigAndDBPaths(opts, paths)
			tbl := uitable.New()
			tbl.AddRow("app:", opts.appName)
			tbl.AddRow("dev_mode:", opts.devMode)
			tbl.AddRow("config:", configPath)
			tbl.AddRow("data_dir:", paths.DataDir)
			tbl.AddRow("db:", dbPath)
			tbl.AddRow("log_dir:", paths.LogDir)
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tbl)
			return err
		},
	}
}

// newTaskCommand groups the task catalog commands.
func newTaskCommand(opts *rootOptions, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "task",
		GroupID: "catalog",
		Short:   "Manage tasks",
	}

	var addTags []string
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a task; missing tags are created",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), opts, stderr, "task add", func(ctx context.Context, env *runtimeEnv) error {
				ids, err := tagIDsFor(ctx, env.svc, addTags, true)
				if err != nil {
					return err
				}
				task, err := env.svc.CreateTask(ctx, app.CreateTaskInput{Name: strings.Join(args, " "), Tags: ids})
				if err != nil {
					return fmt.Errorf("create task: %w", err)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "created task %d %q\n", task.ID, task.Name)
				return err
			})
		},
	}
	add.Flags().StringSliceVar(&addTags, "tag", nil, "tag names to attach")

	var filter []string
	list := &cobra.Command{
		Use:   "list",
		Short: "List tasks, optionally only those carrying every given tag",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd.Context(), opts, stderr, "task list", func(ctx context.Context, env *runtimeEnv) error {
				ids, err := tagIDsFor(ctx, env.svc, filter, false)
				if err != nil {
					return err
				}
				return printTasks(ctx, cmd.OutOrStdout(), env.svc, ids)
			})
		},
	}
	list.Flags().StringSliceVar(&filter, "tags", nil, "only tasks carrying all of these tags")

	rename := &cobra.Command{
		Use:   "rename <task> <name>",
		Short: "Rename a task",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), opts, stderr, "task rename", func(ctx context.Context, env *runtimeEnv) error {
				task, err := resolveTask(ctx, env.svc, args[0])
				if err != nil {
					return err
				}
				name := strings.Join(args[1:], " ")
				task, err = env.svc.UpdateTask(ctx, app.UpdateTaskInput{ID: task.ID, Name: &name})
				if err != nil {
					return fmt.Errorf("rename task: %w", err)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "renamed task %d to %q\n", task.ID, task.Name)
				return err
			})
		},
	}

	tag := &cobra.Command{
		Use:   "tag <task> [tag...]",
		Short: "Replace a task's tags; no tags clears them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), opts, stderr, "task tag", func(ctx context.Context, env *runtimeEnv) error {
				task, err := resolveTask(ctx, env.svc, args[0])
				if err != nil {
					return err
				}
				ids, err := tagIDsFor(ctx, env.svc, args[1:], true)
				if err != nil {
					return err
				}
				if _, err := env.svc.UpdateTask(ctx, app.UpdateTaskInput{ID: task.ID, Tags: &ids}); err != nil {
					return fmt.Errorf("tag task: %w", err)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "task %d now has %d tags\n", task.ID, len(ids))
				return err
			})
		},
	}

	rm := &cobra.Command{
		Use:   "rm <task>",
		Short: "Delete a task and every event it owns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), opts, stderr, "task rm", func(ctx context.Context, env *runtimeEnv) error {
				task, err := resolveTask(ctx, env.svc, args[0])
				if err != nil {
					return err
				}
				if err := env.svc.DeleteTask(ctx, task.ID); err != nil {
					return fmt.Errorf("delete task: %w", err)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted task %d %q\n", task.ID, task.Name)
				return err
			})
		},
	}

	cmd.AddCommand(add, list, rename, tag, rm)
	return cmd
}

// printTasks renders the task table with running markers.
func printTasks(ctx context.Context, out io.Writer, svc *app.Service, filter []domain.TagID) error {
	tasks, err := svc.ListTasks(ctx, app.ListTasksInput{Tags: filter})
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	tags, err := svc.ListTags(ctx)
	if err != nil {
		return fmt.Errorf("list tags: %w", err)
	}
	running, err := svc.RunningTimers(ctx)
	if err != nil {
		return fmt.Errorf("running timers: %w", err)
	}
	names := make(map[domain.TagID]string, len(tags))
	for _, tag := range tags {
		names[tag.ID] = tag.Name
	}

	tbl := uitable.New()
	tbl.MaxColWidth = 60
	tbl.AddRow("ID", "NAME", "TAGS", "RUNNING SINCE")
	for _, task := range tasks {
		labels := make([]string, 0, len(task.Tags))
		for _, id := range task.Tags {
			labels = append(labels, names[id])
		}
		since := ""
		if started, ok := running[task.ID]; ok {
			since = started.In(time.Local).Format(displayLayout)
		}
		tbl.AddRow(task.ID, task.Name, strings.Join(labels, ","), since)
	}
	_, err = fmt.Fprintln(out, tbl)
	return err
}

// newTagCommand groups the tag catalog commands.
func newTagCommand(opts *rootOptions, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tag",
		GroupID: "catalog",
		Short:   "Manage tags",
	}
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), opts, stderr, "tag add", func(ctx context.Context, env *runtimeEnv) error {
				tag, err := env.svc.CreateTag(ctx, args[0])
				if err != nil {
					return fmt.Errorf("create tag: %w", err)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "created tag %d %q\n", tag.ID, tag.Name)
				return err
			})
		},
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List tags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd.Context(), opts, stderr, "tag list", func(ctx context.Context, env *runtimeEnv) error {
				tags, err := env.svc.ListTags(ctx)
				if err != nil {
					return fmt.Errorf("list tags: %w", err)
				}
				tbl := uitable.New()
				tbl.AddRow("ID", "NAME")
				for _, tag := range tags {
					tbl.AddRow(tag.ID, tag.Name)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), tbl)
				return err
			})
		},
	}
	rename := &cobra.Command{
		Use:   "rename <tag> <name>",
		Short: "Rename a tag",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), opts, stderr, "tag rename", func(ctx context.Context, env *runtimeEnv) error {
				tag, err := resolveTag(ctx, env.svc, args[0])
				if err != nil {
					return err
				}
				tag, err = env.svc.RenameTag(ctx, tag.ID, args[1])
				if err != nil {
					return fmt.Errorf("rename tag: %w", err)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "renamed tag %d to %q\n", tag.ID, tag.Name)
				return err
			})
		},
	}
	rm := &cobra.Command{
		Use:   "rm <tag>",
		Short: "Delete a tag and detach it from every task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), opts, stderr, "tag rm", func(ctx context.Context, env *runtimeEnv) error {
				tag, err := resolveTag(ctx, env.svc, args[0])
				if err != nil {
					return err
				}
				if err := env.svc.DeleteTag(ctx, tag.ID); err != nil {
					return fmt.Errorf("delete tag: %w", err)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted tag %d %q\n", tag.ID, tag.Name)
				return err
			})
		},
	}
	cmd.AddCommand(add, list, rename, rm)
	return cmd
}

// newTimerCommand builds the start or stop command.
func newTimerCommand(opts *rootOptions, stderr io.Writer, action string) *cobra.Command {
	return &cobra.Command{
		Use:     action + " <task>",
		GroupID: "track",
		Short:   strings.ToUpper(action[:1]) + action[1:] + " the timer of a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), opts, stderr, action, func(ctx context.Context, env *runtimeEnv) error {
				task, err := resolveTask(ctx, env.svc, args[0])
				if err != nil {
					return err
				}
				toggle := env.svc.StartTimer
				if action == "stop" {
					toggle = env.svc.StopTimer
				}
				ev, err := toggle(ctx, task.ID)
				if err != nil {
					return fmt.Errorf("%s timer: %w", action, err)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %q at %s\n", ev.Type, task.Name, ev.Timestamp.In(time.Local).Format(displayLayout))
				return err
			})
		},
	}
}

// windowFlags holds the shared --from/--to flags.
type windowFlags struct {
	from string
	to   string
}

// register adds the flags to cmd.
func (w *windowFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&w.from, "from", "", "window start (date, datetime, or phrase like \"last monday\")")
	cmd.Flags().StringVar(&w.to, "to", "", "window end")
}

// resolve parses the flags against the service's default window.
func (w windowFlags) resolve(svc *app.Service) (domain.Window, error) {
	window, err := timeexpr.Window(w.from, w.to, svc.Now().In(time.Local), svc.DefaultWindow())
	if err != nil {
		return domain.Window{}, fmt.Errorf("resolve window: %w", err)
	}
	return window, nil
}

// newIntervalsCommand prints a task's rebuilt intervals.
func newIntervalsCommand(opts *rootOptions, stderr io.Writer) *cobra.Command {
	var window windowFlags
	cmd := &cobra.Command{
		Use:     "intervals <task>",
		GroupID: "track",
		Short:   "Show the intervals rebuilt from a task's events",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), opts, stderr, "intervals", func(ctx context.Context, env *runtimeEnv) error {
				task, err := resolveTask(ctx, env.svc, args[0])
				if err != nil {
					return err
				}
				w, err := window.resolve(env.svc)
				if err != nil {
					return err
				}
				intervals, err := env.svc.ListIntervals(ctx, task.ID, w)
				if err != nil {
					return fmt.Errorf("list intervals: %w", err)
				}
				now := env.svc.Now()
				tbl := uitable.New()
				tbl.AddRow("START", "STOP", "DURATION", "EVENTS", "")
				for _, iv := range intervals {
					stop := "running"
					if iv.Stop != nil {
						stop = iv.Stop.In(time.Local).Format(displayLayout)
					}
					marker := ""
					if iv.HasOverlap {
						marker = "overlap"
					}
					tbl.AddRow(
						iv.Start.In(time.Local).Format(displayLayout),
						stop,
						domain.FormatHours(iv.Duration(now).Hours()),
						fmt.Sprintf("%d/%d", iv.StartEventID, iv.StopEventID),
						marker,
					)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), tbl)
				return err
			})
		},
	}
	window.register(cmd)
	return cmd
}

// newSummaryCommand prints per-task and per-tag totals.
func newSummaryCommand(opts *rootOptions, stderr io.Writer) *cobra.Command {
	var (
		window         windowFlags
		markdown       bool
		includeOngoing bool
	)
	cmd := &cobra.Command{
		Use:     "summary",
		GroupID: "track",
		Short:   "Total time per task and per tag over a window",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd.Context(), opts, stderr, "summary", func(ctx context.Context, env *runtimeEnv) error {
				w, err := window.resolve(env.svc)
				if err != nil {
					return err
				}
				policy := env.svc.Config().SummaryPolicy
				if cmd.Flags().Changed("include-ongoing") {
					policy.IncludeOngoing = includeOngoing
				}
				summary, err := env.svc.SummaryWithPolicy(ctx, w, policy)
				if err != nil {
					return fmt.Errorf("summary: %w", err)
				}
				out := cmd.OutOrStdout()
				if markdown {
					_, err = fmt.Fprint(out, tui.SummaryMarkdown(summary, time.Local))
					return err
				}
				tbl := uitable.New()
				tbl.AddRow("TASK", "TIME")
				for _, total := range summary.Tasks {
					tbl.AddRow(total.Name, total.Formatted())
				}
				tbl.AddRow("", "")
				tbl.AddRow("TAG", "TIME")
				for _, total := range summary.Tags {
					tbl.AddRow(total.Name, total.Formatted())
				}
				_, err = fmt.Fprintln(out, tbl)
				return err
			})
		},
	}
	window.register(cmd)
	cmd.Flags().BoolVar(&markdown, "markdown", false, "print markdown tables")
	cmd.Flags().BoolVar(&includeOngoing, "include-ongoing", true, "count running timers up to now")
	return cmd
}

// newEventCommand groups raw event log commands.
func newEventCommand(opts *rootOptions, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "event",
		GroupID: "track",
		Short:   "Inspect and edit the raw start/stop event log",
	}

	var (
		window  windowFlags
		taskRef string
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List events in timestamp order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd.Context(), opts, stderr, "event list", func(ctx context.Context, env *runtimeEnv) error {
				var filter app.EventFilter
				if taskRef != "" {
					task, err := resolveTask(ctx, env.svc, taskRef)
					if err != nil {
						return err
					}
					filter.TaskID = &task.ID
				}
				if window.from != "" || window.to != "" {
					w, err := window.resolve(env.svc)
					if err != nil {
						return err
					}
					filter.From, filter.To = &w.Start, &w.End
				}
				events, err := env.svc.ListEvents(ctx, filter)
				if err != nil {
					return fmt.Errorf("list events: %w", err)
				}
				tbl := uitable.New()
				tbl.AddRow("ID", "TASK", "TIMESTAMP", "TYPE")
				for _, ev := range events {
					tbl.AddRow(ev.ID, ev.Task, ev.Timestamp.In(time.Local).Format(time.DateTime), ev.Type)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), tbl)
				return err
			})
		},
	}
	list.Flags().StringVar(&taskRef, "task", "", "only events of this task (id or name)")
	window.register(list)

	add := &cobra.Command{
		Use:   "add <task> <time> <start|stop>",
		Short: "Append an event",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), opts, stderr, "event add", func(ctx context.Context, env *runtimeEnv) error {
				task, err := resolveTask(ctx, env.svc, args[0])
				if err != nil {
					return err
				}
				at, typ, err := parseEventArgs(env.svc, args[1], args[2])
				if err != nil {
					return err
				}
				ev, err := env.svc.CreateEvent(ctx, app.CreateEventInput{Task: task.ID, Timestamp: at, Type: typ})
				if err != nil {
					return fmt.Errorf("create event: %w", err)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "created event %d\n", ev.ID)
				return err
			})
		},
	}

	set := &cobra.Command{
		Use:   "set <id> <time> <start|stop>",
		Short: "Rewrite an event's timestamp and type",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), opts, stderr, "event set", func(ctx context.Context, env *runtimeEnv) error {
				id, err := parsePositiveID(args[0])
				if err != nil {
					return err
				}
				at, typ, err := parseEventArgs(env.svc, args[1], args[2])
				if err != nil {
					return err
				}
				if _, err := env.svc.UpdateEvent(ctx, app.UpdateEventInput{ID: domain.EventID(id), Timestamp: at, Type: typ}); err != nil {
					return fmt.Errorf("update event: %w", err)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "updated event %d\n", id)
				return err
			})
		},
	}

	rm := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), opts, stderr, "event rm", func(ctx context.Context, env *runtimeEnv) error {
				id, err := parsePositiveID(args[0])
				if err != nil {
					return err
				}
				if err := env.svc.DeleteEvent(ctx, domain.EventID(id)); err != nil {
					return fmt.Errorf("delete event: %w", err)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted event %d\n", id)
				return err
			})
		},
	}

	cmd.AddCommand(list, add, set, rm)
	return cmd
}

// parseEventArgs reads a time expression and an event type.
func parseEventArgs(svc *app.Service, rawTime, rawType string) (time.Time, domain.EventType, error) {
	at, err := timeexpr.Parse(rawTime, svc.Now().In(time.Local), timeexpr.BoundStart)
	if err != nil {
		return time.Time{}, 0, err
	}
	typ, err := domain.ParseEventType(rawType)
	if err != nil {
		return time.Time{}, 0, err
	}
	return at, typ, nil
}

// newExportCommand writes a snapshot.
func newExportCommand(opts *rootOptions, stderr io.Writer) *cobra.Command {
	var (
		outPath string
		format  string
	)
	cmd := &cobra.Command{
		Use:     "export",
		GroupID: "admin",
		Short:   "Export every tag, task, and event as a snapshot",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd.Context(), opts, stderr, "export", func(ctx context.Context, env *runtimeEnv) error {
				snapFormat, err := app.ParseSnapshotFormat(formatFor(format, outPath))
				if err != nil {
					return err
				}
				snap, err := env.svc.ExportSnapshot(ctx)
				if err != nil {
					return fmt.Errorf("export snapshot: %w", err)
				}
				if outPath == "-" {
					return app.EncodeSnapshot(cmd.OutOrStdout(), snap, snapFormat)
				}
				if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
					return fmt.Errorf("create export output dir: %w", err)
				}
				f, err := os.Create(outPath)
				if err != nil {
					return fmt.Errorf("create export file: %w", err)
				}
				if err := app.EncodeSnapshot(f, snap, snapFormat); err != nil {
					_ = f.Close()
					return err
				}
				return f.Close()
			})
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "-", "output file path ('-' for stdout)")
	cmd.Flags().StringVar(&format, "format", "", "json or yaml (default from --out extension, else json)")
	return cmd
}

// newImportCommand reads a snapshot back in, keeping its ids.
func newImportCommand(opts *rootOptions, stderr io.Writer) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:     "import <file>",
		GroupID: "admin",
		Short:   "Import a snapshot, keeping its ids",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), opts, stderr, "import", func(ctx context.Context, env *runtimeEnv) error {
				snapFormat, err := app.ParseSnapshotFormat(formatFor(format, args[0]))
				if err != nil {
					return err
				}
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open import file: %w", err)
				}
				defer f.Close()
				snap, err := app.DecodeSnapshot(f, snapFormat)
				if err != nil {
					return err
				}
				if err := env.svc.ImportSnapshot(ctx, snap); err != nil {
					return fmt.Errorf("import snapshot: %w", err)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d tags, %d tasks, %d events\n", len(snap.Tags), len(snap.Tasks), len(snap.Events))
				return err
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "json or yaml (default from the file extension)")
	return cmd
}

// formatFor picks an explicit format, else one implied by the file extension.
func formatFor(explicit, path string) string {
	if strings.TrimSpace(explicit) != "" {
		return explicit
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

// platformPaths resolves paths for the selected app name and mode.
func platformPaths(opts *rootOptions) (platform.Paths, error) {
	return platform.DefaultPathsWithOptions(platform.Options{AppName: opts.appName, DevMode: opts.devMode})
}

// parsePositiveID parses a positive integer id.
func parsePositiveID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

// errAmbiguous reports a name that matches more than one record.
var errAmbiguous = errors.New("ambiguous name")

// resolveTask finds a task by id or by case-insensitive name.
func resolveTask(ctx context.Context, svc *app.Service, ref string) (domain.Task, error) {
	if id, err := parsePositiveID(ref); err == nil {
		return svc.GetTask(ctx, domain.TaskID(id))
	}
	tasks, err := svc.ListTasks(ctx, app.ListTasksInput{})
	if err != nil {
		return domain.Task{}, err
	}
	var found []domain.Task
	for _, task := range tasks {
		if strings.EqualFold(task.Name, strings.TrimSpace(ref)) {
			found = append(found, task)
		}
	}
	switch len(found) {
	case 0:
		return domain.Task{}, fmt.Errorf("task %q: %w", ref, app.ErrNotFound)
	case 1:
		return found[0], nil
	default:
		return domain.Task{}, fmt.Errorf("task %q matches %d tasks, use the id: %w", ref, len(found), errAmbiguous)
	}
}

// resolveTag finds a tag by id or by case-insensitive name.
func resolveTag(ctx context.Context, svc *app.Service, ref string) (domain.Tag, error) {
	if id, err := parsePositiveID(ref); err == nil {
		return svc.GetTag(ctx, domain.TagID(id))
	}
	tags, err := svc.ListTags(ctx)
	if err != nil {
		return domain.Tag{}, err
	}
	for _, tag := range tags {
		if strings.EqualFold(tag.Name, strings.TrimSpace(ref)) {
			return tag, nil
		}
	}
	return domain.Tag{}, fmt.Errorf("tag %q: %w", ref, app.ErrNotFound)
}

// tagIDsFor maps tag names or ids to ids, optionally creating missing names.
func tagIDsFor(ctx context.Context, svc *app.Service, refs []string, create bool) ([]domain.TagID, error) {
	ids := make([]domain.TagID, 0, len(refs))
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		tag, err := resolveTag(ctx, svc, ref)
		if errors.Is(err, app.ErrNotFound) && create {
			tag, err = svc.CreateTag(ctx, ref)
		}
		if err != nil {
			return nil, err
		}
		ids = append(ids, tag.ID)
	}
	return ids, nil
}
