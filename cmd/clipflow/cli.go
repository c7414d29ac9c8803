package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/clipflow/internal/clipboard"
	"github.com/hpungsan/clipflow/internal/errors"
	"github.com/hpungsan/clipflow/internal/ops"
	"github.com/hpungsan/clipflow/internal/pipeline"
	"github.com/hpungsan/clipflow/internal/queue"
)

// maxInputBytes caps text read from stdin.
const maxInputBytes = 4 << 20

// newCLIApp creates the CLI application with all commands.
func newCLIApp(env *appEnv) *cli.App {
	app := &cli.App{
		Name:    "clipflow",
		Usage:   "Clipboard transformation engine",
		Version: Version,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "debug", Usage: "Enable debug logging (stderr)"},
		},
		Before: func(c *cli.Context) error {
			if env.log != nil {
				return nil
			}
			log, err := newLogger(c.Bool("debug"))
			if err != nil {
				return err
			}
			env.log = log
			return nil
		},
		After: func(c *cli.Context) error {
			if env.log != nil {
				_ = env.log.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			watchCmd(env),
			serveCmd(env),
			mcpCmd(env),
			transformCmd(env),
			stripCmd(env),
			unwrapCmd(env),
			detectCmd(env),
			historyCmd(env),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// watchCmd creates the watch command.
func watchCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Watch the clipboard and transform changes (runs until interrupted)",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "auto", Usage: "Transform every processable change (default from config auto_transform)"},
			&cli.BoolFlag{Name: "serve", Usage: "Also run the local HTTP API"},
			&cli.StringFlag{Name: "bind", Usage: "HTTP bind address (default from config)"},
			&cli.IntFlag{Name: "port", Usage: "HTTP port (default from config)"},
		},
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			auto := env.cfg.AutoTransform
			if c.IsSet("auto") {
				auto = c.Bool("auto")
			}
			bind, port := webAddr(c, env)

			if err := env.runWatch(ctx, watchOptions{
				AutoTransform: auto,
				Serve:         c.Bool("serve"),
				Bind:          bind,
				Port:          port,
			}); err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the local HTTP API (status, transform, cancel, history)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Usage: "Bind address (default from config)"},
			&cli.IntFlag{Name: "port", Usage: "Port (default from config)"},
		},
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			bind, port := webAddr(c, env)
			if err := env.runServe(ctx, bind, port); err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// mcpCmd creates the mcp command.
func mcpCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve MCP tools over stdio",
		Action: func(c *cli.Context) error {
			if err := runMCP(env); err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// transformCmd creates the transform command.
func transformCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "transform",
		Usage:     "Run the configured pipeline over text (args or stdin) or the clipboard",
		ArgsUsage: "[text]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "clipboard", Aliases: []string{"c"}, Usage: "Transform the clipboard and write the result back"},
			&cli.DurationFlag{Name: "timeout", Usage: "Pipeline budget (default from config timeout_ms)"},
			&cli.BoolFlag{Name: "json", Usage: "Print the run summary as JSON"},
		},
		Action: func(c *cli.Context) error {
			var (
				clip  clipboard.Platform
				input string
				err   error
			)
			if c.Bool("clipboard") {
				if clip, err = env.systemClipboard(); err != nil {
					return outputError(err)
				}
			} else {
				if input, err = readInput(c); err != nil {
					return outputError(err)
				}
				clip = clipboard.NewMemory()
			}

			rt, err := env.newRuntime(clip, runtimeOptions{Timeout: c.Duration("timeout")})
			if err != nil {
				return outputError(err)
			}
			defer rt.Close()

			var res *pipeline.Result
			if c.Bool("clipboard") {
				res, err = rt.engine.TransformClipboard(c.Context, queue.TriggerCLI)
			} else {
				res, err = rt.engine.Submit(c.Context, rt.engine.NewRequest(queue.TriggerCLI), input)
			}
			if err != nil {
				return outputError(err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, res.Summary())
			}
			return outputText(c.App.Writer, res.FinalOutput)
		},
	}
}

// stripCmd creates the strip command.
func stripCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "strip",
		Usage:     "Remove common leading indentation and trailing whitespace",
		ArgsUsage: "[text]",
		Flags:     []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "Print JSON"}},
		Action: func(c *cli.Context) error {
			return applyCmd(c, pipeline.Strip(env.cfg).Apply)
		},
	}
}

// unwrapCmd creates the unwrap command.
func unwrapCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "unwrap",
		Usage:     "Join hard-wrapped prose lines into paragraphs",
		ArgsUsage: "[text]",
		Flags:     []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "Print JSON"}},
		Action: func(c *cli.Context) error {
			return applyCmd(c, pipeline.Unwrap(env.cfg).Apply)
		},
	}
}

// applyCmd runs one heuristic over the command input.
func applyCmd(c *cli.Context, apply func(string) (string, error)) error {
	input, err := readInput(c)
	if err != nil {
		return outputError(err)
	}
	out, err := apply(input)
	if err != nil {
		return outputError(err)
	}
	if c.Bool("json") {
		return outputJSON(c.App.Writer, map[string]any{"text": out, "changed": out != input})
	}
	return outputText(c.App.Writer, out)
}

// detectCmd creates the detect command.
func detectCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "detect",
		Usage:     "Score how much text looks like code",
		ArgsUsage: "[text]",
		Action: func(c *cli.Context) error {
			input, err := readInput(c)
			if err != nil {
				return outputError(err)
			}
			if strings.TrimSpace(input) == "" {
				return outputError(errors.NewEmptyInput())
			}
			return outputJSON(c.App.Writer, pipeline.Detector(env.cfg).Report(input))
		},
	}
}

// historyCmd creates the history command and its subcommands.
func historyCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Inspect and prune past runs",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List runs, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "outcome", Usage: "Filter: success|failure|cancelled"},
					&cli.StringFlag{Name: "trigger", Usage: "Filter: hotkey|auto|cli|api|mcp"},
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Max items"},
					&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Usage: "Items to skip"},
				},
				Action: func(c *cli.Context) error {
					output, err := ops.ListRuns(c.Context, env.db, ops.ListInput{
						Outcome: c.String("outcome"),
						Trigger: c.String("trigger"),
						Limit:   c.Int("limit"),
						Offset:  c.Int("offset"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, output)
				},
			},
			{
				Name:      "show",
				Usage:     "Show one run with its stage outputs",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "no-text", Usage: "Exclude input, output, and stage texts"},
				},
				Action: func(c *cli.Context) error {
					input := ops.FetchInput{ID: c.Args().First()}
					if c.Bool("no-text") {
						includeText := false
						input.IncludeText = &includeText
					}
					output, err := ops.FetchRun(c.Context, env.db, input)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, output)
				},
			},
			{
				Name:  "purge",
				Usage: "Permanently delete runs (default: older than history_retention_days)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "older-than", Usage: "Only purge runs older than N days (e.g., 7d)"},
					&cli.BoolFlag{Name: "all", Usage: "Purge every run"},
				},
				Action: func(c *cli.Context) error {
					input := ops.PurgeInput{}
					switch {
					case c.Bool("all"):
					case c.String("older-than") != "":
						days, err := parseDuration(c.String("older-than"))
						if err != nil {
							return outputError(errors.NewInvalidRequest(err.Error()))
						}
						input.OlderThanDays = &days
					case env.cfg.HistoryRetentionDays > 0:
						days := env.cfg.HistoryRetentionDays
						input.OlderThanDays = &days
					default:
						return outputError(errors.NewInvalidRequest("pass --older-than or --all"))
					}

					output, err := ops.PurgeRuns(c.Context, env.db, input)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, output)
				},
			},
			{
				Name:  "stats",
				Usage: "Show run counts and average duration",
				Action: func(c *cli.Context) error {
					output, err := ops.Stats(c.Context, env.db)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, output)
				},
			},
		},
	}
}

// Helper functions

// webAddr resolves bind/port flags against config.
func webAddr(c *cli.Context, env *appEnv) (string, int) {
	bind, port := env.cfg.WebBind, env.cfg.WebPort
	if c.IsSet("bind") {
		bind = c.String("bind")
	}
	if c.IsSet("port") {
		port = c.Int("port")
	}
	return bind, port
}

// outputJSON marshals result to w as JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputText writes s followed by a newline unless it already ends in one.
func outputText(w io.Writer, s string) error {
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	_, err := io.WriteString(w, s)
	return err
}

// outputError formats error for CLI.
func outputError(err error) error {
	if cErr, ok := errors.As(err); ok {
		msg := fmt.Sprintf("[%s] %s", cErr.Code, cErr.Message)
		if cErr.Cause != nil {
			msg += ": " + cErr.Cause.Error()
		}
		return cli.Exit(msg, 1)
	}
	return cli.Exit(err.Error(), 1)
}

// readInput returns the positional args joined by spaces, or stdin when no
// args are given. An interactive stdin is rejected rather than waited on.
func readInput(c *cli.Context) (string, error) {
	if c.NArg() > 0 {
		return strings.Join(c.Args().Slice(), " "), nil
	}
	r := c.App.Reader
	if f, ok := r.(*os.File); ok && !stdinHasData(f) {
		return "", errors.NewInvalidRequest("text must be passed as an argument or piped via stdin")
	}
	return readLimited(r, maxInputBytes)
}

// stdinHasData returns true if f is piped data (not a terminal).
func stdinHasData(f *os.File) bool {
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readLimited reads all of r, failing when it exceeds maxBytes.
func readLimited(r io.Reader, maxBytes int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return "", errors.NewInternal(err)
	}
	if int64(len(data)) > maxBytes {
		return "", errors.NewInvalidRequest(fmt.Sprintf("input exceeds %d bytes", maxBytes))
	}
	return string(data), nil
}

// parseDuration parses "7d" format to days.
func parseDuration(s string) (int, error) {
	if numStr, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(numStr)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		if days < 0 {
			return 0, fmt.Errorf("duration must be non-negative")
		}
		return days, nil
	}
	return 0, fmt.Errorf("duration must end with 'd' (days), e.g., 7d")
}
