// Command llmswitch lists, invokes and compares the configured apps,
// or serves them over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/llmswitch/callbacks"
	"github.com/effective-security/llmswitch/encoding"
	"github.com/effective-security/llmswitch/pkg/chain"
	"github.com/effective-security/llmswitch/pkg/configurable"
	"github.com/effective-security/llmswitch/pkg/llmfactory"
	"github.com/effective-security/llmswitch/server"
	"github.com/effective-security/llmswitch/session"
	"github.com/effective-security/llmswitch/store"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/llmswitch", "cmd")

const usage = `Usage: llmswitch [flags] <command> [command flags] [args]

Commands:
  list                         list the apps, their axes and variants
  invoke  -app APP [input]     invoke the app, input is read from stdin when omitted
  compare -app APP -axis AXIS -input TEXT [keys...]
                               invoke the app once per variant of the axis
  history -session ID          print the invocation history of the session
  serve   [-addr :8080]        serve the HTTP API

Flags:
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

type cli struct {
	cfg     *chain.Config
	factory llmfactory.Factory
	history store.HistoryStore
	enc     encoding.Encoder

	stats    *callbacks.Stats
	callback *callbacks.Fanout

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("llmswitch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configFile := fs.String("config", "", "apps configuration file, the demo apps over a local Ollama when empty")
	format := fs.String("format", encoding.ModeText, "output format: "+strings.Join(encoding.Modes, ", "))
	verbose := fs.Bool("v", false, "debug logging")
	trace := fs.Bool("trace", false, "print the invocation events to stderr")
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	xlog.SetFormatter(xlog.NewStringFormatter(stderr))
	if *verbose {
		xlog.SetGlobalLogLevel(xlog.DEBUG)
	} else {
		xlog.SetGlobalLogLevel(xlog.WARNING)
	}

	c := &cli{
		stats:    callbacks.NewStats(),
		callback: callbacks.NewFanout(callbacks.NewPackageLogger(logger)),
		stdin:    stdin,
		stdout:   stdout,
		stderr:   stderr,
	}
	c.callback.Add(c.stats)
	if *trace {
		mode := callbacks.ModeDefault
		if *verbose {
			mode = callbacks.ModeVerbose
		}
		c.callback.Add(callbacks.NewPrinter(stderr, mode))
	}
	err := c.init(ctx, *configFile, *format)
	if err == nil {
		err = c.dispatch(ctx, fs.Arg(0), fs.Args()[1:])
	}
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 2
		}
		printError(stderr, err)
		return 1
	}
	return 0
}

func (c *cli) init(ctx context.Context, configFile, format string) error {
	var err error
	c.enc, err = encoding.NewEncoder(format)
	if err != nil {
		return err
	}

	if configFile == "" {
		c.cfg = chain.DefaultConfig()
	} else {
		c.cfg, err = chain.LoadConfig(configFile)
		if err != nil {
			return err
		}
	}
	if c.cfg.LLM == nil {
		c.cfg.LLM = llmfactory.DefaultConfig()
	}
	c.factory = llmfactory.New(c.cfg.LLM)

	c.history, err = store.New(ctx, c.cfg.History)
	return err
}

func (c *cli) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "list":
		return c.list()
	case "invoke":
		return c.invoke(ctx, args)
	case "compare":
		return c.compare(ctx, args)
	case "history":
		return c.printHistory(ctx, args)
	case "serve":
		return c.serve(ctx, args)
	}
	return errors.WithHint(errors.Newf("unknown command: %q", cmd),
		"valid commands: list, invoke, compare, history, serve")
}

func (c *cli) registry() (*chain.Registry, error) {
	return chain.NewRegistry(c.cfg, c.factory,
		chain.WithHistory(c.history),
		chain.WithCallback(c.callback),
	)
}

func (c *cli) list() error {
	reg, err := c.registry()
	if err != nil {
		return err
	}
	return c.print(reg.Describe())
}

func (c *cli) invoke(ctx context.Context, args []string) error {
	var (
		req       chain.Request
		override  chain.SamplingOverride
		variables = map[string]any{}
	)
	fs := c.flagSet("invoke")
	appName := fs.String("app", "", "app name")
	fs.StringVar(&req.Selection.Prompt, "prompt", "", "prompt variant, the default when empty")
	fs.StringVar(&req.Selection.Backend, "backend", "", "backend variant, the default when empty")
	fs.StringVar(&req.Selection.Sampling, "sampling", "", "sampling variant, the default when empty")
	model := fs.String("model", "", "select the backend by the model name")
	sessionID := fs.String("session", "", "session ID for the history")
	fs.Func("temperature", "temperature override in [0, 1]", func(s string) error {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		override.Temperature = &v
		return nil
	})
	fs.Func("max-tokens", "max tokens override", func(s string) error {
		v, err := strconv.Atoi(s)
		if err != nil {
			return err
		}
		override.MaxTokens = &v
		return nil
	})
	fs.Func("var", "template variable as key=value, may be repeated", func(s string) error {
		k, v, ok := strings.Cut(s, "=")
		if !ok || k == "" {
			return errors.Newf("expected key=value: %q", s)
		}
		variables[k] = v
		return nil
	})
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *sessionID != "" {
		sess, err := session.Parse(*sessionID)
		if err != nil {
			return err
		}
		ctx = session.WithContext(ctx, sess)
	}

	app, err := c.app(*appName)
	if err != nil {
		return err
	}
	if *model != "" && req.Selection.Backend == "" {
		req.Selection.Backend, err = app.BackendKeyForModel(*model)
		if err != nil {
			return err
		}
	}
	if !override.IsEmpty() {
		req.Selection.Override = &override
	}
	if len(variables) > 0 {
		req.Variables = variables
	}

	req.Input, err = c.input(fs.Args())
	if err != nil {
		return err
	}

	res, err := app.Invoke(ctx, &req)
	if err != nil {
		return err
	}
	return c.print(res)
}

func (c *cli) compare(ctx context.Context, args []string) error {
	fs := c.flagSet("compare")
	appName := fs.String("app", "", "app name")
	axisName := fs.String("axis", "", "axis to compare: prompt, backend or sampling")
	input := fs.String("input", "", "input text, read from stdin when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}

	app, err := c.app(*appName)
	if err != nil {
		return err
	}
	axis, err := chain.ParseAxis(*axisName)
	if err != nil {
		return err
	}
	text := *input
	if text == "" {
		if text, err = c.input(nil); err != nil {
			return err
		}
	}

	results, err := app.Compare(ctx, text, axis, fs.Args()...)
	if err != nil {
		return err
	}
	return c.print(&server.CompareResponse{
		App:     app.Name(),
		Axis:    axis,
		Results: results,
	})
}

func (c *cli) printHistory(ctx context.Context, args []string) error {
	fs := c.flagSet("history")
	sessionID := fs.String("session", "", "session ID")
	limit := fs.Int("limit", 0, "number of recent records, all when 0")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *sessionID == "" {
		list, err := c.history.ListSessions(ctx)
		if err != nil {
			return err
		}
		return c.print(list)
	}

	info, err := c.history.GetSessionInfo(ctx, *sessionID)
	if err != nil {
		return err
	}
	if info == nil {
		return errors.WithMessagef(server.ErrNotFound, "session %q", *sessionID)
	}
	records, err := c.history.History(ctx, *sessionID, *limit)
	if err != nil {
		return err
	}
	return c.print(&server.HistoryResponse{Session: info, Records: records})
}

func (c *cli) serve(ctx context.Context, args []string) error {
	fs := c.flagSet("serve")
	addr := fs.String("addr", ":8080", "listen address")
	timeout := fs.Duration("timeout", server.DefaultTimeout, "request timeout")
	ttl := fs.Duration("history-ttl", 0, "remove the history of sessions idle for longer, kept forever when 0")
	if err := fs.Parse(args); err != nil {
		return err
	}

	reg, err := c.registry()
	if err != nil {
		return err
	}
	srv := server.New(reg,
		server.WithHistory(c.history),
		server.WithTimeout(*timeout),
		server.WithHistoryTTL(*ttl),
		server.WithStats(c.stats),
	)
	return srv.ListenAndServe(ctx, *addr)
}

func (c *cli) app(name string) (*chain.Chain, error) {
	reg, err := c.registry()
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, errors.WithHintf(errors.New("-app is required"),
			"available apps: %s", strings.Join(reg.Names(), ", "))
	}
	return reg.Get(name)
}

// input returns the arguments joined by space, or stdin
func (c *cli) input(args []string) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	started := time.Now()
	bs, err := io.ReadAll(c.stdin)
	if err != nil {
		return "", errors.Wrap(err, "failed to read input")
	}
	logger.KV(xlog.DEBUG, "status", "input_read", "bytes", len(bs), "elapsed", time.Since(started).String())
	return strings.TrimSpace(string(bs)), nil
}

func (c *cli) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

func (c *cli) print(v any) error {
	bs, err := c.enc.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "failed to encode output")
	}
	_, err = c.stdout.Write(bs)
	if err == nil && len(bs) > 0 && bs[len(bs)-1] != '\n' {
		_, err = io.WriteString(c.stdout, "\n")
	}
	return err
}

func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "error: %s\n", err.Error())
	if hint := configurable.HintOf(err); hint != "" {
		fmt.Fprintf(w, "hint: %s\n", hint)
	}
}
