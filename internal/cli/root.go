package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/hyqhyq3/wmtr/internal/api"
	"github.com/hyqhyq3/wmtr/internal/geoip"
	"github.com/hyqhyq3/wmtr/internal/i18n"
	"github.com/hyqhyq3/wmtr/internal/logging"
	"github.com/hyqhyq3/wmtr/internal/mtr"
	"github.com/hyqhyq3/wmtr/internal/report"
	"github.com/hyqhyq3/wmtr/internal/tui"
)

const envPrefix = "WMTR"

type rootOptions struct {
	cycles     int
	interval   time.Duration
	size       int
	timeout    time.Duration
	numeric    bool
	report     bool
	wide       bool
	file       string
	order      string
	helpFormat bool
	format     string
	ipVersion  int
	geoip      string
	ip2rDB     string
	ip2rURL    string
	autoDLGeo  bool
	mmdb       string
	listen     string
	logLevel   string
	logFile    string
}

// reportMode is true when the trace runs to completion before anything is
// printed, either on request or because a machine readable format was
// chosen.
func (o *rootOptions) reportMode() bool {
	return o.report || o.format != "text"
}

func (o *rootOptions) mtrConfig() mtr.Config {
	return mtr.Config{
		Cycles:     o.cycles,
		Interval:   o.interval,
		Timeout:    o.timeout,
		PacketSize: o.size,
		EnableDNS:  !o.numeric,
	}
}

// Execute runs the root command with the process arguments. The message
// language is fixed before the command is built so that help texts are
// translated too.
func Execute() error {
	i18n.Init(langFromArgs(os.Args[1:]))
	return NewRootCommand().Execute()
}

// langFromArgs picks --lang from args, falling back to WMTR_LANG.
func langFromArgs(args []string) string {
	for i, arg := range args {
		if arg == "--" {
			break
		}
		if v, ok := strings.CutPrefix(arg, "--lang="); ok {
			return v
		}
		if arg == "--lang" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return os.Getenv(envPrefix + "_LANG")
}

func NewRootCommand() *cobra.Command {
	v := viper.New()
	var cfgFile string

	cmd := &cobra.Command{
		Use:           "wmtr [flags] HOSTNAME",
		Short:         i18n.T("cmd.short"),
		Long:          i18n.T("cmd.long"),
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initConfig(v, cfgFile); err != nil {
				return err
			}
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			opts, err := loadOptions(v)
			if err != nil {
				return err
			}
			if opts.helpFormat {
				return report.HelpFormat(cmd.OutOrStdout())
			}
			if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
				return errors.New(i18n.T("err.noHostname"))
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return run(ctx, args[0], opts, cmd.OutOrStdout())
		},
	}

	defaults := mtr.DefaultConfig()
	f := cmd.Flags()
	f.IntP("cycles", "c", defaults.Cycles, i18n.T("cmd.flag.cycles"))
	f.DurationP("interval", "i", defaults.Interval, i18n.T("cmd.flag.interval"))
	f.IntP("size", "s", defaults.PacketSize, i18n.T("cmd.flag.size"))
	f.DurationP("timeout", "t", defaults.Timeout, i18n.T("cmd.flag.timeout"))
	f.BoolP("numeric", "n", false, i18n.T("cmd.flag.numeric"))
	f.BoolP("report", "r", false, i18n.T("cmd.flag.report"))
	f.BoolP("wide", "w", false, i18n.T("cmd.flag.wide"))
	f.StringP("file", "f", "", i18n.T("cmd.flag.file"))
	f.StringP("order", "o", report.DefaultFields, i18n.T("cmd.flag.order"))
	f.BoolP("help-format", "p", false, i18n.T("cmd.flag.helpFormat"))
	f.String("format", "text", i18n.T("cmd.flag.format"))
	f.Int("ip-version", 4, i18n.T("cmd.flag.ipVersion"))
	f.String("geoip", "none", i18n.T("cmd.flag.geoip"))
	f.String("ip2region-db", geoip.DefaultIP2RegionDBPath(), i18n.T("cmd.flag.ip2regionDB"))
	f.String("geoip-ip2region-url", "", i18n.T("cmd.flag.ip2regionURL"))
	f.Bool("geoip-auto-download", true, i18n.T("cmd.flag.autoDLGeo"))
	f.String("mmdb", "", i18n.T("cmd.flag.mmdb"))
	f.String("listen", "", i18n.T("cmd.flag.listen"))
	f.String("log-level", "warn", i18n.T("cmd.flag.logLevel"))
	f.String("log-file", "", i18n.T("cmd.flag.logFile"))
	f.String("lang", "", i18n.T("cmd.flag.lang"))
	f.StringVar(&cfgFile, "config", "", i18n.T("cmd.flag.config"))

	return cmd
}

// initConfig reads the optional config file and enables WMTR_* environment
// overrides. A missing default config file is not an error.
func initConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.SetConfigType("yaml")
		v.SetConfigName(".wmtr")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("%s: %w", i18n.T("err.configRead"), err)
	}
	logrus.WithField("file", v.ConfigFileUsed()).Debug("using config file")
	return nil
}

func loadOptions(v *viper.Viper) (*rootOptions, error) {
	opts := &rootOptions{
		cycles:     v.GetInt("cycles"),
		interval:   v.GetDuration("interval"),
		size:       v.GetInt("size"),
		timeout:    v.GetDuration("timeout"),
		numeric:    v.GetBool("numeric"),
		report:     v.GetBool("report"),
		wide:       v.GetBool("wide"),
		file:       v.GetString("file"),
		order:      v.GetString("order"),
		helpFormat: v.GetBool("help-format"),
		format:     strings.ToLower(v.GetString("format")),
		ipVersion:  v.GetInt("ip-version"),
		geoip:      v.GetString("geoip"),
		ip2rDB:     v.GetString("ip2region-db"),
		ip2rURL:    v.GetString("geoip-ip2region-url"),
		autoDLGeo:  v.GetBool("geoip-auto-download"),
		mmdb:       v.GetString("mmdb"),
		listen:     v.GetString("listen"),
		logLevel:   v.GetString("log-level"),
		logFile:    v.GetString("log-file"),
	}

	switch opts.format {
	case "text", "json", "yaml":
	default:
		return nil, errors.New(i18n.Tf("err.invalidFormat", map[string]interface{}{"Format": opts.format}))
	}
	switch opts.ipVersion {
	case 4, 6:
	default:
		return nil, errors.New(i18n.Tf("err.invalidIPVersion", map[string]interface{}{"Version": opts.ipVersion}))
	}
	return opts, nil
}

func run(ctx context.Context, target string, opts *rootOptions, stdout io.Writer) error {
	interactive := !opts.reportMode() && isTerminal(os.Stdout)
	logFile, err := logging.Setup(logging.Options{
		Level:       opts.logLevel,
		File:        opts.logFile,
		Interactive: interactive,
		JSON:        opts.format == "json",
	})
	if err != nil {
		return err
	}
	if logFile != nil {
		defer logFile.Close()
	}
	log := logrus.WithField("target", target)

	cfg := opts.mtrConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}

	transport, err := mtr.NewICMPTransport(opts.ipVersion)
	if err != nil {
		return err
	}
	defer transport.Close()

	addr, err := mtr.ResolveTarget(ctx, target, opts.ipVersion)
	if err != nil {
		log.WithError(err).Debug("target resolution failed")
		return errors.New(i18n.T("err.noResolve"))
	}

	geo, err := geoip.NewResolver(opts.geoip, geoip.Options{
		IP2RegionDB:  opts.ip2rDB,
		IP2RegionURL: opts.ip2rURL,
		Download:     downloadOption(opts.autoDLGeo),
		MMDBPath:     opts.mmdb,
		Lang:         i18n.Language().String(),
	})
	if err != nil {
		return err
	}
	defer geo.Close()

	sess, err := mtr.NewSession(cfg, transport,
		mtr.WithNameResolver(mtr.NewNameResolver(mtr.WithGeoResolver(geo))),
		mtr.WithLogger(log),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	if opts.listen != "" {
		srv, err := api.New(opts.listen, sess, log)
		if err != nil {
			return err
		}
		g.Go(func() error { return srv.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		sess.StopTrace()
		return nil
	})
	g.Go(func() error {
		defer cancel()
		if opts.reportMode() {
			return traceReport(sess, addr, opts, stdout, log)
		}
		return traceLive(gctx, sess, addr, opts, stdout, interactive)
	})
	return g.Wait()
}

// traceReport runs the whole trace and prints one final report.
func traceReport(sess *mtr.Session, addr netip.Addr, opts *rootOptions, stdout io.Writer, log *logrus.Entry) error {
	if err := sess.DoTrace(addr, false); err != nil {
		return err
	}

	out := stdout
	if opts.file != "" {
		f, err := os.Create(opts.file)
		if err != nil {
			fmt.Fprintln(os.Stderr, i18n.Tf("err.reportRedirect", map[string]interface{}{"Path": opts.file, "Error": err.Error()}))
			log.WithError(err).Warn("falling back to stdout for the report")
		} else {
			defer f.Close()
			out = f
		}
	}
	return writeReport(out, sess, opts, report.Unsafe)
}

// traceLive shows the hop table while tracing: the TUI on a terminal, a
// plain report every interval otherwise. The final table is printed once
// the trace ends.
func traceLive(ctx context.Context, sess *mtr.Session, addr netip.Addr, opts *rootOptions, stdout io.Writer, interactive bool) error {
	if err := sess.DoTrace(addr, true); err != nil {
		return err
	}

	if interactive {
		if err := tui.Run(sess, report.Fields(opts.order), opts.interval); err != nil {
			sess.StopTrace()
			return err
		}
	} else {
		ticker := time.NewTicker(opts.interval)
		defer ticker.Stop()
	loop:
		for sess.IsTracing() {
			select {
			case <-ticker.C:
				fmt.Fprintln(stdout, i18n.T("cmd.liveHint"))
				if err := writeReport(stdout, sess, opts, report.Safe); err != nil {
					return err
				}
			case <-sess.Done():
				break loop
			case <-ctx.Done():
				break loop
			}
		}
	}

	if err := sess.Wait(context.Background()); err != nil {
		return err
	}
	return writeReport(stdout, sess, opts, report.Unsafe)
}

func writeReport(w io.Writer, sess *mtr.Session, opts *rootOptions, mode report.Mode) error {
	if opts.format != "text" {
		return report.WriteSnapshot(w, report.TakeSnapshot(sess, mode), opts.format)
	}
	return report.Write(w, sess, report.Options{
		Mode:   mode,
		Fields: opts.order,
		Wide:   opts.wide,
	})
}

func downloadOption(auto bool) geoip.DownloadOption {
	if auto {
		return geoip.DownloadOption{Answer: geoip.DownloadYes}
	}
	if !isTerminal(os.Stdin) {
		return geoip.DownloadOption{Answer: geoip.DownloadNo}
	}
	return geoip.DownloadOption{Answer: geoip.DownloadAsk, Prompt: promptYesNo(os.Stdin, os.Stderr)}
}

func promptYesNo(in io.Reader, out io.Writer) geoip.DownloadPrompt {
	return func(message string) (bool, error) {
		fmt.Fprintf(out, "%s [y/N] ", message)
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
