package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pendergraft/sitelaunch/internal/config"
	"github.com/pendergraft/sitelaunch/internal/dnscheck"
	"github.com/pendergraft/sitelaunch/internal/history"
	"github.com/pendergraft/sitelaunch/internal/logging"
	"github.com/pendergraft/sitelaunch/internal/notify"
	"github.com/pendergraft/sitelaunch/internal/observability/metrics"
	"github.com/pendergraft/sitelaunch/internal/panel"
	"github.com/pendergraft/sitelaunch/internal/panel/cyberpanel"
	"github.com/pendergraft/sitelaunch/internal/pipeline"
	"github.com/pendergraft/sitelaunch/internal/prompt"
	"github.com/pendergraft/sitelaunch/internal/registrar"
	"github.com/pendergraft/sitelaunch/internal/registrar/dynadot"
	"github.com/pendergraft/sitelaunch/internal/registrar/namecheap"
	"github.com/pendergraft/sitelaunch/internal/source"
	"github.com/pendergraft/sitelaunch/internal/transport"
	"github.com/pendergraft/sitelaunch/internal/validation"
)

// maxInputTries bounds re-prompting for free-form values
const maxInputTries = 3

// runFlags holds the root command flags
type runFlags struct {
	configPath  string
	domain      string
	source      string
	registrar   string
	panel       string
	serverIP    string
	skip        pipeline.Skip
	waitDNS     bool
	answers     []string
	answersFile string
}

// app is the per-invocation context: configuration, logging and prompting
// built once at startup and passed to every component.
type app struct {
	cfg      *config.Config
	redactor *logging.Redactor
	runLog   *logging.RunLog
	logger   *slog.Logger
	prompt   prompt.Prompter
}

func newApp(cmd *cobra.Command, f runFlags) (*app, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	redactor := logging.NewRedactor(cfg.Secrets()...)
	runLog, err := logging.Open(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Dir:    cfg.Defaults.LogDir,
	}, cmd.ErrOrStderr(), redactor)
	if err != nil {
		return nil, err
	}

	answers := append([]string{}, f.answers...)
	if f.answersFile != "" {
		fromFile, err := prompt.LoadAnswers(f.answersFile)
		if err != nil {
			runLog.Close()
			return nil, err
		}
		answers = append(fromFile, answers...)
	}

	fd := -1
	if file, ok := cmd.InOrStdin().(*os.File); ok {
		fd = int(file.Fd())
	}
	p := &prompt.Chain{
		Scripted: prompt.NewScripted(answers...),
		Fallback: prompt.NewTerminalIO(cmd.InOrStdin(), cmd.ErrOrStderr(), fd),
	}

	a := &app{cfg: cfg, redactor: redactor, runLog: runLog, logger: runLog.Logger, prompt: p}
	if cfg.Path() != "" {
		a.logger.Debug("configuration loaded", "path", cfg.Path())
	}
	return a, nil
}

func (a *app) Close() error {
	return a.runLog.Close()
}

func runProvision(cmd *cobra.Command, f runFlags) (err error) {
	a, err := newApp(cmd, f)
	if err != nil {
		return err
	}
	defer a.Close()
	// Backend messages may echo credentials
	defer func() {
		err = a.redactError(err)
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	in, err := a.collectInput(f)
	if err != nil {
		return err
	}

	p, cleanup, err := a.buildPipeline(ctx, f)
	if err != nil {
		return err
	}
	defer cleanup()

	metrics.Init(a.cfg.Metrics.Textfile != "")
	if a.runLog.Path != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Run log: %s\n", a.runLog.Path)
	}

	res, runErr := p.Run(ctx, in)

	if err := metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
		a.logger.Warn("could not write metrics", "error", err)
	}
	printResult(cmd.OutOrStdout(), res)
	return runErr
}

// redactedError masks secrets in the message and keeps the chain for errors.Is
type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }

func (e *redactedError) Unwrap() error { return e.err }

func (a *app) redactError(err error) error {
	if err == nil {
		return nil
	}
	msg := a.redactor.Redact(err.Error())
	if msg == err.Error() {
		return err
	}
	return &redactedError{msg: msg, err: err}
}

// collectInput merges flags with configuration defaults and prompts for
// whatever is still missing. Invalid flag values are fatal; invalid typed
// answers are asked again.
func (a *app) collectInput(f runFlags) (pipeline.Input, error) {
	in := pipeline.Input{
		Domain:   f.domain,
		ServerIP: f.serverIP,
		Source:   f.source,
		Skip:     f.skip,
		WaitDNS:  f.waitDNS || a.cfg.DNS.Wait,
	}

	if in.Domain != "" {
		in.Domain = validation.NormalizeDomain(in.Domain)
		if err := validation.ValidateDomain(in.Domain); err != nil {
			return in, fmt.Errorf("--domain: %w", err)
		}
	} else {
		d, err := a.ask("Domain name", "", func(s string) error {
			return validation.ValidateDomain(validation.NormalizeDomain(s))
		})
		if err != nil {
			return in, err
		}
		in.Domain = validation.NormalizeDomain(d)
	}

	if in.Skip.DNS && !in.WaitDNS {
		return in, nil
	}
	if in.ServerIP != "" {
		if err := validation.ValidateIPv4(in.ServerIP); err != nil {
			return in, fmt.Errorf("--server-ip: %w", err)
		}
		return in, nil
	}
	ip, err := a.ask("Server IPv4 address", a.cfg.Defaults.ServerIP, validation.ValidateIPv4)
	if err != nil {
		return in, err
	}
	in.ServerIP = ip
	return in, nil
}

func (a *app) ask(label, def string, validate func(string) error) (string, error) {
	var lastErr error
	for i := 0; i < maxInputTries; i++ {
		v, err := a.prompt.Input(label, def)
		if err != nil {
			return "", err
		}
		v = strings.TrimSpace(v)
		if lastErr = validate(v); lastErr == nil {
			return v, nil
		}
		a.logger.Warn("invalid input", "prompt", label, "error", lastErr)
	}
	return "", fmt.Errorf("%s: %w", strings.ToLower(label), lastErr)
}

// promptCredentials asks for whatever the selected registrar needs but the
// configuration lacks. Answers are masked in logs from then on.
func (a *app) promptCredentials(name string) error {
	secret := func(dst *string, label string) error {
		if *dst != "" {
			return nil
		}
		v, err := a.prompt.Secret(label)
		if err != nil {
			return fmt.Errorf("%s: %w", strings.ToLower(label), err)
		}
		a.redactor.Add(v)
		*dst = v
		return nil
	}
	notEmpty := func(s string) error {
		if s == "" {
			return prompt.ErrEmptyInput
		}
		return nil
	}

	switch name {
	case namecheap.Name:
		nc := &a.cfg.Namecheap
		if nc.APIUser == "" {
			v, err := a.ask("Namecheap API user", "", notEmpty)
			if err != nil {
				return err
			}
			nc.APIUser = v
		}
		if err := secret(&nc.APIKey, "Namecheap API key"); err != nil {
			return err
		}
		if nc.ClientIP == "" {
			v, err := a.ask("Namecheap whitelisted client IP", "", validation.ValidateIPv4)
			if err != nil {
				return err
			}
			nc.ClientIP = v
		}
	case dynadot.Name:
		return secret(&a.cfg.Dynadot.APIKey, "Dynadot API key")
	}
	return nil
}

// apiClient is shared by the registrar adapters and rate limited
func (a *app) apiClient() *transport.HTTPClient {
	return transport.NewHTTPClient(
		time.Duration(a.cfg.Transport.TimeoutSeconds)*time.Second,
		transport.WithRequestsPerMinute(a.cfg.Transport.RequestsPerMinute),
		transport.WithLogger(a.logger, a.redactor),
	)
}

// downloadClient fetches archives; it has its own timeout and no rate limit
func (a *app) downloadClient() *transport.HTTPClient {
	return transport.NewHTTPClient(
		time.Duration(a.cfg.Transport.DownloadTimeoutSeconds)*time.Second,
		transport.WithLogger(a.logger, a.redactor),
	)
}

// buildPipeline wires the configured backends. cleanup releases the history store.
func (a *app) buildPipeline(ctx context.Context, f runFlags) (*pipeline.Pipeline, func(), error) {
	cfg := a.cfg
	logger := a.logger

	regName := firstNonEmpty(f.registrar, cfg.Defaults.Registrar)
	if !f.skip.Domain || !f.skip.DNS {
		if err := a.promptCredentials(regName); err != nil {
			return nil, nil, err
		}
	}

	httpClient := a.apiClient()
	runner := transport.NewExecRunner(logger, a.redactor)

	registrars := registrar.NewRegistry()
	registrars.Register(namecheap.New(namecheap.Config{
		APIUser:  cfg.Namecheap.APIUser,
		APIKey:   cfg.Namecheap.APIKey,
		Username: cfg.Namecheap.Username,
		ClientIP: cfg.Namecheap.ClientIP,
		Endpoint: cfg.Namecheap.Endpoint,
		Years:    cfg.Namecheap.Years,
	}, httpClient, logger))
	registrars.Register(dynadot.New(dynadot.Config{
		APIKey:      cfg.Dynadot.APIKey,
		Endpoint:    cfg.Dynadot.Endpoint,
		Nameservers: cfg.Dynadot.Nameservers,
		Years:       cfg.Dynadot.Years,
	}, httpClient, logger))

	panels := panel.NewRegistry()
	panels.Register(cyberpanel.New(cyberpanel.Config{
		Binary:      cfg.CyberPanel.Binary,
		Package:     cfg.CyberPanel.Package,
		Owner:       cfg.CyberPanel.Owner,
		AdminEmail:  cfg.CyberPanel.AdminEmail,
		PHPDir:      cfg.CyberPanel.PHPDir,
		PHPVersions: cfg.CyberPanel.PHPVersions,
		WebRootBase: cfg.CyberPanel.WebRootBase,
	}, runner, a.prompt, logger))

	reg, err := registrars.Get(regName)
	if err != nil {
		return nil, nil, err
	}
	pnl, err := panels.Get(firstNonEmpty(f.panel, cfg.Defaults.Panel))
	if err != nil {
		return nil, nil, err
	}

	downloadOpts := []source.DownloaderOption{
		source.WithFallback(source.NewCurlFetcher(runner)),
		source.WithDownloadLogger(logger),
	}
	if s3Fetcher, err := source.NewS3FetcherFromConfig(ctx, source.S3Config{
		Region:          cfg.S3.Region,
		Endpoint:        cfg.S3.Endpoint,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
		ForcePathStyle:  cfg.S3.ForcePathStyle,
	}); err != nil {
		logger.Warn("s3 sources unavailable", "error", err)
	} else {
		downloadOpts = append(downloadOpts, source.WithS3(s3Fetcher))
	}

	store := a.openHistory(ctx)

	deps := pipeline.Deps{
		Registrar:  reg,
		Panel:      pnl,
		Resolver:   source.NewResolver(cfg.Sources, a.prompt, logger),
		Downloader: source.NewDownloader(filepath.Join(cfg.Defaults.WorkDir, "downloads"), source.NewHTTPFetcher(a.downloadClient()), downloadOpts...),
		Deployer:   source.NewDeployer(logger),
		Prompt:     a.prompt,
		DNS:        dnscheck.New(cfg.DNS.Resolver, time.Duration(cfg.DNS.IntervalSeconds)*time.Second, cfg.DNS.Attempts, logger),
		History:    store,
		Notifier:   a.notifier(),
		Redactor:   a.redactor,
		Logger:     logger,
	}

	opts := pipeline.Options{
		Contact:      contactFromConfig(cfg.Contact),
		DefaultEmail: cfg.Defaults.NotifyEmail,
		RecordsDir:   cfg.Defaults.RecordsDir,
	}

	p, err := pipeline.New(deps, opts)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return p, func() { store.Close() }, nil
}

// openHistory falls back to recording nothing when the store is unusable;
// history never blocks a run.
func (a *app) openHistory(ctx context.Context) history.Store {
	store, err := history.New(a.cfg.History, a.logger)
	if err == nil {
		if err = store.Migrate(ctx); err != nil {
			store.Close()
		}
	}
	if err != nil {
		a.logger.Warn("run history disabled", "type", a.cfg.History.Type, "error", err)
		return history.NopStore{}
	}
	return store
}

func (a *app) notifier() notify.Notifier {
	n := a.cfg.Notify
	if n.PostmarkServerToken == "" {
		return notify.Nop{}
	}
	pm, err := notify.NewPostmark(notify.Config{
		ServerToken:  n.PostmarkServerToken,
		AccountToken: n.PostmarkAccountToken,
		From:         n.From,
	})
	if err != nil {
		a.logger.Warn("notifications disabled", "error", err)
		return notify.Nop{}
	}
	return pm
}

// contactFromConfig returns nil when no contact field is set
func contactFromConfig(c config.ContactConfig) *registrar.ContactProfile {
	profile := registrar.ContactProfile{
		Label:         c.Label,
		FirstName:     c.FirstName,
		LastName:      c.LastName,
		Organization:  c.Organization,
		Address1:      c.Address1,
		Address2:      c.Address2,
		City:          c.City,
		StateProvince: c.StateProvince,
		PostalCode:    c.PostalCode,
		Country:       c.Country,
		Phone:         c.Phone,
		Email:         c.Email,
	}
	if profile == (registrar.ContactProfile{}) {
		return nil
	}
	return &profile
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func printResult(w io.Writer, res *pipeline.Result) {
	if res == nil {
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STAGE\tSTATUS\tDURATION\tDETAIL")
	for _, st := range res.Stages {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", st.Name, st.Status, st.Duration.Round(time.Millisecond), st.Error)
	}
	tw.Flush()

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Run:      %s\n", res.RunID)
	if res.Registration != nil && res.Registration.AlreadyOwned {
		fmt.Fprintf(w, "Domain:   %s (already owned)\n", res.Registration.Domain)
	}
	if res.Database != nil {
		fmt.Fprintf(w, "Database: %s (user %s)\n", res.Database.Name, res.Database.User)
	}
	if res.RecordPath != "" {
		fmt.Fprintf(w, "Record:   %s\n", res.RecordPath)
	}
	if res.Deployment != nil {
		fmt.Fprintf(w, "Web root: %s\n", res.Deployment.WebRoot)
		if res.Deployment.Backup != "" {
			fmt.Fprintf(w, "Backup:   %s\n", res.Deployment.Backup)
		}
	}
	if res.FailedStage != "" {
		fmt.Fprintf(w, "Failed:   %s\n", res.FailedStage)
	}
}
