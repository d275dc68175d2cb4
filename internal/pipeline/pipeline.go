// Package pipeline runs the provisioning stages for one domain: source
// download, domain purchase, DNS, website, SSL, database and deployment.
// Stages run in order; the first failure stops the run and nothing already
// done is rolled back.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pendergraft/sitelaunch/internal/history"
	"github.com/pendergraft/sitelaunch/internal/logging"
	"github.com/pendergraft/sitelaunch/internal/notify"
	"github.com/pendergraft/sitelaunch/internal/observability/metrics"
	"github.com/pendergraft/sitelaunch/internal/panel"
	"github.com/pendergraft/sitelaunch/internal/prompt"
	"github.com/pendergraft/sitelaunch/internal/registrar"
	"github.com/pendergraft/sitelaunch/internal/source"
	"github.com/pendergraft/sitelaunch/internal/validation"
)

// Stage names, in execution order
const (
	StageInput       = "input"
	StageSource      = "source"
	StageDomain      = "domain"
	StageDNS         = "dns"
	StagePropagation = "propagation"
	StageWebsite     = "website"
	StageSSL         = "ssl"
	StageDatabase    = "database"
	StageDeploy      = "deploy"
)

// ErrInvalidInput wraps validation failures of the run input
var ErrInvalidInput = errors.New("invalid input")

// Skip selects stages to leave out
type Skip struct {
	Domain   bool
	DNS      bool
	Website  bool
	SSL      bool
	Database bool
	Deploy   bool
}

// Input is what the operator supplied, before resolution
type Input struct {
	Domain   string
	ServerIP string
	// Source is a source name or archive URL; empty offers the menu
	Source  string
	Skip    Skip
	WaitDNS bool
}

// Request is the resolved, read-only description of a run
type Request struct {
	Domain     string
	ServerIP   string
	DBPassword string
	// SourceFile is the downloaded archive; empty when deploy is skipped
	SourceFile string
	Skip       Skip
	WaitDNS    bool
}

// StageResult is the outcome of one stage
type StageResult struct {
	Name     string
	Status   string // metrics.StatusOK, StatusFailed or StatusSkipped
	Duration time.Duration
	Error    string // redacted
}

// Result collects everything a run produced, including on failure
type Result struct {
	RunID        string
	Request      *Request
	Registration *registrar.Registration
	Database     *panel.Database
	RecordPath   string
	Deployment   *source.Deployment
	Stages       []StageResult
	FailedStage  string
}

// StageError reports the stage a run stopped at
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Resolver turns a source reference into an archive URL
type Resolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// Downloader fetches an archive URL to a local file
type Downloader interface {
	Download(ctx context.Context, rawURL string) (string, error)
}

// Deployer extracts an archive into a web root
type Deployer interface {
	Deploy(ctx context.Context, archivePath, webRoot string) (*source.Deployment, error)
}

// DNSWaiter blocks until a domain resolves to an address
type DNSWaiter interface {
	Wait(ctx context.Context, domain, ip string) error
}

// Deps are the collaborators of a pipeline. Registrar, Panel, Resolver,
// Downloader, Deployer and Prompt are required.
type Deps struct {
	Registrar  registrar.Registrar
	Panel      panel.Panel
	Resolver   Resolver
	Downloader Downloader
	Deployer   Deployer
	Prompt     prompt.Prompter

	DNS      DNSWaiter       // nil disables the propagation wait
	History  history.Store   // nil records nothing
	Notifier notify.Notifier // nil sends nothing
	Redactor *logging.Redactor
	Logger   *slog.Logger
}

// Options are per-installation settings
type Options struct {
	// Contact is the configured registrant profile, if any
	Contact *registrar.ContactProfile
	// DefaultEmail fills contact profiles without an e-mail and receives the summary
	DefaultEmail string
	RecordsDir   string
}

// Pipeline sequences the stages of a run
type Pipeline struct {
	deps Deps
	opts Options
	now  func() time.Time
}

// New creates a pipeline
func New(deps Deps, opts Options) (*Pipeline, error) {
	switch {
	case deps.Registrar == nil:
		return nil, errors.New("pipeline: registrar is required")
	case deps.Panel == nil:
		return nil, errors.New("pipeline: panel is required")
	case deps.Resolver == nil || deps.Downloader == nil || deps.Deployer == nil:
		return nil, errors.New("pipeline: source resolver, downloader and deployer are required")
	case deps.Prompt == nil:
		return nil, errors.New("pipeline: prompter is required")
	}
	if opts.RecordsDir == "" {
		return nil, errors.New("pipeline: records directory is required")
	}

	if deps.History == nil {
		deps.History = history.NopStore{}
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if deps.Redactor == nil {
		deps.Redactor = logging.NewRedactor()
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	return &Pipeline{deps: deps, opts: opts, now: time.Now}, nil
}

// Run executes every stage for in. The returned Result is never nil; on
// failure the error is a *StageError naming the stage that stopped the run.
func (p *Pipeline) Run(ctx context.Context, in Input) (*Result, error) {
	res := &Result{RunID: history.NewID()}
	logger := p.deps.Logger.With("run_id", res.RunID)
	started := p.now()

	run := &history.Run{
		ID:        res.RunID,
		Domain:    validation.NormalizeDomain(in.Domain),
		Registrar: p.deps.Registrar.Name(),
		Panel:     p.deps.Panel.Name(),
		StartedAt: started,
	}
	if err := p.deps.History.Start(ctx, run); err != nil {
		logger.Warn("could not record run start", "error", err)
	}

	err := p.execute(ctx, logger, in, res)

	// Bookkeeping still happens when the run was cancelled
	bg := context.WithoutCancel(ctx)
	finished := p.now()

	status, errMsg := history.StatusSucceeded, ""
	if err != nil {
		status, errMsg = history.StatusFailed, p.deps.Redactor.Redact(errors.Unwrap(err).Error())
	}
	if herr := p.deps.History.Finish(bg, res.RunID, status, res.FailedStage, errMsg, finished); herr != nil {
		logger.Warn("could not record run result", "error", herr)
	}
	metrics.RunFinished(err == nil, finished)
	p.notify(bg, logger, res, errMsg, started, finished)

	if err != nil {
		logger.Error("run failed", "stage", res.FailedStage, "error", err)
		return res, err
	}
	logger.Info("run complete", "domain", res.Request.Domain, "duration", finished.Sub(started).Round(time.Millisecond).String())
	return res, nil
}

func (p *Pipeline) execute(ctx context.Context, logger *slog.Logger, in Input, res *Result) error {
	req, err := p.prepare(in)
	if err != nil {
		res.FailedStage = StageInput
		res.Stages = append(res.Stages, StageResult{Name: StageInput, Status: metrics.StatusFailed, Error: p.deps.Redactor.Redact(err.Error())})
		return &StageError{Stage: StageInput, Err: err}
	}
	res.Request = req

	s := &stager{p: p, logger: logger, res: res}

	if err := s.stage(StageSource, req.Skip.Deploy, func() error {
		file, err := p.acquire(ctx, logger, in.Source)
		req.SourceFile = file
		return err
	}); err != nil {
		return err
	}

	if err := s.stage(StageDomain, req.Skip.Domain, func() error {
		reg, err := p.purchase(ctx, logger, req.Domain)
		res.Registration = reg
		return err
	}); err != nil {
		return err
	}

	if err := s.stage(StageDNS, req.Skip.DNS, func() error {
		return p.deps.Registrar.ConfigureDNS(ctx, req.Domain, req.ServerIP)
	}); err != nil {
		return err
	}

	if err := s.stage(StagePropagation, !req.WaitDNS || p.deps.DNS == nil, func() error {
		return p.deps.DNS.Wait(ctx, req.Domain, req.ServerIP)
	}); err != nil {
		return err
	}

	if err := s.stage(StageWebsite, req.Skip.Website, func() error {
		return p.deps.Panel.CreateWebsite(ctx, req.Domain)
	}); err != nil {
		return err
	}

	if err := s.stage(StageSSL, req.Skip.SSL, func() error {
		return p.deps.Panel.SetupSSL(ctx, req.Domain)
	}); err != nil {
		return err
	}

	if err := s.stage(StageDatabase, req.Skip.Database, func() error {
		return p.createDatabase(ctx, logger, req, res)
	}); err != nil {
		return err
	}

	return s.stage(StageDeploy, req.Skip.Deploy, func() error {
		d, err := p.deps.Deployer.Deploy(ctx, req.SourceFile, p.deps.Panel.WebRoot(req.Domain))
		res.Deployment = d
		return err
	})
}

// prepare validates the input and builds the request. A generated
// password is registered with the redactor before anything can log it.
func (p *Pipeline) prepare(in Input) (*Request, error) {
	domain := validation.NormalizeDomain(in.Domain)
	if err := validation.ValidateDomain(domain); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if !in.Skip.DNS || in.WaitDNS {
		if err := validation.ValidateIPv4(in.ServerIP); err != nil {
			return nil, fmt.Errorf("%w: server IP %q: %v", ErrInvalidInput, in.ServerIP, err)
		}
	}

	if !in.Skip.Website || !in.Skip.SSL || !in.Skip.Database {
		if dc, ok := p.deps.Panel.(panel.DependencyChecker); ok {
			if err := dc.CheckDependencies(); err != nil {
				return nil, err
			}
		}
	}

	req := &Request{
		Domain:   domain,
		ServerIP: in.ServerIP,
		Skip:     in.Skip,
		WaitDNS:  in.WaitDNS,
	}
	if !in.Skip.Database {
		password, err := GeneratePassword()
		if err != nil {
			return nil, err
		}
		p.deps.Redactor.Add(password)
		req.DBPassword = password
	}
	return req, nil
}

func (p *Pipeline) acquire(ctx context.Context, logger *slog.Logger, ref string) (string, error) {
	archiveURL, err := p.deps.Resolver.Resolve(ctx, ref)
	if err != nil {
		return "", err
	}
	logger.Info("source resolved", "url", archiveURL)
	return p.deps.Downloader.Download(ctx, archiveURL)
}

// purchase checks ownership first so an owned domain never prompts for a
// contact. Purchase itself re-checks before buying.
func (p *Pipeline) purchase(ctx context.Context, logger *slog.Logger, domain string) (*registrar.Registration, error) {
	reg := p.deps.Registrar

	owned, err := reg.IsOwnedByCaller(ctx, domain)
	if err != nil {
		return nil, err
	}
	if owned {
		logger.Info("domain already owned, skipping purchase", "domain", domain, "registrar", reg.Name())
		return &registrar.Registration{Domain: domain, AlreadyOwned: true}, nil
	}

	var contact registrar.ContactProfile
	if registrar.RequiresContact(reg) {
		contact, err = registrar.SelectContact(ctx, reg, p.opts.Contact, p.opts.DefaultEmail, p.deps.Prompt, logger)
		if err != nil {
			return nil, err
		}
	}

	registration, err := reg.Purchase(ctx, domain, contact)
	if err != nil {
		return nil, err
	}
	logger.Info("domain registered", "domain", domain, "registrar", reg.Name(), "id", registration.ID, "already_owned", registration.AlreadyOwned)
	return registration, nil
}

func (p *Pipeline) createDatabase(ctx context.Context, logger *slog.Logger, req *Request, res *Result) error {
	db, err := p.deps.Panel.CreateDatabase(ctx, req.Domain, req.DBPassword)
	if err != nil {
		return err
	}
	res.Database = db

	path, err := WriteRecord(p.opts.RecordsDir, CredentialsRecord{
		RunID:      res.RunID,
		Domain:     req.Domain,
		Registrar:  p.deps.Registrar.Name(),
		Panel:      p.deps.Panel.Name(),
		DBName:     db.Name,
		DBUser:     db.User,
		DBPassword: req.DBPassword,
		Timestamp:  p.now(),
	})
	if err != nil {
		return err
	}
	res.RecordPath = path
	logger.Info("credentials recorded", "path", path, "db_name", db.Name, "db_user", db.User)
	return nil
}

func (p *Pipeline) notify(ctx context.Context, logger *slog.Logger, res *Result, errMsg string, started, finished time.Time) {
	if p.opts.DefaultEmail == "" {
		return
	}

	summary := notify.Summary{
		RunID:       res.RunID,
		Registrar:   p.deps.Registrar.Name(),
		Panel:       p.deps.Panel.Name(),
		Succeeded:   res.FailedStage == "",
		FailedStage: res.FailedStage,
		Error:       errMsg,
		RecordFile:  res.RecordPath,
		StartedAt:   started,
		FinishedAt:  finished,
	}
	if res.Request != nil {
		summary.Domain = res.Request.Domain
	}
	if res.Database != nil {
		summary.Database = res.Database.Name
	}
	if res.Deployment != nil {
		summary.WebRoot = res.Deployment.WebRoot
	}
	for _, st := range res.Stages {
		summary.Stages = append(summary.Stages, notify.Stage{Name: st.Name, Status: st.Status, Duration: st.Duration})
	}

	if err := p.deps.Notifier.Notify(ctx, p.opts.DefaultEmail, summary); err != nil {
		logger.Warn("could not send run summary", "error", err)
	}
}

// stager runs one stage at a time and records its outcome
type stager struct {
	p      *Pipeline
	logger *slog.Logger
	res    *Result
}

func (s *stager) stage(name string, skip bool, fn func() error) error {
	if skip {
		s.logger.Info("stage skipped", "stage", name)
		s.res.Stages = append(s.res.Stages, StageResult{Name: name, Status: metrics.StatusSkipped})
		metrics.StageObserved(name, metrics.StatusSkipped, 0)
		return nil
	}

	s.logger.Info("stage started", "stage", name)
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	if err != nil {
		s.res.FailedStage = name
		s.res.Stages = append(s.res.Stages, StageResult{Name: name, Status: metrics.StatusFailed, Duration: elapsed, Error: s.p.deps.Redactor.Redact(err.Error())})
		metrics.StageObserved(name, metrics.StatusFailed, elapsed)
		s.logger.Error("stage failed", "stage", name, "error", err)
		return &StageError{Stage: name, Err: err}
	}

	s.res.Stages = append(s.res.Stages, StageResult{Name: name, Status: metrics.StatusOK, Duration: elapsed})
	metrics.StageObserved(name, metrics.StatusOK, elapsed)
	s.logger.Info("stage completed", "stage", name, "duration", elapsed.Round(time.Millisecond).String())
	return nil
}
