// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

// package dispatch runs a circuit's diagnostic commands on every mapped
// device and gathers the results. A failure on one mapping becomes error
// results for that mapping only; only store failures abort a dispatch.
package dispatch // import "github.com/toeirei/circuitdiag/internal/dispatch"

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/toeirei/circuitdiag/internal/commands"
	"github.com/toeirei/circuitdiag/internal/credentials"
	"github.com/toeirei/circuitdiag/internal/db"
	"github.com/toeirei/circuitdiag/internal/i18n"
	"github.com/toeirei/circuitdiag/internal/metrics"
	"github.com/toeirei/circuitdiag/internal/model"
	"github.com/toeirei/circuitdiag/internal/session"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CredentialResolver yields the login for a user on a device.
type CredentialResolver interface {
	Resolve(ctx context.Context, userID string, device model.Device) (credentials.Credential, error)
}

// RemoteSession is an open connection commands run on.
type RemoteSession interface {
	Execute(ctx context.Context, command string) (session.Output, error)
	Broken() bool
	Close() error
}

// SessionOpener opens one RemoteSession per mapping.
type SessionOpener interface {
	Open(ctx context.Context, device model.Device, cred credentials.Credential) (RemoteSession, error)
}

type connectorOpener struct{ c *session.Connector }

func (o connectorOpener) Open(ctx context.Context, device model.Device, cred credentials.Credential) (RemoteSession, error) {
	s, err := o.c.Open(ctx, device, cred)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ConnectorOpener adapts a session.Connector to SessionOpener.
func ConnectorOpener(c *session.Connector) SessionOpener { return connectorOpener{c: c} }

// Coordinator runs dispatches.
type Coordinator struct {
	store    db.MappingReader
	resolver CredentialResolver
	opener   SessionOpener
	cfg      Config
	log      *zap.Logger
	metrics  *metrics.Collectors
	t        func(id string, args ...any) string
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(c *Coordinator) { c.log = l } }

// WithMetrics sets the collectors dispatches report to.
func WithMetrics(m *metrics.Collectors) Option { return func(c *Coordinator) { c.metrics = m } }

// WithTranslator replaces the function rendering user-facing messages.
func WithTranslator(t func(id string, args ...any) string) Option {
	return func(c *Coordinator) { c.t = t }
}

// New returns a Coordinator reading mappings from store.
func New(store db.MappingReader, resolver CredentialResolver, opener SessionOpener, cfg Config, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    store,
		resolver: resolver,
		opener:   opener,
		cfg:      cfg.withDefaults(),
		log:      zap.NewNop(),
		t:        i18n.T,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.Named("dispatch")
	return c
}

// Dispatch runs every mapping of circuitID as userID. A circuit without
// mappings yields a Report with NotFound set and a nil error.
func (c *Coordinator) Dispatch(ctx context.Context, circuitID, userID string) (*Report, error) {
	start := time.Now()
	report := &Report{RunID: uuid.NewString(), CircuitID: circuitID, UserID: userID, StartedAt: start}
	log := c.log.With(zap.String("run_id", report.RunID), zap.String("circuit", circuitID), zap.String("user", userID))

	mappings, err := c.store.MappingsForCircuit(ctx, circuitID)
	if err != nil {
		return nil, fmt.Errorf("loading mappings for circuit %s: %w", circuitID, err)
	}
	if len(mappings) == 0 {
		report.NotFound = true
		report.Elapsed = time.Since(start)
		c.metrics.ObserveDispatch(false, report.Elapsed)
		log.Info("no mappings for circuit")
		return report, nil
	}
	report.Contact = firstContact(mappings)
	log.Info("dispatch started", zap.Int("mappings", len(mappings)), zap.Int("concurrency", c.cfg.Concurrency))

	// Each mapping owns its slot, so order is kept whatever finishes first.
	report.Groups = make([]Group, len(mappings))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for i, m := range mappings {
		g.Go(func() error {
			grp, err := c.runMapping(gctx, userID, m, log)
			if err != nil {
				return err
			}
			report.Groups[i] = grp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report.Elapsed = time.Since(start)
	for _, res := range report.Results() {
		c.metrics.ObserveResult(string(res.Status), res.Truncated)
	}
	c.metrics.ObserveDispatch(true, report.Elapsed)
	log.Info("dispatch finished",
		zap.Int("results", len(report.Results())),
		zap.Int("failed", report.Failed()),
		zap.Duration("elapsed", report.Elapsed))
	return report, nil
}

func firstContact(mappings []model.CommandMapping) *model.Contact {
	for _, m := range mappings {
		if !m.Contact.IsEmpty() {
			ct := m.Contact
			return &ct
		}
	}
	return nil
}

// runMapping produces the results of one mapping. Only store failures are
// returned as errors.
func (c *Coordinator) runMapping(ctx context.Context, userID string, m model.CommandMapping, parent *zap.Logger) (Group, error) {
	grp := Group{Mapping: m}
	log := parent.With(zap.Int("mapping", m.ID))

	device, err := c.store.DeviceByID(ctx, m.DeviceID)
	if errors.Is(err, db.ErrNotFound) {
		grp.DeviceLabel = fmt.Sprintf("#%d", m.DeviceID)
		log.Warn("mapping references a missing device", zap.Int("device_id", m.DeviceID))
		grp.Results = []model.ExecutionResult{c.failure(m, grp.DeviceLabel, m.Command, c.t("dispatch.error.device_missing", m.DeviceID), 0)}
		return grp, nil
	}
	if err != nil {
		return grp, fmt.Errorf("loading device %d for mapping %d: %w", m.DeviceID, m.ID, err)
	}
	grp.DeviceLabel = device.Label()
	log = log.With(zap.String("device", device.Label()))

	cmds := commands.Parse(m.Command)
	if len(cmds) == 0 {
		grp.Skipped = true
		log.Info("mapping has no commands, skipping")
		return grp, nil
	}
	joined := commands.Join(cmds)

	start := time.Now()
	cred, err := c.resolver.Resolve(ctx, userID, *device)
	if err != nil {
		var ce *credentials.ConfigurationError
		if !errors.As(err, &ce) {
			return grp, err
		}
		log.Warn("credentials not usable", zap.Stringer("kind", ce.Kind))
		grp.Results = []model.ExecutionResult{c.failure(m, grp.DeviceLabel, joined, c.configurationMessage(ce), time.Since(start))}
		return grp, nil
	}

	sess, err := c.opener.Open(ctx, *device, cred)
	if err != nil {
		log.Warn("session could not be opened", zap.Error(err))
		grp.Results = []model.ExecutionResult{c.failure(m, grp.DeviceLabel, joined, c.sessionMessage(device.Label(), err), time.Since(start))}
		return grp, nil
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Debug("closing session", zap.Error(err))
		}
	}()

	for i, cmd := range cmds {
		if ctx.Err() != nil || sess.Broken() {
			reason := c.t("dispatch.error.skipped", device.Label())
			if ctx.Err() != nil {
				reason = c.t("dispatch.error.cancelled")
			}
			for _, rest := range cmds[i:] {
				grp.Results = append(grp.Results, c.failure(m, grp.DeviceLabel, rest, reason, 0))
			}
			log.Warn("skipping remaining commands", zap.Int("skipped", len(cmds)-i))
			break
		}
		grp.Results = append(grp.Results, c.execute(ctx, sess, m, grp.DeviceLabel, cmd, log))
	}
	return grp, nil
}

func (c *Coordinator) execute(ctx context.Context, sess RemoteSession, m model.CommandMapping, label, cmd string, log *zap.Logger) model.ExecutionResult {
	out, err := sess.Execute(ctx, cmd)
	res := model.ExecutionResult{
		MappingID:   m.ID,
		DeviceLabel: label,
		Command:     cmd,
		Status:      model.StatusOK,
		Elapsed:     out.Elapsed,
		ExitStatus:  out.ExitStatus,
	}
	text := out.Combined()
	if err != nil {
		res.Status = model.StatusError
		var timeout *session.CommandTimeoutError
		switch {
		case errors.As(err, &timeout):
			text = c.t("dispatch.error.command_timeout", timeout.Timeout, text)
		default:
			msg := c.t("dispatch.error.transport", label, err)
			if text != "" {
				msg += "\n" + text
			}
			text = msg
		}
		log.Warn("command failed", zap.String("command", cmd), zap.Error(err))
	}
	res.Output, res.Truncated = Truncate(text, c.cfg)
	if res.Truncated {
		log.Info("output truncated", zap.String("command", cmd), zap.Int("chars", len([]rune(text))))
	}
	return res
}

func (c *Coordinator) failure(m model.CommandMapping, label, cmd, msg string, elapsed time.Duration) model.ExecutionResult {
	return model.ExecutionResult{
		MappingID:   m.ID,
		DeviceLabel: label,
		Command:     cmd,
		Output:      msg,
		Status:      model.StatusError,
		Elapsed:     elapsed,
	}
}

func (c *Coordinator) configurationMessage(ce *credentials.ConfigurationError) string {
	switch ce.Kind {
	case credentials.MissingSharedIdentity:
		return c.t("dispatch.error.missing_shared_identity", ce.Device)
	case credentials.EmptyIdentity:
		return c.t("dispatch.error.empty_identity", ce.Device)
	default:
		return ce.Error()
	}
}

func (c *Coordinator) sessionMessage(label string, err error) string {
	var (
		re *session.ReachabilityError
		ae *session.AuthenticationError
	)
	switch {
	case errors.As(err, &re):
		return c.t("dispatch.error.unreachable", label, re.Attempts, re.Err)
	case errors.As(err, &ae):
		tried := "none"
		if len(ae.Methods) > 0 {
			tried = strings.Join(ae.Methods, ", ")
		}
		return c.t("dispatch.error.auth_failed", label, tried, ae.Err)
	default:
		return c.t("dispatch.error.session", label, err)
	}
}
