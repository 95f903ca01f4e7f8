package respond

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"logwarden/internal/detect"
)

// DefaultAlertCooldown is the minimum interval between outgoing alerts.
const DefaultAlertCooldown = 30 * time.Second

// EmailConfig configures the SMTP alerter. Password is resolved by the
// config layer from the environment variable PasswordEnv names; it never
// appears in the YAML file.
type EmailConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	Username    string        `yaml:"username"`
	PasswordEnv string        `yaml:"password_env"`
	Password    string        `yaml:"-"`
	From        string        `yaml:"from"`
	To          []string      `yaml:"to"`
	Cooldown    time.Duration `yaml:"cooldown"`
}

// EmailAlerter sends batch alert emails over SMTP. An incomplete
// configuration disables the alerter at construction instead of failing
// every call, and a rate limiter suppresses alert storms.
type EmailAlerter struct {
	cfg     EmailConfig
	enabled bool
	limiter *rate.Limiter
	logger  *zap.Logger

	// sendFn performs the SMTP delivery. Replaced in tests.
	sendFn func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailAlerter validates the configuration. Missing host, sender, or
// recipients downgrade the alerter to disabled with a warning.
func NewEmailAlerter(cfg EmailConfig, logger *zap.Logger) *EmailAlerter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultAlertCooldown
	}

	enabled := cfg.Enabled
	if enabled && (cfg.Host == "" || cfg.From == "" || len(cfg.To) == 0) {
		logger.Warn("email alerter disabled: incomplete configuration",
			zap.String("host", cfg.Host),
			zap.String("from", cfg.From),
			zap.Int("recipients", len(cfg.To)))
		enabled = false
	}

	return &EmailAlerter{
		cfg:     cfg,
		enabled: enabled,
		limiter: rate.NewLimiter(rate.Every(cfg.Cooldown), 1),
		logger:  logger,
		sendFn:  smtp.SendMail,
	}
}

// Enabled reports whether the alerter passed its configuration check.
func (a *EmailAlerter) Enabled() bool {
	return a.enabled
}

// Alert sends one email covering the whole batch. Delivery happens on a
// goroutine so the caller never blocks on SMTP; delivery errors are logged,
// not returned. Alerts inside the cooldown window are dropped.
func (a *EmailAlerter) Alert(ctx context.Context, dets []detect.Detection) error {
	if !a.enabled || len(dets) == 0 {
		return nil
	}
	if !a.limiter.Allow() {
		a.logger.Debug("alert suppressed by cooldown", zap.Int("detections", len(dets)))
		return nil
	}

	msg := a.composeMessage(dets)
	addr := fmt.Sprintf("%s:%d", a.cfg.Host, a.cfg.Port)
	var auth smtp.Auth
	if a.cfg.Username != "" {
		auth = smtp.PlainAuth("", a.cfg.Username, a.cfg.Password, a.cfg.Host)
	}

	go func() {
		if err := a.sendFn(addr, auth, a.cfg.From, a.cfg.To, msg); err != nil {
			a.logger.Error("alert delivery failed",
				zap.String("smtp", addr), zap.Error(err))
			return
		}
		a.logger.Info("alert sent", zap.Int("detections", len(dets)))
	}()
	return nil
}

func (a *EmailAlerter) composeMessage(dets []detect.Detection) []byte {
	highest := detect.SeverityLow
	for _, det := range dets {
		if det.Severity.Rank() > highest.Rank() {
			highest = det.Severity
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", a.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(a.cfg.To, ", "))
	fmt.Fprintf(&b, "Subject: [logwarden] %d detection(s), highest severity %s\r\n", len(dets), highest)
	b.WriteString("\r\n")

	for _, det := range dets {
		fmt.Fprintf(&b, "[%s] %s\r\n", det.Severity, det.Rule)
		fmt.Fprintf(&b, "  source:  %s\r\n", det.IP)
		fmt.Fprintf(&b, "  time:    %s\r\n", det.Time)
		fmt.Fprintf(&b, "  payload: %s\r\n", det.Payload)
		if det.IOCHit {
			b.WriteString("  reputation: known-malicious source\r\n")
		}
		b.WriteString("\r\n")
	}
	return []byte(b.String())
}
