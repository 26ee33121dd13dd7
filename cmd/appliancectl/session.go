package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/muurk/appliancectl/internal/appliance"
	"github.com/muurk/appliancectl/internal/config"
	"github.com/muurk/appliancectl/internal/logging"
	"github.com/muurk/appliancectl/internal/restapi"
	"github.com/muurk/appliancectl/internal/retry"
)

// PasswordEnvVar supplies the password when --password is not given.
const PasswordEnvVar = "APPLIANCECTL_PASSWORD"

type globalFlags struct {
	profile     string
	host        string
	port        int
	user        string
	password    string
	insecure    bool
	logLevel    string
	noRetry     bool
	metricsFile string
	trace       bool
}

var flags globalFlags

func (f *globalFlags) register(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.StringVar(&f.profile, "profile", "", "Appliance profile to use (default profile when empty)")
	pf.StringVar(&f.host, "host", "", "Appliance management address")
	pf.IntVar(&f.port, "port", 0, "Appliance management port (default 443)")
	pf.StringVar(&f.user, "user", "", "Management username (default admin)")
	pf.StringVar(&f.password, "password", "", "Management password (or "+PasswordEnvVar+")")
	pf.BoolVar(&f.insecure, "insecure", false, "Skip TLS certificate verification")
	pf.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error (or "+logging.LogLevelEnvVar+")")
	pf.BoolVar(&f.noRetry, "no-retry", false, "Fail on the first error instead of retrying")
	pf.StringVar(&f.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")
	pf.BoolVar(&f.trace, "trace", false, "Print OpenTelemetry spans to stderr")
}

// connection is the resolved target of a run.
type connection struct {
	Profile  string
	Host     string
	Port     int
	User     string
	Insecure bool
}

// resolveConnection merges the selected profile with command line overrides.
func resolveConnection(reg *config.Registry, f globalFlags) (connection, error) {
	var conn connection
	if p, name := reg.ResolveProfile(f.profile); p != nil {
		conn = connection{Profile: name, Host: p.Host, Port: p.Port, User: p.Username, Insecure: p.Insecure}
	} else if f.profile != "" {
		return conn, fmt.Errorf("profile %q not found", f.profile)
	}

	if f.host != "" {
		conn.Host = f.host
	}
	if f.port != 0 {
		conn.Port = f.port
	}
	if f.user != "" {
		conn.User = f.user
	}
	conn.Insecure = conn.Insecure || f.insecure

	if conn.Host == "" {
		return conn, errors.New("no appliance host: pass --host or add a profile")
	}
	if conn.Port == 0 {
		conn.Port = restapi.DefaultPort
	}
	if conn.User == "" {
		conn.User = restapi.DefaultUsername
	}
	return conn, nil
}

// resolvePassword takes the password from the flag, then the environment,
// then prompt. prompt may be nil when no terminal is attached.
func resolvePassword(flagValue string, getenv func(string) string, prompt func() (string, error)) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if v := getenv(PasswordEnvVar); v != "" {
		return v, nil
	}
	if prompt == nil {
		return "", fmt.Errorf("no password: pass --password or set %s", PasswordEnvVar)
	}
	return prompt()
}

func terminalPrompt(label string, out io.Writer) func() (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil
	}
	return func() (string, error) {
		fmt.Fprintf(out, "%s: ", label)
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}
}

// session is everything a command needs to talk to one appliance.
type session struct {
	conn     connection
	prefs    config.RetryPrefs
	client   *restapi.Client
	retrier  *retry.Retrier
	app      *appliance.Appliance
	registry *config.Registry
}

func newSession(cmd *cobra.Command) (*session, error) {
	reg, err := config.LoadRegistry()
	if err != nil {
		return nil, err
	}
	conn, err := resolveConnection(reg, flags)
	if err != nil {
		return nil, err
	}
	password, err := resolvePassword(flags.password, os.Getenv, terminalPrompt(conn.User+"@"+conn.Host+" password", cmd.ErrOrStderr()))
	if err != nil {
		return nil, err
	}

	prefs := reg.RetryPreferences()
	retrier := retry.New(
		retry.WithImmediateFail(prefs.ImmediateFail || flags.noRetry),
		retry.WithLogger(logging.Named("retry")),
	)

	client := restapi.NewClient(conn.Host, conn.Port)
	client.SetAuth(conn.User, password)
	client.SetInsecureSkipVerify(conn.Insecure)
	client.SetLogger(logging.Named("restapi"))
	client.SetRetry(prefs.Request, retrier)

	app := appliance.New(client,
		appliance.WithRetrier(retrier),
		appliance.WithLogger(logging.Named("appliance")),
		appliance.WithReadyPolicy(prefs.Ready),
	)

	if conn.Profile != "" {
		reg.TouchProfile(conn.Profile)
		if err := reg.Save(); err != nil {
			logging.Warn("Failed to update profile", zap.String("profile", conn.Profile), zap.Error(err))
		}
	}

	logging.Debug("Session ready",
		zap.String("host", conn.Host),
		zap.Int("port", conn.Port),
		zap.String("user", conn.User),
		zap.Bool("immediate_fail", retrier.ImmediateFail()),
	)
	return &session{conn: conn, prefs: prefs, client: client, retrier: retrier, app: app, registry: reg}, nil
}

func (s *session) target() string {
	return fmt.Sprintf("%s:%d", s.conn.Host, s.conn.Port)
}

