// Package shell is the line-oriented front end over the operation coordinator.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"smart-docqa-client/internal/pkg/logger"
	"smart-docqa-client/internal/service"
	"smart-docqa-client/pkg/answer"
	"smart-docqa-client/pkg/events"
	"smart-docqa-client/pkg/session"
	"smart-docqa-client/pkg/store"

	"github.com/fatih/color"
)

const (
	defaultLogLimit = 10
	logScanWindow   = 500
)

const helpText = `Commands:
  login [username]       sign in (password is read without echo)
  logout                 sign out and clear the session
  select <paths...>      choose files to upload
  upload [paths...]      upload the selection (or the given files)
  ask <question>         query the documents (alias: query)
  show                   print the last answer and sources
  status                 show connection and session details
  logs [n]               show recent warnings and errors
  help                   this text
  quit                   leave (alias: exit)`

var (
	errorColor  = color.New(color.FgRed)
	alertColor  = color.New(color.FgYellow)
	okColor     = color.New(color.FgGreen)
	infoColor   = color.New(color.FgCyan)
	sourceColor = color.New(color.FgMagenta, color.Bold)
)

// Subscriber delivers coordinator events
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan events.BaseEvent, error)
}

// Options configures a Shell. Sessions and Events may be nil.
type Options struct {
	BaseURL    string
	Operations service.IOperationService
	Sessions   *session.Manager
	Events     Subscriber
	Logger     logger.ILogger

	In  io.Reader
	Out io.Writer

	// ReadPassword reads a secret without echo; nil reads the next input line
	ReadPassword func() (string, error)
	// Async runs operations in the background so the prompt stays usable while busy
	Async bool
}

type Shell struct {
	opts    Options
	scanner *bufio.Scanner

	outMu sync.Mutex
	wg    sync.WaitGroup
}

func New(opts Options) *Shell {
	return &Shell{
		opts:    opts,
		scanner: bufio.NewScanner(opts.In),
	}
}

// Run restores the stored session and reads commands until quit or end of input.
// Background operations are awaited before it returns.
func (s *Shell) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.opts.Events != nil {
		stream, err := s.opts.Events.Subscribe(ctx)
		if err != nil {
			return fmt.Errorf("subscribe to events: %w", err)
		}
		go s.watch(stream)
	}

	if err := s.opts.Operations.Restore(ctx); err != nil {
		s.printf(errorColor, "Could not restore the previous session: %v\n", err)
	} else if s.opts.Operations.Snapshot().Token != "" {
		s.printf(okColor, "Welcome back, session restored.\n")
	}

	s.printf(infoColor, "Connected to %s. Type 'help' for commands.\n", s.opts.BaseURL)

	for {
		s.prompt("> ")
		if !s.scanner.Scan() {
			break
		}
		if quit := s.Execute(ctx, s.scanner.Text()); quit {
			break
		}
	}

	s.wg.Wait()
	return s.scanner.Err()
}

// Execute runs one command line and reports whether the shell should stop
func (s *Shell) Execute(ctx context.Context, line string) bool {
	cmd, rest := splitCommand(line)
	switch cmd {
	case "":
	case "help", "?":
		s.printf(nil, "%s\n", helpText)
	case "quit", "exit":
		return true
	case "login":
		s.login(ctx, rest)
	case "logout":
		s.logout(ctx)
	case "select":
		s.selectFiles(strings.Fields(rest))
	case "upload":
		s.upload(ctx, strings.Fields(rest))
	case "ask", "query":
		s.ask(ctx, rest)
	case "show":
		s.show(s.opts.Operations.Snapshot())
	case "status":
		s.status()
	case "logs":
		s.logs(rest)
	default:
		s.printf(alertColor, "Unknown command %q. Type 'help' for commands.\n", cmd)
	}
	return false
}

func (s *Shell) login(ctx context.Context, rest string) {
	if !s.opts.Operations.RequiresAuth() {
		s.printf(alertColor, "This service does not require login.\n")
		return
	}

	username := strings.TrimSpace(rest)
	if username == "" {
		s.prompt("Username: ")
		if !s.scanner.Scan() {
			return
		}
		username = strings.TrimSpace(s.scanner.Text())
	}

	s.prompt("Password: ")
	password, err := s.readPassword()
	if err != nil {
		s.printf(errorColor, "Could not read password: %v\n", err)
		return
	}

	s.opts.Operations.SetLoginForm(username, password)
	s.run(func() {
		err := s.opts.Operations.Login(ctx)
		s.report(err, func() {
			s.printf(okColor, "Logged in as %s.\n", username)
		})
	})
}

func (s *Shell) logout(ctx context.Context) {
	err := s.opts.Operations.Logout(ctx)
	switch {
	case errors.Is(err, service.ErrAuthDisabled):
		s.printf(alertColor, "This service does not require login.\n")
	case err != nil:
		s.report(err, nil)
	default:
		s.printf(okColor, "Logged out.\n")
	}
}

func (s *Shell) selectFiles(paths []string) bool {
	if err := s.opts.Operations.SelectFiles(paths...); err != nil {
		s.report(err, nil)
		return false
	}
	if len(paths) == 0 {
		s.printf(nil, "Selection cleared.\n")
		return true
	}
	s.printf(nil, "Selected %d file(s).\n", len(paths))
	return true
}

func (s *Shell) upload(ctx context.Context, paths []string) {
	if !s.authenticated() {
		return
	}
	if len(paths) > 0 && !s.selectFiles(paths) {
		return
	}

	s.run(func() {
		err := s.opts.Operations.Upload(ctx)
		s.report(err, func() {
			s.printf(okColor, "%s\n", s.opts.Operations.Snapshot().Notice)
		})
	})
}

func (s *Shell) ask(ctx context.Context, text string) {
	if !s.authenticated() {
		return
	}

	if err := s.opts.Operations.SetQueryText(strings.TrimSpace(text)); err != nil {
		s.report(err, nil)
		return
	}
	s.run(func() {
		err := s.opts.Operations.Query(ctx)
		s.report(err, func() {
			s.show(s.opts.Operations.Snapshot())
		})
	})
}

// authenticated gates upload and query behind login when the service requires it
func (s *Shell) authenticated() bool {
	if !s.opts.Operations.RequiresAuth() || s.opts.Operations.Snapshot().Token != "" {
		return true
	}
	s.printf(alertColor, "Login first!\n")
	return false
}

func (s *Shell) show(snap store.Session) {
	if snap.Answer.Kind == "" && len(snap.Results) == 0 {
		s.printf(nil, "No answer yet.\n")
		return
	}

	s.outMu.Lock()
	defer s.outMu.Unlock()

	out := s.opts.Out
	switch snap.Answer.Kind {
	case "":
	case answer.KindNone:
		fmt.Fprintln(out, "Answer: (none)")
	default:
		fmt.Fprintln(out, "Answer:")
		fmt.Fprintln(out, snap.Answer.Render())
	}

	if len(snap.Results) > 0 {
		fmt.Fprintln(out, "\nSources:")
	}
	for i, r := range snap.Results {
		sourceColor.Fprintf(out, "%d. %s", i+1, r.Source)
		fmt.Fprintf(out, " (score: %.4f)\n", r.Score)
		fmt.Fprintf(out, "   %s\n", strings.ReplaceAll(r.Text, "\n", "\n   "))
	}
}

func (s *Shell) status() {
	snap := s.opts.Operations.Snapshot()

	var b strings.Builder
	fmt.Fprintf(&b, "Service:   %s\n", s.opts.BaseURL)
	if !s.opts.Operations.RequiresAuth() {
		b.WriteString("Auth:      disabled\n")
	} else {
		b.WriteString("Auth:      required\n")
		fmt.Fprintf(&b, "Session:   %s\n", s.describeSession(snap))
	}

	state := snap.State
	if snap.IsBusy() {
		state = fmt.Sprintf("%s (%s)", snap.State, strings.ToLower(snap.Operation))
	}
	fmt.Fprintf(&b, "State:     %s\n", state)

	names := make([]string, 0, len(snap.Selection))
	for _, f := range snap.Selection {
		names = append(names, f.Name)
	}
	if len(names) == 0 {
		b.WriteString("Selected:  none\n")
	} else {
		fmt.Fprintf(&b, "Selected:  %s\n", strings.Join(names, ", "))
	}
	if snap.Error != "" {
		fmt.Fprintf(&b, "Last error: %s\n", snap.Error)
	}

	s.printf(nil, "%s", b.String())
}

func (s *Shell) describeSession(snap store.Session) string {
	if snap.Token == "" {
		return "not logged in"
	}
	if s.opts.Sessions == nil {
		return "logged in"
	}

	claims, err := s.opts.Sessions.Claims()
	if err != nil {
		return "logged in"
	}

	desc := "logged in"
	if claims.Subject != "" {
		desc += " as " + claims.Subject
	}
	if claims.ExpiresAt != nil {
		if claims.Expired(time.Now()) {
			desc += fmt.Sprintf(" (expired %s)", claims.ExpiresAt.Local().Format(time.RFC822))
		} else {
			desc += fmt.Sprintf(" (expires %s)", claims.ExpiresAt.Local().Format(time.RFC822))
		}
	}
	return desc
}

func (s *Shell) logs(rest string) {
	limit := defaultLogLimit
	if n, err := strconv.Atoi(strings.TrimSpace(rest)); err == nil && n > 0 {
		limit = n
	}

	entries, err := s.opts.Logger.GetLogs("", logScanWindow, 0)
	if err != nil {
		s.printf(errorColor, "Could not read logs: %v\n", err)
		return
	}

	shown := 0
	for _, e := range entries {
		if e.Level != "ERROR" && e.Level != "WARN" {
			continue
		}
		line := fmt.Sprintf("%s %-5s [%s] %s", e.Timestamp, e.Level, e.Module, e.Message)
		if e.Error != "" {
			line += ": " + e.Error
		}
		s.printf(nil, "%s\n", line)
		shown++
		if shown == limit {
			break
		}
	}
	if shown == 0 {
		s.printf(nil, "No warnings or errors logged.\n")
	}
}

// run executes op inline, or in the background when the shell is async
func (s *Shell) run(op func()) {
	if !s.opts.Async {
		op()
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		op()
	}()
}

func (s *Shell) report(err error, onSuccess func()) {
	var ve *service.ValidationError
	var opErr *service.OperationError

	switch {
	case err == nil:
		if onSuccess != nil {
			onSuccess()
		}
	case errors.As(err, &ve):
		s.printf(alertColor, "%s\n", ve.Message)
	case errors.Is(err, service.ErrBusy):
		s.printf(alertColor, "Busy: wait for the current operation to finish.\n")
	case errors.Is(err, service.ErrDiscarded):
		// the session moved on; nothing to show
	case errors.As(err, &opErr):
		s.printf(errorColor, "%s\n", opErr.Message)
	default:
		s.printf(errorColor, "%v\n", err)
	}
}

// watch prints progress for background operations
func (s *Shell) watch(stream <-chan events.BaseEvent) {
	for event := range stream {
		switch event.EventType() {
		case events.TypeOperationStarted:
			if s.opts.Async {
				s.printf(infoColor, "%s in progress...\n", strings.ToLower(event.String("operation")))
			}
		case events.TypeOperationDiscarded:
			s.printf(infoColor, "Dropped a late %s result.\n", strings.ToLower(event.String("operation")))
		}
	}
}

func (s *Shell) readPassword() (string, error) {
	if s.opts.ReadPassword != nil {
		password, err := s.opts.ReadPassword()
		s.printf(nil, "\n")
		return password, err
	}
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return s.scanner.Text(), nil
}

func (s *Shell) prompt(text string) {
	s.printf(nil, "%s", text)
}

func (s *Shell) printf(c *color.Color, format string, args ...interface{}) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	if c == nil {
		fmt.Fprintf(s.opts.Out, format, args...)
		return
	}
	c.Fprintf(s.opts.Out, format, args...)
}

func splitCommand(line string) (string, string) {
	line = strings.TrimSpace(line)
	cmd, rest, _ := strings.Cut(line, " ")
	return strings.ToLower(cmd), strings.TrimSpace(rest)
}
