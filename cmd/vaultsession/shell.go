package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/jrsteele09/go-vault-session/activity"
	apperrors "github.com/jrsteele09/go-vault-session/internal/errors"
	"github.com/jrsteele09/go-vault-session/session"
	"github.com/peterh/liner"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

const helpText = `Commands:
  login <username>       authenticate (prompts for password)
  get <path>             GET an authenticated path, e.g. get /api/files
  post <path> <json>     POST a JSON body to an authenticated path
  whoami                 show the current user
  status                 show session state
  metrics                show session counters
  logout                 end the session
  quit                   exit`

const loggedOutNotice = "You are logged out. Type 'login <username>' to sign in again."

// shell is the terminal front end. Every line typed counts as a key press.
// Notices raised off the prompt goroutine are queued and printed before the
// next prompt so they never interleave with liner's terminal handling.
type shell struct {
	line    *liner.State
	bus     *activity.Bus
	metrics prometheus.Gatherer
	manager *session.Manager
	notices chan string
}

func newShell(bus *activity.Bus, metrics prometheus.Gatherer) *shell {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	return &shell{line: line, bus: bus, metrics: metrics, notices: make(chan string, 8)}
}

func (s *shell) Close() error {
	return s.line.Close()
}

// loggedOut runs on a timer goroutine; it must not block or touch the terminal.
func (s *shell) loggedOut() {
	s.notify(loggedOutNotice)
}

func (s *shell) notify(msg string) {
	select {
	case s.notices <- msg:
	default:
		log.Debug().Str("notice", msg).Msg("Dropped shell notice")
	}
}

func (s *shell) flushNotices(w io.Writer) {
	for {
		select {
		case msg := <-s.notices:
			fmt.Fprintln(w, msg)
		default:
			return
		}
	}
}

func (s *shell) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		s.flushNotices(os.Stdout)
		input, err := s.line.Prompt("vault> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println()
				return nil
			}
			return err
		}
		s.bus.Publish(activity.KeyPress)

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		s.line.AppendHistory(input)

		fields := strings.Fields(input)
		switch fields[0] {
		case "quit", "exit":
			return nil
		case "help":
			fmt.Println(helpText)
		case "login":
			s.login(ctx, fields[1:])
		case "logout":
			s.manager.Logout()
		case "status":
			s.status()
		case "metrics":
			if err := writeMetrics(os.Stdout, s.metrics); err != nil {
				fmt.Printf("metrics unavailable: %v\n", err)
			}
		case "whoami":
			s.request(ctx, http.MethodGet, "/api/user-info", nil)
		case "get":
			if len(fields) != 2 {
				fmt.Println("usage: get <path>")
				continue
			}
			s.request(ctx, http.MethodGet, fields[1], nil)
		case "post":
			path, body, ok := parsePost(input)
			if !ok {
				fmt.Println("usage: post <path> <json>")
				continue
			}
			s.request(ctx, http.MethodPost, path, strings.NewReader(body))
		default:
			fmt.Printf("unknown command %q; type 'help'\n", fields[0])
		}
	}
	return nil
}

func (s *shell) login(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Println("usage: login <username>")
		return
	}
	password, err := s.line.PasswordPrompt("password: ")
	if err != nil {
		return
	}
	s.bus.Publish(activity.KeyPress)

	user, err := s.manager.Login(ctx, args[0], password)
	if err != nil {
		return
	}
	fmt.Printf("Logged in as %s\n", user.Username)
}

func (s *shell) status() {
	user, live := s.manager.User()
	if !live {
		fmt.Println("state: logged out")
		return
	}
	fmt.Printf("state: %s\nuser: %s\nlast activity: %s\n", s.manager.State(), user.Username, s.manager.LastActivity().Format("15:04:05"))
}

func (s *shell) request(ctx context.Context, method, path string, body io.Reader) {
	resp, err := s.manager.Request(ctx, method, path, body)
	if err != nil {
		switch {
		case apperrors.Is(err, apperrors.ErrUnauthenticated):
			fmt.Println("not logged in")
		case apperrors.Is(err, apperrors.ErrSessionExpired):
			fmt.Println("session expired")
		default:
			fmt.Printf("request failed: %v\n", err)
		}
		return
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	fmt.Printf("%s\n%s\n", resp.Status, strings.TrimSpace(string(payload)))
}

// parsePost splits "post <path> <json>" into its path and body. The body
// keeps its inner whitespace.
func parsePost(input string) (path, body string, ok bool) {
	_, rest, _ := strings.Cut(strings.TrimSpace(input), " ")
	path, body, _ = strings.Cut(strings.TrimSpace(rest), " ")
	body = strings.TrimSpace(body)
	if path == "" || body == "" {
		return "", "", false
	}
	return path, body, true
}

// writeMetrics prints every gathered sample as "name{labels} value".
func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
			}
			name := mf.GetName()
			if len(labels) > 0 {
				name += "{" + strings.Join(labels, ",") + "}"
			}

			var value float64
			switch {
			case m.GetCounter() != nil:
				value = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				value = m.GetGauge().GetValue()
			default:
				continue
			}
			if _, err := fmt.Fprintf(w, "%s %g\n", name, value); err != nil {
				return err
			}
		}
	}
	return nil
}
