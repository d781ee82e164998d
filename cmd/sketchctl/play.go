package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/sketchduel/internal/connection"
	"github.com/rickgao/sketchduel/internal/errclass"
	"github.com/rickgao/sketchduel/internal/model"
	"github.com/rickgao/sketchduel/internal/session"
)

// tiebreakStep is how long each tied word is shown before the next.
const tiebreakStep = 250 * time.Millisecond

const helpText = `commands:
  status              show room and connection details
  start               start word voting (host)
  vote WORD           vote for a word
  draw FILE           stage an image, submitted automatically when time runs out
  submit [FILE]       submit FILE or the staged image
  finish              end the drawing phase (host)
  again               start a new round (host)
  retry               reconnect after a failure
  create | join CODE | resume
                      enter a room again after leaving
  leave               leave the room
  quit                exit`

// player runs the interactive loop for one session.
type player struct {
	session *session.Session
	in      io.Reader
	logger  *slog.Logger
	name    string

	outMu sync.Mutex
	out   io.Writer

	mu       sync.Mutex
	staged   string // Data URL submitted on auto-submit
	phase    model.Phase
	animated uint64 // Tiebreak key already animated
}

func newPlayer(s *session.Session, in io.Reader, out io.Writer, logger *slog.Logger) *player {
	if logger == nil {
		logger = slog.Default()
	}
	return &player{
		session: s,
		in:      in,
		out:     out,
		logger:  logger,
		name:    s.Identity().PlayerName,
	}
}

func (p *player) printf(format string, args ...any) {
	p.outMu.Lock()
	defer p.outMu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

// run reads commands until stdin closes, quit is entered or ctx ends.
func (p *player) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	unsubs := []func(){
		p.session.Subscribe(func(st model.GameState) { p.onState(ctx, st) }),
		p.session.SubscribeStatus(p.onStatus),
		p.session.SubscribeErrors(p.onError),
		p.session.OnAutoSubmit(func() { g.Go(func() error { p.autoSubmit(ctx); return nil }) }),
	}
	defer func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}()

	lines := make(chan string)
	go scanLines(p.in, lines)

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case n, ok := <-p.session.Notices():
				if !ok {
					return nil
				}
				p.printNotice(n)
			}
		}
	})

	g.Go(func() error {
		p.printf("%s\n> ", helpText)
		for {
			select {
			case <-ctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return errQuit
				}
				if err := p.exec(ctx, line); err != nil {
					if errors.Is(err, errQuit) {
						return err
					}
					p.printf("error: %s\n", describe(err))
				}
				p.printf("> ")
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errQuit) {
		return err
	}
	return nil
}

var errQuit = errors.New("quit")

// scanLines forwards lines from r until EOF. It is not cancelable, so it
// runs outside the errgroup and simply leaks on shutdown until stdin closes.
func scanLines(r io.Reader, lines chan<- string) {
	defer close(lines)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lines <- sc.Text()
	}
}

// parseCommand splits a line into a lower-cased verb and its arguments.
func parseCommand(line string) (string, []string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	return strings.ToLower(fields[0]), fields[1:]
}

func (p *player) exec(ctx context.Context, line string) error {
	verb, args := parseCommand(line)
	s := p.session

	switch verb {
	case "":
		return nil
	case "help", "?":
		p.printf("%s\n", helpText)
		return nil
	case "quit", "exit":
		return errQuit
	case "status":
		p.printStatus()
		return nil
	case "start":
		return s.StartVoting(ctx)
	case "vote":
		if len(args) != 1 {
			return errors.New("usage: vote WORD")
		}
		return s.Vote(ctx, args[0])
	case "draw":
		if len(args) != 1 {
			return errors.New("usage: draw FILE")
		}
		img, err := loadDrawing(args[0])
		if err != nil {
			return err
		}
		p.mu.Lock()
		p.staged = img
		p.mu.Unlock()
		p.printf("staged %s\n", args[0])
		return nil
	case "submit":
		img, err := p.drawing(args)
		if err != nil {
			return err
		}
		return s.SubmitDrawing(ctx, img)
	case "finish":
		return s.FinishDrawing(ctx)
	case "again":
		return s.PlayAgain(ctx)
	case "retry":
		return s.RetryConnection(ctx)
	case "leave":
		return s.Leave(ctx)
	case "create":
		st, err := s.Create(ctx, p.name)
		if err == nil {
			p.printState(st)
		}
		return err
	case "join":
		if len(args) != 1 {
			return errors.New("usage: join CODE")
		}
		st, err := s.Join(ctx, args[0], p.name)
		if err == nil {
			p.printState(st)
		}
		return err
	case "resume":
		st, err := s.Resume(ctx)
		if err == nil {
			p.printState(st)
		}
		return err
	default:
		return fmt.Errorf("unknown command %q, try help", verb)
	}
}

// drawing returns the image named in args or the staged one.
func (p *player) drawing(args []string) (string, error) {
	if len(args) > 0 {
		return loadDrawing(args[0])
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.staged == "" {
		return "", errors.New("nothing staged, use submit FILE or draw FILE")
	}
	return p.staged, nil
}

// loadDrawing reads an image file into a base64 data URL.
func loadDrawing(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	mtype := mimetype.Detect(data)
	return "data:" + mtype.String() + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func (p *player) autoSubmit(ctx context.Context) {
	p.mu.Lock()
	img := p.staged
	p.mu.Unlock()
	if img == "" {
		p.printf("\ntime is up and no drawing is staged\n> ")
		return
	}
	if err := p.session.SubmitDrawing(ctx, img); err != nil {
		p.printf("\nauto-submit failed: %s\n> ", describe(err))
		return
	}
	p.printf("\ntime is up, staged drawing submitted\n> ")
}

func (p *player) onState(ctx context.Context, st model.GameState) {
	p.mu.Lock()
	changed := st.Phase != p.phase
	p.phase = st.Phase
	animate := st.Tiebreak != nil && !st.Tiebreak.AnimationComplete && p.animated != st.Tiebreak.AnimationKey
	if animate {
		p.animated = st.Tiebreak.AnimationKey
	}
	p.mu.Unlock()

	if changed {
		p.printf("\n")
		p.printState(st)
		p.printf("> ")
	}
	if animate {
		go p.animateTiebreak(ctx, st.Tiebreak.TiedWords)
	}
}

// animateTiebreak cycles the tied words once and reports completion.
func (p *player) animateTiebreak(ctx context.Context, words []string) {
	for _, w := range words {
		if err := p.session.SetDisplayedWinner(w); err != nil {
			p.logger.Debug("tiebreak display rejected", "word", w, "error", err)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(tiebreakStep):
		}
	}
	if err := p.session.CompleteTiebreakAnimation(); err != nil {
		p.logger.Debug("tiebreak completion rejected", "error", err)
	}
}

func (p *player) onStatus(c connection.StateChange) {
	switch c.Status {
	case model.StatusReconnecting:
		p.printf("\n[connection] reconnecting (attempt %d)\n> ", c.Attempt)
	case model.StatusConnected:
		if c.Previous == model.StatusReconnecting {
			p.printf("\n[connection] reconnected\n> ")
		}
	case model.StatusError:
		p.printf("\n[connection] lost\n> ")
	}
}

func (p *player) onError(cerr *errclass.Error) {
	p.printf("\n[error] %s\n> ", describe(cerr))
}

func (p *player) printNotice(n session.Notice) {
	var b strings.Builder
	fmt.Fprintf(&b, "\n[notice %s] %s\n", humanize.Time(n.At), n.Message)
	if len(n.Suggestions) > 0 {
		fmt.Fprintf(&b, "  suggestions: %s\n", strings.Join(n.Suggestions, ", "))
	}
	if n.Blocking {
		fmt.Fprintf(&b, "  the session was reset; options: %s\n", strings.Join(n.Actions, ", "))
	}
	b.WriteString("> ")
	p.printf("%s", b.String())
}

func (p *player) printState(st model.GameState) {
	id := p.session.Identity()
	var b strings.Builder
	fmt.Fprintf(&b, "room %s as %s", id.RoomCode, id.PlayerName)
	if id.IsHost {
		b.WriteString(" (host)")
	}
	fmt.Fprintf(&b, ", phase %s, %d players\n", st.Phase, len(st.Players))

	switch st.Phase {
	case model.PhaseVoting:
		fmt.Fprintf(&b, "  words: %s\n", strings.Join(st.WordOptions, ", "))
	case model.PhaseDrawing:
		fmt.Fprintf(&b, "  draw %q, %s left\n", st.ChosenWord, st.TimeRemaining.Round(time.Second))
	case model.PhaseJudging:
		fmt.Fprintf(&b, "  %d drawings submitted\n", st.SubmittedDrawings)
	case model.PhaseResults:
		for _, r := range st.Results {
			fmt.Fprintf(&b, "  %s %s: %d  %s\n", humanize.Ordinal(r.Rank), r.PlayerName, r.Score, r.Feedback)
		}
	}
	p.printf("%s", b.String())
}

func (p *player) printStatus() {
	st := p.session.Stats()
	c := st.Connection
	p.printState(p.session.State())
	p.printf("  connection %s, %s reconnects, %d pending requests, %d auxiliary\n",
		c.Status, humanize.Comma(c.Reconnects), c.PendingRequests, c.AuxiliaryConns)
	p.printf("  history %d/%d, optimizer saved %s over %s messages\n",
		c.History.Count, c.History.Capacity, humanize.Bytes(uint64(max(c.Optimizer.BytesSaved, 0))), humanize.Comma(c.Optimizer.Sent))
	if st.Recovering {
		p.printf("  recovering\n")
	}
	if st.Fallback {
		p.printf("  fallback mode\n")
	}
}

// describe prefers the classified user message.
func describe(err error) string {
	var cerr *errclass.Error
	if errors.As(err, &cerr) {
		if msg := cerr.Classification().UserMessage; msg != "" && cerr.Message == "" {
			return msg
		}
		return cerr.Message
	}
	return err.Error()
}
