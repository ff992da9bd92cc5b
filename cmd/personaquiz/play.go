package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"personaquiz"
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play the quiz interactively",
	Long:  "Play the quiz in the terminal. Progress is saved after every step; running play again resumes where you left off. Type 'reset' to start over or 'quit' to leave.",
	RunE:  runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)
}

const loadingPoll = 250 * time.Millisecond

var (
	errQuit    = errors.New("quit")
	errRestart = errors.New("restart")
)

// player runs the interactive loop over a controller
type player struct {
	ctrl   *personaquiz.Controller
	types  map[string]personaquiz.PersonalityType
	lines  <-chan string
	out    io.Writer
	logger *zap.Logger
}

func runPlay(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	session, err := personaquiz.OpenSession(ctx, a.store, a.templates, a.logger)
	if err != nil {
		return err
	}
	a.startTranscript(session.Snapshot().Profile)

	sched := a.newScheduler(session)
	opts := personaquiz.ControllerOptions{
		IdleTimeout: a.cfg.IdleTimeout,
		Logger:      a.logger,
		Analyst:     personaquiz.NewAnalyst(a.caller, a.exec, a.logger),
	}
	if rec, ok := a.store.(personaquiz.ResultRecorder); ok {
		opts.Recorder = rec
	}
	ctrl := personaquiz.NewController(session, sched, opts)

	types, err := personaquiz.PersonalityTypes()
	if err != nil {
		return err
	}

	p := &player{
		ctrl:   ctrl,
		types:  types,
		lines:  readLines(ctx, os.Stdin),
		out:    cmd.OutOrStdout(),
		logger: a.logger,
	}

	go p.watchIdle(ctx)
	ctrl.Resume()

	err = p.loop(ctx)

	sched.Cancel()
	drainCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if derr := sched.Drain(drainCtx); derr != nil {
		a.logger.Debug("exiting with question generation still in flight", zap.Int("in_flight", sched.Stats().InFlight))
	}

	if errors.Is(err, errQuit) || errors.Is(err, context.Canceled) {
		fmt.Fprintln(p.out, mutedStyle.Render("Progress saved. Run play again to continue."))
		return nil
	}
	return err
}

// readLines delivers stdin lines until EOF or ctx is done
func readLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

func (p *player) watchIdle(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reset, err := p.ctrl.CheckIdle(ctx)
			if err != nil {
				p.logger.Warn("idle reset failed", zap.Error(err))
			}
			if reset {
				fmt.Fprintln(p.out, "\n"+mutedStyle.Render("Session timed out after inactivity and was reset. Press Enter to start again."))
			}
		}
	}
}

// ask prints prompt and waits for a line. The commands quit and reset are
// handled here for every step.
func (p *player) ask(ctx context.Context, prompt string) (string, error) {
	fmt.Fprint(p.out, promptStyle.Render(prompt)+" ")
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-p.lines:
		if !ok {
			return "", errQuit
		}
		line = strings.TrimSpace(line)
		switch strings.ToLower(line) {
		case "quit", "exit", "q":
			return "", errQuit
		case "reset":
			if err := p.ctrl.Reset(ctx); err != nil {
				return "", err
			}
			fmt.Fprintln(p.out, mutedStyle.Render("Starting over."))
			return "", errRestart
		}
		return line, nil
	}
}

func (p *player) loop(ctx context.Context) error {
	for {
		var err error
		switch st := p.ctrl.State(); st.FlowStep {
		case personaquiz.StepWelcome:
			err = p.welcome(ctx)
		case personaquiz.StepProfileCollection:
			err = p.profile(ctx)
		case personaquiz.StepQuiz:
			err = p.quiz(ctx)
		case personaquiz.StepNaming:
			err = p.naming(ctx)
		case personaquiz.StepResults:
			err = p.results(ctx, st)
		}
		switch {
		case err == nil, errors.Is(err, errRestart):
		case errors.Is(err, personaquiz.ErrInvalidInput), errors.Is(err, personaquiz.ErrItemNotReady):
			fmt.Fprintln(p.out, errorStyle.Render(err.Error()))
		case errors.Is(err, personaquiz.ErrWrongStep):
			// the idle watcher reset the session under us
			p.logger.Debug("step changed during input", zap.Error(err))
		default:
			return err
		}
	}
}

func (p *player) welcome(ctx context.Context) error {
	fmt.Fprintln(p.out, headerStyle.Render("Personality Quiz"))
	fmt.Fprintln(p.out, "Answer a short profile and we will tailor every question to your life.")
	if _, err := p.ask(ctx, "Press Enter to begin"); err != nil {
		return err
	}
	return p.ctrl.Begin()
}

var fieldPrompts = map[personaquiz.ProfileField]string{
	personaquiz.FieldAge:        fmt.Sprintf("How old are you? (%d-%d, default %d)", personaquiz.MinAge, personaquiz.MaxAge, personaquiz.DefaultAge),
	personaquiz.FieldOccupation: "What do you do? (e.g. Software Engineer, Student, Artist)",
	personaquiz.FieldGender:     "How do you identify? (" + strings.Join(personaquiz.GenderOptions, " / ") + ")",
	personaquiz.FieldInterests:  fmt.Sprintf("Any hobbies or interests? (optional, comma separated, up to %d)", personaquiz.MaxInterests),
}

func (p *player) profile(ctx context.Context) error {
	field, ok := p.ctrl.CurrentField()
	if !ok {
		return nil
	}
	line, err := p.ask(ctx, fieldPrompts[field])
	if err != nil {
		return err
	}
	return p.ctrl.SubmitProfileField(line)
}

func (p *player) quiz(ctx context.Context) error {
	item, ok := p.ctrl.CurrentItem()
	if !ok {
		return p.waitForItem(ctx)
	}
	index, total, _ := p.ctrl.Progress()
	fmt.Fprintln(p.out, renderItem(item, index, total))

	line, err := p.ask(ctx, "Your choice (A/B):")
	if err != nil {
		return err
	}
	switch strings.ToLower(line) {
	case "a", "1":
		line = item.ChoiceA.Value
	case "b", "2":
		line = item.ChoiceB.Value
	}
	return p.ctrl.Answer(line)
}

// waitForItem shows a loading line until the current item is generated
func (p *player) waitForItem(ctx context.Context) error {
	ticker := time.NewTicker(loadingPoll)
	defer ticker.Stop()
	frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	for n := 0; ; n++ {
		if p.ctrl.State().FlowStep != personaquiz.StepQuiz {
			return nil
		}
		if _, ok := p.ctrl.CurrentItem(); ok {
			fmt.Fprint(p.out, "\r\033[K")
			return nil
		}
		index, total, ready := p.ctrl.Progress()
		fmt.Fprintf(p.out, "\r%s %s", promptStyle.Render(frames[n%len(frames)]),
			mutedStyle.Render(fmt.Sprintf("Personalizing question %d of %d (%d ready)...", index+1, total, ready)))
		// waiting on generation is not inactivity
		p.ctrl.Touch()
		select {
		case <-ctx.Done():
			fmt.Fprintln(p.out)
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *player) naming(ctx context.Context) error {
	fmt.Fprintln(p.out, successStyle.Render("All questions answered!"))
	line, err := p.ask(ctx, "What should we call you?")
	if err != nil {
		return err
	}
	return p.ctrl.SubmitName(ctx, line)
}

func (p *player) results(ctx context.Context, st *personaquiz.SessionState) error {
	fmt.Fprintln(p.out, headerStyle.Render(fmt.Sprintf("%s, you are %s", st.Profile.DisplayName, st.DerivedType)))
	if t, ok := p.types[st.DerivedType]; ok {
		fmt.Fprintln(p.out, titleStyle.Render(t.Name))
		fmt.Fprintln(p.out, t.Description)
	}
	fmt.Fprintln(p.out)
	fmt.Fprint(p.out, renderScores(st.Scores))

	fmt.Fprintln(p.out, mutedStyle.Render("Preparing your analysis..."))
	analysis, err := p.ctrl.Analyze(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(p.out, renderAnalysis(analysis))
	if analysis.Fallback {
		fmt.Fprintln(p.out, mutedStyle.Render("The personalized analysis is unavailable right now; showing a general one. Run play again to retry."))
	}

	fmt.Fprintln(p.out, mutedStyle.Render("Ask anything about your type. Empty line to finish, 'reset' to start over."))
	for {
		line, err := p.ask(ctx, "You:")
		if err != nil {
			return err
		}
		if line == "" {
			return errQuit
		}
		reply, err := p.ctrl.Ask(ctx, line)
		if err != nil {
			return err
		}
		fmt.Fprintln(p.out, replyStyle.Render(reply.Content))
		if reply.Fallback {
			fmt.Fprintln(p.out, mutedStyle.Render("(the guide is offline, try again later)"))
		}
	}
}
