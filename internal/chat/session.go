// Package chat runs the interactive image conversation loop.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"visionchat/internal/imageres"
	"visionchat/internal/inference"
	"visionchat/internal/prompt"
)

// Prompts and messages of the line protocol.
const (
	PromptInput  = "Enter your prompt (or 'quit' to exit): "
	PromptImage  = "Enter the image URL or local file path: "
	MsgGoodbye   = "Ending conversation. Goodbye!"
	DefaultQuit  = "quit"
	DefaultImage = "/image"
)

// State is the loop state.
type State int

const (
	AwaitingInput State = iota
	Processing
	Terminated
)

func (s State) String() string {
	switch s {
	case AwaitingInput:
		return "awaiting-input"
	case Processing:
		return "processing"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// ImageResolver turns a user supplied source into pixels.
type ImageResolver interface {
	Resolve(ctx context.Context, source string) (*imageres.Image, error)
}

// Options tunes a Session. Zero values select the defaults.
type Options struct {
	QuitCommand  string
	ImageCommand string
	// TurnTimeout bounds one generation; FetchTimeout bounds one image load.
	TurnTimeout  time.Duration
	FetchTimeout time.Duration
	Formatter    prompt.Formatter
	Logger       zerolog.Logger
}

// Session is one conversation. Only the current image survives between turns.
type Session struct {
	gen   inference.Generator
	res   ImageResolver
	in    LineReader
	out   io.Writer
	opts  Options
	log   zerolog.Logger
	state State
	image *imageres.Image
}

// NewSession wires a session. gen and res are owned by the caller.
func NewSession(gen inference.Generator, res ImageResolver, in LineReader, out io.Writer, opts Options) *Session {
	if opts.QuitCommand == "" {
		opts.QuitCommand = DefaultQuit
	}
	if opts.ImageCommand == "" {
		opts.ImageCommand = DefaultImage
	}
	if opts.Formatter.Marker == "" {
		opts.Formatter = prompt.NewFormatter(prompt.ImageMarker)
	}
	return &Session{gen: gen, res: res, in: in, out: out, opts: opts, log: opts.Logger, state: AwaitingInput}
}

func (s *Session) State() State { return s.state }

// Image returns the current image slot, nil when empty.
func (s *Session) Image() *imageres.Image { return s.image }

// Banner prints the greeting shown before the first prompt.
func (s *Session) Banner() {
	fmt.Fprintln(s.out, "Welcome to the AI Image Conversation System!")
	fmt.Fprintf(s.out, "Type '%s' to end the conversation, '%s' to load an image.\n", s.opts.QuitCommand, s.opts.ImageCommand)
}

// LoadImage resolves source and, on success only, replaces the current
// image. Failures are printed with their kind and returned.
func (s *Session) LoadImage(ctx context.Context, source string) error {
	if s.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.FetchTimeout)
		defer cancel()
	}
	img, err := s.res.Resolve(ctx, source)
	if err != nil {
		s.log.Debug().Err(err).Str("kind", imageres.KindOf(err).String()).Msg("image load failed")
		fmt.Fprintf(s.out, "Error (%s): %v\n", imageres.KindOf(err), err)
		if s.image != nil {
			fmt.Fprintf(s.out, "Keeping previously loaded image: %s\n", s.image.Source)
		}
		return err
	}
	s.image = img
	fmt.Fprintf(s.out, "Successfully loaded image: %s\n", img.Source)
	fmt.Fprintf(s.out, "Image size: %dx%d\n", img.Width(), img.Height())
	fmt.Fprintf(s.out, "Image mode: %s\n", img.Mode())
	return nil
}

// RequireImage asks for an image once before the conversation starts.
func (s *Session) RequireImage(ctx context.Context) error {
	src, err := s.in.ReadLine(PromptImage)
	if err != nil {
		return err
	}
	return s.LoadImage(ctx, strings.TrimSpace(src))
}

// Run drives the loop until quit, end of input, interrupt or ctx is done.
// It returns nil on every clean termination.
func (s *Session) Run(ctx context.Context) error {
	for s.state != Terminated {
		if ctx.Err() != nil {
			s.terminate()
			break
		}
		line, err := s.in.ReadLine(PromptInput)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, ErrInterrupted) {
				fmt.Fprintln(s.out)
				s.terminate()
				break
			}
			s.terminate()
			return err
		}
		s.Handle(ctx, line)
	}
	return nil
}

// Handle processes one input line from AwaitingInput.
func (s *Session) Handle(ctx context.Context, line string) {
	if s.state == Terminated {
		return
	}
	text := strings.TrimSpace(line)
	switch {
	case text == "":
		return
	case strings.EqualFold(text, s.opts.QuitCommand):
		s.terminate()
	case text == s.opts.ImageCommand:
		src, err := s.in.ReadLine(PromptImage)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, ErrInterrupted) {
				s.terminate()
			}
			return
		}
		_ = s.LoadImage(ctx, strings.TrimSpace(src))
	case strings.HasPrefix(text, s.opts.ImageCommand+" "):
		_ = s.LoadImage(ctx, strings.TrimSpace(strings.TrimPrefix(text, s.opts.ImageCommand)))
	default:
		s.process(ctx, line)
	}
}

func (s *Session) process(ctx context.Context, text string) {
	s.state = Processing
	defer func() { s.state = AwaitingInput }()

	if s.opts.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.TurnTimeout)
		defer cancel()
	}
	payload := s.opts.Formatter.Format(text, s.image != nil)
	resp, err := s.gen.Generate(ctx, payload, s.image)
	if err != nil {
		s.log.Debug().Err(err).Msg("turn failed")
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "AI: %s\n", resp)
}

func (s *Session) terminate() {
	if s.state == Terminated {
		return
	}
	s.state = Terminated
	fmt.Fprintln(s.out, MsgGoodbye)
}
