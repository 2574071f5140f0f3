package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ChannovDenis/dobro20-sub000/clients/go/dobro"
	"github.com/ChannovDenis/dobro20-sub000/internal/catalog"
	"github.com/ChannovDenis/dobro20-sub000/internal/chat"
	"github.com/ChannovDenis/dobro20-sub000/internal/models"
)

const chatHelp = `Commands:
  /tryon [clothing]   Virtual try-on with the uploaded photo
  /colortype          Analyze your color type
  /trends             Show 2026 trends (again for more)
  /style              Ask for style advice
  /action <name>      Run a button action by name
  /photo <url>        Attach a photo to the next request
  /clear              Drop the attached photo
  /quit               Leave`

func chatCmd() *cobra.Command {
	var debug bool
	cmd := &cobra.Command{
		Use:   "chat <topic-id|title>",
		Short: "Chat interactively in a topic; a title that is not an ID creates a topic",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level := zerolog.WarnLevel
			if debug {
				level = zerolog.DebugLevel
			}
			logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c, err := newClient()
			if err != nil {
				return err
			}
			topic, err := openTopic(ctx, c, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return runChat(ctx, c, topic, os.Stdin, os.Stdout, logger)
		},
	}
	cmd.Flags().BoolVar(&debug, "debug", false, "log debug output to stderr")
	return cmd
}

func openTopic(ctx context.Context, c *dobro.Client, arg string) (*models.Topic, error) {
	if id, err := uuid.Parse(arg); err == nil {
		return c.GetTopic(ctx, id)
	}
	return c.CreateTopic(ctx, dobro.CreateTopicRequest{Title: arg})
}

func runChat(ctx context.Context, c *dobro.Client, topic *models.Topic, in io.Reader, out io.Writer, logger zerolog.Logger) error {
	conv := chat.New(c, c, nil, logger)
	defer conv.Close()

	if err := conv.SelectTopic(ctx, topic); err != nil {
		return err
	}
	fmt.Fprintf(out, "Topic %q (%s). Type /help for commands.\n", topic.Title, topic.ID)
	p := newPrinter(out)
	p.finish(conv.Messages())
	conv.OnChange(p.update)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64<<10), 1<<20)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		quit, err := dispatch(ctx, conv, line, out)
		if err != nil {
			fmt.Fprintln(out, "Error:", err)
		}
		p.finish(conv.Messages())
		if quit || ctx.Err() != nil {
			return nil
		}
	}
}

// dispatch runs one input line. It reports whether the user asked to leave.
func dispatch(ctx context.Context, conv *chat.Conversation, line string, out io.Writer) (bool, error) {
	if !strings.HasPrefix(line, "/") {
		return false, conv.SendMessage(ctx, line)
	}

	name, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "quit", "exit":
		return true, nil
	case "help":
		fmt.Fprintln(out, chatHelp)
	case "tryon":
		return false, conv.TryOn(ctx, chat.TryOnRequest{ClothingDescription: arg})
	case "colortype":
		return false, conv.HandleAction(ctx, catalog.ActionColorType)
	case "trends":
		return false, conv.HandleAction(ctx, catalog.ActionTrends)
	case "style":
		return false, conv.HandleAction(ctx, catalog.ActionStyle)
	case "action":
		return false, conv.HandleAction(ctx, arg)
	case "photo":
		if arg == "" {
			return false, fmt.Errorf("usage: /photo <url>")
		}
		conv.HandleImageUpload(chat.Photo{URL: arg})
		fmt.Fprintln(out, "Photo attached.")
	case "clear":
		conv.ClearUploadedPhoto()
		fmt.Fprintln(out, "Photo cleared.")
	default:
		return false, fmt.Errorf("unknown command /%s", name)
	}
	return false, nil
}

// printer renders the conversation: assistant text as it streams, then the
// attachments once a message is complete.
type printer struct {
	mu      sync.Mutex
	out     io.Writer
	done    map[string]bool
	current string
	written int
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out, done: make(map[string]bool)}
}

func (p *printer) update(msgs []models.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range msgs {
		if p.done[m.ID] {
			continue
		}
		if m.Role != models.RoleAssistant {
			// Typed input is already on screen.
			p.done[m.ID] = true
			continue
		}
		if m.ID != p.current {
			p.current, p.written = m.ID, 0
			fmt.Fprint(p.out, "\nassistant: ")
		}
		if len(m.Content) > p.written {
			fmt.Fprint(p.out, m.Content[p.written:])
			p.written = len(m.Content)
		}
	}
}

// finish prints whatever is still unprinted and marks every message done.
func (p *printer) finish(msgs []models.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range msgs {
		if p.done[m.ID] {
			continue
		}
		p.done[m.ID] = true
		if m.ID == p.current {
			if len(m.Content) > p.written {
				fmt.Fprint(p.out, m.Content[p.written:])
			}
			fmt.Fprintln(p.out)
			p.current, p.written = "", 0
		} else if m.Role == models.RoleUser {
			fmt.Fprintf(p.out, "you: %s\n", m.Content)
		} else {
			fmt.Fprintf(p.out, "assistant: %s\n", m.Content)
		}
		printAttachments(p.out, m)
	}
}

func printAttachments(w io.Writer, m models.Message) {
	if m.ImageURL != "" {
		fmt.Fprintf(w, "  [photo] %s\n", m.ImageURL)
	}
	if m.ResultImageURL != "" {
		fmt.Fprintf(w, "  [before] %s\n  [after]  %s\n", m.BeforeImageURL, m.ResultImageURL)
	}
	if cp := m.ColorPalette; cp != nil {
		fmt.Fprintf(w, "  [palette] %s (%s): %s\n", cp.Type, cp.Season, strings.Join(cp.Colors, " "))
		for _, r := range cp.Recommendations {
			fmt.Fprintf(w, "    - %s\n", r)
		}
	}
	for _, t := range m.TrendGallery {
		fmt.Fprintf(w, "  [trend] %s: %s\n", t.Title, t.Description)
	}
	for _, o := range m.ClothingOptions {
		fmt.Fprintf(w, "  [option] %s (%s)\n", o.Name, o.Category)
	}
	if m.Escalation != nil {
		fmt.Fprintf(w, "  [expert] A %s can take over this conversation: dobro topics escalate <id>\n", m.Escalation.ServiceID)
	}
	if len(m.Buttons) > 0 {
		actions := make([]string, len(m.Buttons))
		for i, b := range m.Buttons {
			actions[i] = fmt.Sprintf("%s (/action %s)", b.Label, b.Action)
		}
		fmt.Fprintf(w, "  %s\n", strings.Join(actions, " | "))
	}
}
