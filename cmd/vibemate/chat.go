package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vibemate.dev/vibemate/internal/chat"
	"vibemate.dev/vibemate/internal/term"
)

const chatHelp = `Commands:
  /attach <path>  attach a file or image to your next message
  /detach         drop the pending attachment
  /clear          start over (also clears the companion's memory)
  /voice          voice input
  /quit           leave the chat
Press Ctrl-C while a reply is streaming to stop it.`

var errNotOnboarded = errors.New(`setup is not complete, run "vibemate setup" first`)

func newChatCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with your companion",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.runChat(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&opts.live, "live", true, "Print replies as they stream in")
	return cmd
}

func (a *app) runChat(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	p, persona, complete := a.repo.Load(ctx)
	if !complete {
		return errNotOnboarded
	}

	transcript := term.NewTranscript(a.out, a.renderer, a.styles, persona.BotName, a.opts.live)
	session := chat.NewSession(a.client,
		chat.WithObserver(transcript.Observe),
		chat.WithLogger(a.logger),
	)
	slot := chat.NewAttachmentSlot("", a.logger)
	defer slot.Close()

	fmt.Fprintf(a.out, "%s %s\n%s\n\n",
		a.styles.Title.Render("Chatting with "+persona.BotName),
		a.styles.Muted.Render("· "+string(persona.Role)),
		a.styles.Muted.Render("Type /help for commands."),
	)
	session.Initialize(*p, *persona)

	for {
		fmt.Fprint(a.out, a.styles.Label.Render("You:")+" ")
		line, err := a.readLine()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		line = strings.TrimSpace(line)

		if strings.HasPrefix(line, "/") {
			if quit := a.chatCommand(ctx, line, session, slot, p.UserID); quit {
				return nil
			}
			continue
		}
		a.send(ctx, session, line, slot)
	}
}

func (a *app) send(ctx context.Context, session *chat.Session, text string, slot *chat.AttachmentSlot) {
	if strings.TrimSpace(text) == "" && slot.Current() == nil {
		return
	}
	sendCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	err := session.SendFromSlot(sendCtx, text, slot)
	var streamErr *chat.StreamError
	switch {
	case err == nil:
	case errors.As(err, &streamErr):
		// the transcript already shows the error message
		a.logger.Debug("reply failed", zap.Error(err))
	default:
		a.toaster.Notify("Message not sent", err.Error())
	}
}

func (a *app) chatCommand(ctx context.Context, line string, session *chat.Session, slot *chat.AttachmentSlot, userID string) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(a.out, a.styles.Muted.Render(chatHelp))
	case "/attach":
		if arg == "" {
			fmt.Fprintln(a.out, a.styles.Error.Render("Usage: /attach <path>"))
			return false
		}
		attachment, err := chat.LoadAttachment(arg)
		if err != nil {
			a.toaster.Notify("Attachment failed", err.Error())
			return false
		}
		preview, err := slot.Select(attachment)
		if err != nil {
			a.toaster.Notify("Attachment failed", err.Error())
			return false
		}
		note := fmt.Sprintf("📎 %s attached (%s)", attachment.Name, attachment.ContentType)
		if preview != "" {
			note += ", preview at " + preview
		}
		fmt.Fprintln(a.out, a.styles.Muted.Render(note))
	case "/detach":
		slot.Clear()
		fmt.Fprintln(a.out, a.styles.Muted.Render("Attachment removed."))
	case "/clear":
		if err := session.Clear(); err != nil {
			a.toaster.Notify("Cannot clear", err.Error())
			return false
		}
		if err := a.client.ClearMemory(ctx, userID); err != nil {
			a.logger.Warn("failed to clear companion memory", zap.Error(err))
		}
		fmt.Fprintln(a.out, a.styles.Muted.Render("Conversation cleared."))
	case "/voice":
		a.toaster.Notify("Voice Input", "Voice input feature coming soon!")
	default:
		fmt.Fprintln(a.out, a.styles.Error.Render("Unknown command "+name+". Type /help."))
	}
	return false
}
