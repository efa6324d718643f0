package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"go.uber.org/zap"

	"cipherchat/internal/assist"
	"cipherchat/internal/directory"
	"cipherchat/internal/model"
	"cipherchat/internal/session"
	"cipherchat/internal/utils/log"
)

// decryptPlaceholder is shown for any message that fails authentication.
// It is fixed so nothing about the failure leaks into the UI.
const decryptPlaceholder = "[red][nachricht kann nicht entschlüsselt werden][-]"

type (
	App struct {
		app      *tview.Application
		contacts *tview.List
		chatbox  *tview.TextView
		input    *tview.InputField

		dir      directory.Provisioner
		relayURL string
		assist   assist.Transformer

		session *session.Session
		peers   []model.User
		current string
	}
)

func NewApp(dir directory.Provisioner, relayURL string, transformer assist.Transformer) *App {
	return &App{
		app:      tview.NewApplication(),
		dir:      dir,
		relayURL: relayURL,
		assist:   transformer,
	}
}

// Run connects a session for userID and hands control to the UI loop.
func (a *App) Run(ctx context.Context, userID string) error {
	s, peers, err := a.startSession(ctx, userID)
	if err != nil {
		return err
	}
	a.adoptSession(s, peers)
	// After the UI loop exits no event handlers run, so the current
	// session (possibly a post-switch one) can be read directly.
	defer func() { a.session.Close() }()

	a.renderUI()
	return nil
}

func (a *App) startSession(ctx context.Context, userID string) (*session.Session, []model.User, error) {
	self, err := a.dir.Self(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("unknown local identity: %w", err)
	}
	peers, err := a.dir.Contacts(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("listing contacts: %w", err)
	}

	s := session.New(self, a.dir, a.relayURL, session.WithUpdateHook(func() {
		a.app.QueueUpdateDraw(a.redrawChat)
	}))
	if err := s.Connect(ctx); err != nil {
		return nil, nil, err
	}
	return s, peers, nil
}

// adoptSession installs a connected session. Outside Run it must only be
// called on the tview event goroutine, which owns these fields.
func (a *App) adoptSession(s *session.Session, peers []model.User) {
	a.session = s
	a.peers = peers
	a.current = ""
	if len(peers) > 0 {
		a.current = peers[0].ID
	}
}

// blocking function
func (a *App) renderUI() {
	a.contacts = tview.NewList().ShowSecondaryText(false)
	a.contacts.SetBorder(true).SetTitle(" Contacts ")
	a.contacts.SetChangedFunc(func(index int, _ string, _ string, _ rune) {
		if index >= 0 && index < len(a.peers) {
			a.current = a.peers[index].ID
			a.redrawChat()
		}
	})

	a.chatbox = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	a.chatbox.SetBorder(true)

	a.input = tview.NewInputField().
		SetLabel("Message: ").
		SetFieldWidth(0)
	a.input.SetBorder(true).SetTitle(" New Message (/switch <id>, Ctrl-R rewrite, Ctrl-E replies) ")

	a.input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		text := a.input.GetText()
		if text == "" {
			return
		}
		a.input.SetText("")

		if peerID, ok := strings.CutPrefix(text, "/switch "); ok {
			go a.doSwitch(a.session, strings.TrimSpace(peerID))
			return
		}
		go a.doSend(a.session, a.current, text)
	})

	a.input.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlR:
			go a.doRewrite(a.input.GetText())
			return nil
		case tcell.KeyCtrlE:
			go a.doSmartReplies(a.session, a.current)
			return nil
		}
		return event
	})

	a.refreshContacts()
	a.redrawChat()

	layout := tview.NewFlex().
		AddItem(a.contacts, 24, 0, false).
		AddItem(tview.NewFlex().
			SetDirection(tview.FlexRow).
			AddItem(a.chatbox, 0, 1, false).
			AddItem(a.input, 3, 0, true), 0, 1, true)

	if err := a.app.SetRoot(layout, true).SetFocus(a.input).Run(); err != nil {
		log.Fatal("cannot init app", zap.Error(err))
	}
}

func (a *App) refreshContacts() {
	a.contacts.Clear()
	for _, peer := range a.peers {
		a.contacts.AddItem(peer.Name, "", 0, nil)
	}
}

func (a *App) redrawChat() {
	if a.session == nil || a.current == "" {
		return
	}

	peerName := a.current
	for _, p := range a.peers {
		if p.ID == a.current {
			peerName = p.Name
		}
	}
	a.chatbox.SetTitle(fmt.Sprintf(" Chat with %s ", peerName))

	a.chatbox.Clear()
	self := a.session.Self()
	for _, env := range a.session.History(a.current) {
		text, err := a.session.Plaintext(env)
		if err != nil {
			text = decryptPlaceholder
		}
		if env.SenderID == self.ID {
			fmt.Fprintf(a.chatbox, "[yellow]You (%s):[-] %s\n", env.Status, text)
		} else {
			fmt.Fprintf(a.chatbox, "[green]%s:[-] %s\n", peerName, text)
		}
	}
	a.chatbox.ScrollToEnd()
}

func (a *App) doSend(s *session.Session, peerID, text string) {
	_, err := s.SendMessage(text, peerID)
	if err != nil {
		if errors.Is(err, session.ErrNoSharedKey) {
			log.Error("conversation unusable, message not sent", zap.String("peer", peerID))
		} else {
			log.Error("send message failed", zap.Error(err))
		}
		return
	}
	a.app.QueueUpdateDraw(a.redrawChat)
}

// doSwitch tears the old session down completely before the new one
// connects; no cached key or plaintext crosses the switch.
func (a *App) doSwitch(old *session.Session, userID string) {
	old.Close()
	s, peers, err := a.startSession(context.Background(), userID)
	if err != nil {
		log.Error("identity switch failed", zap.String("userID", userID), zap.Error(err))
		return
	}
	a.app.QueueUpdateDraw(func() {
		a.adoptSession(s, peers)
		a.refreshContacts()
		a.redrawChat()
	})
}

func (a *App) doRewrite(text string) {
	if a.assist == nil || text == "" {
		return
	}
	rewritten, err := a.assist.Rewrite(context.Background(), text, "formal")
	if err != nil {
		log.Error("rewrite failed", zap.Error(err))
		return
	}
	a.app.QueueUpdateDraw(func() {
		a.input.SetText(rewritten)
	})
}

func (a *App) doSmartReplies(s *session.Session, peerID string) {
	if a.assist == nil {
		return
	}

	// Suggestions work on the plaintext the local user can already read.
	var history []string
	for _, env := range s.History(peerID) {
		if text, err := s.Plaintext(env); err == nil {
			history = append(history, text)
		}
	}
	replies, err := a.assist.SmartReplies(context.Background(), history)
	if err != nil {
		log.Error("smart replies failed", zap.Error(err))
		return
	}

	a.app.QueueUpdateDraw(func() {
		for _, reply := range replies {
			fmt.Fprintf(a.chatbox, "[blue]suggestion:[-] %s\n", reply)
		}
		a.chatbox.ScrollToEnd()
	})
}
