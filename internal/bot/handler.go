// Package bot implements the Telegram side: a long-polling bot restricted to
// one authorized chat that turns incoming messages into Blinko notes.
package bot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ikofan/blinkobot/internal/blinko"
	"github.com/ikofan/blinkobot/internal/journal"
	tele "gopkg.in/telebot.v3"
)

// noteStore is the Blinko surface the handlers need.
type noteStore interface {
	UploadFile(ctx context.Context, name string, r io.Reader) (blinko.Attachment, error)
	CreateNote(ctx context.Context, content string, attachments []blinko.Attachment) error
}

// messenger is the slice of *tele.Bot the handlers use for progress edits and
// file downloads, narrowed so tests can substitute it.
type messenger interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error)
	File(file *tele.File) (io.ReadCloser, error)
}

type Bot struct {
	api    *tele.Bot
	tg     messenger
	store  noteStore
	db     *journal.DB
	albums *albumCollector
	cfg    Config
}

type Config struct {
	Token       string
	ChatID      int64
	PollTimeout time.Duration
	AlbumDelay  time.Duration
}

func New(cfg Config, store noteStore, db *journal.DB) (*Bot, error) {
	pref := tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: cfg.PollTimeout},
	}

	b, err := tele.NewBot(pref)
	if err != nil {
		return nil, err
	}

	bot := &Bot{api: b, tg: b, store: store, db: db, cfg: cfg}
	bot.albums = newAlbumCollector(cfg.AlbumDelay, bot.processGroup)
	bot.register()
	return bot, nil
}

func (b *Bot) Start() {
	slog.Info("bot online", "username", b.api.Me.Username)
	b.api.Start()
}

func (b *Bot) Stop() {
	b.api.Stop()
}

func (b *Bot) register() {
	b.api.Use(b.authorized)

	b.api.Handle("/status", b.handleStatus)
	b.api.Handle(tele.OnText, b.handleText)

	for _, event := range []string{tele.OnDocument, tele.OnPhoto, tele.OnVideo, tele.OnAudio, tele.OnVoice} {
		b.api.Handle(event, b.handleMedia)
	}
}

// authorized drops every update that is not from the configured chat.
func (b *Bot) authorized(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		chat := c.Chat()
		if chat == nil || chat.ID != b.cfg.ChatID {
			slog.Debug("ignoring update from unauthorized chat")
			return nil
		}
		return next(c)
	}
}

func (b *Bot) handleText(c tele.Context) error {
	m := c.Message()

	ack, err := b.tg.Send(m.Chat, "Saving...", &tele.SendOptions{ReplyTo: m})
	if err != nil {
		slog.Error("could not acknowledge message", "error", err)
	}

	id := b.record(journal.Entry{ChatID: m.Chat.ID, MessageID: m.ID, Content: m.Text})

	if err := b.store.CreateNote(context.Background(), m.Text, nil); err != nil {
		slog.Error("note creation failed", "error", err)
		b.resolve(id, err)
		b.edit(ack, "Save failed")
		return nil
	}

	b.resolve(id, nil)
	b.edit(ack, "Saved")
	return nil
}

func (b *Bot) handleMedia(c tele.Context) error {
	m := c.Message()
	if m.AlbumID != "" {
		b.albums.add(m.AlbumID, m)
		return nil
	}
	b.processGroup([]*tele.Message{m})
	return nil
}

// processGroup saves a media group (or a single media message) as one note:
// upload every file, then create the note with the group's caption.
func (b *Bot) processGroup(msgs []*tele.Message) {
	if len(msgs) == 0 {
		return
	}
	first := msgs[0]

	ack, err := b.tg.Send(first.Chat, fmt.Sprintf("Processing %d file(s)...", len(msgs)), &tele.SendOptions{ReplyTo: first})
	if err != nil {
		slog.Error("could not acknowledge media group", "error", err)
	}

	caption := groupCaption(msgs)
	id := b.record(journal.Entry{ChatID: first.Chat.ID, MessageID: first.ID, Content: caption, Attachments: len(msgs)})

	ctx := context.Background()
	var attachments []blinko.Attachment
	for i, m := range msgs {
		file, name, ok := mediaFile(m)
		if !ok {
			continue
		}

		b.edit(ack, fmt.Sprintf("Uploading file %d/%d...", i+1, len(msgs)))

		rc, err := b.tg.File(&file)
		if err != nil {
			slog.Error("could not fetch file from Telegram", "name", name, "error", err)
			continue
		}
		att, err := b.store.UploadFile(ctx, name, rc)
		rc.Close()
		if err != nil {
			slog.Error("upload failed", "name", name, "error", err)
			continue
		}
		slog.Info("file uploaded", "name", att.Name)
		attachments = append(attachments, att)
	}

	if len(attachments) == 0 {
		b.resolve(id, fmt.Errorf("all uploads failed"))
		b.edit(ack, "Save failed: all uploads failed.")
		return
	}

	b.edit(ack, "All files uploaded, creating note...")
	if err := b.store.CreateNote(ctx, caption, attachments); err != nil {
		slog.Error("note creation failed", "error", err)
		b.resolve(id, fmt.Errorf("note creation failed: %w", err))
		b.edit(ack, "Save failed: note creation failed.")
		return
	}

	b.resolve(id, nil)
	b.edit(ack, "Saved")
}

func (b *Bot) handleStatus(c tele.Context) error {
	stats, err := b.db.Stats()
	if err != nil {
		return c.Send(fmt.Sprintf("Status error: %v", err))
	}
	return c.Send(fmt.Sprintf("Saved: %d\nFailed: %d\nPending: %d", stats.Saved, stats.Failed, stats.Pending))
}

// RetryFailed replays failed text-only captures against Blinko. Called
// periodically by the daemon.
func (b *Bot) RetryFailed(ctx context.Context) {
	entries, err := b.db.FailedTextEntries(20)
	if err != nil {
		slog.Error("could not list failed captures", "error", err)
		return
	}

	for _, e := range entries {
		if err := b.store.CreateNote(ctx, e.Content, nil); err != nil {
			slog.Debug("retry still failing", "id", e.ID, "error", err)
			continue
		}
		if err := b.db.MarkSaved(e.ID); err != nil {
			slog.Error("could not resolve journal entry", "id", e.ID, "error", err)
			continue
		}
		slog.Info("replayed failed capture", "id", e.ID)
	}
}

// Helpers

func (b *Bot) record(e journal.Entry) string {
	id, err := b.db.Record(e)
	if err != nil {
		slog.Error("could not journal capture", "error", err)
		return ""
	}
	return id
}

func (b *Bot) resolve(id string, cause error) {
	if id == "" {
		return
	}
	var err error
	if cause == nil {
		err = b.db.MarkSaved(id)
	} else {
		err = b.db.MarkFailed(id, cause.Error())
	}
	if err != nil {
		slog.Error("could not resolve journal entry", "id", id, "error", err)
	}
}

func (b *Bot) edit(ack *tele.Message, text string) {
	if ack == nil {
		return
	}
	if _, err := b.tg.Edit(ack, text); err != nil {
		slog.Debug("could not edit progress message", "error", err)
	}
}

func groupCaption(msgs []*tele.Message) string {
	for _, m := range msgs {
		if m.Caption != "" {
			return m.Caption
		}
	}
	if len(msgs) == 1 {
		return "File from Telegram"
	}
	return "Media group from Telegram"
}

// mediaFile picks the downloadable file and a target filename out of a media
// message. Photos and voice messages carry no filename of their own.
func mediaFile(m *tele.Message) (tele.File, string, bool) {
	switch {
	case m.Document != nil:
		name := m.Document.FileName
		if name == "" {
			name = m.Document.UniqueID + ".bin"
		}
		return m.Document.File, name, true
	case m.Photo != nil:
		return m.Photo.File, m.Photo.UniqueID + ".jpg", true
	case m.Video != nil:
		name := m.Video.FileName
		if name == "" {
			name = m.Video.UniqueID + ".mp4"
		}
		return m.Video.File, name, true
	case m.Audio != nil:
		name := m.Audio.FileName
		if name == "" {
			name = m.Audio.UniqueID + ".mp3"
		}
		return m.Audio.File, name, true
	case m.Voice != nil:
		return m.Voice.File, m.Voice.UniqueID + ".ogg", true
	}
	return tele.File{}, "", false
}
