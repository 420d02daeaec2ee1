// Command demo uploads files through a running upload server the way a chat
// composer would: fetch the policy, validate, upload with live state
// snapshots, and store the resulting draft locally.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/altchat/composer/internal/attachment"
	"github.com/altchat/composer/internal/auth"
	"github.com/altchat/composer/internal/chatclient"
	"github.com/altchat/composer/internal/composer"
	"github.com/altchat/composer/internal/composer/drafts"
	"github.com/altchat/composer/internal/filex"
	"github.com/altchat/composer/internal/logging"
	"github.com/altchat/composer/internal/notify"
	"github.com/altchat/composer/internal/uploader"
	"github.com/altchat/composer/internal/validation"
)

func main() {
	var (
		serverURL = flag.String("server", "http://127.0.0.1:8080", "upload server base URL")
		apiKey    = flag.String("key", "demo", "API key")
		userID    = flag.String("user", "demo-user", "user ID to sign the dev token for")
		secret    = flag.String("secret", "secretKey", "JWT secret the server runs with")
		channelID = flag.String("channel", "demo-channel", "channel to store the draft under")
		text      = flag.String("text", "", "draft message text")
	)
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: demo [flags] file...")
		os.Exit(2)
	}

	if err := run(context.Background(), *serverURL, *apiKey, *userID, *secret, *channelID, *text, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "demo: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, serverURL, apiKey, userID, secret, channelID, text string, paths []string) error {
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	token, err := auth.GenerateToken(userID, []byte(secret), time.Hour)
	if err != nil {
		return fmt.Errorf("signing dev token: %w", err)
	}

	client := chatclient.New(serverURL, apiKey, token, chatclient.WithLogger(logger))

	notifier := notify.NewChannelNotifier(64)
	go func() {
		for ev := range notifier.Events() {
			if ev.Dismissed {
				fmt.Printf("notice cleared: %s\n", ev.Key)
				continue
			}
			fmt.Printf("notice [%s] %s %v\n", ev.Severity, ev.Key, ev.Params)
		}
	}()

	mgr, err := composer.NewManager(composer.Config{
		Uploader:  uploader.New(client, uploader.WithLogger(logger)),
		Validator: validation.NewValidator(client, notifier, logger),
		Notifier:  notifier,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	snapshots, cancel := mgr.Subscribe()
	defer cancel()
	go func() {
		for snap := range snapshots {
			fmt.Printf("state: %d items, %d attachments, %d batches in flight\n",
				len(snap.Items), snap.AttachmentCount, snap.InFlight)
		}
	}()

	files := make([]composer.File, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("reading %s: %w", p, err)
		}
		mimeType := mime.TypeByExtension(filepath.Ext(p))
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		files = append(files, composer.NewFile(filepath.Base(p), mimeType, data))
	}

	if err := mgr.SubmitFiles(ctx, files); err != nil {
		return fmt.Errorf("submitting files: %w", err)
	}
	mgr.Wait()

	for _, item := range mgr.Snapshot().Items {
		fmt.Printf("%-30s %s %s\n", item.File.Name, item.State, item.URL)
	}

	atts := mgr.OutgoingAttachments()

	if err := saveDraft(ctx, channelID, text, atts); err != nil {
		return fmt.Errorf("saving draft: %w", err)
	}

	out, err := json.MarshalIndent(atts, "", "  ")
	if err != nil {
		return err
	}
	fmt.Printf("outgoing attachments:\n%s\n", out)
	return nil
}

// saveDraft persists the composed attachments under ./data/drafts.db, the
// same store a chat UI would restore the channel's draft from.
func saveDraft(ctx context.Context, channelID, text string, atts []attachment.Attachment) error {
	dir, err := filex.EnsureSubDir("data")
	if err != nil {
		return err
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "drafts.db"))
	if err != nil {
		return err
	}
	defer db.Close()

	if err := drafts.Bootstrap(ctx, db); err != nil {
		return err
	}

	repo := drafts.NewSQLiteRepository(db)
	return repo.Save(ctx, &drafts.Draft{
		ChannelID:   channelID,
		Text:        text,
		Attachments: atts,
	})
}
