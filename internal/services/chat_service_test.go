package services

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Creecly/cleaninvest/internal/database"
	apperrors "github.com/Creecly/cleaninvest/internal/errors"
	"github.com/Creecly/cleaninvest/internal/models"
	"github.com/Creecly/cleaninvest/internal/pagination"
	"github.com/Creecly/cleaninvest/internal/storage"
	"github.com/Creecly/cleaninvest/internal/testutil"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func newTestChatService(t *testing.T, db *gorm.DB) ChatServicer {
	t.Helper()
	return newTestChatServiceIn(t, db, t.TempDir())
}

func newTestChatServiceIn(t *testing.T, db *gorm.DB, uploadDir string) ChatServicer {
	t.Helper()
	store, err := storage.NewFileStore(uploadDir, "/uploads", 1<<20)
	if err != nil {
		t.Fatalf("failed to create file store: %v", err)
	}
	return NewChatService(db, store, database.NewKeyedLocker(), nopAudit{})
}

func chatMessages(t *testing.T, db *gorm.DB, chatID string) []models.ChatMessage {
	t.Helper()
	var msgs []models.ChatMessage
	if err := db.Where("chat_id = ?", chatID).Order("created_at ASC, id ASC").Find(&msgs).Error; err != nil {
		t.Fatalf("failed to load messages: %v", err)
	}
	return msgs
}

func countChats(t *testing.T, db *gorm.DB, userID string) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&models.SupportChat{}).Where("user_id = ?", userID).Count(&n).Error; err != nil {
		t.Fatalf("failed to count chats: %v", err)
	}
	return n
}

func uploadedFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read upload dir: %v", err)
	}
	return len(entries)
}

func countSystem(msgs []models.ChatMessage) int {
	n := 0
	for _, m := range msgs {
		if m.IsSystem {
			n++
		}
	}
	return n
}

func TestChatCreate(t *testing.T) {
	t.Run("opens a pending chat with one welcome message", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestChatService(t, db)
		user := testutil.CreateTestUser(t, db)

		chat, err := svc.Create(user.ID)
		testutil.AssertNoError(t, err)
		if chat.Status != models.ChatStatusPending || chat.AdminID != nil {
			t.Errorf("expected pending chat without admin, got %s admin=%v", chat.Status, chat.AdminID)
		}

		msgs := chatMessages(t, db, chat.ID)
		if len(msgs) != 1 || !msgs[0].IsSystem {
			t.Fatalf("expected a single system message, got %d", len(msgs))
		}
	})

	t.Run("returns the existing open chat", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestChatService(t, db)
		user := testutil.CreateTestUser(t, db)

		first, err := svc.Create(user.ID)
		testutil.AssertNoError(t, err)
		second, err := svc.Create(user.ID)
		testutil.AssertNoError(t, err)
		if first.ID != second.ID {
			t.Errorf("expected the same chat, got %s and %s", first.ID, second.ID)
		}
		if n := len(chatMessages(t, db, first.ID)); n != 1 {
			t.Errorf("expected the welcome to be posted once, got %d messages", n)
		}
	})

	t.Run("prefers the active chat", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestChatService(t, db)
		user := testutil.CreateTestUser(t, db)
		admin := testutil.CreateTestAdmin(t, db)
		active := testutil.CreateTestChat(t, db, user.ID, models.ChatStatusActive, &admin.ID)

		chat, err := svc.Create(user.ID)
		testutil.AssertNoError(t, err)
		if chat.ID != active.ID {
			t.Errorf("expected active chat %s, got %s", active.ID, chat.ID)
		}
	})

	t.Run("concurrent creates yield one open chat", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestChatService(t, db)
		user := testutil.CreateTestUser(t, db)

		var wg sync.WaitGroup
		ids := make(chan string, 5)
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				chat, err := svc.Create(user.ID)
				if err != nil {
					t.Errorf("create failed: %v", err)
					return
				}
				ids <- chat.ID
			}()
		}
		wg.Wait()
		close(ids)

		seen := map[string]bool{}
		for id := range ids {
			seen[id] = true
		}
		if len(seen) != 1 {
			t.Errorf("expected one chat id, got %d", len(seen))
		}
		var open int64
		db.Model(&models.SupportChat{}).Where("user_id = ? AND status <> ?", user.ID, models.ChatStatusClosed).Count(&open)
		if open != 1 {
			t.Errorf("expected 1 open chat, got %d", open)
		}
	})
}

func TestChatGet(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc := newTestChatService(t, db)
	user := testutil.CreateTestUser(t, db)
	stranger := testutil.CreateTestUser(t, db)
	admin := testutil.CreateTestAdmin(t, db)
	chat := testutil.CreateTestChat(t, db, user.ID, models.ChatStatusPending, nil)

	t.Run("owner can read", func(t *testing.T) {
		got, err := svc.Get(user.ID, chat.ID)
		testutil.AssertNoError(t, err)
		if got.User == nil || got.User.ID != user.ID {
			t.Error("expected user to be preloaded")
		}
	})

	t.Run("any admin can read", func(t *testing.T) {
		_, err := svc.Get(admin.ID, chat.ID)
		testutil.AssertNoError(t, err)
	})

	t.Run("other users are forbidden", func(t *testing.T) {
		_, err := svc.Get(stranger.ID, chat.ID)
		testutil.AssertAppError(t, err, "FORBIDDEN")
	})

	t.Run("missing chat", func(t *testing.T) {
		_, err := svc.Get(user.ID, models.NewID())
		testutil.AssertAppError(t, err, "CHAT_NOT_FOUND")
	})
}

func TestChatJoin(t *testing.T) {
	t.Run("admin claims a pending chat", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestChatService(t, db)
		user := testutil.CreateTestUser(t, db)
		admin := testutil.CreateTestAdmin(t, db)
		chat := testutil.CreateTestChat(t, db, user.ID, models.ChatStatusPending, nil)

		got, err := svc.Join(admin.ID, chat.ID)
		testutil.AssertNoError(t, err)
		if got.Status != models.ChatStatusActive || !got.HeldBy(admin.ID) || got.AdminJoinedAt == nil {
			t.Errorf("expected active chat held by admin, got %+v", got)
		}

		msgs := chatMessages(t, db, chat.ID)
		if countSystem(msgs) != 2 {
			t.Errorf("expected 2 system messages, got %d", countSystem(msgs))
		}
		if !strings.Contains(msgs[0].Message, admin.Nickname) {
			t.Errorf("expected join announcement to name %s, got %q", admin.Nickname, msgs[0].Message)
		}
	})

	t.Run("exactly one of several concurrent admins wins", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestChatService(t, db)
		user := testutil.CreateTestUser(t, db)
		chat := testutil.CreateTestChat(t, db, user.ID, models.ChatStatusPending, nil)

		admins := make([]*models.User, 5)
		for i := range admins {
			admins[i] = testutil.CreateTestAdmin(t, db)
		}

		var wg sync.WaitGroup
		var mu sync.Mutex
		var winners []string
		unavailable := 0
		for _, a := range admins {
			wg.Add(1)
			go func(adminID string) {
				defer wg.Done()
				_, err := svc.Join(adminID, chat.ID)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					winners = append(winners, adminID)
				case errors.Is(err, apperrors.ErrChatUnavailable):
					unavailable++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(a.ID)
		}
		wg.Wait()

		if len(winners) != 1 || unavailable != 4 {
			t.Fatalf("expected 1 winner and 4 losers, got %d and %d", len(winners), unavailable)
		}
		reloaded := testutil.ReloadChat(t, db, chat.ID)
		if !reloaded.HeldBy(winners[0]) {
			t.Errorf("expected chat held by winner %s", winners[0])
		}
		if n := countSystem(chatMessages(t, db, chat.ID)); n != 2 {
			t.Errorf("expected only the winner's 2 system messages, got %d", n)
		}
	})

	t.Run("non-admin is forbidden", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestChatService(t, db)
		user := testutil.CreateTestUser(t, db)
		other := testutil.CreateTestUser(t, db)
		chat := testutil.CreateTestChat(t, db, user.ID, models.ChatStatusPending, nil)

		_, err := svc.Join(other.ID, chat.ID)
		testutil.AssertAppError(t, err, "FORBIDDEN")
	})

	t.Run("active chat is unavailable", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestChatService(t, db)
		user := testutil.CreateTestUser(t, db)
		holder := testutil.CreateTestAdmin(t, db)
		late := testutil.CreateTestAdmin(t, db)
		chat := testutil.CreateTestChat(t, db, user.ID, models.ChatStatusActive, &holder.ID)

		_, err := svc.Join(late.ID, chat.ID)
		testutil.AssertAppError(t, err, "CHAT_UNAVAILABLE")
	})

	t.Run("missing chat", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestChatService(t, db)
		admin := testutil.CreateTestAdmin(t, db)

		_, err := svc.Join(admin.ID, models.NewID())
		testutil.AssertAppError(t, err, "CHAT_NOT_FOUND")
	})

	t.Run("admin cannot join their own request", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestChatService(t, db)
		admin := testutil.CreateTestAdmin(t, db)
		chat := testutil.CreateTestChat(t, db, admin.ID, models.ChatStatusPending, nil)

		_, err := svc.Join(admin.ID, chat.ID)
		testutil.AssertAppError(t, err, "INVALID_CHAT_STATE")
	})
}

func TestChatLeave(t *testing.T) {
	t.Run("returns the chat to the queue and it can be joined again", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestChatService(t, db)
		user := testutil.CreateTestUser(t, db)
		first := testutil.CreateTestAdmin(t, db)
		second := testutil.CreateTestAdmin(t, db)
		chat := testutil.CreateTestChat(t, db, user.ID, models.ChatStatusPending, nil)

		_, err := svc.Join(first.ID, chat.ID)
		testutil.AssertNoError(t, err)

		left, err := svc.Leave(first.ID, chat.ID)
		testutil.AssertNoError(t, err)
		if left.Status != models.ChatStatusPending || left.AdminID != nil || left.AdminJoinedAt != nil {
			t.Errorf("expected pending chat without admin, got %+v", left)
		}

		rejoined, err := svc.Join(second.ID, chat.ID)
		testutil.AssertNoError(t, err)
		if !rejoined.HeldBy(second.ID) {
			t.Error("expected second admin to hold the chat")
		}
	})

	t.Run("only the holding admin can leave", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestChatService(t, db)
		user := testutil.CreateTestUser(t, db)
		holder := testutil.CreateTestAdmin(t, db)
		other := testutil.CreateTestAdmin(t, db)
		chat := testutil.CreateTestChat(t, db, user.ID, models.ChatStatusActive, &holder.ID)

		_, err := svc.Leave(other.ID, chat.ID)
		testutil.AssertAppError(t, err, "INVALID_CHAT_STATE")
		if !testutil.ReloadChat(t, db, chat.ID).HeldBy(holder.ID) {
			t.Error("expected chat to stay with its holder")
		}
	})

	t.Run("pending chat cannot be left", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestChatService(t, db)
		user := testutil.CreateTestUser(t, db)
		admin := testutil.CreateTestAdmin(t, db)
		chat := testutil.CreateTestChat(t, db, user.ID, models.ChatStatusPending, nil)

		_, err := svc.Leave(admin.ID, chat.ID)
		testutil.AssertAppError(t, err, "INVALID_CHAT_STATE")
	})
}

func TestChatClose(t *testing.T) {
	t.Run("holder closes the chat", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestChatService(t, db)
		user := testutil.CreateTestUser(t, db)
		admin := testutil.CreateTestAdmin(t, db)
		chat := testutil.CreateTestChat(t, db, user.ID, models.ChatStatusActive, &admin.ID)

		closed, err := svc.Close(admin.ID, chat.ID)
		testutil.AssertNoError(t, err)
		if closed.Status != models.ChatStatusClosed || closed.ClosedAt == nil || closed.AdminID != nil {
			t.Errorf("expected closed chat without admin, got %+v", closed)
		}

		_, err = svc.Join(admin.ID, chat.ID)
		testutil.AssertAppError(t, err, "CHAT_UNAVAILABLE")
	})

	t.Run("another admin is forbidden", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestChatService(t, db)
		user := testutil.CreateTestUser(t, db)
		holder := testutil.CreateTestAdmin(t, db)
		other := testutil.CreateTestAdmin(t, db)
		chat := testutil.CreateTestChat(t, db, user.ID, models.ChatStatusActive, &holder.ID)

		_, err := svc.Close(other.ID, chat.ID)
		testutil.AssertAppError(t, err, "FORBIDDEN")
	})

	t.Run("pending chat cannot be closed", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestChatService(t, db)
		user := testutil.CreateTestUser(t, db)
		admin := testutil.CreateTestAdmin(t, db)
		chat := testutil.CreateTestChat(t, db, user.ID, models.ChatStatusPending, nil)

		_, err := svc.Close(admin.ID, chat.ID)
		testutil.AssertAppError(t, err, "INVALID_CHAT_STATE")
	})
}

func TestChatSendMessage(t *testing.T) {
	t.Run("user message counts as unread for the admin", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestChatService(t, db)
		user := testutil.CreateTestUser(t, db)
		admin := testutil.CreateTestAdmin(t, db)
		chat := testutil.CreateTestChat(t, db, user.ID, models.ChatStatusActive, &admin.ID)

		res, err := svc.SendMessage(user.ID, chat.ID, MessageInput{Text: "  hello  "})
		testutil.AssertNoError(t, err)
		if res.Moved || res.NewChat || res.Chat.ID != chat.ID {
			t.Error("expected message in the same chat")
		}
		if res.Message.Message != "hello" {
			t.Errorf("expected trimmed text, got %q", res.Message.Message)
		}
		if res.Chat.UnreadAdminCount != 1 || res.Chat.UnreadUserCount != 0 {
			t.Errorf("expected unread admin=1 user=0, got %d and %d", res.Chat.UnreadAdminCount, res.Chat.UnreadUserCount)
		}

		count, err := svc.UnreadCount(admin.ID)
		testutil.AssertNoError(t, err)
		if count != 1 {
			t.Errorf("expected admin unread count 1, got %d", count)
		}
	})

	t.Run("admin message counts as unread for the user", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestChatService(t, db)
		user := testutil.CreateTestUser(t, db)
		admin := testutil.CreateTestAdmin(t, db)
		chat := testutil.CreateTestChat(t, db, user.ID, models.ChatStatusActive, &admin.ID)

		res, err := svc.SendMessage(admin.ID, chat.ID, MessageInput{Text: "how can I help?"})
		testutil.AssertNoError(t, err)
		if res.Chat.UnreadUserCount != 1 {
			t.Errorf("expected unread user count 1, got %d", res.Chat.UnreadUserCount)
		}

		count, err := svc.UnreadCount(user.ID)
		testutil.AssertNoError(t, err)
		if count != 1 {
			t.Errorf("expected user unread count 1, got %d", count)
		}
	})

	t.Run("closed chat moves the user to a new pending chat", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestChatService(t, db)
		user := testutil.CreateTestUser(t, db)
		closed := testutil.CreateTestChat(t, db, user.ID, models.ChatStatusClosed, nil)

		res, err := svc.SendMessage(user.ID, closed.ID, MessageInput{Text: "one more question"})
		testutil.AssertNoError(t, err)
		if !res.Moved || !res.NewChat || res.Chat.ID == closed.ID {
			t.Fatal("expected a new chat")
		}
		if res.Chat.Status != models.ChatStatusPending {
			t.Errorf("expected pending chat, got %s", res.Chat.Status)
		}
		if testutil.ReloadChat(t, db, closed.ID).Status != models.ChatStatusClosed {
			t.Error("closed chat must stay closed")
		}

		msgs := chatMessages(t, db, res.Chat.ID)
		if len(msgs) != 2 || countSystem(msgs) != 1 {
			t.Errorf("expected welcome plus the message, got %d messages (%d system)", len(msgs), countSystem(msgs))
		}
		if n := len(chatMessages(t, db, closed.ID)); n != 0 {
			t.Errorf("expected nothing posted to the closed chat, got %d", n)
		}
	})

	t.Run("closed chat reuses the user's open chat", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestChatService(t, db)
		user := testutil.CreateTestUser(t, db)
		closed := testutil.CreateTestChat(t, db, user.ID, models.ChatStatusClosed, nil)
		pending := testutil.CreateTestChat(t, db, user.ID, models.ChatStatusPending, nil)

		res, err := svc.SendMessage(user.ID, closed.ID, MessageInput{Text: "still waiting"})
		testutil.AssertNoError(t, err)
		if !res.Moved || res.NewChat {
			t.Errorf("expected moved=true new_chat=false, got %v and %v", res.Moved, res.NewChat)
		}
		if res.Chat.ID != pending.ID {
			t.Errorf("expected the pending chat %s, got %s", pending.ID, res.Chat.ID)
		}
		if n := countChats(t, db, user.ID); n != 2 {
			t.Errorf("expected 2 chats, got %d", n)
		}
	})

	t.Run("rejected attachment on a closed chat opens nothing", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		dir := t.TempDir()
		svc := newTestChatServiceIn(t, db, dir)
		user := testutil.CreateTestUser(t, db)
		closed := testutil.CreateTestChat(t, db, user.ID, models.ChatStatusClosed, nil)

		_, err := svc.SendMessage(user.ID, closed.ID, MessageInput{
			Text:       "see attached",
			Attachment: &AttachmentInput{Filename: "fake.png", Content: strings.NewReader("#!/bin/sh\necho hi\n")},
		})
		testutil.AssertAppError(t, err, "INVALID_ATTACHMENT")

		if n := countChats(t, db, user.ID); n != 1 {
			t.Errorf("expected only the closed chat, got %d chats", n)
		}
		var msgs int64
		db.Model(&models.ChatMessage{}).Count(&msgs)
		if msgs != 0 {
			t.Errorf("expected no messages, got %d", msgs)
		}
		if n := uploadedFiles(t, dir); n != 0 {
			t.Errorf("expected no stored files, got %d", n)
		}
	})

	t.Run("failed write on a closed chat rolls back the new chat and its attachment", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		dir := t.TempDir()
		svc := newTestChatServiceIn(t, db, dir)
		user := testutil.CreateTestUser(t, db)
		closed := testutil.CreateTestChat(t, db, user.ID, models.ChatStatusClosed, nil)
		if err := db.Migrator().DropTable(&models.ChatMessage{}); err != nil {
			t.Fatalf("failed to drop messages table: %v", err)
		}

		_, err := svc.SendMessage(user.ID, closed.ID, MessageInput{
			Attachment: &AttachmentInput{Filename: "screenshot.png", Content: bytes.NewReader(pngBytes)},
		})
		testutil.AssertAppError(t, err, "INTERNAL_ERROR")

		if n := countChats(t, db, user.ID); n != 1 {
			t.Errorf("expected only the closed chat, got %d chats", n)
		}
		if n := uploadedFiles(t, dir); n != 0 {
			t.Errorf("expected the attachment to be removed, found %d files", n)
		}
	})

	t.Run("attachment is removed when the chat closes before the write", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		dir := t.TempDir()
		svc := newTestChatServiceIn(t, db, dir)
		user := testutil.CreateTestUser(t, db)
		admin := testutil.CreateTestAdmin(t, db)
		chat := testutil.CreateTestChat(t, db, user.ID, models.ChatStatusActive, &admin.ID)

		// The admin's permission check passes; the chat is closed before the
		// attachment reader finishes.
		content := &closingReader{r: bytes.NewReader(pngBytes), onEOF: func() {
			db.Model(&models.SupportChat{}).Where("id = ?", chat.ID).
				Updates(map[string]interface{}{"status": models.ChatStatusClosed})
		}}
		_, err := svc.SendMessage(admin.ID, chat.ID, MessageInput{
			Attachment: &AttachmentInput{Filename: "receipt.png", Content: content},
		})
		testutil.AssertAppError(t, err, "CHAT_UNAVAILABLE")

		if n := uploadedFiles(t, dir); n != 0 {
			t.Errorf("expected the attachment to be removed, found %d files", n)
		}
		if n := len(chatMessages(t, db, chat.ID)); n != 0 {
			t.Errorf("expected no messages, got %d", n)
		}
	})

	t.Run("welcome is posted once for a chat that missed it", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestChatService(t, db)
		user := testutil.CreateTestUser(t, db)
		chat := testutil.CreateTestChat(t, db, user.ID, models.ChatStatusPending, nil)
		db.Model(chat).Update("welcome_posted", false)

		for i := 0; i < 3; i++ {
			_, err := svc.SendMessage(user.ID, chat.ID, MessageInput{Text: "anyone there?"})
			testutil.AssertNoError(t, err)
		}

		msgs := chatMessages(t, db, chat.ID)
		if countSystem(msgs) != 1 {
			t.Errorf("expected exactly one welcome, got %d", countSystem(msgs))
		}
		if len(msgs) != 4 {
			t.Errorf("expected 4 messages, got %d", len(msgs))
		}
	})

	t.Run("empty message is rejected", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestChatService(t, db)
		user := testutil.CreateTestUser(t, db)
		chat := testutil.CreateTestChat(t, db, user.ID, models.ChatStatusPending, nil)

		_, err := svc.SendMessage(user.ID, chat.ID, MessageInput{Text: "   "})
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})

	t.Run("outsiders and non-holding admins are forbidden", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestChatService(t, db)
		user := testutil.CreateTestUser(t, db)
		stranger := testutil.CreateTestUser(t, db)
		holder := testutil.CreateTestAdmin(t, db)
		other := testutil.CreateTestAdmin(t, db)
		chat := testutil.CreateTestChat(t, db, user.ID, models.ChatStatusActive, &holder.ID)

		_, err := svc.SendMessage(stranger.ID, chat.ID, MessageInput{Text: "hi"})
		testutil.AssertAppError(t, err, "FORBIDDEN")
		_, err = svc.SendMessage(other.ID, chat.ID, MessageInput{Text: "hi"})
		testutil.AssertAppError(t, err, "FORBIDDEN")
	})

	t.Run("stores an image attachment", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestChatService(t, db)
		user := testutil.CreateTestUser(t, db)
		chat := testutil.CreateTestChat(t, db, user.ID, models.ChatStatusPending, nil)

		res, err := svc.SendMessage(user.ID, chat.ID, MessageInput{
			Attachment: &AttachmentInput{Filename: "screenshot.png", Content: bytes.NewReader(pngBytes)},
		})
		testutil.AssertNoError(t, err)
		if !strings.HasPrefix(res.Message.AttachmentURL, "/uploads/user_"+user.ID) {
			t.Errorf("unexpected attachment url %q", res.Message.AttachmentURL)
		}
		if res.Message.AttachmentContentType != "image/png" {
			t.Errorf("expected image/png, got %q", res.Message.AttachmentContentType)
		}
	})

	t.Run("rejects disallowed and disguised attachments", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestChatService(t, db)
		user := testutil.CreateTestUser(t, db)
		chat := testutil.CreateTestChat(t, db, user.ID, models.ChatStatusPending, nil)

		_, err := svc.SendMessage(user.ID, chat.ID, MessageInput{
			Attachment: &AttachmentInput{Filename: "payload.exe", Content: bytes.NewReader(pngBytes)},
		})
		testutil.AssertAppError(t, err, "INVALID_ATTACHMENT")

		_, err = svc.SendMessage(user.ID, chat.ID, MessageInput{
			Attachment: &AttachmentInput{Filename: "fake.png", Content: strings.NewReader("#!/bin/sh\necho hi\n")},
		})
		testutil.AssertAppError(t, err, "INVALID_ATTACHMENT")

		if n := len(chatMessages(t, db, chat.ID)); n != 0 {
			t.Errorf("expected no messages, got %d", n)
		}
	})
}

// closingReader runs onEOF once the wrapped reader is exhausted.
type closingReader struct {
	r     io.Reader
	onEOF func()
	done  bool
}

func (c *closingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if err == io.EOF && !c.done {
		c.done = true
		c.onEOF()
	}
	return n, err
}

func TestChatListMessages(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc := newTestChatService(t, db)
	user := testutil.CreateTestUser(t, db)
	admin := testutil.CreateTestAdmin(t, db)
	chat := testutil.CreateTestChat(t, db, user.ID, models.ChatStatusActive, &admin.ID)

	_, err := svc.SendMessage(user.ID, chat.ID, MessageInput{Text: "first"})
	testutil.AssertNoError(t, err)
	_, err = svc.SendMessage(user.ID, chat.ID, MessageInput{Text: "second"})
	testutil.AssertNoError(t, err)

	t.Run("admin reading clears their unread counter", func(t *testing.T) {
		msgs, err := svc.ListMessages(admin.ID, chat.ID)
		testutil.AssertNoError(t, err)
		if len(msgs) != 2 || msgs[0].Message != "first" || msgs[1].Message != "second" {
			t.Fatalf("expected messages in order, got %+v", msgs)
		}
		for _, m := range msgs {
			if !m.IsRead {
				t.Errorf("expected message %q to be read", m.Message)
			}
		}
		if got := testutil.ReloadChat(t, db, chat.ID).UnreadAdminCount; got != 0 {
			t.Errorf("expected unread admin count 0, got %d", got)
		}
		count, err := svc.UnreadCount(admin.ID)
		testutil.AssertNoError(t, err)
		if count != 0 {
			t.Errorf("expected 0 unread, got %d", count)
		}
	})

	t.Run("outsider is forbidden", func(t *testing.T) {
		other := testutil.CreateTestAdmin(t, db)
		_, err := svc.ListMessages(other.ID, chat.ID)
		testutil.AssertAppError(t, err, "FORBIDDEN")
	})
}

func TestChatGrantBalance(t *testing.T) {
	t.Run("credits exactly the amount with one system message", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestChatService(t, db)
		user := testutil.CreateTestUser(t, db)
		admin := testutil.CreateTestAdmin(t, db)
		chat := testutil.CreateTestChat(t, db, user.ID, models.ChatStatusActive, &admin.ID)
		before := len(chatMessages(t, db, chat.ID))

		res, err := svc.GrantBalance(admin.ID, chat.ID, decimal.NewFromInt(250))
		testutil.AssertNoError(t, err)
		testutil.AssertDecimal(t, "result balance", res.Balance, "1250")

		reloaded := testutil.ReloadUser(t, db, user.ID)
		testutil.AssertDecimal(t, "balance", reloaded.Balance, "1250")
		if reloaded.InvestmentsCount != 0 {
			t.Errorf("grant must not count as an investment, got %d", reloaded.InvestmentsCount)
		}

		msgs := chatMessages(t, db, chat.ID)
		if len(msgs) != before+1 {
			t.Fatalf("expected exactly one new message, got %d", len(msgs)-before)
		}
		last := msgs[len(msgs)-1]
		if !last.IsSystem || !strings.Contains(last.Message, "250.00") || !strings.Contains(last.Message, "1250.00") {
			t.Errorf("unexpected grant message %q", last.Message)
		}

		var entry models.LedgerEntry
		if err := db.Where("user_id = ? AND kind = ?", user.ID, models.LedgerEntryChatGrant).First(&entry).Error; err != nil {
			t.Fatalf("expected a grant ledger entry: %v", err)
		}
		testutil.AssertDecimal(t, "entry amount", entry.Amount, "250")
	})

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestChatService(t, db)
		user := testutil.CreateTestUser(t, db)
		admin := testutil.CreateTestAdmin(t, db)
		chat := testutil.CreateTestChat(t, db, user.ID, models.ChatStatusActive, &admin.ID)

		for _, amount := range []string{"0", "-5"} {
			_, err := svc.GrantBalance(admin.ID, chat.ID, decimal.RequireFromString(amount))
			testutil.AssertAppError(t, err, "INVALID_INPUT")
		}
	})

	t.Run("only the holder of an active chat may grant", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestChatService(t, db)
		user := testutil.CreateTestUser(t, db)
		holder := testutil.CreateTestAdmin(t, db)
		other := testutil.CreateTestAdmin(t, db)
		active := testutil.CreateTestChat(t, db, user.ID, models.ChatStatusActive, &holder.ID)
		pending := testutil.CreateTestChat(t, db, testutil.CreateTestUser(t, db).ID, models.ChatStatusPending, nil)

		_, err := svc.GrantBalance(other.ID, active.ID, decimal.NewFromInt(10))
		testutil.AssertAppError(t, err, "FORBIDDEN")
		_, err = svc.GrantBalance(holder.ID, pending.ID, decimal.NewFromInt(10))
		testutil.AssertAppError(t, err, "INVALID_CHAT_STATE")
		_, err = svc.GrantBalance(user.ID, active.ID, decimal.NewFromInt(10))
		testutil.AssertAppError(t, err, "FORBIDDEN")

		testutil.AssertDecimal(t, "balance", testutil.ReloadUser(t, db, user.ID).Balance, "1000")
	})

	t.Run("store failure rolls back the credit and the message", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestChatService(t, db)
		user := testutil.CreateTestUser(t, db)
		admin := testutil.CreateTestAdmin(t, db)
		chat := testutil.CreateTestChat(t, db, user.ID, models.ChatStatusActive, &admin.ID)
		before := len(chatMessages(t, db, chat.ID))
		if err := db.Migrator().DropTable(&models.LedgerEntry{}); err != nil {
			t.Fatalf("failed to drop ledger table: %v", err)
		}

		_, err := svc.GrantBalance(admin.ID, chat.ID, decimal.NewFromInt(250))
		testutil.AssertAppError(t, err, "INTERNAL_ERROR")

		testutil.AssertDecimal(t, "balance", testutil.ReloadUser(t, db, user.ID).Balance, "1000")
		if n := len(chatMessages(t, db, chat.ID)); n != before {
			t.Errorf("expected no new messages, got %d", n-before)
		}
		if got := testutil.ReloadChat(t, db, chat.ID); got.Status != models.ChatStatusActive {
			t.Errorf("expected chat to stay active, got %s", got.Status)
		}
	})
}

func TestChatListings(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc := newTestChatService(t, db)
	admin := testutil.CreateTestAdmin(t, db)
	other := testutil.CreateTestAdmin(t, db)
	u1 := testutil.CreateTestUser(t, db)
	u2 := testutil.CreateTestUser(t, db)
	u3 := testutil.CreateTestUser(t, db)
	testutil.CreateTestChat(t, db, u1.ID, models.ChatStatusPending, nil)
	mine := testutil.CreateTestChat(t, db, u2.ID, models.ChatStatusActive, &admin.ID)
	testutil.CreateTestChat(t, db, u3.ID, models.ChatStatusActive, &other.ID)
	testutil.CreateTestChat(t, db, u1.ID, models.ChatStatusClosed, nil)

	t.Run("pending queue", func(t *testing.T) {
		chats, err := svc.ListPending(admin.ID)
		testutil.AssertNoError(t, err)
		if len(chats) != 1 || chats[0].UserID != u1.ID {
			t.Errorf("expected u1's pending chat, got %d chats", len(chats))
		}
		_, err = svc.ListPending(u1.ID)
		testutil.AssertAppError(t, err, "FORBIDDEN")
	})

	t.Run("active chats held by the admin", func(t *testing.T) {
		chats, err := svc.ListActive(admin.ID)
		testutil.AssertNoError(t, err)
		if len(chats) != 1 || chats[0].ID != mine.ID {
			t.Errorf("expected only the admin's own chat, got %d", len(chats))
		}
		if chats[0].Admin == nil || chats[0].Admin.ID != admin.ID {
			t.Error("expected admin to be preloaded")
		}
	})

	t.Run("user sees their own active chat", func(t *testing.T) {
		chats, err := svc.ListActive(u2.ID)
		testutil.AssertNoError(t, err)
		if len(chats) != 1 || chats[0].ID != mine.ID {
			t.Errorf("expected u2's active chat, got %d", len(chats))
		}
	})

	t.Run("closed history", func(t *testing.T) {
		page, err := svc.ListClosed(admin.ID, pagination.PageRequest{})
		testutil.AssertNoError(t, err)
		if page.TotalItems != 1 || len(page.Data) != 1 {
			t.Errorf("expected 1 closed chat, got %d", page.TotalItems)
		}
	})
}
