package deaddrop

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

func TestIntroduction_EndToEnd(t *testing.T) {
	relay := newTestRelay(t)
	alice := newTestClient(t, relay.url())
	bob := newTestClient(t, relay.url())
	carol := newTestClient(t, relay.url())
	ctx := context.Background()

	bobOnAlice, _ := pairContacts(t, alice, bob, "bob", "alice")
	carolOnAlice, _ := pairContacts(t, alice, carol, "carol", "alice")

	if _, err := alice.SendIntroduction(ctx, bobOnAlice.ID, carolOnAlice.ID, "meet carol"); err != nil {
		t.Fatalf("SendIntroduction() error = %v", err)
	}

	fresh, err := bob.FetchIncoming(ctx)
	if err != nil || len(fresh) != 1 {
		t.Fatalf("bob FetchIncoming() = %d messages, error = %v", len(fresh), err)
	}
	msg := fresh[0]
	att := msg.Core().Attachment
	if att == nil || att.IntroductionKey == nil {
		t.Fatal("received message carries no introduction key")
	}
	if att.IntroductionKey.Name != "carol" {
		t.Errorf("introduced name = %q, want %q", att.IntroductionKey.Name, "carol")
	}

	accepted, err := bob.AcceptIntroduction(ctx, msg.Core().ID, "")
	if err != nil {
		t.Fatalf("AcceptIntroduction() error = %v", err)
	}
	if accepted.Name != "carol" {
		t.Errorf("contact name = %q, want the attached %q", accepted.Name, "carol")
	}
	if accepted.UserGeneratedKey != carolOnAlice.UserGeneratedKey {
		t.Errorf("accepted UserGeneratedKey = %v, want the introducer's %v",
			accepted.UserGeneratedKey, carolOnAlice.UserGeneratedKey)
	}

	// The imported material is the key alice holds for carol.
	wantMaterial, err := alice.ExportContactKey(ctx, carolOnAlice.ID)
	if err != nil {
		t.Fatalf("ExportContactKey() on alice error = %v", err)
	}
	gotMaterial, err := bob.ExportContactKey(ctx, accepted.ID)
	if err != nil {
		t.Fatalf("ExportContactKey() on bob error = %v", err)
	}
	if gotMaterial != wantMaterial {
		t.Error("imported key material differs from the introduced key")
	}

	// Bob took the introducer's end of the key, so his messages land where
	// carol already polls.
	if _, err := bob.SendMessage(ctx, accepted.ID, "hi carol, bob here"); err != nil {
		t.Fatalf("SendMessage() to the imported contact error = %v", err)
	}
	carolFresh, err := carol.FetchIncoming(ctx)
	if err != nil || len(carolFresh) != 1 {
		t.Fatalf("carol FetchIncoming() = %d messages, error = %v", len(carolFresh), err)
	}
	if text, err := carol.DecryptMessage(ctx, carolFresh[0]); err != nil || text != "hi carol, bob here" {
		t.Errorf("DecryptMessage() = %q, %v; want %q, nil", text, err, "hi carol, bob here")
	}

	// Accepting consumed the grant.
	stored, err := bob.GetMessage(ctx, msg.Core().ID)
	if err != nil {
		t.Fatalf("GetMessage() error = %v", err)
	}
	if stored.Core().Attachment != nil {
		t.Error("grant still on the message after a successful accept")
	}
	if _, err := bob.AcceptIntroduction(ctx, msg.Core().ID, ""); !errors.Is(err, ErrNoAttachment) {
		t.Errorf("second accept error = %v, want ErrNoAttachment", err)
	}
}

func TestAcceptIntroduction_NameOverride(t *testing.T) {
	relay := newTestRelay(t)
	alice := newTestClient(t, relay.url())
	bob := newTestClient(t, relay.url())
	carol := newTestClient(t, relay.url())
	ctx := context.Background()

	bobOnAlice, _ := pairContacts(t, alice, bob, "bob", "alice")
	carolOnAlice, _ := pairContacts(t, alice, carol, "carol", "alice")

	if _, err := alice.SendIntroduction(ctx, bobOnAlice.ID, carolOnAlice.ID, "meet carol"); err != nil {
		t.Fatalf("SendIntroduction() error = %v", err)
	}
	fresh, err := bob.FetchIncoming(ctx)
	if err != nil || len(fresh) != 1 {
		t.Fatalf("bob FetchIncoming() = %d messages, error = %v", len(fresh), err)
	}

	accepted, err := bob.AcceptIntroduction(ctx, fresh[0].Core().ID, "carol from work")
	if err != nil {
		t.Fatalf("AcceptIntroduction() error = %v", err)
	}
	if accepted.Name != "carol from work" {
		t.Errorf("contact name = %q, want the override", accepted.Name)
	}
}

func TestSendIntroduction_Validation(t *testing.T) {
	relay := newTestRelay(t)
	alice := newTestClient(t, relay.url())
	bob := newTestClient(t, relay.url())
	ctx := context.Background()

	bobOnAlice, _ := pairContacts(t, alice, bob, "bob", "alice")

	t.Run("self introduction", func(t *testing.T) {
		_, err := alice.SendIntroduction(ctx, bobOnAlice.ID, bobOnAlice.ID, "meet yourself")
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Errorf("error = %v, want *ValidationError", err)
		}
	})

	t.Run("unknown introduced contact", func(t *testing.T) {
		_, err := alice.SendIntroduction(ctx, bobOnAlice.ID, "ghost", "meet nobody")
		if !errors.Is(err, ErrContactNotFound) {
			t.Errorf("error = %v, want ErrContactNotFound", err)
		}
	})
}

func TestAcceptIntroduction_NoGrant(t *testing.T) {
	relay := newTestRelay(t)
	c := newTestClient(t, relay.url())
	ctx := context.Background()

	contact, err := c.AddContact(ctx, "peer", "", mustKeyMaterial(t), true)
	if err != nil {
		t.Fatalf("AddContact() error = %v", err)
	}
	plain, err := c.SendMessage(ctx, contact.ID, "no attachment here")
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	if _, err := c.AcceptIntroduction(ctx, plain.Core().ID, ""); !errors.Is(err, ErrNoAttachment) {
		t.Errorf("error = %v, want ErrNoAttachment", err)
	}
	if _, err := c.AcceptIntroduction(ctx, "missing", ""); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("error = %v, want ErrMessageNotFound", err)
	}
}

func TestAcceptIntroduction_Expired(t *testing.T) {
	relay := newTestRelay(t)
	alice := newTestClient(t, relay.url())
	bob := newTestClient(t, relay.url(), WithAttachmentTTL(time.Nanosecond))
	carol := newTestClient(t, relay.url())
	ctx := context.Background()

	bobOnAlice, _ := pairContacts(t, alice, bob, "bob", "alice")
	carolOnAlice, _ := pairContacts(t, alice, carol, "carol", "alice")

	if _, err := alice.SendIntroduction(ctx, bobOnAlice.ID, carolOnAlice.ID, "meet carol"); err != nil {
		t.Fatalf("SendIntroduction() error = %v", err)
	}
	fresh, err := bob.FetchIncoming(ctx)
	if err != nil || len(fresh) != 1 {
		t.Fatalf("bob FetchIncoming() = %d messages, error = %v", len(fresh), err)
	}
	time.Sleep(time.Millisecond)

	if _, err := bob.AcceptIntroduction(ctx, fresh[0].Core().ID, ""); !errors.Is(err, ErrAttachmentExpired) {
		t.Fatalf("error = %v, want ErrAttachmentExpired", err)
	}

	// The expired grant was stripped on the way out.
	stored, err := bob.GetMessage(ctx, fresh[0].Core().ID)
	if err != nil {
		t.Fatalf("GetMessage() error = %v", err)
	}
	if stored.Core().Attachment != nil {
		t.Error("expired grant still on the message")
	}
	if _, err := bob.AcceptIntroduction(ctx, fresh[0].Core().ID, ""); !errors.Is(err, ErrNoAttachment) {
		t.Errorf("accept after strip error = %v, want ErrNoAttachment", err)
	}
}

func TestExpireAttachments(t *testing.T) {
	relay := newTestRelay(t)
	c := newTestClient(t, relay.url(), WithAttachmentTTL(time.Millisecond))
	ctx := context.Background()

	peer, err := c.AddContact(ctx, "peer", "", mustKeyMaterial(t), true)
	if err != nil {
		t.Fatalf("AddContact() error = %v", err)
	}
	third, err := c.AddContact(ctx, "third", "", mustKeyMaterial(t), true)
	if err != nil {
		t.Fatalf("AddContact() error = %v", err)
	}

	intro, err := c.SendIntroduction(ctx, peer.ID, third.ID, "meet third")
	if err != nil {
		t.Fatalf("SendIntroduction() error = %v", err)
	}
	if _, err := c.SendMessage(ctx, peer.ID, "plain"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	sealedBefore := intro.Core().Ciphertext

	time.Sleep(5 * time.Millisecond)
	expired, err := c.ExpireAttachments(ctx)
	if err != nil {
		t.Fatalf("ExpireAttachments() error = %v", err)
	}
	if expired != 1 {
		t.Errorf("expired = %d, want 1", expired)
	}

	// The strip rewrites the sealed payload, so even the stored ciphertext no
	// longer contains the grant; the text survives.
	stored, err := c.GetMessage(ctx, intro.Core().ID)
	if err != nil {
		t.Fatalf("GetMessage() error = %v", err)
	}
	if stored.Core().Attachment != nil {
		t.Error("grant still on the message after expiry")
	}
	if stored.Core().Ciphertext == sealedBefore {
		t.Error("stored ciphertext unchanged; the grant is still recoverable from it")
	}
	if text, err := c.DecryptMessage(ctx, stored); err != nil || text != "meet third" {
		t.Errorf("DecryptMessage() = %q, %v; want %q, nil", text, err, "meet third")
	}

	// Nothing left to expire.
	expired, err = c.ExpireAttachments(ctx)
	if err != nil {
		t.Fatalf("second ExpireAttachments() error = %v", err)
	}
	if expired != 0 {
		t.Errorf("second pass expired = %d, want 0", expired)
	}
}

func TestFileAnnouncement_EndToEnd(t *testing.T) {
	relay := newTestRelay(t)
	alice := newTestClient(t, relay.url())
	bob := newTestClient(t, relay.url())
	ctx := context.Background()

	bobOnAlice, _ := pairContacts(t, alice, bob, "bob", "alice")

	content := bytes.Repeat([]byte("quarterly numbers\n"), 400)
	file, err := EncryptFile(content, "report.pdf", "application/pdf")
	if err != nil {
		t.Fatalf("EncryptFile() error = %v", err)
	}

	if _, err := alice.SendFileAnnouncement(ctx, bobOnAlice.ID, file, "here is the report"); err != nil {
		t.Fatalf("SendFileAnnouncement() error = %v", err)
	}

	fresh, err := bob.FetchIncoming(ctx)
	if err != nil || len(fresh) != 1 {
		t.Fatalf("bob FetchIncoming() = %d messages, error = %v", len(fresh), err)
	}
	msg := fresh[0]
	att := msg.Core().Attachment
	if att == nil || att.FileTransfer == nil {
		t.Fatal("received message carries no file grant")
	}
	if att.FileTransfer.Metadata.Filename != "report.pdf" {
		t.Errorf("Filename = %q, want report.pdf", att.FileTransfer.Metadata.Filename)
	}

	// The container travels out of band; here it is handed over directly.
	got, err := bob.DecryptAttachedFile(ctx, msg.Core().ID, file.Container)
	if err != nil {
		t.Fatalf("DecryptAttachedFile() error = %v", err)
	}
	if !bytes.Equal(got.Content, content) {
		t.Error("decrypted content differs from the original")
	}
	if got.Filename != "report.pdf" || got.MimeType != "application/pdf" {
		t.Errorf("identity = %q/%q, want report.pdf/application/pdf", got.Filename, got.MimeType)
	}

	// Success consumed the grant.
	if _, err := bob.DecryptAttachedFile(ctx, msg.Core().ID, file.Container); !errors.Is(err, ErrNoAttachment) {
		t.Errorf("second decrypt error = %v, want ErrNoAttachment", err)
	}
}

func TestDecryptAttachedFile_BadContainerKeepsGrant(t *testing.T) {
	relay := newTestRelay(t)
	alice := newTestClient(t, relay.url())
	bob := newTestClient(t, relay.url())
	ctx := context.Background()

	bobOnAlice, _ := pairContacts(t, alice, bob, "bob", "alice")

	content := []byte("small file")
	file, err := EncryptFile(content, "note.txt", "text/plain")
	if err != nil {
		t.Fatalf("EncryptFile() error = %v", err)
	}
	if _, err := alice.SendFileAnnouncement(ctx, bobOnAlice.ID, file, ""); err != nil {
		t.Fatalf("SendFileAnnouncement() error = %v", err)
	}
	fresh, err := bob.FetchIncoming(ctx)
	if err != nil || len(fresh) != 1 {
		t.Fatalf("bob FetchIncoming() = %d messages, error = %v", len(fresh), err)
	}
	msgID := fresh[0].Core().ID

	tampered := bytes.Clone(file.Container)
	tampered[len(tampered)-1] ^= 0x01
	if _, err := bob.DecryptAttachedFile(ctx, msgID, tampered); err == nil {
		t.Fatal("DecryptAttachedFile() accepted a tampered container")
	}

	// The failed attempt must not burn the grant; the intact container still
	// decrypts.
	got, err := bob.DecryptAttachedFile(ctx, msgID, file.Container)
	if err != nil {
		t.Fatalf("retry DecryptAttachedFile() error = %v", err)
	}
	if !bytes.Equal(got.Content, content) {
		t.Error("decrypted content differs from the original")
	}
}

func TestSendFileAnnouncement_NilFile(t *testing.T) {
	relay := newTestRelay(t)
	c := newTestClient(t, relay.url())
	ctx := context.Background()

	contact, err := c.AddContact(ctx, "peer", "", mustKeyMaterial(t), true)
	if err != nil {
		t.Fatalf("AddContact() error = %v", err)
	}
	_, err = c.SendFileAnnouncement(ctx, contact.ID, nil, "nothing")
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Errorf("error = %v, want *ValidationError", err)
	}
}

func TestForwardMessage_StripsIntroductionFromOriginal(t *testing.T) {
	relay := newTestRelay(t)
	alice := newTestClient(t, relay.url())
	bob := newTestClient(t, relay.url())
	carol := newTestClient(t, relay.url())
	dave := newTestClient(t, relay.url())
	ctx := context.Background()

	bobOnAlice, _ := pairContacts(t, alice, bob, "bob", "alice")
	carolOnAlice, _ := pairContacts(t, alice, carol, "carol", "alice")
	daveOnBob, _ := pairContacts(t, bob, dave, "dave", "bob")

	if _, err := alice.SendIntroduction(ctx, bobOnAlice.ID, carolOnAlice.ID, "meet carol"); err != nil {
		t.Fatalf("SendIntroduction() error = %v", err)
	}
	fresh, err := bob.FetchIncoming(ctx)
	if err != nil || len(fresh) != 1 {
		t.Fatalf("bob FetchIncoming() = %d messages, error = %v", len(fresh), err)
	}
	originalID := fresh[0].Core().ID

	fwd, err := bob.ForwardMessage(ctx, originalID, daveOnBob.ID)
	if err != nil {
		t.Fatalf("ForwardMessage() error = %v", err)
	}

	// Single-use grant: it rides the forwarded copy and leaves the original.
	if fwd.Core().Attachment == nil || fwd.Core().Attachment.IntroductionKey == nil {
		t.Error("forwarded copy lost the introduction key")
	}
	original, err := bob.GetMessage(ctx, originalID)
	if err != nil {
		t.Fatalf("GetMessage() error = %v", err)
	}
	if original.Core().Attachment != nil {
		t.Error("original still carries the grant after forwarding")
	}

	// Dave received the key and can import the contact.
	daveFresh, err := dave.FetchIncoming(ctx)
	if err != nil || len(daveFresh) != 1 {
		t.Fatalf("dave FetchIncoming() = %d messages, error = %v", len(daveFresh), err)
	}
	if _, err := dave.AcceptIntroduction(ctx, daveFresh[0].Core().ID, ""); err != nil {
		t.Fatalf("AcceptIntroduction() on dave error = %v", err)
	}
}
