package deaddrop

import (
	"context"
	"errors"
	"testing"
)

func TestAddContact_Validation(t *testing.T) {
	relay := newTestRelay(t)
	c := newTestClient(t, relay.url())
	ctx := context.Background()

	t.Run("empty name", func(t *testing.T) {
		_, err := c.AddContact(ctx, "", "", mustKeyMaterial(t), true)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Errorf("error = %v, want *ValidationError", err)
		}
	})

	t.Run("bad encoding", func(t *testing.T) {
		_, err := c.AddContact(ctx, "alice", "", "not!!base64url", true)
		if !errors.Is(err, ErrInvalidKeyMaterial) {
			t.Errorf("error = %v, want ErrInvalidKeyMaterial", err)
		}
	})

	t.Run("short key", func(t *testing.T) {
		_, err := c.AddContact(ctx, "alice", "", "AAECAw", true)
		if !errors.Is(err, ErrInvalidKeyMaterial) {
			t.Errorf("error = %v, want ErrInvalidKeyMaterial", err)
		}
	})
}

func TestAddContact_PersistsFields(t *testing.T) {
	relay := newTestRelay(t)
	c := newTestClient(t, relay.url())
	ctx := context.Background()

	contact, err := c.AddContact(ctx, "alice", "avatar-1", mustKeyMaterial(t), true)
	if err != nil {
		t.Fatalf("AddContact() error = %v", err)
	}
	if contact.ID == "" || contact.KeyID == "" {
		t.Fatal("contact ids were not generated")
	}

	got, err := c.GetContact(ctx, contact.ID)
	if err != nil {
		t.Fatalf("GetContact() error = %v", err)
	}
	if got.Name != "alice" {
		t.Errorf("Name = %q, want alice", got.Name)
	}
	if got.Avatar != "avatar-1" {
		t.Errorf("Avatar = %q, want avatar-1", got.Avatar)
	}
	if !got.UserGeneratedKey {
		t.Error("UserGeneratedKey = false, want true")
	}
	if got.LastActive.IsZero() {
		t.Error("LastActive was not set")
	}
}

func TestGetContact_NotFound(t *testing.T) {
	relay := newTestRelay(t)
	c := newTestClient(t, relay.url())

	_, err := c.GetContact(context.Background(), "nope")
	if !errors.Is(err, ErrContactNotFound) {
		t.Errorf("error = %v, want ErrContactNotFound", err)
	}
}

func TestContacts_SortedByName(t *testing.T) {
	relay := newTestRelay(t)
	c := newTestClient(t, relay.url())
	ctx := context.Background()

	for _, name := range []string{"zoe", "alice", "mallory"} {
		if _, err := c.AddContact(ctx, name, "", mustKeyMaterial(t), true); err != nil {
			t.Fatalf("AddContact(%s) error = %v", name, err)
		}
	}

	contacts, err := c.Contacts(ctx)
	if err != nil {
		t.Fatalf("Contacts() error = %v", err)
	}
	if len(contacts) != 3 {
		t.Fatalf("Contacts() length = %d, want 3", len(contacts))
	}
	want := []string{"alice", "mallory", "zoe"}
	for i, contact := range contacts {
		if contact.Name != want[i] {
			t.Errorf("contacts[%d].Name = %s, want %s", i, contact.Name, want[i])
		}
	}
}

// Two devices importing the same key material with opposite userGenerated
// flags must derive complementary addresses: what one side puts to is what
// the other side polls, in both directions.
func TestAddresses_ComplementaryAcrossPeers(t *testing.T) {
	relay := newTestRelay(t)
	alice := newTestClient(t, relay.url())
	bob := newTestClient(t, relay.url())
	ctx := context.Background()

	bobOnAlice, aliceOnBob := pairContacts(t, alice, bob, "bob", "alice")

	alicePut, err := alice.PutAddress(ctx, bobOnAlice.ID)
	if err != nil {
		t.Fatalf("PutAddress() error = %v", err)
	}
	aliceGet, err := alice.GetAddress(ctx, bobOnAlice.ID)
	if err != nil {
		t.Fatalf("GetAddress() error = %v", err)
	}
	bobPut, err := bob.PutAddress(ctx, aliceOnBob.ID)
	if err != nil {
		t.Fatalf("PutAddress() error = %v", err)
	}
	bobGet, err := bob.GetAddress(ctx, aliceOnBob.ID)
	if err != nil {
		t.Fatalf("GetAddress() error = %v", err)
	}

	if alicePut != bobGet {
		t.Errorf("alice put %s != bob get %s", alicePut, bobGet)
	}
	if aliceGet != bobPut {
		t.Errorf("alice get %s != bob put %s", aliceGet, bobPut)
	}
	if alicePut == aliceGet {
		t.Error("put and get addresses collide on one side")
	}
}

func TestDeleteContact(t *testing.T) {
	relay := newTestRelay(t)
	c := newTestClient(t, relay.url())
	ctx := context.Background()

	contact, err := c.AddContact(ctx, "alice", "", mustKeyMaterial(t), true)
	if err != nil {
		t.Fatalf("AddContact() error = %v", err)
	}
	if err := c.DeleteContact(ctx, contact.ID); err != nil {
		t.Fatalf("DeleteContact() error = %v", err)
	}
	if _, err := c.GetContact(ctx, contact.ID); !errors.Is(err, ErrContactNotFound) {
		t.Errorf("GetContact() after delete error = %v, want ErrContactNotFound", err)
	}
	if err := c.DeleteContact(ctx, contact.ID); !errors.Is(err, ErrContactNotFound) {
		t.Errorf("second DeleteContact() error = %v, want ErrContactNotFound", err)
	}
}

func TestDeleteContact_RemovedFromGroups(t *testing.T) {
	relay := newTestRelay(t)
	c := newTestClient(t, relay.url())
	ctx := context.Background()

	alice, err := c.AddContact(ctx, "alice", "", mustKeyMaterial(t), true)
	if err != nil {
		t.Fatalf("AddContact() error = %v", err)
	}
	bob, err := c.AddContact(ctx, "bob", "", mustKeyMaterial(t), true)
	if err != nil {
		t.Fatalf("AddContact() error = %v", err)
	}

	pair, err := c.AddGroup(ctx, "pair", []string{alice.ID, bob.ID})
	if err != nil {
		t.Fatalf("AddGroup() error = %v", err)
	}
	solo, err := c.AddGroup(ctx, "solo", []string{alice.ID})
	if err != nil {
		t.Fatalf("AddGroup() error = %v", err)
	}

	if err := c.DeleteContact(ctx, alice.ID); err != nil {
		t.Fatalf("DeleteContact() error = %v", err)
	}

	gotPair, err := c.GetGroup(ctx, pair.ID)
	if err != nil {
		t.Fatalf("GetGroup() error = %v", err)
	}
	if len(gotPair.MemberIDs) != 1 || gotPair.MemberIDs[0] != bob.ID {
		t.Errorf("pair members = %v, want [%s]", gotPair.MemberIDs, bob.ID)
	}

	// A group emptied by the cascade is kept, not silently deleted.
	gotSolo, err := c.GetGroup(ctx, solo.ID)
	if err != nil {
		t.Fatalf("GetGroup() error = %v", err)
	}
	if len(gotSolo.MemberIDs) != 0 {
		t.Errorf("solo members = %v, want empty", gotSolo.MemberIDs)
	}
}

func TestDeleteContact_MessagesRetained(t *testing.T) {
	relay := newTestRelay(t)
	c := newTestClient(t, relay.url())
	ctx := context.Background()

	contact, err := c.AddContact(ctx, "alice", "", mustKeyMaterial(t), true)
	if err != nil {
		t.Fatalf("AddContact() error = %v", err)
	}
	msg, err := c.SendMessage(ctx, contact.ID, "hello")
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	if err := c.DeleteContact(ctx, contact.ID); err != nil {
		t.Fatalf("DeleteContact() error = %v", err)
	}

	kept, err := c.GetMessage(ctx, msg.Core().ID)
	if err != nil {
		t.Fatalf("GetMessage() after contact delete error = %v", err)
	}
	// The record survives, but without the key it cannot decrypt anymore.
	if _, err := c.DecryptMessage(ctx, kept); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("DecryptMessage() error = %v, want ErrDecryptionFailed", err)
	}
}

func TestAddGroup_Validation(t *testing.T) {
	relay := newTestRelay(t)
	c := newTestClient(t, relay.url())
	ctx := context.Background()

	alice, err := c.AddContact(ctx, "alice", "", mustKeyMaterial(t), true)
	if err != nil {
		t.Fatalf("AddContact() error = %v", err)
	}

	tests := []struct {
		name    string
		group   string
		members []string
		opts    []GroupOption
	}{
		{"empty name", "", []string{alice.ID}, nil},
		{"no members", "team", nil, nil},
		{"unknown member", "team", []string{alice.ID, "ghost"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.AddGroup(ctx, tt.group, tt.members, tt.opts...)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Errorf("error = %v, want *ValidationError", err)
			}
		})
	}

	t.Run("duplicate explicit id", func(t *testing.T) {
		if _, err := c.AddGroup(ctx, "team", []string{alice.ID}, WithGroupID("fixed")); err != nil {
			t.Fatalf("AddGroup() error = %v", err)
		}
		_, err := c.AddGroup(ctx, "other", []string{alice.ID}, WithGroupID("fixed"))
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Errorf("error = %v, want *ValidationError", err)
		}
	})
}

func TestAddGroup_ExplicitID(t *testing.T) {
	relay := newTestRelay(t)
	c := newTestClient(t, relay.url())
	ctx := context.Background()

	alice, err := c.AddContact(ctx, "alice", "", mustKeyMaterial(t), true)
	if err != nil {
		t.Fatalf("AddContact() error = %v", err)
	}

	group, err := c.AddGroup(ctx, "team", []string{alice.ID},
		WithGroupID("announced-id"), WithGroupAvatar("pic"))
	if err != nil {
		t.Fatalf("AddGroup() error = %v", err)
	}
	if group.ID != "announced-id" {
		t.Errorf("ID = %s, want announced-id", group.ID)
	}
	if group.Avatar != "pic" {
		t.Errorf("Avatar = %s, want pic", group.Avatar)
	}
}

func TestDeleteGroup_KeepsContacts(t *testing.T) {
	relay := newTestRelay(t)
	c := newTestClient(t, relay.url())
	ctx := context.Background()

	alice, err := c.AddContact(ctx, "alice", "", mustKeyMaterial(t), true)
	if err != nil {
		t.Fatalf("AddContact() error = %v", err)
	}
	group, err := c.AddGroup(ctx, "team", []string{alice.ID})
	if err != nil {
		t.Fatalf("AddGroup() error = %v", err)
	}

	if err := c.DeleteGroup(ctx, group.ID); err != nil {
		t.Fatalf("DeleteGroup() error = %v", err)
	}
	if _, err := c.GetGroup(ctx, group.ID); !errors.Is(err, ErrGroupNotFound) {
		t.Errorf("GetGroup() after delete error = %v, want ErrGroupNotFound", err)
	}
	if _, err := c.GetContact(ctx, alice.ID); err != nil {
		t.Errorf("GetContact() after group delete error = %v", err)
	}
}

func TestKeyCache_SurvivesEviction(t *testing.T) {
	relay := newTestRelay(t)
	c := newTestClient(t, relay.url())
	ctx := context.Background()

	contact, err := c.AddContact(ctx, "alice", "", mustKeyMaterial(t), true)
	if err != nil {
		t.Fatalf("AddContact() error = %v", err)
	}
	before, err := c.PutAddress(ctx, contact.ID)
	if err != nil {
		t.Fatalf("PutAddress() error = %v", err)
	}

	// Evicting the cache entry forces the next resolve through the vault;
	// the unwrapped key must derive the same addresses.
	c.keys.evict(contact.KeyID)
	after, err := c.PutAddress(ctx, contact.ID)
	if err != nil {
		t.Fatalf("PutAddress() after evict error = %v", err)
	}
	if before != after {
		t.Errorf("address changed across cache eviction: %s != %s", before, after)
	}
}
