package domain

import (
	"testing"
	"time"
)

func TestHasPermissionResolvesAuthority(t *testing.T) {
	sess := Session{
		Employee: Employee{
			Level: []Access{
				{Action: ActionCreateTransaction, Authority: 1},
				{Action: ActionModifyTransaction, Authority: 0},
			},
		},
	}

	if !sess.HasPermission(ActionCreateTransaction) {
		t.Fatal("authority 1 should grant create_transaction")
	}
	if sess.HasPermission(ActionModifyTransaction) {
		t.Fatal("authority 0 should deny modify_transaction")
	}
	// No entry at all counts as authority 0.
	if sess.HasPermission(ActionDeleteTransaction) {
		t.Fatal("missing entry should deny delete_transaction")
	}
}

func TestGenerateTemplateContentIsAlwaysAllowed(t *testing.T) {
	sess := Session{}
	if !sess.HasPermission(ActionGenerateTemplateContent) {
		t.Fatal("generate_template_content must not require an access entry")
	}
}

func TestSessionExpiry(t *testing.T) {
	now := time.Now().UTC()
	sess := Session{Expiry: now.Add(time.Minute)}

	if sess.Expired(now) {
		t.Fatal("session should be live before expiry")
	}
	if !sess.Expired(now.Add(2 * time.Minute)) {
		t.Fatal("session should be expired after expiry")
	}
}
