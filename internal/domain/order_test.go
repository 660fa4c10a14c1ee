package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestSetStatusAppendsHistory(t *testing.T) {
	now := time.Now().UTC()
	order := Order{Status: Queued(), StatusHistory: []OrderState{{Date: now, Status: Queued()}}}

	order.SetStatus(ProcessingSince(now), now.Add(time.Minute))
	order.SetStatus(Fulfilled(), now.Add(2*time.Minute))

	if order.Status.Kind != StatusFulfilled {
		t.Fatalf("status: got %q, want fulfilled", order.Status.Kind)
	}
	if len(order.StatusHistory) != 3 {
		t.Fatalf("history: got %d entries, want 3", len(order.StatusHistory))
	}
	// The queued entry must survive later transitions.
	if order.StatusHistory[0].Status.Kind != StatusQueued {
		t.Fatalf("history[0]: got %q, want queued", order.StatusHistory[0].Status.Kind)
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	if Queued().Terminal() || InStore().Terminal() {
		t.Fatal("queued and in_store are not terminal")
	}
	if !Fulfilled().Terminal() || !FailedStatus("lost parcel").Terminal() {
		t.Fatal("fulfilled and failed are terminal")
	}
}

func TestOrderStatusJSONRequiresPayloads(t *testing.T) {
	cases := []struct {
		name string
		body string
		ok   bool
	}{
		{"queued", `{"type":"queued"}`, true},
		{"transit without info", `{"type":"transit"}`, false},
		{"transit with info", `{"type":"transit","transit":{"shipping_company":{"name":"PostHaste"},"query_url":"https://tracking.example","tracking_code":"PH123"}}`, true},
		{"processing without start", `{"type":"processing"}`, false},
		{"failed without reason", `{"type":"failed"}`, false},
		{"failed with reason", `{"type":"failed","reason":"address unknown"}`, true},
		{"unknown variant", `{"type":"teleported"}`, false},
	}

	for _, tc := range cases {
		var status OrderStatus
		err := json.Unmarshal([]byte(tc.body), &status)
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%s: expected decode error", tc.name)
		}
	}
}

func TestOrderStatusJSONRoundTripKeepsPayload(t *testing.T) {
	original := InTransit(TransitInformation{
		ShippingCompany: ContactInformation{Name: "PostHaste"},
		QueryURL:        "https://tracking.example",
		TrackingCode:    "PH123",
	})

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded OrderStatus
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Kind != StatusTransit || decoded.Transit == nil {
		t.Fatalf("round trip dropped payload: %+v", decoded)
	}
	if decoded.Transit.TrackingCode != "PH123" {
		t.Fatalf("tracking code: got %q", decoded.Transit.TrackingCode)
	}
}

func TestPickStatusTransitions(t *testing.T) {
	allowed := []struct{ from, to PickStatus }{
		{PickPending, PickProcessing},
		{PickPending, PickFailed},
		{PickProcessing, PickPicked},
		{PickProcessing, PickUncertain},
		{PickUncertain, PickProcessing},
		{PickUncertain, PickPicked},
	}
	for _, tc := range allowed {
		if !tc.from.CanTransitionTo(tc.to) {
			t.Fatalf("%s -> %s should be allowed", tc.from, tc.to)
		}
	}

	rejected := []struct{ from, to PickStatus }{
		{PickPending, PickPicked},
		{PickPicked, PickFailed},
		{PickPicked, PickProcessing},
		{PickFailed, PickProcessing},
		{PickFailed, PickPending},
	}
	for _, tc := range rejected {
		if tc.from.CanTransitionTo(tc.to) {
			t.Fatalf("%s -> %s should be rejected", tc.from, tc.to)
		}
	}
}
