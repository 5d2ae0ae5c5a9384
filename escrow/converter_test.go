package escrow

import (
	"errors"
	"math/big"
	"testing"
)

func TestRouteZeroAmountNoOp(t *testing.T) {
	custodian := &mockCustodian{}
	converter := NewFeeConverter(&stubVenue{}, testVenueAcct, custodian)
	if err := converter.Route(1, big.NewInt(0), testFeeReceiver); err != nil {
		t.Fatalf("zero route: %v", err)
	}
	if err := converter.Route(1, nil, testFeeReceiver); err != nil {
		t.Fatalf("nil route: %v", err)
	}
	if len(custodian.pushes) != 0 {
		t.Fatalf("zero route must move nothing")
	}
}

func TestRouteWithoutVenueFallsBack(t *testing.T) {
	custodian := &mockCustodian{}
	rec := &recordingEmitter{}
	converter := NewFeeConverter(nil, [20]byte{}, custodian)
	converter.SetEmitter(rec)
	if err := converter.Route(3, big.NewInt(50), testFeeReceiver); err != nil {
		t.Fatalf("route: %v", err)
	}
	if got := custodian.pushedTo(testFeeReceiver); got.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("expected direct transfer 50, got %s", got)
	}
	if !rec.has(EventTypeFeeConvertFailed) {
		t.Fatalf("missing failure signal for unconfigured venue")
	}
}

func TestRouteVenueFailureFallsBack(t *testing.T) {
	custodian := &mockCustodian{}
	rec := &recordingEmitter{}
	venue := &stubVenue{err: errors.New("rate limit")}
	converter := NewFeeConverter(venue, testVenueAcct, custodian)
	converter.SetEmitter(rec)
	if err := converter.Route(4, big.NewInt(50), testFeeReceiver); err != nil {
		t.Fatalf("venue failure must not surface: %v", err)
	}
	if venue.calls != 1 {
		t.Fatalf("expected one venue attempt, got %d", venue.calls)
	}
	if got := custodian.pushedTo(testFeeReceiver); got.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("expected fallback transfer 50, got %s", got)
	}
	if got := custodian.pushedTo(testVenueAcct); got.Sign() != 0 {
		t.Fatalf("failed conversion must not settle the venue leg")
	}
	for _, evt := range rec.events {
		if evt.Type == EventTypeFeeConvertFailed {
			if evt.Attributes["reason"] != "rate limit" {
				t.Fatalf("failure reason not propagated: %q", evt.Attributes["reason"])
			}
			return
		}
	}
	t.Fatalf("missing failure signal, saw %v", rec.typesSeen())
}

func TestRouteVenueSuccessSettlesDeposit(t *testing.T) {
	custodian := &mockCustodian{}
	rec := &recordingEmitter{}
	converter := NewFeeConverter(&stubVenue{}, testVenueAcct, custodian)
	converter.SetEmitter(rec)
	if err := converter.Route(5, big.NewInt(50), testFeeReceiver); err != nil {
		t.Fatalf("route: %v", err)
	}
	if got := custodian.pushedTo(testVenueAcct); got.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("expected venue settlement 50, got %s", got)
	}
	if got := custodian.pushedTo(testFeeReceiver); got.Sign() != 0 {
		t.Fatalf("converted fee must not also route directly")
	}
	if !rec.has(EventTypeFeeConverted) {
		t.Fatalf("missing conversion signal")
	}
}

func TestRouteTransferFailureSurfaces(t *testing.T) {
	custodian := &mockCustodian{failPush: errors.New("halted")}
	converter := NewFeeConverter(nil, [20]byte{}, custodian)
	if err := converter.Route(6, big.NewInt(50), testFeeReceiver); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
}
