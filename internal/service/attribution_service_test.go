package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/practicecoach-next/internal/attribution"
	"github.com/practicecoach-next/internal/constants"
	"github.com/practicecoach-next/internal/repository"
)

func setupAttributionService(t *testing.T, persist bool) (*AttributionService, *repository.GormAffiliateReferralRepository, *memorySink) {
	t.Helper()
	db := setupServiceTestDB(t)
	repo := repository.NewAffiliateReferralRepository(db)
	sink := &memorySink{}
	engine := attribution.NewEngine(attribution.Options{
		SigningSecret: "test-signing-secret-value-0123456789",
		SiteBaseURL:   "https://practicecoach.example",
		Now:           func() time.Time { return testPaymentAt },
	})
	svc := NewAttributionService(engine, repo, sink, AttributionServiceOptions{
		DedupeWindow:     10 * time.Minute,
		PersistReferrals: persist,
		PublishAnalytics: true,
	})
	return svc, repo, sink
}

func testTouchRequest(rawURL string) attribution.Request {
	header := http.Header{}
	header.Set("User-Agent", "Mozilla/5.0")
	header.Set("Referer", "https://www.google.com/")
	return attribution.Request{URL: rawURL, Header: header, IP: "203.0.113.7"}
}

func TestAttributionServiceRecordsAffiliateTouch(t *testing.T) {
	svc, repo, sink := setupAttributionService(t, true)
	ctx := context.Background()

	result := svc.Process(testTouchRequest("https://practicecoach.example/pricing?ref=jane&utm_campaign=spring"), attribution.CookieJar{})
	if result.Signal.Channel != attribution.ChannelAffiliate {
		t.Fatalf("channel want affiliate got %s", result.Signal.Channel)
	}
	if len(result.Update.SetCookieHeaders()) != 2 {
		t.Fatalf("first visit should issue both cookies")
	}
	if err := svc.RecordTouch(ctx, TouchRecordInput{Result: result, VisitorKey: "visitor-1"}); err != nil {
		t.Fatalf("record touch failed: %v", err)
	}

	row, err := repo.GetByCodeAndVisitor("jane", "visitor-1")
	if err != nil {
		t.Fatalf("get referral failed: %v", err)
	}
	if row == nil {
		t.Fatalf("referral should be stored")
	}
	if row.UTMCampaign != "spring" || row.Channel != string(attribution.ChannelAffiliate) {
		t.Fatalf("unexpected referral: %+v", row)
	}
	if len(sink.events) != 1 || sink.events[0].Name != constants.AnalyticsEventAttributionTouch {
		t.Fatalf("expected one attribution_touch event, got %+v", sink.events)
	}
}

func TestAttributionServiceSkipsTouchWithoutCode(t *testing.T) {
	svc, _, sink := setupAttributionService(t, true)
	result := svc.Process(testTouchRequest("https://practicecoach.example/pricing"), attribution.CookieJar{})
	if err := svc.RecordTouch(context.Background(), TouchRecordInput{Result: result, VisitorKey: "visitor-1"}); err != nil {
		t.Fatalf("record touch failed: %v", err)
	}
	if len(sink.events) != 0 {
		t.Fatalf("touch without affiliate code should not publish")
	}
	if _, _, err := svc.ListReferrals(repository.AffiliateReferralListFilter{Code: "!"}); err != ErrAffiliateCodeInvalid {
		t.Fatalf("invalid code want ErrAffiliateCodeInvalid got %v", err)
	}
}

func TestAttributionServiceSnapshotReadsIssuedCookies(t *testing.T) {
	svc, _, _ := setupAttributionService(t, false)
	result := svc.Process(testTouchRequest("https://practicecoach.example/?utm_source=newsletter&utm_medium=email"), attribution.CookieJar{})

	header := http.Header{}
	for _, value := range result.Update.SetCookieHeaders() {
		header.Add("Set-Cookie", value)
	}
	resp := http.Response{Header: header}
	req := &http.Request{Header: http.Header{}}
	for _, cookie := range resp.Cookies() {
		req.AddCookie(cookie)
	}

	history := svc.Snapshot(attribution.CookieJarFromRequest(req))
	if history.FirstTouch == nil || history.LastTouch == nil {
		t.Fatalf("snapshot should contain both touches")
	}
	if history.FirstTouch.Channel != attribution.ChannelEmail {
		t.Fatalf("first touch channel want email got %s", history.FirstTouch.Channel)
	}
}

func TestResolveVisitorKey(t *testing.T) {
	signal := attribution.TouchSignal{IPHash: "abc", RequestID: "req-1"}
	if got := ResolveVisitorKey(" header-key ", signal); got != "header-key" {
		t.Fatalf("header key want header-key got %s", got)
	}
	if got := ResolveVisitorKey("", signal); got != "ip:abc" {
		t.Fatalf("ip key want ip:abc got %s", got)
	}
	if got := ResolveVisitorKey("", attribution.TouchSignal{RequestID: "req-1"}); got != "req:req-1" {
		t.Fatalf("request key want req:req-1 got %s", got)
	}
}
