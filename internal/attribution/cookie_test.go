package attribution

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/practicecoach-next/internal/constants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePayload(ts time.Time, channel Channel) CookiePayload {
	return CookiePayload{
		TS:            ts.UTC().Format(time.RFC3339Nano),
		Channel:       channel,
		UTM:           UTM{Source: "google", Medium: "cpc", Campaign: "spring"},
		ClickIDs:      ClickIDs{GCLID: "g-1"},
		AffiliateCode: "jane",
		Referrer:      "https://www.google.com/",
		LandingURL:    "https://practicecoach.io/?gclid=g-1",
		Kind:          TouchKindFirst,
	}
}

// cookieValue 从 Set-Cookie 头中取出 Cookie 值
func cookieValue(t *testing.T, header string) string {
	t.Helper()
	first, _, _ := strings.Cut(header, ";")
	_, value, ok := strings.Cut(first, "=")
	require.True(t, ok, "malformed set-cookie header %q", header)
	return value
}

func jarWith(t *testing.T, engine *Engine, ft, lt *CookiePayload) CookieJar {
	t.Helper()
	parts := make([]string, 0, 2)
	if ft != nil {
		parts = append(parts, constants.AttributionCookieFirstTouch+"="+engine.EncodeCookieValue(*ft))
	}
	if lt != nil {
		parts = append(parts, constants.AttributionCookieLastTouch+"="+engine.EncodeCookieValue(*lt))
	}
	return ParseCookieJar(strings.Join(parts, "; "))
}

func TestCookieRoundTrip(t *testing.T) {
	engine := newTestEngine(t, "https://practicecoach.io")
	payload := samplePayload(testNow, ChannelAffiliate)

	value := engine.EncodeCookieValue(payload)
	got, ok := engine.VerifyCookieValue(value)

	require.True(t, ok)
	assert.Equal(t, payload, got)
}

func TestCookieTamperingIsRejected(t *testing.T) {
	engine := newTestEngine(t, "https://practicecoach.io")
	value := engine.EncodeCookieValue(samplePayload(testNow, ChannelAffiliate))

	for i := 0; i < len(value); i++ {
		replacement := byte('A')
		if value[i] == 'A' {
			replacement = 'B'
		}
		tampered := value[:i] + string(replacement) + value[i+1:]
		got, ok := engine.VerifyCookieValue(tampered)
		if ok {
			t.Fatalf("tampered byte %d accepted: %+v", i, got)
		}
		assert.Equal(t, CookiePayload{}, got)
	}
}

func TestCookieVerifyRejectsForeignSecret(t *testing.T) {
	engine := newTestEngine(t, "https://practicecoach.io")
	other := NewEngine(Options{SigningSecret: "another-secret"})
	value := other.EncodeCookieValue(samplePayload(testNow, ChannelDirect))

	_, ok := engine.VerifyCookieValue(value)
	assert.False(t, ok)
}

func TestCookieVerifyRequiresStringTimestamp(t *testing.T) {
	engine := newTestEngine(t, "https://practicecoach.io")
	signed := func(body string) string {
		encoded := base64.RawURLEncoding.EncodeToString([]byte(body))
		return encoded + "." + engine.sign(encoded)
	}

	cases := map[string]string{
		"missing ts":  `{"channel":"direct","kind":"first"}`,
		"numeric ts":  `{"ts":1700000000,"channel":"direct"}`,
		"empty ts":    `{"ts":"","channel":"direct"}`,
		"invalid ts":  `{"ts":"yesterday","channel":"direct"}`,
		"not json":    `not-json`,
		"json array":  `["ts"]`,
		"garbage sig": "",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			value := signed(body)
			if body == "" {
				value = "abc.def"
			}
			_, ok := engine.VerifyCookieValue(value)
			assert.False(t, ok)
		})
	}

	_, ok := engine.VerifyCookieValue(signed(`{"ts":"2026-03-01T00:00:00Z","channel":"direct"}`))
	assert.True(t, ok)
}

func TestBuildAttributionCookiesWithoutHistory(t *testing.T) {
	engine := newTestEngine(t, "https://practicecoach.io")
	signal := engine.ExtractSignal(Request{URL: "https://practicecoach.io/?utm_medium=cpc&utm_campaign=spring"})

	update := engine.BuildAttributionCookies(signal, ParseCookieJar(""))

	require.NotEmpty(t, update.FirstTouch)
	require.NotEmpty(t, update.LastTouch)
	assert.True(t, strings.HasPrefix(update.FirstTouch, constants.AttributionCookieFirstTouch+"="))
	assert.True(t, strings.HasSuffix(update.FirstTouch, "; Path=/; HttpOnly; SameSite=Lax; Max-Age=7776000; Secure"))
	assert.True(t, strings.HasSuffix(update.LastTouch, "; Path=/; HttpOnly; SameSite=Lax; Max-Age=604800; Secure"))
	assert.Len(t, update.SetCookieHeaders(), 2)

	ft, ok := engine.VerifyCookieValue(cookieValue(t, update.FirstTouch))
	require.True(t, ok)
	assert.Equal(t, TouchKindFirst, ft.Kind)
	assert.Equal(t, ChannelPaidSearch, ft.Channel)
	lt, ok := engine.VerifyCookieValue(cookieValue(t, update.LastTouch))
	require.True(t, ok)
	assert.Equal(t, TouchKindLast, lt.Kind)
	assert.Equal(t, &ft, update.History.FirstTouch)
}

func TestBuildAttributionCookiesLocalhostIsNotSecure(t *testing.T) {
	engine := newTestEngine(t, "http://localhost:3000")
	signal := engine.ExtractSignal(Request{URL: "http://localhost:3000/"})

	update := engine.BuildAttributionCookies(signal, CookieJar{})

	assert.NotContains(t, update.FirstTouch, "Secure")
	assert.NotContains(t, update.LastTouch, "Secure")
}

func TestBuildAttributionCookiesFirstTouchIsSticky(t *testing.T) {
	engine := newTestEngine(t, "https://practicecoach.io")
	ft := samplePayload(testNow.Add(-10*24*time.Hour), ChannelOrganicSearch)
	lt := ft
	lt.Kind = TouchKindLast
	lt.TS = testNow.Add(-2 * 24 * time.Hour).Format(time.RFC3339Nano)

	signal := engine.ExtractSignal(Request{URL: "https://practicecoach.io/?utm_medium=paid_social"})
	require.Equal(t, ChannelPaidSocial, signal.Channel)

	update := engine.BuildAttributionCookies(signal, jarWith(t, engine, &ft, &lt))

	assert.Empty(t, update.FirstTouch, "first touch inside the window must never be replaced")
	assert.Equal(t, &ft, update.History.FirstTouch)
	assert.NotEmpty(t, update.LastTouch, "transition into a paid channel refreshes last touch")
}

func TestBuildAttributionCookiesFirstTouchExpires(t *testing.T) {
	engine := newTestEngine(t, "https://practicecoach.io")
	ft := samplePayload(testNow.Add(-90*24*time.Hour), ChannelOrganicSearch)

	update := engine.BuildAttributionCookies(engine.ExtractSignal(Request{URL: "https://practicecoach.io/"}), jarWith(t, engine, &ft, nil))

	assert.NotEmpty(t, update.FirstTouch)
}

func TestBuildAttributionCookiesLastTouchRefresh(t *testing.T) {
	engine := newTestEngine(t, "https://practicecoach.io")
	ft := samplePayload(testNow.Add(-30*24*time.Hour), ChannelDirect)
	recent := CookiePayload{
		TS:      testNow.Add(-24 * time.Hour).Format(time.RFC3339Nano),
		Channel: ChannelDirect,
		UTM:     UTM{Campaign: "spring"},
		Kind:    TouchKindLast,
	}
	stale := recent
	stale.TS = testNow.Add(-7 * 24 * time.Hour).Format(time.RFC3339Nano)

	tests := []struct {
		name    string
		lt      CookiePayload
		url     string
		refresh bool
	}{
		{name: "recent same touch kept", lt: recent, url: "https://practicecoach.io/", refresh: false},
		{name: "expired at window boundary", lt: stale, url: "https://practicecoach.io/", refresh: true},
		{name: "same campaign kept", lt: recent, url: "https://practicecoach.io/?utm_source=x&utm_campaign=spring", refresh: false},
		{name: "campaign change", lt: recent, url: "https://practicecoach.io/?utm_campaign=summer", refresh: true},
		{name: "affiliate change", lt: recent, url: "https://practicecoach.io/?aff=jane", refresh: true},
		{name: "paid search transition", lt: recent, url: "https://practicecoach.io/?gclid=g-9", refresh: true},
		{name: "non paid channel change kept", lt: recent, url: "https://practicecoach.io/?utm_medium=social", refresh: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lt := tt.lt
			update := engine.BuildAttributionCookies(engine.ExtractSignal(Request{URL: tt.url}), jarWith(t, engine, &ft, &lt))
			assert.Empty(t, update.FirstTouch)
			assert.Equal(t, tt.refresh, update.LastTouch != "")
		})
	}
}

func TestBuildAttributionCookiesIgnoresTamperedHistory(t *testing.T) {
	engine := newTestEngine(t, "https://practicecoach.io")
	jar := ParseCookieJar(constants.AttributionCookieFirstTouch + "=forged.value; other=1")

	update := engine.BuildAttributionCookies(engine.ExtractSignal(Request{URL: "https://practicecoach.io/"}), jar)

	assert.NotEmpty(t, update.FirstTouch)
	assert.NotEmpty(t, update.LastTouch)
}

func TestParseCookieJar(t *testing.T) {
	jar := ParseCookieJar("a=1; pc_attrib_ft=xyz; a=2")

	value, ok := jar.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", value)
	value, ok = jar.Get("pc_attrib_ft")
	assert.True(t, ok)
	assert.Equal(t, "xyz", value)
	_, ok = jar.Get("missing")
	assert.False(t, ok)
}
