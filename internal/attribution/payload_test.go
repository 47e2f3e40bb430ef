package attribution

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildAffiliateReferralUpsertUsesFirstTouchTimestamp(t *testing.T) {
	engine := newTestEngine(t, "https://practicecoach.io")
	signal := engine.ExtractSignal(Request{
		URL:    "https://practicecoach.io/?aff=jane&utm_source=yt&utm_medium=video&utm_campaign=launch&gclid=g-1",
		Header: HeaderFromMap(map[string]string{"Referer": "https://youtube.com/", "User-Agent": "UA", "X-Country-Code": "us"}),
	})
	firstTouchAt := testNow.Add(-20 * 24 * time.Hour)
	ft := samplePayload(firstTouchAt, ChannelReferral)

	row := BuildAffiliateReferralUpsert(signal, TouchHistory{FirstTouch: &ft})

	assert.Equal(t, "jane", row.Code)
	assert.Equal(t, ChannelAffiliate, row.Channel)
	assert.Equal(t, "yt", row.UTMSource)
	assert.Equal(t, "video", row.UTMMedium)
	assert.Equal(t, "launch", row.UTMCampaign)
	assert.Equal(t, "g-1", row.GCLID)
	assert.Equal(t, "https://youtube.com/", row.Referrer)
	assert.Equal(t, signal.LandingURL, row.LandingURL)
	assert.Equal(t, "US", row.Country)
	assert.Equal(t, "UA", row.UserAgent)
	assert.Equal(t, firstTouchAt, row.FirstTouchAt)
	assert.Equal(t, testNow, row.LastTouchAt)
}

func TestBuildAffiliateReferralUpsertWithoutHistory(t *testing.T) {
	signal := TouchSignal{Timestamp: testNow, AffiliateCode: "bad code!", Channel: ChannelDirect}

	row := BuildAffiliateReferralUpsert(signal, TouchHistory{})

	assert.Empty(t, row.Code)
	assert.Equal(t, testNow, row.FirstTouchAt)
	assert.Equal(t, testNow, row.LastTouchAt)
}

func TestToAnalyticsEvent(t *testing.T) {
	signal := TouchSignal{
		Timestamp:     testNow,
		RequestID:     "req-1",
		Channel:       ChannelPaidSearch,
		UTM:           UTM{Source: "google", Medium: "cpc"},
		ClickIDs:      ClickIDs{GCLID: "g-1"},
		AffiliateCode: "",
		SiteDomain:    "practicecoach.io",
	}

	event := ToAnalyticsEvent(signal, "page_view", map[string]interface{}{
		"path":    "/pricing",
		"channel": "override",
	})

	assert.Equal(t, "page_view", event.Name)
	assert.Equal(t, testNow, event.TS)
	assert.Equal(t, "req-1", event.Props["request_id"])
	assert.Equal(t, "google", event.Props["utm_source"])
	assert.Equal(t, "g-1", event.Props["gclid"])
	assert.Equal(t, "/pricing", event.Props["path"])
	assert.Equal(t, "override", event.Props["channel"])
	assert.NotContains(t, event.Props, "affiliate_code")
	assert.NotContains(t, event.Props, "referrer")
}
