package classify

import "testing"

func TestMatch_KnownTrackers(t *testing.T) {
	cases := []struct {
		input    string
		platform string
		category Category
	}{
		{"https://www.google-analytics.com/analytics.js", "google", CategoryAnalytics},
		{"https://connect.facebook.net/en_US/fbevents.js", "meta", CategorySocial},
		{"https://securepubads.g.doubleclick.net/tag/js/gpt.js", "google-ads", CategoryAdvertising},
		{"https://static.hotjar.com/c/hotjar-1.js", "hotjar", CategoryAnalytics},
		{"https://tags.crwdcntrl.net/lt/c/12345/lt.min.js", "lotame", CategoryDataBroker},
		{"https://cdn.fpjs.io/agent.min.js", "fingerprintjs", CategoryFingerprinting},
	}

	for _, tc := range cases {
		got := Match(tc.input)
		if got == nil {
			t.Errorf("Match(%q): got nil, want %s", tc.input, tc.platform)
			continue
		}
		if got.Platform != tc.platform {
			t.Errorf("Match(%q).Platform: got %q, want %q", tc.input, got.Platform, tc.platform)
		}
		if got.Category != tc.category {
			t.Errorf("Match(%q).Category: got %q, want %q", tc.input, got.Category, tc.category)
		}
		if got.MatchedAt.IsZero() {
			t.Errorf("Match(%q).MatchedAt: zero time", tc.input)
		}
	}
}

func TestMatch_CookieNames(t *testing.T) {
	got := Match("_ga_ABC123")
	if got == nil || got.Platform != "google" {
		t.Fatalf("Match(_ga cookie): got %+v, want google", got)
	}

	got = Match("_fbp")
	if got == nil || got.Platform != "meta" {
		t.Fatalf("Match(_fbp cookie): got %+v, want meta", got)
	}
}

func TestMatch_Benign(t *testing.T) {
	for _, input := range []string{
		"https://api.example.com/data.json",
		"https://cdn.example.org/app.css",
		"session_token",
	} {
		if got := Match(input); got != nil {
			t.Errorf("Match(%q): got %+v, want nil", input, got)
		}
	}
}

func TestMatch_EmptyInput(t *testing.T) {
	if got := Match(""); got != nil {
		t.Errorf("Match(empty): got %+v, want nil", got)
	}
}

func TestMatch_CaseInsensitive(t *testing.T) {
	got := Match("HTTPS://WWW.GOOGLE-ANALYTICS.COM/ANALYTICS.JS")
	if got == nil || got.Platform != "google" {
		t.Fatalf("Match upper-case: got %+v, want google", got)
	}
}

func TestMatch_Deterministic(t *testing.T) {
	const input = "https://www.googletagmanager.com/gtm.js?id=GTM-XXXX"
	first := Match(input)
	for i := 0; i < 50; i++ {
		got := Match(input)
		if got == nil {
			t.Fatalf("Match iteration %d: got nil", i)
		}
		if got.Platform != first.Platform || got.Category != first.Category {
			t.Fatalf("Match iteration %d: got %s/%s, want %s/%s",
				i, got.Platform, got.Category, first.Platform, first.Category)
		}
	}
}

func TestMatch_FirstMatchWins(t *testing.T) {
	// Contains both a google-analytics pattern and a doubleclick pattern;
	// "google" precedes "google-ads" in the table, so google wins.
	input := "https://www.google-analytics.com/collect?redirect=doubleclick.net"
	got := Match(input)
	if got == nil {
		t.Fatal("Match: got nil")
	}
	if got.Platform != "google" {
		t.Errorf("Match: got %q, want %q (first table entry wins)", got.Platform, "google")
	}
}

func TestIsTrackingPixel(t *testing.T) {
	cases := []struct {
		url  string
		want bool
	}{
		{"https://www.facebook.com/tr?id=123&ev=PageView", true},
		{"https://www.google-analytics.com/collect?v=1&tid=UA-1", true},
		{"https://www.google-analytics.com/analytics.js", false}, // script, not pixel
		{"https://api.example.com/collect", false},               // pixel path, no platform
	}
	for _, tc := range cases {
		if got := IsTrackingPixel(tc.url); got != tc.want {
			t.Errorf("IsTrackingPixel(%q): got %v, want %v", tc.url, got, tc.want)
		}
	}
}

func TestThirdParty(t *testing.T) {
	cases := []struct {
		page string
		url  string
		want bool
	}{
		{"example.com", "https://www.google-analytics.com/collect", true},
		{"example.com", "https://api.example.com/data.json", false},
		{"www.example.co.uk", "https://cdn.example.co.uk/a.js", false},
		{"example.co.uk", "https://other.co.uk/a.js", true},
		{"example.com", "not a url", false},
	}
	for _, tc := range cases {
		if got := ThirdParty(tc.page, tc.url); got != tc.want {
			t.Errorf("ThirdParty(%q, %q): got %v, want %v", tc.page, tc.url, got, tc.want)
		}
	}
}
