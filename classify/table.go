package classify

// entry is one row of the pattern table. Order matters: Match iterates the
// table top to bottom and stops at the first hit, so broader platforms that
// share substrings with narrower ones must appear after them.
type entry struct {
	platform string
	category Category
	patterns []string
}

// table is the static classifier pattern table, loaded once at startup and
// read-only at runtime. Patterns are lowercase hostname substrings plus a few
// well-known cookie prefixes.
var table = []entry{
	{"google", CategoryAnalytics, []string{
		"google-analytics.com", "googletagmanager.com", "analytics.google.com",
		"_ga", "_gid", "__utm",
	}},
	{"google-ads", CategoryAdvertising, []string{
		"doubleclick.net", "googlesyndication.com", "googleadservices.com",
		"adservice.google", "_gcl_",
	}},
	{"meta", CategorySocial, []string{
		"facebook.com/tr", "facebook.net", "connect.facebook", "fbcdn.net",
		"_fbp", "_fbc",
	}},
	{"tiktok", CategorySocial, []string{
		"analytics.tiktok.com", "tiktok.com/i18n/pixel", "_ttp",
	}},
	{"twitter", CategorySocial, []string{
		"static.ads-twitter.com", "analytics.twitter.com", "t.co/i/adsct",
	}},
	{"linkedin", CategorySocial, []string{
		"px.ads.linkedin.com", "snap.licdn.com", "li_fat_id",
	}},
	{"microsoft", CategoryAnalytics, []string{
		"clarity.ms", "bat.bing.com", "_clck", "_clsk",
	}},
	{"amazon", CategoryAdvertising, []string{
		"amazon-adsystem.com", "assoc-amazon",
	}},
	{"criteo", CategoryAdvertising, []string{
		"criteo.com", "criteo.net",
	}},
	{"taboola", CategoryAdvertising, []string{
		"taboola.com", "trc.taboola",
	}},
	{"outbrain", CategoryAdvertising, []string{
		"outbrain.com", "outbrainimg.com",
	}},
	{"hotjar", CategoryAnalytics, []string{
		"hotjar.com", "hotjar.io", "_hj",
	}},
	{"mixpanel", CategoryAnalytics, []string{
		"mixpanel.com", "mp_", "api-js.mixpanel",
	}},
	{"segment", CategoryAnalytics, []string{
		"segment.com", "segment.io", "cdn.segment",
	}},
	{"amplitude", CategoryAnalytics, []string{
		"amplitude.com", "api.amplitude",
	}},
	{"fullstory", CategoryAnalytics, []string{
		"fullstory.com", "fs.js",
	}},
	{"fingerprintjs", CategoryFingerprinting, []string{
		"fingerprintjs", "fpjs.io", "fingerprint.com",
	}},
	{"oracle-bluekai", CategoryDataBroker, []string{
		"bluekai.com", "bkrtx.com",
	}},
	{"liveramp", CategoryDataBroker, []string{
		"liveramp.com", "rlcdn.com", "pippio.com",
	}},
	{"lotame", CategoryDataBroker, []string{
		"lotame.com", "crwdcntrl.net",
	}},
	{"quantcast", CategoryDataBroker, []string{
		"quantserve.com", "quantcount.com", "__qca",
	}},
	{"hubspot", CategoryAnalytics, []string{
		"hs-analytics.net", "hs-scripts.com", "hubspot.com", "__hstc",
	}},
	{"yandex", CategoryAnalytics, []string{
		"mc.yandex.ru", "_ym_",
	}},
	{"adobe", CategoryAnalytics, []string{
		"omtrdc.net", "demdex.net", "2o7.net",
	}},
}

// pixelPaths are generic beacon path fragments. A URL that matched a platform
// and contains one of these is treated as a tracking pixel rather than a
// script or API call.
var pixelPaths = []string{
	"/collect", "/tr?", "/tr/", "/pixel", "/i/adsct", "/beacon", "/ping",
	"1x1", ".gif?",
}
