// Package useragent classifies raw user-agent strings into coarse
// device, browser and OS buckets using ordered substring checks.
// It is deliberately not a full UA parser: the first matching
// substring wins, so derived values stay stable and cheap to compute
// on the ingestion hot path.
package useragent

import "strings"

// Device types
const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceBot     = "bot"
	DeviceDesktop = "desktop"
)

// Info holds the classification derived from a user-agent string.
type Info struct {
	DeviceType string
	Browser    string
	OS         string
}

// Classify derives device type, browser and OS from a raw user-agent
// string. Matching is case-insensitive; within each category the checks
// run in a fixed order and the first hit wins.
func Classify(userAgent string) Info {
	ua := strings.ToLower(userAgent)
	return Info{
		DeviceType: deviceType(ua),
		Browser:    browser(ua),
		OS:         operatingSystem(ua),
	}
}

func deviceType(ua string) string {
	switch {
	case strings.Contains(ua, "mobile") || strings.Contains(ua, "android"):
		return DeviceMobile
	case strings.Contains(ua, "tablet") || strings.Contains(ua, "ipad"):
		return DeviceTablet
	case strings.Contains(ua, "bot") || strings.Contains(ua, "crawler"):
		return DeviceBot
	default:
		return DeviceDesktop
	}
}

func browser(ua string) string {
	switch {
	case strings.Contains(ua, "chrome"):
		return "Chrome"
	case strings.Contains(ua, "firefox"):
		return "Firefox"
	case strings.Contains(ua, "safari"):
		return "Safari"
	case strings.Contains(ua, "edge"):
		return "Edge"
	default:
		return "Unknown"
	}
}

func operatingSystem(ua string) string {
	switch {
	case strings.Contains(ua, "windows"):
		return "Windows"
	case strings.Contains(ua, "mac"):
		return "macOS"
	case strings.Contains(ua, "linux"):
		return "Linux"
	case strings.Contains(ua, "android"):
		return "Android"
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"), strings.Contains(ua, "ios"):
		return "iOS"
	default:
		return "Unknown"
	}
}
