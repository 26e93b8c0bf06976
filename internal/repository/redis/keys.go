package redis

import "fmt"

const ns = "tourbook:v1"

func KeyDayAvailability(artistID, date string) string {
	return fmt.Sprintf("%s:artist:%s:day:%s:availability", ns, artistID, date)
}

func KeyGapReport(artistID, from string) string {
	return fmt.Sprintf("%s:artist:%s:gaps:%s", ns, artistID, from)
}

func KeyClientProfile(email string) string {
	return fmt.Sprintf("%s:client:%s:profile", ns, email)
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

func ChannelAvailabilityChanged() string {
	return ns + ":availability:changed"
}
