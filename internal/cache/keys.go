package cache

import "fmt"

// UserUpdateChannel is the pub/sub channel carrying user change events.
const UserUpdateChannel = "userUpdate"

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}

func IPRateLimitKey(ip string) string {
	return fmt.Sprintf("ratelimit:ip:%s", ip)
}

func ReputationKey(ip string) string {
	return fmt.Sprintf("reputation:%s", ip)
}

func AFKLockKey(email string) string {
	return fmt.Sprintf("afk:lock:%s", email)
}
