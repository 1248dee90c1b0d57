package cache

import "fmt"

func JobStatusKey(jobID int64) string {
	return fmt.Sprintf("job:%d", jobID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}

func ResultPageKey(jobID int64, page, pageSize int) string {
	return fmt.Sprintf("job:%d:result:%d:%d", jobID, page, pageSize)
}
