// utilitários pequenos para formatar a dica de retry em headers e no corpo JSON.

package ratelimit

import (
	"strconv"
	"time"
)

// RetryAfterSeconds arredonda para cima: 1ms vira 1s, nunca 0.
func RetryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}

func formatInt(v int) string { return strconv.Itoa(v) }
