package main

import "time"

func secondsToDuration(s float64) time.Duration {
	if s <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s * float64(time.Second))
}
