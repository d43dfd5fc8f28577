package search

import "testing"

func TestRateLimiterAllowsUpToBurstThenBlocks(t *testing.T) {
	rl := NewRateLimiter()
	for i := 0; i < bucketMax; i++ {
		if !rl.Allow("1.2.3.4", "duckduckgo") {
			t.Fatalf("request %d should be allowed within the burst budget", i)
		}
	}
	if rl.Allow("1.2.3.4", "duckduckgo") {
		t.Fatal("request beyond the burst budget should be denied")
	}
}

func TestRateLimiterTracksIPAndEngineIndependently(t *testing.T) {
	rl := NewRateLimiter()
	for i := 0; i < bucketMax; i++ {
		rl.Allow("1.2.3.4", "duckduckgo")
	}
	if !rl.Allow("1.2.3.4", "bing") {
		t.Fatal("a different engine for the same IP should have its own budget")
	}
	if !rl.Allow("5.6.7.8", "duckduckgo") {
		t.Fatal("a different IP should have its own budget")
	}
}

func TestRateLimiterEvictsWhenBucketCapExceeded(t *testing.T) {
	rl := NewRateLimiter()
	for i := 0; i < maxBuckets+10; i++ {
		rl.Allow(string(rune(i)), "duckduckgo")
	}
	if len(rl.buckets) > maxBuckets {
		t.Fatalf("bucket count = %d, want <= %d", len(rl.buckets), maxBuckets)
	}
}
