package crawler

// crawlEntry is one pending fetch: a URL and the depth it was found at
type crawlEntry struct {
	url   string
	depth int
}

// crawlQueue is the FIFO frontier of one crawl. A URL is marked visited
// when it is enqueued, not when it is fetched, so a slow fetch can never
// let the same URL be queued a second time.
type crawlQueue struct {
	entries []crawlEntry
	visited map[string]bool
}

func newCrawlQueue() *crawlQueue {
	return &crawlQueue{
		visited: make(map[string]bool),
	}
}

// Push enqueues a URL at the given depth. URLs already seen are ignored.
// Returns true if the URL was accepted.
func (q *crawlQueue) Push(url string, depth int) bool {
	if q.visited[url] {
		return false
	}
	q.visited[url] = true
	q.entries = append(q.entries, crawlEntry{url: url, depth: depth})
	return true
}

// Pop dequeues the oldest entry. The second return is false when the
// frontier is empty.
func (q *crawlQueue) Pop() (crawlEntry, bool) {
	if len(q.entries) == 0 {
		return crawlEntry{}, false
	}
	entry := q.entries[0]
	q.entries = q.entries[1:]
	return entry, true
}

// Len returns the number of pending entries
func (q *crawlQueue) Len() int {
	return len(q.entries)
}

// Visited reports whether a URL has ever been enqueued
func (q *crawlQueue) Visited(url string) bool {
	return q.visited[url]
}
