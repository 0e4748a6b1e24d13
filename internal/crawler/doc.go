// Package crawler walks a site breadth-first from a start URL and yields each
// HTML page it reaches as structured content. It also holds the contracts
// shared by the fetch, job and queue subsystems.
package crawler
