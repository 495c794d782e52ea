// Package selector implements the selection engine: it periodically scores
// every configured target concurrently, picks the one with the lowest score
// (first in configuration order on a tie), and publishes it to the shared
// best-target cell.
package selector
