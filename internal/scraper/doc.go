// Package scraper fetches exchange-rate quotes and turns them into posts.
//
// A Profile is an ordered table of labelled sources plus the style of its
// posts. Scrape fetches every source (bounded-parallel), drops the ones that
// fail or answer with an empty value, and always appends one ScrapedRecord
// with what was collected. FormatPost renders the result; MonthlyAverages and
// FormatSummary build the end-of-month post from stored records.
package scraper
