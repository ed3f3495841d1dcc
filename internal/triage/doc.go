// Package triage is the business boundary for sift's notification
// aggregation engine. It defines the Service (ingestion, dedup, queries,
// lifecycle), the Store interface (persistence), the importance Scorer,
// thread grouping, topic extraction, extractive summarization, and the
// thread ranker.
package triage
