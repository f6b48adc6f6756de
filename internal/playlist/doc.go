// Package playlist defines the core types shared across the archiver: shows,
// play events, crawl targets, and the interfaces implemented by record
// sources, stores, sinks, and publishers.
package playlist
