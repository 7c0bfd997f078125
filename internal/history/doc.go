// Package history downloads per-instrument, per-year candle archives and
// loads them into the candle table.
//
// The pipeline for one (instrument, year) request:
//
//	HTTP body -> StreamArchive -> io.Pipe -> CandleReader -> LoadSession.Copy
//
// StreamArchive inflates the ZIP entries in order without seeking, and
// CandleReader rewrites each archive row into the bulk copy row format:
//
//	in:  <guid>;<yyyy-mm-ddThh:mm:ss>;open;close;high;low;volume;
//	out: <instrument id>;<minutes since 2000>;open;close;high;low;volume
//
// The Scheduler walks each instrument backward to the beginning of its
// history and forward to the present, one request at a time, honoring the
// archive's rate limit headers between requests.
package history
