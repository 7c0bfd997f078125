// Package api provides the client for the history-data archive endpoint.
//
// Endpoint:
//   - GET <history_url>?figi=<code>&year=<yyyy>
//   - Authorization: Bearer <token>
//
// A 2xx response carries a ZIP archive of one-minute candle CSV files. 404
// and 500 both mean no data exists for the instrument and year. Every
// response carries x-ratelimit-remaining and x-ratelimit-reset headers,
// parsed into a RateLimit.
package api
